package test_helpers

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strconv"
	"time"

	"github.com/alicebob/miniredis/v2"

	"github.com/batchkv/go-batchkv"
)

type StartOpts struct {
	// Addr is the listen address of the server. Empty picks a free
	// local port.
	Addr string

	// User is a username required on connect. Empty keeps the default
	// user without authentication.
	User string

	// Pass is a password for specified User.
	Pass string

	// ConnectRetry is a count of attempts to ping the server.
	ConnectRetry uint

	// RetryTimeout is a time between ping retries.
	RetryTimeout time.Duration
}

// ServerInstance is an in-process store started for tests.
type ServerInstance struct {
	// Server gives direct access to the stored data.
	Server *miniredis.Miniredis

	// Opts for restarting the instance.
	Opts StartOpts
}

func isReady(cfg batchkv.ConnectionConfig) error {
	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()

	conn, err := batchkv.Connect(ctx, cfg)
	if err != nil {
		return err
	}
	if conn == nil {
		return errors.New("Conn is nil after connect")
	}
	defer conn.Close()

	reply, err := conn.Ping(ctx)
	if err != nil {
		return err
	}
	if reply != "PONG" {
		return fmt.Errorf("unexpected ping reply %q", reply)
	}
	return nil
}

// StartServer starts a server for tests with specified parameters
// (refer to StartOpts). It must be stopped with StopServer.
func StartServer(startOpts StartOpts) (*ServerInstance, error) {
	srv := miniredis.NewMiniRedis()
	if startOpts.User != "" {
		srv.RequireUserAuth(startOpts.User, startOpts.Pass)
	} else if startOpts.Pass != "" {
		srv.RequireAuth(startOpts.Pass)
	}

	var err error
	if startOpts.Addr != "" {
		err = srv.StartAddr(startOpts.Addr)
	} else {
		err = srv.Start()
	}
	if err != nil {
		return nil, err
	}

	inst := &ServerInstance{Server: srv, Opts: startOpts}

	var i uint
	for i = 0; i <= startOpts.ConnectRetry; i++ {
		err = isReady(inst.ConnConfig())

		// Both connect and ping is ok.
		if err == nil {
			break
		}

		if i != startOpts.ConnectRetry {
			time.Sleep(startOpts.RetryTimeout)
		}
	}
	if err != nil {
		srv.Close()
		return nil, err
	}
	return inst, nil
}

// RestartServer restarts a server stopped with StopServer on the same
// address. Stored data survives the restart.
func RestartServer(inst *ServerInstance) error {
	if err := inst.Server.Restart(); err != nil {
		return err
	}
	return isReady(inst.ConnConfig())
}

// StopServer stops a server started with StartServer.
func StopServer(inst *ServerInstance) {
	if inst != nil && inst.Server != nil {
		inst.Server.Close()
	}
}

// Addr returns the "host:port" the server listens on.
func (inst *ServerInstance) Addr() string {
	return inst.Server.Addr()
}

// ConnConfig returns the connection config to reach the server with the
// credentials from StartOpts.
func (inst *ServerInstance) ConnConfig() batchkv.ConnectionConfig {
	port, err := strconv.Atoi(inst.Server.Port())
	if err != nil {
		log.Fatalf("Failed to parse server port %q: %s", inst.Server.Port(), err)
	}
	return batchkv.ConnectionConfig{
		Host:        inst.Server.Host(),
		Port:        port,
		User:        inst.Opts.User,
		Pass:        inst.Opts.Pass,
		DialTimeout: 500 * time.Millisecond,
	}
}

// FlushAll drops every stored key.
func (inst *ServerInstance) FlushAll() {
	inst.Server.FlushAll()
}
