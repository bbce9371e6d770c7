package batchkv

import (
	"log/slog"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

// ConnectionConfig describes how to reach the store. It is a value type and
// every connection opened from it shares the same copy.
type ConnectionConfig struct {
	Host string
	Port int
	// DB is the logical database index selected after connect.
	DB   int
	User string
	Pass string
	// Protocol is the RESP version, 2 or 3. Zero means 3.
	Protocol int

	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// ParseAddr builds a ConnectionConfig from "host:port". A bare host
// gets DefaultPort.
func ParseAddr(server string) (ConnectionConfig, error) {
	server = strings.TrimSpace(server)
	if server == "" {
		return ConnectionConfig{}, ErrEmptyAddr
	}

	host, portStr, err := net.SplitHostPort(server)
	if err != nil {
		// No port in the address.
		return ConnectionConfig{Host: server, Port: DefaultPort}, nil
	}

	port, err := strconv.Atoi(portStr)
	if err != nil || port <= 0 || port > 65535 {
		return ConnectionConfig{}, errors.Errorf("invalid port %q in address %q", portStr, server)
	}

	return ConnectionConfig{Host: host, Port: port}, nil
}

// Addr returns the "host:port" form of the target.
func (cfg ConnectionConfig) Addr() string {
	port := cfg.Port
	if port == 0 {
		port = DefaultPort
	}
	return net.JoinHostPort(cfg.Host, strconv.Itoa(port))
}

func (cfg ConnectionConfig) protocol() int {
	if cfg.Protocol == 0 {
		return 3
	}
	return cfg.Protocol
}

// redisOptions maps the config onto a client that owns exactly one
// physical connection.
func (cfg ConnectionConfig) redisOptions() *redis.Options {
	return &redis.Options{
		Addr:         cfg.Addr(),
		Username:     cfg.User,
		Password:     cfg.Pass,
		DB:           cfg.DB,
		Protocol:     cfg.protocol(),
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		PoolSize:     1,
		MinIdleConns: 1,
		MaxRetries:   -1,
	}
}

// PoolConfig controls chunking and write concurrency.
type PoolConfig struct {
	// BatchSize caps the number of items in one pipeline.
	BatchSize int
	// WriteParallelism is the maximum number of chunks in flight.
	WriteParallelism int
	// PoolSize is the number of pooled connections. It is raised to
	// WriteParallelism when smaller.
	PoolSize int
}

// Normalize returns the effective config. Out of range values are
// corrected to the nearest valid one rather than rejected.
func (cfg PoolConfig) Normalize() PoolConfig {
	if cfg.BatchSize < 1 {
		cfg.BatchSize = 1
	}
	if cfg.WriteParallelism < 1 {
		cfg.WriteParallelism = 1
	}
	if cfg.PoolSize < cfg.WriteParallelism {
		cfg.PoolSize = cfg.WriteParallelism
	}
	return cfg
}

// Opts holds optional collaborators shared by the clients.
type Opts struct {
	// Logger receives pipeline progress and failures. Nil means
	// slog.Default().
	Logger *slog.Logger
}

func (opts Opts) logger() *slog.Logger {
	if opts.Logger == nil {
		return slog.Default()
	}
	return opts.Logger
}
