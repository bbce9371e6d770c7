// Package config loads bench settings from a YAML file, a .env file and
// REDIS_BENCH_* environment variables, in increasing order of precedence.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/batchkv/go-batchkv"
	"github.com/batchkv/go-batchkv/client"
)

const (
	DefaultServer           = "127.0.0.1:6379"
	DefaultTotalItems       = 100000
	DefaultBatchSize        = 10000
	DefaultWriteParallelism = 10
	DefaultPoolSize         = 100
	DefaultTTL              = 300 * time.Second
	DefaultKeySize          = 80
	DefaultValueSize        = 20
)

const envPrefix = "REDIS_BENCH_"

// SizeBytes reads "64B", "1KiB" or a plain integer.
type SizeBytes int64

func (s *SizeBytes) UnmarshalYAML(node *yaml.Node) error {
	v, err := parseSize(node.Value)
	if err != nil {
		return err
	}
	*s = v
	return nil
}

func parseSize(raw string) (SizeBytes, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, nil
	}
	if i, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return SizeBytes(i), nil
	}
	v, err := humanize.ParseBytes(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid size value: %q", raw)
	}
	return SizeBytes(v), nil
}

// Duration reads "90s", "5m" or plain seconds.
type Duration time.Duration

func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	v, err := parseDuration(node.Value)
	if err != nil {
		return err
	}
	*d = v
	return nil
}

func parseDuration(raw string) (Duration, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, nil
	}
	if secs, err := strconv.ParseFloat(raw, 64); err == nil {
		return Duration(time.Duration(secs * float64(time.Second))), nil
	}
	td, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid duration value: %q", raw)
	}
	return Duration(td), nil
}

type Config struct {
	Server   string `yaml:"server"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Protocol int    `yaml:"protocol"`

	// Client is "pooled" or "unpooled".
	Client           string `yaml:"client"`
	BatchSize        int    `yaml:"batch_size"`
	WriteParallelism int    `yaml:"write_parallelism"`
	PoolSize         int    `yaml:"pool_size"`

	TotalItems int       `yaml:"total_items"`
	TTL        Duration  `yaml:"ttl"`
	KeySize    SizeBytes `yaml:"key_size"`
	ValueSize  SizeBytes `yaml:"value_size"`
}

func Default() *Config {
	return &Config{
		Server:           DefaultServer,
		Client:           client.KindPooled.String(),
		BatchSize:        DefaultBatchSize,
		WriteParallelism: DefaultWriteParallelism,
		PoolSize:         DefaultPoolSize,
		TotalItems:       DefaultTotalItems,
		TTL:              Duration(DefaultTTL),
		KeySize:          DefaultKeySize,
		ValueSize:        DefaultValueSize,
	}
}

// Load reads path over the defaults. A missing file yields the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, errors.Wrapf(err, "read config %s", path)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, errors.Wrapf(err, "parse config %s", path)
	}
	return cfg, nil
}

// LoadEnvFile loads a .env file into the process environment without
// overriding variables already set. A missing file is not an error.
func LoadEnvFile(path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}
	return errors.Wrapf(godotenv.Load(path), "load env file %s", path)
}

// ApplyEnv overrides cfg with the REDIS_BENCH_* variables found through
// getenv. Empty variables are ignored.
func (cfg *Config) ApplyEnv(getenv func(string) string) error {
	str := func(name string, dst *string) {
		if v := getenv(envPrefix + name); v != "" {
			*dst = v
		}
	}
	num := func(name string, dst *int) error {
		v := getenv(envPrefix + name)
		if v == "" {
			return nil
		}
		i, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return errors.Wrapf(err, "%s%s", envPrefix, name)
		}
		*dst = i
		return nil
	}
	size := func(name string, dst *SizeBytes) error {
		v := getenv(envPrefix + name)
		if v == "" {
			return nil
		}
		s, err := parseSize(v)
		if err != nil {
			return errors.Wrapf(err, "%s%s", envPrefix, name)
		}
		*dst = s
		return nil
	}

	str("SERVER", &cfg.Server)
	str("USERNAME", &cfg.Username)
	str("PASSWORD", &cfg.Password)
	str("CLIENT", &cfg.Client)

	for name, dst := range map[string]*int{
		"DB":                &cfg.DB,
		"PROTOCOL":          &cfg.Protocol,
		"TOTAL_ITEMS":       &cfg.TotalItems,
		"BATCH_SIZE":        &cfg.BatchSize,
		"WRITE_PARALLELISM": &cfg.WriteParallelism,
		"POOL_SIZE":         &cfg.PoolSize,
	} {
		if err := num(name, dst); err != nil {
			return err
		}
	}

	var ttlSecs int
	if err := num("TTL_SECS", &ttlSecs); err != nil {
		return err
	}
	if getenv(envPrefix+"TTL_SECS") != "" {
		cfg.TTL = Duration(time.Duration(ttlSecs) * time.Second)
	}

	if err := size("KEY_SIZE", &cfg.KeySize); err != nil {
		return err
	}
	return size("VALUE_SIZE", &cfg.ValueSize)
}

// Resolve is the CLI load order: .env, then the YAML file, then the
// process environment.
func Resolve(path string) (*Config, error) {
	if err := LoadEnvFile(".env"); err != nil {
		return nil, err
	}
	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}
	if err := cfg.ApplyEnv(os.Getenv); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Connection returns the connection settings for Server.
func (cfg *Config) Connection() (batchkv.ConnectionConfig, error) {
	conn, err := batchkv.ParseAddr(cfg.Server)
	if err != nil {
		return batchkv.ConnectionConfig{}, err
	}
	conn.User = cfg.Username
	conn.Pass = cfg.Password
	conn.DB = cfg.DB
	conn.Protocol = cfg.Protocol
	return conn, nil
}

func (cfg *Config) Pool() batchkv.PoolConfig {
	return batchkv.PoolConfig{
		BatchSize:        cfg.BatchSize,
		WriteParallelism: cfg.WriteParallelism,
		PoolSize:         cfg.PoolSize,
	}
}

// ClientConfig assembles everything client.New needs apart from the
// logger and metrics.
func (cfg *Config) ClientConfig() (client.Config, error) {
	kind, err := client.ParseKind(cfg.Client)
	if err != nil {
		return client.Config{}, err
	}
	conn, err := cfg.Connection()
	if err != nil {
		return client.Config{}, err
	}
	return client.Config{Kind: kind, Conn: conn, Pool: cfg.Pool()}, nil
}

func (cfg *Config) TTLDuration() time.Duration {
	return time.Duration(cfg.TTL)
}
