package pinledger

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/go-redis/redis/v8"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"
)

type Config struct {
	HTTP struct {
		Addr string `yaml:"addr"`
	} `yaml:"http"`
	Log     LogConfig     `yaml:"log"`
	Storage StorageConfig `yaml:"storage"`
	Lock    LockConfig    `yaml:"lock"`
	Policy  Policy        `yaml:"policy"`
	Drafts  struct {
		TTL time.Duration `yaml:"ttl"`
	} `yaml:"drafts"`
	Limits  LimitsConfig  `yaml:"limits"`
	Breaker BreakerConfig `yaml:"breaker"`
	// NodeID seeds the snowflake node used for draft IDs and lock tokens.
	NodeID int64 `yaml:"node_id"`
}

type StorageConfig struct {
	// Backend is one of "file", "postgres" or "leveldb".
	Backend string `yaml:"backend"`
	// Key names the document, e.g. the file name for the file backend.
	Key         string `yaml:"key"`
	Dir         string `yaml:"dir"`
	ConnStr     string `yaml:"conn_str"`
	LevelDBPath string `yaml:"leveldb_path"`
}

type LockConfig struct {
	// Backend is "local" or "redis".
	Backend       string        `yaml:"backend"`
	RedisAddr     string        `yaml:"redis_addr"`
	RedisPassword string        `yaml:"redis_password"`
	RedisDB       int           `yaml:"redis_db"`
	Key           string        `yaml:"key"`
	TTL           time.Duration `yaml:"ttl"`
	RetryInterval time.Duration `yaml:"retry_interval"`
	MaxRetries    int           `yaml:"max_retries"`
}

type LimitsConfig struct {
	InFlight       int64         `yaml:"in_flight"`
	AcquireTimeout time.Duration `yaml:"acquire_timeout"`
}

type BreakerConfig struct {
	MaxRequests         uint32        `yaml:"max_requests"`
	Interval            time.Duration `yaml:"interval"`
	Timeout             time.Duration `yaml:"timeout"`
	ConsecutiveFailures uint32        `yaml:"consecutive_failures"`
}

func DefaultConfig() Config {
	var cfg Config
	cfg.HTTP.Addr = ":3000"
	cfg.Log.Level = "info"
	cfg.Log.MaxSizeMB = 100
	cfg.Log.MaxBackups = 14
	cfg.Log.MaxAgeDays = 14
	cfg.Storage = StorageConfig{
		Backend: "file",
		Key:     "data.json",
		Dir:     ".",
	}
	cfg.Lock = LockConfig{
		Backend:       "local",
		Key:           "pinledger:lock:data.json",
		TTL:           10 * time.Second,
		RetryInterval: 50 * time.Millisecond,
		MaxRetries:    100,
	}
	cfg.Policy = DefaultPolicy()
	cfg.Drafts.TTL = 10 * time.Minute
	cfg.Limits = LimitsConfig{
		InFlight:       32,
		AcquireTimeout: 2 * time.Second,
	}
	cfg.Breaker = BreakerConfig{
		MaxRequests:         1,
		Interval:            time.Minute,
		Timeout:             30 * time.Second,
		ConsecutiveFailures: 5,
	}
	cfg.NodeID = 1
	return cfg
}

// LoadConfig reads a YAML file over DefaultConfig, so omitted keys keep their
// defaults.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	f, err := os.Open(path)
	if err != nil {
		return cfg, err
	}
	defer f.Close()

	if err = yaml.NewDecoder(f).Decode(&cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// OpenBlobStore builds the configured backend. The returned func releases it.
func OpenBlobStore(cfg StorageConfig, log *zerolog.Logger) (BlobStore, func(), error) {
	switch cfg.Backend {
	case "", "file":
		fb, err := NewFileBlobs(cfg.Dir)
		if err != nil {
			return nil, nil, err
		}
		return fb, func() {}, nil
	case "postgres":
		pg, err := NewPostgresBlobs(cfg.ConnStr, log)
		if err != nil {
			return nil, nil, err
		}
		return pg, pg.Close, nil
	case "leveldb":
		lb, err := NewLevelBlobs(cfg.LevelDBPath)
		if err != nil {
			return nil, nil, err
		}
		return lb, func() {
			if err := lb.Close(); err != nil {
				nopIfNil(log).Err(err).Msg("error closing leveldb")
			}
		}, nil
	default:
		return nil, nil, fmt.Errorf("unknown storage backend %q", cfg.Backend)
	}
}

// OpenLocker builds the configured store lock. The returned func releases any
// client it opened.
func OpenLocker(cfg LockConfig, node *snowflake.Node, log *zerolog.Logger) (Locker, func(), error) {
	switch cfg.Backend {
	case "", "local":
		return NewLocalLocker(), func() {}, nil
	case "redis":
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := client.Ping(ctx).Err(); err != nil {
			client.Close()
			return nil, nil, err
		}
		rl := NewRedisLocker(client, node, RedisLockOptions{
			Key:           cfg.Key,
			TTL:           cfg.TTL,
			RetryInterval: cfg.RetryInterval,
			MaxRetries:    cfg.MaxRetries,
		}, log)
		return rl, func() { client.Close() }, nil
	default:
		return nil, nil, fmt.Errorf("unknown lock backend %q", cfg.Backend)
	}
}
