package pinledger

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/go-redis/redis/v8"
	"github.com/rs/zerolog"
	"golang.org/x/sync/semaphore"
)

//go:generate mockgen -source=lock.go -destination=mocks/lock.go -package=mocks

var ErrLockNotAcquired = errors.New("store lock not acquired")

// Locker serializes load-mutate-save cycles against one document. Without it
// two interleaved interactions lose the first one's write.
type Locker interface {
	Lock(ctx context.Context) (unlock func(), err error)
}

// LocalLocker is enough when a single process owns the document.
type LocalLocker struct {
	sem *semaphore.Weighted
}

var (
	_ Locker = (*LocalLocker)(nil)
	_ Locker = (*RedisLocker)(nil)
)

func NewLocalLocker() *LocalLocker {
	return &LocalLocker{sem: semaphore.NewWeighted(1)}
}

func (l *LocalLocker) Lock(ctx context.Context) (func(), error) {
	if err := l.sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	return func() { l.sem.Release(1) }, nil
}

var redisUnlockScript = redis.NewScript(`
	if redis.call("GET", KEYS[1]) == ARGV[1] then
		return redis.call("DEL", KEYS[1])
	else
		return 0
	end
`)

type RedisLockOptions struct {
	Key           string
	TTL           time.Duration
	RetryInterval time.Duration
	MaxRetries    int
}

// RedisLocker guards a document shared by several processes. The lock value
// is a per-acquisition token so that a holder whose TTL lapsed cannot release
// somebody else's lock.
type RedisLocker struct {
	client *redis.Client
	node   *snowflake.Node
	opts   RedisLockOptions
	log    *zerolog.Logger
}

func NewRedisLocker(client *redis.Client, node *snowflake.Node, opts RedisLockOptions, log *zerolog.Logger) *RedisLocker {
	if opts.MaxRetries < 1 {
		opts.MaxRetries = 1
	}
	return &RedisLocker{
		client: client,
		node:   node,
		opts:   opts,
		log:    nopIfNil(log),
	}
}

func (r *RedisLocker) Lock(ctx context.Context) (func(), error) {
	token := r.node.Generate().String()
	for i := 0; i < r.opts.MaxRetries; i++ {
		ok, err := r.client.SetNX(ctx, r.opts.Key, token, r.opts.TTL).Result()
		if err != nil {
			return nil, err
		}
		if ok {
			return r.unlocker(token), nil
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(r.opts.RetryInterval):
		}
	}
	return nil, ErrLockNotAcquired
}

func (r *RedisLocker) unlocker(token string) func() {
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := redisUnlockScript.Run(ctx, r.client, []string{r.opts.Key}, token).Err(); err != nil {
			r.log.Err(err).Str("key", r.opts.Key).Msg("error releasing store lock")
		}
	}
}
