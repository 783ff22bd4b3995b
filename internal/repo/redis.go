package repo

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"MsgVault/config"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

var Redis *redis.Client

var ErrLockBusy = errors.New("lock is busy")

const shareKeyPrefix = "share:"

type RedisLock struct {
	rdb   *redis.Client
	key   string
	token string
	ttl   time.Duration
}

// InitRedis initializes the Redis client.
func InitRedis(ctx context.Context) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%s", config.AppConfig.RedisHost, config.AppConfig.RedisPort),
		Password: config.AppConfig.RedisPassword,
		DB:       config.AppConfig.RedisDB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("init redis: %w", err)
	}
	logrus.Info("init redis success")
	Redis = client
	return client, nil
}

// EnableKeyspaceNotifications enables expired-key events.
func EnableKeyspaceNotifications(ctx context.Context, rdb *redis.Client) error {
	if rdb == nil {
		return errors.New("redis not initialized")
	}
	return rdb.ConfigSet(ctx, "notify-keyspace-events", "Ex").Err()
}

// NewRedisLock creates a Redis lock helper.
func NewRedisLock(rdb *redis.Client, key string, ttl time.Duration) *RedisLock {
	return &RedisLock{
		rdb: rdb,
		key: key,
		ttl: ttl,
	}
}

// Lock tries once to acquire the lock.
func (l *RedisLock) Lock(ctx context.Context) error {
	token := uuid.NewString()
	ok, err := l.rdb.SetNX(ctx, l.key, token, l.ttl).Result()
	if err != nil {
		return err
	}
	if !ok {
		return ErrLockBusy
	}
	l.token = token
	return nil
}

// LockWait polls until the lock is acquired or ctx is done.
func (l *RedisLock) LockWait(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		err := l.Lock(ctx)
		if !errors.Is(err, ErrLockBusy) {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

var unlockScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

var refreshScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0
`)

// keepAlive extends the TTL every ttl/3 until stop is closed or the lock is lost.
func (l *RedisLock) keepAlive(token string, stop <-chan struct{}) {
	ticker := time.NewTicker(l.ttl / 3)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), l.ttl/3)
			n, err := refreshScript.Run(ctx, l.rdb, []string{l.key}, token, l.ttl.Milliseconds()).Int()
			cancel()
			if err != nil {
				logrus.WithField("key", l.key).WithError(err).Warn("redis lock refresh failed")
				continue
			}
			if n == 0 {
				logrus.WithField("key", l.key).Warn("redis lock lost before release")
				return
			}
		}
	}
}

// Unlock releases the lock if this holder still owns it.
func (l *RedisLock) Unlock(ctx context.Context) error {
	if l.token == "" {
		return nil
	}
	_, err := unlockScript.Run(
		ctx,
		l.rdb,
		[]string{l.key},
		l.token,
	).Result()
	l.token = ""
	return err
}

// RedisLocker hands out RedisLocks for named keys.
type RedisLocker struct {
	rdb      *redis.Client
	ttl      time.Duration
	interval time.Duration
}

func NewRedisLocker(rdb *redis.Client, ttl time.Duration) *RedisLocker {
	if ttl < time.Second {
		ttl = time.Second
	}
	return &RedisLocker{rdb: rdb, ttl: ttl, interval: 50 * time.Millisecond}
}

// Acquire blocks until key is held; the returned func releases it. The lock is
// refreshed while held, so ttl only bounds how long a crashed holder blocks others.
func (l *RedisLocker) Acquire(ctx context.Context, key string) (func(), error) {
	lock := NewRedisLock(l.rdb, "lock:"+key, l.ttl)
	if err := lock.LockWait(ctx, l.interval); err != nil {
		return nil, err
	}
	stop := make(chan struct{})
	go lock.keepAlive(lock.token, stop)

	var once sync.Once
	return func() {
		once.Do(func() {
			close(stop)
			if err := lock.Unlock(context.Background()); err != nil {
				logrus.WithField("key", key).WithError(err).Warn("redis unlock failed")
			}
		})
	}, nil
}

// ShareExpiry schedules share expiry through TTL keys picked up by ListenRedisExpired.
type ShareExpiry struct {
	rdb *redis.Client
}

func NewShareExpiry(rdb *redis.Client) *ShareExpiry {
	return &ShareExpiry{rdb: rdb}
}

// Schedule sets a TTL key whose expiry clears the share token.
func (s *ShareExpiry) Schedule(ctx context.Context, token string, ttl time.Duration) error {
	return s.rdb.Set(ctx, shareKeyPrefix+token, 1, ttl).Err()
}

// ListenRedisExpired listens for expired-key events until ctx is done.
func ListenRedisExpired(ctx context.Context, rdb *redis.Client, files *FileRepo, ready chan<- struct{}) error {
	channel := fmt.Sprintf("__keyevent@%d__:expired", rdb.Options().DB)
	pubsub := rdb.Subscribe(ctx, channel)
	defer pubsub.Close()
	if _, err := pubsub.Receive(ctx); err != nil {
		return fmt.Errorf("subscribe %s: %w", channel, err)
	}
	if ready != nil {
		close(ready)
	}
	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			handleExpiredKey(ctx, files, msg.Payload)
		}
	}
}

// handleExpiredKey dispatches expired-key handlers.
func handleExpiredKey(ctx context.Context, files *FileRepo, key string) {
	switch {
	case strings.HasPrefix(key, shareKeyPrefix):
		handleShareExpired(ctx, files, strings.TrimPrefix(key, shareKeyPrefix))
	default:
	}
}

func handleShareExpired(ctx context.Context, files *FileRepo, token string) {
	n, err := files.ClearShare(ctx, token)
	entry := logrus.WithField("share_token", token)
	if err != nil {
		entry.WithError(err).Warn("clear expired share failed")
		return
	}
	entry.WithField("files", n).Info("share expired")
}
