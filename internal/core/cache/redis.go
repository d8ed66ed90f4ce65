package cache

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

var ErrLockTimeout = errors.New("lock: timed out waiting for key")

// Locker 按 key 互斥；返回的 unlock 幂等
type Locker interface {
	Lock(ctx context.Context, key string) (unlock func(), err error)
}

func NewRedis(addr, pass string, db int) *redis.Client {
	return redis.NewClient(&redis.Options{Addr: addr, Password: pass, DB: db})
}

// 只删除自己持有的锁
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisLocker 多实例部署下的分布式锁（SET NX PX）
type RedisLocker struct {
	RDB    *redis.Client
	Prefix string
	TTL    time.Duration // 持锁上限，防止进程崩溃后死锁
	Retry  time.Duration // 抢锁轮询间隔
	Wait   time.Duration // 最长等待
}

func (l *RedisLocker) Lock(ctx context.Context, key string) (func(), error) {
	ttl, retry, wait := l.TTL, l.Retry, l.Wait
	if ttl <= 0 {
		ttl = 10 * time.Second
	}
	if retry <= 0 {
		retry = 50 * time.Millisecond
	}
	if wait <= 0 {
		wait = 5 * time.Second
	}
	k := l.Prefix + key
	token := uuid.NewString()

	ctx, cancel := context.WithTimeout(ctx, wait)
	defer cancel()
	for {
		ok, err := l.RDB.SetNX(ctx, k, token, ttl).Result()
		if err != nil {
			if errors.Is(err, context.DeadlineExceeded) {
				return nil, ErrLockTimeout
			}
			return nil, err
		}
		if ok {
			break
		}
		select {
		case <-ctx.Done():
			return nil, ErrLockTimeout
		case <-time.After(retry):
		}
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			// 调用方 ctx 可能已取消，释放用独立 ctx
			rctx, rcancel := context.WithTimeout(context.Background(), time.Second)
			defer rcancel()
			_ = releaseScript.Run(rctx, l.RDB, []string{k}, token).Err()
		})
	}, nil
}
