package notify

import (
	"context"
	"encoding/json"

	"github.com/redis/go-redis/v9"
)

// RedisGateway 投递到 redis 列表，由独立的 mailer worker 消费
type RedisGateway struct {
	RDB *redis.Client
	Key string
}

func (g *RedisGateway) Dispatch(ctx context.Context, n Notification) error {
	b, err := json.Marshal(n)
	if err != nil {
		return err
	}
	return g.RDB.RPush(ctx, g.Key, b).Err()
}
