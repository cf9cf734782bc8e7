package events

import (
	"context"
	"fmt"

	apperrors "github.com/koopa0/system-design/game-relay/pkg/errors"
	"github.com/redis/go-redis/v9"
)

// RedisPublisher 以 Redis PUBLISH 發布事件，頻道為 <prefix>:<type>
type RedisPublisher struct {
	client *redis.Client
	prefix string
}

// NewRedisPublisher 以現有客戶端建立發布者，Close 時一併關閉客戶端
func NewRedisPublisher(client *redis.Client, prefix string) *RedisPublisher {
	return &RedisPublisher{client: client, prefix: prefix}
}

// Channel 事件頻道
func (p *RedisPublisher) Channel(eventType string) string {
	if p.prefix == "" {
		return eventType
	}
	return p.prefix + ":" + eventType
}

// Publish 發布事件
func (p *RedisPublisher) Publish(ctx context.Context, ev Event) error {
	data, err := ev.Marshal()
	if err != nil {
		return fmt.Errorf("序列化事件失敗: %w", err)
	}

	if err := p.client.Publish(ctx, p.Channel(ev.Type), data).Err(); err != nil {
		return apperrors.Wrap(err, apperrors.ErrCodeUnavailable, "發布 Redis 事件失敗")
	}
	return nil
}

// Close 關閉客戶端
func (p *RedisPublisher) Close() error {
	return p.client.Close()
}
