package events_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/koopa0/system-design/game-relay/internal/events"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcredis "github.com/testcontainers/testcontainers-go/modules/redis"
)

// TestRedisPublisher_Integration 以 Redis 容器驗證 PUBLISH 頻道與內容
func TestRedisPublisher_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping container test in short mode")
	}

	ctx := context.Background()

	container, err := tcredis.Run(ctx, "redis:7-alpine")
	require.NoError(t, err)
	t.Cleanup(func() {
		if err := testcontainers.TerminateContainer(container); err != nil {
			t.Logf("failed to terminate redis container: %v", err)
		}
	})

	endpoint, err := container.Endpoint(ctx, "")
	require.NoError(t, err)

	subscriber := redis.NewClient(&redis.Options{Addr: endpoint})
	defer subscriber.Close()

	sub := subscriber.Subscribe(ctx, "relay:room.expired")
	defer sub.Close()
	_, err = sub.Receive(ctx) // 等待訂閱確認
	require.NoError(t, err)

	pub := events.NewRedisPublisher(redis.NewClient(&redis.Options{Addr: endpoint}), "relay")
	defer pub.Close()

	require.NoError(t, pub.Publish(ctx, events.Event{
		Type:   events.TypeRoomExpired,
		RoomID: "ABC123",
		At:     time.Now(),
	}))

	select {
	case msg := <-sub.Channel():
		var ev events.Event
		require.NoError(t, json.Unmarshal([]byte(msg.Payload), &ev))
		assert.Equal(t, "relay:room.expired", msg.Channel)
		assert.Equal(t, "ABC123", ev.RoomID)
	case <-time.After(5 * time.Second):
		t.Fatal("no message received")
	}
}
