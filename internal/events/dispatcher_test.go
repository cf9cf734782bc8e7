package events_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/koopa0/system-design/game-relay/internal/config"
	"github.com/koopa0/system-design/game-relay/internal/events"
	"github.com/koopa0/system-design/game-relay/internal/testutils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recordingPublisher 記錄所有發布的事件
type recordingPublisher struct {
	mu     sync.Mutex
	events []events.Event
	block  chan struct{}
	err    error
	closed bool
}

func (p *recordingPublisher) Publish(ctx context.Context, ev events.Event) error {
	if p.block != nil {
		<-p.block
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
	return p.err
}

func (p *recordingPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return nil
}

func (p *recordingPublisher) snapshot() []events.Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]events.Event(nil), p.events...)
}

func TestDispatcher_PublishesInOrder(t *testing.T) {
	pub := &recordingPublisher{}
	d := events.NewDispatcher(pub, 10, testutils.Logger())

	d.Emit(events.Event{Type: events.TypeRoomCreated, RoomID: "ABC123"})
	d.Emit(events.Event{Type: events.TypePlayerJoined, RoomID: "ABC123", PlayerID: "alice", Role: "host", Occupants: 1})
	d.Emit(events.Event{Type: events.TypeRoomExpired, RoomID: "ABC123"})

	require.NoError(t, d.Close())

	got := pub.snapshot()
	require.Len(t, got, 3)
	assert.Equal(t, events.TypeRoomCreated, got[0].Type)
	assert.Equal(t, "alice", got[1].PlayerID)
	assert.Equal(t, events.TypeRoomExpired, got[2].Type)
	assert.False(t, got[0].At.IsZero())
	assert.True(t, pub.closed)
}

func TestDispatcher_ConcurrentEmitCountsEveryEvent(t *testing.T) {
	pub := &recordingPublisher{block: make(chan struct{})}
	d := events.NewDispatcher(pub, 1, testutils.Logger())

	const (
		emitters = 8
		perEmit  = 1000
	)

	var wg sync.WaitGroup
	for range emitters {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range perEmit {
				d.Emit(events.Event{Type: events.TypePlayerJoined, RoomID: "ROOM01"})
			}
		}()
	}
	wg.Wait()

	close(pub.block)
	require.NoError(t, d.Close())

	// 每個事件不是被發布就是被計入丟棄
	assert.Positive(t, d.Dropped())
	assert.Equal(t, int64(emitters*perEmit), d.Dropped()+int64(len(pub.snapshot())))
}

func TestDispatcher_DropsWhenFull(t *testing.T) {
	pub := &recordingPublisher{block: make(chan struct{})}
	d := events.NewDispatcher(pub, 1, testutils.Logger())

	// 第一個被 loop 取走並阻塞，第二個佔滿緩衝，其後全部丟棄
	d.Emit(events.Event{Type: events.TypeRoomCreated, RoomID: "R1"})
	assert.Eventually(t, func() bool {
		d.Emit(events.Event{Type: events.TypeRoomCreated, RoomID: "R2"})
		return d.Dropped() > 0
	}, time.Second, 5*time.Millisecond)

	close(pub.block)
	require.NoError(t, d.Close())
}

func TestDispatcher_PublishErrorIsNotFatal(t *testing.T) {
	pub := &recordingPublisher{err: errors.New("broker down")}
	d := events.NewDispatcher(pub, 10, testutils.Logger())

	d.Emit(events.Event{Type: events.TypePlayerLeft, RoomID: "R1"})
	d.Emit(events.Event{Type: events.TypePlayerLeft, RoomID: "R1"})
	require.NoError(t, d.Close())

	assert.Len(t, pub.snapshot(), 2)
}

func TestDispatcher_EmitAfterClose(t *testing.T) {
	pub := &recordingPublisher{}
	d := events.NewDispatcher(pub, 10, testutils.Logger())
	require.NoError(t, d.Close())
	require.NoError(t, d.Close())

	d.Emit(events.Event{Type: events.TypeRoomCreated, RoomID: "LATE01"})
	assert.Empty(t, pub.snapshot())
}

func TestNewPublisher_Drivers(t *testing.T) {
	pub, err := events.NewPublisher(config.EventsConfig{Driver: "none"})
	require.NoError(t, err)
	assert.IsType(t, events.NopPublisher{}, pub)

	pub, err = events.NewPublisher(config.EventsConfig{Driver: "redis", RedisAddr: "localhost:0", Prefix: "relay"})
	require.NoError(t, err)
	redisPub, ok := pub.(*events.RedisPublisher)
	require.True(t, ok)
	assert.Equal(t, "relay:room.created", redisPub.Channel(events.TypeRoomCreated))
	require.NoError(t, pub.Close())
}

func TestNewPublisher_NATSUnreachable(t *testing.T) {
	_, err := events.NewPublisher(config.EventsConfig{Driver: "nats", NATSUrl: "nats://127.0.0.1:1", Prefix: "relay"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "SERVICE_UNAVAILABLE")
}

func TestEvent_Marshal(t *testing.T) {
	at := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	data, err := events.Event{Type: events.TypeRoomExpired, RoomID: "ABC123", At: at}.Marshal()
	require.NoError(t, err)

	assert.JSONEq(t, `{"type":"room.expired","room_id":"ABC123","occupants":0,"at":"2025-01-02T03:04:05Z"}`, string(data))
}
