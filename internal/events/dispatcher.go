package events

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/koopa0/system-design/game-relay/internal/config"
	"github.com/redis/go-redis/v9"
)

// Dispatcher 非同步事件派發
//
// 呼叫端（持有房間鎖的協調器）只做非阻塞入隊；
// 單一 goroutine 依序發布，緩衝區滿時丟棄事件並計數。
type Dispatcher struct {
	pub     Publisher
	logger  *slog.Logger
	ch      chan Event
	timeout time.Duration

	mu      sync.RWMutex
	closed  bool
	dropped atomic.Int64 // Emit 只持讀鎖，多個呼叫端會同時遞增
	wg      sync.WaitGroup
}

// NewDispatcher 創建派發器並啟動發布 goroutine
func NewDispatcher(pub Publisher, buffer int, logger *slog.Logger) *Dispatcher {
	if buffer <= 0 {
		buffer = 100
	}
	d := &Dispatcher{
		pub:     pub,
		logger:  logger,
		ch:      make(chan Event, buffer),
		timeout: 3 * time.Second,
	}

	d.wg.Add(1)
	go d.loop()

	return d
}

// Emit 非阻塞入隊，At 為空時填入當前時間
func (d *Dispatcher) Emit(ev Event) {
	if ev.At.IsZero() {
		ev.At = time.Now()
	}

	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return
	}

	select {
	case d.ch <- ev:
	default:
		d.dropped.Add(1)
		d.logger.Warn("事件緩衝區滿，丟棄事件", "type", ev.Type, "room_id", ev.RoomID)
	}
}

// Dropped 被丟棄的事件數
func (d *Dispatcher) Dropped() int64 {
	return d.dropped.Load()
}

func (d *Dispatcher) loop() {
	defer d.wg.Done()

	for ev := range d.ch {
		ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
		if err := d.pub.Publish(ctx, ev); err != nil {
			d.logger.Error("發布事件失敗",
				"error", err,
				"type", ev.Type,
				"room_id", ev.RoomID)
		}
		cancel()
	}
}

// Close 停止接收新事件，發布完緩衝區後關閉後端
func (d *Dispatcher) Close() error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	close(d.ch)
	d.mu.Unlock()

	d.wg.Wait()
	return d.pub.Close()
}

// NewPublisher 依配置建立發布後端
func NewPublisher(cfg config.EventsConfig) (Publisher, error) {
	switch cfg.Driver {
	case "nats":
		return NewNATSPublisher(cfg.NATSUrl, cfg.Prefix)
	case "redis":
		client := redis.NewClient(&redis.Options{
			Addr:         cfg.RedisAddr,
			DialTimeout:  5 * time.Second,
			ReadTimeout:  3 * time.Second,
			WriteTimeout: 3 * time.Second,
		})
		return NewRedisPublisher(client, cfg.Prefix), nil
	default:
		return NopPublisher{}, nil
	}
}
