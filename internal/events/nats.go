package events

import (
	"context"
	"fmt"
	"time"

	apperrors "github.com/koopa0/system-design/game-relay/pkg/errors"
	"github.com/nats-io/nats.go"
)

// NATSPublisher 以 core NATS 發布事件，主題為 <prefix>.<type>
//
// 例如 relay.room.expired。訂閱 relay.> 可收到全部事件。
type NATSPublisher struct {
	conn   *nats.Conn
	prefix string
}

// NewNATSPublisher 連接 NATS
//
// 選項說明：
//   - MaxReconnects(-1)：無限重連
//   - ReconnectWait(1s)：重連間隔
//   - PingInterval(20s)：心跳檢測
func NewNATSPublisher(url, prefix string) (*NATSPublisher, error) {
	conn, err := nats.Connect(
		url,
		nats.Name("game-relay"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(time.Second),
		nats.PingInterval(20*time.Second),
	)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeUnavailable, "連接 NATS 失敗")
	}

	return &NATSPublisher{conn: conn, prefix: prefix}, nil
}

// Subject 事件主題
func (p *NATSPublisher) Subject(eventType string) string {
	return natsSubject(p.prefix, eventType)
}

// Publish 發布事件
func (p *NATSPublisher) Publish(ctx context.Context, ev Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	data, err := ev.Marshal()
	if err != nil {
		return fmt.Errorf("序列化事件失敗: %w", err)
	}

	if err := p.conn.Publish(p.Subject(ev.Type), data); err != nil {
		return apperrors.Wrap(err, apperrors.ErrCodeUnavailable, "發布 NATS 事件失敗")
	}
	return nil
}

// Close 送出緩衝中的訊息後關閉連接
func (p *NATSPublisher) Close() error {
	return p.conn.Drain()
}

func natsSubject(prefix, eventType string) string {
	if prefix == "" {
		return eventType
	}
	return prefix + "." + eventType
}
