// Package events 發布房間生命週期事件（建立、入座、離開、回收）。
//
// 事件只用於觀測（審計、統計、外部通知），不是共享房間表：
// 發布失敗只記錄日誌，不影響任何連接。
package events

import (
	"context"
	"encoding/json"
	"time"
)

// 事件類型
const (
	TypeRoomCreated  = "room.created"
	TypeRoomExpired  = "room.expired"
	TypePlayerJoined = "player.joined"
	TypePlayerLeft   = "player.left"
)

// Event 生命週期事件
type Event struct {
	Type      string    `json:"type"`
	RoomID    string    `json:"room_id"`
	PlayerID  string    `json:"player_id,omitempty"`
	Role      string    `json:"role,omitempty"`
	Occupants int       `json:"occupants"`
	At        time.Time `json:"at"`
}

// Marshal 序列化為 JSON
func (e Event) Marshal() ([]byte, error) {
	return json.Marshal(e)
}

// Publisher 事件發布後端
type Publisher interface {
	Publish(ctx context.Context, ev Event) error
	Close() error
}

// NopPublisher 丟棄所有事件
type NopPublisher struct{}

// Publish 不做任何事
func (NopPublisher) Publish(context.Context, Event) error { return nil }

// Close 不做任何事
func (NopPublisher) Close() error { return nil }
