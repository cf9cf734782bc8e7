// Package testutils 提供測試用的共用工具
package testutils

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
)

// ErrFakeClosed 對已關閉的 FakeConn 發送
var ErrFakeClosed = errors.New("fake conn closed")

// FakeConn 實作 room.Conn 的記錄型連接
type FakeConn struct {
	id string

	mu       sync.Mutex
	messages [][]byte
	open     bool
	code     int
	reason   string

	CloseCalls atomic.Int32
}

// NewFakeConn 創建在線的 FakeConn
func NewFakeConn(id string) *FakeConn {
	return &FakeConn{id: id, open: true}
}

// ID 連接 ID
func (c *FakeConn) ID() string { return c.id }

// Send 記錄訊息
func (c *FakeConn) Send(msg []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.open {
		return ErrFakeClosed
	}
	cp := make([]byte, len(msg))
	copy(cp, msg)
	c.messages = append(c.messages, cp)
	return nil
}

// Close 記錄關閉碼，只有第一次生效
func (c *FakeConn) Close(code int, reason string) {
	c.CloseCalls.Add(1)
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.open {
		return
	}
	c.open = false
	c.code = code
	c.reason = reason
}

// Drop 模擬傳輸層斷線（不經過 Close）
func (c *FakeConn) Drop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.open = false
}

// IsOpen 是否在線
func (c *FakeConn) IsOpen() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.open
}

// Messages 已收到的原始訊息
func (c *FakeConn) Messages() [][]byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([][]byte, len(c.messages))
	copy(out, c.messages)
	return out
}

// Events 將收到的訊息解析為 map，無法解析的略過
func (c *FakeConn) Events() []map[string]any {
	var events []map[string]any
	for _, msg := range c.Messages() {
		var ev map[string]any
		if err := json.Unmarshal(msg, &ev); err == nil {
			events = append(events, ev)
		}
	}
	return events
}

// EventsOfType 篩選指定 type 的事件
func (c *FakeConn) EventsOfType(typ string) []map[string]any {
	var out []map[string]any
	for _, ev := range c.Events() {
		if ev["type"] == typ {
			out = append(out, ev)
		}
	}
	return out
}

// Reset 清空已收到的訊息
func (c *FakeConn) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.messages = nil
}

// Closed 返回關閉碼與原因
func (c *FakeConn) Closed() (code int, reason string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.code, c.reason
}

// Logger 測試用 logger，只輸出錯誤
func Logger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{
		Level: slog.LevelError,
	}))
}
