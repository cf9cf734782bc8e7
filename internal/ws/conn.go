package ws

import (
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

var (
	// ErrConnClosed 連接已關閉
	ErrConnClosed = errors.New("connection closed")
	// ErrSendBufferFull 發送緩衝區已滿（慢消費者）
	ErrSendBufferFull = errors.New("send buffer full")
)

// Settings 連接參數
type Settings struct {
	SendBuffer     int
	MaxMessageSize int64
	WriteWait      time.Duration
	PingInterval   time.Duration // 必須小於 PongWait
	PongWait       time.Duration
}

// Connection WebSocket 連接，實作 room.Conn
//
// 發送端：Send 只入隊，由 writePump 單一 goroutine 寫出。
// 關閉：Close 立即將 open 置為 false 並通知 writePump，
// writePump 寫完已入隊的訊息後送出關閉幀並關閉底層連接。
type Connection struct {
	id       string
	conn     *websocket.Conn
	send     chan []byte
	done     chan struct{}
	settings Settings
	logger   *slog.Logger

	open      atomic.Bool
	closeOnce sync.Once
	closeCode int
	closeText string
}

func newConnection(conn *websocket.Conn, settings Settings, logger *slog.Logger) *Connection {
	c := &Connection{
		id:       uuid.NewString(),
		conn:     conn,
		send:     make(chan []byte, settings.SendBuffer),
		done:     make(chan struct{}),
		settings: settings,
		logger:   logger,
	}
	c.open.Store(true)
	return c
}

// ID 連接 ID
func (c *Connection) ID() string { return c.id }

// IsOpen 是否在線
func (c *Connection) IsOpen() bool { return c.open.Load() }

// Send 非阻塞入隊
func (c *Connection) Send(msg []byte) error {
	if !c.open.Load() {
		return ErrConnClosed
	}

	select {
	case c.send <- msg:
		return nil
	case <-c.done:
		return ErrConnClosed
	default:
		c.logger.Warn("連接緩衝區滿", "conn_id", c.id)
		return ErrSendBufferFull
	}
}

// Close 以指定關閉碼關閉連接，冪等
func (c *Connection) Close(code int, reason string) {
	c.closeOnce.Do(func() {
		c.closeCode = code
		c.closeText = reason
		c.open.Store(false)
		close(c.done)
	})
}

// markClosed 傳輸層已斷線：同步停止後續發送
func (c *Connection) markClosed() {
	c.Close(websocket.CloseAbnormalClosure, "")
}

// readPump 讀取客戶端訊息，交給 onMessage；返回即代表連接結束
//
// 心跳：PongWait 內沒有收到任何資料（含 Pong）即視為斷線。
func (c *Connection) readPump(onMessage func([]byte)) {
	defer c.markClosed()

	c.conn.SetReadLimit(c.settings.MaxMessageSize)
	if err := c.conn.SetReadDeadline(time.Now().Add(c.settings.PongWait)); err != nil {
		c.logger.Error("設置讀取期限失敗", "error", err, "conn_id", c.id)
	}

	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(c.settings.PongWait))
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err,
				websocket.CloseNormalClosure,
				websocket.CloseGoingAway,
				websocket.CloseNoStatusReceived) {
				c.logger.Warn("WebSocket 讀取錯誤", "error", err, "conn_id", c.id)
			}
			return
		}
		if !c.open.Load() {
			// 已被伺服器關閉，丟棄關閉後到達的訊息
			return
		}
		onMessage(message)
	}
}

// writePump 寫出訊息並定期發送 Ping
func (c *Connection) writePump() {
	ticker := time.NewTicker(c.settings.PingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message := <-c.send:
			if err := c.write(websocket.TextMessage, message); err != nil {
				c.markClosed()
				return
			}

		case <-ticker.C:
			if err := c.write(websocket.PingMessage, nil); err != nil {
				c.markClosed()
				return
			}

		case <-c.done:
			c.flush()
			c.writeClose()
			return
		}
	}
}

// flush 寫出關閉前已入隊的訊息
func (c *Connection) flush() {
	for {
		select {
		case message := <-c.send:
			if err := c.write(websocket.TextMessage, message); err != nil {
				return
			}
		default:
			return
		}
	}
}

// writeClose 送出關閉幀；傳輸層已斷線時略過
func (c *Connection) writeClose() {
	if c.closeCode == websocket.CloseAbnormalClosure {
		return
	}
	deadline := time.Now().Add(c.settings.WriteWait)
	msg := websocket.FormatCloseMessage(c.closeCode, c.closeText)
	// 忽略錯誤（對端可能已斷線）
	_ = c.conn.WriteControl(websocket.CloseMessage, msg, deadline)
}

func (c *Connection) write(messageType int, data []byte) error {
	if err := c.conn.SetWriteDeadline(time.Now().Add(c.settings.WriteWait)); err != nil {
		return err
	}
	return c.conn.WriteMessage(messageType, data)
}
