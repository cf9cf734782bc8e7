// Package ws 將 gorilla/websocket 連接接入會話協調器。
package ws

import (
	"context"
	"log/slog"
	"net/http"
	"slices"
	"strconv"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/koopa0/system-design/game-relay/internal/room"
	"github.com/koopa0/system-design/game-relay/internal/session"
)

// Coordinator 會話協調器介面
type Coordinator interface {
	Join(conn room.Conn, req session.JoinRequest) (*session.Session, error)
	Relay(s *session.Session, msg []byte)
	Leave(s *session.Session)
}

// Hub WebSocket 入口
//
// 每條連接兩個 goroutine：
//   - writePump：唯一寫入者，負責 Ping 與關閉幀
//   - readPump：依到達順序處理入站訊息，結束時觸發離開
type Hub struct {
	coordinator Coordinator
	settings    Settings
	logger      *slog.Logger
	upgrader    websocket.Upgrader
	wg          sync.WaitGroup
}

// NewHub 創建 Hub，allowedOrigins 為空時接受任何來源
func NewHub(coordinator Coordinator, settings Settings, allowedOrigins []string, logger *slog.Logger) *Hub {
	return &Hub{
		coordinator: coordinator,
		settings:    settings,
		logger:      logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				if len(allowedOrigins) == 0 {
					return true
				}
				return slices.Contains(allowedOrigins, r.Header.Get("Origin"))
			},
		},
	}
}

// ServeWS 升級連接並執行加入流程
//
// 參數：roomId / room_id、playerId / player_id、isHost=true 或 role=host。
// 參數錯誤也先完成升級，再以關閉碼拒絕，讓客戶端拿到可區分的原因。
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	req := parseJoinRequest(r)

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade 已回寫 HTTP 錯誤
		h.logger.Error("升級 WebSocket 失敗", "error", err)
		return
	}

	c := newConnection(conn, h.settings, h.logger)

	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		c.writePump()
	}()

	s, err := h.coordinator.Join(c, req)
	if err != nil {
		// 協調器已呼叫 Close，writePump 會送出關閉幀
		return
	}

	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		c.readPump(func(msg []byte) {
			h.coordinator.Relay(s, msg)
		})
		h.coordinator.Leave(s)
		h.logger.Debug("WebSocket 連接結束",
			"room_id", s.RoomID(),
			"player_id", s.PlayerID(),
			"conn_id", c.ID())
	}()
}

// Wait 等待所有連接 goroutine 結束（停機時在關閉房間之後呼叫）
//
// 關閉房間之後才完成升級的連接可能仍在座，ctx 到期時返回 ctx.Err()。
func (h *Hub) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		h.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func parseJoinRequest(r *http.Request) session.JoinRequest {
	q := r.URL.Query()

	req := session.JoinRequest{
		RoomID:   firstNonEmpty(q.Get("roomId"), q.Get("room_id"), r.PathValue("room_id")),
		PlayerID: firstNonEmpty(q.Get("playerId"), q.Get("player_id")),
	}

	if v := firstNonEmpty(q.Get("isHost"), q.Get("is_host")); v != "" {
		req.IsHost, _ = strconv.ParseBool(v)
	} else {
		req.IsHost = q.Get("role") == "host"
	}

	return req
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
