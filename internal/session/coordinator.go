package session

import (
	"encoding/json"
	"log/slog"
	"time"

	"github.com/koopa0/system-design/game-relay/internal/events"
	"github.com/koopa0/system-design/game-relay/internal/room"
	apperrors "github.com/koopa0/system-design/game-relay/pkg/errors"
	"github.com/koopa0/system-design/game-relay/pkg/ratelimit"
)

// 系統設計問題：
//   連接、訊息、斷線、計時器四種事件並發到達時，如何保證
//   同一角色只有一條在線連接，且每次人數變化都重新排程回收計時器？
//
// 設計方案：
//   - 每條連接一個 Session 狀態機：PendingJoin → Seated → Closed
//   - 所有轉換都在房間鎖內完成（入座、通知對手、重新排程）
//   - 發送給對手只是非阻塞入隊，持鎖期間不做 I/O

// Emitter 生命週期事件出口
type Emitter interface {
	Emit(ev events.Event)
}

// Options 協調器選項
type Options struct {
	// BestEffortTypes 對手不在時靜默丟棄、不回錯誤的訊息類型（如高頻的移動更新）
	BestEffortTypes []string
	// RateCapacity / RateRefill 每條連接的令牌桶，Capacity 為 0 時不限流
	RateCapacity int64
	RateRefill   int64
}

// Coordinator 會話協調器
type Coordinator struct {
	registry   *room.Registry
	expiry     *room.Expiry
	emitter    Emitter
	logger     *slog.Logger
	bestEffort map[string]struct{}
	opts       Options
}

// NewCoordinator 創建協調器，並接管 expiry 的回收回呼
func NewCoordinator(registry *room.Registry, expiry *room.Expiry, emitter Emitter, logger *slog.Logger, opts Options) *Coordinator {
	c := &Coordinator{
		registry:   registry,
		expiry:     expiry,
		emitter:    emitter,
		logger:     logger,
		bestEffort: make(map[string]struct{}, len(opts.BestEffortTypes)),
		opts:       opts,
	}
	for _, t := range opts.BestEffortTypes {
		c.bestEffort[t] = struct{}{}
	}

	expiry.OnExpire(func(roomID string, closed int) {
		c.emit(events.Event{Type: events.TypeRoomExpired, RoomID: roomID, Occupants: closed})
	})

	return c
}

// CreateRoom 預先建立空房間並啟動空房計時器，返回房間 ID
func (c *Coordinator) CreateRoom() string {
	r := c.registry.Create()

	r.Mu.Lock()
	c.expiry.Schedule(r)
	r.Mu.Unlock()

	c.logger.Info("房間已創建", "room_id", r.ID)
	c.emit(events.Event{Type: events.TypeRoomCreated, RoomID: r.ID})

	return r.ID
}

// RoomStatus 查詢房間狀態，不修改任何狀態
func (c *Coordinator) RoomStatus(roomID string) (room.Status, error) {
	r, ok := c.registry.Get(roomID)
	if !ok {
		return room.Status{}, apperrors.ErrRoomNotFound.WithDetails(roomID)
	}
	return r.Snapshot(), nil
}

// Stats 全域統計
type Stats struct {
	TotalRooms   int `json:"total_rooms"`
	TotalPlayers int `json:"total_players"`
	PairedRooms  int `json:"paired_rooms"`
}

// Stats 統計房間與在線玩家數
func (c *Coordinator) Stats() Stats {
	var s Stats
	for _, r := range c.registry.Rooms() {
		status := r.Snapshot()
		s.TotalRooms++
		s.TotalPlayers += status.PlayerCount
		if status.PlayerCount == 2 {
			s.PairedRooms++
		}
	}
	return s
}

// Join 處理加入請求（PendingJoin → Seated）
//
// 失敗時以 1008 關閉傳入的連接並返回錯誤，已在座的連接不受影響。
func (c *Coordinator) Join(conn room.Conn, req JoinRequest) (*Session, error) {
	if req.RoomID == "" || req.PlayerID == "" {
		return nil, c.reject(conn, req, apperrors.ErrMissingParams)
	}

	role := room.RoleGuest
	if req.IsHost {
		role = room.RoleHost
	}

	for {
		r, created, err := c.resolve(req.RoomID, role)
		if err != nil {
			return nil, c.reject(conn, req, err)
		}

		r.Mu.Lock()
		if r.Removed() {
			// 在取得鎖之前剛好被回收；host 重新建立，guest 視為不存在
			r.Mu.Unlock()
			continue
		}

		if r.OpenSeat(role) != nil {
			r.Mu.Unlock()
			return nil, c.reject(conn, req, apperrors.ErrSeatTaken)
		}

		s := &Session{
			conn:     conn,
			room:     r,
			role:     role,
			playerID: req.PlayerID,
			state:    StateSeated,
			limiter:  ratelimit.NewTokenBucket(c.opts.RateCapacity, c.opts.RateRefill),
		}
		r.Occupy(role, &room.Seat{Conn: conn, PlayerID: req.PlayerID, JoinedAt: time.Now()})

		if role == room.RoleGuest {
			if host := r.OpenSeat(room.RoleHost); host != nil {
				c.send(host.Conn, Event{Type: TypePlayerJoined, PlayerID: req.PlayerID})
			}
		}

		c.send(conn, Event{
			Type:     TypeConnected,
			RoomID:   r.ID,
			PlayerID: req.PlayerID,
			Role:     role.String(),
		})

		c.expiry.Schedule(r)
		occupants := r.Occupants()
		r.Mu.Unlock()

		c.logger.Info("玩家已入座",
			"room_id", r.ID,
			"player_id", req.PlayerID,
			"role", role.String(),
			"conn_id", conn.ID(),
			"occupants", occupants)

		if created {
			c.emit(events.Event{Type: events.TypeRoomCreated, RoomID: r.ID})
		}
		c.emit(events.Event{
			Type:      events.TypePlayerJoined,
			RoomID:    r.ID,
			PlayerID:  req.PlayerID,
			Role:      role.String(),
			Occupants: occupants,
		})

		return s, nil
	}
}

// resolve 找到目標房間：host 可建立，guest 只能查詢
func (c *Coordinator) resolve(roomID string, role room.Role) (*room.Room, bool, *apperrors.AppError) {
	if role == room.RoleHost {
		r, created := c.registry.GetOrCreate(roomID)
		return r, created, nil
	}

	r, ok := c.registry.Get(roomID)
	if !ok {
		return nil, false, apperrors.ErrRoomNotFound
	}
	return r, false, nil
}

// reject 以政策關閉碼拒絕連接
func (c *Coordinator) reject(conn room.Conn, req JoinRequest, err *apperrors.AppError) error {
	c.logger.Warn("拒絕加入",
		"room_id", req.RoomID,
		"player_id", req.PlayerID,
		"is_host", req.IsHost,
		"conn_id", conn.ID(),
		"reason", err.Message)

	conn.Close(ClosePolicy, err.Message)
	return err
}

// Relay 處理已入座連接的入站訊息（Seated → Seated）
//
// 只解析 type 欄位，轉發內容與收到的位元組完全相同。
// 無法解析的訊息記錄後忽略，連接保持開啟。
func (c *Coordinator) Relay(s *Session, msg []byte) {
	var env envelope
	if err := json.Unmarshal(msg, &env); err != nil {
		c.logger.Debug("忽略無法解析的訊息",
			"error", err,
			"room_id", s.room.ID,
			"player_id", s.playerID)
		return
	}

	switch env.Type {
	case typePing:
		c.send(s.conn, Event{Type: TypePong})
		return
	case typeLeave:
		c.Leave(s)
		s.conn.Close(CloseNormal, ReasonLeft)
		return
	}

	_, bestEffort := c.bestEffort[env.Type]

	if !s.limiter.Allow() {
		if !bestEffort {
			c.send(s.conn, errorEvent(apperrors.ErrRateLimited))
		}
		return
	}

	r := s.room
	r.Mu.Lock()
	defer r.Mu.Unlock()

	if s.state != StateSeated {
		return
	}
	r.Touch()

	if peer := r.OpenSeat(s.role.Opposite()); peer != nil {
		if err := peer.Conn.Send(msg); err == nil {
			return
		}
		c.logger.Warn("轉發失敗",
			"room_id", r.ID,
			"from", s.role.String(),
			"type", env.Type)
	}

	if bestEffort {
		return
	}
	c.send(s.conn, Event{
		Type:    TypeError,
		Code:    apperrors.ErrCodePeerUnavailable,
		Message: apperrors.ErrPeerUnavailable.Message,
		Role:    s.role.Opposite().String(),
	})
}

// Leave 離開或斷線（Seated → Closed），冪等
//
// 在同一次事件內清空座位、通知對手並重新排程，房間本身保留，可被重新入座。
func (c *Coordinator) Leave(s *Session) {
	r := s.room
	r.Mu.Lock()

	if s.state != StateSeated {
		r.Mu.Unlock()
		return
	}
	s.state = StateClosed

	if !r.Vacate(s.role, s.conn) {
		// 房間已回收，或座位已被同角色新連接接手
		r.Mu.Unlock()
		return
	}

	if peer := r.OpenSeat(s.role.Opposite()); peer != nil {
		c.send(peer.Conn, Event{
			Type:     TypeOpponentDisconnected,
			PlayerID: s.playerID,
			Role:     s.role.String(),
		})
	}

	c.expiry.Schedule(r)
	occupants := r.Occupants()
	r.Mu.Unlock()

	c.logger.Info("玩家已離開",
		"room_id", r.ID,
		"player_id", s.playerID,
		"role", s.role.String(),
		"conn_id", s.conn.ID(),
		"occupants", occupants)

	c.emit(events.Event{
		Type:      events.TypePlayerLeft,
		RoomID:    r.ID,
		PlayerID:  s.playerID,
		Role:      s.role.String(),
		Occupants: occupants,
	})
}

func (c *Coordinator) send(conn room.Conn, ev Event) {
	if err := conn.Send(ev.encode()); err != nil {
		c.logger.Debug("發送事件失敗", "error", err, "type", ev.Type, "conn_id", conn.ID())
	}
}

func (c *Coordinator) emit(ev events.Event) {
	if c.emitter != nil {
		c.emitter.Emit(ev)
	}
}
