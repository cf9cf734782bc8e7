package room

import (
	"log/slog"
	"time"
)

// 房間關閉時送給仍在線連接的 WebSocket 關閉碼
const (
	CloseNormal    = 1000
	CloseGoingAway = 1001
	ReasonExpired  = "room expired"
	ReasonShutdown = "server shutting down"
)

// Policy 三段式存活時間：依在線人數選擇
type Policy struct {
	Empty       time.Duration
	OneOccupant time.Duration
	TwoOccupant time.Duration
}

// Duration 依人數返回存活時間
func (p Policy) Duration(occupants int) time.Duration {
	switch {
	case occupants <= 0:
		return p.Empty
	case occupants == 1:
		return p.OneOccupant
	default:
		return p.TwoOccupant
	}
}

// Expiry 房間計時回收（Timeout Manager）
//
// 每個房間一個單次計時器，任何人數變化都必須重新呼叫 Schedule，
// 讓到期時間反映當前人數而非建立時的人數。
//
// 與週期掃描相比：
//   - 不需要遍歷整張房間表
//   - 回收延遲可預期
//
// 計時器觸發時先取得房間鎖，再比對世代號；
// 若在等鎖期間有新連接入座並重新排程，舊計時器的觸發會被丟棄。
type Expiry struct {
	registry *Registry
	policy   Policy
	logger   *slog.Logger
	onExpire func(roomID string, closed int)
}

// NewExpiry 創建計時回收器
func NewExpiry(registry *Registry, policy Policy, logger *slog.Logger) *Expiry {
	return &Expiry{
		registry: registry,
		policy:   policy,
		logger:   logger,
	}
}

// OnExpire 設置房間被回收後的回呼（在鎖外執行），closed 為被強制關閉的連接數
//
// 須在任何 Schedule 之前設置。
func (e *Expiry) OnExpire(fn func(roomID string, closed int)) {
	e.onExpire = fn
}

// Policy 返回存活時間表
func (e *Expiry) Policy() Policy {
	return e.policy
}

// Schedule 取消舊計時器並依當前人數重新排程，呼叫者須持有 room.Mu
func (e *Expiry) Schedule(room *Room) {
	if room.removed {
		return
	}

	if room.timer != nil {
		room.timer.Stop()
	}

	occupants := room.Occupants()
	d := e.policy.Duration(occupants)

	room.timerGen++
	gen := room.timerGen
	room.expiresAt = time.Now().Add(d)
	room.timer = time.AfterFunc(d, func() {
		e.fire(room, gen)
	})

	e.logger.Debug("房間計時已重設",
		"room_id", room.ID,
		"occupants", occupants,
		"ttl", d)
}

// fire 計時器觸發
func (e *Expiry) fire(room *Room, gen uint64) {
	room.Mu.Lock()
	if room.removed || room.timerGen != gen {
		// 已回收，或在等鎖期間被重新排程
		room.Mu.Unlock()
		return
	}
	closed := e.reap(room, CloseNormal, ReasonExpired)
	room.Mu.Unlock()

	e.logger.Info("房間已過期回收", "room_id", room.ID, "closed_connections", closed)
	if e.onExpire != nil {
		e.onExpire(room.ID, closed)
	}
}

// Expire 立即回收房間（計時器觸發處理函數的對外入口）
//
// 房間不存在或已回收時為 no-op，返回 false。重複呼叫安全。
func (e *Expiry) Expire(roomID string) bool {
	room, ok := e.registry.Get(roomID)
	if !ok {
		return false
	}

	room.Mu.Lock()
	if room.removed {
		room.Mu.Unlock()
		return false
	}
	closed := e.reap(room, CloseNormal, ReasonExpired)
	room.Mu.Unlock()

	e.logger.Info("房間已回收", "room_id", roomID, "closed_connections", closed)
	if e.onExpire != nil {
		e.onExpire(roomID, closed)
	}
	return true
}

// reap 關閉在線連接、停止計時器並從表中移除，呼叫者須持有 room.Mu
func (e *Expiry) reap(room *Room, code int, reason string) int {
	closed := 0
	for i, seat := range room.seats {
		if seat.Open() {
			seat.Conn.Close(code, reason)
			closed++
		}
		room.seats[i] = nil
	}

	if room.timer != nil {
		room.timer.Stop()
		room.timer = nil
	}
	room.removed = true
	e.registry.remove(room)

	return closed
}

// Close 停機：回收所有房間，在線連接以 1001 關閉
func (e *Expiry) Close() {
	rooms := e.registry.Rooms()
	for _, room := range rooms {
		room.Mu.Lock()
		if !room.removed {
			e.reap(room, CloseGoingAway, ReasonShutdown)
		}
		room.Mu.Unlock()
	}

	e.logger.Info("所有房間已關閉", "rooms", len(rooms))
}
