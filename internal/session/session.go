package session

import (
	"github.com/koopa0/system-design/game-relay/internal/room"
	"github.com/koopa0/system-design/game-relay/pkg/ratelimit"
)

// State 單條連接的會話狀態
//
//	PendingJoin → Seated → Closed
//
// 同一條物理連接不會重新入座，重連一定是新的 Session。
type State int

const (
	StatePendingJoin State = iota
	StateSeated
	StateClosed
)

// String 狀態名稱
func (s State) String() string {
	switch s {
	case StatePendingJoin:
		return "pending_join"
	case StateSeated:
		return "seated"
	default:
		return "closed"
	}
}

// Session 已入座連接的會話，state 由所屬房間的 Mu 保護
type Session struct {
	conn     room.Conn
	room     *room.Room
	role     room.Role
	playerID string
	state    State
	limiter  *ratelimit.TokenBucket
}

// RoomID 所在房間
func (s *Session) RoomID() string { return s.room.ID }

// PlayerID 玩家 ID
func (s *Session) PlayerID() string { return s.playerID }

// Role 座位角色
func (s *Session) Role() room.Role { return s.role }

// State 當前狀態
func (s *Session) State() State {
	s.room.Mu.Lock()
	defer s.room.Mu.Unlock()
	return s.state
}
