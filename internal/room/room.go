package room

import (
	"sync"
	"time"
)

// 系統設計問題：
//   兩個玩家（host / guest）如何在同一房間內安全地佔座、轉發、離開，
//   並在無人使用時被回收？
//
// 設計方案：
//   - 每個房間一把互斥鎖，座位與計時器都只在持鎖時修改
//   - 不同房間之間沒有共享鎖
//   - 計時器由房間獨佔，重新排程時先停舊的再換新的

// Role 座位角色
type Role int

const (
	RoleHost Role = iota
	RoleGuest
)

// String 返回角色名稱
func (r Role) String() string {
	if r == RoleHost {
		return "host"
	}
	return "guest"
}

// Opposite 對手角色
func (r Role) Opposite() Role {
	if r == RoleHost {
		return RoleGuest
	}
	return RoleHost
}

// Seat 佔座資訊，連接在佔座期間由座位獨佔
type Seat struct {
	Conn     Conn
	PlayerID string
	JoinedAt time.Time
}

// Open 座位上的連接是否仍在線
func (s *Seat) Open() bool {
	return s != nil && s.Conn != nil && s.Conn.IsOpen()
}

// Room 雙人房間
//
// Mu 保護座位、活動時間、計時器與 removed 標記。
// 下列未加鎖的方法（OpenSeat、Occupy、Vacate、Occupants、Touch、Removed）
// 要求呼叫者已持有 Mu。
type Room struct {
	ID        string
	CreatedAt time.Time

	Mu         sync.Mutex
	seats      [2]*Seat
	lastActive time.Time
	timer      *time.Timer
	timerGen   uint64    // 每次排程遞增，舊計時器觸發時據此判斷是否過時
	expiresAt  time.Time // 當前計時器的到期時間
	removed    bool      // 已從 Registry 移除，不可再佔座
}

func newRoom(id string, now time.Time) *Room {
	return &Room{
		ID:         id,
		CreatedAt:  now,
		lastActive: now,
	}
}

// OpenSeat 返回該角色上仍在線的座位，沒有則返回 nil
func (r *Room) OpenSeat(role Role) *Seat {
	if s := r.seats[role]; s.Open() {
		return s
	}
	return nil
}

// Occupy 佔座，覆蓋已斷線的舊座位
func (r *Room) Occupy(role Role, seat *Seat) {
	r.seats[role] = seat
	r.lastActive = seat.JoinedAt
}

// Vacate 清空座位，僅當座位上仍是 conn 時生效
//
// 同角色已被新連接接手時返回 false，舊連接的離開不影響新座位。
func (r *Room) Vacate(role Role, conn Conn) bool {
	s := r.seats[role]
	if s == nil || s.Conn != conn {
		return false
	}
	r.seats[role] = nil
	r.lastActive = time.Now()
	return true
}

// Occupants 在線座位數（0、1、2）
func (r *Room) Occupants() int {
	n := 0
	for _, s := range r.seats {
		if s.Open() {
			n++
		}
	}
	return n
}

// Touch 更新最後活動時間
func (r *Room) Touch() {
	r.lastActive = time.Now()
}

// Removed 房間是否已被回收
func (r *Room) Removed() bool {
	return r.removed
}

// Status 房間狀態快照
type Status struct {
	RoomID         string    `json:"roomId"`
	HostConnected  bool      `json:"hostConnected"`
	GuestConnected bool      `json:"guestConnected"`
	PlayerCount    int       `json:"playerCount"`
	CreatedAt      time.Time `json:"createdAt"`
	LastActive     time.Time `json:"lastActive"`
	ExpiresAt      time.Time `json:"expiresAt"`
}

// Snapshot 讀取狀態（自行加鎖，不修改房間）
func (r *Room) Snapshot() Status {
	r.Mu.Lock()
	defer r.Mu.Unlock()

	host := r.OpenSeat(RoleHost) != nil
	guest := r.OpenSeat(RoleGuest) != nil
	count := 0
	if host {
		count++
	}
	if guest {
		count++
	}

	return Status{
		RoomID:         r.ID,
		HostConnected:  host,
		GuestConnected: guest,
		PlayerCount:    count,
		CreatedAt:      r.CreatedAt,
		LastActive:     r.lastActive,
		ExpiresAt:      r.expiresAt,
	}
}
