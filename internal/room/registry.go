package room

import (
	"crypto/rand"
	"math/big"
	"sync"
	"time"
)

const (
	idAlphabet = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZ" // base-36 大寫
	idLength   = 6
	// 36^6 ≈ 21 億，碰撞極少，重試上限只是保險
	idRetryLimit = 8
)

// Registry 房間表：roomID -> Room
//
// 只負責增查刪，不持有任何房間鎖。
// 鎖順序固定為 Room.Mu → Registry.mu，Registry 內部不會反過來取房間鎖。
type Registry struct {
	mu    sync.RWMutex
	rooms map[string]*Room
	now   func() time.Time
}

// NewRegistry 創建空的房間表
func NewRegistry() *Registry {
	return &Registry{
		rooms: make(map[string]*Room),
		now:   time.Now,
	}
}

// Create 以新生成的 ID 建立空房間
func (reg *Registry) Create() *Room {
	reg.mu.Lock()
	defer reg.mu.Unlock()

	var id string
	for i := 0; i < idRetryLimit; i++ {
		id = generateID()
		if _, exists := reg.rooms[id]; !exists {
			break
		}
	}

	room := newRoom(id, reg.now())
	reg.rooms[id] = room
	return room
}

// Get 查詢房間，不修改狀態
func (reg *Registry) Get(roomID string) (*Room, bool) {
	reg.mu.RLock()
	defer reg.mu.RUnlock()

	room, ok := reg.rooms[roomID]
	return room, ok
}

// GetOrCreate 返回已有房間，否則以該 ID 建立空房間
func (reg *Registry) GetOrCreate(roomID string) (room *Room, created bool) {
	reg.mu.RLock()
	room, ok := reg.rooms[roomID]
	reg.mu.RUnlock()
	if ok {
		return room, false
	}

	reg.mu.Lock()
	defer reg.mu.Unlock()

	// 雙重檢查：兩個 host 同時建立同一 ID
	if room, ok := reg.rooms[roomID]; ok {
		return room, false
	}

	room = newRoom(roomID, reg.now())
	reg.rooms[roomID] = room
	return room, true
}

// remove 刪除房間，冪等
//
// 只由 Expiry 在持有 room.Mu 時呼叫；表中已是另一個同 ID 的新房間時不刪除。
func (reg *Registry) remove(room *Room) {
	reg.mu.Lock()
	defer reg.mu.Unlock()

	if current, ok := reg.rooms[room.ID]; ok && current == room {
		delete(reg.rooms, room.ID)
	}
}

// Len 房間數
func (reg *Registry) Len() int {
	reg.mu.RLock()
	defer reg.mu.RUnlock()
	return len(reg.rooms)
}

// Rooms 返回當前所有房間的切片副本
func (reg *Registry) Rooms() []*Room {
	reg.mu.RLock()
	defer reg.mu.RUnlock()

	rooms := make([]*Room, 0, len(reg.rooms))
	for _, room := range reg.rooms {
		rooms = append(rooms, room)
	}
	return rooms
}

// generateID 生成 6 位 base-36 大寫 ID
func generateID() string {
	b := make([]byte, idLength)
	max := big.NewInt(int64(len(idAlphabet)))
	for i := range b {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			// crypto/rand 失敗時退回時間戳
			n = big.NewInt(time.Now().UnixNano() % int64(len(idAlphabet)))
		}
		b[i] = idAlphabet[n.Int64()]
	}
	return string(b)
}
