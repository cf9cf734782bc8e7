package session_test

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/koopa0/system-design/game-relay/internal/room"
	"github.com/koopa0/system-design/game-relay/internal/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var shortPolicy = room.Policy{
	Empty:       80 * time.Millisecond,
	OneOccupant: 250 * time.Millisecond,
	TwoOccupant: 900 * time.Millisecond,
}

func (f *fixture) present(id string) bool {
	_, ok := f.registry.Get(id)
	return ok
}

// 一人房在 T1/2 時第二人加入：1.1×T1 時仍存在，加入時刻 + T2 之後才回收
func TestLifecycle_JoinRetunesTimer(t *testing.T) {
	f := newFixture(t, shortPolicy, defaultOptions())

	start := time.Now()
	_, host := f.join(t, "TIMER1", "alice", true)

	time.Sleep(shortPolicy.OneOccupant / 2)
	joinedAt := time.Now()
	f.join(t, "TIMER1", "bob", false)

	time.Sleep(time.Until(start.Add(shortPolicy.OneOccupant * 11 / 10)))
	require.True(t, f.present("TIMER1"))
	assert.True(t, host.IsOpen())

	assert.Never(t, func() bool { return !f.present("TIMER1") },
		time.Until(joinedAt.Add(shortPolicy.TwoOccupant-60*time.Millisecond)), 10*time.Millisecond)

	assert.Eventually(t, func() bool { return !f.present("TIMER1") }, time.Second, 10*time.Millisecond)
	assert.GreaterOrEqual(t, time.Since(joinedAt), shortPolicy.TwoOccupant)
	assert.False(t, host.IsOpen())
}

// 離開同樣要重新排程：兩人都離開後按空房期限回收，而非兩人期限
func TestLifecycle_LeaveRetunesTimer(t *testing.T) {
	f := newFixture(t, shortPolicy, defaultOptions())
	hostSession, _ := f.join(t, "TIMER2", "alice", true)
	guestSession, _ := f.join(t, "TIMER2", "bob", false)

	f.coordinator.Leave(guestSession)
	f.coordinator.Leave(hostSession)
	left := time.Now()

	assert.Eventually(t, func() bool { return !f.present("TIMER2") },
		shortPolicy.OneOccupant, 5*time.Millisecond)
	assert.GreaterOrEqual(t, time.Since(left), shortPolicy.Empty)
}

// 預建的空房沒人加入也會被回收
func TestLifecycle_CreatedRoomReapedWhenUnused(t *testing.T) {
	f := newFixture(t, shortPolicy, defaultOptions())
	id := f.coordinator.CreateRoom()

	assert.Eventually(t, func() bool { return !f.present(id) }, time.Second, 10*time.Millisecond)
}

// 建立房間 → host 加入 → guest 加入 → host 走棋 → guest 收到原樣訊息
// → guest 斷線 → host 收到對手斷線 → 狀態為 host 在線、guest 離線、1 人
func TestLifecycle_EndToEnd(t *testing.T) {
	f := newFixture(t, longPolicy, defaultOptions())

	roomID := f.coordinator.CreateRoom()
	hostSession, host := f.join(t, roomID, "alice", true)
	guestSession, guest := f.join(t, roomID, "bob", false)

	move := []byte(`{"type":"move","from":"e2","to":"e4"}`)
	f.coordinator.Relay(hostSession, move)

	var received [][]byte
	for _, msg := range guest.Messages() {
		var env map[string]any
		require.NoError(t, json.Unmarshal(msg, &env))
		if env["type"] == "move" {
			received = append(received, msg)
		}
	}
	require.Len(t, received, 1)
	assert.Equal(t, move, received[0])

	guest.Drop()
	f.coordinator.Leave(guestSession)

	require.Len(t, host.EventsOfType(session.TypeOpponentDisconnected), 1)

	status, err := f.coordinator.RoomStatus(roomID)
	require.NoError(t, err)
	assert.Equal(t, roomID, status.RoomID)
	assert.True(t, status.HostConnected)
	assert.False(t, status.GuestConnected)
	assert.Equal(t, 1, status.PlayerCount)
}
