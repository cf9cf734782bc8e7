package handler_test

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/koopa0/system-design/game-relay/internal/handler"
	"github.com/koopa0/system-design/game-relay/internal/room"
	"github.com/koopa0/system-design/game-relay/internal/session"
	"github.com/koopa0/system-design/game-relay/internal/testutils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setup(t *testing.T) (*session.Coordinator, http.Handler) {
	t.Helper()
	logger := testutils.Logger()
	reg := room.NewRegistry()
	exp := room.NewExpiry(reg, room.Policy{Empty: time.Hour, OneOccupant: time.Hour, TwoOccupant: time.Hour}, logger)
	t.Cleanup(exp.Close)

	coord := session.NewCoordinator(reg, exp, nil, logger, session.Options{})
	return coord, handler.NewHandler(coord, logger).Routes()
}

func do(t *testing.T, router http.Handler, method, path string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	var resp map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return w, resp
}

// TestHandler_CreateRoom 測試建立房間 API
func TestHandler_CreateRoom(t *testing.T) {
	coord, router := setup(t)

	w, resp := do(t, router, http.MethodPost, "/api/v1/rooms")
	assert.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))

	roomID, ok := resp["room_id"].(string)
	require.True(t, ok)
	assert.Len(t, roomID, 6)

	status, err := coord.RoomStatus(roomID)
	require.NoError(t, err)
	assert.Equal(t, 0, status.PlayerCount)
}

// TestHandler_GetRoom 測試查詢房間狀態
func TestHandler_GetRoom(t *testing.T) {
	coord, router := setup(t)

	roomID := coord.CreateRoom()
	_, err := coord.Join(testutils.NewFakeConn("h1"), session.JoinRequest{RoomID: roomID, PlayerID: "alice", IsHost: true})
	require.NoError(t, err)

	tests := []struct {
		name           string
		path           string
		expectedStatus int
		validate       func(t *testing.T, resp map[string]any)
	}{
		{
			name:           "existing room",
			path:           "/api/v1/rooms/" + roomID,
			expectedStatus: http.StatusOK,
			validate: func(t *testing.T, resp map[string]any) {
				assert.Equal(t, roomID, resp["roomId"])
				assert.Equal(t, true, resp["hostConnected"])
				assert.Equal(t, false, resp["guestConnected"])
				assert.InDelta(t, 1, resp["playerCount"], 0)
				assert.NotEmpty(t, resp["expiresAt"])
			},
		},
		{
			name:           "unknown room",
			path:           "/api/v1/rooms/NOPE00",
			expectedStatus: http.StatusNotFound,
			validate: func(t *testing.T, resp map[string]any) {
				assert.Equal(t, "NOT_FOUND", resp["code"])
				assert.Equal(t, "room not found", resp["error"])
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, resp := do(t, router, http.MethodGet, tt.path)
			assert.Equal(t, tt.expectedStatus, w.Code)
			tt.validate(t, resp)
		})
	}
}

// TestHandler_HealthAndStats 測試健康檢查與統計
func TestHandler_HealthAndStats(t *testing.T) {
	coord, router := setup(t)

	w, resp := do(t, router, http.MethodGet, "/health")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "healthy", resp["status"])

	roomID := coord.CreateRoom()
	_, err := coord.Join(testutils.NewFakeConn("h1"), session.JoinRequest{RoomID: roomID, PlayerID: "alice", IsHost: true})
	require.NoError(t, err)
	_, err = coord.Join(testutils.NewFakeConn("g1"), session.JoinRequest{RoomID: roomID, PlayerID: "bob"})
	require.NoError(t, err)
	coord.CreateRoom()

	w, resp = do(t, router, http.MethodGet, "/stats")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.InDelta(t, 2, resp["total_rooms"], 0)
	assert.InDelta(t, 2, resp["total_players"], 0)
	assert.InDelta(t, 1, resp["paired_rooms"], 0)
}

// TestHandler_MethodNotAllowed 未註冊的方法由 ServeMux 拒絕
func TestHandler_MethodNotAllowed(t *testing.T) {
	_, router := setup(t)

	req := httptest.NewRequest(http.MethodDelete, "/api/v1/rooms/ABC123", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
}

type brokenService struct{}

func (brokenService) CreateRoom() string { panic("boom") }

func (brokenService) RoomStatus(string) (room.Status, error) {
	return room.Status{}, errors.New("disk on fire")
}

func (brokenService) Stats() session.Stats { return session.Stats{} }

// TestHandler_Failures panic 與非預期錯誤都回 500
func TestHandler_Failures(t *testing.T) {
	router := handler.NewHandler(brokenService{}, testutils.Logger()).Routes()

	w, resp := do(t, router, http.MethodPost, "/api/v1/rooms")
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "INTERNAL_ERROR", resp["code"])

	w, resp = do(t, router, http.MethodGet, "/api/v1/rooms/ABC123")
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "INTERNAL_ERROR", resp["code"])
}
