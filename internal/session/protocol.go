package session

import (
	"encoding/json"

	"github.com/gorilla/websocket"
	apperrors "github.com/koopa0/system-design/game-relay/pkg/errors"
)

// 送往客戶端的事件類型
const (
	TypeConnected            = "connected"
	TypePlayerJoined         = "player-joined"
	TypeOpponentDisconnected = "opponent-disconnected"
	TypeError                = "error"
	TypePong                 = "pong"
)

// 客戶端控制訊息，由協調器自行處理，不轉發
const (
	typePing  = "ping"
	typeLeave = "leave"
)

// 拒絕加入與主動離開時的關閉碼
const (
	ClosePolicy = websocket.ClosePolicyViolation // 1008
	CloseNormal = websocket.CloseNormalClosure   // 1000
	ReasonLeft  = "left"
)

// JoinRequest 連接建立時攜帶的加入參數
type JoinRequest struct {
	RoomID   string
	PlayerID string
	IsHost   bool
}

// Event 出站事件信封：{type, ...payload}
type Event struct {
	Type     string `json:"type"`
	RoomID   string `json:"roomId,omitempty"`
	PlayerID string `json:"playerId,omitempty"`
	Role     string `json:"role,omitempty"`
	Code     string `json:"code,omitempty"`
	Message  string `json:"message,omitempty"`
}

func (e Event) encode() []byte {
	// 欄位全為字串，不會失敗
	data, _ := json.Marshal(e)
	return data
}

func errorEvent(err *apperrors.AppError) Event {
	return Event{Type: TypeError, Code: err.Code, Message: err.Message}
}

// envelope 入站訊息只解析 type，其餘內容原樣轉發
type envelope struct {
	Type string `json:"type"`
}
