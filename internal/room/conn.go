package room

// Conn 單條雙工傳輸連接（Connection Handle）
//
// 實作需保證：
//   - Send 不阻塞，緩衝區滿或已關閉時返回錯誤
//   - Close 冪等，呼叫後 IsOpen 立即為 false，後續 Send 全部失敗
//   - 傳輸層斷線時 IsOpen 同步變為 false
type Conn interface {
	ID() string
	Send(msg []byte) error
	Close(code int, reason string)
	IsOpen() bool
}
