// Package errors 提供應用程式錯誤處理
package errors

import (
	"errors"
	"fmt"
)

// 定義錯誤碼
const (
	// ErrCodeNotFound 資源未找到
	ErrCodeNotFound = "NOT_FOUND"
	// ErrCodeInvalidInput 無效輸入
	ErrCodeInvalidInput = "INVALID_INPUT"
	// ErrCodeSeatTaken 座位已被佔用
	ErrCodeSeatTaken = "SEAT_TAKEN"
	// ErrCodePeerUnavailable 對手不在線
	ErrCodePeerUnavailable = "PEER_UNAVAILABLE"
	// ErrCodeRateLimited 訊息頻率超限
	ErrCodeRateLimited = "RATE_LIMITED"
	// ErrCodeInternal 內部錯誤
	ErrCodeInternal = "INTERNAL_ERROR"
	// ErrCodeUnavailable 服務不可用
	ErrCodeUnavailable = "SERVICE_UNAVAILABLE"
)

// AppError 應用程式錯誤
type AppError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
	Err     error  `json:"-"`
}

// Error 實現 error 介面
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap 實現 errors.Unwrap
func (e *AppError) Unwrap() error {
	return e.Err
}

// Is 實現 errors.Is，以錯誤碼比對
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// New 創建新的應用程式錯誤
func New(code, message string) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
	}
}

// Wrap 包裝錯誤
func Wrap(err error, code, message string) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// WithDetails 返回帶有詳細資訊的副本（預定義錯誤為共享值，不可原地修改）
func (e *AppError) WithDetails(details string) *AppError {
	cp := *e
	cp.Details = details
	return &cp
}

// 預定義錯誤
var (
	// ErrMissingParams 缺少房間 ID 或玩家 ID
	ErrMissingParams = New(ErrCodeInvalidInput, "missing parameters")

	// ErrRoomNotFound 房間不存在
	ErrRoomNotFound = New(ErrCodeNotFound, "room not found")

	// ErrSeatTaken 同角色座位已有在線連接
	ErrSeatTaken = New(ErrCodeSeatTaken, "seat taken")

	// ErrPeerUnavailable 對手座位為空或已斷線
	ErrPeerUnavailable = New(ErrCodePeerUnavailable, "peer unavailable")

	// ErrRateLimited 訊息過於頻繁
	ErrRateLimited = New(ErrCodeRateLimited, "too many messages")

	// ErrPublisherUnavailable 事件發布後端不可用
	ErrPublisherUnavailable = New(ErrCodeUnavailable, "event publisher unavailable")
)

// Code 取出錯誤碼，非 AppError 視為內部錯誤
func Code(err error) string {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return ErrCodeInternal
}

// IsNotFound 檢查是否為未找到錯誤
func IsNotFound(err error) bool {
	return err != nil && Code(err) == ErrCodeNotFound
}

// IsSeatTaken 檢查是否為座位衝突錯誤
func IsSeatTaken(err error) bool {
	return err != nil && Code(err) == ErrCodeSeatTaken
}

// IsInvalidInput 檢查是否為無效輸入錯誤
func IsInvalidInput(err error) bool {
	return err != nil && Code(err) == ErrCodeInvalidInput
}

// IsPeerUnavailable 檢查是否為對手不在線錯誤
func IsPeerUnavailable(err error) bool {
	return err != nil && Code(err) == ErrCodePeerUnavailable
}
