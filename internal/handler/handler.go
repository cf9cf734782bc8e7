// Package handler 提供房間管理的 HTTP API。
package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/koopa0/system-design/game-relay/internal/room"
	"github.com/koopa0/system-design/game-relay/internal/session"
	apperrors "github.com/koopa0/system-design/game-relay/pkg/errors"
)

// RoomService 房間服務介面
type RoomService interface {
	CreateRoom() string
	RoomStatus(roomID string) (room.Status, error)
	Stats() session.Stats
}

// Handler HTTP 請求處理器
type Handler struct {
	rooms  RoomService
	logger *slog.Logger
}

// NewHandler 創建 HTTP 處理器
func NewHandler(rooms RoomService, logger *slog.Logger) *Handler {
	return &Handler{
		rooms:  rooms,
		logger: logger,
	}
}

// Routes 設定路由
func (h *Handler) Routes() *http.ServeMux {
	mux := http.NewServeMux()

	// 中間件鏈
	wrap := func(handler http.HandlerFunc) http.HandlerFunc {
		return h.recoverer(h.loggerMiddleware(handler))
	}

	mux.HandleFunc("POST /api/v1/rooms", wrap(h.createRoom))
	mux.HandleFunc("GET /api/v1/rooms/{room_id}", wrap(h.getRoom))

	mux.HandleFunc("GET /health", wrap(h.health))
	mux.HandleFunc("GET /stats", wrap(h.stats))

	return mux
}

// createRoom 預先建立房間，返回可分享的房間 ID
func (h *Handler) createRoom(w http.ResponseWriter, r *http.Request) {
	roomID := h.rooms.CreateRoom()

	h.jsonResponse(w, map[string]any{
		"room_id": roomID,
	}, http.StatusCreated)
}

// getRoom 查詢房間狀態
func (h *Handler) getRoom(w http.ResponseWriter, r *http.Request) {
	status, err := h.rooms.RoomStatus(r.PathValue("room_id"))
	if err != nil {
		h.appErrorResponse(w, err)
		return
	}

	h.jsonResponse(w, status, http.StatusOK)
}

// health 健康檢查
func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	h.jsonResponse(w, map[string]any{
		"status": "healthy",
		"time":   time.Now().Unix(),
	}, http.StatusOK)
}

// stats 統計資訊
func (h *Handler) stats(w http.ResponseWriter, r *http.Request) {
	h.jsonResponse(w, h.rooms.Stats(), http.StatusOK)
}

// jsonResponse 返回 JSON 響應
func (h *Handler) jsonResponse(w http.ResponseWriter, data any, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("編碼 JSON 失敗", "error", err)
	}
}

// errorResponse 返回錯誤響應
func (h *Handler) errorResponse(w http.ResponseWriter, code, message string, status int) {
	h.jsonResponse(w, map[string]any{
		"code":  code,
		"error": message,
	}, status)
}

// appErrorResponse 依錯誤碼映射 HTTP 狀態
func (h *Handler) appErrorResponse(w http.ResponseWriter, err error) {
	var appErr *apperrors.AppError
	if !errors.As(err, &appErr) {
		h.logger.Error("未預期的錯誤", "error", err)
		h.errorResponse(w, apperrors.ErrCodeInternal, "內部伺服器錯誤", http.StatusInternalServerError)
		return
	}

	status := http.StatusInternalServerError
	switch appErr.Code {
	case apperrors.ErrCodeNotFound:
		status = http.StatusNotFound
	case apperrors.ErrCodeInvalidInput:
		status = http.StatusBadRequest
	case apperrors.ErrCodeSeatTaken:
		status = http.StatusConflict
	case apperrors.ErrCodeRateLimited:
		status = http.StatusTooManyRequests
	case apperrors.ErrCodeUnavailable:
		status = http.StatusServiceUnavailable
	}
	h.errorResponse(w, appErr.Code, appErr.Message, status)
}

// loggerMiddleware 日誌中間件
func (h *Handler) loggerMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		// 包裝 ResponseWriter 以獲取狀態碼
		ww := &responseWriter{
			ResponseWriter: w,
			statusCode:     http.StatusOK,
		}

		next(ww, r)

		h.logger.Info("HTTP 請求",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.statusCode,
			"duration", time.Since(start))
	}
}

// recoverer panic 恢復中間件
func (h *Handler) recoverer(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				h.logger.Error("處理請求時發生 panic",
					"error", err,
					"method", r.Method,
					"path", r.URL.Path)

				h.errorResponse(w, apperrors.ErrCodeInternal, "內部伺服器錯誤", http.StatusInternalServerError)
			}
		}()

		next(w, r)
	}
}

type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (w *responseWriter) WriteHeader(code int) {
	w.statusCode = code
	w.ResponseWriter.WriteHeader(code)
}
