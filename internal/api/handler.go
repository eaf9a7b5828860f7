// Package api 提供唯讀的 HTTP 觀測端點（健康檢查、統計、房間與大廳快照）。
//
// 所有狀態變更只能透過 WebSocket action 進行，這裡不提供寫入操作。
package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/koopa0/system-design/14-realtime-lobby/internal/lobby"
	"github.com/koopa0/system-design/14-realtime-lobby/internal/router"
)

// EventStats 事件匯流排統計（*events.Bus）
type EventStats interface {
	Stats() map[string]any
}

// ConnectionCounter 即時連線數（*gateway.WebSocketHub）
type ConnectionCounter interface {
	ConnectionCount() int
}

// Handler HTTP 請求處理器
type Handler struct {
	manager *lobby.Manager
	router  *router.Router
	events  EventStats
	conns   ConnectionCounter
	logger  *slog.Logger
	started time.Time
}

// NewHandler 創建 HTTP 處理器；events 與 conns 可為 nil
func NewHandler(manager *lobby.Manager, r *router.Router, events EventStats, conns ConnectionCounter, logger *slog.Logger) *Handler {
	return &Handler{
		manager: manager,
		router:  r,
		events:  events,
		conns:   conns,
		logger:  logger,
		started: time.Now(),
	}
}

// Register 把路由註冊到 mux
func (h *Handler) Register(mux *http.ServeMux) {
	wrap := func(handler http.HandlerFunc) http.HandlerFunc {
		return h.recoverer(h.loggerMiddleware(handler))
	}

	mux.HandleFunc("GET /api/v1/rooms", wrap(h.listRooms))
	mux.HandleFunc("GET /api/v1/rooms/{room_id}", wrap(h.getRoom))
	mux.HandleFunc("GET /api/v1/lobby", wrap(h.listLobby))

	mux.HandleFunc("GET /health", wrap(h.health))
	mux.HandleFunc("GET /stats", wrap(h.stats))
}

// Routes 返回只包含 API 路由的 handler
func (h *Handler) Routes() http.Handler {
	mux := http.NewServeMux()
	h.Register(mux)
	return mux
}

// 回應結構
type roomSummary struct {
	ID        string    `json:"id"`
	Users     int       `json:"users"`
	CreatedAt time.Time `json:"created_at"`
}

type sessionView struct {
	ID           string `json:"id"`
	ConnectionID string `json:"connection_id"`
	Nick         string `json:"nick"`
	State        string `json:"state"`
}

type roomDetail struct {
	ID        string        `json:"id"`
	CreatedAt time.Time     `json:"created_at"`
	Members   []sessionView `json:"members"`
}

func viewSessions(sessions []*lobby.Session) []sessionView {
	out := make([]sessionView, 0, len(sessions))
	for _, s := range sessions {
		out = append(out, sessionView{
			ID:           s.ID(),
			ConnectionID: s.ConnectionID(),
			Nick:         s.Nick(),
			State:        s.IsConnected().String(),
		})
	}
	return out
}

// listRooms 列出房間（依建立順序）
func (h *Handler) listRooms(w http.ResponseWriter, r *http.Request) {
	rooms := h.manager.ListRooms()

	result := make([]roomSummary, 0, len(rooms))
	for _, room := range rooms {
		result = append(result, roomSummary{
			ID:        room.ID,
			Users:     room.Len(),
			CreatedAt: room.CreatedAt,
		})
	}

	h.jsonResponse(w, map[string]any{
		"rooms": result,
		"total": len(result),
	}, http.StatusOK)
}

// getRoom 獲取房間詳情
func (h *Handler) getRoom(w http.ResponseWriter, r *http.Request) {
	room, err := h.manager.GetRoom(r.PathValue("room_id"))
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, lobby.ErrRoomNotFound) {
			status = http.StatusNotFound
		}
		h.errorResponse(w, err.Error(), status)
		return
	}

	h.jsonResponse(w, roomDetail{
		ID:        room.ID,
		CreatedAt: room.CreatedAt,
		Members:   viewSessions(room.List()),
	}, http.StatusOK)
}

// listLobby 列出大廳中的使用者
func (h *Handler) listLobby(w http.ResponseWriter, r *http.Request) {
	sessions := viewSessions(h.manager.ListLobbySessions())

	h.jsonResponse(w, map[string]any{
		"sessions": sessions,
		"total":    len(sessions),
	}, http.StatusOK)
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
	stats := h.manager.Stats()
	stats["actions"] = h.router.Actions()
	stats["uptime_seconds"] = int64(time.Since(h.started).Seconds())
	if h.conns != nil {
		stats["connections"] = h.conns.ConnectionCount()
	}
	if h.events != nil {
		stats["events"] = h.events.Stats()
	}

	h.jsonResponse(w, stats, http.StatusOK)
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
func (h *Handler) errorResponse(w http.ResponseWriter, message string, status int) {
	h.jsonResponse(w, map[string]any{
		"error": message,
	}, status)
}

// loggerMiddleware 日誌中間件
func (h *Handler) loggerMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

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

				h.errorResponse(w, "內部伺服器錯誤", http.StatusInternalServerError)
			}
		}()

		next(w, r)
	}
}

// responseWriter 包裝 ResponseWriter 以獲取狀態碼
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (w *responseWriter) WriteHeader(code int) {
	w.statusCode = code
	w.ResponseWriter.WriteHeader(code)
}
