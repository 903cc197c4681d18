package server

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"EbbFM/core/live"
	"EbbFM/logger"
	"EbbFM/model"
	apperrors "EbbFM/pkg/errors"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
)

// RoomHandler 房间 HTTP/WS 处理器
type RoomHandler struct {
	manager  *live.Manager
	upgrader websocket.Upgrader
}

// NewRoomHandler 创建房间处理器
func NewRoomHandler(manager *live.Manager) *RoomHandler {
	return &RoomHandler{
		manager: manager,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// ========== HTTP 处理器 ==========

// ListRoomsHandler 活跃房间列表
func (h *RoomHandler) ListRoomsHandler(w http.ResponseWriter, r *http.Request) {
	items, err := h.manager.RoomList(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	if items == nil {
		items = []*model.RoomListItem{}
	}
	writeJSON(w, http.StatusOK, items)
}

// GetRoomHandler 房间快照
func (h *RoomHandler) GetRoomHandler(w http.ResponseWriter, r *http.Request) {
	slug := mux.Vars(r)["slug"]

	snap, err := h.manager.Snapshot(r.Context(), slug)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// CreateRoomRequest 创建房间请求
type CreateRoomRequest struct {
	Slug        string `json:"slug"`
	Title       string `json:"title"`
	Description string `json:"description"`
}

// CreateRoomHandler 创建房间（管理）
func (h *RoomHandler) CreateRoomHandler(w http.ResponseWriter, r *http.Request) {
	var req CreateRoomRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apperrors.Validation("invalid request body"))
		return
	}

	room := &model.Room{Slug: req.Slug, Title: req.Title, Description: req.Description}
	if err := h.manager.CreateRoom(r.Context(), room); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, room)
}

// CreateTrackRequest 曲目上架请求
type CreateTrackRequest struct {
	Title        string     `json:"title"`
	TrackNumber  int        `json:"trackNumber"`
	Duration     int        `json:"duration"`
	AudioKey     string     `json:"audioKey"`
	ReleasedAt   time.Time  `json:"releasedAt"`
	DecayStartAt *time.Time `json:"decayStartAt,omitempty"`
}

// CreateTrackHandler 曲目上架（管理）
func (h *RoomHandler) CreateTrackHandler(w http.ResponseWriter, r *http.Request) {
	slug := mux.Vars(r)["slug"]

	var req CreateTrackRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apperrors.Validation("invalid request body"))
		return
	}

	track := &model.Track{
		Title:        req.Title,
		TrackNumber:  req.TrackNumber,
		Duration:     req.Duration,
		AudioKey:     req.AudioKey,
		ReleasedAt:   req.ReleasedAt,
		DecayStartAt: req.DecayStartAt,
	}
	if err := h.manager.CreateTrack(r.Context(), slug, track); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, track)
}

// ArchiveTrackHandler 归档曲目（管理）
func (h *RoomHandler) ArchiveTrackHandler(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	slug := vars["slug"]
	trackID, err := strconv.ParseInt(vars["track_id"], 10, 64)
	if err != nil {
		writeError(w, apperrors.Validation("invalid track id"))
		return
	}

	track, err := h.manager.ArchiveTrack(r.Context(), slug, trackID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, track)
}

// ScheduleDecayRequest 设定衰减窗口请求
type ScheduleDecayRequest struct {
	DecayStartAt time.Time `json:"decayStartAt"`
}

// ScheduleDecayHandler 设定衰减窗口起点（管理）
func (h *RoomHandler) ScheduleDecayHandler(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	slug := vars["slug"]
	trackID, err := strconv.ParseInt(vars["track_id"], 10, 64)
	if err != nil {
		writeError(w, apperrors.Validation("invalid track id"))
		return
	}

	var req ScheduleDecayRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.DecayStartAt.IsZero() {
		writeError(w, apperrors.Validation("decayStartAt is required"))
		return
	}

	track, err := h.manager.ScheduleDecay(r.Context(), slug, trackID, req.DecayStartAt)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, track)
}

// ========== WebSocket 处理器 ==========

// RoomWebSocketHandler 房间实时订阅
// 快照播种在先、订阅在后，重复看到同一事件由reconciler吸收。
func (h *RoomHandler) RoomWebSocketHandler(w http.ResponseWriter, r *http.Request) {
	slug := mux.Vars(r)["slug"]

	session, err := h.manager.OpenRoomSession(r.Context(), slug)
	if err != nil {
		writeError(w, err)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		session.Close()
		logger.Error("websocket upgrade failed", logger.ErrorField(err))
		return
	}

	// 请求上下文在连接升级后随handler返回而取消，会话用独立上下文
	client := live.NewClient(conn)
	ctx, cancel := context.WithCancel(context.Background())

	go client.WritePump()
	go client.ReadPump(func() {
		// 观看端离开即释放订阅，不留延迟投递
		cancel()
	})
	go func() {
		defer close(client.Send)
		session.Run(ctx, client)
	}()

	logger.Info("room session opened", logger.String("room", slug))
}

// RegisterRoomRoutes 注册房间相关路由
func RegisterRoomRoutes(router *mux.Router, handler *RoomHandler,
	auth func(http.HandlerFunc) http.HandlerFunc, admin func(http.HandlerFunc) http.HandlerFunc) {
	router.HandleFunc("/api/rooms", handler.ListRoomsHandler).Methods(http.MethodGet)
	router.HandleFunc("/api/rooms", admin(handler.CreateRoomHandler)).Methods(http.MethodPost)
	router.HandleFunc("/api/rooms/{slug}", handler.GetRoomHandler).Methods(http.MethodGet)
	router.HandleFunc("/api/rooms/{slug}/tracks", admin(handler.CreateTrackHandler)).Methods(http.MethodPost)
	router.HandleFunc("/api/rooms/{slug}/tracks/{track_id}/archive", admin(handler.ArchiveTrackHandler)).Methods(http.MethodPost)
	router.HandleFunc("/api/rooms/{slug}/tracks/{track_id}/decay", admin(handler.ScheduleDecayHandler)).Methods(http.MethodPost)

	// WebSocket 路由
	router.HandleFunc("/ws/rooms/{slug}", auth(handler.RoomWebSocketHandler))
}
