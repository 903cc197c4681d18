package server

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"EbbFM/core/forum"
	"EbbFM/core/live"
	"EbbFM/logger"
	apperrors "EbbFM/pkg/errors"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
)

// ForumHandler 论坛与旁注 HTTP/WS 处理器
type ForumHandler struct {
	manager  *forum.Manager
	upgrader websocket.Upgrader
}

// NewForumHandler 创建论坛处理器
func NewForumHandler(manager *forum.Manager) *ForumHandler {
	return &ForumHandler{
		manager: manager,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// ========== 主题 ==========

// CreateTopicRequest 创建主题请求
type CreateTopicRequest struct {
	RoomSlug string `json:"roomSlug"`
	TrackID  *int64 `json:"trackId,omitempty"`
	Title    string `json:"title"`
}

// CreateTopicHandler 创建主题
func (h *ForumHandler) CreateTopicHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := r.Context().Value(ctxKeyUserID).(int64)
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	var req CreateTopicRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apperrors.Validation("invalid request body"))
		return
	}

	topic, err := h.manager.CreateTopic(r.Context(), req.RoomSlug, req.TrackID, userID, req.Title)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, topic)
}

// ListTopicsHandler 房间主题列表
func (h *ForumHandler) ListTopicsHandler(w http.ResponseWriter, r *http.Request) {
	slug := mux.Vars(r)["slug"]

	topics, err := h.manager.ListTopics(r.Context(), slug)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, topics)
}

// ========== 回帖 ==========

// CreateReplyRequest 回帖请求
type CreateReplyRequest struct {
	Content string `json:"content"`
}

// CreateReplyHandler 发表回帖
func (h *ForumHandler) CreateReplyHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := r.Context().Value(ctxKeyUserID).(int64)
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	topicID, err := strconv.ParseInt(mux.Vars(r)["topic_id"], 10, 64)
	if err != nil {
		writeError(w, apperrors.Validation("invalid topic id"))
		return
	}

	var req CreateReplyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apperrors.Validation("invalid request body"))
		return
	}

	reply, err := h.manager.CreateReply(r.Context(), topicID, userID, req.Content)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, reply)
}

// ListRepliesHandler 主题回帖列表
func (h *ForumHandler) ListRepliesHandler(w http.ResponseWriter, r *http.Request) {
	topicID, err := strconv.ParseInt(mux.Vars(r)["topic_id"], 10, 64)
	if err != nil {
		writeError(w, apperrors.Validation("invalid topic id"))
		return
	}

	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))

	replies, err := h.manager.ListReplies(r.Context(), topicID, limit, offset)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, replies)
}

// ========== 旁注 ==========

// CreateMarginaliaRequest 旁注请求
type CreateMarginaliaRequest struct {
	Content  string  `json:"content"`
	Position float64 `json:"position"`
}

// CreateMarginaliaHandler 添加旁注
func (h *ForumHandler) CreateMarginaliaHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := r.Context().Value(ctxKeyUserID).(int64)
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	trackID, err := strconv.ParseInt(mux.Vars(r)["track_id"], 10, 64)
	if err != nil {
		writeError(w, apperrors.Validation("invalid track id"))
		return
	}

	var req CreateMarginaliaRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apperrors.Validation("invalid request body"))
		return
	}

	note, err := h.manager.CreateMarginalia(r.Context(), trackID, userID, req.Content, req.Position)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, note)
}

// ListMarginaliaHandler 曲目旁注列表
func (h *ForumHandler) ListMarginaliaHandler(w http.ResponseWriter, r *http.Request) {
	trackID, err := strconv.ParseInt(mux.Vars(r)["track_id"], 10, 64)
	if err != nil {
		writeError(w, apperrors.Validation("invalid track id"))
		return
	}

	notes, err := h.manager.ListMarginalia(r.Context(), trackID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, notes)
}

// DeleteMarginaliaHandler 移除旁注（管理/举报处置）
func (h *ForumHandler) DeleteMarginaliaHandler(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	trackID, err := strconv.ParseInt(vars["track_id"], 10, 64)
	if err != nil {
		writeError(w, apperrors.Validation("invalid track id"))
		return
	}

	if err := h.manager.DeleteMarginalia(r.Context(), trackID, vars["id"]); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "deleted"})
}

// ========== WebSocket 处理器 ==========

// ChannelWebSocketHandler 订阅单个主题或曲目频道
// 会话先用现有条目播种服务端视图，再挂订阅，重复投递在服务端吸收。
func (h *ForumHandler) ChannelWebSocketHandler(w http.ResponseWriter, r *http.Request) {
	channel := r.URL.Query().Get("name")

	session, err := h.manager.OpenChannelSession(r.Context(), channel)
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
		cancel()
	})
	go func() {
		defer close(client.Send)
		session.Run(ctx, client)
	}()

	logger.Info("channel subscription opened", logger.String("channel", channel))
}

// RegisterForumRoutes 注册论坛相关路由
func RegisterForumRoutes(router *mux.Router, handler *ForumHandler,
	auth func(http.HandlerFunc) http.HandlerFunc, admin func(http.HandlerFunc) http.HandlerFunc) {
	router.HandleFunc("/api/topics", auth(handler.CreateTopicHandler)).Methods(http.MethodPost)
	router.HandleFunc("/api/rooms/{slug}/topics", handler.ListTopicsHandler).Methods(http.MethodGet)
	router.HandleFunc("/api/topics/{topic_id}/replies", handler.ListRepliesHandler).Methods(http.MethodGet)
	router.HandleFunc("/api/topics/{topic_id}/replies", auth(handler.CreateReplyHandler)).Methods(http.MethodPost)
	router.HandleFunc("/api/tracks/{track_id}/marginalia", handler.ListMarginaliaHandler).Methods(http.MethodGet)
	router.HandleFunc("/api/tracks/{track_id}/marginalia", auth(handler.CreateMarginaliaHandler)).Methods(http.MethodPost)
	router.HandleFunc("/api/tracks/{track_id}/marginalia/{id}", admin(handler.DeleteMarginaliaHandler)).Methods(http.MethodDelete)

	// WebSocket 路由
	router.HandleFunc("/ws/channels", auth(handler.ChannelWebSocketHandler))
}
