package forum

import (
	"context"
	"strconv"
	"strings"
	"time"

	"EbbFM/core/live"
	"EbbFM/core/moderation"
	"EbbFM/logger"
	"EbbFM/metrics"
	"EbbFM/model"
	apperrors "EbbFM/pkg/errors"
	"EbbFM/repository"

	"github.com/google/uuid"
)

const maxContentLength = 4000

// 频道会话播种时取回的条目上限
const channelSeedLimit = 100

// Manager 论坛写路径的业务入口
// 所有会触发事件发布的写入先过内容与频率门，再落库，最后发布；
// 发布失败不会让已落库的写入失败。
type Manager struct {
	repo  repository.ForumRepository
	rooms repository.RoomRepository
	gate  *moderation.ContentGate
	rate  *moderation.RateGate
	bus   *live.Bus
}

// NewManager 创建论坛管理器
func NewManager(repo repository.ForumRepository, rooms repository.RoomRepository,
	gate *moderation.ContentGate, rate *moderation.RateGate, bus *live.Bus) *Manager {
	return &Manager{
		repo:  repo,
		rooms: rooms,
		gate:  gate,
		rate:  rate,
		bus:   bus,
	}
}

// ========== 主题 ==========

// CreateTopic 创建主题
func (m *Manager) CreateTopic(ctx context.Context, roomSlug string, trackID *int64, authorID int64, title string) (*model.Topic, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return nil, apperrors.Validation("title is required")
	}
	if err := m.checkContent(title); err != nil {
		return nil, err
	}

	room, err := m.rooms.GetBySlug(ctx, roomSlug)
	if err != nil {
		return nil, apperrors.StoreUnavailable(err)
	}
	if room == nil {
		return nil, apperrors.NotFound("room not found")
	}

	topic := &model.Topic{
		RoomSlug:  roomSlug,
		TrackID:   trackID,
		Title:     title,
		AuthorID:  authorID,
		CreatedAt: time.Now(),
	}
	if err := m.repo.CreateTopic(ctx, topic); err != nil {
		return nil, apperrors.StoreUnavailable(err)
	}
	return topic, nil
}

// ListTopics 房间主题列表
func (m *Manager) ListTopics(ctx context.Context, roomSlug string) ([]*model.Topic, error) {
	topics, err := m.repo.ListTopics(ctx, roomSlug)
	if err != nil {
		return nil, apperrors.StoreUnavailable(err)
	}
	return topics, nil
}

// ========== 回帖 ==========

// CreateReply 发表回帖
// 顺序：校验 → 内容门 → 频率门 → 落库 → 发布。任何一步拒绝都不会留下半成品：
// 没有无事件的孤儿行，也没有无行的事件。
func (m *Manager) CreateReply(ctx context.Context, topicID, authorID int64, content string) (*model.Reply, error) {
	content = strings.TrimSpace(content)
	if content == "" || len(content) > maxContentLength {
		return nil, apperrors.Validation("content is required and must not exceed the length limit")
	}

	topic, err := m.repo.GetTopic(ctx, topicID)
	if err != nil {
		return nil, apperrors.StoreUnavailable(err)
	}
	if topic == nil {
		return nil, apperrors.NotFound("topic not found")
	}

	if err := m.checkContent(content); err != nil {
		return nil, err
	}
	if err := m.checkRate(ctx, authorID); err != nil {
		return nil, err
	}

	reply := &model.Reply{
		ID:        uuid.NewString(),
		TopicID:   topicID,
		AuthorID:  authorID,
		Content:   content,
		CreatedAt: time.Now(),
	}
	if err := m.repo.CreateReply(ctx, reply); err != nil {
		return nil, apperrors.StoreUnavailable(err)
	}

	m.publish(live.ReplyCreated(reply))
	return reply, nil
}

// ListReplies 主题回帖列表
func (m *Manager) ListReplies(ctx context.Context, topicID int64, limit, offset int) ([]*model.Reply, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	replies, err := m.repo.ListReplies(ctx, topicID, limit, offset)
	if err != nil {
		return nil, apperrors.StoreUnavailable(err)
	}
	return replies, nil
}

// ========== 旁注 ==========

// CreateMarginalia 在曲目时间轴上添加旁注
func (m *Manager) CreateMarginalia(ctx context.Context, trackID, authorID int64, content string, position float64) (*model.Marginalia, error) {
	content = strings.TrimSpace(content)
	if content == "" || len(content) > maxContentLength {
		return nil, apperrors.Validation("content is required and must not exceed the length limit")
	}
	if position < 0 {
		return nil, apperrors.Validation("position must not be negative")
	}

	track, err := m.rooms.GetTrack(ctx, trackID)
	if err != nil {
		return nil, apperrors.StoreUnavailable(err)
	}
	if track == nil {
		return nil, apperrors.NotFound("track not found")
	}

	if err := m.checkContent(content); err != nil {
		return nil, err
	}
	if err := m.checkRate(ctx, authorID); err != nil {
		return nil, err
	}

	note := &model.Marginalia{
		ID:        uuid.NewString(),
		TrackID:   trackID,
		AuthorID:  authorID,
		Content:   content,
		Position:  position,
		CreatedAt: time.Now(),
	}
	if err := m.repo.CreateMarginalia(ctx, note); err != nil {
		return nil, apperrors.StoreUnavailable(err)
	}

	m.publish(live.MarginaliaCreated(note))
	return note, nil
}

// ListMarginalia 曲目旁注列表
func (m *Manager) ListMarginalia(ctx context.Context, trackID int64) ([]*model.Marginalia, error) {
	notes, err := m.repo.ListMarginalia(ctx, trackID)
	if err != nil {
		return nil, apperrors.StoreUnavailable(err)
	}
	return notes, nil
}

// DeleteMarginalia 移除旁注（举报/管理动作的落点）
// 删除不存在的旁注同样发布deleted事件：订阅方的按身份删除本就是no-op。
func (m *Manager) DeleteMarginalia(ctx context.Context, trackID int64, id string) error {
	if err := m.repo.DeleteMarginalia(ctx, id); err != nil {
		return apperrors.StoreUnavailable(err)
	}

	m.publish(live.MarginaliaDeleted(trackID, id))
	return nil
}

// ========== 频道会话 ==========

// OpenChannelSession 建立一次主题或曲目频道的观看会话
// 房间会话的同构形态：先按现有列表播种本地视图，再挂上频道订阅，
// 播种与订阅重叠看到的同一事件由幂等合并吸收。
func (m *Manager) OpenChannelSession(ctx context.Context, channel string) (*live.ThreadSession, error) {
	kind, id, ok := parseChannel(channel)
	if !ok {
		return nil, apperrors.Validation("channel must be topic:<id> or track:<id>")
	}

	rec := live.NewThreadReconciler()

	switch kind {
	case "topic":
		topic, err := m.repo.GetTopic(ctx, id)
		if err != nil {
			return nil, apperrors.StoreUnavailable(err)
		}
		if topic == nil {
			return nil, apperrors.NotFound("topic not found")
		}
		replies, err := m.repo.ListReplies(ctx, id, channelSeedLimit, 0)
		if err != nil {
			return nil, apperrors.StoreUnavailable(err)
		}
		rec.SeedReplies(replies)

	case "track":
		track, err := m.rooms.GetTrack(ctx, id)
		if err != nil {
			return nil, apperrors.StoreUnavailable(err)
		}
		if track == nil {
			return nil, apperrors.NotFound("track not found")
		}
		notes, err := m.repo.ListMarginalia(ctx, id)
		if err != nil {
			return nil, apperrors.StoreUnavailable(err)
		}
		rec.SeedMarginalia(notes)
	}

	return live.NewThreadSession(rec, m.bus.Subscribe(channel)), nil
}

// parseChannel 拆出频道类型与实体ID
func parseChannel(channel string) (string, int64, bool) {
	kind, rest, found := strings.Cut(channel, ":")
	if !found || (kind != "topic" && kind != "track") {
		return "", 0, false
	}
	id, err := strconv.ParseInt(rest, 10, 64)
	if err != nil || id <= 0 {
		return "", 0, false
	}
	return kind, id, true
}

// ========== 内部 ==========

func (m *Manager) checkContent(text string) error {
	if err := m.gate.Check(text); err != nil {
		metrics.RepliesRejected.WithLabelValues(apperrors.ReasonContentPolicy).Inc()
		return err
	}
	return nil
}

func (m *Manager) checkRate(ctx context.Context, userID int64) error {
	if err := m.rate.Check(ctx, userID); err != nil {
		if apperrors.CodeOf(err) == apperrors.CodePolicyRejected {
			metrics.RepliesRejected.WithLabelValues(apperrors.ReasonRateLimited).Inc()
		}
		return err
	}
	return nil
}

// publish 发布事件，失败只记日志
func (m *Manager) publish(ev live.Event) {
	if err := m.bus.Publish(ev); err != nil {
		logger.Warn("event publish failed, clients will converge via snapshot",
			logger.ErrorField(err),
			logger.String("channel", ev.Channel),
			logger.String("action", string(ev.Action)))
	}
}
