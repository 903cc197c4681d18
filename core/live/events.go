package live

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"EbbFM/model"
)

// Action 事件动作，封闭集合
type Action string

const (
	ActionCreated      Action = "created"
	ActionDeleted      Action = "deleted"
	ActionStateChanged Action = "stateChanged"
)

// EntityType 事件实体类型
type EntityType string

const (
	EntityTrack      EntityType = "track"
	EntityReply      EntityType = "reply"
	EntityMarginalia EntityType = "marginalia"
)

// Event 总线消息
// 负载自包含，订阅方无需回查即可合并；但事件不是事实源，
// 丢弃任何缓冲事件后重新拉取快照必须收敛到同一状态。
type Event struct {
	Channel     string          `json:"channel"`
	Action      Action          `json:"action"`
	EntityType  EntityType      `json:"entityType"`
	EntityID    string          `json:"entityId"`
	Data        json.RawMessage `json:"data,omitempty"`
	PublishedAt int64           `json:"publishedAt"` // Unix毫秒，发布时由总线填充
}

// ========== 频道命名 ==========

// RoomChannel 房间频道，承载曲目归档/衰减触发事件
func RoomChannel(slug string) string {
	return "room:" + slug
}

// TopicChannel 主题频道，承载新回帖事件
func TopicChannel(topicID int64) string {
	return fmt.Sprintf("topic:%d", topicID)
}

// TrackChannel 曲目频道，承载旁注增删事件
func TrackChannel(trackID int64) string {
	return fmt.Sprintf("track:%d", trackID)
}

// ChannelKind 取频道类型前缀，用于指标维度
func ChannelKind(channel string) string {
	if i := strings.IndexByte(channel, ':'); i > 0 {
		return channel[:i]
	}
	return "unknown"
}

// ========== 事件构造 ==========

func mustMarshal(v interface{}) json.RawMessage {
	data, err := json.Marshal(v)
	if err != nil {
		// 模型类型不含不可序列化字段，到这里只可能是编码缺陷
		panic(err)
	}
	return data
}

// TrackStateChanged 曲目持久化字段变化（归档、衰减窗口设定）
// 负载只带持久化字段；订阅方用本地时钟重新推导状态，
// 不使用事件内嵌的时间，各客户端才会收敛到同一墙钟函数。
func TrackStateChanged(roomSlug string, track *model.Track) Event {
	return Event{
		Channel:    RoomChannel(roomSlug),
		Action:     ActionStateChanged,
		EntityType: EntityTrack,
		EntityID:   strconv.FormatInt(track.ID, 10),
		Data:       mustMarshal(track),
	}
}

// TrackCreated 新曲目上架
func TrackCreated(roomSlug string, track *model.Track) Event {
	return Event{
		Channel:    RoomChannel(roomSlug),
		Action:     ActionCreated,
		EntityType: EntityTrack,
		EntityID:   strconv.FormatInt(track.ID, 10),
		Data:       mustMarshal(track),
	}
}

// ReplyCreated 新回帖
func ReplyCreated(reply *model.Reply) Event {
	return Event{
		Channel:    TopicChannel(reply.TopicID),
		Action:     ActionCreated,
		EntityType: EntityReply,
		EntityID:   reply.ID,
		Data:       mustMarshal(reply),
	}
}

// MarginaliaCreated 新旁注
func MarginaliaCreated(note *model.Marginalia) Event {
	return Event{
		Channel:    TrackChannel(note.TrackID),
		Action:     ActionCreated,
		EntityType: EntityMarginalia,
		EntityID:   note.ID,
		Data:       mustMarshal(note),
	}
}

// MarginaliaDeleted 旁注被移除
func MarginaliaDeleted(trackID int64, id string) Event {
	return Event{
		Channel:    TrackChannel(trackID),
		Action:     ActionDeleted,
		EntityType: EntityMarginalia,
		EntityID:   id,
	}
}

// stamp 填充发布时间
func (e *Event) stamp() {
	if e.PublishedAt == 0 {
		e.PublishedAt = time.Now().UnixMilli()
	}
}
