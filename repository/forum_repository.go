package repository

import (
	"context"

	"EbbFM/model"

	"gorm.io/gorm"
)

// ForumRepository 论坛主题/回帖/曲目旁注数据访问接口
type ForumRepository interface {
	// 主题
	CreateTopic(ctx context.Context, topic *model.Topic) error
	GetTopic(ctx context.Context, topicID int64) (*model.Topic, error)
	ListTopics(ctx context.Context, roomSlug string) ([]*model.Topic, error)

	// 回帖
	CreateReply(ctx context.Context, reply *model.Reply) error
	// ListReplies 按时间正序分页，offset=0为最早一页；同一时刻按ID定序
	ListReplies(ctx context.Context, topicID int64, limit, offset int) ([]*model.Reply, error)

	// 旁注
	CreateMarginalia(ctx context.Context, note *model.Marginalia) error
	ListMarginalia(ctx context.Context, trackID int64) ([]*model.Marginalia, error)
	// DeleteMarginalia 删除不存在的旁注不算错误
	DeleteMarginalia(ctx context.Context, id string) error
}

// gormForumRepository GORM 实现
type gormForumRepository struct {
	db *gorm.DB
}

// NewGormForumRepository 创建 GORM 论坛仓库
func NewGormForumRepository(db *gorm.DB) ForumRepository {
	return &gormForumRepository{db: db}
}

// ========== 主题 ==========

// CreateTopic 创建主题
func (r *gormForumRepository) CreateTopic(ctx context.Context, topic *model.Topic) error {
	return r.db.WithContext(ctx).Create(topic).Error
}

// GetTopic 根据ID获取主题
func (r *gormForumRepository) GetTopic(ctx context.Context, topicID int64) (*model.Topic, error) {
	var topic model.Topic
	err := r.db.WithContext(ctx).
		Where("id = ?", topicID).
		First(&topic).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &topic, nil
}

// ListTopics 获取房间下的主题列表
func (r *gormForumRepository) ListTopics(ctx context.Context, roomSlug string) ([]*model.Topic, error) {
	var topics []*model.Topic
	err := r.db.WithContext(ctx).
		Where("room_slug = ?", roomSlug).
		Order("created_at DESC").
		Find(&topics).Error
	return topics, err
}

// ========== 回帖 ==========

// CreateReply 创建回帖
func (r *gormForumRepository) CreateReply(ctx context.Context, reply *model.Reply) error {
	return r.db.WithContext(ctx).Create(reply).Error
}

// ListReplies 获取回帖列表
// 按时间正序分页：offset=0是最早一页，翻页方向与阅读方向一致。
func (r *gormForumRepository) ListReplies(ctx context.Context, topicID int64, limit, offset int) ([]*model.Reply, error) {
	var replies []*model.Reply
	err := r.db.WithContext(ctx).
		Where("topic_id = ?", topicID).
		Order("created_at ASC, id ASC").
		Limit(limit).
		Offset(offset).
		Find(&replies).Error
	return replies, err
}

// ========== 旁注 ==========

// CreateMarginalia 创建旁注
func (r *gormForumRepository) CreateMarginalia(ctx context.Context, note *model.Marginalia) error {
	return r.db.WithContext(ctx).Create(note).Error
}

// ListMarginalia 获取曲目全部旁注
func (r *gormForumRepository) ListMarginalia(ctx context.Context, trackID int64) ([]*model.Marginalia, error) {
	var notes []*model.Marginalia
	err := r.db.WithContext(ctx).
		Where("track_id = ?", trackID).
		Order("created_at ASC").
		Find(&notes).Error
	return notes, err
}

// DeleteMarginalia 删除旁注
func (r *gormForumRepository) DeleteMarginalia(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).
		Where("id = ?", id).
		Delete(&model.Marginalia{}).Error
}
