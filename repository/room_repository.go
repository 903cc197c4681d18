package repository

import (
	"context"
	"time"

	"EbbFM/model"

	"gorm.io/gorm"
)

// RoomRepository 房间与曲目数据访问接口
type RoomRepository interface {
	// 房间
	CreateRoom(ctx context.Context, room *model.Room) error
	// GetBySlug 只返回活跃房间；停用房间对读取方等同于不存在
	GetBySlug(ctx context.Context, slug string) (*model.Room, error)
	SetActive(ctx context.Context, slug string, active bool) error
	ListActive(ctx context.Context) ([]*model.RoomListItem, error)

	// 曲目
	CreateTrack(ctx context.Context, track *model.Track) error
	GetTrack(ctx context.Context, trackID int64) (*model.Track, error)
	// ListTracks 按曲序升序返回，曲序重复时按ID升序保证顺序稳定
	ListTracks(ctx context.Context, roomSlug string) ([]*model.Track, error)
	// ArchiveTrack 归档为单向操作，只会置true
	ArchiveTrack(ctx context.Context, trackID int64) error
	SetDecayStart(ctx context.Context, trackID int64, at time.Time) error
}

// gormRoomRepository GORM 实现
type gormRoomRepository struct {
	db *gorm.DB
}

// NewGormRoomRepository 创建 GORM 房间仓库
func NewGormRoomRepository(db *gorm.DB) RoomRepository {
	return &gormRoomRepository{db: db}
}

// ========== 房间 ==========

// CreateRoom 创建房间
func (r *gormRoomRepository) CreateRoom(ctx context.Context, room *model.Room) error {
	return r.db.WithContext(ctx).Create(room).Error
}

// GetBySlug 根据slug获取活跃房间
func (r *gormRoomRepository) GetBySlug(ctx context.Context, slug string) (*model.Room, error) {
	var room model.Room
	err := r.db.WithContext(ctx).
		Where("slug = ? AND is_active = ?", slug, true).
		First(&room).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &room, nil
}

// SetActive 切换房间软删除标记
func (r *gormRoomRepository) SetActive(ctx context.Context, slug string, active bool) error {
	return r.db.WithContext(ctx).Model(&model.Room{}).
		Where("slug = ?", slug).
		Update("is_active", active).Error
}

// ListActive 获取活跃房间列表及曲目数
func (r *gormRoomRepository) ListActive(ctx context.Context) ([]*model.RoomListItem, error) {
	var items []*model.RoomListItem
	err := r.db.WithContext(ctx).Model(&model.Room{}).
		Select("rooms.slug, rooms.title, rooms.description, COUNT(tracks.id) AS track_count").
		Joins("LEFT JOIN tracks ON tracks.room_slug = rooms.slug").
		Where("rooms.is_active = ?", true).
		Group("rooms.slug, rooms.title, rooms.description").
		Order("rooms.created_at DESC").
		Scan(&items).Error
	return items, err
}

// ========== 曲目 ==========

// CreateTrack 创建曲目
func (r *gormRoomRepository) CreateTrack(ctx context.Context, track *model.Track) error {
	return r.db.WithContext(ctx).Create(track).Error
}

// GetTrack 根据ID获取曲目
func (r *gormRoomRepository) GetTrack(ctx context.Context, trackID int64) (*model.Track, error) {
	var track model.Track
	err := r.db.WithContext(ctx).
		Where("id = ?", trackID).
		First(&track).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &track, nil
}

// ListTracks 获取房间全部曲目
func (r *gormRoomRepository) ListTracks(ctx context.Context, roomSlug string) ([]*model.Track, error) {
	var tracks []*model.Track
	err := r.db.WithContext(ctx).
		Where("room_slug = ?", roomSlug).
		Order("track_number ASC, id ASC").
		Find(&tracks).Error
	return tracks, err
}

// ArchiveTrack 归档曲目
func (r *gormRoomRepository) ArchiveTrack(ctx context.Context, trackID int64) error {
	return r.db.WithContext(ctx).Model(&model.Track{}).
		Where("id = ?", trackID).
		Update("is_archived", true).Error
}

// SetDecayStart 设置衰减窗口起点
func (r *gormRoomRepository) SetDecayStart(ctx context.Context, trackID int64, at time.Time) error {
	return r.db.WithContext(ctx).Model(&model.Track{}).
		Where("id = ?", trackID).
		Update("decay_start_at", at).Error
}
