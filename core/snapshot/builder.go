package snapshot

import (
	"context"
	"time"

	"EbbFM/core/decay"
	"EbbFM/model"
	apperrors "EbbFM/pkg/errors"
	"EbbFM/repository"
	"EbbFM/storage"
)

// TrackView 曲目持久化字段加推导状态
type TrackView struct {
	model.Track
	State decay.State `json:"state"`
	// StreamURL 可播放曲目的预签名播放地址
	StreamURL string `json:"streamUrl,omitempty"`
}

// RoomSnapshot 房间某一时刻的物化视图
// TakenAt 是整份快照共用的参考时间，保证各曲目衰减进度相互可比。
type RoomSnapshot struct {
	Room    model.Room   `json:"room"`
	TakenAt time.Time    `json:"takenAt"`
	Tracks  []*TrackView `json:"tracks"`
}

// Builder 房间快照构建器
type Builder struct {
	repo    repository.RoomRepository
	window  time.Duration
	presign func(ctx context.Context, audioKey string) string
	nowFn   func() time.Time
}

// NewBuilder 创建快照构建器
func NewBuilder(repo repository.RoomRepository, window time.Duration) *Builder {
	return &Builder{
		repo:    repo,
		window:  window,
		presign: storage.PresignStreamURL,
		nowFn:   time.Now,
	}
}

// Build 构建房间当前快照
// 未知slug与已停用房间一律返回NotFound，读边界上两者不可区分。
func (b *Builder) Build(ctx context.Context, slug string) (*RoomSnapshot, error) {
	room, err := b.repo.GetBySlug(ctx, slug)
	if err != nil {
		return nil, apperrors.StoreUnavailable(err)
	}
	if room == nil {
		return nil, apperrors.NotFound("room not found")
	}

	tracks, err := b.repo.ListTracks(ctx, slug)
	if err != nil {
		return nil, apperrors.StoreUnavailable(err)
	}

	// 整份快照用同一个now，逐曲目取时间会让进度彼此错位
	now := b.nowFn()

	views := make([]*TrackView, 0, len(tracks))
	for _, track := range tracks {
		view := &TrackView{
			Track: *track,
			State: decay.Project(track, b.window, now),
		}
		if view.State.Audible() {
			view.StreamURL = b.presign(ctx, track.AudioKey)
		}
		views = append(views, view)
	}

	return &RoomSnapshot{
		Room:    *room,
		TakenAt: now,
		Tracks:  views,
	}, nil
}

// Window 返回配置的衰减窗口
func (b *Builder) Window() time.Duration {
	return b.window
}
