package live

import (
	"context"
	"time"

	"EbbFM/core/snapshot"
	"EbbFM/logger"
	"EbbFM/model"
	apperrors "EbbFM/pkg/errors"
	"EbbFM/repository"
)

// Manager 房间实时状态的业务入口
// 写路径一律先落库再发布；发布失败只记日志，落库成功即写入成功，
// 错过事件的客户端重新拉快照即可收敛。
type Manager struct {
	repo    repository.RoomRepository
	builder *snapshot.Builder
	bus     *Bus
	tick    time.Duration
}

// NewManager 创建房间管理器
func NewManager(repo repository.RoomRepository, builder *snapshot.Builder, bus *Bus, tick time.Duration) *Manager {
	return &Manager{
		repo:    repo,
		builder: builder,
		bus:     bus,
		tick:    tick,
	}
}

// Bus 返回事件总线
func (m *Manager) Bus() *Bus {
	return m.bus
}

// RoomList 活跃房间列表
func (m *Manager) RoomList(ctx context.Context) ([]*model.RoomListItem, error) {
	items, err := m.repo.ListActive(ctx)
	if err != nil {
		return nil, apperrors.StoreUnavailable(err)
	}
	return items, nil
}

// Snapshot 房间当前快照
func (m *Manager) Snapshot(ctx context.Context, slug string) (*snapshot.RoomSnapshot, error) {
	return m.builder.Build(ctx, slug)
}

// CreateRoom 创建房间（管理操作）
func (m *Manager) CreateRoom(ctx context.Context, room *model.Room) error {
	if room.Slug == "" || room.Title == "" {
		return apperrors.Validation("slug and title are required")
	}
	room.IsActive = true
	if err := m.repo.CreateRoom(ctx, room); err != nil {
		return apperrors.StoreUnavailable(err)
	}
	return nil
}

// CreateTrack 曲目上架（管理操作）
// 落库成功后在房间频道发布created事件。
func (m *Manager) CreateTrack(ctx context.Context, slug string, track *model.Track) error {
	if track.Title == "" || track.ReleasedAt.IsZero() {
		return apperrors.Validation("title and releasedAt are required")
	}
	if track.DecayStartAt != nil && track.DecayStartAt.Before(track.ReleasedAt) {
		return apperrors.Validation("decayStartAt must not precede releasedAt")
	}

	room, err := m.repo.GetBySlug(ctx, slug)
	if err != nil {
		return apperrors.StoreUnavailable(err)
	}
	if room == nil {
		return apperrors.NotFound("room not found")
	}

	track.RoomSlug = slug
	if err := m.repo.CreateTrack(ctx, track); err != nil {
		return apperrors.StoreUnavailable(err)
	}

	m.publish(TrackCreated(slug, track))
	return nil
}

// ArchiveTrack 归档曲目（管理操作，终态覆盖）
// 已归档的曲目重复归档是no-op，不报错也不再发事件。
func (m *Manager) ArchiveTrack(ctx context.Context, slug string, trackID int64) (*model.Track, error) {
	track, err := m.loadRoomTrack(ctx, slug, trackID)
	if err != nil {
		return nil, err
	}
	if track.IsArchived {
		return track, nil
	}

	if err := m.repo.ArchiveTrack(ctx, trackID); err != nil {
		return nil, apperrors.StoreUnavailable(err)
	}
	track.IsArchived = true

	m.publish(TrackStateChanged(slug, track))
	return track, nil
}

// ScheduleDecay 设定曲目衰减窗口起点（管理操作）
func (m *Manager) ScheduleDecay(ctx context.Context, slug string, trackID int64, at time.Time) (*model.Track, error) {
	track, err := m.loadRoomTrack(ctx, slug, trackID)
	if err != nil {
		return nil, err
	}
	if track.IsArchived {
		return nil, apperrors.Validation("track is already archived")
	}
	// 不变式：曲目不能在发布之前就开始衰减
	if at.Before(track.ReleasedAt) {
		return nil, apperrors.Validation("decayStartAt must not precede releasedAt")
	}

	if err := m.repo.SetDecayStart(ctx, trackID, at); err != nil {
		return nil, apperrors.StoreUnavailable(err)
	}
	track.DecayStartAt = &at

	m.publish(TrackStateChanged(slug, track))
	return track, nil
}

// OpenRoomSession 建立一次房间观看会话：先取快照播种，再挂上频道订阅
func (m *Manager) OpenRoomSession(ctx context.Context, slug string) (*RoomSession, error) {
	snap, err := m.builder.Build(ctx, slug)
	if err != nil {
		return nil, err
	}

	return &RoomSession{
		snap: snap,
		rec:  NewRoomReconciler(snap, m.builder.Window()),
		sub:  m.bus.Subscribe(RoomChannel(slug)),
		tick: m.tick,
	}, nil
}

// loadRoomTrack 校验房间活跃且曲目归属该房间
// 房间停用、曲目不存在、曲目不在该房间，对调用方都是NotFound。
func (m *Manager) loadRoomTrack(ctx context.Context, slug string, trackID int64) (*model.Track, error) {
	room, err := m.repo.GetBySlug(ctx, slug)
	if err != nil {
		return nil, apperrors.StoreUnavailable(err)
	}
	if room == nil {
		return nil, apperrors.NotFound("room not found")
	}

	track, err := m.repo.GetTrack(ctx, trackID)
	if err != nil {
		return nil, apperrors.StoreUnavailable(err)
	}
	if track == nil || track.RoomSlug != slug {
		return nil, apperrors.NotFound("track not found")
	}
	return track, nil
}

// publish 发布事件，失败只记日志
func (m *Manager) publish(ev Event) {
	if err := m.bus.Publish(ev); err != nil {
		logger.Warn("event publish failed, clients will converge via snapshot",
			logger.ErrorField(err),
			logger.String("channel", ev.Channel),
			logger.String("action", string(ev.Action)))
	}
}
