package live

import (
	"context"
	"testing"
	"time"

	"EbbFM/core/snapshot"
	"EbbFM/model"
	apperrors "EbbFM/pkg/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubRoomRepo struct {
	rooms  map[string]*model.Room
	tracks map[int64]*model.Track
}

func newStubRoomRepo() *stubRoomRepo {
	return &stubRoomRepo{
		rooms:  make(map[string]*model.Room),
		tracks: make(map[int64]*model.Track),
	}
}

func (s *stubRoomRepo) CreateRoom(_ context.Context, room *model.Room) error {
	s.rooms[room.Slug] = room
	return nil
}

func (s *stubRoomRepo) GetBySlug(_ context.Context, slug string) (*model.Room, error) {
	room, ok := s.rooms[slug]
	if !ok || !room.IsActive {
		return nil, nil
	}
	return room, nil
}

func (s *stubRoomRepo) SetActive(_ context.Context, slug string, active bool) error {
	if room, ok := s.rooms[slug]; ok {
		room.IsActive = active
	}
	return nil
}

func (s *stubRoomRepo) ListActive(_ context.Context) ([]*model.RoomListItem, error) {
	var items []*model.RoomListItem
	for _, room := range s.rooms {
		if room.IsActive {
			items = append(items, &model.RoomListItem{Slug: room.Slug, Title: room.Title})
		}
	}
	return items, nil
}

func (s *stubRoomRepo) CreateTrack(_ context.Context, track *model.Track) error {
	track.ID = int64(len(s.tracks) + 1)
	s.tracks[track.ID] = track
	return nil
}

func (s *stubRoomRepo) GetTrack(_ context.Context, trackID int64) (*model.Track, error) {
	return s.tracks[trackID], nil
}

func (s *stubRoomRepo) ListTracks(_ context.Context, roomSlug string) ([]*model.Track, error) {
	var tracks []*model.Track
	for _, track := range s.tracks {
		if track.RoomSlug == roomSlug {
			tracks = append(tracks, track)
		}
	}
	return tracks, nil
}

func (s *stubRoomRepo) ArchiveTrack(_ context.Context, trackID int64) error {
	if track, ok := s.tracks[trackID]; ok {
		track.IsArchived = true
	}
	return nil
}

func (s *stubRoomRepo) SetDecayStart(_ context.Context, trackID int64, at time.Time) error {
	if track, ok := s.tracks[trackID]; ok {
		track.DecayStartAt = &at
	}
	return nil
}

func newTestManager(t *testing.T) (*Manager, *stubRoomRepo) {
	t.Helper()

	repo := newStubRoomRepo()
	repo.rooms["midnight-sessions"] = &model.Room{
		Slug: "midnight-sessions", Title: "Midnight Sessions", IsActive: true,
	}

	bus := NewBus()
	t.Cleanup(bus.Close)

	builder := snapshot.NewBuilder(repo, reconcilerWindow)
	return NewManager(repo, builder, bus, 50*time.Millisecond), repo
}

func seedTrack(t *testing.T, repo *stubRoomRepo) *model.Track {
	t.Helper()
	track := &model.Track{
		RoomSlug:    "midnight-sessions",
		Title:       "Opening",
		TrackNumber: 1,
		ReleasedAt:  time.Now().Add(-time.Hour),
	}
	require.NoError(t, repo.CreateTrack(context.Background(), track))
	return track
}

func TestManagerCreateTrack(t *testing.T) {
	manager, _ := newTestManager(t)

	sub := manager.Bus().Subscribe(RoomChannel("midnight-sessions"))
	defer sub.Close()

	t.Run("正常上架并发布created事件", func(t *testing.T) {
		track := &model.Track{Title: "Opening", TrackNumber: 1, ReleasedAt: time.Now()}
		require.NoError(t, manager.CreateTrack(context.Background(), "midnight-sessions", track))
		assert.Equal(t, "midnight-sessions", track.RoomSlug)

		ev := <-sub.C
		assert.Equal(t, ActionCreated, ev.Action)
		assert.Equal(t, EntityTrack, ev.EntityType)
	})

	t.Run("缺少必填字段", func(t *testing.T) {
		err := manager.CreateTrack(context.Background(), "midnight-sessions", &model.Track{Title: "No Date"})
		assert.Equal(t, apperrors.CodeValidationFailed, apperrors.CodeOf(err))
	})

	t.Run("衰减起点早于发布时间", func(t *testing.T) {
		released := time.Now()
		early := released.Add(-time.Hour)
		err := manager.CreateTrack(context.Background(), "midnight-sessions", &model.Track{
			Title: "Bad", ReleasedAt: released, DecayStartAt: &early,
		})
		assert.Equal(t, apperrors.CodeValidationFailed, apperrors.CodeOf(err))
	})

	t.Run("未知房间", func(t *testing.T) {
		err := manager.CreateTrack(context.Background(), "ghost", &model.Track{Title: "X", ReleasedAt: time.Now()})
		assert.Equal(t, apperrors.CodeNotFound, apperrors.CodeOf(err))
	})
}

func TestManagerArchiveTrack(t *testing.T) {
	manager, repo := newTestManager(t)
	track := seedTrack(t, repo)

	sub := manager.Bus().Subscribe(RoomChannel("midnight-sessions"))
	defer sub.Close()

	archived, err := manager.ArchiveTrack(context.Background(), "midnight-sessions", track.ID)
	require.NoError(t, err)
	assert.True(t, archived.IsArchived)

	ev := <-sub.C
	assert.Equal(t, ActionStateChanged, ev.Action)

	t.Run("重复归档是no-op且不再发事件", func(t *testing.T) {
		again, err := manager.ArchiveTrack(context.Background(), "midnight-sessions", track.ID)
		require.NoError(t, err)
		assert.True(t, again.IsArchived)

		select {
		case ev := <-sub.C:
			t.Fatalf("unexpected event: %+v", ev)
		default:
		}
	})

	t.Run("曲目不在该房间视为不存在", func(t *testing.T) {
		repo.rooms["other"] = &model.Room{Slug: "other", Title: "Other", IsActive: true}
		_, err := manager.ArchiveTrack(context.Background(), "other", track.ID)
		assert.Equal(t, apperrors.CodeNotFound, apperrors.CodeOf(err))
	})

	t.Run("停用房间视为不存在", func(t *testing.T) {
		require.NoError(t, repo.SetActive(context.Background(), "midnight-sessions", false))
		defer repo.SetActive(context.Background(), "midnight-sessions", true)

		_, err := manager.ArchiveTrack(context.Background(), "midnight-sessions", track.ID)
		assert.Equal(t, apperrors.CodeNotFound, apperrors.CodeOf(err))
	})
}

func TestManagerScheduleDecay(t *testing.T) {
	manager, repo := newTestManager(t)
	track := seedTrack(t, repo)

	t.Run("正常设定", func(t *testing.T) {
		at := track.ReleasedAt.Add(24 * time.Hour)
		updated, err := manager.ScheduleDecay(context.Background(), "midnight-sessions", track.ID, at)
		require.NoError(t, err)
		require.NotNil(t, updated.DecayStartAt)
		assert.True(t, updated.DecayStartAt.Equal(at))
	})

	t.Run("早于发布时间被拒", func(t *testing.T) {
		_, err := manager.ScheduleDecay(context.Background(), "midnight-sessions", track.ID, track.ReleasedAt.Add(-time.Minute))
		assert.Equal(t, apperrors.CodeValidationFailed, apperrors.CodeOf(err))
	})

	t.Run("已归档曲目被拒", func(t *testing.T) {
		_, err := manager.ArchiveTrack(context.Background(), "midnight-sessions", track.ID)
		require.NoError(t, err)

		_, err = manager.ScheduleDecay(context.Background(), "midnight-sessions", track.ID, time.Now())
		assert.Equal(t, apperrors.CodeValidationFailed, apperrors.CodeOf(err))
	})
}

func TestManagerWriteSurvivesBusFailure(t *testing.T) {
	manager, repo := newTestManager(t)
	track := seedTrack(t, repo)

	manager.Bus().Close()

	archived, err := manager.ArchiveTrack(context.Background(), "midnight-sessions", track.ID)
	require.NoError(t, err)
	assert.True(t, archived.IsArchived)
	assert.True(t, repo.tracks[track.ID].IsArchived)
}

func TestManagerOpenRoomSession(t *testing.T) {
	manager, repo := newTestManager(t)
	seedTrack(t, repo)

	session, err := manager.OpenRoomSession(context.Background(), "midnight-sessions")
	require.NoError(t, err)
	defer session.Close()

	assert.Equal(t, 1, session.rec.TrackCount())
	assert.Equal(t, 1, manager.Bus().SubscriberCount(RoomChannel("midnight-sessions")))

	t.Run("未知房间不建立会话", func(t *testing.T) {
		_, err := manager.OpenRoomSession(context.Background(), "ghost")
		assert.Equal(t, apperrors.CodeNotFound, apperrors.CodeOf(err))
	})
}
