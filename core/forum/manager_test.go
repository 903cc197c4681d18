package forum

import (
	"context"
	"errors"
	"sort"
	"strings"
	"testing"
	"time"

	"EbbFM/core/live"
	"EbbFM/core/moderation"
	"EbbFM/model"
	apperrors "EbbFM/pkg/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ========== 测试替身 ==========

type fakeForumRepo struct {
	topics     map[int64]*model.Topic
	replies    []*model.Reply
	marginalia map[string]*model.Marginalia
	nextTopic  int64
	failWrites bool
}

func newFakeForumRepo() *fakeForumRepo {
	return &fakeForumRepo{
		topics:     make(map[int64]*model.Topic),
		marginalia: make(map[string]*model.Marginalia),
		nextTopic:  1,
	}
}

func (f *fakeForumRepo) CreateTopic(_ context.Context, topic *model.Topic) error {
	if f.failWrites {
		return errors.New("connection refused")
	}
	topic.ID = f.nextTopic
	f.nextTopic++
	f.topics[topic.ID] = topic
	return nil
}

func (f *fakeForumRepo) GetTopic(_ context.Context, topicID int64) (*model.Topic, error) {
	return f.topics[topicID], nil
}

func (f *fakeForumRepo) ListTopics(_ context.Context, roomSlug string) ([]*model.Topic, error) {
	var out []*model.Topic
	for _, topic := range f.topics {
		if topic.RoomSlug == roomSlug {
			out = append(out, topic)
		}
	}
	return out, nil
}

func (f *fakeForumRepo) CreateReply(_ context.Context, reply *model.Reply) error {
	if f.failWrites {
		return errors.New("connection refused")
	}
	f.replies = append(f.replies, reply)
	return nil
}

func (f *fakeForumRepo) ListReplies(_ context.Context, topicID int64, limit, offset int) ([]*model.Reply, error) {
	// 与gorm实现同一契约：时间正序，offset=0为最早一页
	var all []*model.Reply
	for _, reply := range f.replies {
		if reply.TopicID == topicID {
			all = append(all, reply)
		}
	}
	sort.Slice(all, func(i, j int) bool {
		if all[i].CreatedAt.Equal(all[j].CreatedAt) {
			return all[i].ID < all[j].ID
		}
		return all[i].CreatedAt.Before(all[j].CreatedAt)
	})
	if offset >= len(all) {
		return nil, nil
	}
	all = all[offset:]
	if limit < len(all) {
		all = all[:limit]
	}
	return all, nil
}

func (f *fakeForumRepo) CreateMarginalia(_ context.Context, note *model.Marginalia) error {
	if f.failWrites {
		return errors.New("connection refused")
	}
	f.marginalia[note.ID] = note
	return nil
}

func (f *fakeForumRepo) ListMarginalia(_ context.Context, trackID int64) ([]*model.Marginalia, error) {
	var out []*model.Marginalia
	for _, note := range f.marginalia {
		if note.TrackID == trackID {
			out = append(out, note)
		}
	}
	return out, nil
}

func (f *fakeForumRepo) DeleteMarginalia(_ context.Context, id string) error {
	delete(f.marginalia, id)
	return nil
}

type fakeRoomRepo struct {
	rooms  map[string]*model.Room
	tracks map[int64]*model.Track
}

func (f *fakeRoomRepo) CreateRoom(_ context.Context, _ *model.Room) error { return nil }

func (f *fakeRoomRepo) GetBySlug(_ context.Context, slug string) (*model.Room, error) {
	room, ok := f.rooms[slug]
	if !ok || !room.IsActive {
		return nil, nil
	}
	return room, nil
}

func (f *fakeRoomRepo) SetActive(_ context.Context, _ string, _ bool) error { return nil }

func (f *fakeRoomRepo) ListActive(_ context.Context) ([]*model.RoomListItem, error) {
	return nil, nil
}

func (f *fakeRoomRepo) CreateTrack(_ context.Context, _ *model.Track) error { return nil }

func (f *fakeRoomRepo) GetTrack(_ context.Context, trackID int64) (*model.Track, error) {
	return f.tracks[trackID], nil
}

func (f *fakeRoomRepo) ListTracks(_ context.Context, _ string) ([]*model.Track, error) {
	return nil, nil
}

func (f *fakeRoomRepo) ArchiveTrack(_ context.Context, _ int64) error { return nil }

func (f *fakeRoomRepo) SetDecayStart(_ context.Context, _ int64, _ time.Time) error { return nil }

// ========== 测试环境 ==========

type forumEnv struct {
	manager *Manager
	repo    *fakeForumRepo
	rooms   *fakeRoomRepo
	bus     *live.Bus
	rate    *moderation.MemoryRateStore
}

func newForumEnv(t *testing.T) *forumEnv {
	t.Helper()

	repo := newFakeForumRepo()
	rooms := &fakeRoomRepo{
		rooms: map[string]*model.Room{
			"midnight-sessions": {Slug: "midnight-sessions", Title: "Midnight Sessions", IsActive: true},
		},
		tracks: map[int64]*model.Track{
			1: {ID: 1, RoomSlug: "midnight-sessions", Title: "Opening", ReleasedAt: time.Now().Add(-time.Hour)},
		},
	}
	bus := live.NewBus()
	t.Cleanup(bus.Close)

	gate := moderation.NewContentGate("")
	t.Cleanup(gate.Close)
	rate := moderation.NewMemoryRateStore()

	return &forumEnv{
		manager: NewManager(repo, rooms, gate, moderation.NewRateGate(rate, 10*time.Second), bus),
		repo:    repo,
		rooms:   rooms,
		bus:     bus,
		rate:    rate,
	}
}

func (e *forumEnv) seedTopic(t *testing.T) *model.Topic {
	t.Helper()
	topic, err := e.manager.CreateTopic(context.Background(), "midnight-sessions", nil, 1, "first impressions")
	require.NoError(t, err)
	return topic
}

// ========== 主题 ==========

func TestCreateTopic(t *testing.T) {
	env := newForumEnv(t)

	t.Run("正常创建", func(t *testing.T) {
		topic, err := env.manager.CreateTopic(context.Background(), "midnight-sessions", nil, 1, "  first impressions  ")
		require.NoError(t, err)
		assert.Equal(t, "first impressions", topic.Title)
		assert.NotZero(t, topic.ID)
	})

	t.Run("空标题校验失败", func(t *testing.T) {
		_, err := env.manager.CreateTopic(context.Background(), "midnight-sessions", nil, 1, "   ")
		assert.Equal(t, apperrors.CodeValidationFailed, apperrors.CodeOf(err))
	})

	t.Run("标题命中违禁词", func(t *testing.T) {
		_, err := env.manager.CreateTopic(context.Background(), "midnight-sessions", nil, 1, "check this spamlink")
		assert.Equal(t, apperrors.CodePolicyRejected, apperrors.CodeOf(err))
	})

	t.Run("未知房间", func(t *testing.T) {
		_, err := env.manager.CreateTopic(context.Background(), "ghost-room", nil, 1, "hello")
		assert.Equal(t, apperrors.CodeNotFound, apperrors.CodeOf(err))
	})
}

// ========== 回帖 ==========

func TestCreateReply(t *testing.T) {
	env := newForumEnv(t)
	topic := env.seedTopic(t)

	sub := env.bus.Subscribe(live.TopicChannel(topic.ID))
	defer sub.Close()

	reply, err := env.manager.CreateReply(context.Background(), topic.ID, 9, "love the opener")
	require.NoError(t, err)
	assert.NotEmpty(t, reply.ID)
	assert.Equal(t, topic.ID, reply.TopicID)

	ev := <-sub.C
	assert.Equal(t, live.ActionCreated, ev.Action)
	assert.Equal(t, live.EntityReply, ev.EntityType)
	assert.Equal(t, reply.ID, ev.EntityID)
}

func TestCreateReplyRejections(t *testing.T) {
	env := newForumEnv(t)
	topic := env.seedTopic(t)

	t.Run("未知主题", func(t *testing.T) {
		_, err := env.manager.CreateReply(context.Background(), 999, 9, "hello")
		assert.Equal(t, apperrors.CodeNotFound, apperrors.CodeOf(err))
	})

	t.Run("空内容", func(t *testing.T) {
		_, err := env.manager.CreateReply(context.Background(), topic.ID, 9, "   ")
		assert.Equal(t, apperrors.CodeValidationFailed, apperrors.CodeOf(err))
	})

	t.Run("超长内容", func(t *testing.T) {
		_, err := env.manager.CreateReply(context.Background(), topic.ID, 9, strings.Repeat("x", 4001))
		assert.Equal(t, apperrors.CodeValidationFailed, apperrors.CodeOf(err))
	})

	t.Run("违禁词拒绝不落库不发事件", func(t *testing.T) {
		sub := env.bus.Subscribe(live.TopicChannel(topic.ID))
		defer sub.Close()

		before := len(env.repo.replies)
		_, err := env.manager.CreateReply(context.Background(), topic.ID, 9, "visit spamlink now")
		appErr, ok := apperrors.AsAppError(err)
		require.True(t, ok)
		assert.Equal(t, apperrors.CodePolicyRejected, appErr.Code)
		assert.Equal(t, apperrors.ReasonContentPolicy, appErr.Reason)

		assert.Len(t, env.repo.replies, before)
		select {
		case ev := <-sub.C:
			t.Fatalf("unexpected event: %+v", ev)
		default:
		}
	})

	t.Run("频率超限拒绝", func(t *testing.T) {
		_, err := env.manager.CreateReply(context.Background(), topic.ID, 42, "first in a row")
		require.NoError(t, err)

		_, err = env.manager.CreateReply(context.Background(), topic.ID, 42, "second too soon")
		appErr, ok := apperrors.AsAppError(err)
		require.True(t, ok)
		assert.Equal(t, apperrors.CodePolicyRejected, appErr.Code)
		assert.Equal(t, apperrors.ReasonRateLimited, appErr.Reason)
		assert.Greater(t, appErr.RetryAfter, time.Duration(0))
	})

	t.Run("落库失败返回StoreUnavailable", func(t *testing.T) {
		env.repo.failWrites = true
		defer func() { env.repo.failWrites = false }()

		_, err := env.manager.CreateReply(context.Background(), topic.ID, 77, "will not persist")
		assert.Equal(t, apperrors.CodeStoreUnavailable, apperrors.CodeOf(err))
	})
}

func TestCreateReplySurvivesBusFailure(t *testing.T) {
	// 发布失败绝不让已落库的写入失败
	env := newForumEnv(t)
	topic := env.seedTopic(t)

	env.bus.Close()

	reply, err := env.manager.CreateReply(context.Background(), topic.ID, 9, "still persisted")
	require.NoError(t, err)
	assert.Len(t, env.repo.replies, 1)
	assert.Equal(t, reply.ID, env.repo.replies[0].ID)
}

func TestListRepliesPaginatesForward(t *testing.T) {
	env := newForumEnv(t)
	topic := env.seedTopic(t)

	base := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	for i, id := range []string{"r1", "r2", "r3"} {
		env.repo.replies = append(env.repo.replies, &model.Reply{
			ID: id, TopicID: topic.ID, AuthorID: 9,
			Content:   "reply " + id,
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
		})
	}

	t.Run("offset=0是最早一页", func(t *testing.T) {
		page, err := env.manager.ListReplies(context.Background(), topic.ID, 2, 0)
		require.NoError(t, err)
		require.Len(t, page, 2)
		assert.Equal(t, "r1", page[0].ID)
		assert.Equal(t, "r2", page[1].ID)
	})

	t.Run("翻页沿时间向后推进", func(t *testing.T) {
		page, err := env.manager.ListReplies(context.Background(), topic.ID, 2, 2)
		require.NoError(t, err)
		require.Len(t, page, 1)
		assert.Equal(t, "r3", page[0].ID)
	})
}

// ========== 频道会话 ==========

func TestOpenChannelSession(t *testing.T) {
	env := newForumEnv(t)
	topic := env.seedTopic(t)

	reply, err := env.manager.CreateReply(context.Background(), topic.ID, 9, "seeded before subscribe")
	require.NoError(t, err)

	t.Run("主题频道用现有回帖播种", func(t *testing.T) {
		session, err := env.manager.OpenChannelSession(context.Background(), live.TopicChannel(topic.ID))
		require.NoError(t, err)
		defer session.Close()

		assert.Equal(t, 1, session.Reconciler().Len())

		// 播种窗口内的重复投递被吸收
		assert.False(t, session.Reconciler().Apply(live.ReplyCreated(reply)))
	})

	t.Run("曲目频道用现有旁注播种", func(t *testing.T) {
		note, err := env.manager.CreateMarginalia(context.Background(), 1, 42, "that bassline", 12.5)
		require.NoError(t, err)

		session, err := env.manager.OpenChannelSession(context.Background(), live.TrackChannel(1))
		require.NoError(t, err)
		defer session.Close()

		assert.Equal(t, 1, session.Reconciler().Len())
		assert.False(t, session.Reconciler().Apply(live.MarginaliaCreated(note)))
	})

	t.Run("未知主题", func(t *testing.T) {
		_, err := env.manager.OpenChannelSession(context.Background(), live.TopicChannel(999))
		assert.Equal(t, apperrors.CodeNotFound, apperrors.CodeOf(err))
	})

	t.Run("未知曲目", func(t *testing.T) {
		_, err := env.manager.OpenChannelSession(context.Background(), live.TrackChannel(999))
		assert.Equal(t, apperrors.CodeNotFound, apperrors.CodeOf(err))
	})

	t.Run("非法频道名", func(t *testing.T) {
		for _, channel := range []string{"", "room:midnight", "topic:", "topic:abc", "topic:-1"} {
			_, err := env.manager.OpenChannelSession(context.Background(), channel)
			assert.Equal(t, apperrors.CodeValidationFailed, apperrors.CodeOf(err), channel)
		}
	})
}

// ========== 旁注 ==========

func TestCreateMarginalia(t *testing.T) {
	env := newForumEnv(t)

	sub := env.bus.Subscribe(live.TrackChannel(1))
	defer sub.Close()

	note, err := env.manager.CreateMarginalia(context.Background(), 1, 9, "that bassline", 42.5)
	require.NoError(t, err)
	assert.NotEmpty(t, note.ID)
	assert.Equal(t, 42.5, note.Position)

	ev := <-sub.C
	assert.Equal(t, live.EntityMarginalia, ev.EntityType)
	assert.Equal(t, note.ID, ev.EntityID)

	t.Run("负偏移校验失败", func(t *testing.T) {
		_, err := env.manager.CreateMarginalia(context.Background(), 1, 9, "before the start", -1)
		assert.Equal(t, apperrors.CodeValidationFailed, apperrors.CodeOf(err))
	})

	t.Run("未知曲目", func(t *testing.T) {
		_, err := env.manager.CreateMarginalia(context.Background(), 999, 9, "nothing here", 1)
		assert.Equal(t, apperrors.CodeNotFound, apperrors.CodeOf(err))
	})
}

func TestDeleteMarginalia(t *testing.T) {
	env := newForumEnv(t)

	note, err := env.manager.CreateMarginalia(context.Background(), 1, 9, "that bassline", 42.5)
	require.NoError(t, err)

	sub := env.bus.Subscribe(live.TrackChannel(1))
	defer sub.Close()

	require.NoError(t, env.manager.DeleteMarginalia(context.Background(), 1, note.ID))
	assert.Empty(t, env.repo.marginalia)

	ev := <-sub.C
	assert.Equal(t, live.ActionDeleted, ev.Action)
	assert.Equal(t, note.ID, ev.EntityID)

	t.Run("删除不存在的旁注同样发布deleted事件", func(t *testing.T) {
		require.NoError(t, env.manager.DeleteMarginalia(context.Background(), 1, "ghost"))
		ev := <-sub.C
		assert.Equal(t, live.ActionDeleted, ev.Action)
		assert.Equal(t, "ghost", ev.EntityID)
	})
}
