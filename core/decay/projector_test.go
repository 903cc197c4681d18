package decay

import (
	"testing"
	"time"

	"EbbFM/model"

	"github.com/stretchr/testify/assert"
)

var testWindow = 7 * 24 * time.Hour

func trackFixture(released time.Time, decayStart *time.Time, archived bool) *model.Track {
	return &model.Track{
		ID:           1,
		RoomSlug:     "midnight-sessions",
		Title:        "Opening",
		TrackNumber:  1,
		ReleasedAt:   released,
		DecayStartAt: decayStart,
		IsArchived:   archived,
	}
}

func TestProjectPhases(t *testing.T) {
	released := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	decayStart := released.Add(48 * time.Hour)

	t.Run("发布前为upcoming", func(t *testing.T) {
		track := trackFixture(released, nil, false)
		state := Project(track, testWindow, released.Add(-time.Minute))
		assert.Equal(t, PhaseUpcoming, state.Phase)
		assert.False(t, state.Audible())
	})

	t.Run("无衰减起点时一直active", func(t *testing.T) {
		track := trackFixture(released, nil, false)
		state := Project(track, testWindow, released.Add(365*24*time.Hour))
		assert.Equal(t, PhaseActive, state.Phase)
		assert.True(t, state.Audible())
	})

	t.Run("衰减起点前仍为active", func(t *testing.T) {
		track := trackFixture(released, &decayStart, false)
		state := Project(track, testWindow, decayStart.Add(-time.Second))
		assert.Equal(t, PhaseActive, state.Phase)
	})

	t.Run("now等于衰减起点时已在窗口内且进度为0", func(t *testing.T) {
		track := trackFixture(released, &decayStart, false)
		state := Project(track, testWindow, decayStart)
		assert.Equal(t, PhaseDecaying, state.Phase)
		assert.Equal(t, 0.0, state.Progress)
		assert.True(t, state.Audible())
	})

	t.Run("窗口中段进度按比例推进", func(t *testing.T) {
		track := trackFixture(released, &decayStart, false)
		state := Project(track, testWindow, decayStart.Add(testWindow/2))
		assert.Equal(t, PhaseDecaying, state.Phase)
		assert.InDelta(t, 0.5, state.Progress, 1e-9)
	})

	t.Run("now等于窗口终点时归档", func(t *testing.T) {
		track := trackFixture(released, &decayStart, false)
		state := Project(track, testWindow, decayStart.Add(testWindow))
		assert.Equal(t, PhaseArchived, state.Phase)
		assert.False(t, state.Audible())
	})

	t.Run("归档标记覆盖一切时间判定", func(t *testing.T) {
		track := trackFixture(released, &decayStart, true)
		for _, now := range []time.Time{
			released.Add(-time.Hour),
			released.Add(time.Hour),
			decayStart.Add(testWindow / 2),
		} {
			state := Project(track, testWindow, now)
			assert.Equal(t, PhaseArchived, state.Phase)
			assert.Equal(t, 0.0, state.Progress)
		}
	})
}

func TestProjectIsPureAndDeterministic(t *testing.T) {
	released := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	decayStart := released.Add(24 * time.Hour)
	track := trackFixture(released, &decayStart, false)
	now := decayStart.Add(3 * 24 * time.Hour)

	first := Project(track, testWindow, now)
	for i := 0; i < 100; i++ {
		assert.Equal(t, first, Project(track, testWindow, now))
	}
}

func TestProjectTimelineScenario(t *testing.T) {
	// 发布即开始衰减的曲目：第5天在窗口内，第7天整点归档
	released := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	track := trackFixture(released, &released, false)

	day5 := Project(track, testWindow, released.Add(5*24*time.Hour))
	assert.Equal(t, PhaseDecaying, day5.Phase)
	assert.InDelta(t, 5.0/7.0, day5.Progress, 1e-9)

	day7 := Project(track, testWindow, released.Add(7*24*time.Hour))
	assert.Equal(t, PhaseArchived, day7.Phase)
}

func TestProjectClockSkewSafety(t *testing.T) {
	// now在各字段之前（时钟回拨）不会越界或panic
	released := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	decayStart := released.Add(time.Hour)
	track := trackFixture(released, &decayStart, false)

	state := Project(track, testWindow, released.Add(-48*time.Hour))
	assert.Equal(t, PhaseUpcoming, state.Phase)

	// 回拨到窗口内后再推进，不要求单调，只要求每次结果自洽
	inWindow := Project(track, testWindow, decayStart.Add(time.Hour))
	assert.Equal(t, PhaseDecaying, inWindow.Phase)
	assert.GreaterOrEqual(t, inWindow.Progress, 0.0)
	assert.Less(t, inWindow.Progress, 1.0)

	backAgain := Project(track, testWindow, decayStart.Add(30*time.Minute))
	assert.Equal(t, PhaseDecaying, backAgain.Phase)
	assert.Less(t, backAgain.Progress, inWindow.Progress)
}
