package live

import (
	"encoding/json"
	"sort"
	"sync"
	"time"

	"EbbFM/core/decay"
	"EbbFM/core/snapshot"
	"EbbFM/model"
)

// TrackUpdate 推给观看端的曲目状态变化
type TrackUpdate struct {
	TrackID int64       `json:"trackId"`
	State   decay.State `json:"state"`
}

// RoomReconciler 单个观看会话的房间物化视图
//
// 由一次快照播种，之后把总线事件做以身份为键的幂等合并；
// 衰减状态始终用本地时钟重新推导，事件只是"现在就重算"的提示，
// 事件触发与周期触发对同一now必须给出相同结果。
type RoomReconciler struct {
	mu     sync.Mutex
	window time.Duration
	room   model.Room
	tracks map[int64]*model.Track
	states map[int64]decay.State
	nowFn  func() time.Time
}

// NewRoomReconciler 由快照创建房间视图
func NewRoomReconciler(snap *snapshot.RoomSnapshot, window time.Duration) *RoomReconciler {
	r := &RoomReconciler{
		window: window,
		room:   snap.Room,
		tracks: make(map[int64]*model.Track, len(snap.Tracks)),
		states: make(map[int64]decay.State, len(snap.Tracks)),
		nowFn:  time.Now,
	}
	for _, view := range snap.Tracks {
		track := view.Track
		r.tracks[track.ID] = &track
		r.states[track.ID] = view.State
	}
	return r
}

// ApplyEvent 合并一条房间频道事件
// 重复投递安全：同一事件应用两次与一次结果相同。
// 返回本次合并引起的状态变化，无变化时为空。
func (r *RoomReconciler) ApplyEvent(ev Event) []TrackUpdate {
	if ev.EntityType != EntityTrack {
		return nil
	}

	var track model.Track
	if err := json.Unmarshal(ev.Data, &track); err != nil {
		return nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	// 以曲目ID为键覆盖持久化字段，创建与状态变化统一为upsert。
	// 归档单向：写路径之间的交错可能让迟到的事件携带归档前的旧负载，
	// 本地一旦见过归档就不再被任何负载复活。
	if held, ok := r.tracks[track.ID]; ok && held.IsArchived {
		track.IsArchived = true
	}
	r.tracks[track.ID] = &track

	// 用本地时间而不是事件内嵌时间重算，消除网络延迟带来的偏差
	now := r.nowFn()
	state := decay.Project(&track, r.window, now)
	prev, known := r.states[track.ID]
	r.states[track.ID] = state

	if known && prev == state {
		return nil
	}
	return []TrackUpdate{{TrackID: track.ID, State: state}}
}

// Reproject 对全部本地曲目重算衰减状态
// 周期调用，保证没有事件到达时 decaying 进度也在推进。
func (r *RoomReconciler) Reproject() []TrackUpdate {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.nowFn()
	var updates []TrackUpdate
	for id, track := range r.tracks {
		state := decay.Project(track, r.window, now)
		if state != r.states[id] {
			r.states[id] = state
			updates = append(updates, TrackUpdate{TrackID: id, State: state})
		}
	}

	sort.Slice(updates, func(i, j int) bool { return updates[i].TrackID < updates[j].TrackID })
	return updates
}

// State 读取某曲目当前推导状态
func (r *RoomReconciler) State(trackID int64) (decay.State, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	state, ok := r.states[trackID]
	return state, ok
}

// TrackCount 本地持有的曲目数
func (r *RoomReconciler) TrackCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.tracks)
}

// ========== 回帖/旁注视图 ==========

// Entry 按时间排列的幂等合并条目
type Entry struct {
	ID        string          `json:"id"`
	CreatedAt time.Time       `json:"createdAt"`
	Data      json.RawMessage `json:"data"`
}

// ThreadReconciler 主题回帖或曲目旁注的本地视图
// 以条目身份为键做幂等合并：重复创建为no-op，删除缺失身份同样为no-op。
type ThreadReconciler struct {
	mu      sync.Mutex
	entries map[string]Entry
}

// NewThreadReconciler 创建空视图
func NewThreadReconciler() *ThreadReconciler {
	return &ThreadReconciler{entries: make(map[string]Entry)}
}

// SeedReplies 用快照取回的回帖播种
func (t *ThreadReconciler) SeedReplies(replies []*model.Reply) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, reply := range replies {
		t.entries[reply.ID] = Entry{ID: reply.ID, CreatedAt: reply.CreatedAt, Data: mustMarshal(reply)}
	}
}

// SeedMarginalia 用快照取回的旁注播种
func (t *ThreadReconciler) SeedMarginalia(notes []*model.Marginalia) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, note := range notes {
		t.entries[note.ID] = Entry{ID: note.ID, CreatedAt: note.CreatedAt, Data: mustMarshal(note)}
	}
}

// Apply 合并一条创建/删除事件，返回视图是否发生变化
func (t *ThreadReconciler) Apply(ev Event) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	switch ev.Action {
	case ActionCreated:
		if _, exists := t.entries[ev.EntityID]; exists {
			// 重复投递（快照与总线各见一次），吸收掉
			return false
		}
		entry := Entry{ID: ev.EntityID, Data: ev.Data}
		var meta struct {
			CreatedAt time.Time `json:"createdAt"`
		}
		if err := json.Unmarshal(ev.Data, &meta); err == nil {
			entry.CreatedAt = meta.CreatedAt
		}
		t.entries[ev.EntityID] = entry
		return true

	case ActionDeleted:
		if _, exists := t.entries[ev.EntityID]; !exists {
			return false
		}
		delete(t.entries, ev.EntityID)
		return true
	}
	return false
}

// List 按时间正序返回全部条目，同一时刻按ID定序
func (t *ThreadReconciler) List() []Entry {
	t.mu.Lock()
	defer t.mu.Unlock()

	list := make([]Entry, 0, len(t.entries))
	for _, entry := range t.entries {
		list = append(list, entry)
	}
	sort.Slice(list, func(i, j int) bool {
		if list[i].CreatedAt.Equal(list[j].CreatedAt) {
			return list[i].ID < list[j].ID
		}
		return list[i].CreatedAt.Before(list[j].CreatedAt)
	})
	return list
}

// Len 当前条目数
func (t *ThreadReconciler) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}
