package live

import (
	"context"
	"time"

	"EbbFM/core/snapshot"
)

// 推送消息类型
const (
	pushTypeSnapshot = "snapshot"
	pushTypeEvent    = "event"
	pushTypeUpdates  = "trackUpdates"
	pushTypeResync   = "resync"
)

// pushMessage 会话推给观看端的消息
type pushMessage struct {
	Type     string                 `json:"type"`
	Snapshot *snapshot.RoomSnapshot `json:"snapshot,omitempty"`
	Entries  []Entry                `json:"entries,omitempty"`
	Event    *Event                 `json:"event,omitempty"`
	Updates  []TrackUpdate          `json:"updates,omitempty"`
}

// RoomSession 一次房间观看会话
//
// 生命周期显式：进入房间时打开，离开时关闭；快照播种在订阅建立之前完成，
// 因此同一逻辑事件可能既在快照中又从总线到达一次，由reconciler的幂等合并吸收。
type RoomSession struct {
	snap *snapshot.RoomSnapshot
	rec  *RoomReconciler
	sub  *Subscriber
	tick time.Duration
}

// Snapshot 会话播种用的快照
func (s *RoomSession) Snapshot() *snapshot.RoomSnapshot {
	return s.snap
}

// Reconciler 会话的本地视图
func (s *RoomSession) Reconciler() *RoomReconciler {
	return s.rec
}

// Close 释放订阅，随时可调且幂等
func (s *RoomSession) Close() {
	s.sub.Close()
}

// Run 会话主循环，向client推送直到连接断开或总线断开本订阅
//
// 先推完整快照；之后事件到达即合并转发，周期tick独立推进衰减重算，
// 两条路径对同一时刻产生相同状态。订阅因缓冲溢出被断开时，
// 通知观看端重新拉取快照而不是补发积压。
func (s *RoomSession) Run(ctx context.Context, client *Client) {
	defer s.Close()

	client.SendJSON(&pushMessage{Type: pushTypeSnapshot, Snapshot: s.snap})

	ticker := time.NewTicker(s.tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case ev, ok := <-s.sub.C:
			if !ok {
				// 被总线断开（慢订阅者），缓冲不可信，要求重新快照
				client.SendJSON(&pushMessage{Type: pushTypeResync})
				return
			}
			client.SendJSON(&pushMessage{Type: pushTypeEvent, Event: &ev})
			if updates := s.rec.ApplyEvent(ev); len(updates) > 0 {
				client.SendJSON(&pushMessage{Type: pushTypeUpdates, Updates: updates})
			}

		case <-ticker.C:
			if updates := s.rec.Reproject(); len(updates) > 0 {
				client.SendJSON(&pushMessage{Type: pushTypeUpdates, Updates: updates})
			}
		}
	}
}

// ThreadSession 一次主题回帖或曲目旁注频道的观看会话
// 与房间会话同构：用现有列表播种本地视图，之后合并频道事件。
type ThreadSession struct {
	rec *ThreadReconciler
	sub *Subscriber
}

// NewThreadSession 组装会话
func NewThreadSession(rec *ThreadReconciler, sub *Subscriber) *ThreadSession {
	return &ThreadSession{rec: rec, sub: sub}
}

// Reconciler 会话的本地视图
func (s *ThreadSession) Reconciler() *ThreadReconciler {
	return s.rec
}

// Close 释放订阅，随时可调且幂等
func (s *ThreadSession) Close() {
	s.sub.Close()
}

// Run 会话主循环
// 先推播种后的条目列表；之后只转发真正改变了本地视图的事件，
// 快照与订阅窗口重叠造成的重复投递在这里被吸收，不再推给观看端。
func (s *ThreadSession) Run(ctx context.Context, client *Client) {
	defer s.Close()

	client.SendJSON(&pushMessage{Type: pushTypeSnapshot, Entries: s.rec.List()})

	for {
		select {
		case <-ctx.Done():
			return

		case ev, ok := <-s.sub.C:
			if !ok {
				client.SendJSON(&pushMessage{Type: pushTypeResync})
				return
			}
			if s.rec.Apply(ev) {
				client.SendJSON(&pushMessage{Type: pushTypeEvent, Event: &ev})
			}
		}
	}
}
