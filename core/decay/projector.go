package decay

import (
	"time"

	"EbbFM/model"
)

// Phase 曲目可见性阶段
type Phase string

const (
	PhaseUpcoming Phase = "upcoming" // 未到发布时间
	PhaseActive   Phase = "active"   // 已发布，未进入衰减窗口
	PhaseDecaying Phase = "decaying" // 衰减窗口内
	PhaseArchived Phase = "archived" // 终态
)

// State 推导出的衰减状态，永不持久化，每次读取重新计算
type State struct {
	Phase Phase `json:"phase"`
	// Progress 衰减进度，仅 decaying 阶段有意义，取值 [0, 1)
	Progress float64 `json:"progress,omitempty"`
}

// Audible 曲目当前是否可播放
func (s State) Audible() bool {
	return s.Phase == PhaseActive || s.Phase == PhaseDecaying
}

// Project 由持久化字段与参考时间推导曲目状态
//
// 判定按优先级：归档标记 > 未发布 > 未衰减 > 窗口计算。
// 对所有合法输入全定义：DecayStartAt 缺失是常态而非异常；
// now 早于 ReleasedAt（时钟偏移、陈旧数据）同样安全，
// 调用方不得假设多次调用之间 now 单调递增。
func Project(track *model.Track, window time.Duration, now time.Time) State {
	// 归档是单向终态，无论时间如何都优先生效
	if track.IsArchived {
		return State{Phase: PhaseArchived}
	}

	if now.Before(track.ReleasedAt) {
		return State{Phase: PhaseUpcoming}
	}

	if track.DecayStartAt == nil || now.Before(*track.DecayStartAt) {
		return State{Phase: PhaseActive}
	}

	// now == DecayStartAt 时进度为0，已在窗口内而不是 active
	elapsed := now.Sub(*track.DecayStartAt)
	if elapsed >= window {
		return State{Phase: PhaseArchived}
	}

	progress := float64(elapsed) / float64(window)
	if progress < 0 {
		progress = 0
	}
	return State{Phase: PhaseDecaying, Progress: progress}
}
