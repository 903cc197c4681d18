package live

import (
	"sync"

	"EbbFM/logger"
	"EbbFM/metrics"
	apperrors "EbbFM/pkg/errors"
)

// 每个订阅者的发送缓冲区大小
const defaultSubscriberBuffer = 64

// Subscriber 单个频道的订阅句柄
// C 在订阅者被断开或主动 Close 后关闭，读端以通道关闭为结束信号。
type Subscriber struct {
	C chan Event

	channel string
	bus     *Bus
	closed  bool // 由 bus.mu 保护
}

// Channel 返回订阅的频道名
func (s *Subscriber) Channel() string {
	return s.channel
}

// Close 取消订阅
// 幂等，随时可调；总线把订阅方退出当作常规事件，不产生错误。
func (s *Subscriber) Close() {
	s.bus.unsubscribe(s)
}

// Bus 进程内发布/订阅总线
//
// 投递语义：对当前在线订阅者至少一次；无回放积压；不同频道之间无顺序保证；
// 同一发布方在同一频道上的事件按发布顺序到达。
// 发布对订阅方永不阻塞：缓冲区满的订阅者被直接断开，
// 重连后应当重新拉取快照，而不是指望积压补发。
type Bus struct {
	mu     sync.RWMutex
	subs   map[string]map[*Subscriber]struct{}
	buffer int
	closed bool
}

// NewBus 创建事件总线
func NewBus() *Bus {
	return &Bus{
		subs:   make(map[string]map[*Subscriber]struct{}),
		buffer: defaultSubscriberBuffer,
	}
}

// Subscribe 订阅频道
// 总线已关闭时返回的订阅者通道已关闭，读端立即结束。
func (b *Bus) Subscribe(channel string) *Subscriber {
	sub := &Subscriber{
		C:       make(chan Event, b.buffer),
		channel: channel,
		bus:     b,
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		sub.closed = true
		close(sub.C)
		return sub
	}

	if b.subs[channel] == nil {
		b.subs[channel] = make(map[*Subscriber]struct{})
	}
	b.subs[channel][sub] = struct{}{}
	metrics.Subscribers.WithLabelValues(ChannelKind(channel)).Inc()
	return sub
}

// Publish 向频道发布事件
// 任意写路径可并发调用；对每个订阅者非阻塞投递，慢订阅者被断开。
// 只有总线关闭时返回错误，写路径记日志后继续，不把发布失败当写入失败。
func (b *Bus) Publish(ev Event) error {
	ev.stamp()

	b.mu.RLock()
	if b.closed {
		b.mu.RUnlock()
		return apperrors.BusUnavailable(nil)
	}

	metrics.EventsPublished.WithLabelValues(ChannelKind(ev.Channel), string(ev.Action)).Inc()

	// 发送发生在读锁内，订阅者通道的关闭只在写锁内进行，两者不会竞争
	var overflowed []*Subscriber
	for sub := range b.subs[ev.Channel] {
		select {
		case sub.C <- ev:
			metrics.EventsDelivered.Inc()
		default:
			overflowed = append(overflowed, sub)
		}
	}
	b.mu.RUnlock()

	for _, sub := range overflowed {
		metrics.EventsDropped.Inc()
		logger.Warn("subscriber buffer full, disconnecting",
			logger.String("channel", ev.Channel))
		b.unsubscribe(sub)
	}
	return nil
}

// unsubscribe 移除订阅者并关闭其通道
func (b *Bus) unsubscribe(sub *Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if sub.closed {
		return
	}
	sub.closed = true

	if set, ok := b.subs[sub.channel]; ok {
		if _, ok := set[sub]; ok {
			delete(set, sub)
			metrics.Subscribers.WithLabelValues(ChannelKind(sub.channel)).Dec()
			if len(set) == 0 {
				delete(b.subs, sub.channel)
			}
		}
	}
	close(sub.C)
}

// SubscriberCount 频道当前订阅者数量
func (b *Bus) SubscriberCount(channel string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[channel])
}

// Close 关闭总线，断开全部订阅者
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	b.closed = true

	for channel, set := range b.subs {
		for sub := range set {
			sub.closed = true
			close(sub.C)
		}
		metrics.Subscribers.WithLabelValues(ChannelKind(channel)).Set(0)
		delete(b.subs, channel)
	}
}
