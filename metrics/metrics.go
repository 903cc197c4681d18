package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	EventsPublished = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "bus_events_published_total", Help: "Events published per channel kind"},
		[]string{"kind", "action"},
	)
	EventsDelivered = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "bus_events_delivered_total", Help: "Events delivered to subscriber buffers"},
	)
	EventsDropped = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "bus_events_dropped_total", Help: "Events dropped because a subscriber buffer was full"},
	)
	Subscribers = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{Name: "bus_subscribers", Help: "Currently connected subscribers per channel kind"},
		[]string{"kind"},
	)
	RepliesRejected = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "moderation_rejections_total", Help: "Writes rejected by the moderation/rate gate"},
		[]string{"reason"},
	)
)

func MustRegister() {
	prometheus.MustRegister(EventsPublished, EventsDelivered, EventsDropped, Subscribers, RepliesRejected)
}
