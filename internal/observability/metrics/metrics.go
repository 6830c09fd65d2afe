package metrics

import "github.com/prometheus/client_golang/prometheus"

// ChatMetrics exposes counters for the conversation/message flows.
type ChatMetrics struct {
	messagesCreated     *prometheus.CounterVec
	deliveryTransitions *prometheus.CounterVec
	botReplies          *prometheus.CounterVec
	cacheOps            *prometheus.CounterVec
	notifications       *prometheus.CounterVec
}

func NewChatMetrics(reg prometheus.Registerer) *ChatMetrics {
	m := &ChatMetrics{
		messagesCreated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "bizlink",
			Subsystem: "chat",
			Name:      "messages_created_total",
			Help:      "Total messages appended to conversation logs",
		}, []string{"author_type"}),
		deliveryTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "bizlink",
			Subsystem: "chat",
			Name:      "delivery_transitions_total",
			Help:      "Total per-viewer delivery state transitions",
		}, []string{"target"}),
		botReplies: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "bizlink",
			Subsystem: "autoreply",
			Name:      "replies_total",
			Help:      "Total scripted bot replies by rule",
		}, []string{"rule"}),
		cacheOps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "bizlink",
			Subsystem: "cache",
			Name:      "operations_total",
			Help:      "Cache operations by result",
		}, []string{"op", "result"}),
		notifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "bizlink",
			Subsystem: "chat",
			Name:      "notifications_total",
			Help:      "Notifications emitted to participants",
		}, []string{"event"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.messagesCreated, m.deliveryTransitions, m.botReplies, m.cacheOps, m.notifications)
	return m
}

func (m *ChatMetrics) ObserveMessageCreated(authorType string) {
	if m == nil {
		return
	}
	m.messagesCreated.WithLabelValues(authorType).Inc()
}

func (m *ChatMetrics) ObserveDeliveryTransition(target string, count int64) {
	if m == nil || count <= 0 {
		return
	}
	m.deliveryTransitions.WithLabelValues(target).Add(float64(count))
}

func (m *ChatMetrics) ObserveBotReply(rule string) {
	if m == nil {
		return
	}
	m.botReplies.WithLabelValues(rule).Inc()
}

func (m *ChatMetrics) ObserveCache(op, result string) {
	if m == nil {
		return
	}
	m.cacheOps.WithLabelValues(op, result).Inc()
}

func (m *ChatMetrics) ObserveNotification(event string) {
	if m == nil {
		return
	}
	m.notifications.WithLabelValues(event).Inc()
}
