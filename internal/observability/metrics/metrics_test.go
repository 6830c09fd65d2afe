package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
)

func TestChatMetricsObserve(t *testing.T) {
	m := NewChatMetrics(prometheus.NewRegistry())
	m.ObserveMessageCreated("customer")
	m.ObserveDeliveryTransition("read", 3)
	m.ObserveBotReply("booking")
	m.ObserveCache("get", "hit")
	m.ObserveNotification("message.created")
}

func TestChatMetricsIgnoresZeroTransitions(t *testing.T) {
	m := NewChatMetrics(prometheus.NewRegistry())
	m.ObserveDeliveryTransition("delivered", 0)
	m.ObserveDeliveryTransition("delivered", -1)
}

func TestChatMetricsNilSafe(t *testing.T) {
	var m *ChatMetrics
	m.ObserveMessageCreated("manager")
	m.ObserveDeliveryTransition("read", 1)
	m.ObserveBotReply("fallback")
	m.ObserveCache("set", "ok")
	m.ObserveNotification("message.deleted")
}
