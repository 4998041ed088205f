// =============================================================================
// 文件: internal/metrics/gauges.go
// 描述: 实时埋点指标（Counter/Gauge）- 可直接挂为各组件的观察者
// =============================================================================
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/kookiemaster/tcp-sliding-window-project/internal/stats"
)

// SwpMetrics 全局指标集合
type SwpMetrics struct {
	// 发送端
	PacketsSent   prometheus.Counter
	Retransmits   prometheus.Counter
	DuplicateAcks prometheus.Counter
	WindowSize    prometheus.Gauge

	// 接收端
	PacketsReceived prometheus.Counter
	PacketsMissing  prometheus.Counter
	Goodput         prometheus.Gauge
	HighestReceived prometheus.Gauge

	// 信道
	PacketsDropped   prometheus.Counter
	PacketsDelivered prometheus.Counter
}

// NewSwpMetrics 创建指标集合
func NewSwpMetrics(registry *prometheus.Registry) *SwpMetrics {
	m := &SwpMetrics{
		PacketsSent: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "swp",
			Subsystem: "sender",
			Name:      "packets_sent_total",
			Help:      "Total packets sent for the first time",
		}),

		Retransmits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "swp",
			Subsystem: "sender",
			Name:      "retransmits_total",
			Help:      "Total timeout retransmissions",
		}),

		DuplicateAcks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "swp",
			Subsystem: "sender",
			Name:      "duplicate_acks_total",
			Help:      "Total duplicate or stale acknowledgements",
		}),

		WindowSize: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "swp",
			Subsystem: "sender",
			Name:      "window_size",
			Help:      "Current sliding window size",
		}),

		PacketsReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "swp",
			Subsystem: "receiver",
			Name:      "packets_received_total",
			Help:      "Total unique packets received",
		}),

		PacketsMissing: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "swp",
			Subsystem: "receiver",
			Name:      "packets_missing_total",
			Help:      "Total sequence numbers ever recorded as missing",
		}),

		Goodput: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "swp",
			Subsystem: "receiver",
			Name:      "goodput_ratio",
			Help:      "Received packets over highest known sequence number plus one",
		}),

		HighestReceived: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "swp",
			Subsystem: "receiver",
			Name:      "highest_received_seq",
			Help:      "Highest sequence number received so far",
		}),

		PacketsDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "swp",
			Subsystem: "channel",
			Name:      "packets_dropped_total",
			Help:      "Total packets dropped by the lossy channel",
		}),

		PacketsDelivered: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "swp",
			Subsystem: "channel",
			Name:      "packets_delivered_total",
			Help:      "Total packets delivered by the lossy channel",
		}),
	}

	// 注册所有指标
	registry.MustRegister(
		m.PacketsSent,
		m.Retransmits,
		m.DuplicateAcks,
		m.WindowSize,
		m.PacketsReceived,
		m.PacketsMissing,
		m.Goodput,
		m.HighestReceived,
		m.PacketsDropped,
		m.PacketsDelivered,
	)

	return m
}

// =============================================================================
// 观察者实现 - 与 stats.Collector 同构, 可并列挂接
// =============================================================================

// OnSent 发送端观察者
func (m *SwpMetrics) OnSent(seq uint64) {
	m.PacketsSent.Inc()
}

// OnRetransmit 发送端观察者
func (m *SwpMetrics) OnRetransmit(seq uint64) {
	m.Retransmits.Inc()
}

// OnDuplicateAck 发送端观察者
func (m *SwpMetrics) OnDuplicateAck(ackNum uint64) {
	m.DuplicateAcks.Inc()
}

// OnWindowSize 发送端观察者
func (m *SwpMetrics) OnWindowSize(size uint64) {
	m.WindowSize.Set(float64(size))
}

// OnReceived 接收端观察者
func (m *SwpMetrics) OnReceived(seq uint64) {
	m.PacketsReceived.Inc()
}

// OnMissing 接收端观察者
func (m *SwpMetrics) OnMissing(seq uint64) {
	m.PacketsMissing.Inc()
}

// OnSample 接收端观察者
func (m *SwpMetrics) OnSample(s stats.Sample) {
	m.Goodput.Set(s.Goodput)
	m.HighestReceived.Set(float64(s.HighestReceived))
	if s.WindowSize > 0 {
		m.WindowSize.Set(float64(s.WindowSize))
	}
}

// OnChannelDrop 信道观察者
func (m *SwpMetrics) OnChannelDrop(seq uint64) {
	m.PacketsDropped.Inc()
}

// OnChannelDeliver 信道观察者
func (m *SwpMetrics) OnChannelDeliver(seq uint64) {
	m.PacketsDelivered.Inc()
}
