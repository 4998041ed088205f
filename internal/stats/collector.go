// =============================================================================
// 文件: internal/stats/collector.go
// 描述: 统计收集器 - 被动聚合发送端/接收端的时间序列样本
//       只做拷贝与累加, 不参与任何协议决策 (绝不回馈窗口/重传逻辑)
// =============================================================================
package stats

import (
	"sync"
	"sync/atomic"
	"time"
)

// Sample 周期性采样点
type Sample struct {
	Timestamp       time.Time
	WindowSize      uint64
	HighestSent     uint64
	HighestReceived uint64
	Goodput         float64 // 已收包数 / 已知最大发送序列号+1
}

// SeqPoint 带时间戳的序列号记录
type SeqPoint struct {
	Timestamp time.Time
	Seq       uint64
}

// WindowPoint 带时间戳的窗口大小记录
type WindowPoint struct {
	Timestamp time.Time
	Size      uint64
}

// Collector 统计收集器
type Collector struct {
	// 计数器
	totalSent          uint64
	totalReceived      uint64
	totalDropped       uint64
	totalRetransmitted uint64
	duplicateAcks      uint64

	// 时间序列
	windowSeries []WindowPoint
	sentSeqs     []SeqPoint
	recvSeqs     []SeqPoint
	droppedSeqs  []SeqPoint
	samples      []Sample

	// 每个包的重传次数 (seq -> count)
	retransmitCounts map[uint64]int

	startTime time.Time
	mu        sync.RWMutex
}

// New 创建统计收集器
func New() *Collector {
	return &Collector{
		retransmitCounts: make(map[uint64]int),
		startTime:        time.Now(),
	}
}

// OnSent 发送端通知: 首次发送了一个序列号
func (c *Collector) OnSent(seq uint64) {
	atomic.AddUint64(&c.totalSent, 1)

	c.mu.Lock()
	c.sentSeqs = append(c.sentSeqs, SeqPoint{Timestamp: time.Now(), Seq: seq})
	c.mu.Unlock()
}

// OnRetransmit 发送端通知: 超时重传了一个序列号
func (c *Collector) OnRetransmit(seq uint64) {
	atomic.AddUint64(&c.totalRetransmitted, 1)

	c.mu.Lock()
	c.retransmitCounts[seq]++
	c.mu.Unlock()
}

// OnDuplicateAck 发送端通知: 收到重复/过期 ACK
func (c *Collector) OnDuplicateAck(ackNum uint64) {
	atomic.AddUint64(&c.duplicateAcks, 1)
}

// OnWindowSize 发送端通知: 当前窗口大小 (每次发送时记录)
func (c *Collector) OnWindowSize(size uint64) {
	c.mu.Lock()
	c.windowSeries = append(c.windowSeries, WindowPoint{Timestamp: time.Now(), Size: size})
	c.mu.Unlock()
}

// OnReceived 接收端通知: 收到一个序列号
func (c *Collector) OnReceived(seq uint64) {
	atomic.AddUint64(&c.totalReceived, 1)

	c.mu.Lock()
	c.recvSeqs = append(c.recvSeqs, SeqPoint{Timestamp: time.Now(), Seq: seq})
	c.mu.Unlock()
}

// OnMissing 接收端通知: 发现缺失的序列号
func (c *Collector) OnMissing(seq uint64) {
	c.mu.Lock()
	c.droppedSeqs = append(c.droppedSeqs, SeqPoint{Timestamp: time.Now(), Seq: seq})
	c.mu.Unlock()
}

// OnSample 接收端周期采样
func (c *Collector) OnSample(s Sample) {
	c.mu.Lock()
	c.samples = append(c.samples, s)
	c.mu.Unlock()
}

// OnChannelDrop 实现信道观察者: 包被信道丢弃
func (c *Collector) OnChannelDrop(seq uint64) {
	atomic.AddUint64(&c.totalDropped, 1)
}

// OnChannelDeliver 实现信道观察者: 包被信道交付
func (c *Collector) OnChannelDeliver(seq uint64) {}

// Snapshot 运行结束时的只读快照
type Snapshot struct {
	TotalSent          uint64
	TotalReceived      uint64
	TotalDropped       uint64
	TotalRetransmitted uint64
	DuplicateAcks      uint64

	WindowSeries []WindowPoint
	SentSeqs     []SeqPoint
	RecvSeqs     []SeqPoint
	DroppedSeqs  []SeqPoint
	Samples      []Sample

	// 重传次数 -> 该次数的包数
	RetransmitHistogram map[int]uint64

	Elapsed time.Duration
}

// Snapshot 生成快照 (全部拷贝, 与收集器无共享可变状态)
func (c *Collector) Snapshot() Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()

	hist := make(map[int]uint64)
	for _, count := range c.retransmitCounts {
		hist[count]++
	}

	return Snapshot{
		TotalSent:          atomic.LoadUint64(&c.totalSent),
		TotalReceived:      atomic.LoadUint64(&c.totalReceived),
		TotalDropped:       atomic.LoadUint64(&c.totalDropped),
		TotalRetransmitted: atomic.LoadUint64(&c.totalRetransmitted),
		DuplicateAcks:      atomic.LoadUint64(&c.duplicateAcks),

		WindowSeries: append([]WindowPoint(nil), c.windowSeries...),
		SentSeqs:     append([]SeqPoint(nil), c.sentSeqs...),
		RecvSeqs:     append([]SeqPoint(nil), c.recvSeqs...),
		DroppedSeqs:  append([]SeqPoint(nil), c.droppedSeqs...),
		Samples:      append([]Sample(nil), c.samples...),

		RetransmitHistogram: hist,
		Elapsed:             time.Since(c.startTime),
	}
}
