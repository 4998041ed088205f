// =============================================================================
// 文件: internal/receiver/tracker.go
// 描述: 接收端追踪器 - 维护最高连续序列号、缺失集合与累积 ACK
//       布隆过滤器做重复包快速预判, 精确集合兜底误报
// =============================================================================
package receiver

import (
	"encoding/binary"
	"sort"
	"sync"
	"time"

	"github.com/bits-and-blooms/bloom/v3"

	"github.com/kookiemaster/tcp-sliding-window-project/internal/protocol"
	"github.com/kookiemaster/tcp-sliding-window-project/internal/stats"
)

const (
	// 布隆过滤器参数
	bloomExpectedItems = 100000
	bloomFalsePositive = 0.0001
)

// Observer 接收端观察者 (统计旁路)
type Observer interface {
	OnReceived(seq uint64)
	OnMissing(seq uint64)
	OnSample(s stats.Sample)
}

// Tracker 接收端追踪器
// 不变式: 严格小于 expected 的序列号必然都已收到;
// expected (即累积 ACK 值) 随时间单调不减
type Tracker struct {
	expected uint64 // 下一个期望序列号 (累积确认点)
	highest  uint64 // 最大已接收序列号
	hasAny   bool   // 是否收到过任何包

	received map[uint64]struct{}
	missing  map[uint64]struct{} // 单调增长: 记录过缺失就不再移除, 仅供上报

	seen *bloom.BloomFilter // 重复包预判: 未命中则一定是新包

	// 统计
	duplicates uint64
	recovered  uint64 // 曾记录缺失、后来乱序补到的包数
	lastWindow uint64 // 发送方随包上报的窗口大小

	observer Observer

	mu sync.RWMutex
}

// New 创建接收端追踪器
func New() *Tracker {
	return &Tracker{
		received: make(map[uint64]struct{}),
		missing:  make(map[uint64]struct{}),
		seen:     bloom.NewWithEstimates(bloomExpectedItems, bloomFalsePositive),
	}
}

// SetObserver 设置统计观察者
func (t *Tracker) SetObserver(o Observer) {
	t.observer = o
}

// OnPacket 处理收到的数据包, 返回当前累积 ACK 值
// 重复包 (含已确认序列号的重发) 不改变任何状态, 仅计数
func (t *Tracker) OnPacket(p *protocol.Packet) (ackNum uint64, duplicate bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	seq := p.Seq
	if p.Window > 0 {
		t.lastWindow = p.Window
	}

	var key [8]byte
	binary.BigEndian.PutUint64(key[:], seq)

	// 布隆过滤器未命中 => 一定没见过; 命中则查精确集合排除误报
	if t.seen.Test(key[:]) {
		if _, ok := t.received[seq]; ok {
			t.duplicates++
			return t.expected, true
		}
	}

	t.received[seq] = struct{}{}
	t.seen.Add(key[:])

	if t.observer != nil {
		t.observer.OnReceived(seq)
	}

	// 乱序补上曾经缺失的包: 缺失记录保留, 单独计数
	if _, wasMissing := t.missing[seq]; wasMissing {
		t.recovered++
	}

	// 跳跃到更高序列号时, 中间未到的全部记为缺失
	if !t.hasAny || seq > t.highest {
		gapStart := uint64(0)
		if t.hasAny {
			gapStart = t.highest + 1
		}
		for i := gapStart; i < seq; i++ {
			if _, ok := t.received[i]; !ok {
				if _, dup := t.missing[i]; !dup {
					t.missing[i] = struct{}{}
					if t.observer != nil {
						t.observer.OnMissing(i)
					}
				}
			}
		}
		t.highest = seq
		t.hasAny = true
	}

	// 推进期望指针, 越过所有已连续到达的序列号
	if seq == t.expected {
		for {
			if _, ok := t.received[t.expected]; !ok {
				break
			}
			t.expected++
		}
	}

	return t.expected, false
}

// Ack 当前累积 ACK 值 (下一个期望序列号)
func (t *Tracker) Ack() uint64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.expected
}

// Missing 缺失序列号的有序拷贝 (仅供上报, 调用方不得回写)
func (t *Tracker) Missing() []uint64 {
	t.mu.RLock()
	defer t.mu.RUnlock()

	result := make([]uint64, 0, len(t.missing))
	for seq := range t.missing {
		result = append(result, seq)
	}
	sort.Slice(result, func(i, j int) bool { return result[i] < result[j] })
	return result
}

// Goodput 当前吞吐率: 已收包数 / 已知最大发送序列号+1
func (t *Tracker) Goodput() float64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.goodputLocked()
}

func (t *Tracker) goodputLocked() float64 {
	if !t.hasAny {
		return 0
	}
	return float64(len(t.received)) / float64(t.highest+1)
}

// Sample 生成一个采样点并通知观察者
// 按固定采样周期由调用方触发, 不随每个包执行
func (t *Tracker) Sample() stats.Sample {
	t.mu.RLock()
	s := stats.Sample{
		Timestamp:       time.Now(),
		WindowSize:      t.lastWindow,
		HighestSent:     t.highest,
		HighestReceived: t.highest,
		Goodput:         t.goodputLocked(),
	}
	t.mu.RUnlock()

	if t.observer != nil {
		t.observer.OnSample(s)
	}
	return s
}

// Counts 接收端计数快照
type Counts struct {
	Received   uint64
	Missing    uint64
	Duplicates uint64
	Recovered  uint64
	Expected   uint64
	Highest    uint64
}

// Counts 返回计数快照 (连接中断时仍可上报)
func (t *Tracker) Counts() Counts {
	t.mu.RLock()
	defer t.mu.RUnlock()

	return Counts{
		Received:   uint64(len(t.received)),
		Missing:    uint64(len(t.missing)),
		Duplicates: t.duplicates,
		Recovered:  t.recovered,
		Expected:   t.expected,
		Highest:    t.highest,
	}
}
