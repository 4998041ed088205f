// =============================================================================
// 文件: internal/sender/window.go
// 描述: 发送端滑动窗口状态机 - 窗口推进、累积确认处理、超时重传
//       所有状态变更经由同一把锁, 任意观察点满足 base <= nextSeq <= base+window
// =============================================================================
package sender

import (
	"sort"
	"sync"
	"time"

	"github.com/kookiemaster/tcp-sliding-window-project/internal/protocol"
)

// 默认参数
const (
	DefaultInitialWindow   = 10
	DefaultMaxWindow       = 100
	DefaultGrowthIncrement = 1
	DefaultRTO             = 200 * time.Millisecond
)

// State 派生状态 (由 WindowState 推导, 不是独立标志)
type State int

const (
	StateIdle           State = iota // 无在途数据
	StateSending                     // base < nextSeq, 窗口未满
	StateWaitingAck                  // 窗口已满, 暂停发送新数据
	StateRetransmitting              // 至少一个在途包已超时
)

func (s State) String() string {
	names := []string{"IDLE", "SENDING", "WAITING_ACK", "RETRANSMITTING"}
	if int(s) < len(names) {
		return names[s]
	}
	return "UNKNOWN"
}

// Config 发送端配置
type Config struct {
	TotalPackets    uint64
	InitialWindow   uint64
	MaxWindow       uint64
	GrowthIncrement uint64
	RTO             time.Duration
}

func (c *Config) applyDefaults() {
	if c.InitialWindow == 0 {
		c.InitialWindow = DefaultInitialWindow
	}
	if c.MaxWindow == 0 {
		c.MaxWindow = DefaultMaxWindow
	}
	if c.GrowthIncrement == 0 {
		c.GrowthIncrement = DefaultGrowthIncrement
	}
	if c.RTO == 0 {
		c.RTO = DefaultRTO
	}
}

// InFlightEntry 在途包记录 (每个未确认序列号一条)
type InFlightEntry struct {
	Seq             uint64
	SendTime        time.Time
	RetransmitCount int
}

// Observer 发送端观察者 (统计旁路)
type Observer interface {
	OnSent(seq uint64)
	OnRetransmit(seq uint64)
	OnDuplicateAck(ackNum uint64)
	OnWindowSize(size uint64)
}

// TransmitFunc 实际发包路径 (信道或网络连接)
type TransmitFunc func(p *protocol.Packet) error

// Window 发送端滑动窗口
type Window struct {
	cfg Config

	base       uint64
	nextSeq    uint64
	windowSize uint64

	inflight map[uint64]*InFlightEntry

	transmit TransmitFunc
	observer Observer

	mu sync.Mutex
}

// New 创建发送端窗口
func New(cfg Config, transmit TransmitFunc) *Window {
	cfg.applyDefaults()
	return &Window{
		cfg:        cfg,
		windowSize: cfg.InitialWindow,
		inflight:   make(map[uint64]*InFlightEntry),
		transmit:   transmit,
	}
}

// SetObserver 设置统计观察者
func (w *Window) SetObserver(o Observer) {
	w.observer = o
}

// CanSend 是否允许发送新数据
// 条件: 窗口未满且还有未发送的数据
func (w *Window) CanSend() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.nextSeq < w.base+w.windowSize && w.nextSeq < w.cfg.TotalPackets
}

// Send 发送下一个新包
// 分配 seq=nextSeq, 登记在途记录, 经 transmit 发出, nextSeq 自增
func (w *Window) Send(now time.Time) (seq uint64, ok bool, err error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.nextSeq >= w.base+w.windowSize || w.nextSeq >= w.cfg.TotalPackets {
		return 0, false, nil
	}

	seq = w.nextSeq
	w.inflight[seq] = &InFlightEntry{Seq: seq, SendTime: now}
	w.nextSeq++

	if w.observer != nil {
		w.observer.OnSent(seq)
		w.observer.OnWindowSize(w.windowSize)
	}

	pkt := &protocol.Packet{
		Seq:        seq,
		Window:     w.windowSize,
		SendTimeMs: now.UnixMilli(),
	}
	if err := w.transmit(pkt); err != nil {
		return seq, true, err
	}
	return seq, true, nil
}

// OnAck 处理累积确认
// ackNum > base 时推进 base、清理在途记录并线性增长窗口;
// ackNum <= base (重复/过期) 不影响窗口, 仅计入统计
func (w *Window) OnAck(ackNum uint64) (advanced bool) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if ackNum <= w.base || ackNum > w.nextSeq {
		if w.observer != nil {
			w.observer.OnDuplicateAck(ackNum)
		}
		return false
	}

	for seq := w.base; seq < ackNum; seq++ {
		delete(w.inflight, seq)
	}
	w.base = ackNum

	// 简化版拥塞控制: 线性增长到上限, 无丢包回退
	if w.windowSize < w.cfg.MaxWindow {
		w.windowSize += w.cfg.GrowthIncrement
		if w.windowSize > w.cfg.MaxWindow {
			w.windowSize = w.cfg.MaxWindow
		}
	}

	return true
}

// CheckRetransmits 扫描在途包, 重传所有超时者
// 同一序列号原样重发, 重置发送时间并累加重传计数; 重传次数无上限,
// 直到被确认或整体截止时间到达。按固定节拍调用, 不随每个包执行
func (w *Window) CheckRetransmits(now time.Time) (resent int, err error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	// 按序列号升序扫描, 保证固定种子下重传顺序可复现
	var timedOut []uint64
	for seq, e := range w.inflight {
		if now.Sub(e.SendTime) >= w.cfg.RTO {
			timedOut = append(timedOut, seq)
		}
	}
	sort.Slice(timedOut, func(i, j int) bool { return timedOut[i] < timedOut[j] })

	for _, seq := range timedOut {
		e := w.inflight[seq]
		e.SendTime = now
		e.RetransmitCount++

		if w.observer != nil {
			w.observer.OnRetransmit(seq)
		}

		pkt := &protocol.Packet{
			Seq:        seq,
			Window:     w.windowSize,
			SendTimeMs: now.UnixMilli(),
		}
		if err := w.transmit(pkt); err != nil {
			return resent, err
		}
		resent++
	}

	return resent, nil
}

// Done 发送是否全部完成
// 条件: 所有包都已发出且 base 追平 nextSeq (全部确认)
func (w *Window) Done() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.nextSeq >= w.cfg.TotalPackets && w.base == w.nextSeq
}

// State 当前派生状态
func (w *Window) State(now time.Time) State {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.base == w.nextSeq {
		return StateIdle
	}
	for _, e := range w.inflight {
		if now.Sub(e.SendTime) >= w.cfg.RTO {
			return StateRetransmitting
		}
	}
	if w.nextSeq == w.base+w.windowSize {
		return StateWaitingAck
	}
	return StateSending
}

// WindowState 窗口状态快照
type WindowState struct {
	Base       uint64
	NextSeq    uint64
	WindowSize uint64
	InFlight   int
}

// Snapshot 返回窗口状态快照
func (w *Window) Snapshot() WindowState {
	w.mu.Lock()
	defer w.mu.Unlock()
	return WindowState{
		Base:       w.base,
		NextSeq:    w.nextSeq,
		WindowSize: w.windowSize,
		InFlight:   len(w.inflight),
	}
}

// RetransmitCount 指定序列号的重传次数 (已确认的返回 0)
func (w *Window) RetransmitCount(seq uint64) int {
	w.mu.Lock()
	defer w.mu.Unlock()
	if e, ok := w.inflight[seq]; ok {
		return e.RetransmitCount
	}
	return 0
}
