// =============================================================================
// 文件: internal/simulation/run.go
// 描述: 进程内配对仿真 - 发送端/接收端由逻辑时钟驱动的单线程事件循环串联,
//       两个方向各一条 FIFO 队列, 固定种子下结果逐位可复现
// =============================================================================
package simulation

import (
	"context"
	"math/rand"
	"time"

	"github.com/kookiemaster/tcp-sliding-window-project/internal/channel"
	"github.com/kookiemaster/tcp-sliding-window-project/internal/protocol"
	"github.com/kookiemaster/tcp-sliding-window-project/internal/receiver"
	"github.com/kookiemaster/tcp-sliding-window-project/internal/sender"
	"github.com/kookiemaster/tcp-sliding-window-project/internal/stats"
)

// Outcome 运行结果
type Outcome int

const (
	OutcomeCompleted        Outcome = iota // 全部发送且确认
	OutcomeDeadlineExceeded                // 截止时间到达, 上报部分结果
)

func (o Outcome) String() string {
	switch o {
	case OutcomeCompleted:
		return "COMPLETED"
	case OutcomeDeadlineExceeded:
		return "DEADLINE_EXCEEDED"
	}
	return "UNKNOWN"
}

// Config 仿真配置
type Config struct {
	TotalPackets    uint64
	DropProbability float64
	InitialWindow   uint64
	MaxWindow       uint64
	GrowthIncrement uint64
	RTO             time.Duration
	SampleInterval  time.Duration
	Seed            int64
	Deadline        time.Duration // 逻辑时间预算, 0 表示不限
	Tick            time.Duration // 逻辑时钟步长, 默认 1ms
}

// Report 仿真报告 (只读, 截止中断时为部分结果)
type Report struct {
	Outcome Outcome

	Sent          uint64
	Received      uint64
	Dropped       uint64
	Retransmitted uint64
	DuplicateAcks uint64

	Goodput     float64
	FinalWindow uint64
	FinalBase   uint64

	Receiver receiver.Counts
	Stats    stats.Snapshot
}

// Run 运行一次仿真
// 发送、交付、确认、重传扫描与采样作为离散步骤在同一循环内串行化,
// 随机源只被数据方向的信道消费, 消费顺序随步骤固定
func Run(ctx context.Context, cfg Config) *Report {
	if cfg.Tick <= 0 {
		cfg.Tick = time.Millisecond
	}
	if cfg.RTO <= 0 {
		cfg.RTO = sender.DefaultRTO
	}

	rng := rand.New(rand.NewSource(cfg.Seed))
	collector := stats.New()

	// 数据方向有损; ACK 方向按默认无损 (双向丢包只需在此建第二条有损信道)
	dataLink := channel.New(cfg.DropProbability, 0, rng)
	dataLink.SetObserver(collector)

	tracker := receiver.New()
	tracker.SetObserver(collector)

	// 两条单向 FIFO 队列, 方向内不乱序
	var dataQueue []*protocol.Packet
	var ackQueue []uint64

	win := sender.New(sender.Config{
		TotalPackets:    cfg.TotalPackets,
		InitialWindow:   cfg.InitialWindow,
		MaxWindow:       cfg.MaxWindow,
		GrowthIncrement: cfg.GrowthIncrement,
		RTO:             cfg.RTO,
	}, func(p *protocol.Packet) error {
		pkt := *p
		dataLink.Transmit(p.Seq, func() error {
			dataQueue = append(dataQueue, &pkt)
			return nil
		})
		return nil // 丢包对发送方静默
	})
	win.SetObserver(collector)

	base := time.Unix(0, 0)
	checkTicks := int64(cfg.RTO / 4 / cfg.Tick)
	if checkTicks < 1 {
		checkTicks = 1
	}
	sampleTicks := int64(0)
	if cfg.SampleInterval > 0 {
		sampleTicks = int64(cfg.SampleInterval / cfg.Tick)
		if sampleTicks < 1 {
			sampleTicks = 1
		}
	}
	deadlineTicks := int64(-1)
	if cfg.Deadline > 0 {
		deadlineTicks = int64(cfg.Deadline / cfg.Tick)
	}

	outcome := OutcomeCompleted

	for step := int64(0); ; step++ {
		if ctx.Err() != nil {
			outcome = OutcomeDeadlineExceeded
			break
		}
		if deadlineTicks >= 0 && step >= deadlineTicks {
			outcome = OutcomeDeadlineExceeded
			break
		}

		now := base.Add(time.Duration(step) * cfg.Tick)

		// 1. 窗口允许范围内发送新数据
		for win.CanSend() {
			win.Send(now)
		}

		// 2. 交付本步到达的包, 产生累积 ACK
		for _, p := range dataQueue {
			ack, _ := tracker.OnPacket(p)
			ackQueue = append(ackQueue, ack)
		}
		dataQueue = dataQueue[:0]

		// 3. ACK 方向无损交付
		for _, a := range ackQueue {
			win.OnAck(a)
		}
		ackQueue = ackQueue[:0]

		// 4. 固定节拍的重传扫描
		if step%checkTicks == 0 {
			win.CheckRetransmits(now)
		}

		// 5. 固定节拍的接收端采样
		if sampleTicks > 0 && step%sampleTicks == 0 {
			tracker.Sample()
		}

		if win.Done() {
			break
		}
	}

	snap := collector.Snapshot()
	ws := win.Snapshot()

	return &Report{
		Outcome:       outcome,
		Sent:          snap.TotalSent,
		Received:      snap.TotalReceived,
		Dropped:       snap.TotalDropped,
		Retransmitted: snap.TotalRetransmitted,
		DuplicateAcks: snap.DuplicateAcks,
		Goodput:       tracker.Goodput(),
		FinalWindow:   ws.WindowSize,
		FinalBase:     ws.Base,
		Receiver:      tracker.Counts(),
		Stats:         snap,
	}
}
