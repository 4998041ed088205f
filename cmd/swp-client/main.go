// cmd/swp-client/main.go
// 滑动窗口协议发送端入口
// 两种运行方式: 连接接收端的联网模式, 或进程内确定性仿真模式

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"math/rand"
	"os"
	"runtime"
	"sort"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/kookiemaster/tcp-sliding-window-project/internal/channel"
	"github.com/kookiemaster/tcp-sliding-window-project/internal/config"
	"github.com/kookiemaster/tcp-sliding-window-project/internal/crypto"
	"github.com/kookiemaster/tcp-sliding-window-project/internal/protocol"
	"github.com/kookiemaster/tcp-sliding-window-project/internal/sender"
	"github.com/kookiemaster/tcp-sliding-window-project/internal/simulation"
	"github.com/kookiemaster/tcp-sliding-window-project/internal/stats"
	"github.com/kookiemaster/tcp-sliding-window-project/internal/transport"
)

// ============================================
// 版本信息
// ============================================

var (
	Version   = "1.0.0"
	BuildTime = "unknown"
)

var logLevel = 1 // 0=error 1=info 2=debug

func logf(level int, format string, args ...interface{}) {
	if level > logLevel {
		return
	}
	prefix := map[int]string{0: "[ERROR]", 1: "[INFO]", 2: "[DEBUG]"}[level]
	fmt.Printf("%s %s %s\n", prefix, time.Now().Format("15:04:05"), fmt.Sprintf(format, args...))
}

func setLogLevel(s string) {
	switch s {
	case "debug":
		logLevel = 2
	case "error":
		logLevel = 0
	default:
		logLevel = 1
	}
}

// ============================================
// 主函数
// ============================================

func main() {
	cfg, server, simOnly := parseFlags()
	setLogLevel(cfg.LogLevel)

	if simOnly {
		runSimulation(cfg)
		return
	}

	printBanner(cfg, server)

	ctx := context.Background()
	var cancel context.CancelFunc
	if deadline := cfg.Sim.Deadline(); deadline > 0 {
		ctx, cancel = context.WithTimeout(ctx, deadline)
	} else {
		ctx, cancel = context.WithCancel(ctx)
	}
	defer cancel()

	// 截止时间与连接故障都以非零状态退出, 只有全部确认才算成功
	if err := runNetworked(ctx, cfg, server); err != nil {
		if !errors.Is(err, context.DeadlineExceeded) {
			logf(0, "运行失败: %v", err)
		}
		os.Exit(1)
	}
}

// ============================================
// 进程内仿真模式
// ============================================

func runSimulation(cfg *config.Config) {
	logf(1, "进程内仿真: packets=%d p=%.3f seed=%d",
		cfg.Sim.TotalPackets, cfg.Sim.DropProbability, cfg.Sim.Seed)

	rep := simulation.Run(context.Background(), simulation.Config{
		TotalPackets:    cfg.Sim.TotalPackets,
		DropProbability: cfg.Sim.DropProbability,
		InitialWindow:   cfg.Sim.InitialWindow,
		MaxWindow:       cfg.Sim.MaxWindow,
		GrowthIncrement: cfg.Sim.GrowthIncrement,
		RTO:             cfg.Sim.RTO(),
		SampleInterval:  cfg.Sim.SampleInterval(),
		Seed:            cfg.Sim.Seed,
		Deadline:        cfg.Sim.Deadline(),
	})

	logf(1, "===== 仿真结果: %s =====", rep.Outcome)
	logf(1, "发送: %d | 重传: %d | 信道丢弃: %d", rep.Sent, rep.Retransmitted, rep.Dropped)
	logf(1, "接收: %d | 重复 ACK: %d | goodput: %.4f", rep.Received, rep.DuplicateAcks, rep.Goodput)
	logf(1, "最终窗口: %d | base: %d", rep.FinalWindow, rep.FinalBase)
	printHistogram(rep.Stats)

	if rep.Outcome != simulation.OutcomeCompleted {
		os.Exit(1)
	}
}

// ============================================
// 联网模式
// ============================================

func runNetworked(ctx context.Context, cfg *config.Config, server string) error {
	// 建立连接
	var conn transport.MessageConn
	var err error
	switch cfg.Transport.Mode {
	case "websocket":
		conn, err = transport.DialWS(ctx, server, cfg.Transport.WSPath)
	default:
		conn, err = transport.DialTCP(ctx, server)
	}
	if err != nil {
		return err
	}
	defer conn.Close()

	if cfg.Seal.Enabled {
		sealer, err := crypto.NewSealer(strings.TrimSpace(cfg.Seal.PSK))
		if err != nil {
			return err
		}
		conn = transport.NewSealedConn(conn, sealer)
	}

	if err := transport.ClientHandshake(conn); err != nil {
		return err
	}
	logf(1, "握手完成: %s", conn.RemoteAddr())

	collector := stats.New()

	// 发出方向经过有损信道 (丢包在发送侧注入, 对自身静默)
	rng := rand.New(rand.NewSource(cfg.Sim.Seed))
	link := channel.New(cfg.Sim.DropProbability, cfg.Sim.Latency(), rng)
	link.SetObserver(collector)

	win := sender.New(sender.Config{
		TotalPackets:    cfg.Sim.TotalPackets,
		InitialWindow:   cfg.Sim.InitialWindow,
		MaxWindow:       cfg.Sim.MaxWindow,
		GrowthIncrement: cfg.Sim.GrowthIncrement,
		RTO:             cfg.Sim.RTO(),
	}, func(p *protocol.Packet) error {
		_, err := link.Transmit(p.Seq, func() error {
			return conn.WriteFrame(protocol.EncodePacket(p))
		})
		return err
	})
	win.SetObserver(collector)

	acks := make(chan uint64, 256)
	start := time.Now()

	g, gctx := errgroup.WithContext(ctx)

	// ACK 读取循环
	g.Go(func() error {
		defer close(acks)
		for {
			frame, err := conn.ReadFrame()
			if err != nil {
				if gctx.Err() != nil || errors.Is(err, transport.ErrConnClosed) {
					return nil
				}
				return err
			}
			msg, err := protocol.Decode(frame)
			if err != nil {
				return err
			}
			if msg.Kind != protocol.KindAck {
				return fmt.Errorf("确认方向收到意外消息类型: %s", msg.Kind)
			}
			select {
			case acks <- msg.Ack.AckNum:
			case <-gctx.Done():
				return nil
			}
		}
	})

	// 发送循环
	g.Go(func() error {
		defer conn.Close() // 解除读取循环阻塞
		r := sender.NewRunner(win, acks, 0)
		return r.Run(gctx)
	})

	runErr := g.Wait()
	printReport(win, collector, time.Since(start), runErr)
	return runErr
}

// printReport 输出发送端最终统计 (截止中断时为部分结果)
func printReport(win *sender.Window, collector *stats.Collector, elapsed time.Duration, runErr error) {
	outcome := "COMPLETED"
	switch {
	case errors.Is(runErr, context.DeadlineExceeded):
		outcome = "DEADLINE_EXCEEDED"
	case runErr != nil:
		outcome = "CONNECTION_ERROR"
	}

	snap := collector.Snapshot()
	ws := win.Snapshot()

	logf(1, "===== 发送端统计: %s =====", outcome)
	logf(1, "发送: %d | 重传: %d | 信道丢弃: %d", snap.TotalSent, snap.TotalRetransmitted, snap.TotalDropped)
	logf(1, "重复 ACK: %d | 最终窗口: %d | base: %d/%d", snap.DuplicateAcks, ws.WindowSize, ws.Base, ws.NextSeq)
	logf(1, "用时: %v", elapsed.Round(time.Millisecond))
	printHistogram(snap)
}

// printHistogram 输出重传次数直方图
func printHistogram(snap stats.Snapshot) {
	if len(snap.RetransmitHistogram) == 0 {
		logf(1, "无重传")
		return
	}

	counts := make([]int, 0, len(snap.RetransmitHistogram))
	for n := range snap.RetransmitHistogram {
		counts = append(counts, n)
	}
	sort.Ints(counts)

	logf(1, "重传直方图 (次数 -> 包数):")
	for _, n := range counts {
		logf(1, "  %2d 次: %d 个包", n, snap.RetransmitHistogram[n])
	}
}

// ============================================
// 配置与参数
// ============================================

func parseFlags() (cfg *config.Config, server string, simOnly bool) {
	configFile := flag.String("config", "", "配置文件路径 (YAML)")
	serverAddr := flag.String("server", "", "接收端地址 (host:port)")
	simFlag := flag.Bool("sim", false, "进程内确定性仿真 (不连接接收端)")

	total := flag.Uint64("n", 0, "发送包总数")
	drop := flag.Float64("drop", -1, "丢包概率 (0-1)")
	window := flag.Uint64("window", 0, "初始窗口")
	maxWindow := flag.Uint64("max-window", 0, "窗口上限")
	growth := flag.Uint64("growth", 0, "窗口增量")
	rtoMs := flag.Int("rto", 0, "重传超时 (毫秒)")
	latencyMs := flag.Int("latency", 0, "信道附加时延 (毫秒)")
	seed := flag.Int64("seed", 0, "随机种子")
	deadlineSec := flag.Int("deadline", 0, "整体截止时间 (秒)")

	transportMode := flag.String("transport", "", "传输方式: tcp, websocket")
	wsPath := flag.String("ws-path", "", "WebSocket 路径")
	psk := flag.String("psk", "", "帧加密预共享密钥")
	logLvl := flag.String("log", "", "日志级别: debug, info, error")
	showVersion := flag.Bool("version", false, "显示版本")

	flag.Parse()

	if *showVersion {
		fmt.Printf("swp-client v%s\n", Version)
		fmt.Printf("Build: %s\n", BuildTime)
		fmt.Printf("Go: %s\n", runtime.Version())
		os.Exit(0)
	}

	// 先加载配置文件, 再用命令行参数覆盖
	cfg = config.DefaultConfig()
	if *configFile != "" {
		loaded, err := config.Load(*configFile)
		if err != nil {
			fmt.Printf("[ERROR] %v\n", err)
			os.Exit(1)
		}
		cfg = loaded
		fmt.Printf("[INFO] 已加载配置文件: %s\n", *configFile)
	}

	if *total != 0 {
		cfg.Sim.TotalPackets = *total
	}
	if *drop >= 0 {
		cfg.Sim.DropProbability = *drop
	}
	if *window != 0 {
		cfg.Sim.InitialWindow = *window
	}
	if *maxWindow != 0 {
		cfg.Sim.MaxWindow = *maxWindow
	}
	if *growth != 0 {
		cfg.Sim.GrowthIncrement = *growth
	}
	if *rtoMs != 0 {
		cfg.Sim.RTOMs = *rtoMs
	}
	if *latencyMs != 0 {
		cfg.Sim.LatencyMs = *latencyMs
	}
	if *seed != 0 {
		cfg.Sim.Seed = *seed
	}
	if *deadlineSec != 0 {
		cfg.Sim.DeadlineSec = *deadlineSec
	}
	if *transportMode != "" {
		cfg.Transport.Mode = *transportMode
	}
	if *wsPath != "" {
		cfg.Transport.WSPath = *wsPath
	}
	if *psk != "" {
		cfg.Seal.Enabled = true
		cfg.Seal.PSK = *psk
	}
	if *logLvl != "" {
		cfg.LogLevel = *logLvl
	}

	if err := cfg.Validate(); err != nil {
		fmt.Printf("[ERROR] %v\n", err)
		os.Exit(1)
	}

	if !*simFlag && *serverAddr == "" {
		fmt.Println("[ERROR] 必须指定接收端地址 (-server), 或使用 -sim 进程内仿真")
		flag.Usage()
		os.Exit(1)
	}

	return cfg, *serverAddr, *simFlag
}

func printBanner(cfg *config.Config, server string) {
	fmt.Println()
	fmt.Println("╔═══════════════════════════════════════════════════════════╗")
	fmt.Println("║            Sliding Window Protocol - Sender               ║")
	fmt.Println("╠═══════════════════════════════════════════════════════════╣")
	fmt.Printf("║  接收端: %-48s ║\n", server)
	fmt.Printf("║  传输层: %-48s ║\n", cfg.Transport.Mode)
	fmt.Printf("║  参数:   n=%d p=%.3f window=%d/%d rto=%dms%*s║\n",
		cfg.Sim.TotalPackets, cfg.Sim.DropProbability,
		cfg.Sim.InitialWindow, cfg.Sim.MaxWindow, cfg.Sim.RTOMs, 10, "")
	fmt.Println("╚═══════════════════════════════════════════════════════════╝")
	fmt.Println()
}
