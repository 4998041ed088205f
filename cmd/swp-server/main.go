// cmd/swp-server/main.go
// 滑动窗口协议接收端入口
// 监听连接、两阶段握手、累积确认与周期采样

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"strings"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/kookiemaster/tcp-sliding-window-project/internal/config"
	"github.com/kookiemaster/tcp-sliding-window-project/internal/crypto"
	"github.com/kookiemaster/tcp-sliding-window-project/internal/metrics"
	"github.com/kookiemaster/tcp-sliding-window-project/internal/protocol"
	"github.com/kookiemaster/tcp-sliding-window-project/internal/receiver"
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
	cfg := parseFlags()
	setLogLevel(cfg.LogLevel)

	printBanner(cfg)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 监听器
	var ln transport.Listener
	var err error
	switch cfg.Transport.Mode {
	case "websocket":
		ln, err = transport.ListenWS(cfg.Listen, cfg.Transport.WSPath)
	default:
		ln, err = transport.ListenTCP(cfg.Listen)
	}
	if err != nil {
		logf(0, "监听失败: %v", err)
		os.Exit(1)
	}
	defer ln.Close()

	// 可选帧加密
	var sealer *crypto.Sealer
	if cfg.Seal.Enabled {
		sealer, err = crypto.NewSealer(strings.TrimSpace(cfg.Seal.PSK))
		if err != nil {
			logf(0, "初始化加密失败: %v", err)
			os.Exit(1)
		}
	}

	// 可选 Prometheus 监控
	var swpMetrics *metrics.SwpMetrics
	var metricsSrv *metrics.MetricsServer
	if cfg.Metrics.Enabled {
		metricsSrv = metrics.NewMetricsServer(cfg.Metrics.Listen, cfg.Metrics.Path, cfg.Metrics.HealthPath)
		swpMetrics = metrics.NewSwpMetrics(metricsSrv.GetRegistry())

		startTime := time.Now()
		metricsSrv.SetHealthCheck(func() metrics.HealthStatus {
			return metrics.HealthStatus{
				Status:    "healthy",
				Timestamp: time.Now(),
				Uptime:    time.Since(startTime),
			}
		})

		if err := metricsSrv.Start(ctx); err != nil {
			logf(0, "监控服务启动失败: %v", err)
			os.Exit(1)
		}
		defer metricsSrv.Stop()
		logf(1, "监控服务就绪: %s%s", cfg.Metrics.Listen, cfg.Metrics.Path)
	}

	logf(1, "接收端就绪: %s (%s)", ln.Addr(), cfg.Transport.Mode)
	logf(1, "按 Ctrl+C 退出")

	g, ctx := errgroup.WithContext(ctx)

	// 接受循环
	g.Go(func() error {
		for {
			conn, err := ln.Accept()
			if err != nil {
				if errors.Is(err, transport.ErrConnClosed) || ctx.Err() != nil {
					return nil
				}
				logf(0, "接受连接失败: %v", err)
				continue
			}
			if sealer != nil {
				conn = transport.NewSealedConn(conn, sealer)
			}
			go serveConn(ctx, conn, cfg, swpMetrics)
		}
	})

	// 信号处理
	g.Go(func() error {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		select {
		case sig := <-sigChan:
			logf(1, "收到信号 %v, 正在关闭", sig)
			if metricsSrv != nil {
				metricsSrv.SetHealthy(false) // 存活探针先于监听器翻红
			}
			ln.Close()
			cancel()
		case <-ctx.Done():
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		logf(0, "运行失败: %v", err)
		os.Exit(1)
	}
	logf(1, "已停止")
}

// ============================================
// 连接处理
// ============================================

// recvObserver 把接收端事件同时分发给统计收集器和监控指标
type recvObserver struct {
	collector *stats.Collector
	metrics   *metrics.SwpMetrics
}

func (o *recvObserver) OnReceived(seq uint64) {
	o.collector.OnReceived(seq)
	if o.metrics != nil {
		o.metrics.OnReceived(seq)
	}
}

func (o *recvObserver) OnMissing(seq uint64) {
	o.collector.OnMissing(seq)
	if o.metrics != nil {
		o.metrics.OnMissing(seq)
	}
}

func (o *recvObserver) OnSample(s stats.Sample) {
	o.collector.OnSample(s)
	if o.metrics != nil {
		o.metrics.OnSample(s)
	}
}

// serveConn 处理一条发送端连接: 握手 -> 逐帧解码 -> 累积确认
func serveConn(ctx context.Context, conn transport.MessageConn, cfg *config.Config, m *metrics.SwpMetrics) {
	defer conn.Close()
	remote := conn.RemoteAddr()

	if err := transport.ServerHandshake(conn); err != nil {
		logf(0, "[%s] %v", remote, err)
		return
	}
	logf(1, "[%s] 握手完成", remote)

	collector := stats.New()
	tracker := receiver.New()
	tracker.SetObserver(&recvObserver{collector: collector, metrics: m})

	// 周期采样
	sampleCtx, stopSampling := context.WithCancel(ctx)
	defer stopSampling()
	if interval := cfg.Sim.SampleInterval(); interval > 0 {
		go func() {
			ticker := time.NewTicker(interval)
			defer ticker.Stop()
			for {
				select {
				case <-sampleCtx.Done():
					return
				case <-ticker.C:
					s := tracker.Sample()
					logf(2, "[%s] 采样: window=%d highest=%d goodput=%.4f",
						remote, s.WindowSize, s.HighestReceived, s.Goodput)
				}
			}
		}()
	}

	for {
		frame, err := conn.ReadFrame()
		if err != nil {
			if errors.Is(err, transport.ErrConnClosed) {
				logf(1, "[%s] 对端关闭", remote)
			} else {
				logf(0, "[%s] 读取失败: %v", remote, err)
			}
			break
		}

		msg, err := protocol.Decode(frame)
		if err != nil {
			// 协议错误不是丢包, 必须上报并断开
			logf(0, "[%s] %v", remote, err)
			break
		}
		if msg.Kind != protocol.KindPacket {
			logf(0, "[%s] 数据方向收到意外消息类型: %s", remote, msg.Kind)
			break
		}

		ackNum, dup := tracker.OnPacket(msg.Packet)
		if dup {
			logf(2, "[%s] 重复包 seq=%d", remote, msg.Packet.Seq)
		}

		if err := conn.WriteFrame(protocol.EncodeAck(ackNum)); err != nil {
			logf(0, "[%s] 发送 ACK 失败: %v", remote, err)
			break
		}
	}

	printConnReport(remote, tracker, collector)
}

// printConnReport 连接结束时输出最终统计 (中断时为部分结果)
func printConnReport(remote string, tracker *receiver.Tracker, collector *stats.Collector) {
	counts := tracker.Counts()
	snap := collector.Snapshot()

	logf(1, "[%s] ===== 接收端统计 =====", remote)
	logf(1, "[%s] 收到: %d (去重后) | 重复: %d", remote, counts.Received, counts.Duplicates)
	logf(1, "[%s] 累积确认点: %d | 最大序列号: %d", remote, counts.Expected, counts.Highest)
	logf(1, "[%s] 缺失记录: %d | 乱序补齐: %d", remote, counts.Missing, counts.Recovered)
	logf(1, "[%s] goodput: %.4f | 用时: %v", remote, tracker.Goodput(), snap.Elapsed.Round(time.Millisecond))

	missing := tracker.Missing()
	if len(missing) > 0 {
		limit := len(missing)
		if limit > 20 {
			limit = 20
		}
		logf(1, "[%s] 缺失序列号 (前 %d 个): %v", remote, limit, missing[:limit])
	}
}

// ============================================
// 配置与参数
// ============================================

func parseFlags() *config.Config {
	configFile := flag.String("config", "", "配置文件路径 (YAML)")
	listen := flag.String("listen", "", "监听地址")
	logLvl := flag.String("log", "", "日志级别: debug, info, error")
	transportMode := flag.String("transport", "", "传输方式: tcp, websocket")
	wsPath := flag.String("ws-path", "", "WebSocket 路径")
	psk := flag.String("psk", "", "帧加密预共享密钥")
	metricsListen := flag.String("metrics", "", "Prometheus 监听地址 (留空关闭)")
	sampleMs := flag.Int("sample-interval", 0, "采样周期 (毫秒)")

	genConfig := flag.Bool("gen-config", false, "生成示例配置并退出")
	genPSK := flag.Bool("gen-psk", false, "生成 PSK 并退出")
	showVersion := flag.Bool("version", false, "显示版本")

	flag.Parse()

	if *showVersion {
		fmt.Printf("swp-server v%s\n", Version)
		fmt.Printf("Build: %s\n", BuildTime)
		fmt.Printf("Go: %s\n", runtime.Version())
		os.Exit(0)
	}
	if *genConfig {
		fmt.Print(config.GenerateExampleConfig())
		os.Exit(0)
	}
	if *genPSK {
		s, err := crypto.GeneratePSK()
		if err != nil {
			fmt.Printf("[ERROR] 生成 PSK 失败: %v\n", err)
			os.Exit(1)
		}
		fmt.Println(s)
		os.Exit(0)
	}

	// 先加载配置文件, 再用命令行参数覆盖
	cfg := config.DefaultConfig()
	if *configFile != "" {
		loaded, err := config.Load(*configFile)
		if err != nil {
			fmt.Printf("[ERROR] %v\n", err)
			os.Exit(1)
		}
		cfg = loaded
		fmt.Printf("[INFO] 已加载配置文件: %s\n", *configFile)
	}

	if *listen != "" {
		cfg.Listen = *listen
	}
	if *logLvl != "" {
		cfg.LogLevel = *logLvl
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
	if *metricsListen != "" {
		cfg.Metrics.Enabled = true
		cfg.Metrics.Listen = *metricsListen
	}
	if *sampleMs != 0 {
		cfg.Sim.SampleIntervalMs = *sampleMs
	}

	if err := cfg.Validate(); err != nil {
		fmt.Printf("[ERROR] %v\n", err)
		os.Exit(1)
	}
	return cfg
}

func printBanner(cfg *config.Config) {
	fmt.Println()
	fmt.Println("╔═══════════════════════════════════════════════════════════╗")
	fmt.Println("║           Sliding Window Protocol - Receiver              ║")
	fmt.Println("╠═══════════════════════════════════════════════════════════╣")
	fmt.Printf("║  监听:   %-48s ║\n", cfg.Listen)
	fmt.Printf("║  传输层: %-48s ║\n", cfg.Transport.Mode)
	fmt.Printf("║  加密:   %-48v ║\n", cfg.Seal.Enabled)
	fmt.Println("╚═══════════════════════════════════════════════════════════╝")
	fmt.Println()
}
