// =============================================================================
// 文件: internal/config/config.go
// 描述: 配置管理 - 仿真参数、传输方式、加密与监控配置的加载和验证
// =============================================================================
package config

import (
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config 主配置
type Config struct {
	Listen   string `yaml:"listen"`
	LogLevel string `yaml:"log_level"`

	Sim       SimConfig       `yaml:"sim"`
	Transport TransportConfig `yaml:"transport"`
	Seal      SealConfig      `yaml:"seal"`
	Metrics   MetricsConfig   `yaml:"metrics"`
}

// SimConfig 仿真参数配置
type SimConfig struct {
	TotalPackets     uint64  `yaml:"total_packets"`
	DropProbability  float64 `yaml:"drop_probability"`
	InitialWindow    uint64  `yaml:"initial_window"`
	MaxWindow        uint64  `yaml:"max_window"`
	GrowthIncrement  uint64  `yaml:"growth_increment"`
	RTOMs            int     `yaml:"rto_ms"`
	SampleIntervalMs int     `yaml:"sample_interval_ms"`
	LatencyMs        int     `yaml:"latency_ms"`
	Seed             int64   `yaml:"seed"`
	DeadlineSec      int     `yaml:"deadline_sec"`
}

// RTO 重传超时
func (s *SimConfig) RTO() time.Duration {
	return time.Duration(s.RTOMs) * time.Millisecond
}

// SampleInterval 采样周期
func (s *SimConfig) SampleInterval() time.Duration {
	return time.Duration(s.SampleIntervalMs) * time.Millisecond
}

// Latency 信道附加时延
func (s *SimConfig) Latency() time.Duration {
	return time.Duration(s.LatencyMs) * time.Millisecond
}

// Deadline 整体截止时间 (0 表示不限)
func (s *SimConfig) Deadline() time.Duration {
	return time.Duration(s.DeadlineSec) * time.Second
}

// TransportConfig 传输方式配置
type TransportConfig struct {
	Mode   string `yaml:"mode"` // tcp, websocket
	WSPath string `yaml:"ws_path"`
}

// SealConfig 帧加密配置
type SealConfig struct {
	Enabled bool   `yaml:"enabled"`
	PSK     string `yaml:"psk"`
}

// MetricsConfig 监控配置
type MetricsConfig struct {
	Enabled    bool   `yaml:"enabled"`
	Listen     string `yaml:"listen"`
	Path       string `yaml:"path"`
	HealthPath string `yaml:"health_path"`
}

// Load 加载配置
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("读取配置失败: %w", err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("解析配置失败: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// DefaultConfig 返回默认配置
func DefaultConfig() *Config {
	return &Config{
		Listen:   ":15000",
		LogLevel: "info",

		Sim: SimConfig{
			TotalPackets:     10000,
			DropProbability:  0.01,
			InitialWindow:    10,
			MaxWindow:        100,
			GrowthIncrement:  1,
			RTOMs:            200,
			SampleIntervalMs: 500,
			Seed:             1,
		},

		Transport: TransportConfig{
			Mode:   "tcp",
			WSPath: "/swp",
		},

		Seal: SealConfig{
			Enabled: false,
		},

		Metrics: MetricsConfig{
			Enabled:    false,
			Listen:     ":9100",
			Path:       "/metrics",
			HealthPath: "/health",
		},
	}
}

// Validate 验证配置
func (c *Config) Validate() error {
	mainPort, err := parsePort(c.Listen)
	if err != nil {
		return fmt.Errorf("listen 端口格式错误: %w", err)
	}

	switch c.LogLevel {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("无效的日志级别: %s (支持: debug, info, warn, error)", c.LogLevel)
	}

	// 仿真参数
	if c.Sim.TotalPackets < 1 {
		return fmt.Errorf("sim.total_packets 必须大于 0")
	}
	if c.Sim.DropProbability < 0 || c.Sim.DropProbability > 1 {
		return fmt.Errorf("sim.drop_probability 需在 0-1 之间")
	}
	if c.Sim.InitialWindow < 1 {
		return fmt.Errorf("sim.initial_window 必须大于 0")
	}
	if c.Sim.MaxWindow < c.Sim.InitialWindow {
		return fmt.Errorf("sim.max_window 需不小于 initial_window")
	}
	if c.Sim.GrowthIncrement < 1 {
		return fmt.Errorf("sim.growth_increment 必须大于 0")
	}
	if c.Sim.RTOMs < 10 || c.Sim.RTOMs > 60000 {
		return fmt.Errorf("sim.rto_ms 需在 10-60000 之间")
	}
	if c.Sim.SampleIntervalMs < 0 {
		return fmt.Errorf("sim.sample_interval_ms 不能为负数")
	}
	if c.Sim.LatencyMs < 0 {
		return fmt.Errorf("sim.latency_ms 不能为负数")
	}
	if c.Sim.DeadlineSec < 0 {
		return fmt.Errorf("sim.deadline_sec 不能为负数")
	}

	// 传输方式
	switch c.Transport.Mode {
	case "", "tcp", "websocket":
		if c.Transport.Mode == "" {
			c.Transport.Mode = "tcp"
		}
	default:
		return fmt.Errorf("无效的传输方式: %s (支持: tcp, websocket)", c.Transport.Mode)
	}
	if c.Transport.Mode == "websocket" {
		if c.Transport.WSPath == "" {
			c.Transport.WSPath = "/swp"
		}
		if !strings.HasPrefix(c.Transport.WSPath, "/") {
			return fmt.Errorf("transport.ws_path 必须以 / 开头")
		}
	}

	// 加密
	if c.Seal.Enabled && c.Seal.PSK == "" {
		return fmt.Errorf("seal.enabled 时 psk 不能为空")
	}

	// 监控端口冲突检测
	if c.Metrics.Enabled {
		metricsPort, err := parsePort(c.Metrics.Listen)
		if err != nil {
			return fmt.Errorf("metrics.listen 端口格式错误: %w", err)
		}
		if metricsPort == mainPort {
			return fmt.Errorf("metrics.listen 端口 (%d) 与 listen 冲突", metricsPort)
		}
		if c.Metrics.Path == "" {
			c.Metrics.Path = "/metrics"
		}
		if c.Metrics.HealthPath == "" {
			c.Metrics.HealthPath = "/health"
		}
	}

	return nil
}

// parsePort 解析端口号
func parsePort(addr string) (int, error) {
	if strings.HasPrefix(addr, ":") {
		return strconv.Atoi(addr[1:])
	}
	_, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return strconv.Atoi(addr)
	}
	return strconv.Atoi(portStr)
}

// GetListenPort 获取监听端口
func (c *Config) GetListenPort() int {
	port, _ := parsePort(c.Listen)
	return port
}

// =============================================================================
// 配置文件示例生成
// =============================================================================

// GenerateExampleConfig 生成示例配置
func GenerateExampleConfig() string {
	return `# 滑动窗口可靠传输仿真配置示例
# =============================================================================

# 基础配置
listen: ":15000"                    # 接收端监听地址
log_level: "info"                   # 日志级别: debug, info, warn, error

# 仿真参数
sim:
  total_packets: 10000              # 发送包总数
  drop_probability: 0.01            # 数据方向丢包概率 (0-1)
  initial_window: 10                # 初始窗口大小
  max_window: 100                   # 窗口上限
  growth_increment: 1               # 每次 base 推进时的窗口增量
  rto_ms: 200                       # 固定重传超时 (毫秒)
  sample_interval_ms: 500           # 接收端采样周期 (毫秒, 0 关闭)
  latency_ms: 0                     # 信道附加时延 (毫秒)
  seed: 1                           # 随机种子 (固定种子结果可复现)
  deadline_sec: 0                   # 整体截止时间 (秒, 0 不限)

# 传输方式
transport:
  mode: "tcp"                       # tcp, websocket
  ws_path: "/swp"                   # WebSocket 路径

# 帧加密 (可选)
seal:
  enabled: false
  psk: ""                           # 预共享密钥 (使用 --gen-psk 生成)

# Prometheus 监控
metrics:
  enabled: false
  listen: ":9100"                   # 监控端口
  path: "/metrics"                  # Prometheus 指标路径
  health_path: "/health"            # 健康检查路径
`
}

// WriteExampleConfig 写入示例配置文件
func WriteExampleConfig(path string) error {
	return os.WriteFile(path, []byte(GenerateExampleConfig()), 0644)
}
