// =============================================================================
// 文件: internal/channel/channel.go
// 描述: 不可靠信道模型 - 按配置概率独立丢弃每个包, 其余同步转发
//       丢包对发送方静默 (不报错), 只对统计可见; 随机源由调用方注入,
//       保证固定种子下逐位可复现
// =============================================================================
package channel

import (
	"math/rand"
	"sync"
	"sync/atomic"
	"time"
)

// Observer 信道观察者 (统计旁路, 不参与协议决策)
type Observer interface {
	OnChannelDrop(seq uint64)
	OnChannelDeliver(seq uint64)
}

// Channel 单向不可靠信道
// 一个方向一个实例; ACK 方向按默认建为无损 (dropProb=0),
// 双向丢包只需在反向实例传入非零概率
type Channel struct {
	dropProb float64
	latency  time.Duration // 可选传播时延, 0 表示同步直达
	rng      *rand.Rand
	observer Observer

	delivered uint64
	dropped   uint64

	mu sync.Mutex // rand.Rand 非并发安全
}

// New 创建信道
// rng 必须由调用方注入 (确定性种子), 不使用全局随机源
func New(dropProb float64, latency time.Duration, rng *rand.Rand) *Channel {
	return &Channel{
		dropProb: dropProb,
		latency:  latency,
		rng:      rng,
	}
}

// SetObserver 设置统计观察者
func (c *Channel) SetObserver(o Observer) {
	c.observer = o
}

// Transmit 传输一个包
// 存活的包通过 forward 交付下游; 被丢弃时返回 false 且不调用 forward,
// 不向发送方报错 (真实网络的丢包语义)
func (c *Channel) Transmit(seq uint64, forward func() error) (delivered bool, err error) {
	c.mu.Lock()
	drop := c.rng.Float64() < c.dropProb
	c.mu.Unlock()

	if drop {
		atomic.AddUint64(&c.dropped, 1)
		if c.observer != nil {
			c.observer.OnChannelDrop(seq)
		}
		return false, nil
	}

	if c.latency > 0 {
		time.Sleep(c.latency)
	}

	if err := forward(); err != nil {
		return false, err
	}

	atomic.AddUint64(&c.delivered, 1)
	if c.observer != nil {
		c.observer.OnChannelDeliver(seq)
	}
	return true, nil
}

// Delivered 已交付包数
func (c *Channel) Delivered() uint64 {
	return atomic.LoadUint64(&c.delivered)
}

// Dropped 已丢弃包数
func (c *Channel) Dropped() uint64 {
	return atomic.LoadUint64(&c.dropped)
}
