// =============================================================================
// 文件: internal/sender/runner.go
// 描述: 发送端运行循环 - 发送、ACK 处理与超时扫描在同一事件循环中串行化
//       窗口满时挂起发送, 仅由 ACK 解除; 重传扫描照常进行, 不受挂起影响
// =============================================================================
package sender

import (
	"context"
	"fmt"
	"time"
)

// 错误定义
var (
	ErrAckSourceClosed = fmt.Errorf("确认通道已关闭")
)

// Runner 发送端运行器
type Runner struct {
	win  *Window
	acks <-chan uint64

	checkInterval time.Duration
}

// NewRunner 创建发送端运行器
// acks 是唯一的确认来源; checkInterval <= 0 时取 RTO/4
func NewRunner(win *Window, acks <-chan uint64, checkInterval time.Duration) *Runner {
	if checkInterval <= 0 {
		checkInterval = win.cfg.RTO / 4
		if checkInterval <= 0 {
			checkInterval = DefaultRTO / 4
		}
	}
	return &Runner{
		win:           win,
		acks:          acks,
		checkInterval: checkInterval,
	}
}

// Run 运行到完成、截止时间或连接中断
// 返回 nil 表示全部发送且确认; context.DeadlineExceeded 表示超过整体截止时间;
// 其他错误表示传输层故障。任一出口处窗口不变式均成立, 统计仍可上报
func (r *Runner) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.checkInterval)
	defer ticker.Stop()

	for {
		if r.win.Done() {
			return nil
		}

		// 窗口未满时尽量发送, 期间非阻塞消费 ACK
		for r.win.CanSend() {
			if _, _, err := r.win.Send(time.Now()); err != nil {
				return err
			}
			select {
			case ack, ok := <-r.acks:
				if !ok {
					return ErrAckSourceClosed
				}
				r.win.OnAck(ack)
			default:
			}
		}

		if r.win.Done() {
			return nil
		}

		// 窗口满或数据发完: 等待 ACK、重传节拍或取消
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ack, ok := <-r.acks:
			if !ok {
				return ErrAckSourceClosed
			}
			r.win.OnAck(ack)
		case <-ticker.C:
			if _, err := r.win.CheckRetransmits(time.Now()); err != nil {
				return err
			}
		}
	}
}
