// =============================================================================
// 文件: internal/transport/handshake.go
// 描述: 两阶段握手 - 先交换原始问候语, 再进入结构化消息阶段
//       问候帧在此全部消费, 绝不进入协议解码器
// =============================================================================
package transport

import (
	"fmt"

	"github.com/kookiemaster/tcp-sliding-window-project/internal/protocol"
)

// ErrHandshake 握手失败
var ErrHandshake = fmt.Errorf("握手失败")

// ClientHandshake 客户端侧握手
// 发送问候语并等待确认应答, 完成后连接进入结构化消息阶段
func ClientHandshake(conn MessageConn) error {
	if err := conn.WriteFrame([]byte(protocol.Greeting)); err != nil {
		return fmt.Errorf("%w: 发送问候失败: %v", ErrHandshake, err)
	}

	reply, err := conn.ReadFrame()
	if err != nil {
		return fmt.Errorf("%w: 读取应答失败: %v", ErrHandshake, err)
	}
	if string(reply) != protocol.GreetingReply {
		return fmt.Errorf("%w: 意外的应答: %q", ErrHandshake, reply)
	}
	return nil
}

// ServerHandshake 服务端侧握手
// 等待问候语并回复确认, 完成后连接进入结构化消息阶段
func ServerHandshake(conn MessageConn) error {
	greeting, err := conn.ReadFrame()
	if err != nil {
		return fmt.Errorf("%w: 读取问候失败: %v", ErrHandshake, err)
	}
	if string(greeting) != protocol.Greeting {
		return fmt.Errorf("%w: 意外的问候: %q", ErrHandshake, greeting)
	}

	if err := conn.WriteFrame([]byte(protocol.GreetingReply)); err != nil {
		return fmt.Errorf("%w: 发送应答失败: %v", ErrHandshake, err)
	}
	return nil
}
