// =============================================================================
// 文件: internal/transport/transport.go
// 描述: 传输抽象 - 面向帧的连接与监听器接口, 可选逐帧加密包装
// =============================================================================
package transport

import (
	"fmt"

	"github.com/kookiemaster/tcp-sliding-window-project/internal/crypto"
)

// 错误定义
var (
	ErrConnClosed    = fmt.Errorf("连接已关闭")
	ErrFrameTooLarge = fmt.Errorf("帧超出大小限制")
)

// 单帧大小上限, 防御性限制
const MaxFrameSize = 1 << 20

// MessageConn 面向帧的连接
// 一帧承载一条完整消息 (握手问候或 JSON 编码的协议消息)
type MessageConn interface {
	WriteFrame(data []byte) error
	ReadFrame() ([]byte, error)
	Close() error
	RemoteAddr() string
}

// Listener 面向帧的监听器
type Listener interface {
	Accept() (MessageConn, error)
	Close() error
	Addr() string
}

// sealedConn 逐帧加密包装
type sealedConn struct {
	inner  MessageConn
	sealer *crypto.Sealer
}

// NewSealedConn 包装连接, 每帧经 Sealer 封装/解封
func NewSealedConn(inner MessageConn, sealer *crypto.Sealer) MessageConn {
	return &sealedConn{inner: inner, sealer: sealer}
}

func (c *sealedConn) WriteFrame(data []byte) error {
	frame, err := c.sealer.Seal(data)
	if err != nil {
		return err
	}
	return c.inner.WriteFrame(frame)
}

func (c *sealedConn) ReadFrame() ([]byte, error) {
	frame, err := c.inner.ReadFrame()
	if err != nil {
		return nil, err
	}
	return c.sealer.Open(frame)
}

func (c *sealedConn) Close() error {
	return c.inner.Close()
}

func (c *sealedConn) RemoteAddr() string {
	return c.inner.RemoteAddr()
}
