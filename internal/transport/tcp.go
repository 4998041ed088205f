// =============================================================================
// 文件: internal/transport/tcp.go
// 描述: TCP 传输层 - 4 字节大端长度前缀分帧
// =============================================================================
package transport

import (
	"bufio"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
)

// tcpConn 长度前缀分帧的 TCP 连接
type tcpConn struct {
	conn net.Conn
	r    *bufio.Reader
	w    *bufio.Writer

	rmu sync.Mutex
	wmu sync.Mutex
}

// NewTCPConn 包装一条已建立的流式连接
func NewTCPConn(conn net.Conn) MessageConn {
	return &tcpConn{
		conn: conn,
		r:    bufio.NewReaderSize(conn, 32*1024),
		w:    bufio.NewWriterSize(conn, 32*1024),
	}
}

// DialTCP 建立 TCP 连接
func DialTCP(ctx context.Context, addr string) (MessageConn, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("连接 %s 失败: %w", addr, err)
	}
	return NewTCPConn(conn), nil
}

// WriteFrame 写一帧: 长度(4, 大端) + 数据
func (c *tcpConn) WriteFrame(data []byte) error {
	if len(data) > MaxFrameSize {
		return ErrFrameTooLarge
	}

	c.wmu.Lock()
	defer c.wmu.Unlock()

	var hdr [4]byte
	binary.BigEndian.PutUint32(hdr[:], uint32(len(data)))
	if _, err := c.w.Write(hdr[:]); err != nil {
		return wrapConnErr(err)
	}
	if _, err := c.w.Write(data); err != nil {
		return wrapConnErr(err)
	}
	return wrapConnErr(c.w.Flush())
}

// ReadFrame 读一帧
func (c *tcpConn) ReadFrame() ([]byte, error) {
	c.rmu.Lock()
	defer c.rmu.Unlock()

	var hdr [4]byte
	if _, err := io.ReadFull(c.r, hdr[:]); err != nil {
		return nil, wrapConnErr(err)
	}

	size := binary.BigEndian.Uint32(hdr[:])
	if size > MaxFrameSize {
		return nil, ErrFrameTooLarge
	}

	data := make([]byte, size)
	if _, err := io.ReadFull(c.r, data); err != nil {
		return nil, wrapConnErr(err)
	}
	return data, nil
}

func (c *tcpConn) Close() error {
	return c.conn.Close()
}

func (c *tcpConn) RemoteAddr() string {
	return c.conn.RemoteAddr().String()
}

// wrapConnErr 把对端关闭统一映射为 ErrConnClosed
func wrapConnErr(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, net.ErrClosed) {
		return fmt.Errorf("%w: %v", ErrConnClosed, err)
	}
	return err
}

// tcpListener TCP 监听器
type tcpListener struct {
	ln net.Listener
}

// ListenTCP 开始监听
func ListenTCP(addr string) (Listener, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("监听 %s 失败: %w", addr, err)
	}
	return &tcpListener{ln: ln}, nil
}

func (l *tcpListener) Accept() (MessageConn, error) {
	conn, err := l.ln.Accept()
	if err != nil {
		return nil, wrapConnErr(err)
	}
	return NewTCPConn(conn), nil
}

func (l *tcpListener) Close() error {
	return l.ln.Close()
}

func (l *tcpListener) Addr() string {
	return l.ln.Addr().String()
}
