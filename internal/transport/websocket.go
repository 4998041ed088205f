// =============================================================================
// 文件: internal/transport/websocket.go
// 描述: WebSocket 传输层 - 二进制消息即帧
// =============================================================================
package transport

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// wsConn WebSocket 连接
type wsConn struct {
	conn *websocket.Conn
	wmu  sync.Mutex
}

func (c *wsConn) WriteFrame(data []byte) error {
	if len(data) > MaxFrameSize {
		return ErrFrameTooLarge
	}

	c.wmu.Lock()
	defer c.wmu.Unlock()

	err := c.conn.WriteMessage(websocket.BinaryMessage, data)
	if err != nil {
		if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
			return fmt.Errorf("%w: %v", ErrConnClosed, err)
		}
		return wrapConnErr(err)
	}
	return nil
}

func (c *wsConn) ReadFrame() ([]byte, error) {
	for {
		messageType, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil, fmt.Errorf("%w: %v", ErrConnClosed, err)
			}
			return nil, wrapConnErr(err)
		}
		if messageType != websocket.BinaryMessage {
			continue
		}
		if len(data) > MaxFrameSize {
			return nil, ErrFrameTooLarge
		}
		return data, nil
	}
}

func (c *wsConn) Close() error {
	c.wmu.Lock()
	c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	c.wmu.Unlock()
	return c.conn.Close()
}

func (c *wsConn) RemoteAddr() string {
	return c.conn.RemoteAddr().String()
}

// DialWS 建立 WebSocket 连接
func DialWS(ctx context.Context, addr, path string) (MessageConn, error) {
	url := fmt.Sprintf("ws://%s%s", addr, path)
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("连接 %s 失败: %w", url, err)
	}
	return &wsConn{conn: conn}, nil
}

// wsListener WebSocket 监听器
// HTTP 服务升级请求后把连接推入 Accept 队列
type wsListener struct {
	ln         net.Listener
	httpServer *http.Server
	upgrader   websocket.Upgrader

	accepted chan *wsConn
	closed   chan struct{}
	once     sync.Once
}

// ListenWS 开始监听
func ListenWS(addr, path string) (Listener, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("监听 %s 失败: %w", addr, err)
	}

	l := &wsListener{
		ln:       ln,
		accepted: make(chan *wsConn, 8),
		closed:   make(chan struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  32 * 1024,
			WriteBufferSize: 32 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}

	mux := http.NewServeMux()
	mux.HandleFunc(path, l.handleUpgrade)
	l.httpServer = &http.Server{Handler: mux}

	go func() {
		if err := l.httpServer.Serve(ln); err != nil && err != http.ErrServerClosed {
			fmt.Printf("[ERROR] %s [WebSocket] 服务器错误: %v\n",
				time.Now().Format("15:04:05"), err)
		}
	}()

	return l, nil
}

func (l *wsListener) handleUpgrade(w http.ResponseWriter, r *http.Request) {
	conn, err := l.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	select {
	case l.accepted <- &wsConn{conn: conn}:
	case <-l.closed:
		conn.Close()
	}
}

func (l *wsListener) Accept() (MessageConn, error) {
	select {
	case c := <-l.accepted:
		return c, nil
	case <-l.closed:
		return nil, ErrConnClosed
	}
}

func (l *wsListener) Close() error {
	l.once.Do(func() { close(l.closed) })

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return l.httpServer.Shutdown(ctx)
}

func (l *wsListener) Addr() string {
	return l.ln.Addr().String()
}
