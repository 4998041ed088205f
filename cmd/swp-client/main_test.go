// cmd/swp-client/main_test.go
// 联网模式运行结果测试

package main

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/kookiemaster/tcp-sliding-window-project/internal/config"
	"github.com/kookiemaster/tcp-sliding-window-project/internal/protocol"
	"github.com/kookiemaster/tcp-sliding-window-project/internal/transport"
)

func init() {
	logLevel = 0
}

// startReceiver 起一个最小接收端: 握手后按 serve 回调处理每帧
func startReceiver(t *testing.T, serve func(conn transport.MessageConn, msg *protocol.Message) error) transport.Listener {
	t.Helper()
	ln, err := transport.ListenTCP("127.0.0.1:0")
	if err != nil {
		t.Fatalf("监听失败: %v", err)
	}
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		if err := transport.ServerHandshake(conn); err != nil {
			return
		}
		for {
			frame, err := conn.ReadFrame()
			if err != nil {
				return
			}
			msg, err := protocol.Decode(frame)
			if err != nil {
				return
			}
			if err := serve(conn, msg); err != nil {
				return
			}
		}
	}()
	return ln
}

func testConfig() *config.Config {
	cfg := config.DefaultConfig()
	cfg.Sim.TotalPackets = 5
	cfg.Sim.InitialWindow = 2
	cfg.Sim.MaxWindow = 10
	cfg.Sim.RTOMs = 20
	cfg.Sim.DropProbability = 0
	return cfg
}

func TestRunNetworkedCompletes(t *testing.T) {
	// 无损直连, 逐包确认
	ln := startReceiver(t, func(conn transport.MessageConn, msg *protocol.Message) error {
		return conn.WriteFrame(protocol.EncodeAck(msg.Packet.Seq + 1))
	})
	defer ln.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := runNetworked(ctx, testConfig(), ln.Addr()); err != nil {
		t.Fatalf("无损链路应正常完成: %v", err)
	}
}

func TestRunNetworkedDeadline(t *testing.T) {
	// 接收端吞掉所有包但从不确认: 截止时间必须以错误上报,
	// 调用方据此以非零状态退出
	ln := startReceiver(t, func(conn transport.MessageConn, msg *protocol.Message) error {
		return nil
	})
	defer ln.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	err := runNetworked(ctx, testConfig(), ln.Addr())
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("无确认时应返回 DeadlineExceeded: %v", err)
	}
}
