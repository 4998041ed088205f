// =============================================================================
// 文件: internal/transport/transport_test.go
// 描述: 分帧、握手与加密包装测试
// =============================================================================
package transport

import (
	"bytes"
	"context"
	"errors"
	"net"
	"testing"

	"github.com/kookiemaster/tcp-sliding-window-project/internal/crypto"
	"github.com/kookiemaster/tcp-sliding-window-project/internal/protocol"
)

func pipeConns() (MessageConn, MessageConn) {
	a, b := net.Pipe()
	return NewTCPConn(a), NewTCPConn(b)
}

func TestFrameRoundtrip(t *testing.T) {
	client, server := pipeConns()
	defer client.Close()
	defer server.Close()

	payload := []byte(`{"type":"packet","seq_num":42}`)

	errc := make(chan error, 1)
	go func() { errc <- client.WriteFrame(payload) }()

	got, err := server.ReadFrame()
	if err != nil {
		t.Fatalf("ReadFrame 失败: %v", err)
	}
	if !bytes.Equal(got, payload) {
		t.Errorf("帧内容不匹配: got %q", got)
	}
	if err := <-errc; err != nil {
		t.Fatalf("WriteFrame 失败: %v", err)
	}
}

func TestReadAfterPeerClose(t *testing.T) {
	client, server := pipeConns()
	defer server.Close()

	client.Close()
	if _, err := server.ReadFrame(); !errors.Is(err, ErrConnClosed) {
		t.Errorf("对端关闭应映射为 ErrConnClosed: %v", err)
	}
}

func TestHandshake(t *testing.T) {
	client, server := pipeConns()
	defer client.Close()
	defer server.Close()

	errc := make(chan error, 1)
	go func() { errc <- ServerHandshake(server) }()

	if err := ClientHandshake(client); err != nil {
		t.Fatalf("客户端握手失败: %v", err)
	}
	if err := <-errc; err != nil {
		t.Fatalf("服务端握手失败: %v", err)
	}
}

func TestHandshakeConsumesGreeting(t *testing.T) {
	client, server := pipeConns()
	defer client.Close()
	defer server.Close()

	done := make(chan error, 1)
	go func() {
		if err := ClientHandshake(client); err != nil {
			done <- err
			return
		}
		// 握手后的第一帧才是结构化消息
		done <- client.WriteFrame(protocol.EncodePacket(&protocol.Packet{Seq: 0}))
	}()

	if err := ServerHandshake(server); err != nil {
		t.Fatalf("服务端握手失败: %v", err)
	}

	// 握手完成后读到的每一帧都必须能通过解码器
	frame, err := server.ReadFrame()
	if err != nil {
		t.Fatalf("ReadFrame 失败: %v", err)
	}
	msg, err := protocol.Decode(frame)
	if err != nil {
		t.Fatalf("问候语泄漏进结构化阶段: %v", err)
	}
	if msg.Kind != protocol.KindPacket || msg.Packet.Seq != 0 {
		t.Errorf("消息不正确: %+v", msg)
	}
	if err := <-done; err != nil {
		t.Fatalf("客户端侧失败: %v", err)
	}
}

func TestHandshakeRejectsBadGreeting(t *testing.T) {
	client, server := pipeConns()
	defer client.Close()
	defer server.Close()

	go client.WriteFrame([]byte("hello"))

	if err := ServerHandshake(server); !errors.Is(err, ErrHandshake) {
		t.Errorf("错误的问候应拒绝: %v", err)
	}
}

func TestSealedConnRoundtrip(t *testing.T) {
	psk, err := crypto.GeneratePSK()
	if err != nil {
		t.Fatalf("生成 PSK 失败: %v", err)
	}
	cs, _ := crypto.NewSealer(psk)
	ss, _ := crypto.NewSealer(psk)

	rawClient, rawServer := pipeConns()
	client := NewSealedConn(rawClient, cs)
	server := NewSealedConn(rawServer, ss)
	defer client.Close()
	defer server.Close()

	payload := []byte("sealed payload")
	go client.WriteFrame(payload)

	got, err := server.ReadFrame()
	if err != nil {
		t.Fatalf("加密帧读取失败: %v", err)
	}
	if !bytes.Equal(got, payload) {
		t.Errorf("明文不匹配: got %q", got)
	}
}

func TestTCPListenerAcceptLoop(t *testing.T) {
	ln, err := ListenTCP("127.0.0.1:0")
	if err != nil {
		t.Fatalf("监听失败: %v", err)
	}
	defer ln.Close()

	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		if err := ServerHandshake(conn); err != nil {
			t.Errorf("服务端握手失败: %v", err)
		}
	}()

	conn, err := DialTCP(context.Background(), ln.Addr())
	if err != nil {
		t.Fatalf("连接失败: %v", err)
	}
	defer conn.Close()

	if err := ClientHandshake(conn); err != nil {
		t.Fatalf("客户端握手失败: %v", err)
	}
}

func TestWebSocketRoundtrip(t *testing.T) {
	ln, err := ListenWS("127.0.0.1:0", "/swp")
	if err != nil {
		t.Fatalf("监听失败: %v", err)
	}
	defer ln.Close()

	payload := []byte(`{"type":"ack","ack_num":3}`)
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		frame, err := conn.ReadFrame()
		if err != nil {
			t.Errorf("服务端读取失败: %v", err)
			return
		}
		conn.WriteFrame(frame)
	}()

	conn, err := DialWS(context.Background(), ln.Addr(), "/swp")
	if err != nil {
		t.Fatalf("连接失败: %v", err)
	}
	defer conn.Close()

	if err := conn.WriteFrame(payload); err != nil {
		t.Fatalf("写入失败: %v", err)
	}
	got, err := conn.ReadFrame()
	if err != nil {
		t.Fatalf("读取失败: %v", err)
	}
	if !bytes.Equal(got, payload) {
		t.Errorf("回显不匹配: got %q", got)
	}
}
