// =============================================================================
// 文件: internal/protocol/protocol_test.go
// 描述: 协议编解码测试
// =============================================================================
package protocol

import (
	"errors"
	"testing"
)

func TestPacketEncodeDecode(t *testing.T) {
	p := &Packet{
		Seq:        12345,
		Payload:    []byte("hello"),
		Window:     32,
		SendTimeMs: 1700000000000,
	}

	msg, err := Decode(EncodePacket(p))
	if err != nil {
		t.Fatalf("解码失败: %v", err)
	}
	if msg.Kind != KindPacket || msg.Packet == nil {
		t.Fatalf("类型不正确: %+v", msg)
	}
	if msg.Packet.Seq != p.Seq {
		t.Errorf("Seq 不匹配: got %d, want %d", msg.Packet.Seq, p.Seq)
	}
	if string(msg.Packet.Payload) != "hello" {
		t.Errorf("Payload 不匹配: got %s", msg.Packet.Payload)
	}
	if msg.Packet.Window != 32 {
		t.Errorf("Window 不匹配: got %d", msg.Packet.Window)
	}
}

func TestAckEncodeDecode(t *testing.T) {
	msg, err := Decode(EncodeAck(678))
	if err != nil {
		t.Fatalf("解码失败: %v", err)
	}
	if msg.Kind != KindAck || msg.Ack == nil {
		t.Fatalf("类型不正确: %+v", msg)
	}
	if msg.Ack.AckNum != 678 {
		t.Errorf("AckNum 不匹配: got %d, want 678", msg.Ack.AckNum)
	}
}

func TestDecodeErrors(t *testing.T) {
	cases := []struct {
		name string
		data []byte
	}{
		{"非 JSON", []byte("not json at all")},
		{"握手问候语", []byte(Greeting)},
		{"未知类型", []byte(`{"type":"mystery"}`)},
		{"packet 缺字段", []byte(`{"type":"packet"}`)},
		{"ack 缺字段", []byte(`{"type":"ack"}`)},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Decode(tc.data)
			if err == nil {
				t.Fatal("应该返回错误")
			}
			if !errors.Is(err, ErrDecode) {
				t.Errorf("错误应该可被识别为 ErrDecode: %v", err)
			}
		})
	}
}

func TestAckZeroIsValid(t *testing.T) {
	// ack_num=0 合法 (尚未收到任何包时的累积确认值)
	msg, err := Decode(EncodeAck(0))
	if err != nil {
		t.Fatalf("解码失败: %v", err)
	}
	if msg.Ack.AckNum != 0 {
		t.Errorf("AckNum 不匹配: got %d, want 0", msg.Ack.AckNum)
	}
}
