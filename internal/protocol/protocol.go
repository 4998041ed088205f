// =============================================================================
// 文件: internal/protocol/protocol.go
// 描述: 滑动窗口协议消息定义与编解码
//       连接分两个阶段: 握手阶段交换问候语(原始字符串, 不进结构化解码器),
//       之后才是结构化的 Packet/Ack 消息流。两阶段严格分离。
// =============================================================================
package protocol

import (
	"encoding/json"
	"fmt"
)

// 握手问候语 (原始字符串, 仅在握手阶段出现)
const (
	Greeting      = "network"
	GreetingReply = "Connection setup success"
)

// 消息类型
const (
	KindPacket = "packet"
	KindAck    = "ack"
)

// 错误定义
var (
	ErrDecode = fmt.Errorf("协议解码失败")
)

// Packet 数据包 (发送方 -> 接收方)
// 序列号由发送方分配, 严格递增且不复用; 重传使用同一序列号
type Packet struct {
	Seq        uint64 `json:"seq_num"`
	Payload    []byte `json:"payload,omitempty"`
	Window     uint64 `json:"window_size,omitempty"` // 发送方当前窗口, 仅供接收端统计
	SendTimeMs int64  `json:"sent_at_ms,omitempty"`
}

// Ack 累积确认 (接收方 -> 发送方)
// AckNum 是下一个期望序列号: 严格小于 AckNum 的序列号均已确认
type Ack struct {
	AckNum uint64 `json:"ack_num"`
}

// Message 解码后的消息
type Message struct {
	Kind   string
	Packet *Packet
	Ack    *Ack
}

// wireMessage 线上格式 (带类型标签的 JSON 记录)
type wireMessage struct {
	Kind       string  `json:"type"`
	Seq        *uint64 `json:"seq_num,omitempty"`
	Payload    []byte  `json:"payload,omitempty"`
	Window     uint64  `json:"window_size,omitempty"`
	SendTimeMs int64   `json:"sent_at_ms,omitempty"`
	AckNum     *uint64 `json:"ack_num,omitempty"`
}

// EncodePacket 编码数据包
func EncodePacket(p *Packet) []byte {
	seq := p.Seq
	data, _ := json.Marshal(&wireMessage{
		Kind:       KindPacket,
		Seq:        &seq,
		Payload:    p.Payload,
		Window:     p.Window,
		SendTimeMs: p.SendTimeMs,
	})
	return data
}

// EncodeAck 编码确认
func EncodeAck(ackNum uint64) []byte {
	data, _ := json.Marshal(&wireMessage{
		Kind:   KindAck,
		AckNum: &ackNum,
	})
	return data
}

// Decode 解码一条结构化消息
// 解码失败是协议错误, 必须上报调用方, 不得当作丢包处理
func Decode(data []byte) (*Message, error) {
	var w wireMessage
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}

	switch w.Kind {
	case KindPacket:
		if w.Seq == nil {
			return nil, fmt.Errorf("%w: packet 缺少 seq_num", ErrDecode)
		}
		return &Message{
			Kind: KindPacket,
			Packet: &Packet{
				Seq:        *w.Seq,
				Payload:    w.Payload,
				Window:     w.Window,
				SendTimeMs: w.SendTimeMs,
			},
		}, nil

	case KindAck:
		if w.AckNum == nil {
			return nil, fmt.Errorf("%w: ack 缺少 ack_num", ErrDecode)
		}
		return &Message{
			Kind: KindAck,
			Ack:  &Ack{AckNum: *w.AckNum},
		}, nil

	default:
		return nil, fmt.Errorf("%w: 未知类型 %q", ErrDecode, w.Kind)
	}
}
