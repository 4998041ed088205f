// =============================================================================
// 文件: internal/receiver/tracker_test.go
// 描述: 接收端追踪器测试
// =============================================================================
package receiver

import (
	"testing"

	"github.com/kookiemaster/tcp-sliding-window-project/internal/protocol"
)

func pkt(seq uint64) *protocol.Packet {
	return &protocol.Packet{Seq: seq}
}

func TestInOrderAdvance(t *testing.T) {
	tr := New()

	for seq := uint64(0); seq < 5; seq++ {
		ack, dup := tr.OnPacket(pkt(seq))
		if dup {
			t.Fatalf("seq=%d 不应是重复包", seq)
		}
		if ack != seq+1 {
			t.Errorf("ACK 不正确: got %d, want %d", ack, seq+1)
		}
	}

	if len(tr.Missing()) != 0 {
		t.Errorf("按序到达不应有缺失: %v", tr.Missing())
	}
	if tr.Goodput() != 1.0 {
		t.Errorf("无丢包时 goodput 应为 1.0: got %f", tr.Goodput())
	}
}

func TestGapRecordsMissing(t *testing.T) {
	tr := New()

	tr.OnPacket(pkt(0))
	ack, _ := tr.OnPacket(pkt(3)) // 跳过 1, 2

	if ack != 1 {
		t.Errorf("有空洞时 ACK 不应推进: got %d, want 1", ack)
	}

	missing := tr.Missing()
	if len(missing) != 2 || missing[0] != 1 || missing[1] != 2 {
		t.Errorf("缺失集合不正确: %v, want [1 2]", missing)
	}
}

func TestOutOfOrderFillAdvancesContiguousRun(t *testing.T) {
	tr := New()

	tr.OnPacket(pkt(0))
	tr.OnPacket(pkt(2))
	tr.OnPacket(pkt(3))

	// 补上 1 后, 期望指针应一次越过 1, 2, 3
	ack, dup := tr.OnPacket(pkt(1))
	if dup {
		t.Fatal("seq=1 不应是重复包")
	}
	if ack != 4 {
		t.Errorf("ACK 应越过连续段: got %d, want 4", ack)
	}

	// 缺失记录单调: 1 曾缺失, 补上后记录仍保留
	missing := tr.Missing()
	if len(missing) != 1 || missing[0] != 1 {
		t.Errorf("缺失记录应保留: %v, want [1]", missing)
	}
	if tr.Counts().Recovered != 1 {
		t.Errorf("Recovered 不正确: got %d, want 1", tr.Counts().Recovered)
	}
}

func TestDuplicateIsNoOp(t *testing.T) {
	tr := New()

	tr.OnPacket(pkt(0))
	tr.OnPacket(pkt(1))

	before := tr.Counts()
	missingBefore := tr.Missing()

	// 重发已确认的序列号: 状态不变, 仅计数
	ack, dup := tr.OnPacket(pkt(0))
	if !dup {
		t.Fatal("应识别为重复包")
	}
	if ack != 2 {
		t.Errorf("重复包不应改变 ACK: got %d, want 2", ack)
	}

	after := tr.Counts()
	if after.Received != before.Received {
		t.Errorf("重复包不应改变 ReceivedSet: %d -> %d", before.Received, after.Received)
	}
	if after.Expected != before.Expected {
		t.Errorf("重复包不应改变期望指针: %d -> %d", before.Expected, after.Expected)
	}
	if len(tr.Missing()) != len(missingBefore) {
		t.Error("重复包不应改变 MissingSet")
	}
	if after.Duplicates != before.Duplicates+1 {
		t.Errorf("重复计数应加一: %d -> %d", before.Duplicates, after.Duplicates)
	}
}

func TestAckMonotone(t *testing.T) {
	tr := New()

	seqs := []uint64{0, 5, 2, 1, 9, 3, 4, 0, 7}
	last := uint64(0)
	for _, seq := range seqs {
		ack, _ := tr.OnPacket(pkt(seq))
		if ack < last {
			t.Fatalf("ACK 值回退: %d -> %d (seq=%d)", last, ack, seq)
		}
		last = ack
	}
}

func TestGoodput(t *testing.T) {
	tr := New()

	tr.OnPacket(pkt(0))
	tr.OnPacket(pkt(1))
	tr.OnPacket(pkt(3)) // 2 缺失, 已知最大序列号 3

	want := 3.0 / 4.0
	if got := tr.Goodput(); got != want {
		t.Errorf("goodput 不正确: got %f, want %f", got, want)
	}
}

func TestSampleCarriesReportedWindow(t *testing.T) {
	tr := New()

	tr.OnPacket(&protocol.Packet{Seq: 0, Window: 17})
	s := tr.Sample()
	if s.WindowSize != 17 {
		t.Errorf("采样应携带发送方上报的窗口: got %d, want 17", s.WindowSize)
	}
	if s.Goodput != 1.0 {
		t.Errorf("goodput 不正确: got %f", s.Goodput)
	}
}
