// =============================================================================
// 文件: internal/simulation/run_test.go
// 描述: 端到端仿真测试 - 无损/全损极端场景与固定种子可复现性
// =============================================================================
package simulation

import (
	"context"
	"testing"
	"time"
)

func TestLosslessRun(t *testing.T) {
	rep := Run(context.Background(), Config{
		TotalPackets:    200,
		DropProbability: 0,
		RTO:             100 * time.Millisecond,
		Seed:            1,
	})

	if rep.Outcome != OutcomeCompleted {
		t.Fatalf("无损链路应正常完成: %s", rep.Outcome)
	}
	if rep.Sent != 200 || rep.Received != 200 {
		t.Errorf("收发计数不正确: sent=%d received=%d", rep.Sent, rep.Received)
	}
	if rep.Retransmitted != 0 {
		t.Errorf("无丢包不应有重传: got %d", rep.Retransmitted)
	}
	if rep.Goodput != 1.0 {
		t.Errorf("无丢包时 goodput 应为 1.0: got %f", rep.Goodput)
	}
	if rep.Receiver.Missing != 0 {
		t.Errorf("无丢包不应有缺失记录: got %d", rep.Receiver.Missing)
	}
}

func TestTotalLossHitsDeadline(t *testing.T) {
	rep := Run(context.Background(), Config{
		TotalPackets:    50,
		DropProbability: 1.0,
		RTO:             50 * time.Millisecond,
		Seed:            1,
		Deadline:        2 * time.Second, // 逻辑时间, 实际运行远快于此
	})

	if rep.Outcome != OutcomeDeadlineExceeded {
		t.Fatalf("全损链路应以截止时间结束: %s", rep.Outcome)
	}
	if rep.FinalBase != 0 {
		t.Errorf("全损时 base 不应推进: got %d", rep.FinalBase)
	}
	if rep.Received != 0 {
		t.Errorf("全损时不应有交付: got %d", rep.Received)
	}
	if rep.Retransmitted == 0 {
		t.Error("全损时应持续重传直到截止")
	}
}

func TestLossyRunCompletes(t *testing.T) {
	rep := Run(context.Background(), Config{
		TotalPackets:    1000,
		DropProbability: 0.05,
		RTO:             100 * time.Millisecond,
		Seed:            42,
	})

	if rep.Outcome != OutcomeCompleted {
		t.Fatalf("有损链路最终应完成: %s", rep.Outcome)
	}
	if rep.Received != 1000 {
		t.Errorf("完成时所有包都应到达: got %d", rep.Received)
	}
	if rep.Goodput != 1.0 {
		t.Errorf("完成时 goodput 应为 1.0: got %f", rep.Goodput)
	}
	if rep.Retransmitted == 0 || rep.Dropped == 0 {
		t.Errorf("有损链路应有丢包与重传: dropped=%d retransmitted=%d",
			rep.Dropped, rep.Retransmitted)
	}
	// 所有曾缺失的包最终都被补上
	if rep.Receiver.Recovered != rep.Receiver.Missing {
		t.Errorf("完成时缺失应全部补齐: missing=%d recovered=%d",
			rep.Receiver.Missing, rep.Receiver.Recovered)
	}
}

func TestFixedSeedReproducible(t *testing.T) {
	cfg := Config{
		TotalPackets:    1000,
		DropProbability: 0.05,
		RTO:             100 * time.Millisecond,
		SampleInterval:  50 * time.Millisecond,
		Seed:            7,
	}

	a := Run(context.Background(), cfg)
	b := Run(context.Background(), cfg)

	if a.Sent != b.Sent || a.Dropped != b.Dropped ||
		a.Retransmitted != b.Retransmitted || a.DuplicateAcks != b.DuplicateAcks {
		t.Errorf("固定种子两次运行计数不一致:\n  a=%+v\n  b=%+v", a, b)
	}
	if a.Receiver != b.Receiver {
		t.Errorf("固定种子接收端计数不一致:\n  a=%+v\n  b=%+v", a.Receiver, b.Receiver)
	}

	// 丢包序列逐位一致
	da, db := a.Stats.DroppedSeqs, b.Stats.DroppedSeqs
	if len(da) != len(db) {
		t.Fatalf("丢包序列长度不一致: %d vs %d", len(da), len(db))
	}
	for i := range da {
		if da[i].Seq != db[i].Seq {
			t.Fatalf("丢包序列第 %d 项不一致: %d vs %d", i, da[i].Seq, db[i].Seq)
		}
	}

	// 重传直方图一致
	if len(a.Stats.RetransmitHistogram) != len(b.Stats.RetransmitHistogram) {
		t.Fatalf("重传直方图不一致")
	}
	for k, v := range a.Stats.RetransmitHistogram {
		if b.Stats.RetransmitHistogram[k] != v {
			t.Errorf("重传直方图 [%d] 不一致: %d vs %d", k, v, b.Stats.RetransmitHistogram[k])
		}
	}
}

func TestDifferentSeedsDiverge(t *testing.T) {
	cfg := Config{
		TotalPackets:    1000,
		DropProbability: 0.05,
		RTO:             100 * time.Millisecond,
	}

	cfg.Seed = 1
	a := Run(context.Background(), cfg)
	cfg.Seed = 2
	b := Run(context.Background(), cfg)

	same := len(a.Stats.DroppedSeqs) == len(b.Stats.DroppedSeqs)
	if same {
		for i := range a.Stats.DroppedSeqs {
			if a.Stats.DroppedSeqs[i].Seq != b.Stats.DroppedSeqs[i].Seq {
				same = false
				break
			}
		}
	}
	if same {
		t.Error("不同种子的丢包序列不应完全相同")
	}
}
