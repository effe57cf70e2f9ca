package aggregate

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"swapSim/internal/model"
)

type memoryWriter struct {
	summaries []model.PoolSummary
}

func (m *memoryWriter) PutSummaries(_ context.Context, summaries []model.PoolSummary) error {
	m.summaries = append(m.summaries, summaries...)
	return nil
}

func TestAccumulatorCountsOutcomes(t *testing.T) {
	base := model.SimulationResult{BlockNumber: 10, PoolID: "0xA", Exchange: "curve"}
	acc := NewAccumulator(base)

	for _, r := range []model.SimulationResult{
		{BlockNumber: 10, PoolID: "0xa", Outcome: "ok", GasUsed: 100},
		{BlockNumber: 10, PoolID: "0xA", Outcome: "partial", GasUsed: 300},
		{BlockNumber: 10, PoolID: "0xA", Outcome: "failed", GasUsed: 999},
	} {
		if err := acc.Add(r); err != nil {
			t.Fatalf("add: %v", err)
		}
	}
	if err := acc.Add(model.SimulationResult{BlockNumber: 11, PoolID: "0xA", Outcome: "ok"}); err == nil {
		t.Fatalf("expected error for a different block")
	}
	if err := acc.Add(model.SimulationResult{BlockNumber: 10, PoolID: "0xA", Outcome: "weird"}); err == nil {
		t.Fatalf("expected error for unknown outcome")
	}

	got := acc.Summary()
	want := model.PoolSummary{
		BlockNumber: 10, PoolID: "0xA", Exchange: "curve",
		Simulated: 3, Succeeded: 1, Partial: 1, Failed: 1,
		TotalGas: 400, MaxGas: 300, SuccessRate: "0.6667",
	}
	if got != want {
		t.Fatalf("summary mismatch:\n got %+v\nwant %+v", got, want)
	}
}

func TestSummarizeOrdersByBlockAndPool(t *testing.T) {
	summaries := Summarize([]model.SimulationResult{
		{BlockNumber: 2, PoolID: "0xb", Outcome: "ok", GasUsed: 1},
		{BlockNumber: 1, PoolID: "0xb", Outcome: "ok", GasUsed: 1},
		{BlockNumber: 1, PoolID: "0xa", Outcome: "failed"},
	})
	if len(summaries) != 3 {
		t.Fatalf("expected 3 summaries, got %d", len(summaries))
	}
	if summaries[0].PoolID != "0xa" || summaries[1].PoolID != "0xb" || summaries[2].BlockNumber != 2 {
		t.Fatalf("unexpected order %+v", summaries)
	}
	if summaries[0].SuccessRate != "0.0000" {
		t.Fatalf("unexpected success rate %q", summaries[0].SuccessRate)
	}
}

const resultsJSONL = `
{"block_number":5,"pool_id":"0xa","exchange":"curve","outcome":"ok","gas_used":10}
{"block_number":6,"pool_id":"0xa","exchange":"curve","outcome":"ok","gas_used":20}
{"block_number":6,"pool_id":"0xa","exchange":"curve","outcome":"failed"}
not json
{"block_number":6,"pool_id":"0xb","exchange":"balancer","outcome":"partial","gas_used":30}
`

func TestAggregatorSkipsProcessedBlocks(t *testing.T) {
	state := &FileStateStore{Path: filepath.Join(t.TempDir(), "state.json")}
	if err := state.Save(context.Background(), 5); err != nil {
		t.Fatalf("save state: %v", err)
	}

	writer := &memoryWriter{}
	agg := NewAggregator(Config{StateStore: state}, writer, nil)
	if err := agg.RunReader(context.Background(), strings.NewReader(resultsJSONL)); err != nil {
		t.Fatalf("run: %v", err)
	}

	if len(writer.summaries) != 2 {
		t.Fatalf("expected 2 summaries, got %+v", writer.summaries)
	}
	a, b := writer.summaries[0], writer.summaries[1]
	if a.PoolID != "0xa" || a.BlockNumber != 6 || a.Simulated != 2 || a.TotalGas != 20 {
		t.Fatalf("unexpected summary %+v", a)
	}
	if b.PoolID != "0xb" || b.Partial != 1 {
		t.Fatalf("unexpected summary %+v", b)
	}

	last, ok, err := state.Load(context.Background())
	if err != nil || !ok {
		t.Fatalf("load state: ok=%v err=%v", ok, err)
	}
	if last != 6 {
		t.Fatalf("expected state at block 6, got %d", last)
	}
}

func TestAggregatorFlushesOnBlockChange(t *testing.T) {
	writer := &memoryWriter{}
	agg := NewAggregator(Config{BatchSize: 1}, writer, nil)
	if err := agg.RunReader(context.Background(), strings.NewReader(resultsJSONL)); err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(writer.summaries) != 3 {
		t.Fatalf("expected 3 summaries, got %+v", writer.summaries)
	}
	if writer.summaries[0].BlockNumber != 5 {
		t.Fatalf("block 5 should be flushed first, got %+v", writer.summaries[0])
	}
}
