package storage

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/xitongsys/parquet-go-source/local"
	"github.com/xitongsys/parquet-go/reader"

	"swapSim/internal/model"
)

func readLines[T any](t *testing.T, path string) []T {
	t.Helper()
	file, err := os.Open(path)
	if err != nil {
		t.Fatalf("open %s: %v", path, err)
	}
	defer file.Close()

	var out []T
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		var v T
		if err := json.Unmarshal(scanner.Bytes(), &v); err != nil {
			t.Fatalf("decode line: %v", err)
		}
		out = append(out, v)
	}
	return out
}

func sampleResults() []model.SimulationResult {
	return []model.SimulationResult{
		{BlockNumber: 100, PoolID: "0xabc", Exchange: "balancer", SellToken: "DAI", BuyToken: "USDC", SellAmount: "1", BuyAmount: "0.99", GasUsed: 90_000, Outcome: "ok"},
		{BlockNumber: 100, PoolID: "0xabc", Exchange: "balancer", SellToken: "USDC", BuyToken: "DAI", SellAmount: "2", Outcome: "failed", Error: "Revert! Reason: nope"},
	}
}

func TestJsonlStorageAppendsPerKind(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "out")
	s := NewJsonlStorage(dir)
	ctx := context.Background()

	if err := s.PutResults(ctx, sampleResults()[:1]); err != nil {
		t.Fatalf("put results: %v", err)
	}
	if err := s.PutResults(ctx, sampleResults()[1:]); err != nil {
		t.Fatalf("put results: %v", err)
	}
	if err := s.PutFailures(ctx, []model.SimulationFailure{{PoolID: "0xabc", SellToken: "USDC", BuyToken: "DAI", Error: "boom"}}); err != nil {
		t.Fatalf("put failures: %v", err)
	}
	if err := s.PutSummaries(ctx, nil); err != nil {
		t.Fatalf("put summaries: %v", err)
	}

	results := readLines[model.SimulationResult](t, s.Path(ResultsFile))
	if len(results) != 2 || results[1].Outcome != "failed" {
		t.Fatalf("unexpected results %+v", results)
	}
	failures := readLines[model.SimulationFailure](t, s.Path(FailuresFile))
	if len(failures) != 1 || failures[0].Error != "boom" {
		t.Fatalf("unexpected failures %+v", failures)
	}
	if _, err := os.Stat(s.Path(SummariesFile)); !os.IsNotExist(err) {
		t.Fatalf("empty batch should not create a file")
	}
}

func TestParquetStorageWritesResults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "results.parquet")
	s, err := NewParquetStorage(path)
	if err != nil {
		t.Fatalf("open parquet: %v", err)
	}
	if err := s.PutResults(context.Background(), sampleResults()); err != nil {
		t.Fatalf("put results: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := s.PutResults(context.Background(), sampleResults()); err == nil {
		t.Fatalf("expected error after close")
	}

	fr, err := local.NewLocalFileReader(path)
	if err != nil {
		t.Fatalf("open reader: %v", err)
	}
	defer fr.Close()
	pr, err := reader.NewParquetReader(fr, new(ResultRow), 1)
	if err != nil {
		t.Fatalf("parquet reader: %v", err)
	}
	defer pr.ReadStop()

	if n := pr.GetNumRows(); n != 2 {
		t.Fatalf("expected 2 rows, got %d", n)
	}
	rows := make([]ResultRow, 2)
	if err := pr.Read(&rows); err != nil {
		t.Fatalf("read rows: %v", err)
	}
	if rows[0].PoolID != "0xabc" || rows[0].GasUsed != 90_000 || rows[1].Error != "Revert! Reason: nope" {
		t.Fatalf("unexpected rows %+v", rows)
	}
}

type failingSink struct {
	JsonlStorage
	err error
}

func (f *failingSink) PutResults(context.Context, []model.SimulationResult) error { return f.err }

func TestMultiSinkStopsAtFirstError(t *testing.T) {
	dir := t.TempDir()
	first := &failingSink{err: errors.New("down")}
	second := NewJsonlStorage(dir)

	err := MultiSink{first, second}.PutResults(context.Background(), sampleResults())
	if err == nil || err.Error() != "down" {
		t.Fatalf("expected first sink error, got %v", err)
	}
	if _, err := os.Stat(second.Path(ResultsFile)); !os.IsNotExist(err) {
		t.Fatalf("second sink should not have been written")
	}
}
