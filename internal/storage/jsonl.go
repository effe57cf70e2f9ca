package storage

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"swapSim/internal/model"
)

const (
	ResultsFile      = "results.jsonl"
	FailuresFile     = "failures.jsonl"
	DecodeErrorsFile = "decode_errors.jsonl"
	SummariesFile    = "summaries.jsonl"
)

// JsonlStorage appends run output as JSON lines, one file per record kind, under dir.
type JsonlStorage struct {
	dir string
	mu  sync.Mutex
}

func NewJsonlStorage(dir string) *JsonlStorage {
	return &JsonlStorage{dir: dir}
}

// Path returns the file a record kind is written to.
func (s *JsonlStorage) Path(name string) string {
	return filepath.Join(s.dir, name)
}

func (s *JsonlStorage) PutResults(_ context.Context, results []model.SimulationResult) error {
	return appendJSONL(s, ResultsFile, results)
}

func (s *JsonlStorage) PutFailures(_ context.Context, failures []model.SimulationFailure) error {
	return appendJSONL(s, FailuresFile, failures)
}

func (s *JsonlStorage) PutDecodeErrors(_ context.Context, decodeErrors []model.DecodeError) error {
	return appendJSONL(s, DecodeErrorsFile, decodeErrors)
}

func (s *JsonlStorage) PutSummaries(_ context.Context, summaries []model.PoolSummary) error {
	return appendJSONL(s, SummariesFile, summaries)
}

func appendJSONL[T any](s *JsonlStorage, name string, records []T) error {
	if len(records) == 0 {
		return nil
	}

	if s.dir != "" && s.dir != "." {
		if err := os.MkdirAll(s.dir, 0o755); err != nil {
			return fmt.Errorf("create output dir: %w", err)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	file, err := os.OpenFile(s.Path(name), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open output file: %w", err)
	}
	defer file.Close()

	writer := bufio.NewWriter(file)
	for _, record := range records {
		line, err := json.Marshal(record)
		if err != nil {
			return fmt.Errorf("marshal %s record: %w", name, err)
		}
		if _, err := writer.Write(line); err != nil {
			return fmt.Errorf("write %s record: %w", name, err)
		}
		if err := writer.WriteByte('\n'); err != nil {
			return fmt.Errorf("write newline: %w", err)
		}
	}

	if err := writer.Flush(); err != nil {
		return fmt.Errorf("flush output: %w", err)
	}

	return nil
}
