package storage

import (
	"context"
	"errors"

	"swapSim/internal/model"
)

// Sink receives the output of a simulation run.
type Sink interface {
	PutResults(ctx context.Context, results []model.SimulationResult) error
	PutFailures(ctx context.Context, failures []model.SimulationFailure) error
	PutDecodeErrors(ctx context.Context, decodeErrors []model.DecodeError) error
	PutSummaries(ctx context.Context, summaries []model.PoolSummary) error
}

// MultiSink writes to every sink in order and stops at the first error.
type MultiSink []Sink

func (m MultiSink) PutResults(ctx context.Context, results []model.SimulationResult) error {
	for _, s := range m {
		if err := s.PutResults(ctx, results); err != nil {
			return err
		}
	}
	return nil
}

func (m MultiSink) PutFailures(ctx context.Context, failures []model.SimulationFailure) error {
	for _, s := range m {
		if err := s.PutFailures(ctx, failures); err != nil {
			return err
		}
	}
	return nil
}

func (m MultiSink) PutDecodeErrors(ctx context.Context, decodeErrors []model.DecodeError) error {
	for _, s := range m {
		if err := s.PutDecodeErrors(ctx, decodeErrors); err != nil {
			return err
		}
	}
	return nil
}

func (m MultiSink) PutSummaries(ctx context.Context, summaries []model.PoolSummary) error {
	for _, s := range m {
		if err := s.PutSummaries(ctx, summaries); err != nil {
			return err
		}
	}
	return nil
}

// Close closes every sink that holds resources.
func (m MultiSink) Close() error {
	var errs []error
	for _, s := range m {
		if c, ok := s.(interface{ Close() error }); ok {
			errs = append(errs, c.Close())
		}
	}
	return errors.Join(errs...)
}
