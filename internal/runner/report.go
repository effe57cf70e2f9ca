package runner

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"swapSim/internal/model"
)

// Report is the outcome of a run.
type Report struct {
	Block        uint64
	Results      []model.SimulationResult
	Failures     map[string][]model.SimulationFailure
	DecodeErrors []model.DecodeError
	Summaries    []model.PoolSummary
	// Resumed lists pools skipped because a checkpoint marked them done.
	Resumed []string
}

// FailureMessage renders every simulation failure grouped by pool, or "" when
// there are none.
func (r *Report) FailureMessage() string {
	if len(r.Failures) == 0 {
		return ""
	}
	ids := make([]string, 0, len(r.Failures))
	for id := range r.Failures {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	msgs := make([]string, 0, len(ids))
	for _, id := range ids {
		parts := make([]string, 0, len(r.Failures[id]))
		for _, f := range r.Failures[id] {
			parts = append(parts, fmt.Sprintf("%s -> %s: %s", f.SellToken, f.BuyToken, f.Error))
		}
		msgs = append(msgs, fmt.Sprintf("Pool %s failed simulations: %s", id, strings.Join(parts, ", ")))
	}
	return strings.Join(msgs, ". ")
}

// Err reports failed simulations and decode errors as one error.
func (r *Report) Err() error {
	var errs []error
	if msg := r.FailureMessage(); msg != "" {
		errs = append(errs, errors.New(msg))
	}
	for _, d := range r.DecodeErrors {
		errs = append(errs, fmt.Errorf("pool %s: %s", d.PoolID, d.Error))
	}
	return errors.Join(errs...)
}

// AllFailures flattens Failures in pool order.
func (r *Report) AllFailures() []model.SimulationFailure {
	ids := make([]string, 0, len(r.Failures))
	for id := range r.Failures {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	var out []model.SimulationFailure
	for _, id := range ids {
		out = append(out, r.Failures[id]...)
	}
	return out
}
