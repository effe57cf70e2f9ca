package aggregate

import (
	"fmt"
	"strings"

	"swapSim/internal/model"
)

// Accumulator holds aggregate values for one pool at one block.
type Accumulator struct {
	BlockNumber uint64
	PoolID      string
	Exchange    string
	Simulated   uint64
	Succeeded   uint64
	Partial     uint64
	Failed      uint64
	TotalGas    uint64
	MaxGas      uint64
}

func NewAccumulator(result model.SimulationResult) *Accumulator {
	return &Accumulator{
		BlockNumber: result.BlockNumber,
		PoolID:      result.PoolID,
		Exchange:    result.Exchange,
	}
}

// Add counts one simulated trade. Only successful and partial trades add gas.
func (a *Accumulator) Add(result model.SimulationResult) error {
	if result.BlockNumber != a.BlockNumber || poolKey(result.PoolID) != poolKey(a.PoolID) {
		return fmt.Errorf("result for %s@%d added to %s@%d", result.PoolID, result.BlockNumber, a.PoolID, a.BlockNumber)
	}

	switch strings.ToLower(result.Outcome) {
	case "ok":
		a.Succeeded++
	case "partial":
		a.Partial++
	case "failed":
		a.Failed++
		a.Simulated++
		return nil
	default:
		return fmt.Errorf("unknown outcome %q", result.Outcome)
	}

	a.Simulated++
	a.TotalGas += result.GasUsed
	if result.GasUsed > a.MaxGas {
		a.MaxGas = result.GasUsed
	}
	return nil
}

func (a *Accumulator) Summary() model.PoolSummary {
	return model.PoolSummary{
		BlockNumber: a.BlockNumber,
		PoolID:      a.PoolID,
		Exchange:    a.Exchange,
		Simulated:   a.Simulated,
		Succeeded:   a.Succeeded,
		Partial:     a.Partial,
		Failed:      a.Failed,
		TotalGas:    a.TotalGas,
		MaxGas:      a.MaxGas,
		SuccessRate: computeRate(a.Succeeded+a.Partial, a.Simulated),
	}
}
