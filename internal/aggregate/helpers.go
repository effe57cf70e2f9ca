package aggregate

import (
	"math/big"
	"sort"
	"strings"

	"swapSim/internal/model"
)

const ratioScale = 4

func computeRate(num, den uint64) string {
	if den == 0 {
		return ""
	}
	rat := new(big.Rat).SetFrac(new(big.Int).SetUint64(num), new(big.Int).SetUint64(den))
	return rat.FloatString(ratioScale)
}

func poolKey(id string) string {
	return strings.ToLower(id)
}

// Summarize groups results by block and pool. Results with an unknown outcome are
// skipped. Summaries are ordered by block, then pool id.
func Summarize(results []model.SimulationResult) []model.PoolSummary {
	type key struct {
		block uint64
		pool  string
	}
	accs := make(map[key]*Accumulator)
	for _, r := range results {
		k := key{block: r.BlockNumber, pool: poolKey(r.PoolID)}
		acc := accs[k]
		if acc == nil {
			acc = NewAccumulator(r)
			accs[k] = acc
		}
		_ = acc.Add(r)
	}

	out := make([]model.PoolSummary, 0, len(accs))
	for _, acc := range accs {
		out = append(out, acc.Summary())
	}
	sortSummaries(out)
	return out
}

func sortSummaries(summaries []model.PoolSummary) {
	sort.Slice(summaries, func(i, j int) bool {
		if summaries[i].BlockNumber != summaries[j].BlockNumber {
			return summaries[i].BlockNumber < summaries[j].BlockNumber
		}
		return summaries[i].PoolID < summaries[j].PoolID
	})
}
