package pool

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"swapSim/internal/model"
)

// CapabilitySource reports what an adapter supports for one ordered token pair.
type CapabilitySource interface {
	GetCapabilities(ctx context.Context, poolID string, sell, buy common.Address) (model.Capabilities, error)
}

// NegotiateCapabilities intersects the capabilities of every ordered pair of distinct
// tokens. A pool with fewer than two tokens gets the default set.
func NegotiateCapabilities(ctx context.Context, source CapabilitySource, poolID string, tokens []model.Token, logger *zap.Logger) (model.Capabilities, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	var (
		result  model.Capabilities
		maxSize int
		sizes   []int
		seen    bool
	)
	for _, pair := range Permutations(tokens) {
		caps, err := source.GetCapabilities(ctx, poolID, pair.Sell.HexAddress(), pair.Buy.HexAddress())
		if err != nil {
			return 0, fmt.Errorf("capabilities %s -> %s: %w", pair.Sell, pair.Buy, err)
		}
		sizes = append(sizes, caps.Len())
		if caps.Len() > maxSize {
			maxSize = caps.Len()
		}
		if !seen {
			result = caps
			seen = true
			continue
		}
		result = result.Intersect(caps)
	}
	if !seen {
		return model.DefaultCapabilities, nil
	}

	if result.Len() < maxSize {
		logger.Warn("pool has different capabilities depending on the token pair",
			zap.String("pool_id", poolID),
			zap.Ints("pair_sizes", sizes),
			zap.Stringer("negotiated", result),
		)
	}
	return result, nil
}

// TokenPair is an ordered (sell, buy) pair.
type TokenPair struct {
	Sell model.Token
	Buy  model.Token
}

// Permutations lists every ordered pair of distinct tokens in input order.
func Permutations(tokens []model.Token) []TokenPair {
	pairs := make([]TokenPair, 0, len(tokens)*len(tokens))
	for i, sell := range tokens {
		for j, buy := range tokens {
			if i == j {
				continue
			}
			pairs = append(pairs, TokenPair{Sell: sell, Buy: buy})
		}
	}
	return pairs
}
