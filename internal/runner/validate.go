package runner

import (
	"context"
	"fmt"
	"math/big"
	"sort"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"swapSim/internal/model"
)

// ExpectedComponent is a component a run must find in its snapshot.
type ExpectedComponent struct {
	ID               string
	Tokens           []string
	StaticAttributes map[string]string
	SkipSimulation   bool
}

// BalanceReader reads on-chain token balances.
type BalanceReader interface {
	TokenBalance(ctx context.Context, token, owner common.Address, block uint64) (*big.Int, error)
}

// ValidateComponents checks that every expected component exists with the expected
// tokens and static attributes. Ids and values compare case-insensitively.
func ValidateComponents(expected []ExpectedComponent, snapshots map[string]model.ComponentSnapshot) error {
	byID := make(map[string]model.ProtocolComponent, len(snapshots))
	for _, snap := range snapshots {
		byID[strings.ToLower(snap.Component.ID)] = snap.Component
	}

	for _, want := range expected {
		id := strings.ToLower(want.ID)
		got, ok := byID[id]
		if !ok {
			return fmt.Errorf("'%s' not found in protocol components", id)
		}
		if len(want.Tokens) > 0 && !sameSet(want.Tokens, got.Tokens) {
			return fmt.Errorf("list mismatch for key 'tokens' in component '%s': %v != %v", id, want.Tokens, got.Tokens)
		}
		for key, value := range want.StaticAttributes {
			actual, ok := got.StaticAttributes[key]
			if !ok {
				return fmt.Errorf("missing static attribute '%s' in component '%s'", key, id)
			}
			if !strings.EqualFold(actual, value) {
				return fmt.Errorf("value mismatch for static attribute '%s' in component '%s': %s != %s", key, id, value, actual)
			}
		}
	}
	return nil
}

func sameSet(a, b []string) bool {
	set := func(items []string) map[string]struct{} {
		out := make(map[string]struct{}, len(items))
		for _, item := range items {
			out[strings.ToLower(item)] = struct{}{}
		}
		return out
	}
	sa, sb := set(a), set(b)
	if len(sa) != len(sb) {
		return false
	}
	for k := range sa {
		if _, ok := sb[k]; !ok {
			return false
		}
	}
	return true
}

// CheckBalances compares every tracked component balance with balanceOf on chain.
// The owner is the balance_owner attribute or else the component id. Components
// whose owner is not an address are skipped.
func CheckBalances(ctx context.Context, reader BalanceReader, snapshots map[string]model.ComponentSnapshot, block uint64, logger *zap.Logger) error {
	if logger == nil {
		logger = zap.NewNop()
	}
	ids := make([]string, 0, len(snapshots))
	for id := range snapshots {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for _, id := range ids {
		snap := snapshots[id]
		compID := strings.ToLower(snap.Component.ID)
		owner := snap.State.Attributes["balance_owner"]
		if owner == "" {
			owner = snap.Component.ID
		}
		if !common.IsHexAddress(owner) {
			logger.Warn("skip balance check", zap.String("component_id", compID), zap.String("owner", owner))
			continue
		}

		tracked := make(map[string]string, len(snap.State.Balances))
		for token, balance := range snap.State.Balances {
			tracked[model.NormalizeAddress(token)] = balance
		}

		for _, token := range snap.Component.Tokens {
			want, err := parseHexBalance(tracked[model.NormalizeAddress(token)])
			if err != nil {
				return fmt.Errorf("balance of %s in %s: %w", token, compID, err)
			}
			got, err := reader.TokenBalance(ctx, common.HexToAddress(token), common.HexToAddress(owner), block)
			if err != nil {
				return fmt.Errorf("balanceOf %s for %s: %w", token, compID, err)
			}
			if got.Cmp(want) != 0 {
				return fmt.Errorf("balance mismatch for %s:%s at block %d: got %s from rpc call and %s from snapshot", compID, token, block, got, want)
			}
		}
	}
	return nil
}

func parseHexBalance(encoded string) (*big.Int, error) {
	digits := strings.TrimPrefix(strings.TrimPrefix(strings.TrimSpace(encoded), "0x"), "0X")
	if digits == "" {
		return new(big.Int), nil
	}
	v, ok := new(big.Int).SetString(digits, 16)
	if !ok {
		return nil, fmt.Errorf("invalid hex balance %q", encoded)
	}
	return v, nil
}
