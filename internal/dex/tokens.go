package dex

import (
	"context"
	"fmt"
	"sort"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"swapSim/internal/model"
)

// DefaultTokenPageSize is the page size LoadTokens uses when none is given.
const DefaultTokenPageSize = 500

// TokenSource lists known tokens page by page. A page shorter than pageSize is the last one.
type TokenSource interface {
	Tokens(ctx context.Context, page, pageSize int) ([]model.Token, error)
}

// LoadTokens drains a token source into a set.
func LoadTokens(ctx context.Context, source TokenSource, pageSize int) (model.TokenSet, error) {
	if pageSize <= 0 {
		pageSize = DefaultTokenPageSize
	}
	var all []model.Token
	for page := 0; ; page++ {
		tokens, err := source.Tokens(ctx, page, pageSize)
		if err != nil {
			return nil, fmt.Errorf("load tokens page %d: %w", page, err)
		}
		all = append(all, tokens...)
		if len(tokens) < pageSize {
			break
		}
	}
	return model.NewTokenSet(all), nil
}

// StaticTokens serves a fixed token list, for example the one embedded in a snapshot file.
type StaticTokens []model.Token

func (s StaticTokens) Tokens(_ context.Context, page, pageSize int) ([]model.Token, error) {
	start := page * pageSize
	if start >= len(s) {
		return nil, nil
	}
	end := start + pageSize
	if end > len(s) {
		end = len(s)
	}
	return s[start:end], nil
}

// ChainTokens resolves a list of addresses through ERC20 calls, caching results.
type ChainTokens struct {
	caller    ContractCaller
	addresses []common.Address
	cache     *TokenMetaCache
	logger    *zap.Logger
}

func NewChainTokens(caller ContractCaller, addresses []string, cache *TokenMetaCache, logger *zap.Logger) *ChainTokens {
	if cache == nil {
		cache = NewTokenMetaCache()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	seen := make(map[common.Address]struct{}, len(addresses))
	list := make([]common.Address, 0, len(addresses))
	for _, a := range addresses {
		addr := common.HexToAddress(a)
		if _, ok := seen[addr]; ok {
			continue
		}
		seen[addr] = struct{}{}
		list = append(list, addr)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].Hex() < list[j].Hex() })
	return &ChainTokens{caller: caller, addresses: list, cache: cache, logger: logger}
}

func (c *ChainTokens) Tokens(ctx context.Context, page, pageSize int) ([]model.Token, error) {
	start := page * pageSize
	if start >= len(c.addresses) {
		return nil, nil
	}
	end := start + pageSize
	if end > len(c.addresses) {
		end = len(c.addresses)
	}
	out := make([]model.Token, 0, end-start)
	for _, addr := range c.addresses[start:end] {
		if meta, ok := c.cache.Get(addr); ok {
			out = append(out, meta)
			continue
		}
		meta, err := FetchTokenMeta(ctx, c.caller, addr, c.logger)
		if err != nil {
			c.logger.Warn("token metadata fetch failed", zap.String("token", addr.Hex()), zap.Error(err))
			continue
		}
		c.cache.Set(addr, meta)
		out = append(out, meta)
	}
	return out, nil
}
