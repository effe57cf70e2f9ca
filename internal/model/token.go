package model

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"swapSim/internal/simerr"
)

// DefaultTokenGas is the transfer gas estimate used when a token carries no hint.
const DefaultTokenGas = 29000

// Token is an ERC20 token. Identity is the address alone.
type Token struct {
	Symbol   string `json:"symbol"`
	Address  string `json:"address"`
	Decimals uint8  `json:"decimals"`
	Gas      uint64 `json:"gas"`
}

// NewToken builds a token with a canonical address and the default gas hint.
func NewToken(symbol, address string, decimals uint8) Token {
	return Token{
		Symbol:   symbol,
		Address:  NormalizeAddress(address),
		Decimals: decimals,
		Gas:      DefaultTokenGas,
	}
}

// NormalizeAddress returns the lower-case 0x-prefixed form of an address.
func NormalizeAddress(address string) string {
	address = strings.TrimSpace(address)
	if common.IsHexAddress(address) {
		return strings.ToLower(common.HexToAddress(address).Hex())
	}
	address = strings.ToLower(address)
	if !strings.HasPrefix(address, "0x") {
		address = "0x" + address
	}
	return address
}

// Key is the canonical address, suitable as a map key.
func (t Token) Key() string {
	return NormalizeAddress(t.Address)
}

// Equal compares tokens by address only.
func (t Token) Equal(other Token) bool {
	return t.Key() == other.Key()
}

// HexAddress returns the token address as a go-ethereum address.
func (t Token) HexAddress() common.Address {
	return common.HexToAddress(t.Address)
}

func (t Token) String() string {
	if t.Symbol == "" {
		return t.Key()
	}
	return t.Symbol
}

// ParseAmount parses a human readable decimal amount such as "1.5" or "2e-3".
func ParseAmount(input string) (*big.Rat, error) {
	amount, ok := new(big.Rat).SetString(strings.TrimSpace(input))
	if !ok {
		return nil, &simerr.ConversionError{Input: input}
	}
	return amount, nil
}

// ToOnchainAmount shifts a human amount by the token's decimals and rounds toward
// negative infinity.
func (t Token) ToOnchainAmount(amount *big.Rat) *big.Int {
	if amount == nil {
		return new(big.Int)
	}
	num := new(big.Int).Mul(amount.Num(), t.scale())
	// Rat denominators are positive, so Euclidean division floors.
	return num.Div(num, amount.Denom())
}

// FromOnchainAmount converts an on-chain integer to a human amount. The result is
// exact: integers divided by a power of ten never need quantizing.
func (t Token) FromOnchainAmount(amount *big.Int) *big.Rat {
	if amount == nil {
		return new(big.Rat)
	}
	return new(big.Rat).SetFrac(amount, t.scale())
}

// FromOnchainFraction converts a rational on-chain value, such as a price, to a human
// amount floored to the token's precision.
func (t Token) FromOnchainFraction(frac *big.Rat) *big.Rat {
	if frac == nil {
		return new(big.Rat)
	}
	value := new(big.Rat).Quo(frac, new(big.Rat).SetInt(t.scale()))
	return Quantize(value, t.Decimals)
}

func (t Token) scale() *big.Int {
	return pow10(t.Decimals)
}

// Quantize floors value to the given number of decimal places.
func Quantize(value *big.Rat, decimals uint8) *big.Rat {
	scale := pow10(decimals)
	num := new(big.Int).Mul(value.Num(), scale)
	num.Div(num, value.Denom())
	return new(big.Rat).SetFrac(num, scale)
}

// FormatAmount renders a human amount with the token's precision.
func (t Token) FormatAmount(amount *big.Rat) string {
	if amount == nil {
		return "0"
	}
	return amount.FloatString(int(t.Decimals))
}

func pow10(decimals uint8) *big.Int {
	return new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals)), nil)
}

// TokenSet indexes tokens by canonical address.
type TokenSet map[string]Token

// NewTokenSet builds a set from a list of tokens.
func NewTokenSet(tokens []Token) TokenSet {
	set := make(TokenSet, len(tokens))
	for _, t := range tokens {
		set[t.Key()] = t
	}
	return set
}

// Lookup finds a token by any casing of its address.
func (s TokenSet) Lookup(address string) (Token, error) {
	t, ok := s[NormalizeAddress(address)]
	if !ok {
		return Token{}, fmt.Errorf("unknown token %s", address)
	}
	return t, nil
}
