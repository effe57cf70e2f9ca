package model

import (
	"math/bits"
	"strconv"
	"strings"
)

// Capability is a behavior an adapter may support. Values match the adapter
// contract's enum.
type Capability uint8

const (
	CapabilityUnset Capability = iota
	SellOrder
	BuyOrder
	PriceFunction
	FeeOnTransfer
	ConstantPrice
	TokenBalanceIndependent
	ScaledPrice
	HardLimits
	MarginalPrice
)

var capabilityNames = map[Capability]string{
	CapabilityUnset:         "Unset",
	SellOrder:               "SellOrder",
	BuyOrder:                "BuyOrder",
	PriceFunction:           "PriceFunction",
	FeeOnTransfer:           "FeeOnTransfer",
	ConstantPrice:           "ConstantPrice",
	TokenBalanceIndependent: "TokenBalanceIndependent",
	ScaledPrice:             "ScaledPrice",
	HardLimits:              "HardLimits",
	MarginalPrice:           "MarginalPrice",
}

func (c Capability) String() string {
	if name, ok := capabilityNames[c]; ok {
		return name
	}
	return "Capability(" + strconv.Itoa(int(c)) + ")"
}

// Capabilities is a set of capabilities stored as a bitset.
type Capabilities uint64

// DefaultCapabilities is the set assumed before the adapter has been queried.
const DefaultCapabilities = Capabilities(1 << SellOrder)

// NewCapabilities builds a set from individual capabilities.
func NewCapabilities(caps ...Capability) Capabilities {
	var set Capabilities
	for _, c := range caps {
		set = set.With(c)
	}
	return set
}

func (s Capabilities) Has(c Capability) bool {
	return c < 64 && s&(1<<c) != 0
}

func (s Capabilities) With(c Capability) Capabilities {
	if c >= 64 {
		return s
	}
	return s | 1<<c
}

func (s Capabilities) Intersect(other Capabilities) Capabilities {
	return s & other
}

func (s Capabilities) Len() int {
	return bits.OnesCount64(uint64(s))
}

// List returns the members in ascending order.
func (s Capabilities) List() []Capability {
	out := make([]Capability, 0, s.Len())
	for c := Capability(0); c < 64; c++ {
		if s.Has(c) {
			out = append(out, c)
		}
	}
	return out
}

func (s Capabilities) String() string {
	names := make([]string, 0, s.Len())
	for _, c := range s.List() {
		names = append(names, c.String())
	}
	return "{" + strings.Join(names, ",") + "}"
}
