package overwrite

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

const (
	// ERC20BalanceSlot is the mapping index of balanceOf in a standard token layout.
	ERC20BalanceSlot uint64 = 0
	// ERC20AllowanceSlot is the mapping index of allowance in a standard token layout.
	ERC20AllowanceSlot uint64 = 1
)

// ERC20Factory accumulates balance and allowance overwrites for a single token.
// Later writes to the same slot replace earlier ones.
type ERC20Factory struct {
	token         common.Address
	balanceSlot   uint64
	allowanceSlot uint64
	slots         map[common.Hash]common.Hash
}

// NewERC20Factory uses the standard slot layout.
func NewERC20Factory(token common.Address) *ERC20Factory {
	return NewERC20FactoryWithSlots(token, ERC20BalanceSlot, ERC20AllowanceSlot)
}

func NewERC20FactoryWithSlots(token common.Address, balanceSlot, allowanceSlot uint64) *ERC20Factory {
	return &ERC20Factory{
		token:         token,
		balanceSlot:   balanceSlot,
		allowanceSlot: allowanceSlot,
		slots:         make(map[common.Hash]common.Hash),
	}
}

func (f *ERC20Factory) Token() common.Address {
	return f.token
}

// SetBalance records balanceOf[owner] = amount.
func (f *ERC20Factory) SetBalance(amount *big.Int, owner common.Address) {
	f.slots[SlotAtIndex(owner, f.balanceSlot)] = AmountWord(amount)
}

// SetAllowance records allowance[owner][spender] = amount.
func (f *ERC20Factory) SetAllowance(amount *big.Int, owner, spender common.Address) {
	f.slots[NestedSlotAt(owner, spender, f.allowanceSlot)] = AmountWord(amount)
}

// Collect returns the accumulated overwrites keyed by the token address.
// The result is a copy; further writes to f do not affect it.
func (f *ERC20Factory) Collect() Map {
	slots := make(map[common.Hash]common.Hash, len(f.slots))
	for k, v := range f.slots {
		slots[k] = v
	}
	return Map{f.token: slots}
}
