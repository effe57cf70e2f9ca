package overwrite

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// SlotAt returns the storage slot of key inside a Solidity mapping declared at mappingSlot:
// keccak256(leftpad32(key) || mappingSlot).
func SlotAt(key common.Address, mappingSlot common.Hash) common.Hash {
	return crypto.Keccak256Hash(common.LeftPadBytes(key.Bytes(), 32), mappingSlot.Bytes())
}

// SlotAtIndex is SlotAt with the mapping slot given as an index.
func SlotAtIndex(key common.Address, index uint64) common.Hash {
	return SlotAt(key, indexHash(index))
}

// NestedSlotAt addresses mapping(address => mapping(address => T)) at index,
// as used by ERC20 allowances: slot(inner, slot(outer, index)).
func NestedSlotAt(outer, inner common.Address, index uint64) common.Hash {
	return SlotAt(inner, SlotAtIndex(outer, index))
}

func indexHash(index uint64) common.Hash {
	return common.BigToHash(new(big.Int).SetUint64(index))
}

// AmountWord encodes a non-negative amount as a 32-byte storage word.
// Amounts wider than 256 bits are truncated to their low 32 bytes.
func AmountWord(amount *big.Int) common.Hash {
	if amount == nil || amount.Sign() <= 0 {
		return common.Hash{}
	}
	return common.BigToHash(amount)
}
