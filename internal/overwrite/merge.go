package overwrite

import "github.com/ethereum/go-ethereum/common"

// Map holds storage overwrites keyed by contract address and slot.
type Map map[common.Address]map[common.Hash]common.Hash

// Set records value at slot of addr, replacing any previous value.
func (m Map) Set(addr common.Address, slot, value common.Hash) {
	slots, ok := m[addr]
	if !ok {
		slots = make(map[common.Hash]common.Hash)
		m[addr] = slots
	}
	slots[slot] = value
}

// Get returns the overwrite for slot of addr, if any.
func (m Map) Get(addr common.Address, slot common.Hash) (common.Hash, bool) {
	slots, ok := m[addr]
	if !ok {
		return common.Hash{}, false
	}
	v, ok := slots[slot]
	return v, ok
}

// Len counts slot entries across all addresses.
func (m Map) Len() int {
	n := 0
	for _, slots := range m {
		n += len(slots)
	}
	return n
}

// Clone returns a deep copy of m.
func (m Map) Clone() Map {
	out := make(Map, len(m))
	for addr, slots := range m {
		cp := make(map[common.Hash]common.Hash, len(slots))
		for k, v := range slots {
			cp[k] = v
		}
		out[addr] = cp
	}
	return out
}

// Merge returns the union of a and b. Where both set the same slot of the same
// address, b wins. Neither input is modified.
func Merge(a, b Map) Map {
	out := a.Clone()
	for addr, slots := range b {
		if _, ok := out[addr]; !ok {
			out[addr] = make(map[common.Hash]common.Hash, len(slots))
		}
		for k, v := range slots {
			out.Set(addr, k, v)
		}
	}
	return out
}

// MergeAll folds maps left to right with Merge.
func MergeAll(maps ...Map) Map {
	out := Map{}
	for _, m := range maps {
		out = Merge(out, m)
	}
	return out
}
