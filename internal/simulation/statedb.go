package simulation

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/state"
	"github.com/ethereum/go-ethereum/core/stateless"
	"github.com/ethereum/go-ethereum/core/tracing"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/params"
	"github.com/ethereum/go-ethereum/trie/utils"
	"github.com/holiman/uint256"

	"swapSim/internal/overwrite"
)

// overlayState implements vm.StateDB for one call. Reads fall through
// dirty writes, per-call overrides and the backend. Nothing is written back.
type overlayState struct {
	ctx       context.Context
	base      *backend
	overrides overwrite.Map

	accounts  map[common.Address]*accountData
	created   map[common.Address]bool
	destructs map[common.Address]bool
	storage   map[common.Address]map[common.Hash]common.Hash
	transient map[storageKey]common.Hash

	accessAddrs map[common.Address]bool
	accessSlots map[storageKey]bool

	logs    []*types.Log
	refund  uint64
	journal []func()

	// err is the first state source failure seen during execution.
	err error
}

func newOverlayState(ctx context.Context, base *backend, overrides overwrite.Map) *overlayState {
	return &overlayState{
		ctx:         ctx,
		base:        base,
		overrides:   overrides,
		accounts:    make(map[common.Address]*accountData),
		created:     make(map[common.Address]bool),
		destructs:   make(map[common.Address]bool),
		storage:     make(map[common.Address]map[common.Hash]common.Hash),
		transient:   make(map[storageKey]common.Hash),
		accessAddrs: make(map[common.Address]bool),
		accessSlots: make(map[storageKey]bool),
	}
}

func (s *overlayState) setErr(err error) {
	if s.err == nil {
		s.err = err
	}
}

func (s *overlayState) baseAccount(addr common.Address) *accountData {
	acc, err := s.base.account(s.ctx, addr)
	if err != nil {
		s.setErr(err)
		return newAccountData(nil, 0, nil, false)
	}
	return acc
}

func (s *overlayState) account(addr common.Address) *accountData {
	if acc, ok := s.accounts[addr]; ok {
		return acc
	}
	return s.baseAccount(addr)
}

// mutate replaces the account with a modified copy and journals the previous one.
func (s *overlayState) mutate(addr common.Address, fn func(acc *accountData)) {
	prev, had := s.accounts[addr]
	next := s.account(addr).copy()
	fn(next)
	s.accounts[addr] = next
	s.journal = append(s.journal, func() {
		if had {
			s.accounts[addr] = prev
		} else {
			delete(s.accounts, addr)
		}
	})
}

func (s *overlayState) CreateAccount(addr common.Address) {
	s.mutate(addr, func(acc *accountData) {
		acc.exists = true
		if acc.codeHash == (common.Hash{}) {
			acc.codeHash = types.EmptyCodeHash
		}
	})
}

func (s *overlayState) CreateContract(addr common.Address) {
	wasCreated := s.created[addr]
	prevSlots := s.storage[addr]
	s.created[addr] = true
	delete(s.storage, addr)
	s.journal = append(s.journal, func() {
		if !wasCreated {
			delete(s.created, addr)
		}
		if prevSlots != nil {
			s.storage[addr] = prevSlots
		} else {
			delete(s.storage, addr)
		}
	})
}

func (s *overlayState) GetBalance(addr common.Address) *uint256.Int {
	return new(uint256.Int).Set(s.account(addr).balance)
}

func (s *overlayState) AddBalance(addr common.Address, amount *uint256.Int, reason tracing.BalanceChangeReason) uint256.Int {
	prev := *s.account(addr).balance
	s.mutate(addr, func(acc *accountData) {
		acc.balance = new(uint256.Int).Add(acc.balance, amount)
		acc.exists = true
	})
	return prev
}

func (s *overlayState) SubBalance(addr common.Address, amount *uint256.Int, reason tracing.BalanceChangeReason) uint256.Int {
	prev := *s.account(addr).balance
	s.mutate(addr, func(acc *accountData) {
		acc.balance = new(uint256.Int).Sub(acc.balance, amount)
	})
	return prev
}

func (s *overlayState) GetNonce(addr common.Address) uint64 {
	return s.account(addr).nonce
}

func (s *overlayState) SetNonce(addr common.Address, nonce uint64, reason tracing.NonceChangeReason) {
	s.mutate(addr, func(acc *accountData) {
		acc.nonce = nonce
		acc.exists = true
	})
}

func (s *overlayState) GetCode(addr common.Address) []byte {
	return s.account(addr).code
}

func (s *overlayState) GetCodeSize(addr common.Address) int {
	return len(s.account(addr).code)
}

func (s *overlayState) GetCodeHash(addr common.Address) common.Hash {
	return s.account(addr).codeHash
}

func (s *overlayState) SetCode(addr common.Address, code []byte, reason tracing.CodeChangeReason) []byte {
	prev := s.account(addr).code
	s.mutate(addr, func(acc *accountData) {
		acc.code = code
		acc.codeHash = crypto.Keccak256Hash(code)
		acc.exists = true
	})
	return prev
}

// committed is the value of a slot before this call started.
func (s *overlayState) committed(addr common.Address, slot common.Hash) common.Hash {
	if v, ok := s.overrides.Get(addr, slot); ok {
		return v
	}
	v, err := s.base.storage(s.ctx, addr, slot)
	if err != nil {
		s.setErr(err)
		return common.Hash{}
	}
	return v
}

func (s *overlayState) GetState(addr common.Address, slot common.Hash) common.Hash {
	if slots, ok := s.storage[addr]; ok {
		if v, ok := slots[slot]; ok {
			return v
		}
	}
	if s.created[addr] {
		return common.Hash{}
	}
	return s.committed(addr, slot)
}

func (s *overlayState) SetState(addr common.Address, slot, value common.Hash) common.Hash {
	prev := s.GetState(addr, slot)
	slots, ok := s.storage[addr]
	if !ok {
		slots = make(map[common.Hash]common.Hash)
		s.storage[addr] = slots
	}
	old, had := slots[slot]
	slots[slot] = value
	s.journal = append(s.journal, func() {
		if had {
			slots[slot] = old
		} else {
			delete(slots, slot)
		}
	})
	return prev
}

func (s *overlayState) GetStateAndCommittedState(addr common.Address, slot common.Hash) (common.Hash, common.Hash) {
	if s.created[addr] {
		return s.GetState(addr, slot), common.Hash{}
	}
	return s.GetState(addr, slot), s.committed(addr, slot)
}

func (s *overlayState) GetStorageRoot(addr common.Address) common.Hash {
	return common.Hash{}
}

func (s *overlayState) GetTransientState(addr common.Address, key common.Hash) common.Hash {
	return s.transient[storageKey{addr: addr, slot: key}]
}

func (s *overlayState) SetTransientState(addr common.Address, key, value common.Hash) {
	k := storageKey{addr: addr, slot: key}
	old, had := s.transient[k]
	s.transient[k] = value
	s.journal = append(s.journal, func() {
		if had {
			s.transient[k] = old
		} else {
			delete(s.transient, k)
		}
	})
}

func (s *overlayState) SelfDestruct(addr common.Address) uint256.Int {
	prev := *s.account(addr).balance
	s.mutate(addr, func(acc *accountData) {
		acc.balance = new(uint256.Int)
	})
	was := s.destructs[addr]
	s.destructs[addr] = true
	s.journal = append(s.journal, func() {
		if !was {
			delete(s.destructs, addr)
		}
	})
	return prev
}

func (s *overlayState) HasSelfDestructed(addr common.Address) bool {
	return s.destructs[addr]
}

func (s *overlayState) SelfDestruct6780(addr common.Address) (uint256.Int, bool) {
	if !s.created[addr] {
		return *s.account(addr).balance, false
	}
	return s.SelfDestruct(addr), true
}

func (s *overlayState) Exist(addr common.Address) bool {
	return s.account(addr).exists
}

func (s *overlayState) Empty(addr common.Address) bool {
	acc := s.account(addr)
	return acc.nonce == 0 && acc.balance.IsZero() && len(acc.code) == 0
}

func (s *overlayState) AddressInAccessList(addr common.Address) bool {
	return s.accessAddrs[addr]
}

func (s *overlayState) SlotInAccessList(addr common.Address, slot common.Hash) (bool, bool) {
	return s.accessAddrs[addr], s.accessSlots[storageKey{addr: addr, slot: slot}]
}

func (s *overlayState) AddAddressToAccessList(addr common.Address) {
	if s.accessAddrs[addr] {
		return
	}
	s.accessAddrs[addr] = true
	s.journal = append(s.journal, func() { delete(s.accessAddrs, addr) })
}

func (s *overlayState) AddSlotToAccessList(addr common.Address, slot common.Hash) {
	s.AddAddressToAccessList(addr)
	k := storageKey{addr: addr, slot: slot}
	if s.accessSlots[k] {
		return
	}
	s.accessSlots[k] = true
	s.journal = append(s.journal, func() { delete(s.accessSlots, k) })
}

func (s *overlayState) PointCache() *utils.PointCache {
	return nil
}

func (s *overlayState) Prepare(rules params.Rules, sender, coinbase common.Address, dest *common.Address, precompiles []common.Address, txAccesses types.AccessList) {
	s.AddAddressToAccessList(sender)
	if dest != nil {
		s.AddAddressToAccessList(*dest)
	}
	for _, addr := range precompiles {
		s.AddAddressToAccessList(addr)
	}
	for _, el := range txAccesses {
		for _, key := range el.StorageKeys {
			s.AddSlotToAccessList(el.Address, key)
		}
	}
	if rules.IsShanghai {
		s.AddAddressToAccessList(coinbase)
	}
}

func (s *overlayState) Snapshot() int {
	return len(s.journal)
}

func (s *overlayState) RevertToSnapshot(id int) {
	for i := len(s.journal) - 1; i >= id; i-- {
		s.journal[i]()
	}
	s.journal = s.journal[:id]
}

func (s *overlayState) AddLog(log *types.Log) {
	log.Index = uint(len(s.logs))
	s.logs = append(s.logs, log)
	s.journal = append(s.journal, func() { s.logs = s.logs[:len(s.logs)-1] })
}

func (s *overlayState) AddPreimage(common.Hash, []byte) {}

func (s *overlayState) AddRefund(gas uint64) {
	prev := s.refund
	s.refund += gas
	s.journal = append(s.journal, func() { s.refund = prev })
}

func (s *overlayState) SubRefund(gas uint64) {
	prev := s.refund
	if gas > s.refund {
		s.refund = 0
	} else {
		s.refund -= gas
	}
	s.journal = append(s.journal, func() { s.refund = prev })
}

func (s *overlayState) GetRefund() uint64 {
	return s.refund
}

func (s *overlayState) Witness() *stateless.Witness {
	return nil
}

func (s *overlayState) AccessEvents() *state.AccessEvents {
	return nil
}

func (s *overlayState) Finalise(deleteEmptyObjects bool) {}

// updates diffs the dirty layer against the state the call started from.
func (s *overlayState) updates() map[common.Address]StateUpdate {
	out := make(map[common.Address]StateUpdate)
	for addr, slots := range s.storage {
		for slot, value := range slots {
			if !s.created[addr] && value == s.committed(addr, slot) {
				continue
			}
			upd := out[addr]
			if upd.Storage == nil {
				upd.Storage = make(map[common.Hash]common.Hash)
			}
			upd.Storage[slot] = value
			out[addr] = upd
		}
	}
	for addr, acc := range s.accounts {
		if acc.balance.Eq(s.baseAccount(addr).balance) {
			continue
		}
		upd := out[addr]
		upd.Balance = new(uint256.Int).Set(acc.balance)
		out[addr] = upd
	}
	return out
}
