package model

// ProtocolComponent describes a pool as reported by the chain indexer.
type ProtocolComponent struct {
	ID               string            `json:"id"`
	ProtocolSystem   string            `json:"protocol_system"`
	Tokens           []string          `json:"tokens"`
	StaticAttributes map[string]string `json:"static_attributes"`
}

// ProtocolState holds the indexed dynamic state of a component. Balances are
// big-endian hex encoded on-chain integers.
type ProtocolState struct {
	ComponentID string            `json:"component_id"`
	Attributes  map[string]string `json:"attributes"`
	Balances    map[string]string `json:"balances"`
}

// ComponentSnapshot is a component with its current state.
type ComponentSnapshot struct {
	Component ProtocolComponent `json:"component"`
	State     ProtocolState     `json:"state"`
}

// SnapshotFile is the on-disk input of the simulate command.
type SnapshotFile struct {
	Block     SnapshotBlock                `json:"block"`
	Tokens    []Token                      `json:"tokens,omitempty"`
	Snapshots map[string]ComponentSnapshot `json:"snapshots"`
}

// SnapshotBlock identifies the block a snapshot was taken at. A zero timestamp is
// resolved from the chain.
type SnapshotBlock struct {
	Number    uint64 `json:"number"`
	Timestamp int64  `json:"timestamp"`
	Hash      string `json:"hash"`
}

// BalanceUpdate is a single token balance change for a component.
type BalanceUpdate struct {
	Token   string `json:"token"`
	Balance string `json:"balance"`
}
