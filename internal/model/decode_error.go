package model

// DecodeError records a component that could not be decoded into a pool.
type DecodeError struct {
	BlockNumber uint64 `json:"block_number"`
	PoolID      string `json:"pool_id"`
	Error       string `json:"error"`
}
