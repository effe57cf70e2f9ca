package model

// PoolSummary aggregates the simulation outcomes of one pool at one block.
type PoolSummary struct {
	BlockNumber uint64 `json:"block_number"`
	PoolID      string `json:"pool_id"`
	Exchange    string `json:"exchange"`
	Simulated   uint64 `json:"simulated"`
	Succeeded   uint64 `json:"succeeded"`
	Partial     uint64 `json:"partial"`
	Failed      uint64 `json:"failed"`
	TotalGas    uint64 `json:"total_gas"`
	MaxGas      uint64 `json:"max_gas"`
	SuccessRate string `json:"success_rate,omitempty"`
}
