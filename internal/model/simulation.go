package model

// SimulationFailure records one failed (sell, buy) permutation of a pool.
type SimulationFailure struct {
	PoolID    string `json:"pool_id"`
	SellToken string `json:"sell_token"`
	BuyToken  string `json:"buy_token"`
	Error     string `json:"error"`
}

// SimulationResult records one simulated trade. Amounts are human readable decimals.
type SimulationResult struct {
	BlockNumber uint64 `json:"block_number"`
	PoolID      string `json:"pool_id"`
	Exchange    string `json:"exchange"`
	SellToken   string `json:"sell_token"`
	BuyToken    string `json:"buy_token"`
	SellAmount  string `json:"sell_amount"`
	BuyAmount   string `json:"buy_amount"`
	GasUsed     uint64 `json:"gas_used"`
	Outcome     string `json:"outcome"`
	Limit       string `json:"limit,omitempty"`
	Error       string `json:"error,omitempty"`
}
