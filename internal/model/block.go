package model

import "time"

// EVMBlock is the block a simulation runs against.
type EVMBlock struct {
	Number    uint64    `json:"number"`
	Timestamp time.Time `json:"timestamp"`
	Hash      string    `json:"hash"`
}

// Unix returns the block timestamp in seconds.
func (b EVMBlock) Unix() uint64 {
	if b.Timestamp.IsZero() {
		return 0
	}
	return uint64(b.Timestamp.Unix())
}
