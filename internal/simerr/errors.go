package simerr

import (
	"errors"
	"fmt"
)

// ConversionError reports an amount that could not be parsed or converted.
type ConversionError struct {
	Input string
	Err   error
}

func (e *ConversionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("convert amount %q: %v", e.Input, e.Err)
	}
	return fmt.Sprintf("convert amount %q", e.Input)
}

func (e *ConversionError) Unwrap() error { return e.Err }

// CapabilityError reports an operation the pool's adapter does not support.
type CapabilityError struct {
	PoolID     string
	Capability string
}

func (e *CapabilityError) Error() string {
	return fmt.Sprintf("%s not available for pool %s", e.Capability, e.PoolID)
}

// DecodeError reports a snapshot that could not be turned into a pool state.
type DecodeError struct {
	PoolID string
	Msg    string
	Err    error
}

func (e *DecodeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("decode pool %s: %s: %v", e.PoolID, e.Msg, e.Err)
	}
	return fmt.Sprintf("decode pool %s: %s", e.PoolID, e.Msg)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// RevertError is a simulation that reverted with a decoded reason. It is not recoverable.
type RevertError struct {
	PoolID string
	Reason string
}

func (e *RevertError) Error() string {
	return "Revert! Reason: " + e.Reason
}

// OutOfGasError is a simulation that most likely ran out of gas.
type OutOfGasError struct {
	PoolID  string
	Message string
}

func (e *OutOfGasError) Error() string { return e.Message }

func (e *OutOfGasError) Recoverable() bool { return true }

// SellLimitError reports a sell amount above the pool's sell limit. The trade was
// simulated at the limit instead.
type SellLimitError struct {
	PoolID string
	Limit  string
}

func (e *SellLimitError) Error() string {
	return fmt.Sprintf("Sell amount exceeds sell limit %s for pool %s", e.Limit, e.PoolID)
}

func (e *SellLimitError) Recoverable() bool { return true }

// ExecutionFailure is the raw result of a failed engine call.
type ExecutionFailure struct {
	// Data is 0x-prefixed revert data, or a textual engine error.
	Data    string
	GasUsed uint64
	// HasGasUsed is false when the engine could not report gas usage.
	HasGasUsed bool
}

func (e *ExecutionFailure) Error() string {
	return "execution failed: " + e.Data
}

// IsRecoverable reports whether err carries a usable partial result or may succeed
// when retried with a smaller amount.
func IsRecoverable(err error) bool {
	var r interface{ Recoverable() bool }
	if errors.As(err, &r) {
		return r.Recoverable()
	}
	return false
}
