package simerr

import (
	"errors"
	"fmt"
	"strings"
)

// OutOfGasThreshold is the share of the gas limit above which a revert is treated
// as gas exhaustion.
const OutOfGasThreshold = 0.97

// Coerce classifies a failed simulation. Reverts become *RevertError, or
// *OutOfGasError when gasLimit is known and at least OutOfGasThreshold of it was
// used. Engine messages mentioning OutOfGas become *OutOfGasError. Any other error
// is returned unchanged. A gasLimit of zero means the limit is unknown.
func Coerce(err error, poolID string, gasLimit uint64) error {
	var failure *ExecutionFailure
	if !errors.As(err, &failure) {
		return err
	}

	if strings.HasPrefix(failure.Data, "0x") {
		revert := &RevertError{PoolID: poolID, Reason: ParseRevert(failure.Data)}
		if gasLimit > 0 && failure.HasGasUsed {
			usage := float64(failure.GasUsed) / float64(gasLimit)
			if usage >= OutOfGasThreshold {
				return &OutOfGasError{
					PoolID: poolID,
					Message: fmt.Sprintf(
						"SimulationError: Likely out-of-gas. Used: %.2f%% of gas limit. Original error: %s",
						usage*100, revert.Error(),
					),
				}
			}
		}
		return revert
	}

	if strings.Contains(failure.Data, "OutOfGas") {
		usageMsg := ""
		if gasLimit > 0 && failure.HasGasUsed {
			usage := float64(failure.GasUsed) / float64(gasLimit)
			usageMsg = fmt.Sprintf("Used: %.2f%% of gas limit. ", usage*100)
		}
		return &OutOfGasError{
			PoolID:  poolID,
			Message: fmt.Sprintf("SimulationError: out-of-gas. %sOriginal error: %s", usageMsg, failure.Data),
		}
	}

	return err
}
