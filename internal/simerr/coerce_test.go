package simerr

import (
	"errors"
	"math/big"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

func panicPayload(code int64) string {
	word := common.LeftPadBytes(big.NewInt(code).Bytes(), 32)
	return hexutil.Encode(append(append([]byte{}, panicSelector...), word...))
}

func errorPayload(t *testing.T, reason string) string {
	stringType, err := abi.NewType("string", "", nil)
	if err != nil {
		t.Fatalf("new type: %v", err)
	}
	packed, err := abi.Arguments{{Type: stringType}}.Pack(reason)
	if err != nil {
		t.Fatalf("pack: %v", err)
	}
	return hexutil.Encode(append(append([]byte{}, errorSelector...), packed...))
}

func TestParseRevertPanic(t *testing.T) {
	if got := ParseRevert(panicPayload(0x11)); got != "ArithmeticOver/Underflow" {
		t.Fatalf("panic 0x11: %s", got)
	}
	if got := ParseRevert(panicPayload(0x32)); got != "OutOfBounds" {
		t.Fatalf("panic 0x32: %s", got)
	}
	if got := ParseRevert(panicPayload(0x99)); got != "Panic(153)" {
		t.Fatalf("unknown panic: %s", got)
	}
}

func TestParseRevertErrorString(t *testing.T) {
	if got := ParseRevert(errorPayload(t, "insufficient liquidity")); got != "insufficient liquidity" {
		t.Fatalf("reason mismatch: %s", got)
	}
}

func TestParseRevertUndecodable(t *testing.T) {
	if got := ParseRevert("0xdeadbeef"); got != "Failed to decode: 0xdeadbeef" {
		t.Fatalf("fallback mismatch: %s", got)
	}
	if got := ParseRevert("not hex"); got != "Failed to decode: not hex" {
		t.Fatalf("fallback mismatch: %s", got)
	}
}

func TestCoerceRevert(t *testing.T) {
	err := Coerce(&ExecutionFailure{Data: panicPayload(0x11), GasUsed: 50_000, HasGasUsed: true}, "pool", 100_000)

	var revert *RevertError
	if !errors.As(err, &revert) {
		t.Fatalf("expected revert error, got %T", err)
	}
	if revert.Error() != "Revert! Reason: ArithmeticOver/Underflow" {
		t.Fatalf("message mismatch: %s", revert.Error())
	}
	if IsRecoverable(err) {
		t.Fatalf("revert must not be recoverable")
	}
}

func TestCoerceLikelyOutOfGas(t *testing.T) {
	err := Coerce(&ExecutionFailure{Data: panicPayload(0x11), GasUsed: 98_000, HasGasUsed: true}, "pool", 100_000)

	var oog *OutOfGasError
	if !errors.As(err, &oog) {
		t.Fatalf("expected out of gas, got %T: %v", err, err)
	}
	if !strings.Contains(oog.Error(), "Used: 98.00% of gas limit") {
		t.Fatalf("usage missing: %s", oog.Error())
	}
	if !strings.Contains(oog.Error(), "ArithmeticOver/Underflow") {
		t.Fatalf("original reason missing: %s", oog.Error())
	}
	if !IsRecoverable(err) {
		t.Fatalf("out of gas must be recoverable")
	}
}

func TestCoerceWithoutGasLimitKeepsRevert(t *testing.T) {
	err := Coerce(&ExecutionFailure{Data: panicPayload(0x01), GasUsed: 99_999, HasGasUsed: true}, "pool", 0)
	var revert *RevertError
	if !errors.As(err, &revert) {
		t.Fatalf("expected revert error, got %T", err)
	}
}

func TestCoerceOutOfGasMessage(t *testing.T) {
	err := Coerce(&ExecutionFailure{Data: "OutOfGas", GasUsed: 100_000, HasGasUsed: true}, "pool", 100_000)
	var oog *OutOfGasError
	if !errors.As(err, &oog) {
		t.Fatalf("expected out of gas, got %T", err)
	}
	if oog.Error() != "SimulationError: out-of-gas. Used: 100.00% of gas limit. Original error: OutOfGas" {
		t.Fatalf("message mismatch: %s", oog.Error())
	}
}

func TestCoercePassesThroughOtherErrors(t *testing.T) {
	original := errors.New("database unavailable")
	if got := Coerce(original, "pool", 100_000); got != original {
		t.Fatalf("expected original error, got %v", got)
	}

	engineErr := &ExecutionFailure{Data: "invalid opcode"}
	if got := Coerce(engineErr, "pool", 100_000); got != error(engineErr) {
		t.Fatalf("expected engine error unchanged, got %v", got)
	}
}
