package simerr

import (
	"bytes"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

var (
	errorSelector = []byte{0x08, 0xc3, 0x79, 0xa0}
	panicSelector = []byte{0x4e, 0x48, 0x7b, 0x71}
)

// https://docs.soliditylang.org/en/latest/control-structures.html#panic-via-assert-and-error-via-require
var panicCodes = map[uint64]string{
	0x00: "GenericCompilerPanic",
	0x01: "AssertionError",
	0x11: "ArithmeticOver/Underflow",
	0x12: "ZeroDivisionError",
	0x21: "UnkownEnumMember",
	0x22: "BadStorageByteArrayEncoding",
	0x31: "EmptyArray",
	0x32: "OutOfBounds",
	0x41: "OutOfMemory",
	0x51: "BadFunctionPointer",
}

var (
	revertArgs     abi.Arguments
	revertArgsOnce sync.Once
	revertArgsErr  error
)

func revertArguments() (abi.Arguments, error) {
	revertArgsOnce.Do(func() {
		stringType, err := abi.NewType("string", "", nil)
		if err != nil {
			revertArgsErr = err
			return
		}
		uintType, err := abi.NewType("uint256", "", nil)
		if err != nil {
			revertArgsErr = err
			return
		}
		revertArgs = abi.Arguments{{Type: stringType}, {Type: uintType}}
	})
	return revertArgs, revertArgsErr
}

// PanicName maps a Solidity panic code to its name.
func PanicName(code *big.Int) string {
	if code != nil && code.IsUint64() {
		if name, ok := panicCodes[code.Uint64()]; ok {
			return name
		}
	}
	return fmt.Sprintf("Panic(%s)", code)
}

// ParseRevert decodes revert data into a human readable reason. Data that matches
// no known encoding yields "Failed to decode: <data>".
func ParseRevert(data string) string {
	fallback := "Failed to decode: " + data
	raw, err := hexutil.Decode(data)
	if err != nil {
		return fallback
	}

	args, err := revertArguments()
	if err != nil {
		return fallback
	}
	stringArg := abi.Arguments{args[0]}
	uintArg := abi.Arguments{args[1]}

	if len(raw) >= 4 && bytes.Equal(raw[:4], errorSelector) {
		if reason, ok := unpackString(stringArg, raw[4:]); ok {
			return reason
		}
	} else if len(raw) >= 4 && bytes.Equal(raw[:4], panicSelector) {
		values, err := uintArg.Unpack(raw[4:])
		if err == nil && len(values) == 1 {
			if code, ok := values[0].(*big.Int); ok {
				return PanicName(code)
			}
		}
	}

	// revert("reason") from old compilers carries no selector
	if reason, ok := unpackString(stringArg, raw); ok {
		return reason
	}
	if len(raw) >= 4 {
		if reason, ok := unpackString(stringArg, raw[4:]); ok {
			return reason
		}
	}
	return fallback
}

func unpackString(args abi.Arguments, data []byte) (string, bool) {
	values, err := args.Unpack(data)
	if err != nil || len(values) != 1 {
		return "", false
	}
	s, ok := values[0].(string)
	return s, ok
}
