package adapter

import (
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

const swapAdapterABIJSON = `[
  {
    "inputs": [
      {"internalType": "bytes32", "name": "poolId", "type": "bytes32"},
      {"internalType": "address", "name": "sellToken", "type": "address"},
      {"internalType": "address", "name": "buyToken", "type": "address"},
      {"internalType": "uint256[]", "name": "specifiedAmounts", "type": "uint256[]"}
    ],
    "name": "price",
    "outputs": [
      {
        "components": [
          {"internalType": "uint256", "name": "numerator", "type": "uint256"},
          {"internalType": "uint256", "name": "denominator", "type": "uint256"}
        ],
        "internalType": "struct ISwapAdapterTypes.Fraction[]",
        "name": "prices",
        "type": "tuple[]"
      }
    ],
    "stateMutability": "view",
    "type": "function"
  },
  {
    "inputs": [
      {"internalType": "bytes32", "name": "poolId", "type": "bytes32"},
      {"internalType": "address", "name": "sellToken", "type": "address"},
      {"internalType": "address", "name": "buyToken", "type": "address"},
      {"internalType": "enum ISwapAdapterTypes.OrderSide", "name": "side", "type": "uint8"},
      {"internalType": "uint256", "name": "specifiedAmount", "type": "uint256"}
    ],
    "name": "swap",
    "outputs": [
      {
        "components": [
          {"internalType": "uint256", "name": "calculatedAmount", "type": "uint256"},
          {"internalType": "uint256", "name": "gasUsed", "type": "uint256"},
          {
            "components": [
              {"internalType": "uint256", "name": "numerator", "type": "uint256"},
              {"internalType": "uint256", "name": "denominator", "type": "uint256"}
            ],
            "internalType": "struct ISwapAdapterTypes.Fraction",
            "name": "price",
            "type": "tuple"
          }
        ],
        "internalType": "struct ISwapAdapterTypes.Trade",
        "name": "trade",
        "type": "tuple"
      }
    ],
    "stateMutability": "nonpayable",
    "type": "function"
  },
  {
    "inputs": [
      {"internalType": "bytes32", "name": "poolId", "type": "bytes32"},
      {"internalType": "address", "name": "sellToken", "type": "address"},
      {"internalType": "address", "name": "buyToken", "type": "address"}
    ],
    "name": "getLimits",
    "outputs": [{"internalType": "uint256[]", "name": "limits", "type": "uint256[]"}],
    "stateMutability": "view",
    "type": "function"
  },
  {
    "inputs": [
      {"internalType": "bytes32", "name": "poolId", "type": "bytes32"},
      {"internalType": "address", "name": "sellToken", "type": "address"},
      {"internalType": "address", "name": "buyToken", "type": "address"}
    ],
    "name": "getCapabilities",
    "outputs": [{"internalType": "enum ISwapAdapterTypes.Capability[]", "name": "capabilities", "type": "uint8[]"}],
    "stateMutability": "view",
    "type": "function"
  },
  {
    "inputs": [],
    "name": "minGasUsage",
    "outputs": [{"internalType": "uint256", "name": "", "type": "uint256"}],
    "stateMutability": "view",
    "type": "function"
  }
]`

var (
	swapAdapterABI     abi.ABI
	swapAdapterABIOnce sync.Once
	swapAdapterABIErr  error
)

// SwapAdapterABI returns the parsed adapter ABI.
func SwapAdapterABI() (abi.ABI, error) {
	swapAdapterABIOnce.Do(func() {
		swapAdapterABI, swapAdapterABIErr = abi.JSON(strings.NewReader(swapAdapterABIJSON))
	})
	return swapAdapterABI, swapAdapterABIErr
}
