package main

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"

	"swapSim/internal/overwrite"
)

func runSlot(cmd *cobra.Command, _ []string) error {
	key, _ := cmd.Flags().GetString("key")
	inner, _ := cmd.Flags().GetString("inner")
	index, _ := cmd.Flags().GetUint64("index")

	if !common.IsHexAddress(key) {
		return fmt.Errorf("key must be an address, got %q", key)
	}

	var slot common.Hash
	if inner == "" {
		slot = overwrite.SlotAtIndex(common.HexToAddress(key), index)
	} else {
		if !common.IsHexAddress(inner) {
			return fmt.Errorf("inner must be an address, got %q", inner)
		}
		slot = overwrite.NestedSlotAt(common.HexToAddress(key), common.HexToAddress(inner), index)
	}
	fmt.Fprintln(cmd.OutOrStdout(), slot.Hex())
	return nil
}
