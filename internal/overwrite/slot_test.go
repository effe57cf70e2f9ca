package overwrite

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
)

var (
	externalAccount = common.HexToAddress("0xf847a638E44186F3287ee9F8cAF73FF4d4B80784")
	adapterAddress  = common.HexToAddress("0xA2C5C98A892fD6656a7F39A2f63228C0Bc846270")
)

func TestSlotAtKnownValues(t *testing.T) {
	cases := []struct {
		name  string
		key   common.Address
		index uint64
		want  string
	}{
		{"zero address slot 0", common.Address{}, 0, "0xad3228b676f7d3cd4284a5443f17f1962b36e491b30a40b2405849e597ba5fb5"},
		{"address one slot 0", common.HexToAddress("0x0000000000000000000000000000000000000001"), 0, "0xada5013122d395ba3c54772283fb069b10426056ef8ca54750cb9bb552a59e7d"},
		{"external account balance", externalAccount, 0, "0xf37edb7186962a2f96b7645384a9919d11ea2c760622e9e423e3ff0fa39e9b5b"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := SlotAtIndex(tc.key, tc.index)
			if got != common.HexToHash(tc.want) {
				t.Fatalf("slot mismatch: got %s want %s", got.Hex(), tc.want)
			}
		})
	}
}

func TestNestedSlotAtAllowance(t *testing.T) {
	got := NestedSlotAt(externalAccount, adapterAddress, 1)
	want := common.HexToHash("0x81706c82347ef29feabe472717331475fdcdb2df0a1c193eb27c3f7596857cd0")
	if got != want {
		t.Fatalf("allowance slot mismatch: got %s want %s", got.Hex(), want.Hex())
	}
	if got != SlotAt(adapterAddress, SlotAtIndex(externalAccount, 1)) {
		t.Fatalf("nested slot must equal two single applications")
	}
}

func TestFactoryCollect(t *testing.T) {
	token := common.HexToAddress("0x6B175474E89094C44Da98b954EedeAC495271d0F")
	f := NewERC20Factory(token)
	f.SetBalance(big.NewInt(100), externalAccount)
	f.SetBalance(big.NewInt(250), externalAccount)
	f.SetAllowance(big.NewInt(7), externalAccount, adapterAddress)

	got := f.Collect()
	if len(got) != 1 {
		t.Fatalf("expected one token entry, got %d", len(got))
	}
	slots := got[token]
	if len(slots) != 2 {
		t.Fatalf("expected 2 slots, got %d", len(slots))
	}
	if v := slots[SlotAtIndex(externalAccount, 0)]; v.Big().Int64() != 250 {
		t.Fatalf("balance not last-write-wins: %s", v.Big())
	}
	if v := slots[NestedSlotAt(externalAccount, adapterAddress, 1)]; v.Big().Int64() != 7 {
		t.Fatalf("allowance mismatch: %s", v.Big())
	}

	f.SetBalance(big.NewInt(1), adapterAddress)
	if len(got[token]) != 2 {
		t.Fatalf("collected map must not alias the factory")
	}
}
