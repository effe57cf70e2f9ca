package simulation

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"go.uber.org/zap"
)

var (
	// ExternalAccount is the funded caller of every adapter call.
	ExternalAccount = common.HexToAddress("0xf847a638E44186F3287ee9F8cAF73FF4d4B80784")
	// AdapterAddress is where the protocol adapter contract is installed.
	AdapterAddress = common.HexToAddress("0xA2C5C98A892fD6656a7F39A2f63228C0Bc846270")

	// MaxBalance is half of the largest uint256, leaving headroom for additions.
	MaxBalance = new(uint256.Int).Rsh(new(uint256.Int).SetAllOne(), 1)
)

// PoolAccounts lists the accounts a pool simulation needs.
type PoolAccounts struct {
	// Tokens get TokenCode installed as mocked accounts.
	Tokens    []common.Address
	TokenCode []byte
	// AdapterCode is installed at AdapterAddress.
	AdapterCode []byte
	// StatelessContracts are installed with their code. Entries without code
	// are left to the state source.
	StatelessContracts map[common.Address][]byte
}

// InitPoolAccounts installs the mocked tokens, the funded external account, the
// adapter and every stateless contract.
func InitPoolAccounts(engine Engine, accounts PoolAccounts) {
	for _, token := range accounts.Tokens {
		engine.InitAccount(token, AccountInfo{Code: accounts.TokenCode}, true, nil)
	}
	engine.InitAccount(ExternalAccount, AccountInfo{Balance: MaxBalance}, false, nil)
	engine.InitAccount(common.Address{}, AccountInfo{}, false, nil)
	engine.InitAccount(common.BytesToAddress([]byte{0x04}), AccountInfo{}, false, nil)
	engine.InitAccount(AdapterAddress, AccountInfo{Balance: MaxBalance, Code: accounts.AdapterCode}, false, nil)
	for addr, code := range accounts.StatelessContracts {
		if len(code) == 0 {
			continue
		}
		engine.InitAccount(addr, AccountInfo{Code: code}, false, nil)
	}
}

// NewPoolEngine builds an EVMEngine with the pool's accounts installed.
func NewPoolEngine(cfg EngineConfig, source StateSource, accounts PoolAccounts, logger *zap.Logger) (*EVMEngine, error) {
	engine, err := NewEVMEngine(cfg, source, logger)
	if err != nil {
		return nil, err
	}
	InitPoolAccounts(engine, accounts)
	return engine, nil
}
