package engine

import (
	"encoding/binary"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/crypto"

	"drealestate/internal/domain"
)

// GenesisAccounts derives n deterministic accounts from seed, each funded
// with balance. The same seed always yields the same addresses, so a
// restarted node replays its WAL against the same genesis.
func GenesisAccounts(seed string, n int, balance *big.Int) ([]*domain.Account, error) {
	if n <= 0 {
		return nil, fmt.Errorf("genesis needs at least one account, got %d", n)
	}

	accounts := make([]*domain.Account, 0, n)
	for i := 0; i < n; i++ {
		buf := binary.BigEndian.AppendUint32([]byte(seed), uint32(i))
		key, err := crypto.ToECDSA(crypto.Keccak256(buf))
		if err != nil {
			return nil, fmt.Errorf("derive account %d: %w", i, err)
		}
		accounts = append(accounts, domain.NewAccount(crypto.PubkeyToAddress(key.PublicKey), balance))
	}
	return accounts, nil
}
