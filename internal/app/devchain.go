package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"path/filepath"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"drealestate/internal/audit"
	"drealestate/internal/devchain"
	"drealestate/internal/domain"
	"drealestate/internal/engine"
	"drealestate/internal/infra"
	"drealestate/internal/storage"
	"drealestate/pkg/quant"
)

const (
	RoleDevChain    = "devchain"
	RoleMarketplace = "marketplace"

	genesisKey = "genesis"
)

// ErrGenesisMismatch means the data directory was created with other genesis settings.
var ErrGenesisMismatch = errors.New("data directory belongs to a different genesis")

// RunDevChain serves the development chain until ctx is cancelled.
func RunDevChain(ctx context.Context, cfg *infra.Config, dataDir string) error {
	dc := cfg.DevChain

	g, err := loadGenesis(cfg)
	if err != nil {
		return err
	}

	// WAL + metadata (single-writer sqlite)
	dbPath := filepath.Join(dataDir, "events.db")
	store, err := storage.NewEventStore(dbPath)
	if err != nil {
		return err
	}
	defer store.Close()
	slog.Info("✅ EventStore initialized (WAL-mode)", slog.String("path", dbPath))

	if err := checkGenesis(ctx, store, g.fingerprint); err != nil {
		return err
	}

	snapshots := storage.NewSnapshotManager(filepath.Join(dataDir, "snapshots"))
	ledger := engine.NewLedger(g.config, g.accounts, store, snapshots)

	if err := ledger.RecoverFromWAL(ctx); err != nil {
		return fmt.Errorf("recover ledger: %w", err)
	}
	slog.Info("✅ Ledger recovered", slog.Uint64("block", ledger.BlockNumber()), slog.Uint64("properties", ledger.PropertyCount()))

	ledgerCtx, stopLedger := context.WithCancel(context.Background())
	go ledger.Run(ledgerCtx)
	defer func() {
		stopLedger()
		<-ledger.Done()
	}()

	node, err := devchain.NewNode(devchain.Config{
		ChainID:  dc.ChainID,
		Contract: common.HexToAddress(cfg.Chain.ContractAddress),
	}, ledger)
	if err != nil {
		return err
	}

	for i, addr := range ledger.Accounts() {
		slog.Info("💰 Account", slog.Int("index", i), slog.String("address", addr.Hex()), slog.String("balance", quant.FromWei(ledger.Balance(addr))))
	}
	slog.Info("✨ Dev chain operational. Press Ctrl+C to exit.",
		slog.String("listen", dc.Listen),
		slog.String("contract", cfg.Chain.ContractAddress))

	return node.ListenAndServe(ctx, dc.Listen)
}

type devGenesis struct {
	accounts    []*domain.Account
	config      engine.Config
	fingerprint string
}

func loadGenesis(cfg *infra.Config) (*devGenesis, error) {
	dc := cfg.DevChain

	balance, err := quant.ToWei(dc.BalanceEth)
	if err != nil {
		return nil, fmt.Errorf("devchain.balance_eth: %w", err)
	}
	gasPrice, ok := new(big.Int).SetString(dc.GasPriceWei, 10)
	if !ok || gasPrice.Sign() < 0 {
		return nil, fmt.Errorf("devchain.gas_price_wei: invalid %q", dc.GasPriceWei)
	}
	accounts, err := engine.GenesisAccounts(dc.Seed, dc.Accounts, balance)
	if err != nil {
		return nil, err
	}

	return &devGenesis{
		accounts:    accounts,
		config:      engine.Config{GasPrice: gasPrice, SnapshotEvery: dc.SnapshotEvery},
		fingerprint: GenesisFingerprint(dc.Seed, dc.Accounts, balance, dc.ChainID),
	}, nil
}

// VerifyDevChain replays the WAL in dataDir from genesis and from the latest
// snapshot and fails when the two states differ.
func VerifyDevChain(ctx context.Context, cfg *infra.Config, dataDir string) (audit.Report, error) {
	g, err := loadGenesis(cfg)
	if err != nil {
		return audit.Report{}, err
	}

	replayer, err := audit.NewReplayer(dataDir)
	if err != nil {
		return audit.Report{}, err
	}
	defer replayer.Close()

	report, err := replayer.Verify(ctx, g.config, g.accounts)
	if err != nil {
		return report, err
	}
	if !report.Consistent() {
		return report, fmt.Errorf("state mismatch: genesis replay %s, snapshot replay %s",
			report.FromGenesis.Hex(), report.FromSnapshot.Hex())
	}
	return report, nil
}

// GenesisFingerprint identifies the genesis a data directory was created with.
func GenesisFingerprint(seed string, accounts int, balance *big.Int, chainID uint64) string {
	// The seed is length-prefixed so no two field sets encode alike.
	enc := fmt.Sprintf("%d:%s|%d|%s|%d", len(seed), seed, accounts, balance.String(), chainID)
	return crypto.Keccak256Hash([]byte(enc)).Hex()
}

func checkGenesis(ctx context.Context, store *storage.EventStore, fingerprint string) error {
	stored, err := store.GetMetadata(ctx, genesisKey)
	if err != nil {
		return fmt.Errorf("read genesis: %w", err)
	}
	switch stored {
	case "":
		return store.UpsertMetadata(ctx, genesisKey, fingerprint, time.Now().UnixMicro())
	case fingerprint:
		return nil
	default:
		return fmt.Errorf("%w: stored %s, configured %s", ErrGenesisMismatch, stored, fingerprint)
	}
}
