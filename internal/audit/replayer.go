// Package audit checks that a dev chain's WAL and snapshots agree.
package audit

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/ethereum/go-ethereum/common"

	"drealestate/internal/domain"
	"drealestate/internal/engine"
	"drealestate/internal/storage"
)

// Report compares a full replay from genesis with a snapshot-based recovery.
type Report struct {
	Blocks       uint64      `json:"blocks"`
	Properties   uint64      `json:"properties"`
	FromGenesis  common.Hash `json:"from_genesis"`
	FromSnapshot common.Hash `json:"from_snapshot"`
}

// Consistent reports whether both recoveries reached the same state.
func (r Report) Consistent() bool { return r.FromGenesis == r.FromSnapshot }

// Replayer reads a data directory written by the dev chain.
type Replayer struct {
	store     *storage.EventStore
	snapshots *storage.SnapshotManager
}

// NewReplayer opens dataDir/events.db and dataDir/snapshots.
func NewReplayer(dataDir string) (*Replayer, error) {
	store, err := storage.NewEventStore(filepath.Join(dataDir, "events.db"))
	if err != nil {
		return nil, err
	}
	return &Replayer{
		store:     store,
		snapshots: storage.NewSnapshotManager(filepath.Join(dataDir, "snapshots")),
	}, nil
}

func (r *Replayer) Close() error { return r.store.Close() }

// Verify recovers the ledger twice and compares the state digests.
func (r *Replayer) Verify(ctx context.Context, cfg engine.Config, genesis []*domain.Account) (Report, error) {
	cfg.SnapshotEvery = 0 // never write snapshots while auditing

	full, err := r.recoverLedger(ctx, engine.NewLedger(cfg, genesis, r.store, nil))
	if err != nil {
		return Report{}, fmt.Errorf("replay from genesis: %w", err)
	}
	fromSnap, err := r.recoverLedger(ctx, engine.NewLedger(cfg, genesis, r.store, r.snapshots))
	if err != nil {
		return Report{}, fmt.Errorf("replay from snapshot: %w", err)
	}

	report := Report{
		Blocks:       full.BlockNumber(),
		Properties:   full.PropertyCount(),
		FromGenesis:  full.StateDigest(),
		FromSnapshot: fromSnap.StateDigest(),
	}
	if fromSnap.BlockNumber() != report.Blocks {
		return report, fmt.Errorf("block height differs: genesis replay %d, snapshot replay %d", report.Blocks, fromSnap.BlockNumber())
	}
	slog.Info("Audit finished",
		slog.Uint64("blocks", report.Blocks),
		slog.String("digest", report.FromGenesis.Hex()),
		slog.Bool("consistent", report.Consistent()))
	return report, nil
}

// recoverLedger turns a replay panic (gap or divergence) into an error.
func (r *Replayer) recoverLedger(ctx context.Context, l *engine.Ledger) (ledger *engine.Ledger, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("%v", p)
		}
	}()
	if err := l.RecoverFromWAL(ctx); err != nil {
		return nil, err
	}
	return l, nil
}
