package storage

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"time"

	"drealestate/internal/domain"
	"drealestate/internal/event"
)

// Snapshot represents a point-in-time capture of ledger state.
// Used for fast recovery instead of replaying the entire WAL.
type Snapshot struct {
	Seq        uint64             `json:"seq"` // Last applied block
	TsUnix     int64              `json:"ts"`  // Snapshot creation timestamp (Unix seconds)
	Accounts   []*domain.Account  `json:"accounts"`
	Properties []*domain.Property `json:"properties"`
	Receipts   []*event.Receipt   `json:"receipts"` // One per block, in block order
}

// SnapshotManager handles saving and loading snapshots.
type SnapshotManager struct {
	dir string
}

// NewSnapshotManager creates a new snapshot manager.
// dir: directory to store snapshot files.
func NewSnapshotManager(dir string) *SnapshotManager {
	return &SnapshotManager{dir: dir}
}

// Save writes a snapshot to disk. The file is written under a temporary
// name first so a crash never leaves a truncated snapshot behind.
func (sm *SnapshotManager) Save(snap *Snapshot) error {
	if err := os.MkdirAll(sm.dir, 0755); err != nil {
		return fmt.Errorf("failed to create snapshot dir: %w", err)
	}

	filename := fmt.Sprintf("snapshot_%d_%d.json", snap.Seq, snap.TsUnix)
	path := filepath.Join(sm.dir, filename)

	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot: %w", err)
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("failed to write snapshot: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("failed to commit snapshot: %w", err)
	}

	slog.Info("Snapshot saved",
		slog.Uint64("seq", snap.Seq),
		slog.String("path", path))

	return nil
}

type snapFile struct {
	path string
	seq  uint64
}

// list returns snapshot files ordered by sequence, newest first.
func (sm *SnapshotManager) list() ([]snapFile, error) {
	entries, err := os.ReadDir(sm.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read snapshot dir: %w", err)
	}

	var files []snapFile
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".json" {
			continue
		}
		var seq uint64
		var ts int64
		if _, err := fmt.Sscanf(entry.Name(), "snapshot_%d_%d.json", &seq, &ts); err != nil {
			continue // Not a snapshot file
		}
		files = append(files, snapFile{path: filepath.Join(sm.dir, entry.Name()), seq: seq})
	}

	sort.Slice(files, func(i, j int) bool { return files[i].seq > files[j].seq })
	return files, nil
}

// LoadLatest loads the most recent snapshot from disk.
// Returns nil if no snapshot exists.
func (sm *SnapshotManager) LoadLatest() (*Snapshot, error) {
	files, err := sm.list()
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, nil
	}

	data, err := os.ReadFile(files[0].path)
	if err != nil {
		return nil, fmt.Errorf("failed to read snapshot: %w", err)
	}

	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("failed to unmarshal snapshot: %w", err)
	}

	slog.Info("Snapshot loaded",
		slog.Uint64("seq", snap.Seq),
		slog.String("path", files[0].path))

	return &snap, nil
}

// CreateSnapshot creates a snapshot from current state.
// Accounts and properties are deep-copied; receipts are immutable once mined.
func CreateSnapshot(seq uint64, accounts []*domain.Account, properties []*domain.Property, receipts []*event.Receipt) *Snapshot {
	accCopy := make([]*domain.Account, len(accounts))
	for i, a := range accounts {
		accCopy[i] = domain.NewAccount(a.Address, a.BalanceWei)
		accCopy[i].Nonce = a.Nonce
	}

	propCopy := make([]*domain.Property, len(properties))
	for i, p := range properties {
		c := p.Clone()
		propCopy[i] = &c
	}

	recCopy := make([]*event.Receipt, len(receipts))
	copy(recCopy, receipts)

	return &Snapshot{
		Seq:        seq,
		TsUnix:     time.Now().Unix(),
		Accounts:   accCopy,
		Properties: propCopy,
		Receipts:   recCopy,
	}
}

// Cleanup removes old snapshots, keeping only the latest N.
func (sm *SnapshotManager) Cleanup(keepCount int) error {
	files, err := sm.list()
	if err != nil {
		return err
	}
	if len(files) <= keepCount {
		return nil
	}

	for _, f := range files[keepCount:] {
		if err := os.Remove(f.path); err != nil {
			slog.Warn("Failed to remove old snapshot", slog.String("path", f.path))
		} else {
			slog.Info("Removed old snapshot", slog.String("path", f.path))
		}
	}

	return nil
}
