package storage

import (
	"math/big"
	"os"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"drealestate/internal/domain"
	"drealestate/internal/event"
)

func TestSnapshot_SaveAndLoad(t *testing.T) {
	dir := t.TempDir()
	sm := NewSnapshotManager(dir)

	owner := common.HexToAddress("0xaa")
	accounts := []*domain.Account{domain.NewAccount(owner, big.NewInt(1000))}
	properties := []*domain.Property{{
		ID:        0,
		Name:      "Loft",
		Location:  "123 Main St, CryptoCity",
		Price:     big.NewInt(500),
		Size:      big.NewInt(80),
		Owner:     owner,
		IsForSale: true,
	}}
	receipts := []*event.Receipt{{BlockNumber: 1, From: owner, Method: event.EvListProperty}}

	snap := CreateSnapshot(100, accounts, properties, receipts)

	// Mutating live state after the snapshot must not leak into it
	properties[0].Price.SetInt64(1)
	accounts[0].Credit(big.NewInt(1))

	if err := sm.Save(snap); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	loaded, err := sm.LoadLatest()
	if err != nil {
		t.Fatalf("LoadLatest failed: %v", err)
	}
	if loaded == nil {
		t.Fatal("Expected snapshot, got nil")
	}
	if loaded.Seq != 100 {
		t.Errorf("Expected seq 100, got %d", loaded.Seq)
	}
	if loaded.Properties[0].Price.Int64() != 500 {
		t.Errorf("Property price mismatch: %s", loaded.Properties[0].Price)
	}
	if loaded.Accounts[0].BalanceWei.Int64() != 1000 {
		t.Errorf("Balance mismatch: %s", loaded.Accounts[0].BalanceWei)
	}
	if len(loaded.Receipts) != 1 || loaded.Receipts[0].From != owner {
		t.Errorf("Receipts mismatch: %+v", loaded.Receipts)
	}
}

func TestSnapshot_LoadLatest_MultipleSnapshots(t *testing.T) {
	sm := NewSnapshotManager(t.TempDir())

	for _, seq := range []uint64{10, 50, 30} {
		if err := sm.Save(&Snapshot{Seq: seq, TsUnix: int64(seq)}); err != nil {
			t.Fatalf("Save failed: %v", err)
		}
	}

	loaded, err := sm.LoadLatest()
	if err != nil {
		t.Fatalf("LoadLatest failed: %v", err)
	}
	if loaded.Seq != 50 {
		t.Errorf("Expected latest seq 50, got %d", loaded.Seq)
	}
}

func TestSnapshot_LoadLatest_NoSnapshots(t *testing.T) {
	sm := NewSnapshotManager(t.TempDir() + "/missing")

	loaded, err := sm.LoadLatest()
	if err != nil {
		t.Fatalf("LoadLatest failed: %v", err)
	}
	if loaded != nil {
		t.Errorf("Expected nil for empty dir, got %v", loaded)
	}
}

func TestSnapshot_Cleanup(t *testing.T) {
	dir := t.TempDir()
	sm := NewSnapshotManager(dir)

	for seq := uint64(1); seq <= 5; seq++ {
		if err := sm.Save(&Snapshot{Seq: seq, TsUnix: int64(seq)}); err != nil {
			t.Fatalf("Save failed: %v", err)
		}
	}

	if err := sm.Cleanup(2); err != nil {
		t.Fatalf("Cleanup failed: %v", err)
	}

	entries, _ := os.ReadDir(dir)
	if len(entries) != 2 {
		t.Errorf("Expected 2 snapshots after cleanup, got %d", len(entries))
	}

	loaded, _ := sm.LoadLatest()
	if loaded.Seq != 5 {
		t.Errorf("Expected seq 5 to remain, got %d", loaded.Seq)
	}
}
