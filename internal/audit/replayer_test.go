package audit

import (
	"context"
	"math/big"
	"path/filepath"
	"testing"

	"drealestate/internal/domain"
	"drealestate/internal/engine"
	"drealestate/internal/event"
	"drealestate/internal/storage"
	"drealestate/pkg/quant"
)

func genesis(t *testing.T, balance string) []*domain.Account {
	t.Helper()
	g, err := engine.GenesisAccounts("audit", 3, quant.MustWei(balance))
	if err != nil {
		t.Fatal(err)
	}
	return g
}

// writeChain runs a few transactions against a ledger persisted in dir.
func writeChain(t *testing.T, dir string, cfg engine.Config) {
	t.Helper()
	store, err := storage.NewEventStore(filepath.Join(dir, "events.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()

	l := engine.NewLedger(cfg, genesis(t, "100"), store, storage.NewSnapshotManager(filepath.Join(dir, "snapshots")))
	ctx, cancel := context.WithCancel(context.Background())
	go l.Run(ctx)
	defer func() {
		cancel()
		<-l.Done()
	}()

	acc := l.Accounts()
	list := func(from int, name, price string) {
		ev := &event.ListPropertyEvent{Name: name, Location: "Leuven", Description: "d", Price: quant.MustWei(price), Size: big.NewInt(50), Bedrooms: 1, Bathrooms: 1}
		ev.From = acc[from]
		if _, err := l.Submit(ctx, ev); err != nil {
			t.Fatalf("list: %v", err)
		}
	}
	list(0, "A", "1")
	list(1, "B", "2")

	buy := &event.BuyPropertyEvent{PropertyID: 0}
	buy.From, buy.Value = acc[2], quant.MustWei("1")
	if _, err := l.Submit(ctx, buy); err != nil {
		t.Fatalf("buy: %v", err)
	}
}

func TestVerify_Consistent(t *testing.T) {
	dir := t.TempDir()
	cfg := engine.Config{GasPrice: big.NewInt(1_000_000_000), SnapshotEvery: 2}
	writeChain(t, dir, cfg)

	r, err := NewReplayer(dir)
	if err != nil {
		t.Fatal(err)
	}
	defer r.Close()

	report, err := r.Verify(context.Background(), cfg, genesis(t, "100"))
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if !report.Consistent() {
		t.Fatalf("expected consistent report: %+v", report)
	}
	if report.Blocks != 3 || report.Properties != 2 {
		t.Errorf("report = %+v", report)
	}
}

func TestVerify_WrongGenesis(t *testing.T) {
	dir := t.TempDir()
	cfg := engine.Config{SnapshotEvery: 2}
	writeChain(t, dir, cfg)

	r, err := NewReplayer(dir)
	if err != nil {
		t.Fatal(err)
	}
	defer r.Close()

	// The snapshot carries the real balances, the genesis replay does not.
	report, err := r.Verify(context.Background(), cfg, genesis(t, "50"))
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if report.Consistent() {
		t.Fatal("a different genesis should not verify")
	}
}

func TestVerify_EmptyDir(t *testing.T) {
	r, err := NewReplayer(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	defer r.Close()

	report, err := r.Verify(context.Background(), engine.Config{}, genesis(t, "100"))
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if !report.Consistent() || report.Blocks != 0 {
		t.Fatalf("report = %+v", report)
	}
}
