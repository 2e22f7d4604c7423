package engine

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"os"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"drealestate/internal/domain"
	"drealestate/internal/event"
	"drealestate/internal/storage"
	"drealestate/pkg/quant"
	"drealestate/pkg/safe"
)

var (
	ErrOutOfGas          = errors.New("out of gas")
	ErrInsufficientFunds = errors.New("insufficient funds for gas * price + value")
	ErrUnknownAccount    = errors.New("unknown account")
	ErrLedgerStopped     = errors.New("ledger is not running")
)

// Config tunes a Ledger.
type Config struct {
	InboxSize     int
	GasPrice      *big.Int // Charged per unit of gas used; zero on a dev chain
	SnapshotEvery uint64   // Blocks between snapshots, 0 disables
	SnapshotKeep  int
}

type request struct {
	ev    event.Event
	reply chan result
}

type result struct {
	receipt *event.Receipt
	err     error
}

// Ledger is the marketplace contract's state machine.
// Transactions are applied by a single goroutine (Run), one per block, so
// concurrent submissions against the same property are serialized here.
type Ledger struct {
	inbox chan *request
	done  chan struct{}

	accounts   map[common.Address]*domain.Account
	order      []common.Address // genesis order, for eth_accounts
	properties []*domain.Property
	receipts   []*event.Receipt // index i holds block i+1
	byHash     map[common.Hash]*event.Receipt
	nextSeq    uint64
	gasPrice   *big.Int

	store         *storage.EventStore
	snapshots     *storage.SnapshotManager
	snapshotEvery uint64
	snapshotKeep  int

	subMu   sync.Mutex
	subs    map[uint64]chan event.Log
	nextSub uint64

	mu sync.RWMutex // Guards state for external reads; Run holds it while applying
}

// NewLedger creates a ledger whose genesis funds the given accounts.
func NewLedger(cfg Config, genesis []*domain.Account, store *storage.EventStore, snapshots *storage.SnapshotManager) *Ledger {
	if cfg.InboxSize <= 0 {
		cfg.InboxSize = 256
	}
	if cfg.SnapshotKeep <= 0 {
		cfg.SnapshotKeep = 3
	}

	l := &Ledger{
		inbox:         make(chan *request, cfg.InboxSize),
		done:          make(chan struct{}),
		accounts:      make(map[common.Address]*domain.Account, len(genesis)),
		byHash:        make(map[common.Hash]*event.Receipt),
		nextSeq:       1,
		gasPrice:      safe.Clone(cfg.GasPrice),
		store:         store,
		snapshots:     snapshots,
		snapshotEvery: cfg.SnapshotEvery,
		snapshotKeep:  cfg.SnapshotKeep,
		subs:          make(map[uint64]chan event.Log),
	}
	for _, a := range genesis {
		l.accounts[a.Address] = domain.NewAccount(a.Address, a.BalanceWei)
		l.order = append(l.order, a.Address)
	}
	return l
}

// RecoverFromWAL restores state from the latest snapshot, then replays the
// WAL tail through the same code path as live transactions.
func (l *Ledger) RecoverFromWAL(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.snapshots != nil {
		snap, err := l.snapshots.LoadLatest()
		if err != nil {
			return fmt.Errorf("failed to load snapshot: %w", err)
		}
		if snap != nil {
			l.restore(snap)
		}
	}

	if l.store == nil {
		slog.Info("No store configured, starting fresh")
		return nil
	}

	lastSeq, err := l.store.GetLastSeq(ctx)
	if err != nil {
		return fmt.Errorf("failed to get last seq: %w", err)
	}
	if lastSeq < l.nextSeq {
		slog.Info("WAL has nothing to replay", slog.Uint64("next_seq", l.nextSeq))
		return nil
	}

	events, err := l.store.LoadEvents(ctx, l.nextSeq)
	if err != nil {
		return fmt.Errorf("failed to load events: %w", err)
	}

	slog.Info("Replaying events from WAL", slog.Int("count", len(events)), slog.Uint64("from", l.nextSeq))
	for _, ev := range events {
		l.replay(ev)
	}

	slog.Info("State recovered from WAL", slog.Uint64("next_seq", l.nextSeq))
	return nil
}

func (l *Ledger) restore(snap *storage.Snapshot) {
	for _, a := range snap.Accounts {
		if _, known := l.accounts[a.Address]; !known {
			l.order = append(l.order, a.Address)
		}
		l.accounts[a.Address] = a
	}
	l.properties = snap.Properties
	l.receipts = snap.Receipts
	l.byHash = make(map[common.Hash]*event.Receipt, len(snap.Receipts))
	for _, r := range snap.Receipts {
		l.byHash[r.TxHash] = r
	}
	l.nextSeq = snap.Seq + 1
}

// Run starts the main transaction loop. This MUST be run in a single goroutine.
func (l *Ledger) Run(ctx context.Context) {
	slog.Info("Ledger started (single writer)")
	defer close(l.done)

	defer func() {
		if r := recover(); r != nil {
			slog.Error("CRITICAL_PANIC_DETECTED", slog.Any("panic", r))
			l.DumpState("ledger_panic_dump.json")
			panic(fmt.Sprintf("HALTED: %v", r))
		}
	}()

	for {
		select {
		case <-ctx.Done():
			slog.Info("Ledger stopping...")
			return
		case req := <-l.inbox:
			rec, err := l.process(req.ev)
			req.reply <- result{receipt: rec, err: err}
		}
	}
}

// Done is closed when Run returns.
func (l *Ledger) Done() <-chan struct{} { return l.done }

// Submit queues a transaction and waits until it is mined or rejected.
// A transaction that reached the inbox cannot be withdrawn; cancelling ctx
// only stops the wait.
func (l *Ledger) Submit(ctx context.Context, ev event.Event) (*event.Receipt, error) {
	req := &request{ev: ev, reply: make(chan result, 1)}

	select {
	case l.inbox <- req:
	case <-l.done:
		return nil, ErrLedgerStopped
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	select {
	case res := <-req.reply:
		return res.receipt, res.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// process validates, logs and applies one transaction.
func (l *Ledger) process(ev event.Event) (*event.Receipt, error) {
	rec, err := l.commit(ev)
	if err != nil {
		return nil, err
	}
	l.publish(rec.Logs)
	return rec, nil
}

func (l *Ledger) commit(ev event.Event) (*event.Receipt, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	// 1. Validation (no state change on failure)
	gasUsed, err := l.check(ev)
	if err != nil {
		return nil, err
	}

	// 2. Stamp block number, nonce and hash
	tx := ev.GetTx()
	tx.Nonce = l.accounts[tx.From].Nonce
	if tx.GasPrice == nil {
		tx.GasPrice = safe.Clone(l.gasPrice)
	}
	ev.Stamp(l.nextSeq, quant.Now())
	tx.Hash = txHash(ev)

	// 3. WAL-first: Persistence
	if l.store != nil {
		if err := l.store.SaveEvent(context.Background(), ev); err != nil {
			panic(fmt.Sprintf("PERSISTENCE_FAILURE: %v", err))
		}
	}

	// 4. Apply and advance
	rec := l.apply(ev, gasUsed)
	l.nextSeq++

	if l.snapshotEvery > 0 && l.snapshots != nil && ev.GetSeq()%l.snapshotEvery == 0 {
		l.saveSnapshot()
	}

	slog.Info("TX_MINED",
		slog.String("method", ev.GetType().String()),
		slog.Uint64("block", ev.GetSeq()),
		slog.String("from", tx.From.Hex()),
		slog.String("hash", tx.Hash.Hex()))

	return rec, nil
}

// replay applies a WAL event without re-logging it. Caller holds mu.
func (l *Ledger) replay(ev event.Event) {
	if ev.GetSeq() != l.nextSeq {
		panic(fmt.Sprintf("REPLAY_GAP_DETECTED: expected %d, got %d", l.nextSeq, ev.GetSeq()))
	}

	gasUsed, err := l.check(ev)
	if err != nil {
		panic(fmt.Sprintf("REPLAY_DIVERGED at %d: %v", ev.GetSeq(), err))
	}

	l.apply(ev, gasUsed)
	l.nextSeq++
}

func (l *Ledger) saveSnapshot() {
	accounts := make([]*domain.Account, 0, len(l.order))
	for _, addr := range l.order {
		accounts = append(accounts, l.accounts[addr])
	}
	snap := storage.CreateSnapshot(l.nextSeq-1, accounts, l.properties, l.receipts)
	if err := l.snapshots.Save(snap); err != nil {
		slog.Warn("Snapshot failed", slog.Any("error", err))
		return
	}
	if err := l.snapshots.Cleanup(l.snapshotKeep); err != nil {
		slog.Warn("Snapshot cleanup failed", slog.Any("error", err))
	}
}

func txHash(ev event.Event) common.Hash {
	tx := ev.GetTx()
	var buf []byte
	buf = append(buf, tx.From.Bytes()...)
	buf = binary.BigEndian.AppendUint64(buf, tx.Nonce)
	buf = binary.BigEndian.AppendUint64(buf, ev.GetSeq())
	buf = binary.BigEndian.AppendUint16(buf, uint16(ev.GetType()))
	return crypto.Keccak256Hash(buf)
}

// SubscribeLogs registers a log listener. The returned cancel func closes the channel.
// A subscriber that falls behind by more than buffer logs misses them.
func (l *Ledger) SubscribeLogs(buffer int) (<-chan event.Log, func()) {
	ch := make(chan event.Log, buffer)

	l.subMu.Lock()
	id := l.nextSub
	l.nextSub++
	l.subs[id] = ch
	l.subMu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			l.subMu.Lock()
			delete(l.subs, id)
			close(ch)
			l.subMu.Unlock()
		})
	}
}

func (l *Ledger) publish(logs []event.Log) {
	if len(logs) == 0 {
		return
	}
	l.subMu.Lock()
	defer l.subMu.Unlock()

	for id, ch := range l.subs {
		for _, lg := range logs {
			select {
			case ch <- lg:
			default:
				slog.Warn("LOG_SUBSCRIBER_LAGGING", slog.Uint64("sub", id), slog.Uint64("block", lg.BlockNumber))
			}
		}
	}
}

// DumpState writes the entire internal state to a file (for post-mortem).
func (l *Ledger) DumpState(filename string) {
	slog.Info("Dumping internal state...", slog.String("file", filename))

	// Never block a post-mortem on a held lock.
	if !l.mu.TryRLock() {
		slog.Error("State is locked, dumping without lock")
	} else {
		defer l.mu.RUnlock()
	}

	data := struct {
		NextSeq    uint64                              `json:"next_seq"`
		Accounts   map[common.Address]*domain.Account `json:"accounts"`
		Properties []*domain.Property                  `json:"properties"`
	}{
		NextSeq:    l.nextSeq,
		Accounts:   l.accounts,
		Properties: l.properties,
	}

	b, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		slog.Error("Failed to marshal state", slog.Any("error", err))
		return
	}

	if err := os.WriteFile(filename, b, 0644); err != nil {
		slog.Error("Failed to write state dump", slog.Any("error", err))
	}
}
