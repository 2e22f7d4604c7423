package domain

import (
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// TxKind names a state-changing marketplace action.
type TxKind string

const (
	TxList   TxKind = "list"
	TxBuy    TxKind = "buy"
	TxToggle TxKind = "toggle"
	TxPrice  TxKind = "price"
)

// TxState is the per-transaction lifecycle: pending -> confirmed | failed.
type TxState string

const (
	TxPending   TxState = "pending"
	TxConfirmed TxState = "confirmed"
	TxFailed    TxState = "failed"
)

// PendingTx is an in-flight marker shown while a transaction awaits
// confirmation, kept for a while after it finishes.
type PendingTx struct {
	Key        string         `json:"key"`
	Kind       TxKind         `json:"kind"`
	PropertyID *uint64        `json:"propertyId,omitempty"`
	Account    common.Address `json:"account"`
	State      TxState        `json:"state"`
	Error      string         `json:"error,omitempty"`
	StartedAt  time.Time      `json:"startedAt"`
	FinishedAt time.Time      `json:"finishedAt,omitempty"`
}

// TxKey builds the in-flight key for an action on an existing property, e.g. "buy-3".
func TxKey(kind TxKind, id uint64) string {
	return fmt.Sprintf("%s-%d", kind, id)
}

// IsDone reports whether the transaction left the pending state.
func (p *PendingTx) IsDone() bool {
	return p.State == TxConfirmed || p.State == TxFailed
}
