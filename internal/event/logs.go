package event

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// LogType identifies a contract-emitted event.
type LogType uint8

const (
	LogPropertyListed LogType = iota + 1
	LogPropertySold
)

func (t LogType) String() string {
	switch t {
	case LogPropertyListed:
		return "PropertyListed"
	case LogPropertySold:
		return "PropertySold"
	default:
		return "Unknown"
	}
}

// Log is a contract event emitted by an applied transaction.
// PropertyListed uses Owner; PropertySold uses OldOwner and NewOwner.
type Log struct {
	Type        LogType        `json:"type"`
	BlockNumber uint64         `json:"block"`
	TxHash      common.Hash    `json:"tx_hash"`
	Index       uint           `json:"index"`
	PropertyID  uint64         `json:"property_id"`
	Location    string         `json:"location,omitempty"`
	Price       *big.Int       `json:"price"`
	Owner       common.Address `json:"owner,omitempty"`
	OldOwner    common.Address `json:"old_owner,omitempty"`
	NewOwner    common.Address `json:"new_owner,omitempty"`
}

// Receipt is the outcome of a mined transaction.
type Receipt struct {
	TxHash      common.Hash    `json:"tx_hash"`
	BlockNumber uint64         `json:"block"`
	From        common.Address `json:"from"`
	Method      Type           `json:"method"`
	GasUsed     uint64         `json:"gas_used"`
	Ts          int64          `json:"ts"`
	Logs        []Log          `json:"logs"`
	// ReturnID is the property id the transaction created or touched.
	ReturnID uint64 `json:"return_id"`
}
