package devchain

import (
	"encoding/json"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/rpc"
)

// FilterCriteria is the argument of eth_getLogs and eth_subscribe("logs").
type FilterCriteria struct {
	FromBlock *rpc.BlockNumber
	ToBlock   *rpc.BlockNumber
	Addresses []common.Address
	Topics    [][]common.Hash // position-wise OR sets; an empty set matches anything
}

// UnmarshalJSON accepts the address as a string or a list, and each topic
// position as null, a hash or a list of hashes.
func (c *FilterCriteria) UnmarshalJSON(data []byte) error {
	var raw struct {
		FromBlock *rpc.BlockNumber  `json:"fromBlock"`
		ToBlock   *rpc.BlockNumber  `json:"toBlock"`
		Address   json.RawMessage   `json:"address"`
		Topics    []json.RawMessage `json:"topics"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	c.FromBlock = raw.FromBlock
	c.ToBlock = raw.ToBlock

	if len(raw.Address) > 0 && string(raw.Address) != "null" {
		var one common.Address
		if err := json.Unmarshal(raw.Address, &one); err == nil {
			c.Addresses = []common.Address{one}
		} else if err := json.Unmarshal(raw.Address, &c.Addresses); err != nil {
			return fmt.Errorf("invalid address filter: %w", err)
		}
	}

	c.Topics = make([][]common.Hash, len(raw.Topics))
	for i, t := range raw.Topics {
		if len(t) == 0 || string(t) == "null" {
			continue
		}
		var one common.Hash
		if err := json.Unmarshal(t, &one); err == nil {
			c.Topics[i] = []common.Hash{one}
			continue
		}
		var set []common.Hash
		if err := json.Unmarshal(t, &set); err != nil {
			return fmt.Errorf("invalid topic %d: %w", i, err)
		}
		c.Topics[i] = set
	}
	return nil
}

// Matches reports whether lg passes the address and topic filters.
func (c *FilterCriteria) Matches(lg *types.Log) bool {
	if len(c.Addresses) > 0 {
		found := false
		for _, a := range c.Addresses {
			if a == lg.Address {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}

	if len(c.Topics) > len(lg.Topics) {
		return false
	}
	for i, set := range c.Topics {
		if len(set) == 0 {
			continue
		}
		found := false
		for _, h := range set {
			if h == lg.Topics[i] {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

// blockRange resolves the from/to tags against head. Missing bounds and
// tags such as "latest" or "pending" resolve to head.
func (c *FilterCriteria) blockRange(head uint64) (uint64, uint64) {
	resolve := func(b *rpc.BlockNumber, def uint64) uint64 {
		if b == nil {
			return def
		}
		if *b == rpc.EarliestBlockNumber {
			return 0
		}
		if *b < 0 {
			return head
		}
		return uint64(*b)
	}
	return resolve(c.FromBlock, head), resolve(c.ToBlock, head)
}
