// Package devchaintest runs an in-process development chain for tests.
package devchaintest

import (
	"context"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/rpc"

	"drealestate/internal/devchain"
	"drealestate/internal/engine"
	"drealestate/pkg/quant"
)

// ContractAddress is where test chains serve the marketplace.
var ContractAddress = common.HexToAddress("0x5FbDB2315678afecb367f032d93F642f64180aa3")

// Chain is a running ledger behind a node.
type Chain struct {
	Ledger   *engine.Ledger
	Node     *devchain.Node
	Accounts []common.Address
}

// Options tweak the chain; the zero value gives three 100 ETH accounts and free gas.
type Options struct {
	Accounts int
	GasPrice *big.Int
}

// Start launches a chain that is torn down with the test.
func Start(t testing.TB, opts Options) *Chain {
	t.Helper()

	if opts.Accounts == 0 {
		opts.Accounts = 3
	}
	genesis, err := engine.GenesisAccounts("devchaintest", opts.Accounts, quant.MustWei("100"))
	if err != nil {
		t.Fatalf("genesis: %v", err)
	}

	ledger := engine.NewLedger(engine.Config{GasPrice: opts.GasPrice}, genesis, nil, nil)
	ctx, cancel := context.WithCancel(context.Background())
	go ledger.Run(ctx)

	node, err := devchain.NewNode(devchain.Config{ChainID: 1337, Contract: ContractAddress}, ledger)
	if err != nil {
		cancel()
		t.Fatalf("node: %v", err)
	}

	t.Cleanup(func() {
		node.Close()
		cancel()
	})

	return &Chain{Ledger: ledger, Node: node, Accounts: ledger.Accounts()}
}

// Dial opens an in-process RPC client, subscriptions included.
func (c *Chain) Dial(t testing.TB) *rpc.Client {
	t.Helper()
	client := rpc.DialInProc(c.Node.Server())
	t.Cleanup(client.Close)
	return client
}
