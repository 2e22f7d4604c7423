package devchain

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/gorilla/websocket"

	"drealestate/internal/engine"
)

// Config configures a Node.
type Config struct {
	ChainID  uint64
	Contract common.Address // address the marketplace is served at
}

// Node serves a ledger over Ethereum JSON-RPC.
// Every account is unlocked; eth_sendTransaction signs on the node's behalf.
type Node struct {
	cfg    Config
	ledger *engine.Ledger
	server *rpc.Server
}

// NewNode registers the eth, net and web3 namespaces for ledger.
func NewNode(cfg Config, ledger *engine.Ledger) (*Node, error) {
	n := &Node{cfg: cfg, ledger: ledger, server: rpc.NewServer()}

	apis := map[string]interface{}{
		"eth":  &ethAPI{n: n},
		"net":  &netAPI{chainID: cfg.ChainID},
		"web3": &web3API{},
	}
	for name, api := range apis {
		if err := n.server.RegisterName(name, api); err != nil {
			return nil, fmt.Errorf("register %s: %w", name, err)
		}
	}
	return n, nil
}

// Server exposes the RPC server, e.g. for rpc.DialInProc.
func (n *Node) Server() *rpc.Server { return n.server }

// Handler serves JSON-RPC over HTTP and websocket on the same address,
// the way Ganache does on :7545.
func (n *Node) Handler() http.Handler {
	ws := n.server.WebsocketHandler([]string{"*"})
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if websocket.IsWebSocketUpgrade(r) {
			ws.ServeHTTP(w, r)
			return
		}
		n.server.ServeHTTP(w, r)
	})
}

// ListenAndServe serves Handler on addr until ctx is cancelled.
func (n *Node) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           n.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()
	slog.Info("✅ Dev chain listening", slog.String("addr", addr), slog.Uint64("chain_id", n.cfg.ChainID))

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		n.Close()
		return srv.Shutdown(shutdownCtx)
	}
}

// Close stops the RPC server and all subscriptions.
func (n *Node) Close() {
	n.server.Stop()
	slog.Info("Dev chain RPC stopped")
}

// MarketplaceCode is the runtime code reported at the contract address.
// Only its presence matters to clients probing with eth_getCode.
var MarketplaceCode = crypto.Keccak256([]byte("RealEstateMarketplace"))

// BlockHash derives a stable hash for block number n.
func BlockHash(n uint64) common.Hash {
	return crypto.Keccak256Hash(binary.BigEndian.AppendUint64([]byte("block"), n))
}
