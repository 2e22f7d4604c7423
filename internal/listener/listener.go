// Package listener follows marketplace events over a websocket eth_subscribe.
package listener

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"drealestate/internal/contract"
	"drealestate/internal/event"
	"drealestate/internal/infra"
)

// subscribeID is the JSON-RPC id of the eth_subscribe request.
const subscribeID = 1

// LogFunc receives every decoded marketplace log, in arrival order.
type LogFunc func(ctx context.Context, lg event.Log)

// ReloadFunc rebuilds the caller's view after a (re)connect.
type ReloadFunc func(ctx context.Context) error

type rpcMessage struct {
	ID     *int            `json:"id,omitempty"`
	Method string          `json:"method,omitempty"`
	Result json.RawMessage `json:"result,omitempty"`
	Error  *rpcError       `json:"error,omitempty"`
	Params *struct {
		Subscription string          `json:"subscription"`
		Result       json.RawMessage `json:"result"`
	} `json:"params,omitempty"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// Worker subscribes to PropertyListed and PropertySold logs of one contract.
type Worker struct {
	base     *infra.WSWorker
	url      string
	contract common.Address
	onLog    LogFunc
	onReload ReloadFunc

	mu    sync.Mutex
	subID string
}

// NewWorker creates a listener for contract at the websocket url.
// onReload may be nil.
func NewWorker(url string, contractAddr common.Address, onLog LogFunc, onReload ReloadFunc) *Worker {
	w := &Worker{
		url:      url,
		contract: contractAddr,
		onLog:    onLog,
		onReload: onReload,
	}
	w.base = infra.NewWSWorker(w)
	return w
}

// Base exposes the connection worker for tuning before Connect.
func (w *Worker) Base() *infra.WSWorker { return w.base }

func (w *Worker) ID() string  { return "LISTENER" }
func (w *Worker) URL() string { return w.url }

// Connect starts the connection loop.
func (w *Worker) Connect(ctx context.Context) {
	w.base.Start(ctx)
}

// Disconnect stops the connection loop.
func (w *Worker) Disconnect() {
	w.base.Stop()
}

// State returns the connection state.
func (w *Worker) State() infra.ConnState { return w.base.State() }

// SubscriptionID returns the id of the active subscription, empty until acknowledged.
func (w *Worker) SubscriptionID() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.subID
}

// OnConnect subscribes, then reloads so that events missed while
// disconnected are reconciled.
func (w *Worker) OnConnect(ctx context.Context, base *infra.WSWorker) error {
	req := map[string]interface{}{
		"jsonrpc": "2.0",
		"id":      subscribeID,
		"method":  "eth_subscribe",
		"params": []interface{}{"logs", map[string]interface{}{
			"address": w.contract,
			"topics":  [][]common.Hash{{contract.TopicPropertyListed, contract.TopicPropertySold}},
		}},
	}
	if err := base.WriteJSON(req); err != nil {
		return err
	}

	if w.onReload != nil {
		go func() {
			if err := w.onReload(ctx); err != nil {
				slog.Warn("Reload after connect failed", slog.String("id", w.ID()), slog.Any("err", err))
			}
		}()
	}
	return nil
}

// OnMessage handles the subscription ack and log notifications.
func (w *Worker) OnMessage(ctx context.Context, msg []byte) {
	var m rpcMessage
	if err := json.Unmarshal(msg, &m); err != nil {
		slog.Warn("Malformed message", slog.String("id", w.ID()), slog.Any("err", err))
		return
	}

	switch {
	case m.ID != nil && *m.ID == subscribeID:
		if m.Error != nil {
			slog.Error("Log subscription rejected", slog.Int("code", m.Error.Code), slog.String("message", m.Error.Message))
			return
		}
		var id string
		if err := json.Unmarshal(m.Result, &id); err != nil {
			slog.Warn("Unexpected subscription result", slog.String("result", string(m.Result)))
			return
		}
		w.mu.Lock()
		w.subID = id
		w.mu.Unlock()
		slog.Info("📡 Subscribed to marketplace events", slog.String("subscription", id))

	case m.Method == "eth_subscription" && m.Params != nil:
		w.handleLog(ctx, m.Params.Subscription, m.Params.Result)
	}
}

func (w *Worker) handleLog(ctx context.Context, sub string, raw json.RawMessage) {
	if current := w.SubscriptionID(); current != "" && sub != current {
		return
	}

	var lg types.Log
	if err := json.Unmarshal(raw, &lg); err != nil {
		slog.Warn("Undecodable log", slog.Any("err", err))
		return
	}
	if lg.Removed || lg.Address != w.contract {
		return
	}

	decoded, err := contract.DecodeLog(lg)
	if err != nil {
		slog.Warn("Skipping log", slog.String("tx", lg.TxHash.Hex()), slog.Any("err", err))
		return
	}
	slog.Debug("Marketplace event", slog.String("type", decoded.Type.String()), slog.Uint64("property", decoded.PropertyID))
	w.onLog(ctx, decoded)
}

// OnDisconnect drops the subscription; the next connect subscribes again.
func (w *Worker) OnDisconnect(err error) {
	w.mu.Lock()
	w.subID = ""
	w.mu.Unlock()
	slog.Warn("Event listener disconnected", slog.Any("err", err))
}
