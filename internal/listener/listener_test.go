package listener

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"drealestate/internal/contract"
	"drealestate/internal/devchain/devchaintest"
	"drealestate/internal/domain"
	"drealestate/internal/event"
	"drealestate/internal/infra"
	"drealestate/pkg/quant"
)

func collect() (LogFunc, chan event.Log) {
	ch := make(chan event.Log, 16)
	return func(_ context.Context, lg event.Log) { ch <- lg }, ch
}

func notification(t *testing.T, sub string, lg event.Log, addr common.Address) []byte {
	t.Helper()
	enc, err := contract.EncodeLog(lg, addr)
	require.NoError(t, err)
	raw, err := json.Marshal(enc)
	require.NoError(t, err)

	msg, err := json.Marshal(map[string]interface{}{
		"jsonrpc": "2.0",
		"method":  "eth_subscription",
		"params":  map[string]interface{}{"subscription": sub, "result": json.RawMessage(raw)},
	})
	require.NoError(t, err)
	return msg
}

func TestWorker_OnMessage(t *testing.T) {
	onLog, logs := collect()
	w := NewWorker("ws://unused", devchaintest.ContractAddress, onLog, nil)
	ctx := context.Background()

	w.OnMessage(ctx, []byte(`{"jsonrpc":"2.0","id":1,"result":"0xabc"}`))
	assert.Equal(t, "0xabc", w.SubscriptionID())

	sold := event.Log{
		Type: event.LogPropertySold, PropertyID: 4, Price: quant.MustWei("2"),
		OldOwner: common.HexToAddress("0x01"), NewOwner: common.HexToAddress("0x02"),
	}
	w.OnMessage(ctx, notification(t, "0xabc", sold, devchaintest.ContractAddress))

	select {
	case lg := <-logs:
		assert.Equal(t, event.LogPropertySold, lg.Type)
		assert.Equal(t, uint64(4), lg.PropertyID)
		assert.Equal(t, common.HexToAddress("0x02"), lg.NewOwner)
	default:
		t.Fatal("expected a log")
	}

	// Foreign subscription, foreign contract and garbage are ignored.
	w.OnMessage(ctx, notification(t, "0xother", sold, devchaintest.ContractAddress))
	w.OnMessage(ctx, notification(t, "0xabc", sold, common.HexToAddress("0xdead")))
	w.OnMessage(ctx, []byte(`not json`))
	w.OnMessage(ctx, []byte(`{"jsonrpc":"2.0","id":1,"error":{"code":-32601,"message":"nope"}}`))
	assert.Empty(t, logs)

	w.OnDisconnect(nil)
	assert.Empty(t, w.SubscriptionID())
}

func TestWorker_FollowsDevChain(t *testing.T) {
	chain := devchaintest.Start(t, devchaintest.Options{})
	srv := httptest.NewServer(chain.Node.Handler())
	defer srv.Close()

	var reloads int32
	onLog, logs := collect()
	w := NewWorker(strings.Replace(srv.URL, "http://", "ws://", 1), devchaintest.ContractAddress, onLog,
		func(context.Context) error {
			atomic.AddInt32(&reloads, 1)
			return nil
		})
	w.Base().Backoff = infra.Backoff{Base: 10 * time.Millisecond, Max: 50 * time.Millisecond}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	w.Connect(ctx)
	defer w.Disconnect()

	require.Eventually(t, func() bool { return w.SubscriptionID() != "" }, 3*time.Second, 10*time.Millisecond)
	assert.Equal(t, infra.ConnConnected, w.State())
	require.Eventually(t, func() bool { return atomic.LoadInt32(&reloads) == 1 }, time.Second, 10*time.Millisecond)

	client := contract.NewClient(chain.Dial(t), contract.Config{
		Address:      devchaintest.ContractAddress,
		PollInterval: 5 * time.Millisecond,
	}, nil)
	seller, buyer := chain.Accounts[0], chain.Accounts[1]

	id, err := client.ListProperty(ctx, seller, domain.ListingForm{
		Name: "Mill", Location: "Delft", Description: "Restored", Price: "1", Size: "80", Bedrooms: "1", Bathrooms: "1",
	})
	require.NoError(t, err)
	_, err = client.BuyProperty(ctx, buyer, id, quant.MustWei("1"))
	require.NoError(t, err)

	var got []event.Log
	for len(got) < 2 {
		select {
		case lg := <-logs:
			got = append(got, lg)
		case <-ctx.Done():
			t.Fatalf("received %d of 2 logs", len(got))
		}
	}

	assert.Equal(t, event.LogPropertyListed, got[0].Type)
	assert.Equal(t, "Delft", got[0].Location)
	assert.Equal(t, seller, got[0].Owner)
	assert.Equal(t, event.LogPropertySold, got[1].Type)
	assert.Equal(t, buyer, got[1].NewOwner)
}
