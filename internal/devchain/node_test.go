package devchain_test

import (
	"context"
	"encoding/json"
	"errors"
	"math/big"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"drealestate/internal/contract"
	"drealestate/internal/devchain"
	"drealestate/internal/devchain/devchaintest"
	"drealestate/internal/domain"
	"drealestate/pkg/quant"
)

type sendArgs struct {
	From     common.Address `json:"from"`
	To       common.Address `json:"to"`
	Gas      hexutil.Uint64 `json:"gas,omitempty"`
	GasPrice *hexutil.Big   `json:"gasPrice,omitempty"`
	Value    *hexutil.Big   `json:"value,omitempty"`
	Data     hexutil.Bytes  `json:"data"`
}

func listCalldata(t *testing.T, name, price string) []byte {
	t.Helper()
	data, err := contract.PackListProperty(&domain.Listing{
		Name:     name,
		Location: "Utrecht",
		Price:    quant.MustWei(price),
		Size:     big.NewInt(80),
		Bedrooms: 2, Bathrooms: 1,
	})
	require.NoError(t, err)
	return data
}

func send(t *testing.T, rc *rpc.Client, args sendArgs) common.Hash {
	t.Helper()
	var hash common.Hash
	require.NoError(t, rc.CallContext(context.Background(), &hash, "eth_sendTransaction", args))
	return hash
}

func TestNode_ChainInfo(t *testing.T) {
	chain := devchaintest.Start(t, devchaintest.Options{})
	rc := chain.Dial(t)
	ec := ethclient.NewClient(rc)
	ctx := context.Background()

	id, err := ec.ChainID(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1337), id.Int64())

	var version string
	require.NoError(t, rc.CallContext(ctx, &version, "net_version"))
	assert.Equal(t, "1337", version)

	var accounts []common.Address
	require.NoError(t, rc.CallContext(ctx, &accounts, "eth_accounts"))
	assert.Equal(t, chain.Accounts, accounts)

	bal, err := ec.BalanceAt(ctx, accounts[0], nil)
	require.NoError(t, err)
	assert.Equal(t, 0, bal.Cmp(quant.MustWei("100")))

	code, err := ec.CodeAt(ctx, devchaintest.ContractAddress, nil)
	require.NoError(t, err)
	assert.NotEmpty(t, code)

	code, err = ec.CodeAt(ctx, accounts[0], nil)
	require.NoError(t, err)
	assert.Empty(t, code)
}

func TestNode_SendTransactionAndReceipt(t *testing.T) {
	chain := devchaintest.Start(t, devchaintest.Options{})
	rc := chain.Dial(t)
	ec := ethclient.NewClient(rc)
	ctx := context.Background()

	hash := send(t, rc, sendArgs{From: chain.Accounts[0], To: devchaintest.ContractAddress, Data: listCalldata(t, "Houseboat", "1")})

	receipt, err := ec.TransactionReceipt(ctx, hash)
	require.NoError(t, err)
	assert.Equal(t, types.ReceiptStatusSuccessful, receipt.Status)
	assert.Equal(t, uint64(1), receipt.BlockNumber.Uint64())
	require.Len(t, receipt.Logs, 1)

	lg, err := contract.DecodeLog(*receipt.Logs[0])
	require.NoError(t, err)
	assert.Equal(t, uint64(0), lg.PropertyID)
	assert.Equal(t, chain.Accounts[0], lg.Owner)
	assert.Equal(t, "Utrecht", lg.Location)

	head, err := ec.BlockNumber(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), head)

	_, err = ec.TransactionReceipt(ctx, common.HexToHash("0x1234"))
	assert.True(t, errors.Is(err, ethereum.NotFound))
}

func TestNode_OversizedGasPriceRejected(t *testing.T) {
	chain := devchaintest.Start(t, devchaintest.Options{})
	rc := chain.Dial(t)
	ctx := context.Background()

	var hash common.Hash
	err := rc.CallContext(ctx, &hash, "eth_sendTransaction", sendArgs{
		From:     chain.Accounts[0],
		To:       devchaintest.ContractAddress,
		GasPrice: (*hexutil.Big)(new(big.Int).Lsh(big.NewInt(1), 250)),
		Data:     listCalldata(t, "Windmill", "1"),
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "insufficient funds")

	// The node keeps serving.
	hash = send(t, rc, sendArgs{From: chain.Accounts[0], To: devchaintest.ContractAddress, Data: listCalldata(t, "Windmill", "1")})
	assert.NotEqual(t, common.Hash{}, hash)

	head, err := ethclient.NewClient(rc).BlockNumber(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), head)
}

func TestNode_RevertCarriesReason(t *testing.T) {
	chain := devchaintest.Start(t, devchaintest.Options{})
	rc := chain.Dial(t)
	ctx := context.Background()

	data, err := contract.PackBuyProperty(9)
	require.NoError(t, err)

	var hash common.Hash
	err = rc.CallContext(ctx, &hash, "eth_sendTransaction", sendArgs{
		From: chain.Accounts[1], To: devchaintest.ContractAddress, Data: data, Value: (*hexutil.Big)(quant.MustWei("1")),
	})
	require.Error(t, err)

	var rpcErr rpc.Error
	require.True(t, errors.As(err, &rpcErr))
	assert.Equal(t, 3, rpcErr.ErrorCode())
	assert.Equal(t, "execution reverted: Property does not exist", err.Error())

	var dataErr rpc.DataError
	require.True(t, errors.As(err, &dataErr))
	raw, err := hexutil.Decode(dataErr.ErrorData().(string))
	require.NoError(t, err)
	reason, ok := contract.DecodeRevert(raw)
	assert.True(t, ok)
	assert.Equal(t, "Property does not exist", reason)

	assert.Equal(t, uint64(0), chain.Ledger.BlockNumber(), "reverted transactions are not mined")
}

func TestNode_CallViews(t *testing.T) {
	chain := devchaintest.Start(t, devchaintest.Options{})
	rc := chain.Dial(t)
	ec := ethclient.NewClient(rc)
	ctx := context.Background()
	to := devchaintest.ContractAddress

	send(t, rc, sendArgs{From: chain.Accounts[0], To: to, Data: listCalldata(t, "Mill", "2")})

	data, _ := contract.PackGetPropertyCount()
	out, err := ec.CallContract(ctx, ethereum.CallMsg{To: &to, Data: data}, nil)
	require.NoError(t, err)
	count, err := contract.UnpackUint(contract.MethodGetPropertyCount, out)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count.Int64())

	data, _ = contract.PackGetProperty(0)
	out, err = ec.CallContract(ctx, ethereum.CallMsg{To: &to, Data: data}, nil)
	require.NoError(t, err)
	p, err := contract.UnpackProperty(0, out)
	require.NoError(t, err)
	assert.Equal(t, "Mill", p.Name)
	assert.True(t, p.IsForSale)

	data, _ = contract.PackIsOwner(0)
	out, err = ec.CallContract(ctx, ethereum.CallMsg{From: chain.Accounts[1], To: &to, Data: data}, nil)
	require.NoError(t, err)
	owner, err := contract.UnpackBool(contract.MethodIsOwner, out)
	require.NoError(t, err)
	assert.False(t, owner)

	// A dry run of listProperty returns the id it would assign.
	out, err = ec.CallContract(ctx, ethereum.CallMsg{From: chain.Accounts[1], To: &to, Data: listCalldata(t, "Next", "1")}, nil)
	require.NoError(t, err)
	next, err := contract.UnpackUint(contract.MethodListProperty, out)
	require.NoError(t, err)
	assert.Equal(t, int64(1), next.Int64())
	assert.Equal(t, uint64(1), chain.Ledger.PropertyCount())

	gas, err := ec.EstimateGas(ctx, ethereum.CallMsg{From: chain.Accounts[1], To: &to, Data: listCalldata(t, "Next", "1")})
	require.NoError(t, err)
	assert.Greater(t, gas, uint64(21_000))
}

func TestNode_GetLogsAndSubscribe(t *testing.T) {
	chain := devchaintest.Start(t, devchaintest.Options{})
	rc := chain.Dial(t)
	ec := ethclient.NewClient(rc)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	to := devchaintest.ContractAddress

	q := ethereum.FilterQuery{
		Addresses: []common.Address{to},
		Topics:    [][]common.Hash{{contract.TopicPropertyListed, contract.TopicPropertySold}},
	}
	ch := make(chan types.Log, 4)
	sub, err := ec.SubscribeFilterLogs(ctx, q, ch)
	require.NoError(t, err)
	defer sub.Unsubscribe()

	send(t, rc, sendArgs{From: chain.Accounts[0], To: to, Data: listCalldata(t, "Dock", "1")})
	buy, _ := contract.PackBuyProperty(0)
	send(t, rc, sendArgs{From: chain.Accounts[1], To: to, Data: buy, Value: (*hexutil.Big)(quant.MustWei("1"))})

	var got []types.Log
	for len(got) < 2 {
		select {
		case lg := <-ch:
			got = append(got, lg)
		case err := <-sub.Err():
			t.Fatalf("subscription failed: %v", err)
		case <-ctx.Done():
			t.Fatal("timed out waiting for logs")
		}
	}
	assert.Equal(t, contract.TopicPropertyListed, got[0].Topics[0])
	assert.Equal(t, contract.TopicPropertySold, got[1].Topics[0])

	logs, err := ec.FilterLogs(ctx, q)
	require.NoError(t, err)
	assert.Len(t, logs, 2)

	soldOnly := ethereum.FilterQuery{Addresses: []common.Address{to}, Topics: [][]common.Hash{{contract.TopicPropertySold}}}
	logs, err = ec.FilterLogs(ctx, soldOnly)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, uint64(2), logs[0].BlockNumber)
}

func TestNode_HTTPAndWebsocket(t *testing.T) {
	chain := devchaintest.Start(t, devchaintest.Options{})
	srv := httptest.NewServer(chain.Node.Handler())
	defer srv.Close()
	ctx := context.Background()

	httpClient, err := rpc.DialContext(ctx, srv.URL)
	require.NoError(t, err)
	defer httpClient.Close()

	var head hexutil.Uint64
	require.NoError(t, httpClient.CallContext(ctx, &head, "eth_blockNumber"))
	assert.Equal(t, hexutil.Uint64(0), head)

	wsClient, err := rpc.DialContext(ctx, "ws"+strings.TrimPrefix(srv.URL, "http"))
	require.NoError(t, err)
	defer wsClient.Close()

	var id hexutil.Uint64
	require.NoError(t, wsClient.CallContext(ctx, &id, "eth_chainId"))
	assert.Equal(t, hexutil.Uint64(1337), id)
}

func TestFilterCriteria_Unmarshal(t *testing.T) {
	listed := contract.TopicPropertyListed.Hex()
	sold := contract.TopicPropertySold.Hex()
	addr := devchaintest.ContractAddress.Hex()

	var single devchain.FilterCriteria
	require.NoError(t, json.Unmarshal([]byte(`{"address":"`+addr+`","topics":[["`+listed+`","`+sold+`"]]}`), &single))
	assert.Equal(t, []common.Address{devchaintest.ContractAddress}, single.Addresses)
	require.Len(t, single.Topics, 1)
	assert.Len(t, single.Topics[0], 2)

	var mixed devchain.FilterCriteria
	require.NoError(t, json.Unmarshal([]byte(`{"address":["`+addr+`"],"topics":[null,"`+listed+`"],"fromBlock":"0x1","toBlock":"latest"}`), &mixed))
	require.Len(t, mixed.Topics, 2)
	assert.Empty(t, mixed.Topics[0])
	assert.Equal(t, contract.TopicPropertyListed, mixed.Topics[1][0])
	require.NotNil(t, mixed.FromBlock)
	assert.Equal(t, rpc.BlockNumber(1), *mixed.FromBlock)

	lg := &types.Log{Address: devchaintest.ContractAddress, Topics: []common.Hash{contract.TopicPropertySold, {}}}
	assert.True(t, single.Matches(lg))
	assert.False(t, mixed.Matches(lg))
}
