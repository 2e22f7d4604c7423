package devchain

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strconv"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/rpc"

	"drealestate/internal/contract"
	"drealestate/internal/domain"
	"drealestate/internal/engine"
	"drealestate/internal/event"
)

// gasView is what estimateGas reports for read-only calls.
const gasView uint64 = 30_000

// revertError is returned as JSON-RPC error code 3 with the ABI-encoded
// Error(string) payload, like geth and Ganache.
type revertError struct {
	reason string
}

func (e *revertError) Error() string {
	if e.reason == "" {
		return "execution reverted"
	}
	return "execution reverted: " + e.reason
}

func (e *revertError) ErrorCode() int { return 3 }

func (e *revertError) ErrorData() interface{} {
	if e.reason == "" {
		return nil
	}
	return hexutil.Encode(contract.EncodeRevert(e.reason))
}

func toRPCError(err error) error {
	if reason, ok := domain.IsRevert(err); ok {
		return &revertError{reason: reason}
	}
	return err
}

// TransactionArgs are the arguments of eth_call, eth_estimateGas and eth_sendTransaction.
type TransactionArgs struct {
	From     *common.Address `json:"from"`
	To       *common.Address `json:"to"`
	Gas      *hexutil.Uint64 `json:"gas"`
	GasPrice *hexutil.Big    `json:"gasPrice"`
	Value    *hexutil.Big    `json:"value"`
	Data     *hexutil.Bytes  `json:"data"`
	Input    *hexutil.Bytes  `json:"input"`
}

func (a *TransactionArgs) data() []byte {
	if a.Input != nil {
		return *a.Input
	}
	if a.Data != nil {
		return *a.Data
	}
	return nil
}

func (a *TransactionArgs) envelope() event.TxEnvelope {
	var tx event.TxEnvelope
	if a.From != nil {
		tx.From = *a.From
	}
	if a.Gas != nil {
		tx.Gas = uint64(*a.Gas)
	}
	if a.GasPrice != nil {
		tx.GasPrice = a.GasPrice.ToInt()
	}
	if a.Value != nil {
		tx.Value = a.Value.ToInt()
	}
	return tx
}

type ethAPI struct {
	n *Node
}

func (api *ethAPI) ChainId() hexutil.Uint64 {
	return hexutil.Uint64(api.n.cfg.ChainID)
}

func (api *ethAPI) Accounts() []common.Address {
	return api.n.ledger.Accounts()
}

func (api *ethAPI) BlockNumber() hexutil.Uint64 {
	return hexutil.Uint64(api.n.ledger.BlockNumber())
}

func (api *ethAPI) GasPrice() *hexutil.Big {
	return (*hexutil.Big)(api.n.ledger.GasPrice())
}

func (api *ethAPI) GetBalance(addr common.Address, _ *rpc.BlockNumberOrHash) *hexutil.Big {
	return (*hexutil.Big)(api.n.ledger.Balance(addr))
}

func (api *ethAPI) GetTransactionCount(addr common.Address, _ *rpc.BlockNumberOrHash) hexutil.Uint64 {
	return hexutil.Uint64(api.n.ledger.Nonce(addr))
}

func (api *ethAPI) GetCode(addr common.Address, _ *rpc.BlockNumberOrHash) hexutil.Bytes {
	if addr == api.n.cfg.Contract {
		return MarketplaceCode
	}
	return hexutil.Bytes{}
}

// decode resolves calldata sent to the marketplace. A call to any other
// address is reported with ok=false and behaves like a call to an account.
func (api *ethAPI) decode(args TransactionArgs) (*contract.Invocation, bool, error) {
	if args.To == nil || *args.To != api.n.cfg.Contract {
		return nil, false, nil
	}
	inv, err := contract.DecodeInput(args.data())
	if err != nil {
		// No fallback function: unknown selectors revert without a reason.
		return nil, true, &revertError{}
	}
	return inv, true, nil
}

func (api *ethAPI) Call(args TransactionArgs, _ *rpc.BlockNumberOrHash) (hexutil.Bytes, error) {
	inv, ok, err := api.decode(args)
	if err != nil || !ok {
		return hexutil.Bytes{}, err
	}

	if inv.IsView() {
		return api.view(args, inv)
	}

	ev, err := inv.Event(args.envelope())
	if err != nil {
		return nil, &revertError{}
	}
	id, err := api.n.ledger.Call(ev)
	if err != nil {
		return nil, toRPCError(err)
	}
	if inv.Method == contract.MethodListProperty {
		return contract.PackOutputs(inv.Method, new(big.Int).SetUint64(id))
	}
	return hexutil.Bytes{}, nil
}

func (api *ethAPI) view(args TransactionArgs, inv *contract.Invocation) (hexutil.Bytes, error) {
	ledger := api.n.ledger

	switch inv.Method {
	case contract.MethodGetPropertyCount:
		return contract.PackOutputs(inv.Method, new(big.Int).SetUint64(ledger.PropertyCount()))

	case contract.MethodGetProperty:
		p, err := ledger.Property(inv.PropertyID())
		if err != nil {
			return nil, toRPCError(err)
		}
		return contract.PackProperty(p)

	case contract.MethodIsOwner:
		var from common.Address
		if args.From != nil {
			from = *args.From
		}
		owner, err := ledger.IsOwner(from, inv.PropertyID())
		if err != nil {
			return nil, toRPCError(err)
		}
		return contract.PackOutputs(inv.Method, owner)
	}
	return nil, fmt.Errorf("unsupported view %s", inv.Method)
}

func (api *ethAPI) EstimateGas(args TransactionArgs, _ *rpc.BlockNumberOrHash) (hexutil.Uint64, error) {
	inv, ok, err := api.decode(args)
	if err != nil {
		return 0, err
	}
	if !ok {
		return hexutil.Uint64(engine.GasTransfer), nil
	}
	if inv.IsView() {
		return hexutil.Uint64(gasView), nil
	}

	ev, err := inv.Event(args.envelope())
	if err != nil {
		return 0, &revertError{}
	}
	gas, err := api.n.ledger.EstimateGas(ev)
	if err != nil {
		return 0, toRPCError(err)
	}
	return hexutil.Uint64(gas), nil
}

func (api *ethAPI) SendTransaction(ctx context.Context, args TransactionArgs) (common.Hash, error) {
	if args.From == nil || !api.n.ledger.HasAccount(*args.From) {
		return common.Hash{}, errors.New("sender account not recognized")
	}

	inv, ok, err := api.decode(args)
	if err != nil {
		return common.Hash{}, err
	}
	if !ok {
		return common.Hash{}, errors.New("only marketplace transactions are supported")
	}
	if inv.IsView() {
		return common.Hash{}, fmt.Errorf("%s is a view method, use eth_call", inv.Method)
	}

	ev, err := inv.Event(args.envelope())
	if err != nil {
		return common.Hash{}, &revertError{}
	}
	rec, err := api.n.ledger.Submit(ctx, ev)
	if err != nil {
		return common.Hash{}, toRPCError(err)
	}
	return rec.TxHash, nil
}

// GetTransactionReceipt returns nil for unknown hashes, which clients read as "not yet mined".
func (api *ethAPI) GetTransactionReceipt(hash common.Hash) (*types.Receipt, error) {
	rec, ok := api.n.ledger.Receipt(hash)
	if !ok {
		return nil, nil
	}
	return api.n.toReceipt(rec)
}

func (api *ethAPI) GetLogs(crit FilterCriteria) ([]*types.Log, error) {
	from, to := crit.blockRange(api.n.ledger.BlockNumber())
	if from > to {
		return []*types.Log{}, nil
	}

	out := []*types.Log{}
	for _, lg := range api.n.ledger.Logs(from, to) {
		enc, err := api.n.toLog(lg)
		if err != nil {
			return nil, err
		}
		if crit.Matches(enc) {
			out = append(out, enc)
		}
	}
	return out, nil
}

// Logs backs eth_subscribe("logs", crit).
func (api *ethAPI) Logs(ctx context.Context, crit FilterCriteria) (*rpc.Subscription, error) {
	notifier, supported := rpc.NotifierFromContext(ctx)
	if !supported {
		return &rpc.Subscription{}, rpc.ErrNotificationsUnsupported
	}

	sub := notifier.CreateSubscription()
	logs, cancel := api.n.ledger.SubscribeLogs(256)

	go func() {
		defer cancel()
		for {
			select {
			case lg, ok := <-logs:
				if !ok {
					return
				}
				enc, err := api.n.toLog(lg)
				if err != nil || !crit.Matches(enc) {
					continue
				}
				if err := notifier.Notify(sub.ID, enc); err != nil {
					return
				}
			case <-sub.Err():
				return
			}
		}
	}()

	return sub, nil
}

func (n *Node) toLog(lg event.Log) (*types.Log, error) {
	enc, err := contract.EncodeLog(lg, n.cfg.Contract)
	if err != nil {
		return nil, err
	}
	enc.BlockHash = BlockHash(lg.BlockNumber)
	return enc, nil
}

func (n *Node) toReceipt(rec *event.Receipt) (*types.Receipt, error) {
	r := &types.Receipt{
		Type:              types.LegacyTxType,
		Status:            types.ReceiptStatusSuccessful,
		CumulativeGasUsed: rec.GasUsed,
		TxHash:            rec.TxHash,
		GasUsed:           rec.GasUsed,
		EffectiveGasPrice: n.ledger.GasPrice(),
		BlockHash:         BlockHash(rec.BlockNumber),
		BlockNumber:       new(big.Int).SetUint64(rec.BlockNumber),
		Logs:              []*types.Log{},
	}
	for _, lg := range rec.Logs {
		enc, err := n.toLog(lg)
		if err != nil {
			return nil, err
		}
		r.Logs = append(r.Logs, enc)
	}
	r.Bloom = types.CreateBloom(types.Receipts{r})
	return r, nil
}

type netAPI struct {
	chainID uint64
}

func (api *netAPI) Version() string {
	return strconv.FormatUint(api.chainID, 10)
}

func (api *netAPI) Listening() bool { return true }

type web3API struct{}

func (web3API) ClientVersion() string { return "drealestate-devchain/v1" }
