package contract

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"

	"drealestate/internal/domain"
	"drealestate/internal/infra"
)

// DefaultGasLimit is attached to every state-changing transaction.
const DefaultGasLimit uint64 = 3_000_000

// Config configures a Client.
type Config struct {
	Address        common.Address
	GasLimit       uint64
	ReceiptTimeout time.Duration
	PollInterval   time.Duration
}

// Client talks to a deployed marketplace contract.
// Read-only methods use eth_call; state-changing methods are sent from an
// account unlocked on the node and wait for the mined receipt.
type Client struct {
	rpc     *rpc.Client
	eth     *ethclient.Client
	cfg     Config
	limiter *infra.RateLimiter
}

// NewClient wraps an RPC connection. limiter may be nil.
func NewClient(rc *rpc.Client, cfg Config, limiter *infra.RateLimiter) *Client {
	if cfg.GasLimit == 0 {
		cfg.GasLimit = DefaultGasLimit
	}
	if cfg.ReceiptTimeout <= 0 {
		cfg.ReceiptTimeout = 30 * time.Second
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 100 * time.Millisecond
	}
	return &Client{
		rpc:     rc,
		eth:     ethclient.NewClient(rc),
		cfg:     cfg,
		limiter: limiter,
	}
}

// Address returns the contract address.
func (c *Client) Address() common.Address { return c.cfg.Address }

// CheckDeployed fails with ErrContractNotDeployed when no code lives at the address.
func (c *Client) CheckDeployed(ctx context.Context) error {
	code, err := c.eth.CodeAt(ctx, c.cfg.Address, nil)
	if err != nil {
		return fmt.Errorf("get code: %w", err)
	}
	if len(code) == 0 {
		return fmt.Errorf("%w at %s", domain.ErrContractNotDeployed, c.cfg.Address.Hex())
	}
	return nil
}

// GetPropertyCount returns the number of listed properties.
func (c *Client) GetPropertyCount(ctx context.Context) (uint64, error) {
	data, err := PackGetPropertyCount()
	if err != nil {
		return 0, err
	}
	out, err := c.call(ctx, MethodGetPropertyCount, common.Address{}, data, nil)
	if err != nil {
		return 0, err
	}
	n, err := UnpackUint(MethodGetPropertyCount, out)
	if err != nil {
		return 0, err
	}
	if !n.IsUint64() {
		return 0, fmt.Errorf("property count %s overflows uint64", n)
	}
	return n.Uint64(), nil
}

// GetProperty fetches one property.
func (c *Client) GetProperty(ctx context.Context, id uint64) (domain.Property, error) {
	data, err := PackGetProperty(id)
	if err != nil {
		return domain.Property{}, err
	}
	out, err := c.call(ctx, MethodGetProperty, common.Address{}, data, nil)
	if err != nil {
		return domain.Property{}, err
	}
	return UnpackProperty(id, out)
}

// IsOwner asks the contract whether from owns property id.
func (c *Client) IsOwner(ctx context.Context, from common.Address, id uint64) (bool, error) {
	data, err := PackIsOwner(id)
	if err != nil {
		return false, err
	}
	out, err := c.call(ctx, MethodIsOwner, from, data, nil)
	if err != nil {
		return false, err
	}
	return UnpackBool(MethodIsOwner, out)
}

// ListProperty validates the form, dry-runs the call so a revert costs no
// gas, sends it and returns the id from the PropertyListed log.
func (c *Client) ListProperty(ctx context.Context, from common.Address, form domain.ListingForm) (uint64, error) {
	listing, err := form.Validate()
	if err != nil {
		return 0, err
	}
	if from == (common.Address{}) {
		return 0, domain.ErrNoAccount
	}

	data, err := PackListProperty(listing)
	if err != nil {
		return 0, fmt.Errorf("pack listProperty: %w", err)
	}

	if _, err := c.call(ctx, MethodListProperty, from, data, nil); err != nil {
		return 0, err
	}

	receipt, err := c.send(ctx, MethodListProperty, from, data, nil)
	if err != nil {
		return 0, err
	}

	for _, lg := range receipt.Logs {
		if lg.Address != c.cfg.Address || len(lg.Topics) == 0 || lg.Topics[0] != TopicPropertyListed {
			continue
		}
		decoded, err := DecodeLog(*lg)
		if err != nil {
			return 0, &domain.TxError{Op: MethodListProperty, Err: err}
		}
		return decoded.PropertyID, nil
	}
	return 0, &domain.TxError{Op: MethodListProperty, Err: domain.ErrUnknownListed}
}

// BuyProperty pays price for property id.
func (c *Client) BuyProperty(ctx context.Context, from common.Address, id uint64, price *big.Int) (*types.Receipt, error) {
	data, err := PackBuyProperty(id)
	if err != nil {
		return nil, err
	}
	return c.send(ctx, MethodBuyProperty, from, data, price)
}

// ToggleForSale flips the for-sale flag of property id.
func (c *Client) ToggleForSale(ctx context.Context, from common.Address, id uint64) (*types.Receipt, error) {
	data, err := PackToggleForSale(id)
	if err != nil {
		return nil, err
	}
	return c.send(ctx, MethodToggleForSale, from, data, nil)
}

// UpdatePropertyPrice sets a new price in wei.
func (c *Client) UpdatePropertyPrice(ctx context.Context, from common.Address, id uint64, price *big.Int) (*types.Receipt, error) {
	if price == nil || price.Sign() <= 0 {
		return nil, domain.NewValidationError("price", "Please enter a valid price greater than zero")
	}
	data, err := PackUpdatePrice(id, price)
	if err != nil {
		return nil, err
	}
	return c.send(ctx, MethodUpdatePrice, from, data, nil)
}

// SubscribeLogs streams marketplace logs over a websocket connection.
func (c *Client) SubscribeLogs(ctx context.Context, ch chan<- types.Log) (ethereum.Subscription, error) {
	q := ethereum.FilterQuery{
		Addresses: []common.Address{c.cfg.Address},
		Topics:    [][]common.Hash{{TopicPropertyListed, TopicPropertySold}},
	}
	return c.eth.SubscribeFilterLogs(ctx, q, ch)
}

func (c *Client) call(ctx context.Context, op string, from common.Address, data []byte, value *big.Int) ([]byte, error) {
	msg := ethereum.CallMsg{From: from, To: &c.cfg.Address, Data: data, Value: value}
	out, err := c.eth.CallContract(ctx, msg, nil)
	if err != nil {
		return nil, classify(op, err)
	}
	return out, nil
}

type sendArgs struct {
	From  common.Address `json:"from"`
	To    common.Address `json:"to"`
	Gas   hexutil.Uint64 `json:"gas"`
	Value *hexutil.Big   `json:"value,omitempty"`
	Data  hexutil.Bytes  `json:"data"`
}

func (c *Client) send(ctx context.Context, op string, from common.Address, data []byte, value *big.Int) (*types.Receipt, error) {
	if from == (common.Address{}) {
		return nil, domain.ErrNoAccount
	}
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, &domain.TxError{Op: op, Err: err}
		}
	}

	args := sendArgs{From: from, To: c.cfg.Address, Gas: hexutil.Uint64(c.cfg.GasLimit), Data: data}
	if value != nil && value.Sign() > 0 {
		args.Value = (*hexutil.Big)(value)
	}

	var hash common.Hash
	if err := c.rpc.CallContext(ctx, &hash, "eth_sendTransaction", args); err != nil {
		return nil, classify(op, err)
	}
	slog.Info("Transaction sent", slog.String("method", op), slog.String("hash", hash.Hex()), slog.String("from", from.Hex()))

	receipt, err := c.waitReceipt(ctx, hash)
	if err != nil {
		return nil, &domain.TxError{Op: op, Err: err}
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return nil, &domain.TxError{Op: op, Err: fmt.Errorf("transaction %s failed", hash.Hex())}
	}
	return receipt, nil
}

func (c *Client) waitReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.ReceiptTimeout)
	defer cancel()

	ticker := time.NewTicker(c.cfg.PollInterval)
	defer ticker.Stop()

	for {
		receipt, err := c.eth.TransactionReceipt(ctx, hash)
		if err == nil {
			return receipt, nil
		}
		if !errors.Is(err, ethereum.NotFound) {
			return nil, fmt.Errorf("get receipt: %w", err)
		}

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("waiting for receipt %s: %w", hash.Hex(), ctx.Err())
		case <-ticker.C:
		}
	}
}

// classify maps an RPC error to a RevertError when the node reports one,
// and to a TxError otherwise.
func classify(op string, err error) error {
	var de rpc.DataError
	if errors.As(err, &de) {
		if s, ok := de.ErrorData().(string); ok {
			if data, decErr := hexutil.Decode(s); decErr == nil {
				if reason, ok := DecodeRevert(data); ok {
					return &domain.RevertError{Reason: reason}
				}
			}
		}
	}

	const prefix = "execution reverted"
	if msg := err.Error(); strings.HasPrefix(msg, prefix) {
		return &domain.RevertError{Reason: strings.TrimPrefix(strings.TrimPrefix(msg, prefix), ": ")}
	}
	return &domain.TxError{Op: op, Err: err}
}
