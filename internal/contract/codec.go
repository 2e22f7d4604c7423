package contract

import (
	"bytes"
	"errors"
	"fmt"
	"math"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"

	"drealestate/internal/domain"
	"drealestate/internal/event"
)

// Method names.
const (
	MethodListProperty     = "listProperty"
	MethodBuyProperty      = "buyProperty"
	MethodToggleForSale    = "toggleForSale"
	MethodUpdatePrice      = "updatePropertyPrice"
	MethodGetProperty      = "getProperty"
	MethodGetPropertyCount = "getPropertyCount"
	MethodIsOwner          = "isOwner"
)

var (
	ErrUnknownMethod = errors.New("unknown method selector")
	ErrUnknownTopic  = errors.New("unknown event topic")
)

var (
	parsed = mustParse(MarketplaceABI)

	// TopicPropertyListed is topic[0] of a PropertyListed log.
	TopicPropertyListed = parsed.Events["PropertyListed"].ID
	// TopicPropertySold is topic[0] of a PropertySold log.
	TopicPropertySold = parsed.Events["PropertySold"].ID

	// Error(string), the selector solidity prefixes revert data with.
	revertSelector = crypto.Keccak256([]byte("Error(string)"))[:4]
	stringArgs     = abi.Arguments{{Type: mustType("string")}}
)

func mustParse(s string) abi.ABI {
	a, err := abi.JSON(strings.NewReader(s))
	if err != nil {
		panic(fmt.Sprintf("marketplace abi: %v", err))
	}
	return a
}

func mustType(t string) abi.Type {
	typ, err := abi.NewType(t, "", nil)
	if err != nil {
		panic(err)
	}
	return typ
}

// ABI returns the parsed marketplace ABI.
func ABI() abi.ABI { return parsed }

// PackListProperty encodes a listProperty call.
func PackListProperty(l *domain.Listing) ([]byte, error) {
	return parsed.Pack(MethodListProperty,
		l.Name, l.Location, l.Description, l.ImageURL,
		l.Price, l.Size, l.Bedrooms, l.Bathrooms)
}

// PackBuyProperty encodes a buyProperty call.
func PackBuyProperty(id uint64) ([]byte, error) {
	return parsed.Pack(MethodBuyProperty, new(big.Int).SetUint64(id))
}

// PackToggleForSale encodes a toggleForSale call.
func PackToggleForSale(id uint64) ([]byte, error) {
	return parsed.Pack(MethodToggleForSale, new(big.Int).SetUint64(id))
}

// PackUpdatePrice encodes an updatePropertyPrice call.
func PackUpdatePrice(id uint64, price *big.Int) ([]byte, error) {
	return parsed.Pack(MethodUpdatePrice, new(big.Int).SetUint64(id), price)
}

// PackGetProperty encodes a getProperty call.
func PackGetProperty(id uint64) ([]byte, error) {
	return parsed.Pack(MethodGetProperty, new(big.Int).SetUint64(id))
}

// PackGetPropertyCount encodes a getPropertyCount call.
func PackGetPropertyCount() ([]byte, error) {
	return parsed.Pack(MethodGetPropertyCount)
}

// PackIsOwner encodes an isOwner call.
func PackIsOwner(id uint64) ([]byte, error) {
	return parsed.Pack(MethodIsOwner, new(big.Int).SetUint64(id))
}

// PackOutputs encodes the return values of method.
func PackOutputs(method string, values ...interface{}) ([]byte, error) {
	m, ok := parsed.Methods[method]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownMethod, method)
	}
	return m.Outputs.Pack(values...)
}

// PackProperty encodes p as getProperty's return values.
func PackProperty(p domain.Property) ([]byte, error) {
	size := p.Size
	if size == nil {
		size = new(big.Int)
	}
	return PackOutputs(MethodGetProperty,
		p.Name, p.Location, p.Description, p.ImageURL,
		p.Price, size, p.Bedrooms, p.Bathrooms, p.Owner, p.IsForSale)
}

// UnpackProperty decodes getProperty's return data for property id.
func UnpackProperty(id uint64, out []byte) (domain.Property, error) {
	vals, err := parsed.Unpack(MethodGetProperty, out)
	if err != nil {
		return domain.Property{}, fmt.Errorf("unpack getProperty: %w", err)
	}
	if len(vals) != 10 {
		return domain.Property{}, fmt.Errorf("unpack getProperty: got %d values", len(vals))
	}

	p := domain.Property{ID: id}
	var ok [10]bool
	p.Name, ok[0] = vals[0].(string)
	p.Location, ok[1] = vals[1].(string)
	p.Description, ok[2] = vals[2].(string)
	p.ImageURL, ok[3] = vals[3].(string)
	p.Price, ok[4] = vals[4].(*big.Int)
	p.Size, ok[5] = vals[5].(*big.Int)
	p.Bedrooms, ok[6] = vals[6].(uint8)
	p.Bathrooms, ok[7] = vals[7].(uint8)
	p.Owner, ok[8] = vals[8].(common.Address)
	p.IsForSale, ok[9] = vals[9].(bool)
	for i, good := range ok {
		if !good {
			return domain.Property{}, fmt.Errorf("unpack getProperty: field %d has type %T", i, vals[i])
		}
	}
	return p, nil
}

// UnpackUint decodes a single uint256 return value.
func UnpackUint(method string, out []byte) (*big.Int, error) {
	vals, err := parsed.Unpack(method, out)
	if err != nil {
		return nil, fmt.Errorf("unpack %s: %w", method, err)
	}
	if len(vals) != 1 {
		return nil, fmt.Errorf("unpack %s: got %d values", method, len(vals))
	}
	v, ok := vals[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("unpack %s: got %T", method, vals[0])
	}
	return v, nil
}

// UnpackBool decodes a single bool return value.
func UnpackBool(method string, out []byte) (bool, error) {
	vals, err := parsed.Unpack(method, out)
	if err != nil {
		return false, fmt.Errorf("unpack %s: %w", method, err)
	}
	if len(vals) != 1 {
		return false, fmt.Errorf("unpack %s: got %d values", method, len(vals))
	}
	v, ok := vals[0].(bool)
	if !ok {
		return false, fmt.Errorf("unpack %s: got %T", method, vals[0])
	}
	return v, nil
}

// Invocation is decoded calldata.
type Invocation struct {
	Method string
	Args   []interface{}
}

// DecodeInput resolves the method selector and decodes the arguments.
func DecodeInput(input []byte) (*Invocation, error) {
	if len(input) < 4 {
		return nil, fmt.Errorf("%w: calldata too short", ErrUnknownMethod)
	}
	m, err := parsed.MethodById(input[:4])
	if err != nil {
		return nil, fmt.Errorf("%w: %x", ErrUnknownMethod, input[:4])
	}
	args, err := m.Inputs.Unpack(input[4:])
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", m.Name, err)
	}
	return &Invocation{Method: m.Name, Args: args}, nil
}

// IsView reports whether the invocation only reads state.
func (inv *Invocation) IsView() bool {
	switch inv.Method {
	case MethodGetProperty, MethodGetPropertyCount, MethodIsOwner:
		return true
	}
	return false
}

// PropertyID returns the first argument as a property id. Ids beyond
// uint64 map to MaxUint64, which no ledger ever reaches.
func (inv *Invocation) PropertyID() uint64 {
	if len(inv.Args) == 0 {
		return math.MaxUint64
	}
	return toID(inv.Args[0])
}

func toID(v interface{}) uint64 {
	b, ok := v.(*big.Int)
	if !ok || !b.IsUint64() {
		return math.MaxUint64
	}
	return b.Uint64()
}

// Event turns a state-changing invocation into a ledger transaction.
func (inv *Invocation) Event(tx event.TxEnvelope) (event.Event, error) {
	switch inv.Method {
	case MethodListProperty:
		if len(inv.Args) != 8 {
			return nil, fmt.Errorf("%s: expected 8 args, got %d", inv.Method, len(inv.Args))
		}
		ev := &event.ListPropertyEvent{TxEnvelope: tx}
		var ok [8]bool
		ev.Name, ok[0] = inv.Args[0].(string)
		ev.Location, ok[1] = inv.Args[1].(string)
		ev.Description, ok[2] = inv.Args[2].(string)
		ev.ImageURL, ok[3] = inv.Args[3].(string)
		ev.Price, ok[4] = inv.Args[4].(*big.Int)
		ev.Size, ok[5] = inv.Args[5].(*big.Int)
		ev.Bedrooms, ok[6] = inv.Args[6].(uint8)
		ev.Bathrooms, ok[7] = inv.Args[7].(uint8)
		for i, good := range ok {
			if !good {
				return nil, fmt.Errorf("%s: arg %d has type %T", inv.Method, i, inv.Args[i])
			}
		}
		return ev, nil

	case MethodBuyProperty:
		return &event.BuyPropertyEvent{TxEnvelope: tx, PropertyID: inv.PropertyID()}, nil

	case MethodToggleForSale:
		return &event.ToggleForSaleEvent{TxEnvelope: tx, PropertyID: inv.PropertyID()}, nil

	case MethodUpdatePrice:
		if len(inv.Args) != 2 {
			return nil, fmt.Errorf("%s: expected 2 args, got %d", inv.Method, len(inv.Args))
		}
		price, ok := inv.Args[1].(*big.Int)
		if !ok {
			return nil, fmt.Errorf("%s: price has type %T", inv.Method, inv.Args[1])
		}
		return &event.UpdatePriceEvent{TxEnvelope: tx, PropertyID: inv.PropertyID(), Price: price}, nil
	}
	return nil, fmt.Errorf("%s is not a transaction", inv.Method)
}

// EncodeLog converts a ledger log into an Ethereum log emitted by contract.
func EncodeLog(lg event.Log, contract common.Address) (*types.Log, error) {
	id := common.BigToHash(new(big.Int).SetUint64(lg.PropertyID))
	out := &types.Log{
		Address:     contract,
		BlockNumber: lg.BlockNumber,
		TxHash:      lg.TxHash,
		Index:       lg.Index,
	}

	var err error
	switch lg.Type {
	case event.LogPropertyListed:
		out.Topics = []common.Hash{TopicPropertyListed, id, common.BytesToHash(lg.Owner.Bytes())}
		out.Data, err = parsed.Events["PropertyListed"].Inputs.NonIndexed().Pack(lg.Location, lg.Price)
	case event.LogPropertySold:
		out.Topics = []common.Hash{TopicPropertySold, id,
			common.BytesToHash(lg.OldOwner.Bytes()), common.BytesToHash(lg.NewOwner.Bytes())}
		out.Data, err = parsed.Events["PropertySold"].Inputs.NonIndexed().Pack(lg.Price)
	default:
		return nil, fmt.Errorf("encode log: unknown type %d", lg.Type)
	}
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", lg.Type, err)
	}
	return out, nil
}

// DecodeLog parses a marketplace log.
func DecodeLog(lg types.Log) (event.Log, error) {
	if len(lg.Topics) < 2 {
		return event.Log{}, fmt.Errorf("%w: %d topics", ErrUnknownTopic, len(lg.Topics))
	}

	out := event.Log{
		BlockNumber: lg.BlockNumber,
		TxHash:      lg.TxHash,
		Index:       lg.Index,
		PropertyID:  toID(lg.Topics[1].Big()),
	}

	switch lg.Topics[0] {
	case TopicPropertyListed:
		if len(lg.Topics) != 3 {
			return event.Log{}, fmt.Errorf("PropertyListed: expected 3 topics, got %d", len(lg.Topics))
		}
		vals, err := parsed.Unpack("PropertyListed", lg.Data)
		if err != nil {
			return event.Log{}, fmt.Errorf("unpack PropertyListed: %w", err)
		}
		if len(vals) != 2 {
			return event.Log{}, fmt.Errorf("unpack PropertyListed: got %d values", len(vals))
		}
		var okLoc, okPrice bool
		out.Type = event.LogPropertyListed
		out.Owner = common.BytesToAddress(lg.Topics[2].Bytes())
		out.Location, okLoc = vals[0].(string)
		out.Price, okPrice = vals[1].(*big.Int)
		if !okLoc || !okPrice || out.Price == nil {
			return event.Log{}, fmt.Errorf("unpack PropertyListed: fields have types %T, %T", vals[0], vals[1])
		}

	case TopicPropertySold:
		if len(lg.Topics) != 4 {
			return event.Log{}, fmt.Errorf("PropertySold: expected 4 topics, got %d", len(lg.Topics))
		}
		vals, err := parsed.Unpack("PropertySold", lg.Data)
		if err != nil {
			return event.Log{}, fmt.Errorf("unpack PropertySold: %w", err)
		}
		if len(vals) != 1 {
			return event.Log{}, fmt.Errorf("unpack PropertySold: got %d values", len(vals))
		}
		var ok bool
		out.Type = event.LogPropertySold
		out.OldOwner = common.BytesToAddress(lg.Topics[2].Bytes())
		out.NewOwner = common.BytesToAddress(lg.Topics[3].Bytes())
		out.Price, ok = vals[0].(*big.Int)
		if !ok || out.Price == nil {
			return event.Log{}, fmt.Errorf("unpack PropertySold: price has type %T", vals[0])
		}

	default:
		return event.Log{}, fmt.Errorf("%w: %s", ErrUnknownTopic, lg.Topics[0].Hex())
	}
	return out, nil
}

// EncodeRevert builds the return data of a require() failure.
// An empty reason reverts without data.
func EncodeRevert(reason string) []byte {
	if reason == "" {
		return nil
	}
	packed, err := stringArgs.Pack(reason)
	if err != nil {
		return nil
	}
	return append(append([]byte{}, revertSelector...), packed...)
}

// DecodeRevert extracts the reason from revert data.
func DecodeRevert(data []byte) (string, bool) {
	if len(data) == 0 {
		return "", true
	}
	if !bytes.HasPrefix(data, revertSelector) {
		return "", false
	}
	reason, err := abi.UnpackRevert(data)
	if err != nil {
		return "", false
	}
	return reason, true
}
