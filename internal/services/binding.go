package services

import (
	"math/big"
	"strings"

	"bridge/relayer/internal/errs"
	"bridge/relayer/internal/models"

	"github.com/cockroachdb/errors"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// BridgeEventsABI fixes the event layouts. Decoding uses these definitions
// rather than the deployed contract's ABI file.
const BridgeEventsABI = `[
	{"type":"event","name":"Deposit","anonymous":false,"inputs":[
		{"name":"token","type":"address","indexed":true},
		{"name":"recipient","type":"address","indexed":true},
		{"name":"amount","type":"uint256","indexed":false}]},
	{"type":"event","name":"Unwrap","anonymous":false,"inputs":[
		{"name":"underlying_token","type":"address","indexed":true},
		{"name":"wrapped_token","type":"address","indexed":true},
		{"name":"frm","type":"address","indexed":false},
		{"name":"to","type":"address","indexed":true},
		{"name":"amount","type":"uint256","indexed":false}]}
]`

// MirrorMethodsABI describes the wrap and withdraw callables.
const MirrorMethodsABI = `[
	{"type":"function","name":"wrap","stateMutability":"nonpayable","outputs":[],"inputs":[
		{"name":"_underlying_token","type":"address"},
		{"name":"_recipient","type":"address"},
		{"name":"_amount","type":"uint256"}]},
	{"type":"function","name":"withdraw","stateMutability":"nonpayable","outputs":[],"inputs":[
		{"name":"_token","type":"address"},
		{"name":"_recipient","type":"address"},
		{"name":"_amount","type":"uint256"}]}
]`

var bridgeEvents = mustParseABI(BridgeEventsABI)

func mustParseABI(def string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(def))
	if err != nil {
		panic(err)
	}
	return parsed
}

// Binding is a connector bound to one role's bridge contract.
type Binding struct {
	Endpoint  models.ContractEndpoint
	Connector Connector
}

func NewBinding(endpoint models.ContractEndpoint, conn Connector) *Binding {
	return &Binding{Endpoint: endpoint, Connector: conn}
}

func (b *Binding) Role() models.Role { return b.Endpoint.Role }
func (b *Binding) Address() common.Address { return b.Endpoint.Address }

// Topic is the topic-0 hash of the event kind.
func Topic(kind models.EventKind) (common.Hash, error) {
	ev, ok := bridgeEvents.Events[string(kind)]
	if !ok {
		return common.Hash{}, errors.Newf("unknown event kind %q", kind)
	}
	return ev.ID, nil
}

// Pack encodes the call for action using the contract's ABI.
func (b *Binding) Pack(action *models.MirrorAction) ([]byte, error) {
	if _, ok := b.Endpoint.ABI.Methods[string(action.Method)]; !ok {
		return nil, errs.Configuration(nil, "%s contract abi has no method %q", b.Role(), action.Method)
	}
	data, err := b.Endpoint.ABI.Pack(string(action.Method), action.Token, action.Recipient, action.Amount)
	if err != nil {
		return nil, errs.Configuration(err, "%s: pack %s", b.Role(), action.Method)
	}
	return data, nil
}

// DecodeEvent turns a log of the given kind into a BridgeEvent.
func (b *Binding) DecodeEvent(kind models.EventKind, l types.Log) (*models.BridgeEvent, error) {
	ev, ok := bridgeEvents.Events[string(kind)]
	if !ok {
		return nil, errors.Newf("unknown event kind %q", kind)
	}
	if len(l.Topics) == 0 || l.Topics[0] != ev.ID {
		return nil, errors.Newf("log %s:%d is not a %s event", l.TxHash.Hex(), l.Index, kind)
	}

	fields := make(map[string]any)
	if err := bridgeEvents.UnpackIntoMap(fields, ev.Name, l.Data); err != nil {
		return nil, errors.Wrapf(err, "unpack %s data at %s:%d", kind, l.TxHash.Hex(), l.Index)
	}
	var indexed abi.Arguments
	for _, in := range ev.Inputs {
		if in.Indexed {
			indexed = append(indexed, in)
		}
	}
	if err := abi.ParseTopicsIntoMap(fields, indexed, l.Topics[1:]); err != nil {
		return nil, errors.Wrapf(err, "unpack %s topics at %s:%d", kind, l.TxHash.Hex(), l.Index)
	}

	e := &models.BridgeEvent{
		Role:        b.Role(),
		Kind:        kind,
		BlockNumber: l.BlockNumber,
		TxHash:      l.TxHash,
		LogIndex:    l.Index,
	}
	var err error
	switch kind {
	case models.Deposit:
		if e.Token, err = addressField(fields, "token"); err != nil {
			return nil, err
		}
		if e.Recipient, err = addressField(fields, "recipient"); err != nil {
			return nil, err
		}
	case models.Unwrap:
		if e.Token, err = addressField(fields, "underlying_token"); err != nil {
			return nil, err
		}
		if e.WrappedToken, err = addressField(fields, "wrapped_token"); err != nil {
			return nil, err
		}
		if e.From, err = addressField(fields, "frm"); err != nil {
			return nil, err
		}
		if e.Recipient, err = addressField(fields, "to"); err != nil {
			return nil, err
		}
	}
	amount, ok := fields["amount"].(*big.Int)
	if !ok {
		return nil, errors.Newf("%s event %s: amount is %T", kind, e.ID(), fields["amount"])
	}
	e.Amount = amount
	return e, nil
}

func addressField(fields map[string]any, name string) (common.Address, error) {
	a, ok := fields[name].(common.Address)
	if !ok {
		return common.Address{}, errors.Newf("field %s is %T, want address", name, fields[name])
	}
	return a, nil
}
