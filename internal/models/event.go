package models

import (
	"fmt"
	"math/big"

	"github.com/cockroachdb/errors"
	"github.com/ethereum/go-ethereum/common"
)

type EventKind string

const (
	Deposit EventKind = "Deposit"
	Unwrap  EventKind = "Unwrap"
)

type Method string

const (
	Wrap     Method = "wrap"
	Withdraw Method = "withdraw"
)

type BridgeEvent struct {
	Role         Role
	Kind         EventKind
	Token        common.Address // underlying token for Unwrap
	WrappedToken common.Address // Unwrap only
	From         common.Address // Unwrap only
	Recipient    common.Address
	Amount       *big.Int
	BlockNumber  uint64
	TxHash       common.Hash
	LogIndex     uint
}

func EventID(txHash common.Hash, logIndex uint) string {
	return fmt.Sprintf("%s:%d", txHash.Hex(), logIndex)
}

func (e *BridgeEvent) ID() string {
	return EventID(e.TxHash, e.LogIndex)
}

// Less orders events by on-chain position.
func (e *BridgeEvent) Less(o *BridgeEvent) bool {
	if e.BlockNumber != o.BlockNumber {
		return e.BlockNumber < o.BlockNumber
	}
	return e.LogIndex < o.LogIndex
}

type MirrorAction struct {
	TargetRole Role
	Method     Method
	Token      common.Address
	Recipient  common.Address
	Amount     *big.Int
	EventID    string
}

// NewMirrorAction derives the counter-chain call for an observed event:
// Deposit on source becomes wrap on destination, Unwrap on destination
// becomes withdraw of the underlying token on source.
func NewMirrorAction(e *BridgeEvent) (*MirrorAction, error) {
	var method Method
	switch {
	case e.Role == Source && e.Kind == Deposit:
		method = Wrap
	case e.Role == Destination && e.Kind == Unwrap:
		method = Withdraw
	default:
		return nil, errors.Newf("no mirror action for %s event on %s", e.Kind, e.Role)
	}
	if e.Amount == nil || e.Amount.Sign() < 0 {
		return nil, errors.Newf("event %s: invalid amount", e.ID())
	}
	return &MirrorAction{
		TargetRole: e.Role.Counterpart(),
		Method:     method,
		Token:      e.Token,
		Recipient:  e.Recipient,
		Amount:     new(big.Int).Set(e.Amount),
		EventID:    e.ID(),
	}, nil
}
