package models

import (
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

type Status string

const (
	StatusPending      Status = "PENDING"
	StatusConfirmed    Status = "CONFIRMED"
	StatusReverted     Status = "REVERTED"
	StatusNotMined     Status = "NOT_MINED"
	StatusFailedToSend Status = "FAILED_TO_SEND"
	StatusFailed       Status = "FAILED"    // reverts exhausted, no more resubmission
	StatusAbandoned    Status = "ABANDONED" // operator gave up, releases the cursor
)

// ParseStatus accepts any case and "-" for "_", e.g. "not-mined".
func ParseStatus(s string) (Status, bool) {
	switch st := Status(strings.ToUpper(strings.ReplaceAll(s, "-", "_"))); st {
	case StatusPending, StatusConfirmed, StatusReverted, StatusNotMined,
		StatusFailedToSend, StatusFailed, StatusAbandoned:
		return st, true
	}
	return "", false
}

// Resolved statuses no longer hold the scan cursor.
func (s Status) Resolved() bool {
	return s == StatusConfirmed || s == StatusAbandoned
}

// InFlight statuses have a signed transaction whose fate is unknown.
func (s Status) InFlight() bool {
	return s == StatusPending || s == StatusNotMined
}

// EventRecord is one entry of the processed-event log.
type EventRecord struct {
	ID           string         `json:"id"` // txHash:logIndex
	Role         Role           `json:"role"`
	Kind         EventKind      `json:"kind"`
	BlockNumber  uint64         `json:"block_number"`
	TxHash       string         `json:"tx_hash"`
	LogIndex     uint           `json:"log_index"`
	TargetRole   Role           `json:"target_role"`
	Method       Method         `json:"method"`
	Token        common.Address `json:"token"`
	Recipient    common.Address `json:"recipient"`
	Amount       *big.Int       `json:"amount"`
	Status       Status         `json:"status"`
	Nonce        uint64         `json:"nonce"`
	MirrorTxHash string         `json:"mirror_tx_hash"`
	RawTx        string         `json:"raw_tx"`
	Attempts     int            `json:"attempts"`
	Reverts      int            `json:"reverts"`
	Error        string         `json:"error"`
	UpdatedAt    time.Time      `json:"updated_at"`
	CreatedAt    time.Time      `json:"created_at"`
}

func NewEventRecord(e *BridgeEvent, a *MirrorAction, now time.Time) *EventRecord {
	return &EventRecord{
		ID:          e.ID(),
		Role:        e.Role,
		Kind:        e.Kind,
		BlockNumber: e.BlockNumber,
		TxHash:      e.TxHash.Hex(),
		LogIndex:    e.LogIndex,
		TargetRole:  a.TargetRole,
		Method:      a.Method,
		Token:       a.Token,
		Recipient:   a.Recipient,
		Amount:      new(big.Int).Set(a.Amount),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

func (r *EventRecord) Action() *MirrorAction {
	amount := new(big.Int)
	if r.Amount != nil {
		amount.Set(r.Amount)
	}
	return &MirrorAction{
		TargetRole: r.TargetRole,
		Method:     r.Method,
		Token:      r.Token,
		Recipient:  r.Recipient,
		Amount:     amount,
		EventID:    r.ID,
	}
}

func (r *EventRecord) Submission() SubmissionRecord {
	return SubmissionRecord{
		Action: r.Action(),
		Nonce:  r.Nonce,
		TxHash: common.HexToHash(r.MirrorTxHash),
		RawTx:  r.RawTx,
		Status: r.Status,
	}
}

// SubmissionRecord tracks one broadcast attempt within a pass.
type SubmissionRecord struct {
	Action *MirrorAction
	Nonce  uint64
	TxHash common.Hash
	RawTx  string
	Status Status
	Err    error
}

type ReceiptStatus uint8

const (
	ReceiptSuccess ReceiptStatus = iota
	ReceiptReverted
)

type Receipt struct {
	TxHash      common.Hash
	Status      ReceiptStatus
	BlockNumber uint64
}

// Phase of a relay pass.
type Phase string

const (
	PhaseScanning   Phase = "scanning"
	PhaseFiltering  Phase = "filtering"
	PhaseSubmitting Phase = "submitting"
	PhaseAdvancing  Phase = "advancing"
	PhaseIdle       Phase = "idle"
)
