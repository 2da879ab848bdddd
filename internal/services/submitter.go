package services

import (
	"context"
	"math/big"
	"sync"
	"time"

	"bridge/relayer/internal/errs"
	"bridge/relayer/internal/models"
	"bridge/relayer/internal/stores"
	"bridge/relayer/internal/utils/eth"

	"github.com/cockroachdb/errors"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	DefaultGasLimit       = uint64(200000)
	DefaultReceiptTimeout = 60 * time.Second
)

// OnSigned is called with the signed, not yet broadcast, submission. An error
// stops the submission before anything reaches the network.
type OnSigned func(models.SubmissionRecord) error

// Submitter turns mirror actions into signed transactions on one chain.
type Submitter struct {
	binding        *Binding
	signer         stores.Signer
	gasLimit       uint64
	receiptTimeout time.Duration

	mu      sync.Mutex
	chainID *big.Int
}

func NewSubmitter(b *Binding, signer stores.Signer, gasLimit uint64, receiptTimeout time.Duration) *Submitter {
	if gasLimit == 0 {
		gasLimit = DefaultGasLimit
	}
	if receiptTimeout <= 0 {
		receiptTimeout = DefaultReceiptTimeout
	}
	return &Submitter{binding: b, signer: signer, gasLimit: gasLimit, receiptTimeout: receiptTimeout}
}

func (s *Submitter) logger(action *models.MirrorAction) zerolog.Logger {
	return log.With().Str("role", string(s.binding.Role())).Str("event", action.EventID).Str("method", string(action.Method)).Logger()
}

// Submit broadcasts exactly one transaction for action and waits for its receipt.
func (s *Submitter) Submit(ctx context.Context, action *models.MirrorAction, onSigned OnSigned) models.SubmissionRecord {
	rec := models.SubmissionRecord{Action: action, Status: models.StatusFailedToSend}
	l := s.logger(action)

	if action.TargetRole != s.binding.Role() {
		rec.Err = errs.Configuration(nil, "action for %s submitted on %s", action.TargetRole, s.binding.Role())
		return rec
	}

	data, err := s.binding.Pack(action)
	if err != nil {
		rec.Err = err
		return rec
	}
	chainID, err := s.chain(ctx)
	if err != nil {
		rec.Err = err
		return rec
	}
	// nonce is read fresh for every submission
	nonce, err := s.binding.Connector.PendingNonce(ctx, s.signer.Address())
	if err != nil {
		rec.Err = err
		return rec
	}
	gasPrice, err := s.binding.Connector.GasPrice(ctx)
	if err != nil {
		rec.Err = err
		return rec
	}

	to := s.binding.Address()
	tx := types.NewTx(&types.LegacyTx{
		Nonce:    nonce,
		To:       &to,
		Value:    big.NewInt(0),
		Gas:      s.gasLimit,
		GasPrice: gasPrice,
		Data:     data,
	})
	signed, err := s.signer.SignTx(ctx, tx, chainID)
	if err != nil {
		rec.Err = errors.Wrap(err, "sign")
		return rec
	}
	raw, err := eth.TxToRawHex(signed)
	if err != nil {
		rec.Err = err
		return rec
	}

	rec.Nonce = nonce
	rec.TxHash = signed.Hash()
	rec.RawTx = raw
	rec.Status = models.StatusPending
	if onSigned != nil {
		if err := onSigned(rec); err != nil {
			rec.Status = models.StatusFailedToSend
			rec.Err = errors.Wrap(err, "record signed tx")
			return rec
		}
	}

	l.Info().Str("tx", rec.TxHash.Hex()).Uint64("nonce", nonce).Str("gas_price", gasPrice.String()).Msg("[Submitter] [Submit] broadcasting")
	if err := s.binding.Connector.SendSigned(ctx, signed); err != nil && !IsAlreadyKnown(err) {
		rec.Err = err
		if errors.Is(err, errs.ErrRPC) {
			// rejected outright, nothing reached the mempool
			rec.Status = models.StatusFailedToSend
			rec.Err = errs.Submission(err, "send %s", rec.TxHash.Hex())
		} else {
			rec.Status = models.StatusNotMined
		}
		return rec
	}

	return s.await(ctx, rec)
}

// Resume settles a submission whose transaction was signed by an earlier pass.
// The same signed transaction is rebroadcast; a fresh one is never built here.
func (s *Submitter) Resume(ctx context.Context, rec models.SubmissionRecord) models.SubmissionRecord {
	rec.Err = nil
	l := s.logger(rec.Action)

	r, err := s.binding.Connector.Receipt(ctx, rec.TxHash)
	if err != nil {
		rec.Status = models.StatusNotMined
		rec.Err = err
		return rec
	}
	if r != nil {
		return settle(rec, r)
	}

	if rec.RawTx == "" {
		rec.Status = models.StatusFailedToSend
		rec.Err = errs.Submission(errors.New("no signed transaction recorded"), "resume %s", rec.Action.EventID)
		return rec
	}
	tx, err := eth.RawHexToTx(rec.RawTx)
	if err != nil {
		rec.Status = models.StatusFailedToSend
		rec.Err = errs.Submission(err, "resume %s", rec.Action.EventID)
		return rec
	}

	l.Info().Str("tx", rec.TxHash.Hex()).Uint64("nonce", rec.Nonce).Msg("[Submitter] [Resume] rebroadcasting")
	if err := s.binding.Connector.SendSigned(ctx, tx); err != nil && !IsAlreadyKnown(err) {
		if IsNonceTooLow(err) {
			// the nonce is spent: either our tx mined meanwhile or another one took it
			r, rerr := s.binding.Connector.Receipt(ctx, rec.TxHash)
			if rerr == nil && r != nil {
				return settle(rec, r)
			}
			if rerr == nil {
				rec.Status = models.StatusFailedToSend
				rec.Err = errs.Submission(err, "tx %s superseded", rec.TxHash.Hex())
				return rec
			}
			err = rerr
		}
		rec.Status = models.StatusNotMined
		rec.Err = err
		return rec
	}

	rec.Status = models.StatusPending
	return s.await(ctx, rec)
}

// Landed looks up the receipt of a transaction signed by an earlier attempt
// whose broadcast was reported as failed. ok is false when it never mined.
func (s *Submitter) Landed(ctx context.Context, rec models.SubmissionRecord) (models.SubmissionRecord, bool, error) {
	if rec.RawTx == "" {
		return rec, false, nil
	}
	r, err := s.binding.Connector.Receipt(ctx, rec.TxHash)
	if err != nil || r == nil {
		return rec, false, err
	}
	rec.Err = nil
	return settle(rec, r), true, nil
}

func (s *Submitter) await(ctx context.Context, rec models.SubmissionRecord) models.SubmissionRecord {
	r, err := s.binding.Connector.WaitForReceipt(ctx, rec.TxHash, s.receiptTimeout)
	if err != nil {
		rec.Status = models.StatusNotMined
		rec.Err = err
		return rec
	}
	return settle(rec, r)
}

func settle(rec models.SubmissionRecord, r *models.Receipt) models.SubmissionRecord {
	if r.Status == models.ReceiptSuccess {
		rec.Status = models.StatusConfirmed
	} else {
		rec.Status = models.StatusReverted
		rec.Err = errors.Newf("tx %s reverted in block %d", rec.TxHash.Hex(), r.BlockNumber)
	}
	return rec
}

func (s *Submitter) chain(ctx context.Context) (*big.Int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.chainID != nil {
		return s.chainID, nil
	}
	id, err := s.binding.Connector.ChainID(ctx)
	if err != nil {
		return nil, err
	}
	s.chainID = id
	return id, nil
}
