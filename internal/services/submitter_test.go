package services

import (
	"context"
	"math/big"
	"testing"
	"time"

	"bridge/relayer/internal/errs"
	"bridge/relayer/internal/mocks"
	"bridge/relayer/internal/models"
	"bridge/relayer/internal/stores"

	"github.com/cockroachdb/errors"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSigner(t *testing.T) *stores.KeySigner {
	t.Helper()
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	return stores.NewKeySigner(key)
}

func wrapAction() *models.MirrorAction {
	return &models.MirrorAction{
		TargetRole: models.Destination,
		Method:     models.Wrap,
		Token:      tokenA,
		Recipient:  alice,
		Amount:     big.NewInt(1000),
		EventID:    models.EventID(txHash(1), 0),
	}
}

func newTestSubmitter(t *testing.T, conn *mocks.MockConnector) (*Submitter, *stores.KeySigner) {
	signer := newTestSigner(t)
	return NewSubmitter(newTestBinding(t, models.Destination, conn), signer, 0, time.Second), signer
}

func TestSubmitter_Confirmed(t *testing.T) {
	conn := mocks.NewMockConnector(50)
	conn.Nonce = 4
	sub, signer := newTestSubmitter(t, conn)

	var signed []models.SubmissionRecord
	rec := sub.Submit(context.Background(), wrapAction(), func(r models.SubmissionRecord) error {
		assert.Equal(t, 0, conn.SentCount(), "signed record must be handed out before broadcast")
		signed = append(signed, r)
		return nil
	})

	require.NoError(t, rec.Err)
	assert.Equal(t, models.StatusConfirmed, rec.Status)
	assert.Equal(t, uint64(4), rec.Nonce)
	require.Len(t, signed, 1)
	assert.Equal(t, models.StatusPending, signed[0].Status)
	assert.Equal(t, rec.TxHash, signed[0].TxHash)
	assert.NotEmpty(t, signed[0].RawTx)

	require.Equal(t, 1, conn.SentCount())
	tx := conn.Sent[0]
	assert.Equal(t, DefaultGasLimit, tx.Gas())
	assert.Equal(t, destContract, *tx.To())
	assert.Equal(t, 0, conn.Price.Cmp(tx.GasPrice()))
	from, err := types.Sender(types.LatestSignerForChainID(conn.ChainId), tx)
	require.NoError(t, err)
	assert.Equal(t, signer.Address(), from)
}

func TestSubmitter_Reverted(t *testing.T) {
	conn := mocks.NewMockConnector(50)
	conn.Outcome = func(*types.Transaction) (models.ReceiptStatus, bool) { return models.ReceiptReverted, true }
	sub, _ := newTestSubmitter(t, conn)

	rec := sub.Submit(context.Background(), wrapAction(), nil)
	assert.Equal(t, models.StatusReverted, rec.Status)
	assert.Error(t, rec.Err)
}

func TestSubmitter_NotMined(t *testing.T) {
	conn := mocks.NewMockConnector(50)
	conn.Outcome = func(*types.Transaction) (models.ReceiptStatus, bool) { return 0, false }
	sub, _ := newTestSubmitter(t, conn)

	rec := sub.Submit(context.Background(), wrapAction(), nil)
	assert.Equal(t, models.StatusNotMined, rec.Status)
	assert.True(t, errors.Is(rec.Err, errs.ErrTimeout))
	assert.Equal(t, 1, conn.SentCount())
}

func TestSubmitter_Rejected(t *testing.T) {
	conn := mocks.NewMockConnector(50)
	conn.SendErr = func(*types.Transaction) error {
		return errs.RPC(errors.New("insufficient funds for gas * price + value"), "eth_sendRawTransaction")
	}
	sub, _ := newTestSubmitter(t, conn)

	rec := sub.Submit(context.Background(), wrapAction(), nil)
	assert.Equal(t, models.StatusFailedToSend, rec.Status)
	assert.True(t, errors.Is(rec.Err, errs.ErrSubmission))
}

func TestSubmitter_AmbiguousSend(t *testing.T) {
	conn := mocks.NewMockConnector(50)
	conn.SendErr = func(*types.Transaction) error {
		return errs.Connectivity(errors.New("EOF"), "eth_sendRawTransaction")
	}
	sub, _ := newTestSubmitter(t, conn)

	rec := sub.Submit(context.Background(), wrapAction(), nil)
	assert.Equal(t, models.StatusNotMined, rec.Status)
	assert.NotEmpty(t, rec.RawTx)
}

func TestSubmitter_OnSignedFailureStopsBroadcast(t *testing.T) {
	conn := mocks.NewMockConnector(50)
	sub, _ := newTestSubmitter(t, conn)

	rec := sub.Submit(context.Background(), wrapAction(), func(models.SubmissionRecord) error {
		return errors.New("disk full")
	})
	assert.Equal(t, models.StatusFailedToSend, rec.Status)
	assert.Equal(t, 0, conn.SentCount())
}

func TestSubmitter_NonceFetchedPerSubmission(t *testing.T) {
	conn := mocks.NewMockConnector(50)
	sub, _ := newTestSubmitter(t, conn)

	first := sub.Submit(context.Background(), wrapAction(), nil)
	conn.Nonce = 10 // external activity on the account
	second := sub.Submit(context.Background(), wrapAction(), nil)

	assert.Equal(t, uint64(0), first.Nonce)
	assert.Equal(t, uint64(10), second.Nonce)
}

func TestSubmitter_WrongTarget(t *testing.T) {
	conn := mocks.NewMockConnector(50)
	sub, _ := newTestSubmitter(t, conn)

	a := wrapAction()
	a.TargetRole = models.Source
	rec := sub.Submit(context.Background(), a, nil)
	assert.True(t, errors.Is(rec.Err, errs.ErrConfiguration))
	assert.Equal(t, 0, conn.SentCount())
}

func TestSubmitter_ResumeMinedMeanwhile(t *testing.T) {
	conn := mocks.NewMockConnector(50)
	conn.Outcome = func(*types.Transaction) (models.ReceiptStatus, bool) { return 0, false }
	sub, _ := newTestSubmitter(t, conn)

	first := sub.Submit(context.Background(), wrapAction(), nil)
	require.Equal(t, models.StatusNotMined, first.Status)

	conn.Mine(first.TxHash, models.ReceiptSuccess)
	rec := sub.Resume(context.Background(), first)
	assert.Equal(t, models.StatusConfirmed, rec.Status)
	assert.Equal(t, 1, conn.SentCount(), "resume must not broadcast a new transaction")
}

func TestSubmitter_ResumeRebroadcastsSameTx(t *testing.T) {
	conn := mocks.NewMockConnector(50)
	conn.Outcome = func(*types.Transaction) (models.ReceiptStatus, bool) { return 0, false }
	sub, _ := newTestSubmitter(t, conn)

	first := sub.Submit(context.Background(), wrapAction(), nil)
	require.Equal(t, models.StatusNotMined, first.Status)

	// node dropped the tx from its pool
	conn.Sent = nil
	conn.Nonce = first.Nonce
	conn.Outcome = nil

	rec := sub.Resume(context.Background(), first)
	assert.Equal(t, models.StatusConfirmed, rec.Status)
	require.Equal(t, 1, conn.SentCount())
	assert.Equal(t, first.TxHash, conn.Sent[0].Hash())
}

func TestSubmitter_ResumeSuperseded(t *testing.T) {
	conn := mocks.NewMockConnector(50)
	conn.Outcome = func(*types.Transaction) (models.ReceiptStatus, bool) { return 0, false }
	sub, _ := newTestSubmitter(t, conn)

	first := sub.Submit(context.Background(), wrapAction(), nil)
	require.Equal(t, models.StatusNotMined, first.Status)

	// the nonce was consumed by a different transaction
	conn.Sent = nil
	conn.Nonce = first.Nonce + 1

	rec := sub.Resume(context.Background(), first)
	assert.Equal(t, models.StatusFailedToSend, rec.Status)
	assert.True(t, errors.Is(rec.Err, errs.ErrSubmission))
}

func TestSubmitter_ResumeWithoutRawTx(t *testing.T) {
	conn := mocks.NewMockConnector(50)
	sub, _ := newTestSubmitter(t, conn)

	rec := sub.Resume(context.Background(), models.SubmissionRecord{Action: wrapAction(), Status: models.StatusPending})
	assert.Equal(t, models.StatusFailedToSend, rec.Status)
}

func TestSubmitter_Landed(t *testing.T) {
	ctx := context.Background()
	conn := mocks.NewMockConnector(50)
	conn.SendErr = func(*types.Transaction) error {
		return errs.RPC(errors.New("gas price too low"), "eth_sendRawTransaction")
	}
	sub, _ := newTestSubmitter(t, conn)

	rec := sub.Submit(ctx, wrapAction(), nil)
	require.Equal(t, models.StatusFailedToSend, rec.Status)

	_, ok, err := sub.Landed(ctx, rec)
	require.NoError(t, err)
	assert.False(t, ok)

	conn.Mine(rec.TxHash, models.ReceiptReverted)
	got, ok, err := sub.Landed(ctx, rec)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, models.StatusReverted, got.Status)
	assert.Error(t, got.Err)

	rec.RawTx = ""
	_, ok, err = sub.Landed(ctx, rec)
	require.NoError(t, err)
	assert.False(t, ok)
}
