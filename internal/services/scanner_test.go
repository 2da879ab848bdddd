package services

import (
	"context"
	"math/big"
	"strings"
	"testing"

	"bridge/relayer/internal/errs"
	"bridge/relayer/internal/mocks"
	"bridge/relayer/internal/models"

	"github.com/cockroachdb/errors"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	sourceContract = common.HexToAddress("0x5000000000000000000000000000000000000005")
	destContract   = common.HexToAddress("0xd00000000000000000000000000000000000000d")
	tokenA         = common.HexToAddress("0xa00000000000000000000000000000000000000a")
	wrappedA       = common.HexToAddress("0xaa0000000000000000000000000000000000000a")
	alice          = common.HexToAddress("0x00000000000000000000000000000000000a11ce")
	bob            = common.HexToAddress("0x0000000000000000000000000000000000000b0b")
)

func testABI(t *testing.T) abi.ABI {
	t.Helper()
	parsed, err := abi.JSON(strings.NewReader(MirrorMethodsABI))
	require.NoError(t, err)
	return parsed
}

func newTestBinding(t *testing.T, role models.Role, conn Connector) *Binding {
	addr := sourceContract
	if role == models.Destination {
		addr = destContract
	}
	return NewBinding(models.ContractEndpoint{Role: role, Address: addr, ABI: testABI(t)}, conn)
}

func txHash(n int) common.Hash {
	return common.BigToHash(big.NewInt(int64(n)))
}

func TestTopic(t *testing.T) {
	topic, err := Topic(models.Deposit)
	require.NoError(t, err)
	assert.Equal(t, mocks.DepositTopic, topic)

	topic, err = Topic(models.Unwrap)
	require.NoError(t, err)
	assert.Equal(t, mocks.UnwrapTopic, topic)

	_, err = Topic(models.EventKind("Transfer"))
	assert.Error(t, err)
}

func TestBinding_DecodeDeposit(t *testing.T) {
	b := newTestBinding(t, models.Source, mocks.NewMockConnector(0))
	l := mocks.DepositLog(sourceContract, tokenA, alice, big.NewInt(1000), 101, txHash(1), 3)

	ev, err := b.DecodeEvent(models.Deposit, l)
	require.NoError(t, err)
	assert.Equal(t, models.Source, ev.Role)
	assert.Equal(t, models.Deposit, ev.Kind)
	assert.Equal(t, tokenA, ev.Token)
	assert.Equal(t, alice, ev.Recipient)
	assert.Equal(t, 0, ev.Amount.Cmp(big.NewInt(1000)))
	assert.Equal(t, uint64(101), ev.BlockNumber)
	assert.Equal(t, models.EventID(txHash(1), 3), ev.ID())
}

func TestBinding_DecodeUnwrap(t *testing.T) {
	b := newTestBinding(t, models.Destination, mocks.NewMockConnector(0))
	l := mocks.UnwrapLog(destContract, tokenA, wrappedA, alice, bob, big.NewInt(77), 9, txHash(2), 0)

	ev, err := b.DecodeEvent(models.Unwrap, l)
	require.NoError(t, err)
	assert.Equal(t, tokenA, ev.Token)
	assert.Equal(t, wrappedA, ev.WrappedToken)
	assert.Equal(t, alice, ev.From)
	assert.Equal(t, bob, ev.Recipient)
	assert.Equal(t, 0, ev.Amount.Cmp(big.NewInt(77)))
}

func TestBinding_DecodeMalformed(t *testing.T) {
	b := newTestBinding(t, models.Source, mocks.NewMockConnector(0))
	l := mocks.DepositLog(sourceContract, tokenA, alice, big.NewInt(1), 1, txHash(1), 0)
	l.Data = nil

	_, err := b.DecodeEvent(models.Deposit, l)
	assert.Error(t, err)

	l = mocks.DepositLog(sourceContract, tokenA, alice, big.NewInt(1), 1, txHash(1), 0)
	_, err = b.DecodeEvent(models.Unwrap, l)
	assert.Error(t, err)
}

func TestBinding_Pack(t *testing.T) {
	b := newTestBinding(t, models.Destination, mocks.NewMockConnector(0))
	action := &models.MirrorAction{TargetRole: models.Destination, Method: models.Wrap, Token: tokenA, Recipient: alice, Amount: big.NewInt(5)}

	data, err := b.Pack(action)
	require.NoError(t, err)
	assert.Equal(t, b.Endpoint.ABI.Methods["wrap"].ID, data[:4])

	args, err := b.Endpoint.ABI.Methods["wrap"].Inputs.Unpack(data[4:])
	require.NoError(t, err)
	assert.Equal(t, tokenA, args[0])
	assert.Equal(t, alice, args[1])
	assert.Equal(t, 0, args[2].(*big.Int).Cmp(big.NewInt(5)))
}

func TestBinding_PackMissingMethod(t *testing.T) {
	b := NewBinding(models.ContractEndpoint{Role: models.Source, Address: sourceContract}, mocks.NewMockConnector(0))
	_, err := b.Pack(&models.MirrorAction{Method: models.Withdraw, Amount: big.NewInt(1)})
	assert.True(t, errors.Is(err, errs.ErrConfiguration), "got %v", err)
}

func TestScanner_Scan(t *testing.T) {
	conn := mocks.NewMockConnector(110)
	conn.AddLog(mocks.DepositLog(sourceContract, tokenA, alice, big.NewInt(3), 104, txHash(3), 0))
	conn.AddLog(mocks.DepositLog(sourceContract, tokenA, alice, big.NewInt(1), 101, txHash(1), 2))
	conn.AddLog(mocks.DepositLog(sourceContract, tokenA, bob, big.NewInt(2), 101, txHash(2), 5))
	// outside the window
	conn.AddLog(mocks.DepositLog(sourceContract, tokenA, bob, big.NewInt(9), 99, txHash(9), 0))
	// another contract
	conn.AddLog(mocks.DepositLog(destContract, tokenA, bob, big.NewInt(9), 102, txHash(8), 0))

	b := newTestBinding(t, models.Source, conn)
	events, err := NewScanner().Scan(context.Background(), b, models.Deposit, 100, 105)
	require.NoError(t, err)
	require.Len(t, events, 3)
	for i := 1; i < len(events); i++ {
		assert.True(t, events[i-1].Less(events[i]), "events out of order at %d", i)
	}
	assert.Equal(t, uint(2), events[0].LogIndex)
	assert.Equal(t, uint64(104), events[2].BlockNumber)
}

func TestScanner_EmptyAndInvalidRange(t *testing.T) {
	b := newTestBinding(t, models.Source, mocks.NewMockConnector(110))
	s := NewScanner()

	events, err := s.Scan(context.Background(), b, models.Deposit, 100, 105)
	require.NoError(t, err)
	assert.Empty(t, events)

	_, err = s.Scan(context.Background(), b, models.Deposit, 106, 105)
	assert.Error(t, err)
}

func TestScanner_QueryFailure(t *testing.T) {
	conn := mocks.NewMockConnector(110)
	conn.LogsErr = errs.Connectivity(errors.New("dial tcp: refused"), "eth_getLogs")
	b := newTestBinding(t, models.Source, conn)

	events, err := NewScanner().Scan(context.Background(), b, models.Deposit, 100, 105)
	assert.Nil(t, events)
	assert.True(t, errors.Is(err, errs.ErrConnectivity))
}

func TestScanner_UndecodableLogFailsScan(t *testing.T) {
	conn := mocks.NewMockConnector(110)
	bad := mocks.DepositLog(sourceContract, tokenA, alice, big.NewInt(1), 101, txHash(1), 0)
	bad.Topics = bad.Topics[:1]
	conn.AddLog(bad)
	b := newTestBinding(t, models.Source, conn)

	_, err := NewScanner().Scan(context.Background(), b, models.Deposit, 100, 105)
	assert.Error(t, err)
}

