package mocks

import (
	"context"
	"math/big"
	"sort"
	"sync"
	"time"

	"bridge/relayer/internal/errs"
	"bridge/relayer/internal/models"

	"github.com/cockroachdb/errors"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
)

var (
	DepositTopic = crypto.Keccak256Hash([]byte("Deposit(address,address,uint256)"))
	UnwrapTopic  = crypto.Keccak256Hash([]byte("Unwrap(address,address,address,address,uint256)"))
)

// MockConnector is an in-memory chain. Sent transactions are mined
// immediately with the status Outcome picks, unless Outcome says otherwise.
type MockConnector struct {
	mu sync.Mutex

	Height    uint64
	HeightErr error
	Logs      []types.Log
	LogsErr   error
	ChainId   *big.Int
	Price     *big.Int
	Nonce     uint64
	NonceErr  error

	// Outcome decides the fate of a broadcast tx. Default: mined, success.
	Outcome func(tx *types.Transaction) (status models.ReceiptStatus, mined bool)
	// SendErr, when set, can reject a broadcast.
	SendErr func(tx *types.Transaction) error

	Sent         []*types.Transaction
	LogQueries   [][2]uint64
	ReceiptCalls int

	receipts map[common.Hash]*models.Receipt
}

func NewMockConnector(height uint64) *MockConnector {
	return &MockConnector{
		Height:   height,
		ChainId:  big.NewInt(1337),
		Price:    big.NewInt(1_000_000_000),
		receipts: map[common.Hash]*models.Receipt{},
	}
}

func (m *MockConnector) CurrentHeight(ctx context.Context) (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Height, m.HeightErr
}

func (m *MockConnector) GetLogs(ctx context.Context, address common.Address, topic common.Hash, from, to uint64) ([]types.Log, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.LogQueries = append(m.LogQueries, [2]uint64{from, to})
	if m.LogsErr != nil {
		return nil, m.LogsErr
	}
	var out []types.Log
	for _, l := range m.Logs {
		if l.Address != address || len(l.Topics) == 0 || l.Topics[0] != topic {
			continue
		}
		if l.BlockNumber < from || l.BlockNumber > to || l.Removed {
			continue
		}
		out = append(out, l)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].BlockNumber != out[j].BlockNumber {
			return out[i].BlockNumber < out[j].BlockNumber
		}
		return out[i].Index < out[j].Index
	})
	return out, nil
}

func (m *MockConnector) PendingNonce(ctx context.Context, account common.Address) (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Nonce, m.NonceErr
}

func (m *MockConnector) GasPrice(ctx context.Context) (*big.Int, error) {
	return m.Price, nil
}

func (m *MockConnector) ChainID(ctx context.Context) (*big.Int, error) {
	return m.ChainId, nil
}

func (m *MockConnector) SendSigned(ctx context.Context, tx *types.Transaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.SendErr != nil {
		if err := m.SendErr(tx); err != nil {
			return err
		}
	}
	for _, s := range m.Sent {
		if s.Hash() == tx.Hash() {
			return errs.RPC(errors.New("already known"), "eth_sendRawTransaction")
		}
	}
	if tx.Nonce() < m.Nonce {
		return errs.RPC(errors.New("nonce too low"), "eth_sendRawTransaction")
	}
	m.Sent = append(m.Sent, tx)
	m.Nonce = tx.Nonce() + 1

	status, mined := models.ReceiptSuccess, true
	if m.Outcome != nil {
		status, mined = m.Outcome(tx)
	}
	if mined {
		m.receipts[tx.Hash()] = &models.Receipt{TxHash: tx.Hash(), Status: status, BlockNumber: m.Height}
	}
	return nil
}

func (m *MockConnector) Receipt(ctx context.Context, hash common.Hash) (*models.Receipt, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ReceiptCalls++
	return m.receipts[hash], nil
}

func (m *MockConnector) WaitForReceipt(ctx context.Context, hash common.Hash, timeout time.Duration) (*models.Receipt, error) {
	r, _ := m.Receipt(ctx, hash)
	if r == nil {
		return nil, errors.Mark(errors.Newf("tx %s not mined", hash.Hex()), errs.ErrTimeout)
	}
	return r, nil
}

// Mine records a receipt for hash as if the tx had been included.
func (m *MockConnector) Mine(hash common.Hash, status models.ReceiptStatus) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.receipts[hash] = &models.Receipt{TxHash: hash, Status: status, BlockNumber: m.Height}
}

func (m *MockConnector) SentCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Sent)
}

func (m *MockConnector) AddLog(l types.Log) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Logs = append(m.Logs, l)
}

// DepositLog builds a Deposit(token, recipient, amount) log as the chain would return it.
func DepositLog(contract, token, recipient common.Address, amount *big.Int, block uint64, txHash common.Hash, index uint) types.Log {
	return types.Log{
		Address:     contract,
		Topics:      []common.Hash{DepositTopic, addressTopic(token), addressTopic(recipient)},
		Data:        common.LeftPadBytes(amount.Bytes(), 32),
		BlockNumber: block,
		TxHash:      txHash,
		Index:       index,
	}
}

// UnwrapLog builds an Unwrap(underlying, wrapped, frm, to, amount) log.
func UnwrapLog(contract, underlying, wrapped, from, to common.Address, amount *big.Int, block uint64, txHash common.Hash, index uint) types.Log {
	data := append(common.LeftPadBytes(from.Bytes(), 32), common.LeftPadBytes(amount.Bytes(), 32)...)
	return types.Log{
		Address:     contract,
		Topics:      []common.Hash{UnwrapTopic, addressTopic(underlying), addressTopic(wrapped), addressTopic(to)},
		Data:        data,
		BlockNumber: block,
		TxHash:      txHash,
		Index:       index,
	}
}

func addressTopic(a common.Address) common.Hash {
	return common.BytesToHash(common.LeftPadBytes(a.Bytes(), 32))
}
