package services

import (
	"context"
	"math/big"
	"sort"
	"strings"
	"time"

	"bridge/relayer/internal/errs"
	"bridge/relayer/internal/models"

	"github.com/avast/retry-go"
	"github.com/cockroachdb/errors"
	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/rs/zerolog/log"
)

// Connector is a session with one chain's JSON-RPC endpoint.
type Connector interface {
	CurrentHeight(ctx context.Context) (uint64, error)
	// GetLogs returns non-removed logs ordered by (block, log index).
	GetLogs(ctx context.Context, address common.Address, topic common.Hash, from, to uint64) ([]types.Log, error)
	PendingNonce(ctx context.Context, account common.Address) (uint64, error)
	GasPrice(ctx context.Context) (*big.Int, error)
	ChainID(ctx context.Context) (*big.Int, error)
	SendSigned(ctx context.Context, tx *types.Transaction) error
	// Receipt returns nil, nil when the transaction is not mined yet.
	Receipt(ctx context.Context, hash common.Hash) (*models.Receipt, error)
	// WaitForReceipt fails with errs.ErrTimeout when the transaction is not
	// mined within timeout. It never resubmits.
	WaitForReceipt(ctx context.Context, hash common.Hash, timeout time.Duration) (*models.Receipt, error)
}

// EthClient is the part of ethclient.Client the connector uses.
type EthClient interface {
	BlockNumber(ctx context.Context) (uint64, error)
	FilterLogs(ctx context.Context, q ethereum.FilterQuery) ([]types.Log, error)
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	ChainID(ctx context.Context) (*big.Int, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
}

type ConnectorOptions struct {
	ReadAttempts uint
	RetryDelay   time.Duration
	PollInterval time.Duration
}

func DefaultConnectorOptions() ConnectorOptions {
	return ConnectorOptions{
		ReadAttempts: 3,
		RetryDelay:   400 * time.Millisecond,
		PollInterval: 2 * time.Second,
	}
}

type EvmConnector struct {
	client EthClient
	role   models.Role
	url    string
	opts   ConnectorOptions
	close  func()
}

// Dial opens a session to url. Blocks are never decoded, only their numbers
// are read, so chains with non-standard header extra-data work unchanged.
func Dial(ctx context.Context, role models.Role, url string, opts ConnectorOptions) (*EvmConnector, error) {
	if url == "" {
		return nil, errs.Configuration(nil, "%s: empty rpc url", role)
	}
	rc, err := rpc.DialContext(ctx, url)
	if err != nil {
		if strings.Contains(err.Error(), "no known transport") {
			return nil, errs.Configuration(err, "%s: dial %s", role, url)
		}
		return nil, errs.Connectivity(err, "%s: dial %s", role, url)
	}
	c := NewEvmConnector(role, url, ethclient.NewClient(rc), opts)
	c.close = rc.Close
	return c, nil
}

func NewEvmConnector(role models.Role, url string, client EthClient, opts ConnectorOptions) *EvmConnector {
	if opts.ReadAttempts == 0 {
		opts.ReadAttempts = 1
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = DefaultConnectorOptions().PollInterval
	}
	return &EvmConnector{client: client, role: role, url: url, opts: opts}
}

func (c *EvmConnector) Close() {
	if c.close != nil {
		c.close()
	}
}

func (c *EvmConnector) CurrentHeight(ctx context.Context) (uint64, error) {
	var height uint64
	err := c.read(ctx, "eth_blockNumber", func() (err error) {
		height, err = c.client.BlockNumber(ctx)
		return err
	})
	return height, err
}

func (c *EvmConnector) GetLogs(ctx context.Context, address common.Address, topic common.Hash, from, to uint64) ([]types.Log, error) {
	q := ethereum.FilterQuery{
		FromBlock: new(big.Int).SetUint64(from),
		ToBlock:   new(big.Int).SetUint64(to),
		Addresses: []common.Address{address},
		Topics:    [][]common.Hash{{topic}},
	}
	var logs []types.Log
	err := c.read(ctx, "eth_getLogs", func() (err error) {
		logs, err = c.client.FilterLogs(ctx, q)
		return err
	})
	if err != nil {
		return nil, err
	}

	out := logs[:0]
	for _, l := range logs {
		if l.Removed {
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

func (c *EvmConnector) PendingNonce(ctx context.Context, account common.Address) (uint64, error) {
	var nonce uint64
	err := c.read(ctx, "eth_getTransactionCount", func() (err error) {
		nonce, err = c.client.PendingNonceAt(ctx, account)
		return err
	})
	return nonce, err
}

func (c *EvmConnector) GasPrice(ctx context.Context) (*big.Int, error) {
	var price *big.Int
	err := c.read(ctx, "eth_gasPrice", func() (err error) {
		price, err = c.client.SuggestGasPrice(ctx)
		return err
	})
	return price, err
}

func (c *EvmConnector) ChainID(ctx context.Context) (*big.Int, error) {
	var id *big.Int
	err := c.read(ctx, "eth_chainId", func() (err error) {
		id, err = c.client.ChainID(ctx)
		return err
	})
	return id, err
}

// SendSigned is never retried: a transport error leaves the broadcast in doubt.
func (c *EvmConnector) SendSigned(ctx context.Context, tx *types.Transaction) error {
	if err := c.client.SendTransaction(ctx, tx); err != nil {
		return c.classify(err, "eth_sendRawTransaction")
	}
	return nil
}

func (c *EvmConnector) Receipt(ctx context.Context, hash common.Hash) (*models.Receipt, error) {
	r, err := c.client.TransactionReceipt(ctx, hash)
	if errors.Is(err, ethereum.NotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, c.classify(err, "eth_getTransactionReceipt")
	}
	return toReceipt(hash, r), nil
}

func (c *EvmConnector) WaitForReceipt(ctx context.Context, hash common.Hash, timeout time.Duration) (*models.Receipt, error) {
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	ticker := time.NewTicker(c.opts.PollInterval)
	defer ticker.Stop()

	for {
		r, err := c.Receipt(ctx, hash)
		switch {
		case err == nil && r != nil:
			return r, nil
		case err != nil && !errs.Transient(err):
			return nil, err
		case err != nil:
			log.Debug().Err(err).Str("role", string(c.role)).Str("tx", hash.Hex()).Msg("[EvmConnector] [WaitForReceipt] receipt lookup failed, polling again")
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-deadline.C:
			return nil, errors.Mark(errors.Newf("%s: tx %s not mined within %s", c.role, hash.Hex(), timeout), errs.ErrTimeout)
		case <-ticker.C:
		}
	}
}

func (c *EvmConnector) read(ctx context.Context, method string, fn func() error) error {
	return retry.Do(func() error {
		if err := fn(); err != nil {
			return c.classify(err, method)
		}
		return nil
	},
		retry.Attempts(c.opts.ReadAttempts),
		retry.Delay(c.opts.RetryDelay),
		retry.LastErrorOnly(true),
		retry.Context(ctx),
		retry.RetryIf(errs.Transient),
		retry.OnRetry(func(n uint, err error) {
			log.Warn().Err(err).Str("role", string(c.role)).Str("method", method).Uint("attempt", n+1).Msg("[EvmConnector] retrying read")
		}),
	)
}

// classify marks err as an RPC rejection or a connectivity failure. Context
// errors pass through untouched.
func (c *EvmConnector) classify(err error, method string) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	var httpErr rpc.HTTPError
	if errors.As(err, &httpErr) {
		if httpErr.StatusCode >= 500 || httpErr.StatusCode == 429 {
			return errs.Connectivity(err, "%s %s", c.role, method)
		}
		return errs.RPC(err, "%s %s", c.role, method)
	}
	var rpcErr rpc.Error
	if errors.As(err, &rpcErr) {
		return errs.RPC(err, "%s %s", c.role, method)
	}
	return errs.Connectivity(err, "%s %s", c.role, method)
}

func toReceipt(hash common.Hash, r *types.Receipt) *models.Receipt {
	out := &models.Receipt{TxHash: hash, Status: models.ReceiptReverted}
	if r.Status == types.ReceiptStatusSuccessful {
		out.Status = models.ReceiptSuccess
	}
	if r.BlockNumber != nil {
		out.BlockNumber = r.BlockNumber.Uint64()
	}
	return out
}

// IsAlreadyKnown reports a node refusing a transaction it already holds.
func IsAlreadyKnown(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "already known") || strings.Contains(msg, "known transaction")
}

// IsNonceTooLow reports a node refusing a transaction whose nonce was used.
func IsNonceTooLow(err error) bool {
	return err != nil && strings.Contains(strings.ToLower(err.Error()), "nonce too low")
}
