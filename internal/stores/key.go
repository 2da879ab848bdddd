package stores

import (
	"context"
	"crypto/ecdsa"
	"math/big"
	"os"
	"path/filepath"
	"strings"
	"time"

	"bridge/relayer/internal/errs"

	"github.com/cockroachdb/errors"
	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/accounts/keystore"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
)

var ErrKeyNotFound = errors.New("signing key not found")

// Signer is the relay account on both chains.
type Signer interface {
	Address() common.Address
	SignTx(ctx context.Context, tx *types.Transaction, chainID *big.Int) (*types.Transaction, error)
	SignHash(ctx context.Context, hash []byte) ([]byte, error)
}

// DefaultKeyPaths lists the well-known key file locations, working directory
// first, then next to the executable.
func DefaultKeyPaths() []string {
	names := []string{"secret_key.txt", "sk.txt"}
	paths := append([]string{}, names...)
	if exe, err := os.Executable(); err == nil {
		for _, n := range names {
			paths = append(paths, filepath.Join(filepath.Dir(exe), n))
		}
	}
	if wd, err := os.Getwd(); err == nil {
		for _, n := range names {
			paths = append(paths, filepath.Join(wd, n))
		}
	}
	return paths
}

// LoadKeyFile reads a hex private key from the first path that exists.
func LoadKeyFile(paths []string) (*ecdsa.PrivateKey, string, error) {
	for _, p := range paths {
		raw, err := os.ReadFile(p)
		if errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, "", errs.Configuration(err, "read key file %s", p)
		}
		line := strings.TrimSpace(strings.SplitN(string(raw), "\n", 2)[0])
		if line == "" {
			return nil, "", errs.Configuration(nil, "key file %s is empty", p)
		}
		key, err := crypto.HexToECDSA(strings.TrimPrefix(line, "0x"))
		if err != nil {
			return nil, "", errs.Configuration(err, "parse key file %s", p)
		}
		return key, p, nil
	}
	return nil, "", errs.Configuration(ErrKeyNotFound, "looked in %s", strings.Join(paths, ", "))
}

// KeySigner signs with an in-memory private key.
type KeySigner struct {
	key  *ecdsa.PrivateKey
	addr common.Address
}

func NewKeySigner(key *ecdsa.PrivateKey) *KeySigner {
	return &KeySigner{key: key, addr: crypto.PubkeyToAddress(key.PublicKey)}
}

func (s *KeySigner) Address() common.Address { return s.addr }

func (s *KeySigner) SignTx(ctx context.Context, tx *types.Transaction, chainID *big.Int) (*types.Transaction, error) {
	return types.SignTx(tx, types.LatestSignerForChainID(chainID), s.key)
}

func (s *KeySigner) SignHash(ctx context.Context, hash []byte) ([]byte, error) {
	return crypto.Sign(hash, s.key)
}

type LocalKeyStore struct {
	ks             *keystore.KeyStore
	rootDir        string
	unlockDuration time.Duration
	passphrase     string
}

func NewLocalKeyStore(passphrase string, rootDir string) (*LocalKeyStore, error) {
	if err := os.MkdirAll(rootDir, 0700); err != nil {
		return nil, err
	}

	ks := keystore.NewKeyStore(rootDir, keystore.StandardScryptN, keystore.StandardScryptP)
	return &LocalKeyStore{ks: ks, passphrase: passphrase, rootDir: rootDir, unlockDuration: 1 * time.Minute}, nil
}

func (l *LocalKeyStore) HasKey(ctx context.Context, address string) bool {
	return l.ks.HasAddress(common.HexToAddress(address))
}

func (l *LocalKeyStore) SignTx(ctx context.Context, address string, tx *types.Transaction, chainID *big.Int) (*types.Transaction, error) {
	account, err := l.get(address)
	if err != nil {
		return nil, err
	}

	if err := l.ks.TimedUnlock(account, l.passphrase, l.unlockDuration); err != nil {
		return nil, err
	}
	defer l.ks.Lock(account.Address)

	return l.ks.SignTxWithPassphrase(account, l.passphrase, tx, chainID)
}

func (l *LocalKeyStore) SignHash(ctx context.Context, address string, hash []byte) ([]byte, error) {
	account, err := l.get(address)
	if err != nil {
		return nil, err
	}

	if err := l.ks.TimedUnlock(account, l.passphrase, l.unlockDuration); err != nil {
		return nil, err
	}
	defer l.ks.Lock(account.Address)

	return l.ks.SignHashWithPassphrase(account, l.passphrase, hash)
}

func (l *LocalKeyStore) ImportECDSA(privKey *ecdsa.PrivateKey) (string, error) {
	acct, err := l.ks.ImportECDSA(privKey, l.passphrase)
	if err != nil {
		return "", err
	}

	return acct.Address.Hex(), nil
}

// Signer binds the store to one of its accounts.
func (l *LocalKeyStore) Signer(address string) (*AccountSigner, error) {
	if _, err := l.get(address); err != nil {
		return nil, errs.Configuration(err, "keystore %s", l.rootDir)
	}
	return &AccountSigner{store: l, addr: common.HexToAddress(address)}, nil
}

func (l *LocalKeyStore) get(address string) (accounts.Account, error) {
	if !l.ks.HasAddress(common.HexToAddress(address)) {
		return accounts.Account{}, errors.Wrapf(ErrKeyNotFound, "address %s", address)
	}
	return l.ks.Find(accounts.Account{Address: common.HexToAddress(address)})
}

type AccountSigner struct {
	store *LocalKeyStore
	addr  common.Address
}

func (s *AccountSigner) Address() common.Address { return s.addr }

func (s *AccountSigner) SignTx(ctx context.Context, tx *types.Transaction, chainID *big.Int) (*types.Transaction, error) {
	return s.store.SignTx(ctx, s.addr.Hex(), tx, chainID)
}

func (s *AccountSigner) SignHash(ctx context.Context, hash []byte) ([]byte, error) {
	return s.store.SignHash(ctx, s.addr.Hex(), hash)
}
