package stores

import (
	"context"
	"encoding/hex"
	"math/big"
	"os"
	"path/filepath"
	"testing"

	"bridge/relayer/internal/errs"

	"github.com/cockroachdb/errors"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
)

func newTestKeyStore(t *testing.T) *LocalKeyStore {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "keystore")
	ks, err := NewLocalKeyStore("testpass", path)
	if err != nil {
		t.Fatalf("NewLocalKeyStore error: %v", err)
	}
	return ks
}

func importTestKey(t *testing.T, ks *LocalKeyStore) string {
	t.Helper()
	priv, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("GenerateKey error: %v", err)
	}
	addrHex, err := ks.ImportECDSA(priv)
	if err != nil {
		t.Fatalf("ImportECDSA error: %v", err)
	}
	return addrHex
}

func TestImportECDSAAndHasKey(t *testing.T) {
	ks := newTestKeyStore(t)
	ctx := context.Background()

	priv, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("GenerateKey error: %v", err)
	}
	wantAddr := crypto.PubkeyToAddress(priv.PublicKey)

	addrHex, err := ks.ImportECDSA(priv)
	if err != nil {
		t.Fatalf("ImportECDSA error: %v", err)
	}
	if addrHex != wantAddr.Hex() {
		t.Fatalf("imported address %s != expected %s", addrHex, wantAddr.Hex())
	}

	if !ks.HasKey(ctx, addrHex) {
		t.Fatalf("HasKey(%s) = false, want true", addrHex)
	}
	if ks.HasKey(ctx, common.HexToAddress("0x000000000000000000000000000000000000dEaD").Hex()) {
		t.Fatal("HasKey returned true for unknown address")
	}
}

func TestSignHash_VerifySignature(t *testing.T) {
	ks := newTestKeyStore(t)
	ctx := context.Background()

	addrHex := importTestKey(t, ks)
	addr := common.HexToAddress(addrHex)

	hash := crypto.Keccak256([]byte("hello world"))

	sig, err := ks.SignHash(ctx, addrHex, hash)
	if err != nil {
		t.Fatalf("SignHash error: %v", err)
	}
	if len(sig) != 65 {
		t.Fatalf("signature length = %d, want 65", len(sig))
	}

	pubKey, err := crypto.SigToPub(hash, sig)
	if err != nil {
		t.Fatalf("SigToPub error: %v", err)
	}
	if recovered := crypto.PubkeyToAddress(*pubKey); recovered != addr {
		t.Fatalf("recovered address %s != signer %s", recovered.Hex(), addr.Hex())
	}
}

func TestAccountSigner_SignTx(t *testing.T) {
	ks := newTestKeyStore(t)
	ctx := context.Background()

	addrHex := importTestKey(t, ks)
	signer, err := ks.Signer(addrHex)
	if err != nil {
		t.Fatalf("Signer error: %v", err)
	}
	if signer.Address() != common.HexToAddress(addrHex) {
		t.Fatalf("signer address %s != %s", signer.Address().Hex(), addrHex)
	}

	to := common.HexToAddress("0x1111111111111111111111111111111111111111")
	tx := types.NewTransaction(0, to, big.NewInt(12345), 21000, big.NewInt(1_000_000_000), nil)
	chainID := big.NewInt(43113)

	signedTx, err := signer.SignTx(ctx, tx, chainID)
	if err != nil {
		t.Fatalf("SignTx error: %v", err)
	}

	sender, err := types.Sender(types.LatestSignerForChainID(chainID), signedTx)
	if err != nil {
		t.Fatalf("types.Sender error: %v", err)
	}
	if sender != signer.Address() {
		t.Fatalf("sender %s != expected %s", sender.Hex(), signer.Address().Hex())
	}
}

func TestSigner_UnknownAddress(t *testing.T) {
	ks := newTestKeyStore(t)

	_, err := ks.Signer("0x000000000000000000000000000000000000dEaD")
	if !errors.Is(err, ErrKeyNotFound) {
		t.Fatalf("expected ErrKeyNotFound, got %v", err)
	}
	if !errors.Is(err, errs.ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
}

func TestSignTx_UnknownAddress(t *testing.T) {
	ks := newTestKeyStore(t)
	ctx := context.Background()

	to := common.HexToAddress("0x2222222222222222222222222222222222222222")
	tx := types.NewTransaction(0, to, big.NewInt(0), 21000, big.NewInt(1), nil)

	if _, err := ks.SignTx(ctx, "0x000000000000000000000000000000000000dEaD", tx, big.NewInt(1)); err == nil {
		t.Fatal("expected error signing with unknown address, got nil")
	}
}

func TestLoadKeyFile_FirstExisting(t *testing.T) {
	dir := t.TempDir()
	priv, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("GenerateKey error: %v", err)
	}
	second := filepath.Join(dir, "sk.txt")
	if err := os.WriteFile(second, []byte("0x"+hex.EncodeToString(crypto.FromECDSA(priv))+"\n"), 0600); err != nil {
		t.Fatalf("WriteFile error: %v", err)
	}

	key, path, err := LoadKeyFile([]string{filepath.Join(dir, "secret_key.txt"), second})
	if err != nil {
		t.Fatalf("LoadKeyFile error: %v", err)
	}
	if path != second {
		t.Fatalf("loaded from %s, want %s", path, second)
	}
	if got, want := NewKeySigner(key).Address(), crypto.PubkeyToAddress(priv.PublicKey); got != want {
		t.Fatalf("address %s != %s", got.Hex(), want.Hex())
	}
}

func TestLoadKeyFile_Missing(t *testing.T) {
	dir := t.TempDir()
	_, _, err := LoadKeyFile([]string{filepath.Join(dir, "secret_key.txt"), filepath.Join(dir, "sk.txt")})
	if !errors.Is(err, ErrKeyNotFound) || !errors.Is(err, errs.ErrConfiguration) {
		t.Fatalf("expected configuration ErrKeyNotFound, got %v", err)
	}
}

func TestLoadKeyFile_Malformed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "secret_key.txt")
	if err := os.WriteFile(path, []byte("not-a-key"), 0600); err != nil {
		t.Fatalf("WriteFile error: %v", err)
	}
	if _, _, err := LoadKeyFile([]string{path}); !errors.Is(err, errs.ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
}

func TestKeySigner_SignHash(t *testing.T) {
	priv, _ := crypto.GenerateKey()
	s := NewKeySigner(priv)

	hash := crypto.Keccak256([]byte("challenge"))
	sig, err := s.SignHash(context.Background(), hash)
	if err != nil {
		t.Fatalf("SignHash error: %v", err)
	}
	pub, err := crypto.SigToPub(hash, sig)
	if err != nil {
		t.Fatalf("SigToPub error: %v", err)
	}
	if crypto.PubkeyToAddress(*pub) != s.Address() {
		t.Fatal("recovered address does not match signer")
	}
}
