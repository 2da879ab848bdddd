package signing

import (
	"context"
	"encoding/hex"

	"github.com/cockroachdb/errors"
	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
)

type HashSigner interface {
	SignHash(ctx context.Context, hash []byte) ([]byte, error)
}

type Signature struct {
	R string `json:"r"`
	S string `json:"s"`
	V byte   `json:"v"`
	// Raw is the 65 byte r||s||v signature with v in {27,28}.
	Raw string `json:"signature"`
}

// SignChallenge signs challenge as an EIP-191 personal message.
func SignChallenge(ctx context.Context, signer HashSigner, challenge []byte) (*Signature, error) {
	sig, err := signer.SignHash(ctx, accounts.TextHash(challenge))
	if err != nil {
		return nil, err
	}
	if len(sig) != crypto.SignatureLength {
		return nil, errors.Newf("unexpected signature length %d", len(sig))
	}

	out := make([]byte, len(sig))
	copy(out, sig)
	out[64] += 27

	return &Signature{
		R:   "0x" + hex.EncodeToString(out[:32]),
		S:   "0x" + hex.EncodeToString(out[32:64]),
		V:   out[64],
		Raw: hexutil.Encode(out),
	}, nil
}

// RecoverChallenge returns the address that produced sig over challenge.
// Both 0/1 and 27/28 recovery ids are accepted.
func RecoverChallenge(challenge, sig []byte) (common.Address, error) {
	if len(sig) != crypto.SignatureLength {
		return common.Address{}, errors.Newf("unexpected signature length %d", len(sig))
	}
	s := make([]byte, len(sig))
	copy(s, sig)
	if s[64] >= 27 {
		s[64] -= 27
	}
	pub, err := crypto.SigToPub(accounts.TextHash(challenge), s)
	if err != nil {
		return common.Address{}, err
	}
	return crypto.PubkeyToAddress(*pub), nil
}

func VerifyChallenge(challenge, sig []byte, want common.Address) bool {
	got, err := RecoverChallenge(challenge, sig)
	return err == nil && got == want
}
