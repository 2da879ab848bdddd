// Package pow searches proof-of-work nonces for a block of transactions.
package pow

import (
	"context"
	"crypto/sha256"
	"math/bits"
	"strconv"
	"strings"

	"github.com/cockroachdb/errors"
)

var ErrNegativeDifficulty = errors.New("difficulty must be a non-negative integer")

// checkEvery is how many candidates are tried between context checks.
const checkEvery = 1 << 12

// FindNonce returns the smallest decimal nonce such that
// sha256(prevHash || join(txs) || nonce) has at least k trailing zero bits
// when read as a big-endian integer.
func FindNonce(ctx context.Context, k int, prevHash []byte, txs []string) ([]byte, error) {
	if k < 0 {
		return nil, ErrNegativeDifficulty
	}
	if k > sha256.Size*8 {
		return nil, errors.Newf("difficulty %d exceeds hash width", k)
	}

	prefix := append(append([]byte{}, prevHash...), strings.Join(txs, "")...)
	buf := make([]byte, 0, len(prefix)+20)

	for nonce := uint64(0); ; nonce++ {
		if nonce%checkEvery == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		buf = strconv.AppendUint(append(buf[:0], prefix...), nonce, 10)
		sum := sha256.Sum256(buf)
		if TrailingZeroBits(sum[:]) >= k {
			return []byte(strconv.FormatUint(nonce, 10)), nil
		}
	}
}

// TrailingZeroBits counts the trailing zero bits of b read as a big-endian integer.
func TrailingZeroBits(b []byte) int {
	n := 0
	for i := len(b) - 1; i >= 0; i-- {
		if b[i] != 0 {
			return n + bits.TrailingZeros8(b[i])
		}
		n += 8
	}
	return n
}

// Verify reports whether nonce satisfies difficulty k for the given block.
func Verify(k int, prevHash []byte, txs []string, nonce []byte) bool {
	if k < 0 {
		return false
	}
	data := append(append(append([]byte{}, prevHash...), strings.Join(txs, "")...), nonce...)
	sum := sha256.Sum256(data)
	return TrailingZeroBits(sum[:]) >= k
}
