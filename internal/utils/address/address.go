package address

import (
	"github.com/cockroachdb/errors"
	"github.com/ethereum/go-ethereum/common"
)

// Checksummed validates an EVM address and returns its EIP-55 form.
func Checksummed(addressStr string) (string, error) {
	a, err := Parse(addressStr)
	if err != nil {
		return "", err
	}
	return a.Hex(), nil
}

// Parse rejects anything that is not a 20 byte hex address, including the zero address.
func Parse(addressStr string) (common.Address, error) {
	if !common.IsHexAddress(addressStr) {
		return common.Address{}, errors.Newf("invalid address: %q", addressStr)
	}
	a := common.HexToAddress(addressStr)
	if a == (common.Address{}) {
		return common.Address{}, errors.Newf("zero address: %q", addressStr)
	}
	return a, nil
}
