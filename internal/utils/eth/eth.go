package eth

import (
	"github.com/cockroachdb/errors"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
)

// TxToRawHex encodes a signed transaction as it is sent to eth_sendRawTransaction.
func TxToRawHex(tx *types.Transaction) (string, error) {
	if tx == nil {
		return "", errors.New("nil tx")
	}
	b, err := tx.MarshalBinary()
	if err != nil {
		return "", err
	}
	return hexutil.Encode(b), nil
}

func RawHexToTx(rawHex string) (*types.Transaction, error) {
	b, err := hexutil.Decode(rawHex)
	if err != nil {
		return nil, errors.Wrap(err, "decode raw tx")
	}
	var tx types.Transaction
	if err := tx.UnmarshalBinary(b); err != nil {
		return nil, errors.Wrap(err, "unmarshal raw tx")
	}
	return &tx, nil
}
