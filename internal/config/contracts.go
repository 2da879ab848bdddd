package config

import (
	"bytes"
	"encoding/json"
	"os"

	"bridge/relayer/internal/errs"
	"bridge/relayer/internal/models"
	"bridge/relayer/internal/utils/address"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

type contractInfo struct {
	Address string          `json:"address"`
	ABI     json.RawMessage `json:"abi"`
}

// LoadContracts reads the contract metadata file, an object keyed by role
// holding each bridge contract's address and ABI.
func LoadContracts(path string, cfg *Config) (map[models.Role]models.ContractEndpoint, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, errs.Configuration(err, "read contract info")
	}
	return ParseContracts(raw, cfg)
}

func ParseContracts(raw []byte, cfg *Config) (map[models.Role]models.ContractEndpoint, error) {
	var info map[string]contractInfo
	if err := json.Unmarshal(raw, &info); err != nil {
		return nil, errs.Configuration(err, "malformed contract info")
	}

	out := make(map[models.Role]models.ContractEndpoint, len(models.Roles))
	for _, role := range models.Roles {
		ci, ok := info[string(role)]
		if !ok {
			return nil, errs.Configuration(nil, "contract info has no %q entry", role)
		}
		addr, err := address.Parse(ci.Address)
		if err != nil {
			return nil, errs.Configuration(err, "%s contract address", role)
		}
		if len(ci.ABI) == 0 {
			return nil, errs.Configuration(nil, "%s contract abi is missing", role)
		}
		parsed, err := abi.JSON(bytes.NewReader(ci.ABI))
		if err != nil {
			return nil, errs.Configuration(err, "%s contract abi", role)
		}
		out[role] = models.ContractEndpoint{
			Role:    role,
			RPCURL:  cfg.Chain(role).RPCURL,
			Address: addr,
			ABI:     parsed,
		}
	}
	return out, nil
}
