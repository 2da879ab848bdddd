package config

import (
	"testing"

	"bridge/relayer/internal/errs"
	"bridge/relayer/internal/models"

	"github.com/cockroachdb/errors"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testABI = `[{"type":"function","name":"wrap","inputs":[{"name":"a","type":"address"},{"name":"b","type":"address"},{"name":"c","type":"uint256"}],"outputs":[]}]`

func testConfig() *Config {
	return &Config{
		Source:      ChainConfig{RPCURL: "http://source"},
		Destination: ChainConfig{RPCURL: "http://destination"},
	}
}

func TestParseContracts(t *testing.T) {
	raw := []byte(`{
		"source": {"address": "0x1111111111111111111111111111111111111111", "abi": ` + testABI + `},
		"destination": {"address": "0x2222222222222222222222222222222222222222", "abi": ` + testABI + `}
	}`)

	eps, err := ParseContracts(raw, testConfig())
	require.NoError(t, err)
	require.Len(t, eps, 2)

	src := eps[models.Source]
	assert.Equal(t, models.Source, src.Role)
	assert.Equal(t, "http://source", src.RPCURL)
	assert.Equal(t, common.HexToAddress("0x1111111111111111111111111111111111111111"), src.Address)
	_, ok := src.ABI.Methods["wrap"]
	assert.True(t, ok)
	assert.Equal(t, "http://destination", eps[models.Destination].RPCURL)
}

func TestParseContracts_Errors(t *testing.T) {
	cases := map[string]string{
		"malformed":        `{"source":`,
		"missing role":     `{"source": {"address": "0x1111111111111111111111111111111111111111", "abi": []}}`,
		"bad address":      `{"source": {"address": "0x12", "abi": []}, "destination": {"address": "0x2222222222222222222222222222222222222222", "abi": []}}`,
		"missing abi":      `{"source": {"address": "0x1111111111111111111111111111111111111111"}, "destination": {"address": "0x2222222222222222222222222222222222222222", "abi": []}}`,
		"abi not an array": `{"source": {"address": "0x1111111111111111111111111111111111111111", "abi": {"x":1}}, "destination": {"address": "0x2222222222222222222222222222222222222222", "abi": []}}`,
	}
	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := ParseContracts([]byte(raw), testConfig())
			require.Error(t, err)
			assert.True(t, errors.Is(err, errs.ErrConfiguration), "got %v", err)
		})
	}
}

func TestLoadContracts_MissingFile(t *testing.T) {
	_, err := LoadContracts("/nonexistent/contract_info.json", testConfig())
	assert.True(t, errors.Is(err, errs.ErrConfiguration))
}
