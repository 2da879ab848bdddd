package clients

import (
	"context"
	"encoding/json"
	"net/url"

	"github.com/cockroachdb/errors"
	"github.com/rs/zerolog/log"
)

const (
	DefaultPinningURL = "https://api.pinata.cloud"
	DefaultGatewayURL = "https://gateway.pinata.cloud"

	pinJSONPath = "/pinning/pinJSONToIPFS"
)

var ErrNotObject = errors.New("content is not a JSON object")

// PinningClient stores JSON blobs on IPFS through a pinning service and reads
// them back through a public gateway.
type PinningClient struct {
	api     *HttpClient
	gateway *HttpClient
}

func NewPinningClient(apiURL, gatewayURL, jwt string) *PinningClient {
	api := NewHttpClient(apiURL)
	api.BearerToken = jwt
	return &PinningClient{api: api, gateway: NewHttpClient(gatewayURL)}
}

// PinJSON pins content and returns its CID.
func (c *PinningClient) PinJSON(ctx context.Context, name string, content any) (string, error) {
	req := pinRequest{PinataContent: content}
	if name != "" {
		req.PinataMetadata = map[string]any{"name": name}
	}

	body, err := c.api.Post(ctx, pinJSONPath, req)
	if err != nil {
		return "", errors.Wrap(err, "pin json")
	}

	var resp PinResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", errors.Wrap(err, "decode pin response")
	}
	if resp.IpfsHash == "" {
		return "", errors.Newf("pin response without IpfsHash: %s", string(body))
	}

	log.Debug().Str("cid", resp.IpfsHash).Int64("size", resp.PinSize).Msg("[PinningClient] [PinJSON] pinned")
	return resp.IpfsHash, nil
}

// Get fetches the object stored under cid. Payloads that are not a JSON object
// fail with ErrNotObject.
func (c *PinningClient) Get(ctx context.Context, cid string) (map[string]any, error) {
	if cid == "" {
		return nil, errors.New("empty cid")
	}
	body, err := c.gateway.Get(ctx, "/ipfs/"+url.PathEscape(cid))
	if err != nil {
		return nil, errors.Wrapf(err, "get %s", cid)
	}

	var v any
	if err := json.Unmarshal(body, &v); err != nil {
		return nil, errors.Wrapf(err, "decode %s", cid)
	}
	obj, ok := v.(map[string]any)
	if !ok {
		return nil, errors.Wrapf(ErrNotObject, "cid %s", cid)
	}
	return obj, nil
}
