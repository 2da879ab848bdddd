package clients

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPinningClient_PinJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/pinning/pinJSONToIPFS", r.URL.Path)
		assert.Equal(t, "Bearer jwt", r.Header.Get("Authorization"))

		var req map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, map[string]any{"name": "alice"}, req["pinataContent"])

		w.Write([]byte(`{"IpfsHash":"QmTest","PinSize":17,"Timestamp":"2024-01-01T00:00:00Z"}`))
	}))
	defer srv.Close()

	c := NewPinningClient(srv.URL, srv.URL, "jwt")
	cid, err := c.PinJSON(context.Background(), "", map[string]any{"name": "alice"})
	require.NoError(t, err)
	assert.Equal(t, "QmTest", cid)
}

func TestPinningClient_PinJSON_MissingHash(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	_, err := NewPinningClient(srv.URL, srv.URL, "jwt").PinJSON(context.Background(), "x", map[string]any{})
	require.Error(t, err)
}

func TestPinningClient_Get(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/ipfs/QmObject":
			w.Write([]byte(`{"name":"alice","n":1}`))
		case "/ipfs/QmList":
			w.Write([]byte(`[1,2,3]`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	c := NewPinningClient(srv.URL, srv.URL, "")
	ctx := context.Background()

	obj, err := c.Get(ctx, "QmObject")
	require.NoError(t, err)
	assert.Equal(t, "alice", obj["name"])

	_, err = c.Get(ctx, "QmList")
	assert.True(t, errors.Is(err, ErrNotObject), "got %v", err)

	_, err = c.Get(ctx, "QmMissing")
	var se *StatusError
	assert.True(t, errors.As(err, &se))

	_, err = c.Get(ctx, "")
	assert.Error(t, err)
}
