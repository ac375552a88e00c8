package renatclient

import (
	"context"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/smurn/renat/internal/engine"
	"github.com/smurn/renat/internal/httpapi"
	"github.com/smurn/renat/internal/wait"
)

func newTestServer(t *testing.T) *httptest.Server {
	store := wait.New(engine.New())
	srv := httpapi.New(store, zaptest.NewLogger(t), nil)
	return httptest.NewServer(srv)
}

func TestClientPutGetRoundTrip(t *testing.T) {
	server := newTestServer(t)
	defer server.Close()

	client := New(server.URL, []byte("shared-secret"))
	ctx := context.Background()

	version, err := client.Put(ctx, []byte("user-key"), []byte("hello"))
	require.NoError(t, err)
	assert.Equal(t, int64(1), version)

	got, err := client.Get(ctx, []byte("user-key"), version, false)
	require.NoError(t, err)
	assert.Equal(t, []byte("hello"), got)
}

func TestClientGetOldestNewest(t *testing.T) {
	server := newTestServer(t)
	defer server.Close()

	client := New(server.URL, []byte("shared-secret"))
	ctx := context.Background()

	_, err := client.Put(ctx, []byte("user-key"), []byte("v1"))
	require.NoError(t, err)
	_, err = client.Put(ctx, []byte("user-key"), []byte("v2"))
	require.NoError(t, err)

	ov, odata, err := client.GetOldest(ctx, []byte("user-key"), false)
	require.NoError(t, err)
	assert.Equal(t, int64(1), ov)
	assert.Equal(t, []byte("v1"), odata)

	nv, ndata, err := client.GetNewest(ctx, []byte("user-key"), false)
	require.NoError(t, err)
	assert.Equal(t, int64(2), nv)
	assert.Equal(t, []byte("v2"), ndata)
}

func TestClientGetMissingReturnsErrNotFound(t *testing.T) {
	server := newTestServer(t)
	defer server.Close()

	client := New(server.URL, []byte("shared-secret"))
	_, err := client.Get(context.Background(), []byte("user-key"), 1, false)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestClientDifferentKeysMapToDifferentRecordIDs(t *testing.T) {
	server := newTestServer(t)
	defer server.Close()

	client := New(server.URL, []byte("shared-secret"))
	ctx := context.Background()

	_, err := client.Put(ctx, []byte("key-a"), []byte("a-value"))
	require.NoError(t, err)

	_, err = client.Get(ctx, []byte("key-b"), 1, false)
	assert.ErrorIs(t, err, ErrNotFound, "distinct user keys must not collide on the wire record id")
}
