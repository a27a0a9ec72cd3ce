package evidence

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newLocalStore(t *testing.T) *LocalStore {
	t.Helper()
	store, err := NewLocalStore(t.TempDir(), "http://localhost:8080", "test-secret", zap.NewNop())
	require.NoError(t, err)
	return store
}

func TestLocalStoreUploadAndOpen(t *testing.T) {
	store := newLocalStore(t)
	orgID := uuid.New()

	key, err := store.Upload(context.Background(), orgID, "policy.pdf", strings.NewReader("evidence body"))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(key, "org/"+orgID.String()+"/"))
	assert.True(t, strings.HasSuffix(key, "-policy.pdf"))

	f, err := store.Open(key)
	require.NoError(t, err)
	defer func() { _ = f.Close() }()

	body, err := io.ReadAll(f)
	require.NoError(t, err)
	assert.Equal(t, "evidence body", string(body))
}

func TestLocalStoreNamespaceIsolation(t *testing.T) {
	store := newLocalStore(t)
	org1 := uuid.New()
	org2 := uuid.New()

	key1, err := store.Upload(context.Background(), org1, "report.pdf", strings.NewReader("a"))
	require.NoError(t, err)
	key2, err := store.Upload(context.Background(), org2, "report.pdf", strings.NewReader("b"))
	require.NoError(t, err)

	assert.NotEqual(t, key1, key2)
	assert.Contains(t, key1, org1.String())
	assert.Contains(t, key2, org2.String())
	assert.NotContains(t, key1, org2.String())
}

func TestLocalStoreDeleteIdempotent(t *testing.T) {
	store := newLocalStore(t)
	orgID := uuid.New()

	key, err := store.Upload(context.Background(), orgID, "log.txt", strings.NewReader("x"))
	require.NoError(t, err)

	require.NoError(t, store.Delete(context.Background(), key))
	// Deleting again is success, not an error.
	require.NoError(t, store.Delete(context.Background(), key))
	require.NoError(t, store.Delete(context.Background(), "org/nope/never-existed"))
}

func TestLocalStoreSignedURL(t *testing.T) {
	store := newLocalStore(t)
	orgID := uuid.New()

	key, err := store.Upload(context.Background(), orgID, "scan.png", strings.NewReader("x"))
	require.NoError(t, err)

	signed, err := store.SignedURL(context.Background(), key, 15*time.Minute)
	require.NoError(t, err)

	u, err := url.Parse(signed)
	require.NoError(t, err)
	token := u.Query().Get("token")
	expires, err := strconv.ParseInt(u.Query().Get("expires"), 10, 64)
	require.NoError(t, err)

	assert.True(t, store.VerifyToken(key, token, expires))
	assert.False(t, store.VerifyToken(key, "forged", expires), "forged token rejected")
	assert.False(t, store.VerifyToken(key, token, expires+60), "changing expiry invalidates token")
}

func TestLocalStoreExpiredToken(t *testing.T) {
	store := newLocalStore(t)
	key := "org/x/file"
	expires := time.Now().Add(-time.Minute).Unix()
	token := store.sign(key, expires)

	assert.False(t, store.VerifyToken(key, token, expires))
}

func TestLocalStoreUploadCancelled(t *testing.T) {
	store := newLocalStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := store.Upload(ctx, uuid.New(), "x.txt", strings.NewReader("x"))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestLocalStoreNotConfigured(t *testing.T) {
	_, err := NewLocalStore("", "http://localhost", "", zap.NewNop())
	assert.ErrorIs(t, err, ErrNotConfigured)
}

func TestDisabledStore(t *testing.T) {
	var store Store = Disabled{}

	_, err := store.Upload(context.Background(), uuid.New(), "x", strings.NewReader("x"))
	assert.ErrorIs(t, err, ErrNotConfigured)
	assert.ErrorIs(t, store.Delete(context.Background(), "x"), ErrNotConfigured)
	_, err = store.SignedURL(context.Background(), "x", time.Minute)
	assert.ErrorIs(t, err, ErrNotConfigured)
}

func TestObjectKeySanitizesName(t *testing.T) {
	orgID := uuid.New()
	key := ObjectKey(orgID, "../../etc/passwd")
	assert.True(t, strings.HasPrefix(key, fmt.Sprintf("org/%s/", orgID)))
	assert.NotContains(t, key, "..")
	assert.NotContains(t, key, "/etc/")
}
