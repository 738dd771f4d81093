package storage

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ms-fulfillment/internal/config"
)

func TestLocalStorePutGet(t *testing.T) {
	dir := t.TempDir()
	store, err := NewLocalStore(dir)
	require.NoError(t, err)
	ctx := context.Background()

	ref, err := store.Put(ctx, "tickets/7/55/101-abc.png", []byte("png-bytes"), "image/png")
	require.NoError(t, err)
	assert.Equal(t, "tickets/7/55/101-abc.png", ref)

	onDisk, err := os.ReadFile(filepath.Join(dir, "tickets", "7", "55", "101-abc.png"))
	require.NoError(t, err)
	assert.Equal(t, "png-bytes", string(onDisk))

	got, err := store.Get(ctx, ref)
	require.NoError(t, err)
	assert.Equal(t, "png-bytes", string(got))
}

func TestLocalStoreNeverOverwrites(t *testing.T) {
	store, err := NewLocalStore(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	_, err = store.Put(ctx, "a.png", []byte("first"), "image/png")
	require.NoError(t, err)
	_, err = store.Put(ctx, "a.png", []byte("second"), "image/png")
	assert.ErrorIs(t, err, ErrExists)

	got, err := store.Get(ctx, "a.png")
	require.NoError(t, err)
	assert.Equal(t, "first", string(got))
}

func TestLocalStoreRejectsEscapingKeys(t *testing.T) {
	store, err := NewLocalStore(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	for _, key := range []string{"", "/etc/passwd", "../x.png", "a/../../x.png", "a/./b.png", `a\b.png`, ".."} {
		_, err := store.Put(ctx, key, []byte("x"), "image/png")
		assert.ErrorIs(t, err, ErrInvalidKey, key)
		_, err = store.Get(ctx, key)
		assert.ErrorIs(t, err, ErrInvalidKey, key)
	}
}

func TestLocalStoreMissing(t *testing.T) {
	store, err := NewLocalStore(t.TempDir())
	require.NoError(t, err)

	_, err = store.Get(context.Background(), "tickets/missing.png")
	assert.ErrorIs(t, err, ErrNotFound)
}

// fakeS3 answers path-style PutObject and GetObject.
type fakeS3 struct {
	mu      sync.Mutex
	objects map[string][]byte
	types   map[string]string
}

func (f *fakeS3) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	switch r.Method {
	case http.MethodPut:
		body, _ := io.ReadAll(r.Body)
		f.objects[r.URL.Path] = body
		f.types[r.URL.Path] = r.Header.Get("Content-Type")
		w.Header().Set("ETag", `"etag"`)
		w.WriteHeader(http.StatusOK)
	case http.MethodGet:
		body, ok := f.objects[r.URL.Path]
		if !ok {
			w.Header().Set("Content-Type", "application/xml")
			w.WriteHeader(http.StatusNotFound)
			io.WriteString(w, `<?xml version="1.0" encoding="UTF-8"?><Error><Code>NoSuchKey</Code><Message>missing</Message></Error>`)
			return
		}
		w.Header().Set("Content-Type", f.types[r.URL.Path])
		w.WriteHeader(http.StatusOK)
		w.Write(body)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func TestS3StoreAgainstFakeEndpoint(t *testing.T) {
	fake := &fakeS3{objects: map[string][]byte{}, types: map[string]string{}}
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)

	ctx := context.Background()
	store, err := NewS3Store(ctx, config.S3Config{
		Bucket:          "artifacts",
		Region:          "us-east-1",
		Endpoint:        srv.URL,
		AccessKeyID:     "test",
		SecretAccessKey: "test",
	})
	require.NoError(t, err)

	ref, err := store.Put(ctx, "tickets/7/55/101-abc.png", []byte("png-bytes"), "image/png")
	require.NoError(t, err)
	assert.Equal(t, "s3://artifacts/tickets/7/55/101-abc.png", ref)
	assert.Equal(t, "png-bytes", string(fake.objects["/artifacts/tickets/7/55/101-abc.png"]))
	assert.Equal(t, "image/png", fake.types["/artifacts/tickets/7/55/101-abc.png"])

	got, err := store.Get(ctx, ref)
	require.NoError(t, err)
	assert.Equal(t, "png-bytes", string(got))

	_, err = store.Get(ctx, "s3://artifacts/tickets/none.png")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = store.Get(ctx, "s3://other-bucket/x.png")
	assert.ErrorIs(t, err, ErrInvalidKey)
}

func TestNewSelectsStore(t *testing.T) {
	ctx := context.Background()

	s, err := New(ctx, config.ArtifactConfig{Store: "local", LocalDir: t.TempDir()})
	require.NoError(t, err)
	assert.IsType(t, &LocalStore{}, s)

	_, err = New(ctx, config.ArtifactConfig{Store: "gcs"})
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "gcs"))
}
