package awss3

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"filedrive/internal/storage"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testGateway(t *testing.T, endpoint string) *Gateway {
	t.Helper()
	g, err := New(context.Background(), Config{
		Endpoint:  endpoint,
		AccessKey: "AKIDEXAMPLE",
		SecretKey: "secret",
		Bucket:    "filedrive",
		Region:    "eu-west-1",
		PathStyle: endpoint != "",
	})
	require.NoError(t, err)
	return g
}

func TestGateway_ObjectURL(t *testing.T) {
	aws := testGateway(t, "")
	assert.Equal(t, "https://filedrive.s3.eu-west-1.amazonaws.com/user/u1/f1", aws.ObjectURL("user/u1/f1"))

	custom := testGateway(t, "http://localhost:9000")
	assert.Equal(t, "http://localhost:9000/filedrive/user/u1/f1", custom.ObjectURL("user/u1/f1"))
}

func TestGateway_AuthorizeChunk(t *testing.T) {
	g := testGateway(t, "http://localhost:9000")

	raw, err := g.AuthorizeChunk(context.Background(), "user/u1/f1", "session-1", 2, 30*time.Minute)
	require.NoError(t, err)

	u, err := url.Parse(raw)
	require.NoError(t, err)
	assert.Equal(t, "/filedrive/user/u1/f1", u.Path)
	assert.Equal(t, "2", u.Query().Get("partNumber"))
	assert.Equal(t, "session-1", u.Query().Get("uploadId"))
	assert.Equal(t, "1800", u.Query().Get("X-Amz-Expires"))
}

func TestGateway_AuthorizeUpload(t *testing.T) {
	g := testGateway(t, "")

	raw, err := g.AuthorizeUpload(context.Background(), "user/u1/f1", 15*time.Minute)
	require.NoError(t, err)
	assert.Contains(t, raw, "filedrive.s3.eu-west-1.amazonaws.com/user/u1/f1")
	assert.Contains(t, raw, "X-Amz-Expires=900")
}

func TestGateway_UnknownSession(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/xml")
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`<Error><Code>NoSuchUpload</Code><Message>gone</Message></Error>`))
	}))
	defer srv.Close()

	g := testGateway(t, srv.URL)
	ctx := context.Background()

	err := g.CompleteSession(ctx, "user/u1/f1", "gone", []storage.Part{{Number: 1, ETag: "e1"}})
	assert.ErrorIs(t, err, storage.ErrSessionNotFound)
	assert.NoError(t, g.AbortSession(ctx, "user/u1/f1", "gone"))
}

func TestGateway_ObjectExists(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.HasSuffix(r.URL.Path, "/present"):
			w.Header().Set("ETag", `"abc"`)
			w.WriteHeader(http.StatusOK)
		case strings.HasSuffix(r.URL.Path, "/broken"):
			w.WriteHeader(http.StatusForbidden)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	g := testGateway(t, srv.URL)
	ctx := context.Background()

	ok, err := g.ObjectExists(ctx, "user/u1/present")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = g.ObjectExists(ctx, "user/u1/absent")
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = g.ObjectExists(ctx, "user/u1/broken")
	assert.Error(t, err)
}
