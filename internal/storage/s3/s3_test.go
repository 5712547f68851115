package s3

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
	g, err := newGateway(Config{
		Endpoint:  endpoint,
		AccessKey: "minioadmin",
		SecretKey: "minioadmin",
		Bucket:    "filedrive",
		Region:    "us-east-1",
		PathStyle: true,
	})
	require.NoError(t, err)
	return g
}

func TestGateway_AuthorizeChunk(t *testing.T) {
	g := testGateway(t, "localhost:9000")

	raw, err := g.AuthorizeChunk(context.Background(), "user/u1/f1", "session-1", 3, 30*time.Minute)
	require.NoError(t, err)

	u, err := url.Parse(raw)
	require.NoError(t, err)
	assert.Equal(t, "/filedrive/user/u1/f1", u.Path)
	assert.Equal(t, "3", u.Query().Get("partNumber"))
	assert.Equal(t, "session-1", u.Query().Get("uploadId"))
	assert.Equal(t, "1800", u.Query().Get("X-Amz-Expires"))
	assert.NotEmpty(t, u.Query().Get("X-Amz-Signature"))
}

func TestGateway_AuthorizeUploadAndDownload(t *testing.T) {
	g := testGateway(t, "localhost:9000")
	ctx := context.Background()

	put, err := g.AuthorizeUpload(ctx, "user/u1/f1", 15*time.Minute)
	require.NoError(t, err)
	assert.Contains(t, put, "/filedrive/user/u1/f1?")
	assert.Contains(t, put, "X-Amz-Expires=900")

	get, err := g.AuthorizeDownload(ctx, "user/u1/f1", time.Minute)
	require.NoError(t, err)
	assert.Contains(t, get, "X-Amz-Expires=60")
}

func TestGateway_ObjectURL(t *testing.T) {
	g := testGateway(t, "localhost:9000")
	assert.Equal(t, "http://localhost:9000/filedrive/user/u1/f1", g.ObjectURL("user/u1/f1"))
	assert.Equal(t, "http://localhost:9000/filedrive/user/u1/f1", g.ObjectURL("user//u1/./f1"))
}

func TestGateway_ObjectURLVirtualHost(t *testing.T) {
	g, err := newGateway(Config{
		Endpoint:  "s3.amazonaws.com",
		AccessKey: "AKIDEXAMPLE",
		SecretKey: "secret",
		Bucket:    "filedrive",
		Region:    "us-east-1",
		UseSSL:    true,
	})
	require.NoError(t, err)
	assert.Equal(t, "https://filedrive.s3.amazonaws.com/user/u1/f1", g.ObjectURL("user/u1/f1"))

	// 自建 MinIO 不支持虚拟主机风格，即便关闭了路径风格
	local, err := newGateway(Config{Endpoint: "localhost:9000", Bucket: "filedrive", Region: "us-east-1"})
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:9000/filedrive/user/u1/f1", local.ObjectURL("user/u1/f1"))
}

func TestGateway_ObjectExists(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodHead, r.Method)
		if strings.HasSuffix(r.URL.Path, "/present") {
			w.Header().Set("ETag", `"abc"`)
			w.Header().Set("Content-Length", "3")
			w.Header().Set("Last-Modified", time.Now().UTC().Format(http.TimeFormat))
			w.WriteHeader(http.StatusOK)
			return
		}
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	g := testGateway(t, strings.TrimPrefix(srv.URL, "http://"))
	ctx := context.Background()

	ok, err := g.ObjectExists(ctx, "user/u1/present")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = g.ObjectExists(ctx, "user/u1/absent")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestCleanKey(t *testing.T) {
	assert.Equal(t, "user/u1/f1", cleanKey("user/u1/f1"))
	assert.Equal(t, "user/u1/f1", cleanKey("user/u1/../u1/f1"))
}

const noSuchUpload = `<?xml version="1.0" encoding="UTF-8"?>
<Error><Code>NoSuchUpload</Code><Message>The specified multipart upload does not exist.</Message><Key>user/u1/f1</Key><BucketName>filedrive</BucketName></Error>`

func TestGateway_UnknownSession(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/xml")
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(noSuchUpload))
	}))
	defer srv.Close()

	g := testGateway(t, strings.TrimPrefix(srv.URL, "http://"))
	ctx := context.Background()

	err := g.CompleteSession(ctx, "user/u1/f1", "gone", []storage.Part{{Number: 1, ETag: "e1"}})
	assert.ErrorIs(t, err, storage.ErrSessionNotFound)

	assert.NoError(t, g.AbortSession(ctx, "user/u1/f1", "gone"))
}

func TestGateway_Uninitialized(t *testing.T) {
	var g *Gateway
	_, err := g.AuthorizeUpload(context.Background(), "k", time.Minute)
	assert.Error(t, err)
}
