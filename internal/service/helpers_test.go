package service

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"filedrive/internal/logging"
	"filedrive/internal/repository"
	"filedrive/internal/repository/memory"
	"filedrive/internal/storage"

	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

type fakeGateway struct {
	mu sync.Mutex

	sessions  map[string]string
	completed map[string][]storage.Part
	objects   map[string]bool
	aborted   []string
	deleted   []string
	chunkURLs int
	next      int

	authorizeErr error
	openErr      error
	completeErr  error
	abortErr     error
	deleteErr    error
	statErr      error

	// onAbort 在 AbortSession 处理前调用，用于模拟并发的请求。
	onAbort func()
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{
		sessions:  map[string]string{},
		completed: map[string][]storage.Part{},
		objects:   map[string]bool{},
	}
}

func (g *fakeGateway) AuthorizeUpload(ctx context.Context, path string, ttl time.Duration) (string, error) {
	if g.authorizeErr != nil {
		return "", g.authorizeErr
	}
	return fmt.Sprintf("https://store.test/bucket/%s?ttl=%s", path, ttl), nil
}

func (g *fakeGateway) AuthorizeDownload(ctx context.Context, path string, ttl time.Duration) (string, error) {
	if g.authorizeErr != nil {
		return "", g.authorizeErr
	}
	return fmt.Sprintf("https://store.test/bucket/%s?download=1", path), nil
}

func (g *fakeGateway) AuthorizeChunk(ctx context.Context, path, sessionID string, chunkNumber int, ttl time.Duration) (string, error) {
	if g.authorizeErr != nil {
		return "", g.authorizeErr
	}
	g.mu.Lock()
	g.chunkURLs++
	g.mu.Unlock()
	return fmt.Sprintf("https://store.test/bucket/%s?uploadId=%s&partNumber=%d", path, sessionID, chunkNumber), nil
}

func (g *fakeGateway) OpenSession(ctx context.Context, path string) (string, error) {
	if g.openErr != nil {
		return "", g.openErr
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	g.next++
	id := fmt.Sprintf("session-%d", g.next)
	g.sessions[id] = path
	return id, nil
}

func (g *fakeGateway) CompleteSession(ctx context.Context, path, sessionID string, parts []storage.Part) error {
	if g.completeErr != nil {
		return g.completeErr
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.sessions[sessionID] != path {
		return storage.ErrSessionNotFound
	}
	g.completed[sessionID] = append([]storage.Part(nil), parts...)
	g.objects[path] = true
	delete(g.sessions, sessionID)
	return nil
}

func (g *fakeGateway) AbortSession(ctx context.Context, path, sessionID string) error {
	if hook := g.onAbort; hook != nil {
		g.onAbort = nil
		hook()
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	g.aborted = append(g.aborted, sessionID)
	if g.abortErr != nil {
		return g.abortErr
	}
	delete(g.sessions, sessionID)
	return nil
}

func (g *fakeGateway) Delete(ctx context.Context, path string) error {
	if g.deleteErr != nil {
		return g.deleteErr
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	g.deleted = append(g.deleted, path)
	return nil
}

func (g *fakeGateway) ObjectExists(ctx context.Context, path string) (bool, error) {
	if g.statErr != nil {
		return false, g.statErr
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.objects[path], nil
}

func (g *fakeGateway) ObjectURL(path string) string {
	return "https://store.test/bucket/" + path
}

// failingTxStore 让所有事务失败，模拟元数据存储不可用。
type failingTxStore struct {
	repository.Store
	err error
}

func (s *failingTxStore) WithTx(ctx context.Context, fn func(ctx context.Context, tx repository.Store) error) error {
	return s.err
}

// flakyTxStore 让前 failures 次事务失败，之后正常提交。
type flakyTxStore struct {
	repository.Store
	failures int
	err      error
}

func (s *flakyTxStore) WithTx(ctx context.Context, fn func(ctx context.Context, tx repository.Store) error) error {
	if s.failures > 0 {
		s.failures--
		return s.err
	}
	return s.Store.WithTx(ctx, fn)
}

type harness struct {
	coord   *UploadCoordinator
	files   *FileService
	store   *memory.Store
	gateway *fakeGateway
	clock   *fakeClock
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	store := memory.NewStore()
	gateway := newFakeGateway()
	clock := newFakeClock()

	seedUser(t, store, "u1")
	seedUser(t, store, "u2")

	return &harness{
		coord:   newCoordinator(store, gateway, clock),
		files:   NewFileService(store, gateway, logging.Nop(), 10*time.Minute),
		store:   store,
		gateway: gateway,
		clock:   clock,
	}
}

func newCoordinator(store repository.Store, gateway storage.Gateway, clock *fakeClock) *UploadCoordinator {
	var mu sync.Mutex
	n := 0
	return NewUploadCoordinator(store, gateway, logging.Nop(), UploadOptions{
		UploadURLTTL: 15 * time.Minute,
		ChunkURLTTL:  30 * time.Minute,
		Now:          clock.Now,
		NewID: func() string {
			mu.Lock()
			defer mu.Unlock()
			n++
			return fmt.Sprintf("file-%d", n)
		},
	})
}

func seedUser(t *testing.T, store repository.Store, id string) {
	t.Helper()
	_, err := store.Users().Upsert(context.Background(), &repository.User{ID: id, Email: id + "@example.com"})
	require.NoError(t, err)
}

func (h *harness) multipart(t *testing.T, user string, total int) *MultipartUpload {
	t.Helper()
	up, err := h.coord.InitiateMultipart(context.Background(), InitiateInput{
		UserID:      user,
		Name:        "video.mp4",
		MimeType:    "video/mp4",
		SizeBytes:   10 << 20,
		TotalChunks: total,
	})
	require.NoError(t, err)
	return up
}

func (h *harness) record(t *testing.T, id string) *repository.FileRecord {
	t.Helper()
	rec, err := h.store.Files().GetByID(context.Background(), id)
	require.NoError(t, err)
	return rec
}
