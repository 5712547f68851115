package service

import (
	"context"
	"fmt"
	"testing"
	"time"

	"filedrive/internal/repository/memory"
	"filedrive/internal/storage"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

func openTestLedger(t *testing.T, total int) (*ChunkLedger, *fakeClock) {
	t.Helper()
	clock := newFakeClock()
	ledger := NewChunkLedger(memory.NewStore().Ledgers(), clock.Now)
	_, err := ledger.Open(context.Background(), OpenLedgerInput{
		FileID:      "f1",
		SessionID:   "s1",
		OwnerID:     "u1",
		FileName:    "a.bin",
		MimeType:    "application/octet-stream",
		SizeBytes:   4 << 20,
		TotalChunks: total,
	})
	require.NoError(t, err)
	return ledger, clock
}

func TestChunkLedger_AcknowledgeIsIdempotent(t *testing.T) {
	ledger, _ := openTestLedger(t, 4)
	ctx := context.Background()

	require.NoError(t, ledger.Acknowledge(ctx, "f1", 2, "etag-a"))
	require.NoError(t, ledger.Acknowledge(ctx, "f1", 2, "etag-b"))

	snap, err := ledger.Snapshot(ctx, "f1")
	require.NoError(t, err)
	require.Len(t, snap.Completed, 1)
	assert.Equal(t, 2, snap.Completed[0].ChunkNumber)
	assert.Equal(t, "etag-a", snap.Completed[0].Token)
}

func TestChunkLedger_CompletedPartsSorted(t *testing.T) {
	ledger, _ := openTestLedger(t, 4)
	ctx := context.Background()

	for _, n := range []int{2, 1, 4, 3} {
		require.NoError(t, ledger.Acknowledge(ctx, "f1", n, fmt.Sprintf("etag-%d", n)))
	}

	parts, err := ledger.CompletedParts(ctx, "f1")
	require.NoError(t, err)
	assert.Equal(t, []storage.Part{
		{Number: 1, ETag: "etag-1"},
		{Number: 2, ETag: "etag-2"},
		{Number: 3, ETag: "etag-3"},
		{Number: 4, ETag: "etag-4"},
	}, parts)
}

func TestChunkLedger_AcknowledgeRejects(t *testing.T) {
	ledger, _ := openTestLedger(t, 3)
	ctx := context.Background()

	assert.ErrorIs(t, ledger.Acknowledge(ctx, "missing", 1, "e"), ErrNotFound)
	assert.ErrorIs(t, ledger.Acknowledge(ctx, "f1", 0, "e"), ErrInvalidChunk)
	assert.ErrorIs(t, ledger.Acknowledge(ctx, "f1", 4, "e"), ErrInvalidChunk)

	parts, err := ledger.CompletedParts(ctx, "f1")
	require.NoError(t, err)
	assert.Empty(t, parts)
}

func TestChunkLedger_RepeatAcknowledgeRefreshesClock(t *testing.T) {
	ledger, clock := openTestLedger(t, 2)
	ctx := context.Background()

	require.NoError(t, ledger.Acknowledge(ctx, "f1", 1, "e1"))
	clock.Advance(2 * time.Hour)
	require.NoError(t, ledger.Acknowledge(ctx, "f1", 1, "e1"))

	snap, err := ledger.Snapshot(ctx, "f1")
	require.NoError(t, err)
	assert.Equal(t, clock.Now(), snap.UpdatedAt)
}

func TestChunkLedger_OpenAndClose(t *testing.T) {
	ledger, _ := openTestLedger(t, 2)
	ctx := context.Background()

	_, err := ledger.Open(ctx, OpenLedgerInput{FileID: "f1", SessionID: "s2", OwnerID: "u1", TotalChunks: 2})
	assert.ErrorIs(t, err, ErrAlreadyExists)

	_, err = ledger.Open(ctx, OpenLedgerInput{FileID: "f2", SessionID: "s2", OwnerID: "u1", TotalChunks: 0})
	assert.ErrorIs(t, err, ErrInvalidInput)

	require.NoError(t, ledger.Close(ctx, "f1"))
	require.NoError(t, ledger.Close(ctx, "f1"))

	_, err = ledger.Snapshot(ctx, "f1")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestChunkLedger_ListStale(t *testing.T) {
	clock := newFakeClock()
	ledger := NewChunkLedger(memory.NewStore().Ledgers(), clock.Now)
	ctx := context.Background()

	open := func(id string) {
		_, err := ledger.Open(ctx, OpenLedgerInput{FileID: id, SessionID: "s-" + id, OwnerID: "u1", TotalChunks: 1})
		require.NoError(t, err)
	}

	open("old")
	clock.Advance(47 * time.Hour)
	open("fresh")
	clock.Advance(time.Hour)

	stale, err := ledger.ListStale(ctx, "u1", 24*time.Hour)
	require.NoError(t, err)
	require.Len(t, stale, 1)
	assert.Equal(t, "old", stale[0].FileID)

	active, err := ledger.ListActive(ctx, "u1")
	require.NoError(t, err)
	assert.Len(t, active, 2)

	other, err := ledger.ListActive(ctx, "u2")
	require.NoError(t, err)
	assert.Empty(t, other)
}

func TestChunkLedger_ConcurrentAcknowledge(t *testing.T) {
	const total = 32
	ledger, _ := openTestLedger(t, total)

	var g errgroup.Group
	for n := 1; n <= total; n++ {
		for repeat := 0; repeat < 3; repeat++ {
			g.Go(func() error {
				return ledger.Acknowledge(context.Background(), "f1", n, fmt.Sprintf("etag-%d", n))
			})
		}
	}
	require.NoError(t, g.Wait())

	parts, err := ledger.CompletedParts(context.Background(), "f1")
	require.NoError(t, err)
	require.Len(t, parts, total)
	for i, p := range parts {
		assert.Equal(t, i+1, p.Number)
	}
}
