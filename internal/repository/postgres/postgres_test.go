package postgres

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"filedrive/internal/repository"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMock(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db, mock
}

var ledgerRowColumns = []string{
	"file_id", "upload_session_id", "owner_id", "file_name", "mime_type",
	"size_bytes", "total_chunks", "created_at", "updated_at",
}

func TestLedgerRepository_AddChunk(t *testing.T) {
	db, mock := newMock(t)
	repo := NewLedgerRepository(db)
	at := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	mock.ExpectQuery(`(?s)WITH touched AS \(\s*UPDATE chunk_ledgers.*ON CONFLICT \(file_id, chunk_number\) DO NOTHING.*SELECT COUNT\(\*\) FROM touched`).
		WithArgs("f1", int64(2), at, "etag-2").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	require.NoError(t, repo.AddChunk(context.Background(), "f1", repository.CompletedChunk{ChunkNumber: 2, Token: "etag-2"}, at))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestLedgerRepository_AddChunkMissingLedger(t *testing.T) {
	db, mock := newMock(t)
	repo := NewLedgerRepository(db)

	mock.ExpectQuery(`WITH touched AS`).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))

	err := repo.AddChunk(context.Background(), "gone", repository.CompletedChunk{ChunkNumber: 1, Token: "e"}, time.Now())
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestLedgerRepository_CreateConflict(t *testing.T) {
	db, mock := newMock(t)
	repo := NewLedgerRepository(db)

	mock.ExpectExec(`(?s)INSERT INTO chunk_ledgers .* ON CONFLICT \(file_id\) DO NOTHING`).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.Create(context.Background(), &repository.ChunkLedger{FileID: "f1", SessionID: "s1", OwnerID: "u1", TotalChunks: 2})
	assert.ErrorIs(t, err, repository.ErrAlreadyExists)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestLedgerRepository_Get(t *testing.T) {
	db, mock := newMock(t)
	repo := NewLedgerRepository(db)
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	mock.ExpectQuery(`SELECT .* FROM chunk_ledgers WHERE file_id = \$1`).
		WithArgs("f1").
		WillReturnRows(sqlmock.NewRows(ledgerRowColumns).
			AddRow("f1", "s1", "u1", "a.bin", "application/octet-stream", int64(1024), 3, now, now))
	mock.ExpectQuery(`SELECT file_id, chunk_number, completion_token FROM ledger_chunks`).
		WithArgs("f1").
		WillReturnRows(sqlmock.NewRows([]string{"file_id", "chunk_number", "completion_token"}).
			AddRow("f1", 1, "e1").
			AddRow("f1", 3, "e3"))

	ledger, err := repo.Get(context.Background(), "f1")
	require.NoError(t, err)
	assert.Equal(t, "s1", ledger.SessionID)
	assert.Equal(t, 3, ledger.TotalChunks)
	assert.Equal(t, []repository.CompletedChunk{{ChunkNumber: 1, Token: "e1"}, {ChunkNumber: 3, Token: "e3"}}, ledger.Completed)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestLedgerRepository_GetMissing(t *testing.T) {
	db, mock := newMock(t)
	repo := NewLedgerRepository(db)

	mock.ExpectQuery(`FROM chunk_ledgers`).WillReturnRows(sqlmock.NewRows(ledgerRowColumns))

	_, err := repo.Get(context.Background(), "gone")
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestLedgerRepository_ListStaleSkipsChunkQueryWhenEmpty(t *testing.T) {
	db, mock := newMock(t)
	repo := NewLedgerRepository(db)
	cutoff := time.Now()

	mock.ExpectQuery(`FROM chunk_ledgers WHERE owner_id = \$1 AND updated_at < \$2`).
		WithArgs("u1", cutoff).
		WillReturnRows(sqlmock.NewRows(ledgerRowColumns))

	ledgers, err := repo.ListByOwnerUpdatedBefore(context.Background(), "u1", cutoff)
	require.NoError(t, err)
	assert.Empty(t, ledgers)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestFileRepository_UpdateStatus(t *testing.T) {
	tests := []struct {
		name     string
		affected int64
		exists   *bool
		want     error
	}{
		{name: "applied", affected: 1},
		{name: "status moved on", affected: 0, exists: ptr(true), want: repository.ErrConflict},
		{name: "record missing", affected: 0, exists: ptr(false), want: repository.ErrNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db, mock := newMock(t)
			repo := NewFileRepository(db)

			mock.ExpectExec(`UPDATE files\s+SET status = \$1`).
				WithArgs("multipart_in_progress", sqlmock.AnyArg(), "f1", "multipart_initiated").
				WillReturnResult(sqlmock.NewResult(0, tt.affected))
			if tt.exists != nil {
				mock.ExpectQuery(`SELECT EXISTS`).
					WithArgs("f1").
					WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(*tt.exists))
			}

			err := repo.UpdateStatus(context.Background(), "f1", repository.FileStatusMultipartInitiated, repository.FileStatusMultipartInProgress)
			if tt.want == nil {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, tt.want)
			}
			require.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestFileRepository_DeleteIfStatus(t *testing.T) {
	tests := []struct {
		name     string
		affected int64
		exists   *bool
		want     error
	}{
		{name: "still multipart", affected: 1},
		{name: "completed meanwhile", affected: 0, exists: ptr(true), want: repository.ErrConflict},
		{name: "already gone", affected: 0, exists: ptr(false), want: repository.ErrNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db, mock := newMock(t)
			repo := NewFileRepository(db)

			mock.ExpectExec(`DELETE FROM files WHERE id = \$1 AND status IN \(\$2,\$3\)`).
				WithArgs("f1", "multipart_initiated", "multipart_in_progress").
				WillReturnResult(sqlmock.NewResult(0, tt.affected))
			if tt.exists != nil {
				mock.ExpectQuery(`SELECT EXISTS`).
					WithArgs("f1").
					WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(*tt.exists))
			}

			err := repo.DeleteIfStatus(context.Background(), "f1",
				repository.FileStatusMultipartInitiated, repository.FileStatusMultipartInProgress)
			if tt.want == nil {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, tt.want)
			}
			require.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestFileRepository_UpdateStatusRejectsUnknownStatus(t *testing.T) {
	db, _ := newMock(t)
	err := NewFileRepository(db).UpdateStatus(context.Background(), "f1", repository.FileStatusAuthorizedSingle, repository.FileStatus("archived"))
	assert.Error(t, err)
}

func TestFileRepository_CreateDuplicate(t *testing.T) {
	db, mock := newMock(t)
	repo := NewFileRepository(db)

	mock.ExpectQuery(`INSERT INTO files`).
		WillReturnError(&pgconn.PgError{Code: "23505", Message: "duplicate key value violates unique constraint"})

	_, err := repo.Create(context.Background(), &repository.FileRecord{
		ID:          "f1",
		OwnerID:     "u1",
		Name:        "a.bin",
		StoragePath: "user/u1/f1",
		Status:      repository.FileStatusAuthorizedSingle,
	})
	assert.ErrorIs(t, err, repository.ErrAlreadyExists)
}

func TestFileRepository_GetByIDMissing(t *testing.T) {
	db, mock := newMock(t)
	repo := NewFileRepository(db)

	mock.ExpectQuery(`FROM files WHERE id = \$1`).WithArgs("gone").WillReturnError(sql.ErrNoRows)

	_, err := repo.GetByID(context.Background(), "gone")
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestStore_WithTx(t *testing.T) {
	db, mock := newMock(t)
	store := NewStore(db)

	mock.ExpectBegin()
	mock.ExpectExec(`DELETE FROM chunk_ledgers`).WithArgs("f1").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`DELETE FROM files`).WithArgs("f1").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := store.WithTx(context.Background(), func(ctx context.Context, tx repository.Store) error {
		if err := tx.Ledgers().Delete(ctx, "f1"); err != nil {
			return err
		}
		return tx.Files().Delete(ctx, "f1")
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_WithTxRollsBack(t *testing.T) {
	db, mock := newMock(t)
	store := NewStore(db)
	boom := errors.New("boom")

	mock.ExpectBegin()
	mock.ExpectExec(`DELETE FROM chunk_ledgers`).WillReturnError(boom)
	mock.ExpectRollback()

	err := store.WithTx(context.Background(), func(ctx context.Context, tx repository.Store) error {
		return tx.Ledgers().Delete(ctx, "f1")
	})
	assert.ErrorIs(t, err, boom)
	require.NoError(t, mock.ExpectationsWereMet())
}

func ptr[T any](v T) *T { return &v }
