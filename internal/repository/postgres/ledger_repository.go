package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"filedrive/internal/database"
	"filedrive/internal/repository"
)

// LedgerRepository 实现 repository.LedgerRepository。
// 已完成分片存放在 ledger_chunks，主键 (file_id, chunk_number) 保证去重。
type LedgerRepository struct {
	db database.DBTX
}

func NewLedgerRepository(db database.DBTX) *LedgerRepository {
	return &LedgerRepository{db: db}
}

var ledgerColumns = []string{
	"file_id",
	"upload_session_id",
	"owner_id",
	"file_name",
	"mime_type",
	"size_bytes",
	"total_chunks",
	"created_at",
	"updated_at",
}

// Create 新建 ledger，主键冲突时返回 ErrAlreadyExists。
func (r *LedgerRepository) Create(ctx context.Context, ledger *repository.ChunkLedger) error {
	if ledger == nil {
		return fmt.Errorf("ledger is nil")
	}
	query := fmt.Sprintf(`INSERT INTO chunk_ledgers (%s)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	ON CONFLICT (file_id) DO NOTHING`, strings.Join(ledgerColumns, ","))

	res, err := r.db.ExecContext(ctx, query,
		ledger.FileID,
		ledger.SessionID,
		ledger.OwnerID,
		ledger.FileName,
		ledger.MimeType,
		ledger.SizeBytes,
		ledger.TotalChunks,
		ledger.CreatedAt,
		ledger.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert ledger: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return repository.ErrAlreadyExists
	}
	return nil
}

// Get 返回 ledger 及其按分片号升序排列的已完成分片。
func (r *LedgerRepository) Get(ctx context.Context, fileID string) (*repository.ChunkLedger, error) {
	query := fmt.Sprintf(`SELECT %s FROM chunk_ledgers WHERE file_id = $1`, strings.Join(ledgerColumns, ","))
	ledger, err := scanLedger(r.db.QueryRowContext(ctx, query, fileID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("select ledger: %w", err)
	}

	chunks, err := r.chunksByFile(ctx, []string{fileID})
	if err != nil {
		return nil, err
	}
	ledger.Completed = chunks[fileID]
	return ledger, nil
}

// addChunkQuery 在一条语句内刷新 updated_at（持有行锁）并插入分片；
// 最终的 count 用于判断 ledger 是否存在。
const addChunkQuery = `WITH touched AS (
	UPDATE chunk_ledgers SET updated_at = $3 WHERE file_id = $1 RETURNING file_id
), inserted AS (
	INSERT INTO ledger_chunks (file_id, chunk_number, completion_token)
	SELECT file_id, $2, $4 FROM touched
	ON CONFLICT (file_id, chunk_number) DO NOTHING
	RETURNING chunk_number
)
SELECT COUNT(*) FROM touched`

// AddChunk 幂等地登记一个分片。
func (r *LedgerRepository) AddChunk(ctx context.Context, fileID string, chunk repository.CompletedChunk, at time.Time) error {
	var touched int
	if err := r.db.QueryRowContext(ctx, addChunkQuery, fileID, chunk.ChunkNumber, at, chunk.Token).Scan(&touched); err != nil {
		return fmt.Errorf("add chunk: %w", err)
	}
	if touched == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// Delete 删除 ledger，分片行随外键级联删除。
func (r *LedgerRepository) Delete(ctx context.Context, fileID string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM chunk_ledgers WHERE file_id = $1`, fileID); err != nil {
		return fmt.Errorf("delete ledger: %w", err)
	}
	return nil
}

// ListByOwner 返回用户的全部 ledger。
func (r *LedgerRepository) ListByOwner(ctx context.Context, ownerID string) ([]repository.ChunkLedger, error) {
	query := fmt.Sprintf(`SELECT %s FROM chunk_ledgers WHERE owner_id = $1 ORDER BY updated_at DESC`, strings.Join(ledgerColumns, ","))
	return r.list(ctx, query, ownerID)
}

// ListByOwnerUpdatedBefore 返回 updated_at 早于 cutoff 的 ledger。
func (r *LedgerRepository) ListByOwnerUpdatedBefore(ctx context.Context, ownerID string, cutoff time.Time) ([]repository.ChunkLedger, error) {
	query := fmt.Sprintf(`SELECT %s FROM chunk_ledgers WHERE owner_id = $1 AND updated_at < $2 ORDER BY updated_at`, strings.Join(ledgerColumns, ","))
	return r.list(ctx, query, ownerID, cutoff)
}

func (r *LedgerRepository) list(ctx context.Context, query string, args ...any) ([]repository.ChunkLedger, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("select ledgers: %w", err)
	}
	defer rows.Close()

	var (
		ledgers []repository.ChunkLedger
		ids     []string
	)
	for rows.Next() {
		l, err := scanLedger(rows)
		if err != nil {
			return nil, err
		}
		ledgers = append(ledgers, *l)
		ids = append(ids, l.FileID)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(ledgers) == 0 {
		return ledgers, nil
	}

	chunks, err := r.chunksByFile(ctx, ids)
	if err != nil {
		return nil, err
	}
	for i := range ledgers {
		ledgers[i].Completed = chunks[ledgers[i].FileID]
	}
	return ledgers, nil
}

func (r *LedgerRepository) chunksByFile(ctx context.Context, fileIDs []string) (map[string][]repository.CompletedChunk, error) {
	placeholders := make([]string, len(fileIDs))
	args := make([]any, len(fileIDs))
	for i, id := range fileIDs {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
		args[i] = id
	}

	query := fmt.Sprintf(`SELECT file_id, chunk_number, completion_token FROM ledger_chunks
	WHERE file_id IN (%s)
	ORDER BY file_id, chunk_number`, strings.Join(placeholders, ","))

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("select chunks: %w", err)
	}
	defer rows.Close()

	result := make(map[string][]repository.CompletedChunk, len(fileIDs))
	for rows.Next() {
		var (
			fileID string
			chunk  repository.CompletedChunk
		)
		if err := rows.Scan(&fileID, &chunk.ChunkNumber, &chunk.Token); err != nil {
			return nil, err
		}
		result[fileID] = append(result[fileID], chunk)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func scanLedger(rs rowScanner) (*repository.ChunkLedger, error) {
	var l repository.ChunkLedger
	if err := rs.Scan(
		&l.FileID,
		&l.SessionID,
		&l.OwnerID,
		&l.FileName,
		&l.MimeType,
		&l.SizeBytes,
		&l.TotalChunks,
		&l.CreatedAt,
		&l.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &l, nil
}
