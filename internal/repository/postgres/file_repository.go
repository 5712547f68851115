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

	"github.com/jackc/pgx/v5/pgconn"
)

// NewFileRepository 返回基于 DBTX 的 Postgres 实现。
func NewFileRepository(db database.DBTX) *FileRepository {
	return &FileRepository{db: db}
}

// FileRepository 实现 repository.FileRepository。
type FileRepository struct {
	db database.DBTX
}

var fileSelectColumns = []string{
	"id",
	"owner_id",
	"name",
	"mime_type",
	"size_bytes",
	"last_modified",
	"storage_path",
	"object_url",
	"status",
	"upload_session_id",
	"total_chunks",
	"created_at",
	"updated_at",
}

var fileInsertColumns = []string{
	"id",
	"owner_id",
	"name",
	"mime_type",
	"size_bytes",
	"last_modified",
	"storage_path",
	"object_url",
	"status",
	"upload_session_id",
	"total_chunks",
	"created_at",
	"updated_at",
}

const uniqueViolation = "23505"

// Create 插入文件记录并返回落库后的行。
func (r *FileRepository) Create(ctx context.Context, record *repository.FileRecord) (*repository.FileRecord, error) {
	if record == nil {
		return nil, fmt.Errorf("file record is nil")
	}
	if !record.Status.Valid() {
		return nil, fmt.Errorf("invalid file status %q", record.Status)
	}

	placeholders := make([]string, len(fileInsertColumns))
	for i := range fileInsertColumns {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
	}

	query := fmt.Sprintf(`INSERT INTO files (%s)
	VALUES (%s)
	RETURNING %s`,
		strings.Join(fileInsertColumns, ","),
		strings.Join(placeholders, ","),
		strings.Join(fileSelectColumns, ","),
	)

	row := r.db.QueryRowContext(
		ctx,
		query,
		record.ID,
		record.OwnerID,
		record.Name,
		record.MimeType,
		record.SizeBytes,
		nullTime(record.LastModified),
		record.StoragePath,
		nullString(record.ObjectURL),
		record.Status,
		nullString(record.UploadSessionID),
		nullInt(record.TotalChunks),
		record.CreatedAt,
		record.UpdatedAt,
	)

	created, err := scanFileRecord(row)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, repository.ErrAlreadyExists
		}
		return nil, err
	}
	return created, nil
}

// GetByID 通过主键查询文件记录。
func (r *FileRepository) GetByID(ctx context.Context, id string) (*repository.FileRecord, error) {
	query := fmt.Sprintf(`SELECT %s FROM files WHERE id = $1`, strings.Join(fileSelectColumns, ","))
	row := r.db.QueryRowContext(ctx, query, id)
	file, err := scanFileRecord(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	return file, nil
}

// List 按 owner 与状态过滤并分页。
func (r *FileRepository) List(ctx context.Context, params repository.ListFilesParams) ([]repository.FileRecord, error) {
	limit := params.Limit
	if limit <= 0 {
		limit = 50
	}

	args := []any{params.OwnerID}
	whereClause := "WHERE owner_id = $1"
	if len(params.Statuses) > 0 {
		placeholders := make([]string, len(params.Statuses))
		for i, status := range params.Statuses {
			args = append(args, status)
			placeholders[i] = fmt.Sprintf("$%d", len(args))
		}
		whereClause += " AND status IN (" + strings.Join(placeholders, ",") + ")"
	}

	args = append(args, limit)
	tail := fmt.Sprintf("ORDER BY created_at DESC LIMIT $%d", len(args))

	if params.Offset > 0 {
		args = append(args, params.Offset)
		tail += fmt.Sprintf(" OFFSET $%d", len(args))
	}

	query := fmt.Sprintf(`SELECT %s FROM files %s %s`, strings.Join(fileSelectColumns, ","), whereClause, tail)
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectFileRecords(rows)
}

// UpdateStatus 只有当前状态等于 from 时才更新。
func (r *FileRepository) UpdateStatus(ctx context.Context, id string, from, to repository.FileStatus) error {
	if !to.Valid() {
		return fmt.Errorf("invalid file status %q", to)
	}
	query := `UPDATE files
	SET status = $1,
		upload_session_id = CASE WHEN $1 IN ('multipart_initiated', 'multipart_in_progress') THEN upload_session_id ELSE NULL END,
		updated_at = $2
	WHERE id = $3 AND status = $4`
	res, err := r.db.ExecContext(ctx, query, to, time.Now().UTC(), id, from)
	if err != nil {
		return err
	}
	return r.expectOneRow(ctx, res, id)
}

// MarkUploaded 写入 uploaded 状态与最终对象地址，并清空 session id。
func (r *FileRepository) MarkUploaded(ctx context.Context, id string, from repository.FileStatus, objectURL string) error {
	query := `UPDATE files
	SET status = $1, object_url = $2, upload_session_id = NULL, updated_at = $3
	WHERE id = $4 AND status = $5`
	res, err := r.db.ExecContext(ctx, query, repository.FileStatusUploaded, objectURL, time.Now().UTC(), id, from)
	if err != nil {
		return err
	}
	return r.expectOneRow(ctx, res, id)
}

// Delete 删除文件记录。
func (r *FileRepository) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM files WHERE id = $1`, id)
	if err != nil {
		return err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// DeleteIfStatus 以状态为前置条件删除，与并发的状态推进互斥。
func (r *FileRepository) DeleteIfStatus(ctx context.Context, id string, statuses ...repository.FileStatus) error {
	if len(statuses) == 0 {
		return fmt.Errorf("no statuses given")
	}
	args := []any{id}
	placeholders := make([]string, len(statuses))
	for i, status := range statuses {
		args = append(args, status)
		placeholders[i] = fmt.Sprintf("$%d", len(args))
	}

	query := `DELETE FROM files WHERE id = $1 AND status IN (` + strings.Join(placeholders, ",") + `)`
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	return r.expectOneRow(ctx, res, id)
}

// expectOneRow 区分“记录不存在”与“前置状态不匹配”。
func (r *FileRepository) expectOneRow(ctx context.Context, res sql.Result, id string) error {
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 1 {
		return nil
	}
	var exists bool
	if err := r.db.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM files WHERE id = $1)`, id).Scan(&exists); err != nil {
		return err
	}
	if !exists {
		return repository.ErrNotFound
	}
	return repository.ErrConflict
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanFileRecord(rs rowScanner) (*repository.FileRecord, error) {
	var (
		rec          repository.FileRecord
		lastModified sql.NullTime
		objectURL    sql.NullString
		sessionID    sql.NullString
		totalChunks  sql.NullInt64
	)

	if err := rs.Scan(
		&rec.ID,
		&rec.OwnerID,
		&rec.Name,
		&rec.MimeType,
		&rec.SizeBytes,
		&lastModified,
		&rec.StoragePath,
		&objectURL,
		&rec.Status,
		&sessionID,
		&totalChunks,
		&rec.CreatedAt,
		&rec.UpdatedAt,
	); err != nil {
		return nil, err
	}

	if lastModified.Valid {
		rec.LastModified = &lastModified.Time
	}
	if objectURL.Valid {
		rec.ObjectURL = &objectURL.String
	}
	if sessionID.Valid {
		rec.UploadSessionID = &sessionID.String
	}
	if totalChunks.Valid {
		n := int(totalChunks.Int64)
		rec.TotalChunks = &n
	}

	return &rec, nil
}

func collectFileRecords(rows *sql.Rows) ([]repository.FileRecord, error) {
	var result []repository.FileRecord
	for rows.Next() {
		rec, err := scanFileRecord(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func nullString(v *string) sql.NullString {
	if v == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *v, Valid: true}
}

func nullTime(v *time.Time) sql.NullTime {
	if v == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *v, Valid: true}
}

func nullInt(v *int) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*v), Valid: true}
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}
