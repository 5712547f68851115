package postgres

import (
	"context"
	"fmt"
	"strings"

	"filedrive/internal/database"
	"filedrive/internal/repository"
)

type ShareRepository struct {
	db database.DBTX
}

func NewShareRepository(db database.DBTX) *ShareRepository {
	return &ShareRepository{db: db}
}

// Create 批量写入分享记录，已存在的组合忽略。
func (r *ShareRepository) Create(ctx context.Context, shares []repository.FileShare) error {
	if len(shares) == 0 {
		return nil
	}

	values := make([]string, len(shares))
	args := make([]any, 0, len(shares)*4)
	for i, s := range shares {
		base := i * 4
		values[i] = fmt.Sprintf("($%d, $%d, $%d, $%d)", base+1, base+2, base+3, base+4)
		args = append(args, s.FileID, s.RecipientID, s.Permission, s.CreatedAt)
	}

	query := `INSERT INTO file_shares (file_id, recipient_id, permission, created_at)
	VALUES ` + strings.Join(values, ",") + `
	ON CONFLICT (file_id, recipient_id) DO NOTHING`

	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("insert shares: %w", err)
	}
	return nil
}

// ListSharedWith 返回分享给 recipient 的文件。
func (r *ShareRepository) ListSharedWith(ctx context.Context, recipientID string) ([]repository.FileRecord, error) {
	cols := make([]string, len(fileSelectColumns))
	for i, c := range fileSelectColumns {
		cols[i] = "f." + c
	}
	query := fmt.Sprintf(`SELECT %s FROM file_shares s
	JOIN files f ON f.id = s.file_id
	WHERE s.recipient_id = $1
	ORDER BY s.created_at DESC`, strings.Join(cols, ","))

	rows, err := r.db.QueryContext(ctx, query, recipientID)
	if err != nil {
		return nil, fmt.Errorf("select shares: %w", err)
	}
	defer rows.Close()

	return collectFileRecords(rows)
}
