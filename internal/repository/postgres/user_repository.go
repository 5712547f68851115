package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"filedrive/internal/database"
	"filedrive/internal/repository"
)

type UserRepository struct {
	db database.DBTX
}

func NewUserRepository(db database.DBTX) *UserRepository {
	return &UserRepository{db: db}
}

// Upsert 按 id 插入或更新用户资料。
func (r *UserRepository) Upsert(ctx context.Context, user *repository.User) (*repository.User, error) {
	if user == nil {
		return nil, fmt.Errorf("user is nil")
	}
	query := `INSERT INTO users (id, email, name, created_at, updated_at)
	VALUES ($1, $2, $3, $4, $4)
	ON CONFLICT (id) DO UPDATE SET email = EXCLUDED.email, name = EXCLUDED.name, updated_at = EXCLUDED.updated_at
	RETURNING id, email, name, created_at, updated_at`

	var out repository.User
	err := r.db.QueryRowContext(ctx, query, user.ID, user.Email, user.Name, time.Now().UTC()).
		Scan(&out.ID, &out.Email, &out.Name, &out.CreatedAt, &out.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("upsert user: %w", err)
	}
	return &out, nil
}

func (r *UserRepository) GetByID(ctx context.Context, id string) (*repository.User, error) {
	var out repository.User
	err := r.db.QueryRowContext(ctx, `SELECT id, email, name, created_at, updated_at FROM users WHERE id = $1`, id).
		Scan(&out.ID, &out.Email, &out.Name, &out.CreatedAt, &out.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("select user: %w", err)
	}
	return &out, nil
}
