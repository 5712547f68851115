package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"filedrive/internal/database"
	"filedrive/internal/repository"
)

// Store 将各仓储绑定到同一个 DBTX，事务内会重新绑定到 *sql.Tx。
type Store struct {
	db   *sql.DB
	conn database.DBTX
	inTx bool
}

// NewStore 创建基于 *sql.DB 的 Store。
func NewStore(db *sql.DB) *Store {
	return &Store{db: db, conn: db}
}

func (s *Store) Files() repository.FileRepository     { return NewFileRepository(s.conn) }
func (s *Store) Ledgers() repository.LedgerRepository { return NewLedgerRepository(s.conn) }
func (s *Store) Users() repository.UserRepository     { return NewUserRepository(s.conn) }
func (s *Store) Shares() repository.ShareRepository   { return NewShareRepository(s.conn) }

// WithTx 实现 repository.Store。
func (s *Store) WithTx(ctx context.Context, fn func(ctx context.Context, tx repository.Store) error) error {
	if s.inTx {
		return fn(ctx, s)
	}
	if s.db == nil {
		return fmt.Errorf("postgres store uninitialized")
	}
	return database.WithTx(ctx, s.db, nil, func(ctx context.Context, tx database.DBTX) error {
		return fn(ctx, &Store{db: s.db, conn: tx, inTx: true})
	})
}
