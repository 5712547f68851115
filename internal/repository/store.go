package repository

import "context"

// Store 聚合所有仓储，并提供事务边界。
type Store interface {
	Files() FileRepository
	Ledgers() LedgerRepository
	Users() UserRepository
	Shares() ShareRepository
	// WithTx 在同一事务内执行 fn；fn 返回错误时回滚。已处于事务中时直接复用。
	WithTx(ctx context.Context, fn func(ctx context.Context, tx Store) error) error
}
