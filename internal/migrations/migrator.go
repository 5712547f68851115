package migrations

import (
	"context"
	"database/sql"
	"fmt"

	dbmigrations "filedrive/db/migrations"

	"github.com/pressly/goose/v3"
)

// Apply 执行 embed 的全部 up 迁移脚本。
func Apply(ctx context.Context, db *sql.DB) error {
	if db == nil {
		return fmt.Errorf("nil database connection")
	}

	goose.SetBaseFS(dbmigrations.Files)
	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("set goose dialect: %w", err)
	}

	if err := goose.UpContext(ctx, db, "."); err != nil {
		return fmt.Errorf("apply migrations: %w", err)
	}

	return nil
}

// Version 返回当前已应用的最高迁移版本。
func Version(db *sql.DB) (int64, error) {
	if db == nil {
		return 0, fmt.Errorf("nil database connection")
	}
	goose.SetBaseFS(dbmigrations.Files)
	if err := goose.SetDialect("postgres"); err != nil {
		return 0, fmt.Errorf("set goose dialect: %w", err)
	}
	return goose.GetDBVersion(db)
}
