package model

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"entgo.io/ent/dialect"
	entsql "entgo.io/ent/dialect/sql"
	"entgo.io/ent/dialect/sql/schema"

	_ "github.com/mattn/go-sqlite3"
)

// ErrNotFound 记录不存在
var ErrNotFound = errors.New("记录不存在")

// IsNotFound 判断错误是否为记录不存在
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// DSN 数据目录下 SQLite 数据库的连接串
func DSN(dataDir string) string {
	return fmt.Sprintf("file:%s?mode=rwc&_journal_mode=WAL&_fk=1", filepath.Join(dataDir, "story-tracker.db"))
}

// Open 打开数据库并创建表结构
func Open(ctx context.Context, dsn string) (*entsql.Driver, error) {
	drv, err := entsql.Open(dialect.SQLite, dsn)
	if err != nil {
		return nil, fmt.Errorf("打开数据库失败: %w", err)
	}

	migrate, err := schema.NewMigrate(drv)
	if err != nil {
		_ = drv.Close()
		return nil, fmt.Errorf("创建迁移失败: %w", err)
	}
	if err := migrate.Create(ctx, Tables...); err != nil {
		_ = drv.Close()
		return nil, fmt.Errorf("创建数据库Schema失败: %w", err)
	}
	return drv, nil
}

func builder() *entsql.DialectBuilder {
	return entsql.Dialect(dialect.SQLite)
}
