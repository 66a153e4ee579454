package database

import (
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/mattn/go-sqlite3"
	"gorm.io/gorm"
)

// pgUniqueViolation 是PostgreSQL唯一约束冲突的SQLSTATE
const pgUniqueViolation = "23505"

// IsDuplicateKeyError 判断一个错误是否由唯一约束冲突引起
// TranslateError 打开时GORM会翻译成 gorm.ErrDuplicatedKey，这里同时兼容未翻译的驱动错误
func IsDuplicateKeyError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgUniqueViolation
	}

	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
			sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	return false
}
