package storage

import (
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
)

// ErrConflict 表示插入违反了唯一约束，与其他存储错误区分开。
var ErrConflict = errors.New("storage: unique constraint violation")

// pgUniqueViolation 是 PostgreSQL 的 unique_violation SQLSTATE。
const pgUniqueViolation = "23505"

// IsUniqueViolation reports whether err is a uniqueness conflict, whether it
// was translated by gorm, raised by pgx, or already wrapped as ErrConflict.
func IsUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrConflict) || errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation
}

// translate wraps uniqueness conflicts in ErrConflict and passes everything else through.
func translate(err error) error {
	if err == nil {
		return nil
	}
	if IsUniqueViolation(err) && !errors.Is(err, ErrConflict) {
		return fmt.Errorf("%w: %v", ErrConflict, err)
	}
	return err
}
