package db

import (
	"errors"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
	"gorm.io/gorm"
)

const pgUniqueViolation = "23505"

// IsUniqueViolation reports whether err is a unique constraint violation. When
// constraintName is provided the helper also requires it to be referenced.
// Postgres reports the index name and SQLite reports "table.column"; a name
// such as "invoices_order_id" matches both "ux_invoices_order_id" and
// "invoices.order_id".
func IsUniqueViolation(err error, constraintName string) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return mentions(err.Error(), constraintName)
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
		return mentions(pgErr.ConstraintName, constraintName) || mentions(pgErr.Message, constraintName)
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) && string(pqErr.Code) == pgUniqueViolation {
		return mentions(pqErr.Constraint, constraintName)
	}

	msg := err.Error()
	if strings.Contains(msg, "duplicate key value") || strings.Contains(msg, "UNIQUE constraint failed") {
		return mentions(msg, constraintName)
	}
	return false
}

func mentions(text, constraintName string) bool {
	if constraintName == "" {
		return true
	}
	return strings.Contains(text, constraintName) ||
		strings.Contains(strings.ReplaceAll(text, ".", "_"), constraintName)
}
