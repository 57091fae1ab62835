package bunstore

import (
	"database/sql"
	"errors"
	"math"

	"github.com/mattn/go-sqlite3"
	"github.com/uptrace/bun/driver/pgdriver"
)

// isNoRows returns true when err indicates no rows were found.
func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}

// isDuplicateKey checks for a unique violation on either dialect:
// PostgreSQL 23505 or a SQLite constraint error.
func isDuplicateKey(err error) bool {
	var pgErr pgdriver.Error
	if errors.As(err, &pgErr) {
		return pgErr.Field('C') == "23505"
	}
	var liteErr sqlite3.Error
	if errors.As(err, &liteErr) {
		return liteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey ||
			liteErr.ExtendedCode == sqlite3.ErrConstraintUnique
	}
	return false
}

// pageLimit returns the LIMIT to apply. SQLite rejects OFFSET without
// LIMIT, so an offset-only page gets an effectively unbounded limit.
func pageLimit(limit, offset int) int {
	if limit <= 0 && offset > 0 {
		return math.MaxInt32
	}
	return limit
}
