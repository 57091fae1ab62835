package postgres

import (
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// isNoRows returns true when err indicates no rows were found.
func isNoRows(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}

// isDuplicateKey checks if a PostgreSQL error is a unique_violation (23505).
func isDuplicateKey(err error) bool {
	return pgCode(err) == "23505"
}

// isForeignKey checks if a PostgreSQL error is a foreign_key_violation (23503).
func isForeignKey(err error) bool {
	return pgCode(err) == "23503"
}

func pgCode(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code
	}
	return ""
}

// limitArg maps a non-positive limit to NULL, which PostgreSQL reads as
// no limit.
func limitArg(limit int) any {
	if limit <= 0 {
		return nil
	}
	return limit
}
