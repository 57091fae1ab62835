// Package postgres implements the store using pgx/v5 with raw SQL.
// Features: conditional UPDATE compare-and-swap on (status, version),
// transactional expunge with tombstones, embedded SQL migrations.
package postgres
