package database

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// DatabasePool defines the interface for database pool operations.
// This interface allows for both real pool and mock pool implementations.
type DatabasePool interface {
	// QueryRow executes a query that is expected to return at most one row.
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	// Exec executes a query without returning any rows.
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
	// Query executes a query that returns rows.
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
}

var (
	// ErrOpenPositionExists is returned when an entry attempt races an
	// existing open position for the same (expert, instrument).
	ErrOpenPositionExists = errors.New("open position already exists for expert and instrument")

	// ErrAlreadyResolved is returned when verification targets a prediction
	// that is no longer pending.
	ErrAlreadyResolved = errors.New("prediction already resolved")

	// ErrNotFound is returned when a requested row does not exist.
	ErrNotFound = errors.New("row not found")
)
