// Package db provides PostgreSQL access to the HR employee master data,
// used as the fallback when the directory service has no record.
package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// DB wraps a PostgreSQL connection pool
type DB struct {
	pool *pgxpool.Pool
}

// Connect establishes a connection pool to the database
func Connect(ctx context.Context, databaseURL string) (*DB, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// Verify connection
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &DB{pool: pool}, nil
}

// Close closes the connection pool
func (db *DB) Close() {
	if db.pool != nil {
		db.pool.Close()
	}
}

// EmployeeName is the master-data record for one employee ID.
type EmployeeName struct {
	EmpID     string
	FirstName string
	LastName  string
}

// GetEmployeeName looks up an employee by ID. A missing employee returns
// (nil, nil).
func (db *DB) GetEmployeeName(ctx context.Context, empID string) (*EmployeeName, error) {
	var rec EmployeeName
	err := db.pool.QueryRow(ctx,
		`SELECT emp_id, first_name_en, last_name_en
		 FROM employees WHERE emp_id = $1`,
		empID,
	).Scan(&rec.EmpID, &rec.FirstName, &rec.LastName)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get employee %s: %w", empID, err)
	}
	return &rec, nil
}
