package treasury

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// Journal persists every fund movement to Postgres so balances can be
// reconciled after a restart. The bank remains authoritative in-process;
// the journal is an append-only audit trail.
type Journal struct {
	db *sql.DB
}

// NewJournal opens a Postgres connection and ensures the journal table exists.
func NewJournal(dsn string) (*Journal, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open postgres: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("postgres ping failed: %w", err)
	}

	if _, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS treasury_journal (
			id           BIGSERIAL PRIMARY KEY,
			from_account TEXT NOT NULL,
			to_account   TEXT NOT NULL,
			amount       BIGINT NOT NULL,
			created_at   TIMESTAMPTZ NOT NULL DEFAULT now()
		)`); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create journal table: %w", err)
	}

	return &Journal{db: db}, nil
}

// Append records one transfer.
func (j *Journal) Append(ctx context.Context, from, to string, amount int64) error {
	_, err := j.db.ExecContext(ctx,
		`INSERT INTO treasury_journal (from_account, to_account, amount) VALUES ($1, $2, $3)`,
		from, to, amount)
	return err
}

// Close releases the database connection.
func (j *Journal) Close() error {
	return j.db.Close()
}
