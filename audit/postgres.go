package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	_ "github.com/lib/pq"
)

const createPaymentsTable = `
CREATE TABLE IF NOT EXISTS x402_payments (
	id                    BIGSERIAL PRIMARY KEY,
	wallet_address        TEXT,
	transaction_signature TEXT NOT NULL UNIQUE,
	network               TEXT NOT NULL,
	token                 TEXT NOT NULL,
	amount                TEXT NOT NULL,
	resource_url          TEXT NOT NULL,
	facilitator_response  JSONB NOT NULL,
	created_at            TIMESTAMPTZ NOT NULL
)`

const insertPayment = `
INSERT INTO x402_payments
	(wallet_address, transaction_signature, network, token, amount, resource_url, facilitator_response, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
ON CONFLICT (transaction_signature) DO NOTHING`

// PostgresWriter persists settlement records to Postgres. Duplicate
// signatures are ignored so a retried request cannot double-record.
type PostgresWriter struct {
	db *sql.DB
}

// NewPostgresWriter opens a connection pool for the given DSN and verifies
// connectivity.
func NewPostgresWriter(dsn string) (*PostgresWriter, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening postgres: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("connecting to postgres: %w", err)
	}
	return &PostgresWriter{db: db}, nil
}

// NewPostgresWriterFromDB wraps an existing pool.
func NewPostgresWriterFromDB(db *sql.DB) *PostgresWriter {
	return &PostgresWriter{db: db}
}

// EnsureSchema creates the payments table if it does not exist.
func (w *PostgresWriter) EnsureSchema(ctx context.Context) error {
	if _, err := w.db.ExecContext(ctx, createPaymentsTable); err != nil {
		return fmt.Errorf("creating payments table: %w", err)
	}
	return nil
}

func (w *PostgresWriter) Record(ctx context.Context, rec Record) error {
	facilitatorResponse, err := json.Marshal(map[string]interface{}{
		"verified": rec.Verify,
		"settled":  rec.Settle,
	})
	if err != nil {
		return fmt.Errorf("marshaling facilitator response: %w", err)
	}

	_, err = w.db.ExecContext(ctx, insertPayment,
		rec.WalletAddress,
		rec.TransactionSignature,
		rec.Network,
		rec.Token,
		rec.Amount,
		rec.ResourceURL,
		facilitatorResponse,
		rec.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("inserting payment record: %w", err)
	}
	return nil
}

// Close releases the connection pool.
func (w *PostgresWriter) Close() error {
	return w.db.Close()
}
