package idempotency

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Postgres unique_violation error code.
const uniqueViolation = "23505"

// PostgresRegister stores settlement claims in the processed_transactions
// table, relying on the unique index over the signature column.
type PostgresRegister struct {
	db *pgxpool.Pool
}

// NewPostgresRegister builds a register backed by PostgreSQL.
func NewPostgresRegister(db *pgxpool.Pool) *PostgresRegister {
	return &PostgresRegister{db: db}
}

// Claim inserts the signature, mapping a unique-constraint violation to
// ErrAlreadyClaimed.
func (r *PostgresRegister) Claim(ctx context.Context, signature string) error {
	if signature == "" {
		return fmt.Errorf("settlement signature is required")
	}
	_, err := r.db.Exec(ctx, `INSERT INTO processed_transactions (signature, claimed_at)
        VALUES ($1, now())`, signature)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return ErrAlreadyClaimed
		}
		return err
	}
	return nil
}

// Release deletes the claim for the signature.
func (r *PostgresRegister) Release(ctx context.Context, signature string) error {
	_, err := r.db.Exec(ctx, `DELETE FROM processed_transactions WHERE signature = $1`, signature)
	return err
}

// IsClaimed reports whether a claim exists for the signature.
func (r *PostgresRegister) IsClaimed(ctx context.Context, signature string) (bool, error) {
	var exists bool
	err := r.db.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM processed_transactions WHERE signature = $1)`, signature).Scan(&exists)
	return exists, err
}
