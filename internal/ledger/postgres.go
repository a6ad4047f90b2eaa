package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// PostgresLedger persists wallet balances and transaction history in
// PostgreSQL. All balance mutations are single conditional UPDATE statements
// so that concurrent handlers on different machines serialize through the
// database rather than application locks.
type PostgresLedger struct {
	db *pgxpool.Pool
}

// NewPostgresLedger constructs a Postgres-backed ledger implementation.
func NewPostgresLedger(db *pgxpool.Pool) *PostgresLedger {
	return &PostgresLedger{db: db}
}

// EnsureWallet verifies the wallet row exists.
func (l *PostgresLedger) EnsureWallet(ctx context.Context, walletID string) error {
	id, err := uuid.Parse(walletID)
	if err != nil {
		return ErrWalletNotFound
	}
	var exists bool
	if err := l.db.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM wallets WHERE id = $1)`, id).Scan(&exists); err != nil {
		return err
	}
	if !exists {
		return ErrWalletNotFound
	}
	return nil
}

// Credit adds amount to the wallet balance and appends the history entry in
// one transaction.
func (l *PostgresLedger) Credit(ctx context.Context, walletID string, amount decimal.Decimal, entry Entry) (decimal.Decimal, error) {
	if !amount.IsPositive() {
		return decimal.Zero, fmt.Errorf("credit amount must be positive")
	}
	id, err := uuid.Parse(walletID)
	if err != nil {
		return decimal.Zero, ErrWalletNotFound
	}

	tx, err := l.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return decimal.Zero, err
	}
	defer tx.Rollback(ctx) // nolint:errcheck

	var balance decimal.Decimal
	err = tx.QueryRow(ctx, `UPDATE wallets
        SET balance = balance + $2, balance_updated_at = now()
        WHERE id = $1
        RETURNING balance`, id, amount).Scan(&balance)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return decimal.Zero, ErrWalletNotFound
		}
		return decimal.Zero, err
	}

	entry.WalletID = walletID
	entry.Type = EntryCredit
	entry.Amount = amount
	if err := insertEntry(ctx, tx, entry); err != nil {
		return decimal.Zero, err
	}

	if err := tx.Commit(ctx); err != nil {
		return decimal.Zero, err
	}
	return balance, nil
}

// DebitIfSufficient subtracts amount only when the balance covers it. The
// balance check and the subtraction are one statement, so the balance can
// never go negative under concurrent debits.
func (l *PostgresLedger) DebitIfSufficient(ctx context.Context, walletID string, amount decimal.Decimal) (decimal.Decimal, error) {
	if !amount.IsPositive() {
		return decimal.Zero, fmt.Errorf("debit amount must be positive")
	}
	id, err := uuid.Parse(walletID)
	if err != nil {
		return decimal.Zero, ErrWalletNotFound
	}

	var balance decimal.Decimal
	err = l.db.QueryRow(ctx, `UPDATE wallets
        SET balance = balance - $2, balance_updated_at = now()
        WHERE id = $1 AND balance >= $2
        RETURNING balance`, id, amount).Scan(&balance)
	if err == nil {
		return balance, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return decimal.Zero, err
	}

	// Either the wallet is missing or the balance was short.
	if err := l.EnsureWallet(ctx, walletID); err != nil {
		return decimal.Zero, err
	}
	return decimal.Zero, ErrInsufficientFunds
}

// DrainAndReset zeroes the balance and returns the pre-reset amount as one
// operation.
func (l *PostgresLedger) DrainAndReset(ctx context.Context, walletID string) (decimal.Decimal, error) {
	id, err := uuid.Parse(walletID)
	if err != nil {
		return decimal.Zero, ErrWalletNotFound
	}

	var previous decimal.Decimal
	err = l.db.QueryRow(ctx, `UPDATE wallets w
        SET balance = 0, balance_updated_at = now()
        FROM (SELECT id, balance FROM wallets WHERE id = $1 FOR UPDATE) prev
        WHERE w.id = prev.id
        RETURNING prev.balance`, id).Scan(&previous)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return decimal.Zero, ErrWalletNotFound
		}
		return decimal.Zero, err
	}
	return previous, nil
}

// Refund restores a reserved amount that never left custody. No entry is
// written because the reservation wrote none.
func (l *PostgresLedger) Refund(ctx context.Context, walletID string, amount decimal.Decimal) (decimal.Decimal, error) {
	if !amount.IsPositive() {
		return decimal.Zero, fmt.Errorf("refund amount must be positive")
	}
	id, err := uuid.Parse(walletID)
	if err != nil {
		return decimal.Zero, ErrWalletNotFound
	}

	var balance decimal.Decimal
	err = l.db.QueryRow(ctx, `UPDATE wallets
        SET balance = balance + $2, balance_updated_at = now()
        WHERE id = $1
        RETURNING balance`, id, amount).Scan(&balance)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return decimal.Zero, ErrWalletNotFound
		}
		return decimal.Zero, err
	}
	return balance, nil
}

// Record appends a history entry outside of a balance mutation.
func (l *PostgresLedger) Record(ctx context.Context, entry Entry) error {
	if _, err := uuid.Parse(entry.WalletID); err != nil {
		return ErrWalletNotFound
	}
	return insertEntry(ctx, l.db, entry)
}

// Balance returns the wallet's current balance.
func (l *PostgresLedger) Balance(ctx context.Context, walletID string) (decimal.Decimal, error) {
	id, err := uuid.Parse(walletID)
	if err != nil {
		return decimal.Zero, ErrWalletNotFound
	}
	var balance decimal.Decimal
	if err := l.db.QueryRow(ctx, `SELECT balance FROM wallets WHERE id = $1`, id).Scan(&balance); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return decimal.Zero, ErrWalletNotFound
		}
		return decimal.Zero, err
	}
	return balance, nil
}

// History lists the most recent entries for the wallet, newest first.
func (l *PostgresLedger) History(ctx context.Context, walletID string, limit int) ([]Entry, error) {
	id, err := uuid.Parse(walletID)
	if err != nil {
		return nil, ErrWalletNotFound
	}
	if limit <= 0 {
		limit = 50
	}

	rows, err := l.db.Query(ctx, `SELECT id, wallet_id, type, amount, currency, description,
        COALESCE(settlement_ref, ''), created_at
        FROM transactions WHERE wallet_id = $1
        ORDER BY created_at DESC LIMIT $2`, id, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var (
			e         Entry
			entryID   uuid.UUID
			wID       uuid.UUID
			createdAt time.Time
		)
		if err := rows.Scan(&entryID, &wID, &e.Type, &e.Amount, &e.Currency, &e.Description, &e.SettlementRef, &createdAt); err != nil {
			return nil, err
		}
		e.ID = entryID.String()
		e.WalletID = wID.String()
		e.CreatedAt = createdAt.UTC()
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// HasEntryForSettlement reports whether any entry references the signature.
func (l *PostgresLedger) HasEntryForSettlement(ctx context.Context, signature string) (bool, error) {
	var exists bool
	err := l.db.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM transactions WHERE settlement_ref = $1)`, signature).Scan(&exists)
	return exists, err
}

// execer is satisfied by both *pgxpool.Pool and pgx.Tx, letting entry writes
// participate in a surrounding transaction when there is one.
type execer interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
}

func insertEntry(ctx context.Context, db execer, entry Entry) error {
	walletID, err := uuid.Parse(entry.WalletID)
	if err != nil {
		return ErrWalletNotFound
	}
	entryID := uuid.New()
	if entry.ID != "" {
		if parsed, err := uuid.Parse(entry.ID); err == nil {
			entryID = parsed
		}
	}
	createdAt := entry.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	var settlementRef any
	if entry.SettlementRef != "" {
		settlementRef = entry.SettlementRef
	}
	_, err = db.Exec(ctx, `INSERT INTO transactions
        (id, wallet_id, type, amount, currency, description, settlement_ref, created_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		entryID, walletID, string(entry.Type), entry.Amount, entry.Currency, entry.Description, settlementRef, createdAt.UTC())
	return err
}
