package wallet

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrNotFound occurs when no wallet matches the lookup.
var ErrNotFound = errors.New("wallet not found")

// Repository persists wallet metadata.
type Repository interface {
	Create(ctx context.Context, wallet Wallet) error
	Get(ctx context.Context, id string) (Wallet, error)
	GetByAddress(ctx context.Context, address string) (Wallet, error)
	GetByPlan(ctx context.Context, planID string) (Wallet, error)
}

// PostgresRepository stores wallets in PostgreSQL. The insert seeds the
// ledger balance column at zero; all later balance writes go through the
// ledger's atomic operations.
type PostgresRepository struct {
	db *pgxpool.Pool
}

// NewPostgresRepository builds a repository backed by PostgreSQL.
func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Create inserts a wallet record with a zero balance.
func (r *PostgresRepository) Create(ctx context.Context, wallet Wallet) error {
	walletID, err := uuid.Parse(wallet.ID)
	if err != nil {
		return err
	}
	planID, err := uuid.Parse(wallet.PlanID)
	if err != nil {
		return err
	}
	_, err = r.db.Exec(ctx, `INSERT INTO wallets
        (id, plan_id, address, signer_ref, balance, balance_updated_at, created_at)
        VALUES ($1, $2, $3, $4, 0, now(), $5)`,
		walletID, planID, wallet.Address, wallet.SignerRef, wallet.CreatedAt.UTC())
	return err
}

// Get fetches wallet metadata by identifier.
func (r *PostgresRepository) Get(ctx context.Context, id string) (Wallet, error) {
	walletID, err := uuid.Parse(id)
	if err != nil {
		return Wallet{}, ErrNotFound
	}
	return r.scanOne(ctx, `SELECT id, plan_id, address, signer_ref, created_at
        FROM wallets WHERE id = $1`, walletID)
}

// GetByAddress fetches the wallet holding the given chain address.
func (r *PostgresRepository) GetByAddress(ctx context.Context, address string) (Wallet, error) {
	return r.scanOne(ctx, `SELECT id, plan_id, address, signer_ref, created_at
        FROM wallets WHERE address = $1`, address)
}

// GetByPlan fetches the wallet owned by the given plan.
func (r *PostgresRepository) GetByPlan(ctx context.Context, planID string) (Wallet, error) {
	id, err := uuid.Parse(planID)
	if err != nil {
		return Wallet{}, ErrNotFound
	}
	return r.scanOne(ctx, `SELECT id, plan_id, address, signer_ref, created_at
        FROM wallets WHERE plan_id = $1`, id)
}

func (r *PostgresRepository) scanOne(ctx context.Context, query string, arg any) (Wallet, error) {
	row := r.db.QueryRow(ctx, query, arg)
	var (
		w         Wallet
		id        uuid.UUID
		planID    uuid.UUID
		createdAt time.Time
	)
	if err := row.Scan(&id, &planID, &w.Address, &w.SignerRef, &createdAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Wallet{}, ErrNotFound
		}
		return Wallet{}, err
	}
	w.ID = id.String()
	w.PlanID = planID.String()
	w.CreatedAt = createdAt.UTC()
	return w, nil
}
