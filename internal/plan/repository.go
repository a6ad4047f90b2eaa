package plan

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var ErrNotFound = errors.New("plan not found")

type Repository interface {
	Create(ctx context.Context, p Plan) error
	Get(ctx context.Context, id string) (Plan, error)
	// DueBefore returns active plans whose next payout time is at or
	// before t. Plans with no next payout time are never due.
	DueBefore(ctx context.Context, t time.Time) ([]Plan, error)
	// AdvanceSchedule moves the cadence forward after a successful payout.
	// A nil next halts recurrence for the plan.
	AdvanceSchedule(ctx context.Context, id string, last time.Time, next *time.Time) error
	MarkCompleted(ctx context.Context, id string) error
}

type PostgresRepository struct {
	pool *pgxpool.Pool
}

func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

const planColumns = `id, title, schedule, total_amount, per_payout_amount, destination, status, start_date, last_payout_at, next_payout_at, created_at`

func (r *PostgresRepository) Create(ctx context.Context, p Plan) error {
	_, err := r.pool.Exec(ctx, `
        INSERT INTO plans (`+planColumns+`)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
    `, p.ID, p.Title, p.Schedule, p.TotalAmount, p.PerPayout, p.Destination, p.Status, p.StartDate, p.LastPayoutAt, p.NextPayoutAt, p.CreatedAt)
	return err
}

func (r *PostgresRepository) Get(ctx context.Context, id string) (Plan, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+planColumns+` FROM plans WHERE id = $1`, id)
	return scanPlan(row)
}

func (r *PostgresRepository) DueBefore(ctx context.Context, t time.Time) ([]Plan, error) {
	rows, err := r.pool.Query(ctx, `
        SELECT `+planColumns+`
        FROM plans
        WHERE status = $1 AND next_payout_at IS NOT NULL AND next_payout_at <= $2
        ORDER BY next_payout_at
    `, StatusActive, t)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var due []Plan
	for rows.Next() {
		p, err := scanPlan(rows)
		if err != nil {
			return nil, err
		}
		due = append(due, p)
	}
	return due, rows.Err()
}

func (r *PostgresRepository) AdvanceSchedule(ctx context.Context, id string, last time.Time, next *time.Time) error {
	tag, err := r.pool.Exec(ctx, `
        UPDATE plans SET last_payout_at = $2, next_payout_at = $3 WHERE id = $1
    `, id, last, next)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *PostgresRepository) MarkCompleted(ctx context.Context, id string) error {
	tag, err := r.pool.Exec(ctx, `
        UPDATE plans SET status = $2, next_payout_at = NULL WHERE id = $1
    `, id, StatusCompleted)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func scanPlan(row pgx.Row) (Plan, error) {
	var p Plan
	err := row.Scan(&p.ID, &p.Title, &p.Schedule, &p.TotalAmount, &p.PerPayout, &p.Destination, &p.Status, &p.StartDate, &p.LastPayoutAt, &p.NextPayoutAt, &p.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Plan{}, ErrNotFound
	}
	if err != nil {
		return Plan{}, err
	}
	return p, nil
}
