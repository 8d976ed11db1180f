package parties

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/feedflow/feedflow/internal/shared"
)

// PostgresRepository persists parties.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs PostgresRepository.
func NewRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

const partyColumns = `id, company_name, contact_person_number, address, credit_limit, status, created_by, created_at, updated_at`

func scanParty(row pgx.Row) (Party, error) {
	var p Party
	var status string
	err := row.Scan(&p.ID, &p.CompanyName, &p.ContactPersonNumber, &p.Address, &p.Limit, &status, &p.CreatedBy, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Party{}, fmt.Errorf("%w: %w", shared.ErrNotFound, ErrPartyNotFound)
	}
	p.Status = Status(status)
	return p, err
}

// Create inserts a party.
func (r *PostgresRepository) Create(ctx context.Context, p Party) (int64, error) {
	var id int64
	err := r.pool.QueryRow(ctx, `INSERT INTO parties (company_name, contact_person_number, address, credit_limit, status, created_by)
VALUES ($1, $2, $3, $4, $5, $6) RETURNING id`,
		p.CompanyName, p.ContactPersonNumber, p.Address, p.Limit, string(p.Status), p.CreatedBy).Scan(&id)
	return id, err
}

// Get loads a party.
func (r *PostgresRepository) Get(ctx context.Context, id int64) (Party, error) {
	return scanParty(r.pool.QueryRow(ctx, `SELECT `+partyColumns+` FROM parties WHERE id = $1`, id))
}

// List pages parties, optionally filtered by company name.
func (r *PostgresRepository) List(ctx context.Context, search string, limit, offset int) ([]Party, int, error) {
	pattern := "%" + search + "%"
	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM parties WHERE company_name ILIKE $1`, pattern).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.pool.Query(ctx, `SELECT `+partyColumns+` FROM parties WHERE company_name ILIKE $1
ORDER BY company_name LIMIT $2 OFFSET $3`, pattern, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var out []Party
	for rows.Next() {
		p, err := scanParty(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, p)
	}
	return out, total, rows.Err()
}

// Update writes editable fields.
func (r *PostgresRepository) Update(ctx context.Context, p Party) error {
	tag, err := r.pool.Exec(ctx, `UPDATE parties SET company_name=$2, contact_person_number=$3, address=$4,
credit_limit=$5, status=$6, updated_at=NOW() WHERE id=$1`,
		p.ID, p.CompanyName, p.ContactPersonNumber, p.Address, p.Limit, string(p.Status))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %w", shared.ErrNotFound, ErrPartyNotFound)
	}
	return nil
}

type txRepo struct {
	tx pgx.Tx
}

// NewTxRepository binds party operations to an open transaction.
func NewTxRepository(tx pgx.Tx) TxRepository {
	return &txRepo{tx: tx}
}

func (r *txRepo) LockParty(ctx context.Context, id int64) (Party, error) {
	return scanParty(r.tx.QueryRow(ctx, `SELECT `+partyColumns+` FROM parties WHERE id = $1 FOR UPDATE`, id))
}

func (r *txRepo) AdjustLimit(ctx context.Context, id int64, delta int64) error {
	tag, err := r.tx.Exec(ctx, `UPDATE parties SET credit_limit = credit_limit + $2, updated_at = NOW() WHERE id = $1`, id, delta)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %w", shared.ErrNotFound, ErrPartyNotFound)
	}
	return nil
}
