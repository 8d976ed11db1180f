package auth

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/feedflow/feedflow/internal/shared"
)

// PGRepository implements Repository and the employee directory using PostgreSQL.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a PostgreSQL repository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

// FindByPhone fetches an employee by login phone.
func (r *PGRepository) FindByPhone(ctx context.Context, phone string) (*Employee, error) {
	var emp Employee
	var role string
	var warehouse pgtype.Int8
	err := r.pool.QueryRow(ctx, `SELECT id, name, phone, password_hash, role, warehouse_id, active, created_at
FROM employees WHERE phone = $1`, phone).Scan(&emp.ID, &emp.Name, &emp.Phone, &emp.PasswordHash, &role, &warehouse, &emp.IsActive, &emp.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	emp.Role = shared.Role(role)
	emp.WarehouseID = warehouse.Int64
	return &emp, nil
}

// IDsByRole lists active employees holding any of roles.
func (r *PGRepository) IDsByRole(ctx context.Context, roles ...shared.Role) ([]int64, error) {
	if len(roles) == 0 {
		return nil, nil
	}
	names := make([]string, len(roles))
	for i, role := range roles {
		names[i] = string(role)
	}
	rows, err := r.pool.Query(ctx, `SELECT id FROM employees WHERE active AND role = ANY($1) ORDER BY id`, names)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// WarehouseStaff returns the plant head and accountant of a warehouse.
func (r *PGRepository) WarehouseStaff(ctx context.Context, warehouseID int64) (shared.WarehouseStaff, error) {
	staff := shared.WarehouseStaff{WarehouseID: warehouseID}
	var plantHead, accountant pgtype.Int8
	err := r.pool.QueryRow(ctx, `SELECT plant_head_id, accountant_id FROM warehouses WHERE id = $1`, warehouseID).Scan(&plantHead, &accountant)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return shared.WarehouseStaff{}, fmt.Errorf("%w: warehouse %d", shared.ErrNotFound, warehouseID)
		}
		return shared.WarehouseStaff{}, err
	}
	staff.PlantHeadID = plantHead.Int64
	staff.AccountantID = accountant.Int64
	return staff, nil
}

// EmployeeName returns the display name of an active employee.
func (r *PGRepository) EmployeeName(ctx context.Context, id int64) (string, error) {
	var name string
	err := r.pool.QueryRow(ctx, `SELECT name FROM employees WHERE id = $1 AND active`, id).Scan(&name)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", fmt.Errorf("%w: employee %d", shared.ErrNotFound, id)
		}
		return "", err
	}
	return name, nil
}
