package storage

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"github.com/govbook/booking/internal/model"
	"github.com/govbook/booking/libs/db"
)

// LookupRepository serves the read-only entity checks the validator and the
// officer auto-assignment need. User, service and officer records are owned
// by the admin CRUD layer; this repository never writes them.
type LookupRepository struct {
	pool *db.Pool
}

func NewLookupRepository(pool *db.Pool) *LookupRepository {
	return &LookupRepository{pool: pool}
}

func (r *LookupRepository) UserExists(ctx context.Context, userID string) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx, `
		SELECT EXISTS (SELECT 1 FROM users WHERE id = $1)
	`, userID).Scan(&exists)
	if err != nil {
		return false, err
	}
	return exists, nil
}

func (r *LookupRepository) ReadService(ctx context.Context, serviceID string) (model.Service, bool, error) {
	var svc model.Service
	err := r.pool.QueryRow(ctx, `
		SELECT id, department_id, name
		FROM services
		WHERE id = $1
	`, serviceID).Scan(&svc.ID, &svc.DepartmentID, &svc.Name)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Service{}, false, nil
		}
		return model.Service{}, false, err
	}
	return svc, true, nil
}

func (r *LookupRepository) ListOfficersByDepartment(ctx context.Context, departmentID string) ([]model.Officer, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, department_id, name
		FROM officers
		WHERE department_id = $1
		ORDER BY id
	`, departmentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var officers []model.Officer
	for rows.Next() {
		var officer model.Officer
		if err := rows.Scan(&officer.ID, &officer.DepartmentID, &officer.Name); err != nil {
			return nil, err
		}
		officers = append(officers, officer)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return officers, nil
}
