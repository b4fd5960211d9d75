package baseline

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/pelita-foundation/pelita/internal/shared"
)

// Repository provides PostgreSQL backed persistence for baseline records.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const recordColumns = `id, beneficiary_name, nik, village, household_size, monthly_income, notes, status, created_by, created_at, updated_at`

// List returns one page of records plus the unpaginated total.
func (r *Repository) List(ctx context.Context, filter ListFilter) ([]Record, int, error) {
	page := shared.NewPagination(filter.Page, filter.PerPage, 0)

	var total int
	if err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM baseline_records WHERE ($1 = '' OR status = $1)`,
		string(filter.Status)).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := r.pool.Query(ctx, `
SELECT `+recordColumns+`
FROM baseline_records
WHERE ($1 = '' OR status = $1)
ORDER BY updated_at DESC, id
LIMIT $2 OFFSET $3`,
		string(filter.Status), page.PerPage, page.Offset())
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	return out, total, nil
}

// Get fetches one record by ID.
func (r *Repository) Get(ctx context.Context, id uuid.UUID) (Record, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+recordColumns+` FROM baseline_records WHERE id = $1`, id)
	rec, err := scanRecord(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Record{}, shared.ErrNotFound
		}
		return Record{}, err
	}
	return rec, nil
}

// Create inserts a new record.
func (r *Repository) Create(ctx context.Context, rec Record) error {
	_, err := r.pool.Exec(ctx, `
INSERT INTO baseline_records (id, beneficiary_name, nik, village, household_size, monthly_income, notes, status, created_by, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NOW(), NOW())`,
		rec.ID, rec.BeneficiaryName, rec.NIK, rec.Village, rec.HouseholdSize, rec.MonthlyIncome, rec.Notes, string(rec.Status), rec.CreatedBy)
	return err
}

// Update rewrites the editable fields of a record.
func (r *Repository) Update(ctx context.Context, rec Record) error {
	tag, err := r.pool.Exec(ctx, `
UPDATE baseline_records
SET beneficiary_name = $2, nik = $3, village = $4, household_size = $5, monthly_income = $6, notes = $7, status = $8, updated_at = NOW()
WHERE id = $1`,
		rec.ID, rec.BeneficiaryName, rec.NIK, rec.Village, rec.HouseholdSize, rec.MonthlyIncome, rec.Notes, string(rec.Status))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// UpdateStatus moves a record from one workflow status to another. The
// expected status is part of the predicate so concurrent transitions
// cannot double-apply.
func (r *Repository) UpdateStatus(ctx context.Context, id uuid.UUID, from, to Status) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE baseline_records SET status = $3, updated_at = NOW() WHERE id = $1 AND status = $2`,
		id, string(from), string(to))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrInvalidTransition
	}
	return nil
}

// Delete removes a record that is still in draft.
func (r *Repository) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx,
		`DELETE FROM baseline_records WHERE id = $1 AND status = $2`, id, string(StatusDraft))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// ListAll streams every record for export, newest first.
func (r *Repository) ListAll(ctx context.Context) ([]Record, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+recordColumns+` FROM baseline_records ORDER BY created_at DESC, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func scanRecord(row pgx.Row) (Record, error) {
	var rec Record
	var status string
	err := row.Scan(&rec.ID, &rec.BeneficiaryName, &rec.NIK, &rec.Village, &rec.HouseholdSize, &rec.MonthlyIncome, &rec.Notes, &status, &rec.CreatedBy, &rec.CreatedAt, &rec.UpdatedAt)
	if err != nil {
		return Record{}, err
	}
	rec.Status = Status(status)
	return rec, nil
}
