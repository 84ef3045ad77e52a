package repository

import (
	"context"
	"fmt"
	"strings"

	"github.com/Shivanand-hulikatti/classbook/internal/model"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const classColumns = `id, name, description, starts_at, duration_minutes, capacity, trainer_id, created_at`

// ClassRepository handles persistence for class sessions.
type ClassRepository struct {
	db *pgxpool.Pool
}

// NewClassRepository constructs a ClassRepository.
func NewClassRepository(db *pgxpool.Pool) *ClassRepository {
	return &ClassRepository{db: db}
}

// Create inserts a new class.
func (r *ClassRepository) Create(ctx context.Context, c *model.ClassSession) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO classes (id, name, description, starts_at, duration_minutes, capacity, trainer_id, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		c.ID, c.Name, c.Description, c.StartsAt, c.DurationMin, c.Capacity, c.TrainerID, c.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert class: %w", mapPgError(err))
	}
	return nil
}

// List returns classes ordered by start time, optionally filtered by trainer,
// by a start-time range and by a case-insensitive search over name and
// description.
func (r *ClassRepository) List(ctx context.Context, f model.ClassFilter) ([]model.ClassSession, error) {
	var (
		where []string
		args  []any
	)
	if f.TrainerID != "" {
		args = append(args, f.TrainerID)
		where = append(where, fmt.Sprintf("trainer_id = $%d", len(args)))
	}
	if !f.From.IsZero() {
		args = append(args, f.From)
		where = append(where, fmt.Sprintf("starts_at >= $%d", len(args)))
	}
	if !f.To.IsZero() {
		args = append(args, f.To)
		where = append(where, fmt.Sprintf("starts_at <= $%d", len(args)))
	}
	if s := strings.TrimSpace(f.Search); s != "" {
		args = append(args, "%"+s+"%")
		where = append(where, fmt.Sprintf("(name ILIKE $%d OR description ILIKE $%d)", len(args), len(args)))
	}

	sql := `SELECT ` + classColumns + ` FROM classes`
	if len(where) > 0 {
		sql += ` WHERE ` + strings.Join(where, " AND ")
	}
	sql += ` ORDER BY starts_at ASC`

	rows, err := r.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("list classes: %w", err)
	}
	defer rows.Close()

	var classes []model.ClassSession
	for rows.Next() {
		c, err := scanClass(rows)
		if err != nil {
			return nil, fmt.Errorf("scan class: %w", err)
		}
		classes = append(classes, *c)
	}
	return classes, rows.Err()
}

// GetByID returns a single class or ErrNotFound.
func (r *ClassRepository) GetByID(ctx context.Context, id string) (*model.ClassSession, error) {
	c, err := scanClass(r.db.QueryRow(ctx, `SELECT `+classColumns+` FROM classes WHERE id = $1`, id))
	if err != nil {
		if isMissing(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get class: %w", err)
	}
	return c, nil
}

// Update rewrites the editable fields of a class.
func (r *ClassRepository) Update(ctx context.Context, c *model.ClassSession) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE classes
		 SET name = $2, description = $3, starts_at = $4, duration_minutes = $5, capacity = $6
		 WHERE id = $1`,
		c.ID, c.Name, c.Description, c.StartsAt, c.DurationMin, c.Capacity,
	)
	if err != nil {
		if isMissing(err) {
			return ErrNotFound
		}
		return fmt.Errorf("update class: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// Delete removes a class; bookings go with it via ON DELETE CASCADE.
func (r *ClassRepository) Delete(ctx context.Context, id string) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM classes WHERE id = $1`, id)
	if err != nil {
		if isMissing(err) {
			return ErrNotFound
		}
		return fmt.Errorf("delete class: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func scanClass(row pgx.Row) (*model.ClassSession, error) {
	var c model.ClassSession
	if err := row.Scan(&c.ID, &c.Name, &c.Description, &c.StartsAt, &c.DurationMin, &c.Capacity, &c.TrainerID, &c.CreatedAt); err != nil {
		return nil, err
	}
	return &c, nil
}
