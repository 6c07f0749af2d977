package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"
	"github.com/sjc1990app/server/internal/model"
)

type classroomRepo struct {
	db *sql.DB
}

// NewClassroomRepo creates a new ClassroomRepo instance
func NewClassroomRepo(db *sql.DB) ClassroomRepo {
	return &classroomRepo{db: db}
}

func scanClassroom(row rowScanner) (model.Classroom, error) {
	var c model.Classroom
	err := row.Scan(&c.ID, &c.Year, &c.Grade, &c.Section, &c.DisplayName, &c.TeacherName, &c.CreatedAt)
	return c, err
}

// List returns classrooms, optionally filtered by year, ordered by year then display name
func (r *classroomRepo) List(ctx context.Context, year *int) ([]model.Classroom, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, year, grade, section, display_name, teacher_name, created_at
		FROM classrooms
		WHERE $1::int IS NULL OR year = $1
		ORDER BY year, display_name
	`, year)
	if err != nil {
		return nil, fmt.Errorf("query classrooms: %w", err)
	}
	defer rows.Close()

	var out []model.Classroom
	for rows.Next() {
		c, err := scanClassroom(rows)
		if err != nil {
			return nil, fmt.Errorf("scan classroom: %w", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate classrooms: %w", err)
	}
	return out, nil
}

// Get retrieves a classroom by ID
func (r *classroomRepo) Get(ctx context.Context, id string) (model.Classroom, error) {
	c, err := scanClassroom(r.db.QueryRowContext(ctx, `
		SELECT id, year, grade, section, display_name, teacher_name, created_at
		FROM classrooms
		WHERE id = $1
	`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Classroom{}, ErrNotFound
		}
		return model.Classroom{}, fmt.Errorf("query classroom: %w", err)
	}
	return c, nil
}

// MissingIDs returns the ids not present in classrooms, keeping input order
func (r *classroomRepo) MissingIDs(ctx context.Context, ids []string) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT wanted.id
		FROM unnest($1::text[]) WITH ORDINALITY AS wanted(id, pos)
		LEFT JOIN classrooms c ON c.id = wanted.id
		WHERE c.id IS NULL
		ORDER BY wanted.pos
	`, pq.Array(ids))
	if err != nil {
		return nil, fmt.Errorf("query missing classrooms: %w", err)
	}
	defer rows.Close()

	var missing []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan classroom id: %w", err)
		}
		missing = append(missing, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate classroom ids: %w", err)
	}
	return missing, nil
}

// Upsert inserts or replaces a classroom reference record
func (r *classroomRepo) Upsert(ctx context.Context, c model.Classroom) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO classrooms (id, year, grade, section, display_name, teacher_name, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO UPDATE SET
			year = EXCLUDED.year,
			grade = EXCLUDED.grade,
			section = EXCLUDED.section,
			display_name = EXCLUDED.display_name,
			teacher_name = EXCLUDED.teacher_name
	`, c.ID, c.Year, c.Grade, c.Section, c.DisplayName, c.TeacherName, c.CreatedAt)
	if err != nil {
		return fmt.Errorf("upsert classroom: %w", err)
	}
	return nil
}
