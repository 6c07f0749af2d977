package repo

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sjc1990app/server/internal/model"
)

type membershipRepo struct {
	db *sql.DB
}

// NewMembershipRepo creates a new MembershipRepo instance
func NewMembershipRepo(db *sql.DB) MembershipRepo {
	return &membershipRepo{db: db}
}

// Assign upserts the memberships in one transaction; a failure leaves none written
func (r *membershipRepo) Assign(ctx context.Context, accountID uuid.UUID, classroomIDs []string, at time.Time) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO memberships (account_id, classroom_id, role, added_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (account_id, classroom_id) DO UPDATE SET role = EXCLUDED.role, added_at = EXCLUDED.added_at
	`)
	if err != nil {
		return fmt.Errorf("prepare membership insert: %w", err)
	}
	defer stmt.Close()

	for _, id := range classroomIDs {
		if _, err := stmt.ExecContext(ctx, accountID, id, model.MembershipStudent, at); err != nil {
			if isForeignKeyViolation(err) {
				return ErrNotFound
			}
			return fmt.Errorf("insert membership %s: %w", id, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// ListForAccount returns the classrooms an account belongs to
func (r *membershipRepo) ListForAccount(ctx context.Context, accountID uuid.UUID) ([]model.AccountClassroom, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT c.id, c.year, c.grade, c.section, c.display_name, c.teacher_name, c.created_at,
		       m.role, m.added_at
		FROM memberships m
		JOIN classrooms c ON c.id = m.classroom_id
		WHERE m.account_id = $1
	`, accountID)
	if err != nil {
		return nil, fmt.Errorf("query account classrooms: %w", err)
	}
	defer rows.Close()

	var out []model.AccountClassroom
	for rows.Next() {
		var ac model.AccountClassroom
		err := rows.Scan(
			&ac.ID,
			&ac.Year,
			&ac.Grade,
			&ac.Section,
			&ac.DisplayName,
			&ac.TeacherName,
			&ac.CreatedAt,
			&ac.Role,
			&ac.AddedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan account classroom: %w", err)
		}
		out = append(out, ac)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate account classrooms: %w", err)
	}
	return out, nil
}

// ListMembers returns the members of a classroom joined with their accounts
func (r *membershipRepo) ListMembers(ctx context.Context, classroomID string) ([]model.MemberSummary, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT a.id, a.name, a.photo_url, a.bio, m.added_at
		FROM memberships m
		JOIN accounts a ON a.id = m.account_id
		WHERE m.classroom_id = $1
	`, classroomID)
	if err != nil {
		return nil, fmt.Errorf("query classroom members: %w", err)
	}
	defer rows.Close()

	var out []model.MemberSummary
	for rows.Next() {
		var m model.MemberSummary
		if err := rows.Scan(&m.AccountID, &m.Name, &m.PhotoURL, &m.Bio, &m.AddedAt); err != nil {
			return nil, fmt.Errorf("scan member: %w", err)
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate members: %w", err)
	}
	return out, nil
}
