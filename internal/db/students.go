package db

import (
	"context"
	"fmt"

	"github.com/student-api/backend/internal/model"
)

func (db *Postgres) FindByEmail(ctx context.Context, email string) (*model.Student, error) {
	query := `SELECT ` + studentColumns + ` FROM students WHERE email = $1`
	return scanStudent(db.Pool.QueryRow(ctx, query, email))
}

func (db *Postgres) FindByID(ctx context.Context, id int) (*model.Student, error) {
	query := `SELECT ` + studentColumns + ` FROM students WHERE id = $1`
	return scanStudent(db.Pool.QueryRow(ctx, query, id))
}

func (db *Postgres) List(ctx context.Context) ([]model.Student, error) {
	query := `SELECT ` + studentColumns + ` FROM students ORDER BY id`
	rows, err := db.Pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	students := []model.Student{}
	for rows.Next() {
		s, err := scanStudent(rows)
		if err != nil {
			return nil, err
		}
		students = append(students, *s)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return students, nil
}

// Create assigns the next id as max(id)+1. The table lock keeps two
// concurrent creates from picking the same id.
func (db *Postgres) Create(ctx context.Context, student *model.Student) (*model.Student, error) {
	tx, err := db.Pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	if _, err := tx.Exec(ctx, `LOCK TABLE students IN SHARE ROW EXCLUSIVE MODE`); err != nil {
		return nil, err
	}

	created := student.Clone()
	if err := tx.QueryRow(ctx, `SELECT COALESCE(MAX(id), 0) + 1 FROM students`).Scan(&created.ID); err != nil {
		return nil, err
	}
	if err := insertStudent(ctx, tx, created); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit student insert: %w", err)
	}
	return created, nil
}

func (db *Postgres) Delete(ctx context.Context, id int) error {
	tag, err := db.Pool.Exec(ctx, `DELETE FROM students WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// Seed inserts students only when the table is empty.
func (db *Postgres) Seed(ctx context.Context, students []model.Student) error {
	var count int
	if err := db.Pool.QueryRow(ctx, `SELECT COUNT(*) FROM students`).Scan(&count); err != nil {
		return err
	}
	if count > 0 {
		return nil
	}

	tx, err := db.Pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	for i := range students {
		if err := insertStudent(ctx, tx, &students[i]); err != nil {
			return fmt.Errorf("seed student %d: %w", students[i].ID, err)
		}
	}
	return tx.Commit(ctx)
}

func insertStudent(ctx context.Context, ex execer, s *model.Student) error {
	hash, expiresAt, revokedAt := refreshColumns(s)
	query := `
		INSERT INTO students (id, name, age, grade, email, password_hash, role,
			refresh_token_hash, refresh_token_expires_at, refresh_token_revoked_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, NULLIF($5, ''), $6, $7, $8, $9, $10, NOW(), NOW())
	`
	_, err := ex.Exec(ctx, query,
		s.ID, s.Name, s.Age, s.Grade, s.Email, s.PasswordHash, s.Role,
		hash, expiresAt, revokedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicateEmail
		}
		return err
	}
	return nil
}
