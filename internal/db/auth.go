package db

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
	"github.com/student-api/backend/internal/db/migrations"
	"github.com/student-api/backend/internal/model"
)

// EnsureSchema applies the embedded goose migrations.
func (db *Postgres) EnsureSchema(ctx context.Context) error {
	sqlDB := stdlib.OpenDBFromPool(db.Pool)
	defer sqlDB.Close()

	goose.SetBaseFS(migrations.FS)
	if err := goose.SetDialect("pgx"); err != nil {
		return err
	}
	if err := goose.UpContext(ctx, sqlDB, "."); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	return nil
}

const studentColumns = `id, name, age, grade, COALESCE(email, ''), password_hash, role,
	refresh_token_hash, refresh_token_expires_at, refresh_token_revoked_at`

func scanStudent(row pgx.Row) (*model.Student, error) {
	var (
		s         model.Student
		hash      *string
		expiresAt *time.Time
		revokedAt *time.Time
	)
	err := row.Scan(
		&s.ID,
		&s.Name,
		&s.Age,
		&s.Grade,
		&s.Email,
		&s.PasswordHash,
		&s.Role,
		&hash,
		&expiresAt,
		&revokedAt,
	)
	if err != nil {
		if IsNoRows(err) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if hash != nil {
		s.Refresh = &model.RefreshTokenState{Hash: *hash, RevokedAt: revokedAt}
		if expiresAt != nil {
			s.Refresh.ExpiresAt = *expiresAt
		}
	}
	return &s, nil
}

func refreshColumns(s *model.Student) (hash *string, expiresAt *time.Time, revokedAt *time.Time) {
	if s.Refresh == nil {
		return nil, nil, nil
	}
	h := s.Refresh.Hash
	exp := s.Refresh.ExpiresAt
	return &h, &exp, s.Refresh.RevokedAt
}

// UpdateByEmail locks the student row for the duration of fn and persists
// whatever fn leaves in the student. An error from fn rolls back.
func (db *Postgres) UpdateByEmail(ctx context.Context, email string, fn func(*model.Student) error) (*model.Student, error) {
	tx, err := db.Pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	query := `SELECT ` + studentColumns + ` FROM students WHERE email = $1 FOR UPDATE`
	student, err := scanStudent(tx.QueryRow(ctx, query, email))
	if err != nil {
		return nil, err
	}

	if err := fn(student); err != nil {
		return nil, err
	}

	if err := updateStudent(ctx, tx, student); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit student update: %w", err)
	}
	return student, nil
}

// Save persists profile fields. Refresh state is only written through
// UpdateByEmail.
func (db *Postgres) Save(ctx context.Context, s *model.Student) error {
	query := `
		UPDATE students
		SET name = $2, age = $3, grade = $4, email = NULLIF($5, ''), password_hash = $6, role = $7,
			updated_at = NOW()
		WHERE id = $1
	`
	tag, err := db.Pool.Exec(ctx, query, s.ID, s.Name, s.Age, s.Grade, s.Email, s.PasswordHash, s.Role)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicateEmail
		}
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

type execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

func updateStudent(ctx context.Context, ex execer, s *model.Student) error {
	hash, expiresAt, revokedAt := refreshColumns(s)
	query := `
		UPDATE students
		SET name = $2, age = $3, grade = $4, email = NULLIF($5, ''), password_hash = $6, role = $7,
			refresh_token_hash = $8, refresh_token_expires_at = $9, refresh_token_revoked_at = $10,
			updated_at = NOW()
		WHERE id = $1
	`
	tag, err := ex.Exec(ctx, query,
		s.ID, s.Name, s.Age, s.Grade, s.Email, s.PasswordHash, s.Role,
		hash, expiresAt, revokedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicateEmail
		}
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
