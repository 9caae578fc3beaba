package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/student-api/backend/internal/clock"
	"github.com/student-api/backend/internal/db"
	"github.com/student-api/backend/internal/model"
	"golang.org/x/crypto/bcrypt"
)

const (
	codeAuthNotFound     = "Auth.NotFound"
	codeAuthUnauthorized = "Auth.Unauthorized"
	codeAuthProblem      = "Auth.Problem"

	msgInvalidCredentials = "Invalid Credentials"
	msgRefreshRevoked     = "Refresh token is revoked"
	msgRefreshExpired     = "Refresh token is expired"
	msgRefreshInvalid     = "Invalid refresh token"

	TokenTypeBearer = "Bearer"
)

// StudentRepository is the credential and roster store. UpdateByEmail must
// apply fn atomically with respect to other updates of the same student.
type StudentRepository interface {
	FindByEmail(ctx context.Context, email string) (*model.Student, error)
	FindByID(ctx context.Context, id int) (*model.Student, error)
	Save(ctx context.Context, student *model.Student) error
	UpdateByEmail(ctx context.Context, email string, fn func(*model.Student) error) (*model.Student, error)
	List(ctx context.Context) ([]model.Student, error)
	Create(ctx context.Context, student *model.Student) (*model.Student, error)
	Delete(ctx context.Context, id int) error
}

type EventPublisher interface {
	Publish(ctx context.Context, event model.AuthEvent) error
}

type TokenPair struct {
	AccessToken  string
	RefreshToken string
	ExpiresIn    time.Duration
}

type AuthService struct {
	repo   StudentRepository
	tokens *TokenService
	clock  clock.Clock
	events EventPublisher
	logger *slog.Logger
}

func NewAuthService(repo StudentRepository, tokens *TokenService, clk clock.Clock, pub EventPublisher, logger *slog.Logger) *AuthService {
	if clk == nil {
		clk = clock.Real()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &AuthService{
		repo:   repo,
		tokens: tokens,
		clock:  clk,
		events: pub,
		logger: logger.With("component", "auth"),
	}
}

func (s *AuthService) Tokens() *TokenService {
	return s.tokens
}

func (s *AuthService) Login(ctx context.Context, email, password string) (*TokenPair, error) {
	student, err := s.repo.FindByEmail(ctx, email)
	if err != nil {
		if db.IsNotFound(err) {
			s.logger.InfoContext(ctx, "login rejected", "email", email, "code", codeAuthNotFound)
			return nil, model.NotFound(codeAuthNotFound, msgInvalidCredentials)
		}
		return nil, s.problem(ctx, "login lookup failed", email, err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(student.PasswordHash), []byte(password)); err != nil {
		s.logger.InfoContext(ctx, "login rejected", "email", email, "student_id", student.ID, "code", codeAuthUnauthorized)
		return nil, model.Unauthorized(codeAuthUnauthorized, msgInvalidCredentials)
	}

	var pair *TokenPair
	updated, err := s.repo.UpdateByEmail(ctx, email, func(current *model.Student) error {
		issued, err := s.issue(current)
		if err != nil {
			return err
		}
		pair = issued
		return nil
	})
	if err != nil {
		return nil, s.problem(ctx, "login token issue failed", email, err)
	}

	s.logger.InfoContext(ctx, "login succeeded", "email", email, "student_id", updated.ID)
	s.publish(ctx, model.AuthEventLogin, updated)
	return pair, nil
}

// Refresh rotates the refresh token. The revoked, expired and hash checks run
// inside UpdateByEmail so two refreshes with the same token cannot both win.
func (s *AuthService) Refresh(ctx context.Context, email, refreshToken string) (*TokenPair, error) {
	var pair *TokenPair
	updated, err := s.repo.UpdateByEmail(ctx, email, func(current *model.Student) error {
		now := s.clock.Now()
		switch {
		case current.Refresh.Revoked():
			return model.Unauthorized(codeAuthUnauthorized, msgRefreshRevoked)
		case current.Refresh.Expired(now):
			return model.Unauthorized(codeAuthUnauthorized, msgRefreshExpired)
		case !s.tokens.VerifyRefreshToken(refreshToken, current.Refresh.Hash):
			return model.Unauthorized(codeAuthUnauthorized, msgRefreshInvalid)
		}

		issued, err := s.issue(current)
		if err != nil {
			return err
		}
		pair = issued
		return nil
	})
	if err != nil {
		return nil, s.flowError(ctx, "refresh", email, err)
	}

	s.logger.InfoContext(ctx, "refresh succeeded", "email", email, "student_id", updated.ID)
	s.publish(ctx, model.AuthEventRefresh, updated)
	return pair, nil
}

// Logout revokes the current refresh token. Every token failure is reported
// as invalid credentials.
func (s *AuthService) Logout(ctx context.Context, email, refreshToken string) (*model.Student, error) {
	updated, err := s.repo.UpdateByEmail(ctx, email, func(current *model.Student) error {
		now := s.clock.Now()
		if current.Refresh.Revoked() ||
			current.Refresh.Expired(now) ||
			!s.tokens.VerifyRefreshToken(refreshToken, current.Refresh.Hash) {
			return model.Unauthorized(codeAuthUnauthorized, msgInvalidCredentials)
		}
		current.Refresh.Revoke(now)
		return nil
	})
	if err != nil {
		return nil, s.flowError(ctx, "logout", email, err)
	}

	s.logger.InfoContext(ctx, "logout succeeded", "email", email, "student_id", updated.ID)
	s.publish(ctx, model.AuthEventLogout, updated)
	return updated, nil
}

func (s *AuthService) issue(student *model.Student) (*TokenPair, error) {
	access, err := s.tokens.IssueAccessToken(student)
	if err != nil {
		return nil, err
	}
	refresh, err := s.tokens.IssueRefreshToken()
	if err != nil {
		return nil, err
	}

	expiresAt := s.clock.Now().Add(s.tokens.RefreshTTL())
	student.Refresh = model.NewRefreshTokenState(s.tokens.HashRefreshToken(refresh), expiresAt)

	return &TokenPair{
		AccessToken:  access,
		RefreshToken: refresh,
		ExpiresIn:    s.tokens.AccessTTL(),
	}, nil
}

func (s *AuthService) flowError(ctx context.Context, op, email string, err error) error {
	if db.IsNotFound(err) {
		s.logger.InfoContext(ctx, op+" rejected", "email", email, "code", codeAuthNotFound)
		return model.NotFound(codeAuthNotFound, msgInvalidCredentials)
	}
	var authErr *model.Error
	if errors.As(err, &authErr) {
		s.logger.InfoContext(ctx, op+" rejected", "email", email, "code", authErr.Code, "reason", authErr.Description)
		return authErr
	}
	return s.problem(ctx, op+" failed", email, err)
}

func (s *AuthService) problem(ctx context.Context, msg, email string, err error) error {
	s.logger.ErrorContext(ctx, msg, "email", email, "error", err)
	return model.Problem(codeAuthProblem, "An unexpected error occurred")
}

func (s *AuthService) publish(ctx context.Context, eventType string, student *model.Student) {
	if s.events == nil {
		return
	}
	event := model.AuthEvent{
		Type:       eventType,
		StudentID:  student.ID,
		Email:      student.Email,
		OccurredAt: s.clock.Now(),
	}
	if err := s.events.Publish(ctx, event); err != nil {
		s.logger.WarnContext(ctx, "auth event publish failed", "type", eventType, "student_id", student.ID, "error", err)
	}
}
