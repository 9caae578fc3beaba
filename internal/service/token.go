package service

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/student-api/backend/internal/clock"
	"github.com/student-api/backend/internal/config"
	"github.com/student-api/backend/internal/model"
)

const refreshTokenBytes = 64

var (
	ErrMisconfigured      = errors.New("auth config invalid")
	ErrInvalidAccessToken = errors.New("invalid access token")
	ErrAccessTokenExpired = errors.New("access token expired")
)

// TokenService issues and verifies access tokens (HS256 JWT) and opaque
// refresh tokens.
type TokenService struct {
	secret     []byte
	issuer     string
	audience   string
	accessTTL  time.Duration
	refreshTTL time.Duration
	clock      clock.Clock
	rand       io.Reader
	parser     *jwt.Parser
}

type accessClaims struct {
	Email string `json:"email"`
	Role  string `json:"role"`
	jwt.RegisteredClaims
}

func NewTokenService(cfg config.AuthConfig, clk clock.Clock) (*TokenService, error) {
	if strings.TrimSpace(cfg.JWTSecret) == "" {
		return nil, fmt.Errorf("%w: JWT_SECRET_KEY is required", ErrMisconfigured)
	}
	if cfg.Issuer == "" || cfg.Audience == "" {
		return nil, fmt.Errorf("%w: JWT issuer and audience are required", ErrMisconfigured)
	}

	accessTTL, err := cfg.AccessTTL()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMisconfigured, err)
	}
	refreshTTL, err := cfg.RefreshTTL()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMisconfigured, err)
	}

	if clk == nil {
		clk = clock.Real()
	}

	return &TokenService{
		secret:     []byte(cfg.JWTSecret),
		issuer:     cfg.Issuer,
		audience:   cfg.Audience,
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
		clock:      clk,
		rand:       rand.Reader,
		parser: jwt.NewParser(
			jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
			jwt.WithIssuer(cfg.Issuer),
			jwt.WithAudience(cfg.Audience),
			jwt.WithExpirationRequired(),
			jwt.WithIssuedAt(),
			jwt.WithTimeFunc(clk.Now),
		),
	}, nil
}

func (s *TokenService) AccessTTL() time.Duration  { return s.accessTTL }
func (s *TokenService) RefreshTTL() time.Duration { return s.refreshTTL }

// WithRandom swaps the entropy source used for refresh tokens.
func (s *TokenService) WithRandom(r io.Reader) *TokenService {
	s.rand = r
	return s
}

func (s *TokenService) IssueAccessToken(student *model.Student) (string, error) {
	now := s.clock.Now()
	claims := accessClaims{
		Email: student.Email,
		Role:  student.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   strconv.Itoa(student.ID),
			Issuer:    s.issuer,
			Audience:  jwt.ClaimStrings{s.audience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.accessTTL)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("sign access token: %w", err)
	}
	return signed, nil
}

func (s *TokenService) ParseAccessToken(tokenStr string) (*model.AuthUser, error) {
	claims := &accessClaims{}
	token, err := s.parser.ParseWithClaims(tokenStr, claims, func(*jwt.Token) (interface{}, error) {
		return s.secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrAccessTokenExpired
		}
		return nil, ErrInvalidAccessToken
	}
	if !token.Valid {
		return nil, ErrInvalidAccessToken
	}

	id, err := strconv.Atoi(claims.Subject)
	if err != nil {
		return nil, ErrInvalidAccessToken
	}

	return &model.AuthUser{
		ID:      id,
		Subject: claims.Subject,
		Email:   claims.Email,
		Role:    claims.Role,
	}, nil
}

func (s *TokenService) IssueRefreshToken() (string, error) {
	raw := make([]byte, refreshTokenBytes)
	if _, err := io.ReadFull(s.rand, raw); err != nil {
		return "", fmt.Errorf("read refresh token entropy: %w", err)
	}
	return base64.StdEncoding.EncodeToString(raw), nil
}

func (s *TokenService) HashRefreshToken(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}

func (s *TokenService) VerifyRefreshToken(raw, hash string) bool {
	if raw == "" || hash == "" {
		return false
	}
	computed := s.HashRefreshToken(raw)
	return subtle.ConstantTimeCompare([]byte(computed), []byte(hash)) == 1
}
