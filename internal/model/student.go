package model

import "time"

const (
	RoleAdmin   = "Admin"
	RoleStudent = "Student"
)

// Student is both a roster entry and the login principal.
type Student struct {
	ID           int                `json:"id"`
	Name         string             `json:"name"`
	Age          int                `json:"age"`
	Grade        int                `json:"grade"`
	Email        string             `json:"email"`
	PasswordHash string             `json:"-"`
	Role         string             `json:"role"`
	Refresh      *RefreshTokenState `json:"-"`
}

// Clone returns a deep copy so callers never share refresh state with a store.
func (s *Student) Clone() *Student {
	if s == nil {
		return nil
	}
	out := *s
	if s.Refresh != nil {
		r := *s.Refresh
		if s.Refresh.RevokedAt != nil {
			revokedAt := *s.Refresh.RevokedAt
			r.RevokedAt = &revokedAt
		}
		out.Refresh = &r
	}
	return &out
}

// RefreshTokenState is the persisted half of a refresh token. The raw token
// is never stored; Hash is set, replaced and revoked as one unit.
type RefreshTokenState struct {
	Hash      string
	ExpiresAt time.Time
	RevokedAt *time.Time
}

func NewRefreshTokenState(hash string, expiresAt time.Time) *RefreshTokenState {
	return &RefreshTokenState{Hash: hash, ExpiresAt: expiresAt}
}

func (r *RefreshTokenState) Revoked() bool {
	return r != nil && r.RevokedAt != nil
}

// Expired reports whether the token is missing or its expiry is at or before now.
func (r *RefreshTokenState) Expired(now time.Time) bool {
	return r == nil || r.ExpiresAt.IsZero() || !r.ExpiresAt.After(now)
}

func (r *RefreshTokenState) Revoke(now time.Time) {
	r.RevokedAt = &now
}

// StudentRequest is the create/update payload. Password is capped at the
// bcrypt input limit; max counts runes, so the byte length is rechecked by the
// service.
type StudentRequest struct {
	Name     string `json:"name" binding:"required"`
	Age      int    `json:"age" binding:"gte=7"`
	Grade    int    `json:"grade" binding:"gte=0,lte=100"`
	Email    string `json:"email"`
	Password string `json:"password" binding:"omitempty,max=72"`
	Role     string `json:"role"`
}

// MaxPasswordBytes is the longest password bcrypt accepts.
const MaxPasswordBytes = 72
