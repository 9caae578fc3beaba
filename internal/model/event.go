package model

import "time"

const (
	AuthEventLogin   = "auth.login"
	AuthEventRefresh = "auth.refresh"
	AuthEventLogout  = "auth.logout"
)

type AuthEvent struct {
	Type       string    `json:"type"`
	StudentID  int       `json:"studentId"`
	Email      string    `json:"email"`
	OccurredAt time.Time `json:"occurredAt"`
}
