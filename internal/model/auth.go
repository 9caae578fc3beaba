package model

type LoginRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type RefreshRequest struct {
	Email        string `json:"email" binding:"required"`
	RefreshToken string `json:"refreshToken" binding:"required"`
}

type LogoutRequest struct {
	Email        string `json:"email" binding:"required"`
	RefreshToken string `json:"refreshToken" binding:"required"`
}

type TokenResponse struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
	ExpiresIn    int64  `json:"expiresIn"`
	TokenType    string `json:"tokenType"`
}

// AuthUser is the identity extracted from a verified access token.
type AuthUser struct {
	ID      int
	Subject string
	Email   string
	Role    string
}
