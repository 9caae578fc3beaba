package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/student-api/backend/internal/model"
	"github.com/student-api/backend/internal/service"
)

type AuthHandler struct {
	svc *service.AuthService
}

func NewAuthHandler(svc *service.AuthService) *AuthHandler {
	return &AuthHandler{svc: svc}
}

// Login godoc
// @Summary Login
// @Tags auth
// @Accept json
// @Produce json
// @Param request body model.LoginRequest true "Email and password"
// @Success 200 {object} model.TokenResponse
// @Failure 400 {object} model.ErrorResponse
// @Failure 401 {object} model.ErrorResponse
// @Failure 429 {object} model.ErrorResponse
// @Failure 500 {object} model.ErrorResponse
// @Router /auth/login [post]
func (h *AuthHandler) Login(c *gin.Context) {
	var req model.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeInvalidRequest(c)
		return
	}

	pair, err := h.svc.Login(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		writeAuthError(c, err)
		return
	}
	c.JSON(http.StatusOK, tokenResponse(pair))
}

// Refresh godoc
// @Summary Rotate refresh token
// @Description Exchanges a refresh token for a new access/refresh pair. The old refresh token stops working.
// @Tags auth
// @Accept json
// @Produce json
// @Param request body model.RefreshRequest true "Email and refresh token"
// @Success 200 {object} model.TokenResponse
// @Failure 400 {object} model.ErrorResponse
// @Failure 401 {object} model.ErrorResponse
// @Failure 500 {object} model.ErrorResponse
// @Router /auth/refresh [post]
func (h *AuthHandler) Refresh(c *gin.Context) {
	var req model.RefreshRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeInvalidRequest(c)
		return
	}

	pair, err := h.svc.Refresh(c.Request.Context(), req.Email, req.RefreshToken)
	if err != nil {
		writeAuthError(c, err)
		return
	}
	c.JSON(http.StatusOK, tokenResponse(pair))
}

// Logout godoc
// @Summary Logout
// @Description Revokes the current refresh token.
// @Tags auth
// @Accept json
// @Produce json
// @Param request body model.LogoutRequest true "Email and refresh token"
// @Success 200 {object} model.AuthLogoutResponse
// @Failure 400 {object} model.ErrorResponse
// @Failure 401 {object} model.ErrorResponse
// @Router /auth/logout [post]
func (h *AuthHandler) Logout(c *gin.Context) {
	var req model.LogoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeInvalidRequest(c)
		return
	}

	if _, err := h.svc.Logout(c.Request.Context(), req.Email, req.RefreshToken); err != nil {
		writeAuthError(c, err)
		return
	}
	c.JSON(http.StatusOK, model.AuthLogoutResponse{Status: "logged_out"})
}

// Me godoc
// @Summary Get current user
// @Tags auth
// @Produce json
// @Security BearerAuth
// @Success 200 {object} model.AuthMeResponse
// @Failure 401 {object} model.ErrorResponse
// @Router /auth/me [get]
func (h *AuthHandler) Me(c *gin.Context) {
	user := GetAuthUser(c)
	if user == nil {
		writeUnauthorized(c)
		return
	}
	c.JSON(http.StatusOK, model.AuthMeResponse{
		UserID: user.ID,
		Email:  user.Email,
		Role:   user.Role,
	})
}

func tokenResponse(pair *service.TokenPair) model.TokenResponse {
	return model.TokenResponse{
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
		ExpiresIn:    int64(pair.ExpiresIn.Seconds()),
		TokenType:    service.TokenTypeBearer,
	}
}

func writeAuthError(c *gin.Context, err error) {
	authErr, ok := model.AsError(err)
	if !ok {
		c.JSON(http.StatusInternalServerError, model.ErrorResponse{Error: "server error"})
		return
	}
	c.JSON(authStatus(authErr.Type), model.ErrorResponse{Error: authErr.Description, Code: authErr.Code})
}

// authStatus maps flow errors to HTTP. NotFound is reported as 401 so a
// caller cannot probe which emails exist by status code alone.
func authStatus(t model.ErrorType) int {
	switch t {
	case model.ErrorFailure, model.ErrorValidation:
		return http.StatusBadRequest
	case model.ErrorNotFound, model.ErrorUnauthorized:
		return http.StatusUnauthorized
	case model.ErrorConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func writeInvalidRequest(c *gin.Context) {
	c.JSON(http.StatusBadRequest, model.ErrorResponse{Error: "invalid request", Code: "Request.Invalid"})
}

func writeUnauthorized(c *gin.Context) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, model.ErrorResponse{Error: "unauthorized"})
}
