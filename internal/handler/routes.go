package handler

import (
	"log/slog"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/student-api/backend/internal/clock"
	"github.com/student-api/backend/internal/model"
	"github.com/student-api/backend/internal/ratelimit"
	"github.com/student-api/backend/internal/service"
)

// Throttle configures the limiter applied to /auth/login and /auth/refresh.
// A nil Limiter disables throttling.
type Throttle struct {
	Limiter ratelimit.Allower
	Limit   int
	Window  time.Duration
	Clock   clock.Clock
}

type Routes struct {
	Auth           *service.AuthService
	Students       *service.StudentService
	AllowedOrigins []string
	// TrustedProxies lists the peers whose X-Forwarded-For is honoured when
	// resolving the client IP. Empty trusts no one.
	TrustedProxies []string
	Throttle       Throttle
	Logger         *slog.Logger
}

func RegisterRoutes(router *gin.Engine, r Routes) error {
	if err := router.SetTrustedProxies(r.TrustedProxies); err != nil {
		return err
	}
	router.Use(CORSMiddleware(r.AllowedOrigins, false))

	router.GET("/ping", Ping)
	router.GET("/", Root)

	authHandler := NewAuthHandler(r.Auth)
	requireAuth := AuthMiddleware(r.Auth.Tokens())

	throttled := func(h gin.HandlerFunc) []gin.HandlerFunc {
		if r.Throttle.Limiter == nil {
			return []gin.HandlerFunc{h}
		}
		return []gin.HandlerFunc{
			ratelimit.Middleware(r.Throttle.Limiter, r.Throttle.Limit, r.Throttle.Window, r.Throttle.Clock, r.Logger),
			h,
		}
	}

	auth := router.Group("/auth")
	auth.POST("/login", throttled(authHandler.Login)...)
	auth.POST("/refresh", throttled(authHandler.Refresh)...)
	auth.POST("/logout", authHandler.Logout)
	auth.GET("/me", requireAuth, authHandler.Me)

	studentHandler := NewStudentHandler(r.Students)
	requireAdmin := RequireRole(model.RoleAdmin)

	students := router.Group("/api/students")
	students.GET("/all", requireAuth, requireAdmin, studentHandler.GetAll)
	students.GET("/passed", studentHandler.GetPassed)
	students.GET("/average-grade", studentHandler.GetAverageGrade)
	students.GET("/:id", requireAuth, studentHandler.GetByID)
	students.POST("", requireAuth, requireAdmin, studentHandler.Create)
	students.PUT("/:id", requireAuth, requireAdmin, studentHandler.Update)
	students.DELETE("/:id", requireAuth, requireAdmin, studentHandler.Delete)
	return nil
}
