package handlers

import (
	"fmt"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/yukikurage/apollo-api/internal/auth"
	"github.com/yukikurage/apollo-api/internal/constants"
	"github.com/yukikurage/apollo-api/internal/logger"
	"github.com/yukikurage/apollo-api/internal/metrics"
	"github.com/yukikurage/apollo-api/internal/middleware"
	"github.com/yukikurage/apollo-api/internal/services"
)

// RouterDeps is everything the HTTP surface needs.
type RouterDeps struct {
	AuthService *services.AuthService
	UserService *services.UserService
	PostService *services.PostService
	Tokens      *auth.TokenIssuer

	// LoginLimiter guards /auth/login and /auth/authorize; SignUpLimiter guards POST /users.
	LoginLimiter  middleware.Limiter
	SignUpLimiter middleware.Limiter

	Metrics        *metrics.Metrics
	Log            logrus.FieldLogger
	CORSOrigins    []string
	// TrustedProxies may set X-Forwarded-For; nil means the peer address is the client.
	TrustedProxies []string
	BodyLimitBytes int64
	WebSocketURL   string
}

// NewRouter builds the gin engine with middleware and all routes mounted.
func NewRouter(deps RouterDeps) (*gin.Engine, error) {
	r := gin.New()
	if err := r.SetTrustedProxies(deps.TrustedProxies); err != nil {
		return nil, fmt.Errorf("invalid trusted proxies: %w", err)
	}
	r.Use(gin.Recovery())
	r.Use(logger.Middleware(deps.Log))
	r.Use(deps.Metrics.Middleware())
	r.Use(cors.New(corsConfig(deps.CORSOrigins)))
	r.Use(gzip.Gzip(gzip.DefaultCompression))
	r.Use(middleware.BodyLimit(deps.BodyLimitBytes))

	authHandler := NewAuthHandler(deps.AuthService)
	userHandler := NewUserHandler(deps.AuthService, deps.UserService)
	postHandler := NewPostHandler(deps.PostService)
	socketHandler := NewSocketHandler(deps.WebSocketURL)

	requireAuth := middleware.RequireAuth(deps.Tokens)
	loginLimit := middleware.RateLimit(deps.LoginLimiter, middleware.LoginLimitMessage, deps.Metrics, deps.Log)
	signUpLimit := middleware.RateLimit(deps.SignUpLimiter, "", deps.Metrics, deps.Log)

	r.GET("/health", Health)
	if deps.Metrics != nil {
		r.GET("/metrics", deps.Metrics.Handler())
	}

	api := r.Group("/api")
	{
		users := api.Group("/users")
		{
			users.POST("/", signUpLimit, userHandler.RequestSignUp)
			users.GET("/me", requireAuth, userHandler.GetMe)
			users.POST("/profile_image", requireAuth, userHandler.SetProfileImage)
			users.GET("/profile_image/upload_url", requireAuth, userHandler.ProfileImageUploadURL)
			users.PUT("/update_username", requireAuth, userHandler.UpdateUsername)
			users.POST("/check_username", userHandler.CheckUsername)
			users.POST("/check_email", userHandler.CheckEmail)
			users.POST("/login_streak", userHandler.LoginStreak)
			users.GET("/subscription_status", requireAuth, userHandler.SubscriptionStatus)
			users.GET("/subscription_details", requireAuth, userHandler.SubscriptionDetails)
			users.POST("/continue_subscription", requireAuth, userHandler.ContinueSubscription)
			users.POST("/cancel_subscription", requireAuth, userHandler.CancelSubscription)
			users.POST("/promo_code", requireAuth, userHandler.CreatePromoCode)
		}

		authRoutes := api.Group("/auth")
		{
			authRoutes.POST("/authorize", loginLimit, authHandler.Authorize)
			authRoutes.POST("/login", loginLimit, authHandler.Login)
			authRoutes.POST("/reset_password", authHandler.ResetPassword)
			authRoutes.PUT("/update_password", authHandler.UpdatePassword)
			authRoutes.POST("/password_reset_code_check", authHandler.CheckResetCode)
			authRoutes.POST("/sign_up_code_check", authHandler.CompleteSignUp)
			authRoutes.POST("/check_refresh", authHandler.CheckRefresh)
		}

		posts := api.Group("/posts")
		posts.Use(requireAuth)
		{
			posts.POST("/", postHandler.CreatePost)
			posts.GET("/", postHandler.ListPosts)
			posts.GET("/search", postHandler.SearchPosts)
			posts.DELETE("/:id", postHandler.DeletePost)
			posts.PUT("/:id/like", postHandler.Like)
			posts.DELETE("/:id/like", postHandler.Unlike)
			posts.PUT("/:id/bookmark", postHandler.Bookmark)
			posts.DELETE("/:id/bookmark", postHandler.Unbookmark)
		}

		api.GET("/socket/", socketHandler.Config)
	}

	return r, nil
}

func corsConfig(origins []string) cors.Config {
	cfg := cors.Config{
		AllowMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders: []string{"Origin", "Content-Type", "Accept", constants.HeaderAuthorization},
		ExposeHeaders: []string{
			constants.HeaderAuthorization,
			constants.HeaderRefreshTokenID,
			constants.HeaderRateLimitLimit,
			constants.HeaderRateLimitLeft,
			constants.HeaderRateLimitReset,
		},
		MaxAge: 12 * time.Hour,
	}
	if len(origins) == 0 || (len(origins) == 1 && origins[0] == "*") {
		cfg.AllowAllOrigins = true
	} else {
		cfg.AllowOrigins = origins
	}
	return cfg
}
