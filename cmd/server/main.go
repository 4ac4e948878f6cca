package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/yukikurage/apollo-api/internal/auth"
	"github.com/yukikurage/apollo-api/internal/config"
	"github.com/yukikurage/apollo-api/internal/constants"
	"github.com/yukikurage/apollo-api/internal/crm"
	"github.com/yukikurage/apollo-api/internal/database"
	"github.com/yukikurage/apollo-api/internal/handlers"
	"github.com/yukikurage/apollo-api/internal/jobs"
	"github.com/yukikurage/apollo-api/internal/logger"
	"github.com/yukikurage/apollo-api/internal/mailer"
	"github.com/yukikurage/apollo-api/internal/metrics"
	"github.com/yukikurage/apollo-api/internal/middleware"
	"github.com/yukikurage/apollo-api/internal/payments"
	"github.com/yukikurage/apollo-api/internal/repository"
	"github.com/yukikurage/apollo-api/internal/services"
	"github.com/yukikurage/apollo-api/internal/storage"
)

func main() {
	// A missing .env is fine; the environment wins either way
	_ = godotenv.Load()

	// Load configuration
	cfg := config.Load()
	log := logger.New(cfg)
	if err := cfg.Validate(); err != nil {
		log.WithError(err).Fatal("Invalid configuration")
	}

	// Set Gin mode
	gin.SetMode(cfg.GinMode)

	// Connect to database
	db, err := database.Open(cfg, log)
	if err != nil {
		log.WithError(err).Fatal("Failed to connect to database")
	}

	// Run migrations
	if err := database.Migrate(db, log); err != nil {
		log.WithError(err).Fatal("Failed to run migrations")
	}
	if err := database.AddIndexes(db, log); err != nil {
		log.WithError(err).Warn("Failed to create feed indexes")
	}

	location, err := time.LoadLocation(cfg.DefaultTimeZone)
	if err != nil {
		log.WithError(err).Fatal("Invalid DEFAULT_TIME_ZONE")
	}

	tokens, err := auth.NewTokenIssuer(cfg.JWTSecret)
	if err != nil {
		log.WithError(err).Fatal("Failed to create token issuer")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	uploader, err := storage.NewS3Uploader(ctx, storage.Config{
		Region:     cfg.S3Region,
		Bucket:     cfg.S3Bucket,
		Endpoint:   cfg.S3Endpoint,
		AccessKey:  cfg.S3AccessKey,
		SecretKey:  cfg.S3SecretKey,
		PresignTTL: cfg.S3PresignTTL,
	})
	if err != nil {
		log.WithError(err).Fatal("Failed to create S3 uploader")
	}

	m := metrics.New()
	provider := payments.NewStripeProvider(cfg.StripeAPIKey, cfg.StripePriceID, cfg.StripeCouponID)
	tagger := crm.NewActiveCampaign(crm.Config{
		BaseURL: cfg.ActiveCampaignBaseURL,
		APIKey:  cfg.ActiveCampaignAPIKey,
		ListID:  cfg.ActiveCampaignListID,
	}, log)
	mail := mailer.NewSendGridMailer(mailer.Config{
		APIKey:           cfg.SendGridAPIKey,
		FromName:         cfg.MailFromName,
		FromAddress:      cfg.MailFromAddress,
		ASMGroupID:       cfg.MailASMGroupID,
		SignUpTemplateID: cfg.SignUpTemplateID,
		ResetTemplateID:  cfg.ResetTemplateID,
	}, log)

	// Repositories
	sequences := repository.NewSequenceRepository()
	users := repository.NewUserRepository(db, sequences)
	codes := repository.NewCodeRepository(db)
	sessions := services.NewSessionIssuer(tokens, repository.NewRefreshTokenRepository(db))

	// Services
	authService := services.NewAuthService(services.AuthDeps{
		Users:       users,
		Codes:       codes,
		EarlyAccess: repository.NewEarlyAccessRepository(db),
		Sessions:    sessions,
		Payments:    provider,
		Mailer:      mail,
		CRM:         tagger,
		Metrics:     m,
		Log:         log,
		Location:    location,
	})
	userService := services.NewUserService(services.UserDeps{
		Users:           users,
		Sessions:        sessions,
		Payments:        provider,
		CRM:             tagger,
		Uploader:        uploader,
		Trial:           services.TrialPolicy{Enabled: cfg.TrialEnabled, Days: cfg.TrialDays},
		DefaultTimeZone: cfg.DefaultTimeZone,
		Log:             log,
	})
	postService := services.NewPostService(repository.NewPostRepository(db, sequences), m)

	loginLimiter, signUpLimiter := newLimiters(ctx, cfg, log)

	r, err := handlers.NewRouter(handlers.RouterDeps{
		AuthService:    authService,
		UserService:    userService,
		PostService:    postService,
		Tokens:         tokens,
		LoginLimiter:   loginLimiter,
		SignUpLimiter:  signUpLimiter,
		Metrics:        m,
		Log:            log,
		CORSOrigins:    cfg.CORSOrigins,
		BodyLimitBytes: cfg.BodyLimitBytes,
		TrustedProxies: cfg.TrustedProxies,
		WebSocketURL:   cfg.WebSocketURL,
	})
	if err != nil {
		log.WithError(err).Fatal("Failed to build router")
	}

	janitor, err := jobs.NewJanitor(cfg.JanitorSchedule, codes, m, log)
	if err != nil {
		log.WithError(err).Fatal("Failed to schedule janitor")
	}
	janitor.Start()
	defer janitor.Stop()

	// Start server
	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		log.WithField("addr", srv.Addr).Info("Server starting")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Fatal("Failed to start server")
		}
	}()

	<-ctx.Done()
	log.Info("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Error("Server shutdown failed")
	}
}

// newLimiters shares login budgets through Redis when REDIS_ADDR is set and
// keeps them in process otherwise.
func newLimiters(ctx context.Context, cfg *config.Config, log logrus.FieldLogger) (middleware.Limiter, middleware.Limiter) {
	if cfg.RedisAddr == "" {
		return middleware.NewMemoryLimiter(constants.LoginAttemptsPerWindow, constants.LoginWindow),
			middleware.NewMemoryLimiter(constants.LoginAttemptsPerWindow, constants.LoginWindow)
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		log.WithError(err).Warn("Redis unreachable, rate limits fail open until it recovers")
	}
	return middleware.NewRedisLimiter(client, "ratelimit:login", constants.LoginAttemptsPerWindow, constants.LoginWindow),
		middleware.NewRedisLimiter(client, "ratelimit:signup", constants.LoginAttemptsPerWindow, constants.LoginWindow)
}
