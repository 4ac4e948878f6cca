package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Port     string
	GinMode  string
	LogLevel string

	DBDriver   string
	DBDSN      string
	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string

	JWTSecret string

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	StripeAPIKey   string
	StripePriceID  string
	StripeCouponID string

	SendGridAPIKey   string
	MailFromName     string
	MailFromAddress  string
	MailASMGroupID   int
	SignUpTemplateID string
	ResetTemplateID  string

	ActiveCampaignBaseURL string
	ActiveCampaignAPIKey  string
	ActiveCampaignListID  int

	WebSocketURL string

	S3Region     string
	S3Bucket     string
	S3Endpoint   string
	S3AccessKey  string
	S3SecretKey  string
	S3PresignTTL time.Duration

	TrialEnabled    bool
	TrialDays       int
	DefaultTimeZone string

	CORSOrigins     []string
	TrustedProxies  []string
	BodyLimitBytes  int64
	JanitorSchedule string
}

func Load() *Config {
	v := viper.New()
	v.AutomaticEnv()

	v.SetDefault("PORT", "8080")
	v.SetDefault("GIN_MODE", "debug")
	v.SetDefault("LOG_LEVEL", "info")

	v.SetDefault("DB_DRIVER", "mysql")
	v.SetDefault("DB_DSN", "")
	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", "3306")
	v.SetDefault("DB_USER", "apollo")
	v.SetDefault("DB_PASSWORD", "apollo")
	v.SetDefault("DB_NAME", "apollo")

	v.SetDefault("JWT_SECRET", "")

	v.SetDefault("REDIS_ADDR", "")
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)

	v.SetDefault("STRIPE_API_KEY", "")
	v.SetDefault("STRIPE_PRICE_ID", "")
	v.SetDefault("STRIPE_COUPON_ID", "")

	v.SetDefault("SENDGRID_API_KEY", "")
	v.SetDefault("MAIL_FROM_NAME", "Apollo")
	v.SetDefault("MAIL_FROM_ADDRESS", "no-reply@example.com")
	v.SetDefault("MAIL_ASM_GROUP_ID", 0)
	v.SetDefault("SIGNUP_TEMPLATE_ID", "")
	v.SetDefault("RESET_TEMPLATE_ID", "")

	v.SetDefault("ACTIVE_CAMPAIGN_BASE_URL", "")
	v.SetDefault("ACTIVE_CAMPAIGN_API_KEY", "")
	v.SetDefault("ACTIVE_CAMPAIGN_LIST_ID", 1)

	v.SetDefault("WEBSOCKET_URL", "")

	v.SetDefault("S3_REGION", "us-east-1")
	v.SetDefault("S3_BUCKET", "")
	v.SetDefault("S3_ENDPOINT", "")
	v.SetDefault("S3_ACCESS_KEY", "")
	v.SetDefault("S3_SECRET_KEY", "")
	v.SetDefault("S3_PRESIGN_TTL", "15m")

	v.SetDefault("TRIAL_ENABLED", true)
	v.SetDefault("TRIAL_DAYS", 7)
	v.SetDefault("DEFAULT_TIME_ZONE", "America/Chicago")

	v.SetDefault("CORS_ORIGINS", "*")
	v.SetDefault("TRUSTED_PROXIES", "")
	v.SetDefault("BODY_LIMIT_BYTES", 50<<20)
	v.SetDefault("JANITOR_SCHEDULE", "@hourly")

	return &Config{
		Port:     v.GetString("PORT"),
		GinMode:  v.GetString("GIN_MODE"),
		LogLevel: v.GetString("LOG_LEVEL"),

		DBDriver:   strings.ToLower(v.GetString("DB_DRIVER")),
		DBDSN:      v.GetString("DB_DSN"),
		DBHost:     v.GetString("DB_HOST"),
		DBPort:     v.GetString("DB_PORT"),
		DBUser:     v.GetString("DB_USER"),
		DBPassword: v.GetString("DB_PASSWORD"),
		DBName:     v.GetString("DB_NAME"),

		JWTSecret: v.GetString("JWT_SECRET"),

		RedisAddr:     v.GetString("REDIS_ADDR"),
		RedisPassword: v.GetString("REDIS_PASSWORD"),
		RedisDB:       v.GetInt("REDIS_DB"),

		StripeAPIKey:   v.GetString("STRIPE_API_KEY"),
		StripePriceID:  v.GetString("STRIPE_PRICE_ID"),
		StripeCouponID: v.GetString("STRIPE_COUPON_ID"),

		SendGridAPIKey:   v.GetString("SENDGRID_API_KEY"),
		MailFromName:     v.GetString("MAIL_FROM_NAME"),
		MailFromAddress:  v.GetString("MAIL_FROM_ADDRESS"),
		MailASMGroupID:   v.GetInt("MAIL_ASM_GROUP_ID"),
		SignUpTemplateID: v.GetString("SIGNUP_TEMPLATE_ID"),
		ResetTemplateID:  v.GetString("RESET_TEMPLATE_ID"),

		ActiveCampaignBaseURL: strings.TrimSuffix(v.GetString("ACTIVE_CAMPAIGN_BASE_URL"), "/"),
		ActiveCampaignAPIKey:  v.GetString("ACTIVE_CAMPAIGN_API_KEY"),
		ActiveCampaignListID:  v.GetInt("ACTIVE_CAMPAIGN_LIST_ID"),

		WebSocketURL: v.GetString("WEBSOCKET_URL"),

		S3Region:     v.GetString("S3_REGION"),
		S3Bucket:     v.GetString("S3_BUCKET"),
		S3Endpoint:   v.GetString("S3_ENDPOINT"),
		S3AccessKey:  v.GetString("S3_ACCESS_KEY"),
		S3SecretKey:  v.GetString("S3_SECRET_KEY"),
		S3PresignTTL: v.GetDuration("S3_PRESIGN_TTL"),

		TrialEnabled:    v.GetBool("TRIAL_ENABLED"),
		TrialDays:       v.GetInt("TRIAL_DAYS"),
		DefaultTimeZone: v.GetString("DEFAULT_TIME_ZONE"),

		CORSOrigins:     splitList(v.GetString("CORS_ORIGINS")),
		TrustedProxies:  splitList(v.GetString("TRUSTED_PROXIES")),
		BodyLimitBytes:  v.GetInt64("BODY_LIMIT_BYTES"),
		JanitorSchedule: v.GetString("JANITOR_SCHEDULE"),
	}
}

// Validate reports configuration that would make the server unusable.
func (c *Config) Validate() error {
	if c.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}
	switch c.DBDriver {
	case "mysql", "postgres", "sqlite":
	default:
		return fmt.Errorf("unsupported DB_DRIVER %q", c.DBDriver)
	}
	return nil
}

// IsProduction reports whether gin runs in release mode.
func (c *Config) IsProduction() bool {
	return c.GinMode == "release"
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
