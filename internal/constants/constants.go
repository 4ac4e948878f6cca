package constants

import "time"

// ContextKeyUserID is where RequireAuth stores the caller's user id.
const ContextKeyUserID = "user_id"

// Header names used as the out-of-band token channel
const (
	HeaderAuthorization  = "Authorization"
	HeaderRefreshTokenID = "Refresh-Token-Id"
	HeaderRateLimitLimit = "RateLimit-Limit"
	HeaderRateLimitLeft  = "RateLimit-Remaining"
	HeaderRateLimitReset = "RateLimit-Reset"
	BearerPrefix         = "Bearer "
)

// Pagination
const (
	MinPageSize     = 1
	DefaultPageSize = 10
	MaxPageSize     = 20
)

// One-time codes
const (
	CodeLength   = 6
	CodeValidity = 10 * time.Minute
)

// Tokens
const (
	AccessTokenValidity  = 30 * time.Minute
	RefreshTokenValidity = 30 * 24 * time.Hour
	RefreshWindow        = time.Hour
)

// Login rate limiting
const (
	LoginAttemptsPerWindow = 10
	LoginWindow            = 15 * time.Minute
)

// Date layout for logged days
const DayLayout = "2006-01-02"

// CRM tags
const (
	TagPurchaser = "apolloPurchaser"
	TagTrialUser = "apolloTrialUser"
	TagUser      = "apolloUser"
	TagPromoCode = "apolloPromoCode"
)

// Subscription plans
const (
	PlanSuite = "Suite"
	PlanLite  = "Lite"
)
