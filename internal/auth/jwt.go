package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/yukikurage/apollo-api/internal/constants"
	"github.com/yukikurage/apollo-api/internal/models"
)

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrTokenExpired = errors.New("token has expired")
	ErrEmptySecret  = errors.New("signing secret is empty")
)

// Claims are the decoded contents of an access or refresh token.
// Account tokens carry the user id and subscription flag; early-access tokens
// carry the email-based identity instead.
type Claims struct {
	UserID                uint64 `json:"_id,omitempty"`
	HasActiveSubscription bool   `json:"hasActiveSubscription"`

	Email          string `json:"email,omitempty"`
	IsProUser      bool   `json:"isProUser,omitempty"`
	IsTrialing     bool   `json:"isTrialing,omitempty"`
	CompletedTrial bool   `json:"completedTrial,omitempty"`

	jwt.RegisteredClaims
}

// Expiry returns the token expiry, or the zero time when the token has none.
func (c *Claims) Expiry() time.Time {
	if c.ExpiresAt == nil {
		return time.Time{}
	}
	return c.ExpiresAt.Time
}

// TokenIssuer signs and verifies HS256 tokens with a shared secret.
type TokenIssuer struct {
	secret     []byte
	accessTTL  time.Duration
	refreshTTL time.Duration
	now        func() time.Time
}

// NewTokenIssuer creates a TokenIssuer using the default token lifetimes.
func NewTokenIssuer(secret string) (*TokenIssuer, error) {
	if secret == "" {
		return nil, ErrEmptySecret
	}
	return &TokenIssuer{
		secret:     []byte(secret),
		accessTTL:  constants.AccessTokenValidity,
		refreshTTL: constants.RefreshTokenValidity,
		now:        time.Now,
	}, nil
}

// WithClock overrides the clock used for issuing and verifying tokens.
func (t *TokenIssuer) WithClock(now func() time.Time) *TokenIssuer {
	clone := *t
	clone.now = now
	return &clone
}

// IssueAccessToken creates a short-lived token for user.
func (t *TokenIssuer) IssueAccessToken(user *models.User) (string, error) {
	return t.sign(Claims{
		UserID:                user.ID,
		HasActiveSubscription: user.HasActiveSubscription,
	}, t.accessTTL)
}

// IssueRefreshToken creates a long-lived token for user.
func (t *TokenIssuer) IssueRefreshToken(user *models.User) (string, error) {
	return t.sign(Claims{
		UserID:                user.ID,
		HasActiveSubscription: user.HasActiveSubscription,
	}, t.refreshTTL)
}

// IssueEmailToken creates a short-lived token for the email-based identity model.
func (t *TokenIssuer) IssueEmailToken(email string, isProUser, isTrialing, completedTrial bool) (string, error) {
	return t.sign(Claims{
		Email:          email,
		IsProUser:      isProUser,
		IsTrialing:     isTrialing,
		CompletedTrial: completedTrial,
	}, t.accessTTL)
}

// Parse verifies the signature and expiry of tokenString.
func (t *TokenIssuer) Parse(tokenString string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		return t.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(t.now),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !token.Valid {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

func (t *TokenIssuer) sign(claims Claims, ttl time.Duration) (string, error) {
	now := t.now()
	claims.RegisteredClaims = jwt.RegisteredClaims{
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(t.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}
