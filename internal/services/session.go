package services

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/yukikurage/apollo-api/internal/auth"
	"github.com/yukikurage/apollo-api/internal/models"
	"github.com/yukikurage/apollo-api/internal/repository"
	"gorm.io/gorm"
)

// Session is what a client receives after authenticating: an access token and
// the id of the stored refresh token.
type Session struct {
	AccessToken    string
	RefreshTokenID string
}

// SessionIssuer mints access tokens and persists refresh tokens.
type SessionIssuer struct {
	tokens        *auth.TokenIssuer
	refreshTokens repository.RefreshTokenRepository
}

// NewSessionIssuer creates a new SessionIssuer.
func NewSessionIssuer(tokens *auth.TokenIssuer, refreshTokens repository.RefreshTokenRepository) *SessionIssuer {
	return &SessionIssuer{
		tokens:        tokens,
		refreshTokens: refreshTokens,
	}
}

// Issue creates a new access token and refresh token record for user.
func (s *SessionIssuer) Issue(user *models.User) (*Session, error) {
	accessToken, err := s.AccessToken(user)
	if err != nil {
		return nil, err
	}

	refreshToken, err := s.tokens.IssueRefreshToken(user)
	if err != nil {
		return nil, err
	}

	record := &models.RefreshToken{
		ID:     uuid.NewString(),
		UserID: user.ID,
		Token:  refreshToken,
	}
	if err := s.refreshTokens.Create(record); err != nil {
		return nil, fmt.Errorf("failed to store refresh token: %w", err)
	}

	return &Session{
		AccessToken:    accessToken,
		RefreshTokenID: record.ID,
	}, nil
}

// AccessToken issues only a new access token.
func (s *SessionIssuer) AccessToken(user *models.User) (string, error) {
	return s.tokens.IssueAccessToken(user)
}

// VerifyRefreshToken loads a refresh token record and verifies the stored token.
// A missing record yields (nil, nil).
func (s *SessionIssuer) VerifyRefreshToken(id string) (*auth.Claims, error) {
	record, err := s.refreshTokens.FindByID(id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find refresh token: %w", err)
	}
	return s.tokens.Parse(record.Token)
}

// ParseAccessToken verifies an access token.
func (s *SessionIssuer) ParseAccessToken(token string) (*auth.Claims, error) {
	return s.tokens.Parse(token)
}

// EmailToken issues an access token for the email-based identity model.
func (s *SessionIssuer) EmailToken(email string, isProUser, isTrialing, completedTrial bool) (string, error) {
	return s.tokens.IssueEmailToken(email, isProUser, isTrialing, completedTrial)
}
