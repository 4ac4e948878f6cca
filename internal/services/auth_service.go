package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/yukikurage/apollo-api/internal/constants"
	"github.com/yukikurage/apollo-api/internal/crm"
	"github.com/yukikurage/apollo-api/internal/mailer"
	"github.com/yukikurage/apollo-api/internal/metrics"
	"github.com/yukikurage/apollo-api/internal/models"
	"github.com/yukikurage/apollo-api/internal/payments"
	"github.com/yukikurage/apollo-api/internal/repository"
	"github.com/yukikurage/apollo-api/internal/utils"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

// AuthService handles signup, login, password reset and token refresh.
type AuthService struct {
	users       repository.UserRepository
	codes       repository.CodeRepository
	earlyAccess repository.EarlyAccessRepository
	sessions    *SessionIssuer
	payments    payments.Provider
	mailer      mailer.Mailer
	crm         crm.Tagger
	metrics     *metrics.Metrics
	log         logrus.FieldLogger
	location    *time.Location
	now         func() time.Time
}

// AuthDeps groups the collaborators of AuthService.
type AuthDeps struct {
	Users       repository.UserRepository
	Codes       repository.CodeRepository
	EarlyAccess repository.EarlyAccessRepository
	Sessions    *SessionIssuer
	Payments    payments.Provider
	Mailer      mailer.Mailer
	CRM         crm.Tagger
	Metrics     *metrics.Metrics
	Log         logrus.FieldLogger
	// Location decides the first logged day of new users.
	Location *time.Location
}

// NewAuthService creates a new AuthService.
func NewAuthService(deps AuthDeps) *AuthService {
	location := deps.Location
	if location == nil {
		location = time.UTC
	}
	return &AuthService{
		users:       deps.Users,
		codes:       deps.Codes,
		earlyAccess: deps.EarlyAccess,
		sessions:    deps.Sessions,
		payments:    deps.Payments,
		mailer:      deps.Mailer,
		crm:         deps.CRM,
		metrics:     deps.Metrics,
		log:         deps.Log,
		location:    location,
		now:         time.Now,
	}
}

// SignUpInput is the body of a signup request.
type SignUpInput struct {
	Username        string `json:"username" validate:"required,min=5,max=50"`
	Email           string `json:"email" validate:"required,min=5,max=255,email"`
	Password        string `json:"password" validate:"required,min=8,max=255"`
	ProfileImageObj string `json:"profileImageObj"`
}

func (in *SignUpInput) normalize() {
	in.Username = strings.TrimSpace(in.Username)
	in.Email = strings.TrimSpace(in.Email)
	in.Password = strings.TrimSpace(in.Password)
}

// RequestSignUp validates a new account and emails a signup code.
// The code is stored only after the email was accepted.
func (s *AuthService) RequestSignUp(ctx context.Context, input SignUpInput) error {
	if utils.IsBlank(input.Username, input.Email, input.Password, input.ProfileImageObj) {
		return ErrParametersRequired
	}
	input.normalize()

	if err := s.ensureEmailAvailable(input.Email); err != nil {
		return err
	}
	if err := s.ensureUsernameAvailable(input.Username); err != nil {
		return err
	}
	if err := validateInput(input); err != nil {
		return err
	}

	code, err := utils.GenerateRandomCode(constants.CodeLength)
	if err != nil {
		return err
	}
	if err := s.mailer.SendSignUpCode(ctx, input.Email, code); err != nil {
		return err
	}

	record := &models.SignUpCode{
		SignUpCode: code,
		Email:      input.Email,
		ExpiresAt:  s.now().Add(constants.CodeValidity),
	}
	if err := s.codes.CreateSignUpCode(record); err != nil {
		return fmt.Errorf("failed to store sign up code: %w", err)
	}

	s.metrics.Event(metrics.EventSignUpRequested, 1)
	return nil
}

// CompleteSignUpInput is the body of a signup code redemption.
type CompleteSignUpInput struct {
	SignUpInput
	SignUpCode string `json:"signUpCode"`
}

// CompleteSignUp redeems a signup code and creates the account.
func (s *AuthService) CompleteSignUp(ctx context.Context, input CompleteSignUpInput) (*models.User, *Session, error) {
	if strings.TrimSpace(input.SignUpCode) == "" {
		return nil, nil, ErrSignUpCodeRequired
	}
	input.normalize()

	if _, err := s.codes.FindValidSignUpCode(input.SignUpCode, input.Email, s.now()); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil, ErrInvalidCode
		}
		return nil, nil, fmt.Errorf("failed to find sign up code: %w", err)
	}

	if err := validateInput(input.SignUpInput); err != nil {
		return nil, nil, err
	}

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(input.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, nil, ErrFailedToHashPassword
	}

	now := s.now()
	user := &models.User{
		Username:              input.Username,
		Email:                 input.Email,
		PasswordHash:          string(hashedPassword),
		HasActiveSubscription: s.subscriptionStatus(ctx, input.Email, false),
		ProfileImageObj:       input.ProfileImageObj,
		SignUpDate:            now,
		CurrentLoginStreak:    1,
		WeeklyLoginStreak:     1,
		DaysThisYear:          1,
		LoggedDays:            []string{utils.Today(now, s.location)},
	}

	if err := s.users.CreateWithNextID(user); err != nil {
		if errors.Is(err, repository.ErrCreateUser) {
			if taken := s.ensureUsernameAvailable(user.Username); taken != nil {
				return nil, nil, taken
			}
			if taken := s.ensureEmailAvailable(user.Email); taken != nil {
				return nil, nil, taken
			}
		}
		return nil, nil, err
	}

	session, err := s.sessions.Issue(user)
	if err != nil {
		return nil, nil, err
	}

	s.crm.Tag(ctx, user.Email, constants.TagUser)
	s.metrics.Event(metrics.EventSignUpCompleted, 1)
	return user, session, nil
}

// LoginInput holds the credentials for authentication.
type LoginInput struct {
	UsernameOrEmail string `json:"usernameOrEmail" validate:"required"`
	Password        string `json:"password" validate:"required"`
}

// Login verifies credentials, refreshes the subscription flag and starts a session.
func (s *AuthService) Login(ctx context.Context, input LoginInput) (*models.User, *Session, error) {
	// passwords are stored trimmed
	input.UsernameOrEmail = strings.TrimSpace(input.UsernameOrEmail)
	input.Password = strings.TrimSpace(input.Password)
	if err := validateInput(input); err != nil {
		return nil, nil, err
	}

	user, err := s.users.FindByUsername(input.UsernameOrEmail)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		user, err = s.users.FindByEmail(input.UsernameOrEmail)
	}
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			s.metrics.Event(metrics.EventLoginFailed, 1)
			return nil, nil, ErrInvalidCredentials
		}
		return nil, nil, fmt.Errorf("failed to find user: %w", err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(input.Password)); err != nil {
		s.metrics.Event(metrics.EventLoginFailed, 1)
		return nil, nil, ErrInvalidCredentials
	}

	active := s.subscriptionStatus(ctx, user.Email, user.HasActiveSubscription)
	if active != user.HasActiveSubscription {
		if err := s.users.UpdateFields(user.ID, map[string]interface{}{"has_active_subscription": active}); err != nil {
			return nil, nil, fmt.Errorf("failed to update subscription: %w", err)
		}
		user.HasActiveSubscription = active
	}

	session, err := s.sessions.Issue(user)
	if err != nil {
		return nil, nil, err
	}

	s.metrics.Event(metrics.EventLogin, 1)
	return user, session, nil
}

// Authorize grants early access to an email tagged as a purchaser in the CRM.
// An email is granted at most once.
func (s *AuthService) Authorize(ctx context.Context, email string) (string, error) {
	email = strings.TrimSpace(email)
	if email == "" {
		return "", ErrEmailRequired
	}

	exists, err := s.earlyAccess.Exists(email)
	if err != nil {
		return "", fmt.Errorf("failed to check early access: %w", err)
	}
	if exists || !s.crm.HasPurchased(ctx, email) {
		return "", ErrUnauthorizedAccess
	}

	if err := s.earlyAccess.Create(&models.EarlyAccess{Email: email}); err != nil {
		return "", fmt.Errorf("failed to store early access: %w", err)
	}

	return s.sessions.EmailToken(email, true, false, false)
}

// RequestPasswordReset emails a reset code. Unknown emails succeed silently.
func (s *AuthService) RequestPasswordReset(ctx context.Context, email string) error {
	email = strings.TrimSpace(email)
	if email == "" {
		return ErrEmailRequired
	}

	if _, err := s.users.FindByEmail(email); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil
		}
		return fmt.Errorf("failed to find user: %w", err)
	}

	code, err := utils.GenerateRandomCode(constants.CodeLength)
	if err != nil {
		return err
	}
	if err := s.mailer.SendResetCode(ctx, email, code); err != nil {
		return err
	}

	record := &models.PasswordReset{
		ResetCode: code,
		Email:     email,
		ExpiresAt: s.now().Add(constants.CodeValidity),
	}
	if err := s.codes.CreatePasswordReset(record); err != nil {
		return fmt.Errorf("failed to store reset code: %w", err)
	}

	s.metrics.Event(metrics.EventPasswordReset, 1)
	return nil
}

// UpdatePasswordInput changes a password either with the previous password or a reset code.
type UpdatePasswordInput struct {
	ResetCode   string `json:"resetCode"`
	Email       string `json:"email"`
	OldPassword string `json:"oldPassword"`
	Password    string `json:"password" validate:"required,min=8,max=255"`
}

// UpdatePassword sets a new password and starts a new session.
func (s *AuthService) UpdatePassword(input UpdatePasswordInput) (*Session, error) {
	input.Password = strings.TrimSpace(input.Password)
	if err := validateInput(input); err != nil {
		return nil, err
	}

	var user *models.User
	if input.ResetCode == "" {
		if strings.TrimSpace(input.Email) == "" {
			return nil, ErrEmailRequired
		}
		input.OldPassword = strings.TrimSpace(input.OldPassword)
		if input.OldPassword == "" {
			return nil, ErrOldPasswordRequired
		}

		found, err := s.users.FindByEmail(strings.TrimSpace(input.Email))
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, ErrInvalidPassword
			}
			return nil, fmt.Errorf("failed to find user: %w", err)
		}
		if err := bcrypt.CompareHashAndPassword([]byte(found.PasswordHash), []byte(input.OldPassword)); err != nil {
			return nil, ErrInvalidPassword
		}
		user = found
	} else {
		reset, err := s.codes.FindValidPasswordReset(input.ResetCode, s.now())
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, ErrInvalidCode
			}
			return nil, fmt.Errorf("failed to find reset code: %w", err)
		}

		found, err := s.users.FindByEmail(reset.Email)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, ErrInvalidCode
			}
			return nil, fmt.Errorf("failed to find user: %w", err)
		}
		user = found
	}

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(input.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, ErrFailedToHashPassword
	}
	if err := s.users.UpdateFields(user.ID, map[string]interface{}{"password_hash": string(hashedPassword)}); err != nil {
		return nil, fmt.Errorf("failed to update password: %w", err)
	}
	user.PasswordHash = string(hashedPassword)

	return s.sessions.Issue(user)
}

// CheckResetCode reports whether code is an unexpired reset code.
func (s *AuthService) CheckResetCode(code string) error {
	if strings.TrimSpace(code) == "" {
		return ErrResetCodeRequired
	}
	if _, err := s.codes.FindValidPasswordReset(code, s.now()); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrInvalidCode
		}
		return fmt.Errorf("failed to find reset code: %w", err)
	}
	return nil
}

// RefreshCheck is the outcome of CheckRefresh.
type RefreshCheck struct {
	Valid bool
	// AccessToken is set when a new access token was issued.
	AccessToken string
}

// CheckRefresh reports whether the refresh token record is still valid. When it is,
// and the caller's access token is missing, invalid or expires within the refresh
// window, a new access token is issued.
func (s *AuthService) CheckRefresh(refreshTokenID, currentAccessToken string) (*RefreshCheck, error) {
	if strings.TrimSpace(refreshTokenID) == "" {
		return nil, ErrRefreshIDRequired
	}

	claims, err := s.sessions.VerifyRefreshToken(refreshTokenID)
	if err != nil || claims == nil {
		if err != nil {
			s.log.WithError(err).Debug("Refresh token rejected")
		}
		return &RefreshCheck{Valid: false}, nil
	}

	result := &RefreshCheck{Valid: true}
	if currentAccessToken != "" {
		current, err := s.sessions.ParseAccessToken(currentAccessToken)
		if err == nil && current.Expiry().After(s.now().Add(constants.RefreshWindow)) {
			return result, nil
		}
	}

	user, err := s.users.FindByID(claims.UserID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return &RefreshCheck{Valid: false}, nil
		}
		return nil, fmt.Errorf("failed to find user: %w", err)
	}

	token, err := s.sessions.AccessToken(user)
	if err != nil {
		return nil, err
	}
	result.AccessToken = token
	return result, nil
}

// subscriptionStatus asks the payment provider; on failure fallback is kept.
func (s *AuthService) subscriptionStatus(ctx context.Context, email string, fallback bool) bool {
	active, err := s.payments.HasActiveSubscription(ctx, email)
	if err != nil {
		s.log.WithError(err).Warn("Subscription lookup failed")
		return fallback
	}
	return active
}

func (s *AuthService) ensureEmailAvailable(email string) error {
	if _, err := s.users.FindByEmail(email); err == nil {
		return ErrEmailTaken
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("failed to check email: %w", err)
	}
	return nil
}

func (s *AuthService) ensureUsernameAvailable(username string) error {
	if _, err := s.users.FindByUsername(username); err == nil {
		return ErrUsernameTaken
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("failed to check username: %w", err)
	}
	return nil
}
