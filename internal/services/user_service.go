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
	"github.com/yukikurage/apollo-api/internal/models"
	"github.com/yukikurage/apollo-api/internal/payments"
	"github.com/yukikurage/apollo-api/internal/repository"
	"github.com/yukikurage/apollo-api/internal/storage"
	"github.com/yukikurage/apollo-api/internal/utils"
	"gorm.io/gorm"
)

// TrialPolicy describes the free trial granted after signup.
type TrialPolicy struct {
	Enabled bool
	Days    int
}

// UserService handles profile, streak and subscription operations.
type UserService struct {
	users           repository.UserRepository
	sessions        *SessionIssuer
	payments        payments.Provider
	crm             crm.Tagger
	uploader        storage.Uploader
	trial           TrialPolicy
	defaultTimeZone string
	log             logrus.FieldLogger
	now             func() time.Time
}

// UserDeps groups the collaborators of UserService.
type UserDeps struct {
	Users           repository.UserRepository
	Sessions        *SessionIssuer
	Payments        payments.Provider
	CRM             crm.Tagger
	Uploader        storage.Uploader
	Trial           TrialPolicy
	DefaultTimeZone string
	Log             logrus.FieldLogger
}

// NewUserService creates a new UserService.
func NewUserService(deps UserDeps) *UserService {
	return &UserService{
		users:           deps.Users,
		sessions:        deps.Sessions,
		payments:        deps.Payments,
		crm:             deps.CRM,
		uploader:        deps.Uploader,
		trial:           deps.Trial,
		defaultTimeZone: deps.DefaultTimeZone,
		log:             deps.Log,
		now:             time.Now,
	}
}

// GetUser retrieves a user by ID.
func (s *UserService) GetUser(id uint64) (*models.User, error) {
	user, err := s.users.FindByID(id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to find user: %w", err)
	}
	return user, nil
}

// SetProfileImage stores the client supplied profile image descriptor.
func (s *UserService) SetProfileImage(id uint64, profileImageObj string) (*models.User, error) {
	user, err := s.GetUser(id)
	if err != nil {
		return nil, err
	}
	if err := s.users.UpdateFields(id, map[string]interface{}{"profile_image_obj": profileImageObj}); err != nil {
		return nil, fmt.Errorf("failed to update profile image: %w", err)
	}
	user.ProfileImageObj = profileImageObj
	return user, nil
}

// ProfileImageUploadURL returns a presigned upload target for a new profile image.
func (s *UserService) ProfileImageUploadURL(ctx context.Context, id uint64) (*storage.PresignedUpload, error) {
	if _, err := s.GetUser(id); err != nil {
		return nil, err
	}
	upload, err := s.uploader.PresignProfileImageUpload(ctx, id)
	if err != nil {
		if errors.Is(err, storage.ErrNotConfigured) {
			return nil, ErrStorageUnavailable
		}
		return nil, err
	}
	return upload, nil
}

// UpdateUsernameInput is the body of a username change.
type UpdateUsernameInput struct {
	Username string `json:"username" validate:"required,min=5,max=50"`
}

// UpdateUsername renames a user and issues an access token carrying the new state.
func (s *UserService) UpdateUsername(id uint64, input UpdateUsernameInput) (*models.User, string, error) {
	input.Username = strings.TrimSpace(input.Username)
	if err := validateInput(input); err != nil {
		return nil, "", err
	}
	if err := s.CheckUsername(input.Username); err != nil {
		return nil, "", err
	}

	user, err := s.GetUser(id)
	if err != nil {
		return nil, "", err
	}
	if err := s.users.UpdateFields(id, map[string]interface{}{"username": input.Username}); err != nil {
		return nil, "", fmt.Errorf("failed to update username: %w", err)
	}
	user.Username = input.Username

	token, err := s.sessions.AccessToken(user)
	if err != nil {
		return nil, "", err
	}
	return user, token, nil
}

// CheckUsername returns ErrUsernameTaken when username is in use.
func (s *UserService) CheckUsername(username string) error {
	username = strings.TrimSpace(username)
	if username == "" {
		return ErrUsernameRequired
	}
	if _, err := s.users.FindByUsername(username); err == nil {
		return ErrUsernameTaken
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("failed to check username: %w", err)
	}
	return nil
}

// CheckEmail returns ErrEmailTaken when email is in use.
func (s *UserService) CheckEmail(email string) error {
	email = strings.TrimSpace(email)
	if email == "" {
		return ErrEmailRequired
	}
	if _, err := s.users.FindByEmail(email); err == nil {
		return ErrEmailTaken
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("failed to check email: %w", err)
	}
	return nil
}

// StreakResult is the login streak state shown to the user.
type StreakResult struct {
	CurrentLoginStreak   int      `json:"currentLoginStreak"`
	WeeklyLoginStreak    int      `json:"weeklyLoginStreak"`
	DaysInApolloThisYear int      `json:"daysInApolloThisYear"`
	LoggedDays           []string `json:"loggedDays"`
	CurrentWeekDays      []string `json:"currentWeekDays"`
}

// RecordLogin checks the user owning the refresh token in for today in timeZone
// and returns the updated streak with a new access token.
func (s *UserService) RecordLogin(refreshTokenID, timeZone string) (*StreakResult, string, error) {
	if strings.TrimSpace(refreshTokenID) == "" {
		return nil, "", ErrRefreshIDRequired
	}
	location, err := utils.LoadLocation(strings.TrimSpace(timeZone), s.defaultTimeZone)
	if err != nil {
		return nil, "", ErrInvalidTimeZone
	}

	claims, err := s.sessions.VerifyRefreshToken(refreshTokenID)
	if err != nil {
		s.log.WithError(err).Debug("Refresh token rejected")
		return nil, "", ErrRefreshTokenExpired
	}
	if claims == nil {
		return nil, "", ErrRefreshTokenNotFound
	}

	user, err := s.GetUser(claims.UserID)
	if err != nil {
		return nil, "", err
	}

	today := utils.Today(s.now(), location)
	current := utils.Streak{
		Daily:        user.CurrentLoginStreak,
		Weekly:       user.WeeklyLoginStreak,
		DaysThisYear: user.DaysThisYear,
		LoggedDays:   user.LoggedDays,
	}
	next, err := utils.CheckIn(current, today)
	if err != nil {
		return nil, "", err
	}

	if next.Daily != current.Daily || next.Weekly != current.Weekly ||
		next.DaysThisYear != current.DaysThisYear || len(next.LoggedDays) != len(current.LoggedDays) {
		user.CurrentLoginStreak = next.Daily
		user.WeeklyLoginStreak = next.Weekly
		user.DaysThisYear = next.DaysThisYear
		user.LoggedDays = next.LoggedDays
		if err := s.users.SaveStreak(user); err != nil {
			return nil, "", fmt.Errorf("failed to save login streak: %w", err)
		}
	}

	weekDays, err := utils.CurrentWeekDays(today)
	if err != nil {
		return nil, "", err
	}
	loggedThisWeek, err := utils.LoggedDaysThisWeek(next.LoggedDays, today)
	if err != nil {
		return nil, "", err
	}

	token, err := s.sessions.AccessToken(user)
	if err != nil {
		return nil, "", err
	}

	return &StreakResult{
		CurrentLoginStreak:   next.Daily,
		WeeklyLoginStreak:    next.Weekly,
		DaysInApolloThisYear: next.DaysThisYear,
		LoggedDays:           loggedThisWeek,
		CurrentWeekDays:      weekDays,
	}, token, nil
}

// SubscriptionStatus is the subscription state of a user including the trial.
type SubscriptionStatus struct {
	HasActiveSubscription bool `json:"hasActiveSubscription"`
	IsTrialing            bool `json:"isTrialing"`
	CompletedTrial        bool `json:"completedTrial"`
}

// RefreshSubscription asks the payment provider for the current status, persists it and
// issues an access token carrying it.
func (s *UserService) RefreshSubscription(ctx context.Context, id uint64) (*SubscriptionStatus, string, error) {
	user, err := s.GetUser(id)
	if err != nil {
		return nil, "", err
	}

	active, err := s.payments.HasActiveSubscription(ctx, user.Email)
	if err != nil {
		s.log.WithError(err).Warn("Subscription lookup failed")
		active = user.HasActiveSubscription
	}
	if active != user.HasActiveSubscription {
		if err := s.users.UpdateFields(id, map[string]interface{}{"has_active_subscription": active}); err != nil {
			return nil, "", fmt.Errorf("failed to update subscription: %w", err)
		}
		user.HasActiveSubscription = active
	}

	token, err := s.sessions.AccessToken(user)
	if err != nil {
		return nil, "", err
	}
	return s.statusFor(user), token, nil
}

func (s *UserService) statusFor(user *models.User) *SubscriptionStatus {
	status := &SubscriptionStatus{HasActiveSubscription: user.HasActiveSubscription}
	if !s.trial.Enabled || user.HasActiveSubscription {
		return status
	}

	trialEnd := user.SignUpDate.AddDate(0, 0, s.trial.Days)
	if s.now().Before(trialEnd) {
		status.IsTrialing = true
	} else {
		status.CompletedTrial = true
	}
	return status
}

// SubscriptionDetails returns the plan details and a fresh access token.
func (s *UserService) SubscriptionDetails(ctx context.Context, id uint64) (*payments.SubscriptionDetails, string, error) {
	user, err := s.GetUser(id)
	if err != nil {
		return nil, "", err
	}

	details, err := s.payments.SubscriptionDetails(ctx, user.Email)
	if err != nil {
		return nil, "", err
	}

	token, err := s.sessions.AccessToken(user)
	if err != nil {
		return nil, "", err
	}
	return details, token, nil
}

// ContinueSubscription removes a scheduled cancellation from one of the user's
// subscriptions. Failures are logged only.
func (s *UserService) ContinueSubscription(ctx context.Context, id uint64, subscriptionID string) {
	user, err := s.GetUser(id)
	if err == nil {
		err = s.payments.ContinueSubscription(ctx, user.Email, subscriptionID)
	}
	if err != nil {
		s.log.WithError(err).WithFields(logrus.Fields{
			"user_id":         id,
			"subscription_id": subscriptionID,
		}).Warn("Continue subscription failed")
	}
}

// CancelSubscription cancels one of the user's subscriptions at period end.
// Failures are logged only.
func (s *UserService) CancelSubscription(ctx context.Context, id uint64, subscriptionID string) {
	user, err := s.GetUser(id)
	if err == nil {
		err = s.payments.CancelSubscription(ctx, user.Email, subscriptionID)
	}
	if err != nil {
		s.log.WithError(err).WithFields(logrus.Fields{
			"user_id":         id,
			"subscription_id": subscriptionID,
		}).Warn("Cancel subscription failed")
	}
}

// CreatePromoCode creates a single-use promotion code and tags the user in the CRM.
func (s *UserService) CreatePromoCode(ctx context.Context, id uint64) (string, error) {
	user, err := s.GetUser(id)
	if err != nil {
		return "", err
	}

	code, err := s.payments.CreatePromoCode(ctx)
	if err != nil {
		return "", err
	}

	s.crm.Tag(ctx, user.Email, constants.TagPromoCode)
	return code, nil
}
