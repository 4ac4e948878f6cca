package services

import "errors"

// Errors returned to handlers. Their text is the message shown to clients.
var (
	ErrParametersRequired   = errors.New("the above parameters are required")
	ErrEmailRequired        = errors.New("email is required")
	ErrUsernameRequired     = errors.New("username is required")
	ErrOldPasswordRequired  = errors.New("previous password is required")
	ErrResetCodeRequired    = errors.New("reset code is required")
	ErrSignUpCodeRequired   = errors.New("sign up code is required")
	ErrRefreshIDRequired    = errors.New("missing refresh token id")
	ErrEmailTaken           = errors.New("email already exists")
	ErrUsernameTaken        = errors.New("username already exists")
	ErrInvalidCredentials   = errors.New("invalid login credentials")
	ErrInvalidPassword      = errors.New("invalid password")
	ErrInvalidCode          = errors.New("invalid code")
	ErrUnauthorizedAccess   = errors.New("unauthorized access")
	ErrRefreshTokenExpired  = errors.New("refresh token expired")
	ErrInvalidTimeZone      = errors.New("invalid time zone")
	ErrUserNotFound         = errors.New("user not found")
	ErrPostNotFound         = errors.New("post does not exist")
	ErrInvalidRequest       = errors.New("invalid request")
	ErrSearchQueryRequired  = errors.New("query is required")
	ErrFailedToHashPassword = errors.New("failed to hash password")
	ErrStorageUnavailable   = errors.New("profile image uploads are not available")
)

// ValidationError carries a field validation message.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

// ErrRefreshTokenNotFound means no refresh token record exists for the given id.
var ErrRefreshTokenNotFound = errors.New("refresh token not found")
