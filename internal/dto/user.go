package dto

import "github.com/yukikurage/apollo-api/internal/models"

// UserDTO is the public view of a user
type UserDTO struct {
	ID              uint64 `json:"_id"`
	Username        string `json:"username"`
	Email           string `json:"email"`
	ProfileImageObj string `json:"profileImageObj,omitempty"`
}

// ToUserDTO converts a user model to DTO
func ToUserDTO(user models.User) UserDTO {
	return UserDTO{
		ID:              user.ID,
		Username:        user.Username,
		Email:           user.Email,
		ProfileImageObj: user.ProfileImageObj,
	}
}

// SignUpDTO is returned once a signup code was redeemed
type SignUpDTO struct {
	ID       uint64 `json:"_id"`
	Username string `json:"username"`
	Email    string `json:"email"`
}

// ToSignUpDTO converts a freshly created user to DTO
func ToSignUpDTO(user models.User) SignUpDTO {
	return SignUpDTO{
		ID:       user.ID,
		Username: user.Username,
		Email:    user.Email,
	}
}

// UsernameDTO is returned after a username change
type UsernameDTO struct {
	ID       uint64 `json:"_id"`
	Username string `json:"username"`
}

// MessageDTO is the body of success-only endpoints
type MessageDTO struct {
	Message bool `json:"message"`
}
