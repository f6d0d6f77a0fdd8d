package domain

import (
	"strings"
	"time"
)

// User is the persisted auth record. Tokens are stored as absent attributes
// when empty so the token GSIs stay sparse.
type User struct {
	ID                     int64      `json:"id" dynamodbav:"user_id"`
	ProfilePublicID        string     `json:"profilePublicId" dynamodbav:"profile_public_id"`
	Username               string     `json:"username" dynamodbav:"username"`
	Email                  string     `json:"email" dynamodbav:"email"`
	PasswordHash           string     `json:"-" dynamodbav:"password_hash"`
	Country                string     `json:"country" dynamodbav:"country"`
	ProfilePicture         string     `json:"profilePicture" dynamodbav:"profile_picture"`
	EmailVerified          bool       `json:"emailVerified" dynamodbav:"email_verified"`
	EmailVerificationToken string     `json:"-" dynamodbav:"email_verification_token,omitempty"`
	PasswordResetToken     string     `json:"-" dynamodbav:"password_reset_token,omitempty"`
	PasswordResetExpiresAt *time.Time `json:"-" dynamodbav:"password_reset_expires_at,omitempty,unixtime"`
	CreatedAt              time.Time  `json:"createdAt" dynamodbav:"created_at"`
}

type SignUpRequest struct {
	Username       string `json:"username" validate:"required,max=12"`
	Password       string `json:"password" validate:"required,max=72"`
	Email          string `json:"email" validate:"required,email"`
	Country        string `json:"country" validate:"required"`
	ProfilePicture string `json:"profilePicture" validate:"required"` // base64, optionally a data URI
}

type SignInRequest struct {
	Username string `json:"username" validate:"required"` // username or email
	Password string `json:"password" validate:"required"`
}

type ResendEmailRequest struct {
	Email string `json:"email" validate:"required,email"`
}

type ForgotPasswordRequest struct {
	Email string `json:"email" validate:"required,email"`
}

type ResetPasswordRequest struct {
	Password        string `json:"password" validate:"required,max=72"`
	ConfirmPassword string `json:"confirmPassword" validate:"required"`
}

type ChangePasswordRequest struct {
	CurrentPassword string `json:"currentPassword" validate:"required"`
	NewPassword     string `json:"newPassword" validate:"required,max=72"`
}

type VerifyEmailRequest struct {
	Token string `json:"token" validate:"required"`
}

// NormalizeUsername upper-cases the first letter and lower-cases the rest.
func NormalizeUsername(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return s
	}
	lower := strings.ToLower(s)
	return strings.ToUpper(lower[:1]) + lower[1:]
}

// NormalizeEmail lower-cases and trims an email address.
func NormalizeEmail(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
