package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jobman-auth/internal/domain"
	"github.com/jobman-auth/internal/observability/metrics"
	"github.com/jobman-auth/internal/pkg/id"
	pkgtoken "github.com/jobman-auth/internal/pkg/token"
	"github.com/jobman-auth/internal/pkg/validate"
	"github.com/samber/oops"
	"golang.org/x/crypto/bcrypt"
)

// resetTokenTTL is how long a password reset link stays redeemable.
const resetTokenTTL = time.Hour

// UserDirectory is the persistent store of auth records. Lookups return
// (nil, nil) when nothing matches.
type UserDirectory interface {
	FindByID(ctx context.Context, id int64) (*domain.User, error)
	FindByEmail(ctx context.Context, email string) (*domain.User, error)
	FindByUsername(ctx context.Context, username string) (*domain.User, error)
	FindByUsernameOrEmail(ctx context.Context, username, email string) (*domain.User, error)
	FindByVerificationToken(ctx context.Context, token string) (*domain.User, error)
	FindByResetToken(ctx context.Context, token string) (*domain.User, error)
	Create(ctx context.Context, u *domain.User) error
	UpdatePassword(ctx context.Context, id int64, hash string) error
	UpdateVerificationField(ctx context.Context, id int64, verified bool, token string) error
	UpdateResetToken(ctx context.Context, id int64, token string, expiresAt time.Time) error
}

// Publisher delivers notification events. Implementations never fail the caller.
type Publisher interface {
	PublishDirect(ctx context.Context, exchange, routingKey string, body []byte, logMessage string)
}

// PictureStore uploads a base64 profile picture and returns its URL.
type PictureStore interface {
	UploadProfilePicture(ctx context.Context, publicID, data string) (string, error)
}

// SessionSigner issues session tokens.
type SessionSigner interface {
	Sign(id int64, email, username string) (string, error)
}

// AuthResult is a user together with a freshly signed session token.
type AuthResult struct {
	User  *domain.User
	Token string
}

type Service interface {
	SignUp(ctx context.Context, req domain.SignUpRequest) (*AuthResult, error)
	SignIn(ctx context.Context, req domain.SignInRequest) (*AuthResult, error)
	ResendVerification(ctx context.Context, req domain.ResendEmailRequest) (*domain.User, error)
	VerifyEmail(ctx context.Context, token string) (*domain.User, error)
	ForgotPassword(ctx context.Context, req domain.ForgotPasswordRequest) error
	ResetPassword(ctx context.Context, token string, req domain.ResetPasswordRequest) error
	ChangePassword(ctx context.Context, username string, req domain.ChangePasswordRequest) error
	CurrentUser(ctx context.Context, id int64) (*domain.User, error)
	RefreshToken(ctx context.Context, username string) (string, error)
}

type service struct {
	users     UserDirectory
	pictures  PictureStore
	publisher Publisher
	signer    SessionSigner
	clientURL string
	logger    *slog.Logger

	newToken func() (string, error)
	newID    func() string
	now      func() time.Time
	hashCost int
}

func NewService(
	users UserDirectory,
	pictures PictureStore,
	publisher Publisher,
	signer SessionSigner,
	clientURL string,
	logger *slog.Logger,
) Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &service{
		users:     users,
		pictures:  pictures,
		publisher: publisher,
		signer:    signer,
		clientURL: clientURL,
		logger:    logger,
		newToken:  pkgtoken.New,
		newID:     id.New,
		now:       time.Now,
		hashCost:  bcrypt.DefaultCost,
	}
}

func (s *service) SignUp(ctx context.Context, req domain.SignUpRequest) (res *AuthResult, err error) {
	const op = "SignUp"
	result := "success"
	defer func() {
		if err != nil {
			result = "failure"
		}
		metrics.AuthSignUpsTotal.WithLabelValues(result).Inc()
	}()

	if err := validateRequest(op, req); err != nil {
		return nil, err
	}
	username := domain.NormalizeUsername(req.Username)
	email := domain.NormalizeEmail(req.Email)

	existing, err := s.users.FindByUsernameOrEmail(ctx, username, email)
	if err != nil {
		return nil, directoryError(op, err)
	}
	if existing != nil {
		return nil, domain.NewClientError(domain.ErrDuplicateIdentity, op, "Invalid credentials for this user to sign up")
	}

	publicID := s.newID()
	pictureURL, err := s.pictures.UploadProfilePicture(ctx, publicID, req.ProfilePicture)
	if err != nil || pictureURL == "" {
		if err != nil {
			s.logger.Warn("profile picture upload failed", "error", err)
		}
		return nil, domain.NewClientError(domain.ErrUploadFailed, op, "File upload error. Try again")
	}

	verificationToken, err := s.newToken()
	if err != nil {
		return nil, err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), s.hashCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	u := &domain.User{
		ProfilePublicID:        publicID,
		Username:               username,
		Email:                  email,
		PasswordHash:           string(hash),
		Country:                req.Country,
		ProfilePicture:         pictureURL,
		EmailVerified:          false,
		EmailVerificationToken: verificationToken,
		CreatedAt:              s.now().UTC(),
	}
	if err := s.users.Create(ctx, u); err != nil {
		// a concurrent sign-up claimed the identity after the lookup above
		if errors.Is(err, domain.ErrDuplicateIdentity) {
			return nil, domain.NewClientError(domain.ErrDuplicateIdentity, op, "Invalid credentials for this user to sign up")
		}
		return nil, directoryError(op, err)
	}

	s.publish(ctx, domain.NotificationEnvelope{
		ReceiverEmail: u.Email,
		VerifyLink:    s.verifyLink(verificationToken),
		Template:      domain.TemplateVerifyEmail,
	}, "Verify email message has been sent to notification service.")

	token, err := s.signer.Sign(u.ID, u.Email, u.Username)
	if err != nil {
		return nil, fmt.Errorf("sign session: %w", err)
	}
	return &AuthResult{User: u, Token: token}, nil
}

func (s *service) SignIn(ctx context.Context, req domain.SignInRequest) (res *AuthResult, err error) {
	const op = "SignIn"
	result := "success"
	defer func() {
		if err != nil {
			result = "failure"
		}
		metrics.AuthSignInsTotal.WithLabelValues(result).Inc()
	}()

	if err := validateRequest(op, req); err != nil {
		return nil, err
	}

	var u *domain.User
	if validate.IsEmail(req.Username) {
		u, err = s.users.FindByEmail(ctx, domain.NormalizeEmail(req.Username))
	} else {
		u, err = s.users.FindByUsername(ctx, domain.NormalizeUsername(req.Username))
	}
	if err != nil {
		return nil, directoryError(op, err)
	}
	if u == nil {
		// Burn the same bcrypt work as a real comparison.
		_ = bcrypt.CompareHashAndPassword(dummyHash(), []byte(req.Password))
		return nil, domain.NewClientError(domain.ErrInvalidCredentials, op, "Invalid credentials")
	}
	if bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(req.Password)) != nil {
		return nil, domain.NewClientError(domain.ErrInvalidCredentials, op, "Invalid credentials")
	}

	token, err := s.signer.Sign(u.ID, u.Email, u.Username)
	if err != nil {
		return nil, fmt.Errorf("sign session: %w", err)
	}
	return &AuthResult{User: u, Token: token}, nil
}

// ResendVerification replaces the pending verification token and mails a new
// link. The verified flag is left as it is. The link has the same
// /confirm_email?v_token=<token> form as the sign-up email; clients that
// still route the older /verify-email?token=<token> form must map it to
// the same page.
func (s *service) ResendVerification(ctx context.Context, req domain.ResendEmailRequest) (*domain.User, error) {
	const op = "ResendVerification"
	if err := validateRequest(op, req); err != nil {
		return nil, err
	}
	email := domain.NormalizeEmail(req.Email)

	u, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		return nil, directoryError(op, err)
	}
	if u == nil {
		return nil, domain.NewClientError(domain.ErrInvalidCredentials, op, "Email is invalid")
	}

	verificationToken, err := s.newToken()
	if err != nil {
		return nil, err
	}
	if err := s.users.UpdateVerificationField(ctx, u.ID, u.EmailVerified, verificationToken); err != nil {
		return nil, directoryError(op, err)
	}

	s.publish(ctx, domain.NotificationEnvelope{
		ReceiverEmail: email,
		VerifyLink:    s.verifyLink(verificationToken),
		Template:      domain.TemplateVerifyEmail,
	}, "Verify email message has been sent to notification service.")

	return s.reload(ctx, op, u.ID)
}

func (s *service) VerifyEmail(ctx context.Context, token string) (*domain.User, error) {
	const op = "VerifyEmail"
	u, err := s.users.FindByVerificationToken(ctx, token)
	if err != nil {
		return nil, directoryError(op, err)
	}
	if u == nil {
		return nil, domain.NewClientError(domain.ErrInvalidToken, op, "Verification token is either invalid or expired")
	}
	if err := s.users.UpdateVerificationField(ctx, u.ID, true, ""); err != nil {
		return nil, directoryError(op, err)
	}
	return s.reload(ctx, op, u.ID)
}

func (s *service) ForgotPassword(ctx context.Context, req domain.ForgotPasswordRequest) error {
	const op = "ForgotPassword"
	if err := validateRequest(op, req); err != nil {
		return err
	}

	u, err := s.users.FindByEmail(ctx, domain.NormalizeEmail(req.Email))
	if err != nil {
		return directoryError(op, err)
	}
	if u == nil {
		return domain.NewClientError(domain.ErrInvalidCredentials, op, "Invalid credentials")
	}

	resetToken, err := s.newToken()
	if err != nil {
		return err
	}
	if err := s.users.UpdateResetToken(ctx, u.ID, resetToken, s.now().Add(resetTokenTTL)); err != nil {
		return directoryError(op, err)
	}

	s.publish(ctx, domain.NotificationEnvelope{
		ReceiverEmail: u.Email,
		VerifyLink:    fmt.Sprintf("%s/reset-password?token=%s", s.clientURL, resetToken),
		Template:      domain.TemplateForgotPassword,
	}, "Forgot password message sent to notification service.")
	return nil
}

func (s *service) ResetPassword(ctx context.Context, token string, req domain.ResetPasswordRequest) error {
	const op = "ResetPassword"
	if err := validateRequest(op, req); err != nil {
		return err
	}
	if req.Password != req.ConfirmPassword {
		return domain.NewClientError(domain.ErrPasswordMismatch, op, "Passwords do not match")
	}

	u, err := s.users.FindByResetToken(ctx, token)
	if err != nil {
		return directoryError(op, err)
	}
	if u == nil || u.PasswordResetExpiresAt == nil || !u.PasswordResetExpiresAt.After(s.now()) {
		return domain.NewClientError(domain.ErrInvalidToken, op, "Reset token is either invalid or expired")
	}

	if err := s.setPassword(ctx, op, u.ID, req.Password); err != nil {
		return err
	}
	s.publish(ctx, domain.NotificationEnvelope{
		Username: u.Username,
		Template: domain.TemplateResetPasswordSuccess,
	}, "Reset password success message sent to notification service.")
	return nil
}

// ChangePassword rejects the request unless currentPassword equals newPassword.
// TODO: confirm with product whether this should verify currentPassword against
// the stored hash and reject a new password equal to it instead.
func (s *service) ChangePassword(ctx context.Context, username string, req domain.ChangePasswordRequest) error {
	const op = "ChangePassword"
	if err := validateRequest(op, req); err != nil {
		return err
	}
	if req.CurrentPassword != req.NewPassword {
		return domain.NewClientError(domain.ErrInvalidCredentials, op, "Invalid password")
	}

	u, err := s.users.FindByUsername(ctx, username)
	if err != nil {
		return directoryError(op, err)
	}
	if u == nil {
		return domain.NewClientError(domain.ErrInvalidCredentials, op, "Invalid password")
	}

	if err := s.setPassword(ctx, op, u.ID, req.NewPassword); err != nil {
		return err
	}
	s.publish(ctx, domain.NotificationEnvelope{
		Username: u.Username,
		Template: domain.TemplateResetPasswordSuccess,
	}, "Password change success message sent to notification service.")
	return nil
}

// CurrentUser returns nil without error when the id is unknown.
func (s *service) CurrentUser(ctx context.Context, id int64) (*domain.User, error) {
	u, err := s.users.FindByID(ctx, id)
	if err != nil {
		return nil, directoryError("CurrentUser", err)
	}
	return u, nil
}

func (s *service) RefreshToken(ctx context.Context, username string) (string, error) {
	const op = "RefreshToken"
	u, err := s.users.FindByUsername(ctx, domain.NormalizeUsername(username))
	if err != nil {
		return "", directoryError(op, err)
	}
	if u == nil {
		return "", domain.NewClientError(domain.ErrInvalidCredentials, op, "Invalid credentials")
	}
	token, err := s.signer.Sign(u.ID, u.Email, u.Username)
	if err != nil {
		return "", fmt.Errorf("sign session: %w", err)
	}
	return token, nil
}

func (s *service) setPassword(ctx context.Context, op string, userID int64, password string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.hashCost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	if err := s.users.UpdatePassword(ctx, userID, string(hash)); err != nil {
		return directoryError(op, err)
	}
	return nil
}

func (s *service) reload(ctx context.Context, op string, userID int64) (*domain.User, error) {
	u, err := s.users.FindByID(ctx, userID)
	if err != nil {
		return nil, directoryError(op, err)
	}
	return u, nil
}

// verifyLink builds the link for both sign-up and resent verification emails.
func (s *service) verifyLink(token string) string {
	return fmt.Sprintf("%s/confirm_email?v_token=%s", s.clientURL, token)
}

// publish runs after the directory write has completed. Its outcome never
// affects the caller.
func (s *service) publish(ctx context.Context, env domain.NotificationEnvelope, logMessage string) {
	body, err := json.Marshal(env)
	if err != nil {
		s.logger.Error("marshal notification", "template", env.Template, "error", err)
		return
	}
	s.publisher.PublishDirect(ctx, domain.EmailExchange, domain.EmailRoutingKey, body, logMessage)
}

func validateRequest(op string, req interface{}) error {
	err := validate.Struct(req)
	if err == nil {
		return nil
	}
	var ve validate.Errors
	if !errors.As(err, &ve) {
		return err
	}
	ce := domain.NewClientError(domain.ErrValidation, op, ve.Error())
	for _, fe := range ve {
		ce.Fields = append(ce.Fields, domain.FieldError{Field: fe.Field, Rule: fe.Rule})
	}
	return ce
}

func directoryError(op string, err error) error {
	return oops.
		Code("directory_failure").
		With("operation", op).
		Wrapf(err, "user directory")
}

var (
	dummyOnce sync.Once
	dummy     []byte
)

func dummyHash() []byte {
	dummyOnce.Do(func() {
		dummy, _ = bcrypt.GenerateFromPassword([]byte("not-a-real-password"), bcrypt.DefaultCost)
	})
	return dummy
}
