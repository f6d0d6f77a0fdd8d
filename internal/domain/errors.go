package domain

import "errors"

// Sentinel errors for domain-level error discrimination.
// Services wrap these so handlers can map to HTTP status codes without leaking infrastructure details.
var (
	ErrNotFound = errors.New("not found")

	ErrValidation         = errors.New("validation error")
	ErrDuplicateIdentity  = errors.New("duplicate identity")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrInvalidToken       = errors.New("invalid token")
	ErrPasswordMismatch   = errors.New("password mismatch")
	ErrUploadFailed       = errors.New("upload failed")
)

// FieldError describes one rejected request field.
type FieldError struct {
	Field string `json:"field"`
	Rule  string `json:"rule"`
}

// ClientError is a user-correctable failure. ComingFrom names the operation
// that raised it and Kind is one of the sentinels above.
type ClientError struct {
	Kind       error
	Message    string
	ComingFrom string
	Fields     []FieldError
}

func (e *ClientError) Error() string { return e.Message }

func (e *ClientError) Unwrap() error { return e.Kind }

// NewClientError builds a ClientError of the given kind.
func NewClientError(kind error, comingFrom, msg string) *ClientError {
	return &ClientError{Kind: kind, Message: msg, ComingFrom: comingFrom}
}

// KindName returns the machine-readable name of a client error kind.
func KindName(kind error) string {
	switch kind {
	case ErrValidation:
		return "ValidationError"
	case ErrDuplicateIdentity:
		return "DuplicateIdentity"
	case ErrInvalidCredentials:
		return "InvalidCredentials"
	case ErrInvalidToken:
		return "InvalidToken"
	case ErrPasswordMismatch:
		return "PasswordMismatch"
	case ErrUploadFailed:
		return "UploadFailed"
	default:
		return "BadRequest"
	}
}
