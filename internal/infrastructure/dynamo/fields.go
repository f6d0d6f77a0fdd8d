package dynamo

// DynamoDB attribute names used in keys, indexes and update expressions.
// Using constants prevents silent runtime bugs caused by key typos.
const (
	fieldUserID            = "user_id"
	fieldUsername          = "username"
	fieldEmail             = "email"
	fieldPasswordHash      = "password_hash"
	fieldEmailVerified     = "email_verified"
	fieldVerificationToken = "email_verification_token"
	fieldResetToken        = "password_reset_token"
	fieldResetExpiresAt    = "password_reset_expires_at"

	fieldCounterName  = "name"
	fieldCounterValue = "value"

	fieldIdentity = "identity"
)
