package domain

// Template identifies the email the notification consumer renders.
type Template string

const (
	TemplateVerifyEmail          Template = "verifyEmail"
	TemplateForgotPassword       Template = "forgotPassword"
	TemplateResetPasswordSuccess Template = "resetPasswordSuccess"
)

// Broker addressing shared with the notification consumer.
const (
	EmailExchange   = "jobman-email-notification"
	EmailRoutingKey = "auth-email"
)

// NotificationEnvelope is the message published for the notification consumer.
type NotificationEnvelope struct {
	ReceiverEmail string   `json:"receiverEmail,omitempty"`
	Username      string   `json:"username,omitempty"`
	VerifyLink    string   `json:"verifyLink,omitempty"`
	Template      Template `json:"template"`
}
