package email

// Config holds email channel configuration.
// The Postmark tokens are optional so development environments can run on
// DevSender without provider credentials. SenderEmail and SupportEmail are
// required as they establish the sender identity and reply-to behavior for
// all outbound notifications.
type Config struct {
	PostmarkServerToken  string `env:"POSTMARK_SERVER_TOKEN"`
	PostmarkAccountToken string `env:"POSTMARK_ACCOUNT_TOKEN"`
	SenderEmail          string `env:"SENDER_EMAIL,required"`
	SupportEmail         string `env:"SUPPORT_EMAIL,required"`
}
