package wizard

import (
	"context"
	"fmt"
	"html"

	"github.com/nrbnayon/silver-gym/config"
	"github.com/resend/resend-go/v2"
	"go.uber.org/zap"
)

// CodeSender delivers a verification code to the person signing up.
type CodeSender interface {
	SendCode(ctx context.Context, to, name, code string) error
}

// NewCodeSender picks the Resend sender when an API key is configured and
// falls back to logging the code otherwise.
func NewCodeSender(cfg config.MailConfig, logger *zap.Logger) CodeSender {
	if cfg.ResendAPIKey == "" {
		return NewLogSender(logger)
	}
	return NewResendSender(resend.NewClient(cfg.ResendAPIKey), cfg.FromAddress, logger)
}

// ResendSender e-mails codes through the Resend API.
type ResendSender struct {
	client *resend.Client
	from   string
	logger *zap.Logger
}

// NewResendSender wraps an already configured Resend client.
func NewResendSender(client *resend.Client, from string, logger *zap.Logger) *ResendSender {
	return &ResendSender{
		client: client,
		from:   from,
		logger: logger,
	}
}

func (s *ResendSender) SendCode(ctx context.Context, to, name, code string) error {
	params := &resend.SendEmailRequest{
		From:    s.from,
		To:      []string{to},
		Subject: "Your Silver Gym verification code",
		Html:    codeEmailHTML(name, code),
	}

	sent, err := s.client.Emails.SendWithContext(ctx, params)
	if err != nil {
		s.logger.Error("failed to send verification code",
			zap.String("to", to),
			zap.Error(err))
		return fmt.Errorf("resend send failed: %w", err)
	}

	s.logger.Info("verification code sent",
		zap.String("to", to),
		zap.String("message_id", sent.Id))
	return nil
}

func codeEmailHTML(name, code string) string {
	if name == "" {
		name = "there"
	}
	return fmt.Sprintf(
		"<p>Hi %s,</p><p>Your Silver Gym verification code is <strong>%s</strong>.</p>"+
			"<p>If you did not start a sign-up, you can ignore this e-mail.</p>",
		html.EscapeString(name), html.EscapeString(code))
}

// LogSender writes codes to the log. Used in development.
type LogSender struct {
	logger *zap.Logger
}

func NewLogSender(logger *zap.Logger) *LogSender {
	return &LogSender{logger: logger}
}

func (s *LogSender) SendCode(_ context.Context, to, _ string, code string) error {
	s.logger.Info("verification code issued (mail delivery disabled)",
		zap.String("to", to),
		zap.String("code", code))
	return nil
}
