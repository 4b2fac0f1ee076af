package notify

import (
	"context"
	"fmt"

	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"

	"github.com/attenda/clinic-assistant/pkg/logging"
)

// EmailSender sends operator-facing email. Implementations can be swapped
// without changing callers.
type EmailSender interface {
	Send(ctx context.Context, msg EmailMessage) error
}

// EmailMessage is one email to be sent.
type EmailMessage struct {
	To      string
	ToName  string
	Subject string
	Body    string
}

// SendGridSender sends email via the SendGrid API.
type SendGridSender struct {
	client    *sendgrid.Client
	fromEmail string
	fromName  string
	logger    *logging.Logger
}

// SendGridConfig holds SendGrid credentials and sender identity.
type SendGridConfig struct {
	APIKey    string
	FromEmail string
	FromName  string
}

// NewSendGridSender creates a SendGrid email sender. Returns nil when no API
// key is configured so callers can treat email as optional.
func NewSendGridSender(cfg SendGridConfig, logger *logging.Logger) *SendGridSender {
	if cfg.APIKey == "" {
		return nil
	}
	if logger == nil {
		logger = logging.Default()
	}
	if cfg.FromName == "" {
		cfg.FromName = "Clinic Assistant"
	}
	return &SendGridSender{
		client:    sendgrid.NewSendClient(cfg.APIKey),
		fromEmail: cfg.FromEmail,
		fromName:  cfg.FromName,
		logger:    logger,
	}
}

// Send sends an email via SendGrid.
func (s *SendGridSender) Send(ctx context.Context, msg EmailMessage) error {
	if s == nil || s.client == nil {
		return fmt.Errorf("notify: sendgrid client not configured")
	}

	from := mail.NewEmail(s.fromName, s.fromEmail)
	to := mail.NewEmail(msg.ToName, msg.To)
	message := mail.NewSingleEmail(from, msg.Subject, to, msg.Body, msg.Body)

	response, err := s.client.SendWithContext(ctx, message)
	if err != nil {
		s.logger.Error("sendgrid send failed", "error", err, "to", msg.To)
		return fmt.Errorf("notify: sendgrid send failed: %w", err)
	}
	if response.StatusCode >= 400 {
		s.logger.Error("sendgrid returned error status", "status", response.StatusCode, "to", msg.To)
		return fmt.Errorf("notify: sendgrid returned status %d", response.StatusCode)
	}

	s.logger.Info("email sent", "to", msg.To, "subject", msg.Subject, "status", response.StatusCode)
	return nil
}

// EscalationEmailer turns loop-guard escalations into operator emails. It
// satisfies the loop guard's notifier contract.
type EscalationEmailer struct {
	sender        EmailSender
	operatorEmail string
	logger        *logging.Logger
}

// NewEscalationEmailer creates an escalation notifier. Returns nil when
// either the sender or the operator address is missing; the loop guard
// treats a nil notifier as "no notification configured".
func NewEscalationEmailer(sender EmailSender, operatorEmail string, logger *logging.Logger) *EscalationEmailer {
	if sender == nil || operatorEmail == "" {
		return nil
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &EscalationEmailer{
		sender:        sender,
		operatorEmail: operatorEmail,
		logger:        logger.Component("escalation_emailer"),
	}
}

// NotifyEscalation emails the operator that a conversation needs a human.
func (e *EscalationEmailer) NotifyEscalation(ctx context.Context, conversationID, reason string) error {
	msg := EmailMessage{
		To:      e.operatorEmail,
		ToName:  "Clinic Operator",
		Subject: fmt.Sprintf("Conversation %s needs attention", conversationID),
		Body: fmt.Sprintf(
			"The assistant stopped replying automatically to conversation %s.\n\nReason: %s\n\nReview the conversation and resolve the escalation to resume automated replies.",
			conversationID, reason,
		),
	}
	if err := e.sender.Send(ctx, msg); err != nil {
		return fmt.Errorf("notify: escalation email: %w", err)
	}
	return nil
}
