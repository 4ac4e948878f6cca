package mailer

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
	"github.com/sirupsen/logrus"
)

// ErrNotConfigured is returned when no API key was provided.
var ErrNotConfigured = errors.New("email provider is not configured")

// Mailer sends templated emails to a single recipient.
type Mailer interface {
	SendSignUpCode(ctx context.Context, email, code string) error
	SendResetCode(ctx context.Context, email, code string) error
}

// Config holds the SendGrid settings.
type Config struct {
	APIKey           string
	FromName         string
	FromAddress      string
	ASMGroupID       int
	SignUpTemplateID string
	ResetTemplateID  string
}

// SendGridMailer implements Mailer with SendGrid dynamic templates.
type SendGridMailer struct {
	cfg    Config
	client *sendgrid.Client
	log    logrus.FieldLogger
}

// NewSendGridMailer creates a SendGridMailer.
func NewSendGridMailer(cfg Config, log logrus.FieldLogger) *SendGridMailer {
	m := &SendGridMailer{cfg: cfg, log: log}
	if cfg.APIKey != "" {
		m.client = sendgrid.NewSendClient(cfg.APIKey)
	}
	return m
}

func (m *SendGridMailer) SendSignUpCode(ctx context.Context, email, code string) error {
	return m.send(ctx, email, m.cfg.SignUpTemplateID, map[string]interface{}{"signUpCode": code})
}

func (m *SendGridMailer) SendResetCode(ctx context.Context, email, code string) error {
	return m.send(ctx, email, m.cfg.ResetTemplateID, map[string]interface{}{"resetCode": code})
}

func (m *SendGridMailer) send(ctx context.Context, to, templateID string, data map[string]interface{}) error {
	if m.client == nil {
		return ErrNotConfigured
	}

	message := buildMessage(m.cfg, to, templateID, data)
	resp, err := m.client.SendWithContext(ctx, message)
	if err != nil {
		return err
	}
	if resp.StatusCode >= http.StatusBadRequest {
		return fmt.Errorf("email provider returned %d: %s", resp.StatusCode, resp.Body)
	}

	m.log.WithFields(logrus.Fields{
		"template": templateID,
		"status":   resp.StatusCode,
	}).Debug("Email sent")
	return nil
}

func buildMessage(cfg Config, to, templateID string, data map[string]interface{}) *mail.SGMailV3 {
	message := mail.NewV3Mail()
	message.SetFrom(mail.NewEmail(cfg.FromName, cfg.FromAddress))
	message.SetTemplateID(templateID)

	personalization := mail.NewPersonalization()
	personalization.AddTos(mail.NewEmail("", to))
	for key, value := range data {
		personalization.SetDynamicTemplateData(key, value)
	}
	message.AddPersonalizations(personalization)

	if cfg.ASMGroupID > 0 {
		message.SetASM(mail.NewASM().SetGroupID(cfg.ASMGroupID))
	}
	return message
}
