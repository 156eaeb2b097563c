//go:generate go run go.uber.org/mock/mockgen -source=email_service.go -destination=../mocks/mock_mailer.go -package=mocks
package notifications

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
)

const brevoEndpoint = "https://api.brevo.com/v3/smtp/email"

type Recipient struct {
	Name  string
	Email string
}

// Mailer delivers a single HTML email.
type Mailer interface {
	Send(ctx context.Context, to Recipient, subject, html string) error
}

type BrevoService struct {
	APIKey      string
	SenderEmail string
	SenderName  string
	Endpoint    string

	client *http.Client
	log    *zap.Logger
}

type brevoPayload struct {
	Sender      map[string]string   `json:"sender"`
	To          []map[string]string `json:"to"`
	Subject     string              `json:"subject"`
	HTMLContent string              `json:"htmlContent"`
}

// NewMailer returns a Brevo backed mailer, or a mailer that only logs when
// any of the credentials is missing.
func NewMailer(apiKey, senderEmail, senderName string, log *zap.Logger) Mailer {
	if apiKey == "" || senderEmail == "" || senderName == "" {
		log.Warn("⚠️ Email service not configured, unread digests will only be logged")
		return logMailer{log: log}
	}
	log.Info("✅ Email service initialized", zap.String("sender", senderEmail))
	return &BrevoService{
		APIKey:      apiKey,
		SenderEmail: senderEmail,
		SenderName:  senderName,
		Endpoint:    brevoEndpoint,
		client:      &http.Client{Timeout: 10 * time.Second},
		log:         log,
	}
}

func (s *BrevoService) Send(ctx context.Context, to Recipient, subject, html string) error {
	if to.Email == "" || !strings.Contains(to.Email, "@") {
		return fmt.Errorf("invalid recipient email: %q", to.Email)
	}

	name := to.Name
	if name == "" {
		name = to.Email[:strings.Index(to.Email, "@")]
	}

	body, err := json.Marshal(brevoPayload{
		Sender:      map[string]string{"name": s.SenderName, "email": s.SenderEmail},
		To:          []map[string]string{{"email": to.Email, "name": name}},
		Subject:     subject,
		HTMLContent: html,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.Endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("accept", "application/json")
	req.Header.Set("api-key", s.APIKey)
	req.Header.Set("content-type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusCreated {
		s.log.Error("Brevo API error", zap.Int("status", resp.StatusCode), zap.ByteString("body", respBody))
		return fmt.Errorf("failed to send email via Brevo: status %d", resp.StatusCode)
	}

	s.log.Debug("email sent", zap.String("to", to.Email))
	return nil
}

type logMailer struct {
	log *zap.Logger
}

func (m logMailer) Send(_ context.Context, to Recipient, subject, _ string) error {
	m.log.Info("email skipped, mailer not configured", zap.String("to", to.Email), zap.String("subject", subject))
	return nil
}
