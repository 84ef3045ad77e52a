package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/mailersend/mailersend-go"
)

// MailerSend delivers mail through the MailerSend API.
type MailerSend struct {
	client  *mailersend.Mailersend
	timeout time.Duration
}

// NewMailerSend constructs a MailerSend sender.
func NewMailerSend(apiKey string) *MailerSend {
	return &MailerSend{client: mailersend.NewMailersend(apiKey), timeout: 5 * time.Second}
}

func (s *MailerSend) SendMail(ctx context.Context, m Mail) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	recipients := make([]mailersend.Recipient, 0, len(m.To))
	for _, to := range m.To {
		recipients = append(recipients, mailersend.Recipient{Email: to})
	}

	message := s.client.Email.NewMessage()
	message.SetFrom(mailersend.From{Name: m.FromName, Email: m.From})
	message.SetRecipients(recipients)
	message.SetSubject(m.Subject)
	message.SetText(m.Body)

	if _, err := s.client.Email.Send(ctx, message); err != nil {
		return fmt.Errorf("mailersend: %w", err)
	}
	return nil
}
