// Package notify composes and delivers booking emails. Delivery is
// best-effort: callers hand mail to a Sender and never fail because of it.
package notify

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/Shivanand-hulikatti/classbook/internal/model"
)

// Mail is one outgoing message.
type Mail struct {
	Subject  string   `json:"subject"`
	Body     string   `json:"body"`
	From     string   `json:"from"`
	FromName string   `json:"from_name,omitempty"`
	To       []string `json:"to"`
}

// Sender delivers mail. Implementations: Queue, MailerSend, Publisher, LogSender.
type Sender interface {
	SendMail(ctx context.Context, m Mail) error
}

// Config carries the sender identity used on every message.
type Config struct {
	FromEmail string
	FromName  string
}

// Notifier turns booking events into mail.
type Notifier struct {
	cfg    Config
	sender Sender
	log    *slog.Logger
}

// New constructs a Notifier.
func New(cfg Config, sender Sender, log *slog.Logger) *Notifier {
	return &Notifier{cfg: cfg, sender: sender, log: log}
}

// BookingRequested tells a user their booking was recorded and needs
// confirming. Failures are logged and dropped.
func (n *Notifier) BookingRequested(ctx context.Context, user model.User, class model.ClassSession, b model.Booking) {
	if user.Email == "" {
		return
	}
	m := n.mail(user.Email, "Booking Confirmation", fmt.Sprintf(
		"You have successfully booked the class: %s (%s).\n"+
			"Please confirm your attendance within %d minutes, otherwise the booking is released.\n"+
			"Booking reference: %s",
		class.Name, class.StartsAt.Format("2006-01-02 15:04 MST"),
		int(model.ExpiryGracePeriod.Minutes()), b.ID,
	))
	if err := n.sender.SendMail(ctx, m); err != nil {
		n.log.Warn("booking mail not sent", "booking_id", b.ID, "err", err)
	}
}

// ClassReminder sends the "starts within 24h" reminder. The error is
// returned so the caller can decide whether the reminder counts as sent.
func (n *Notifier) ClassReminder(ctx context.Context, t model.ReminderTarget) error {
	if t.Email == "" {
		return fmt.Errorf("booking %s: user has no email", t.BookingID)
	}
	m := n.mail(t.Email, "Class Reminder", fmt.Sprintf(
		"Reminder: Your class '%s' is scheduled within the next %d hours (%s).",
		t.ClassName, int(model.ReminderWindow.Hours()), t.StartsAt.Format("2006-01-02 15:04 MST"),
	))
	return n.sender.SendMail(ctx, m)
}

func (n *Notifier) mail(to, subject, body string) Mail {
	return Mail{
		Subject:  subject,
		Body:     body,
		From:     n.cfg.FromEmail,
		FromName: n.cfg.FromName,
		To:       []string{to},
	}
}

// LogSender writes mail to the log instead of sending it.
type LogSender struct {
	Log *slog.Logger
}

func (s LogSender) SendMail(_ context.Context, m Mail) error {
	s.Log.Info("mail", "to", m.To, "subject", m.Subject, "body", m.Body)
	return nil
}
