package notify

import (
	"context"
	"fmt"
	"net"
	"net/smtp"
	"strings"
	"unicode"

	"github.com/xelth-com/dsrelay/internal/config"
	"github.com/xelth-com/dsrelay/internal/models"
)

// EmailSender sends notification mails through an SMTP relay
type EmailSender struct {
	cfg config.SMTPConfig

	// send is smtp.SendMail, replaced in tests
	send func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

// NewEmailSender returns a sender for cfg
func NewEmailSender(cfg config.SMTPConfig) *EmailSender {
	return &EmailSender{cfg: cfg, send: smtp.SendMail}
}

func (e *EmailSender) Send(ctx context.Context, ch models.NotificationChannel, info models.DeliveryInformation) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	var auth smtp.Auth
	if e.cfg.Username != "" {
		auth = smtp.PlainAuth("", e.cfg.Username, e.cfg.Password, e.cfg.Host)
	}

	addr := net.JoinHostPort(e.cfg.Host, e.cfg.Port)
	if err := e.send(addr, auth, e.cfg.From, []string{ch.Recipient}, e.compose(ch.Recipient, info)); err != nil {
		return fmt.Errorf("smtp %s: %w", addr, err)
	}
	return nil
}

// compose builds the message. It names the sender but never carries content.
func (e *EmailSender) compose(to string, info models.DeliveryInformation) []byte {
	var b strings.Builder
	from := headerValue(info.From)
	fmt.Fprintf(&b, "From: %s\r\n", headerValue(e.cfg.From))
	fmt.Fprintf(&b, "To: %s\r\n", headerValue(to))
	fmt.Fprintf(&b, "Subject: New message from %s\r\n", from)
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=UTF-8\r\n\r\n")
	fmt.Fprintf(&b, "You received a new encrypted message from %s.\r\n", from)
	b.WriteString("Open your messenger to read it.\r\n")
	return []byte(b.String())
}

// headerValue drops control characters so a value cannot start a new header
func headerValue(v string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, v)
}
