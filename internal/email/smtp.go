package email

import (
	"context"
	"fmt"
	"log/slog"
	"net/smtp"
	"strings"

	"github.com/suPer8Hu/snapquestion/internal/contact"
)

type SMTPConfig struct {
	Host string
	Port int
	User string
	Pass string
	From string
}

func (c SMTPConfig) Enabled() bool { return c.Host != "" }

// SendText sends a plain text mail.
func SendText(cfg SMTPConfig, to, subject, body string) error {
	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
	var auth smtp.Auth
	if cfg.User != "" {
		auth = smtp.PlainAuth("", cfg.User, cfg.Pass, cfg.Host)
	}
	return smtp.SendMail(addr, auth, cfg.From, []string{to}, BuildMessage(cfg.From, to, subject, body))
}

func BuildMessage(from, to, subject, body string) []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", from)
	fmt.Fprintf(&b, "To: %s\r\n", to)
	fmt.Fprintf(&b, "Subject: %s\r\n", stripCRLF(subject))
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=UTF-8\r\n\r\n")
	b.WriteString(body)
	return []byte(b.String())
}

func stripCRLF(s string) string {
	return strings.NewReplacer("\r", " ", "\n", " ").Replace(s)
}

// ContactNotifier mails contact form submissions to the support inbox. With
// SMTP unconfigured it only logs, which is what local runs want.
type ContactNotifier struct {
	SMTP SMTPConfig
	To   string
	send func(cfg SMTPConfig, to, subject, body string) error
}

func NewContactNotifier(cfg SMTPConfig, to string) *ContactNotifier {
	return &ContactNotifier{SMTP: cfg, To: to, send: SendText}
}

func (n *ContactNotifier) Notify(ctx context.Context, req *contact.Request) error {
	subject := "New contact request from " + req.Name
	if req.Company != "" {
		subject += " (" + req.Company + ")"
	}
	body := "Name: " + req.Name + "\n" +
		"Email: " + req.Email + "\n" +
		"Company: " + req.Company + "\n" +
		"Request ID: " + req.ID + "\n\n" +
		req.Message + "\n"

	if !n.SMTP.Enabled() {
		slog.InfoContext(ctx, "contact request (smtp disabled)", "id", req.ID, "email", req.Email)
		return nil
	}
	return n.send(n.SMTP, n.To, subject, body)
}
