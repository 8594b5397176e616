package notify

import (
	"fmt"
	"strings"

	"github.com/emersion/go-sasl"
	"github.com/emersion/go-smtp"
	"go.uber.org/zap"

	"techassist/server/internal/config"
)

// Notifier delivers one mail. Implementations must be safe for
// concurrent use; the dispatcher calls Send from its own goroutines.
type Notifier interface {
	Send(m Mail) error
}

// NewMailer returns the SMTP notifier, or a no-op one when mail is
// disabled in the config.
func NewMailer(cfg config.SMTPConfig, log *zap.Logger) Notifier {
	if !cfg.Enabled {
		return NopNotifier{}
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &SMTPMailer{cfg: cfg, log: log}
}

// SMTPMailer sends plain-text mail through a single upstream relay.
type SMTPMailer struct {
	cfg config.SMTPConfig
	log *zap.Logger
}

func (m *SMTPMailer) Send(mail Mail) error {
	if len(mail.To) == 0 {
		return nil
	}

	var auth sasl.Client
	if m.cfg.Username != "" {
		auth = sasl.NewPlainClient("", m.cfg.Username, m.cfg.Password)
	}

	addr := fmt.Sprintf("%s:%d", m.cfg.Host, m.cfg.Port)
	msg := buildMessage(m.cfg.From, mail)

	if err := smtp.SendMail(addr, auth, m.cfg.From, mail.To, strings.NewReader(msg)); err != nil {
		return fmt.Errorf("send mail: %w", err)
	}
	m.log.Debug("mail sent",
		zap.Strings("to", mail.To),
		zap.String("subject", mail.Subject))
	return nil
}

func buildMessage(from string, mail Mail) string {
	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", from)
	fmt.Fprintf(&b, "To: %s\r\n", strings.Join(mail.To, ", "))
	fmt.Fprintf(&b, "Subject: %s\r\n", mail.Subject)
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=utf-8\r\n")
	b.WriteString("\r\n")
	b.WriteString(mail.Body)
	return b.String()
}

// NopNotifier drops every mail. Used when SMTP is disabled.
type NopNotifier struct{}

func (NopNotifier) Send(Mail) error { return nil }
