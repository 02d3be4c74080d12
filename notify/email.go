package notify

import (
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"net"
	"net/smtp"
	"strconv"
	"strings"

	aerrors "github.com/botsarefuture/hetzner-firewall/app/errors"
)

// Email sends notifications over SMTP with implicit TLS (port 465).
type Email struct {
	host     string
	port     int
	from     string
	password string
	to       string
	logger   *slog.Logger
}

var _ Notifier = (*Email)(nil)

// NewEmail returns a new Email notifier sending from the given account to a
// single recipient.
func NewEmail(host string, port int, from, password, to string, logger *slog.Logger) *Email {
	return &Email{
		host:     host,
		port:     port,
		from:     from,
		password: password,
		to:       to,
		logger:   logger.With("component", "email-notifier"),
	}
}

// Notify implements the Notifier interface.
func (e *Email) Notify(ctx context.Context, subject, body string) (rerr error) {
	addr := net.JoinHostPort(e.host, strconv.Itoa(e.port))
	errFields := []any{"smtp_host", addr, "to", e.to}

	dialer := &tls.Dialer{Config: &tls.Config{ServerName: e.host, MinVersion: tls.VersionTLS12}}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return aerrors.Wrap(aerrors.KindNetwork, "failed connecting to SMTP server", err, errFields...)
	}

	client, err := smtp.NewClient(conn, e.host)
	if err != nil {
		conn.Close() //nolint:errcheck,gosec // Best effort on the error path.
		return aerrors.Wrap(aerrors.KindNetwork, "failed starting SMTP session", err, errFields...)
	}
	defer func() {
		if err := client.Quit(); err != nil && rerr == nil {
			rerr = aerrors.Wrap(aerrors.KindNetwork, "failed closing SMTP session", err, errFields...)
		}
	}()

	auth := smtp.PlainAuth("", e.from, e.password, e.host)
	if err = client.Auth(auth); err != nil {
		return aerrors.Wrap(aerrors.KindNetwork, "SMTP authentication failed", err, errFields...)
	}

	if err = client.Mail(e.from); err != nil {
		return aerrors.Wrap(aerrors.KindNetwork, "SMTP MAIL command failed", err, errFields...)
	}
	if err = client.Rcpt(e.to); err != nil {
		return aerrors.Wrap(aerrors.KindNetwork, "SMTP RCPT command failed", err, errFields...)
	}

	w, err := client.Data()
	if err != nil {
		return aerrors.Wrap(aerrors.KindNetwork, "SMTP DATA command failed", err, errFields...)
	}
	if _, err = w.Write([]byte(e.message(subject, body))); err != nil {
		return aerrors.Wrap(aerrors.KindNetwork, "failed writing message body", err, errFields...)
	}
	if err = w.Close(); err != nil {
		return aerrors.Wrap(aerrors.KindNetwork, "failed finishing message body", err, errFields...)
	}

	e.logger.Debug("sent notification email", "to", e.to, "subject", subject)

	return nil
}

func (e *Email) message(subject, body string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", e.from)
	fmt.Fprintf(&b, "To: %s\r\n", e.to)
	fmt.Fprintf(&b, "Subject: %s\r\n", subject)
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=utf-8\r\n")
	b.WriteString("\r\n")
	b.WriteString(body)
	b.WriteString("\r\n")
	return b.String()
}
