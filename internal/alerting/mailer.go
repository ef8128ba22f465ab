package alerting

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"mime"
	"mime/multipart"
	"net"
	"net/smtp"
	"net/textproto"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"flight-deals/internal/config"
	"flight-deals/internal/domain"
)

// Message is a rendered email.
type Message struct {
	To      string
	Subject string
	HTML    string
	Text    string
}

// Mailer hands rendered mail to a transport.
type Mailer interface {
	Send(ctx context.Context, msg Message) error
}

// SMTPMailer delivers mail through an SMTP relay with STARTTLS when offered.
type SMTPMailer struct {
	cfg    config.SMTPConfig
	logger zerolog.Logger
}

// NewSMTPMailer constructs an SMTP mailer.
func NewSMTPMailer(cfg config.SMTPConfig, logger zerolog.Logger) *SMTPMailer {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	return &SMTPMailer{cfg: cfg, logger: logger.With().Str("component", "mail_smtp").Logger()}
}

// Send delivers msg. Connection and protocol failures are reported as transient.
func (m *SMTPMailer) Send(ctx context.Context, msg Message) error {
	body, err := buildMIME(m.cfg.From, msg)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, m.cfg.Timeout)
	defer cancel()

	addr := net.JoinHostPort(m.cfg.Host, strconv.Itoa(m.cfg.Port))
	var dialer net.Dialer
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return domain.Transient(fmt.Errorf("dial smtp %s: %w", addr, err))
	}
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}

	client, err := smtp.NewClient(conn, m.cfg.Host)
	if err != nil {
		conn.Close()
		return domain.Transient(fmt.Errorf("smtp handshake: %w", err))
	}
	defer client.Close()

	if ok, _ := client.Extension("STARTTLS"); ok {
		if err := client.StartTLS(&tls.Config{ServerName: m.cfg.Host, MinVersion: tls.VersionTLS12}); err != nil {
			return domain.Transient(fmt.Errorf("smtp starttls: %w", err))
		}
	}
	if m.cfg.Username != "" {
		auth := smtp.PlainAuth("", m.cfg.Username, m.cfg.Password, m.cfg.Host)
		if err := client.Auth(auth); err != nil {
			return fmt.Errorf("smtp auth: %w", err)
		}
	}

	if err := client.Mail(m.cfg.From); err != nil {
		return domain.Transient(fmt.Errorf("smtp MAIL FROM: %w", err))
	}
	if err := client.Rcpt(msg.To); err != nil {
		return fmt.Errorf("smtp RCPT TO %s: %w", msg.To, err)
	}
	w, err := client.Data()
	if err != nil {
		return domain.Transient(fmt.Errorf("smtp DATA: %w", err))
	}
	if _, err := w.Write(body); err != nil {
		return domain.Transient(fmt.Errorf("write smtp body: %w", err))
	}
	if err := w.Close(); err != nil {
		return domain.Transient(fmt.Errorf("finish smtp body: %w", err))
	}
	if err := client.Quit(); err != nil {
		m.logger.Warn().Err(err).Msg("smtp QUIT failed after delivery")
	}
	return nil
}

// buildMIME assembles a multipart/alternative message with text and HTML parts.
func buildMIME(from string, msg Message) ([]byte, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	header := fmt.Sprintf("From: %s\r\nTo: %s\r\nSubject: %s\r\nMIME-Version: 1.0\r\nDate: %s\r\nContent-Type: multipart/alternative; boundary=%q\r\n\r\n",
		from, msg.To, mimeSubject(msg.Subject), time.Now().UTC().Format(time.RFC1123Z), mw.Boundary())

	for _, part := range []struct {
		contentType string
		content     string
	}{
		{"text/plain; charset=UTF-8", msg.Text},
		{"text/html; charset=UTF-8", msg.HTML},
	} {
		if part.content == "" {
			continue
		}
		w, err := mw.CreatePart(textproto.MIMEHeader{
			"Content-Type":              {part.contentType},
			"Content-Transfer-Encoding": {"8bit"},
		})
		if err != nil {
			return nil, fmt.Errorf("create mime part: %w", err)
		}
		if _, err := w.Write([]byte(part.content)); err != nil {
			return nil, fmt.Errorf("write mime part: %w", err)
		}
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("close mime writer: %w", err)
	}
	return append([]byte(header), buf.Bytes()...), nil
}

func mimeSubject(subject string) string {
	return mime.QEncoding.Encode("utf-8", subject)
}

// LogMailer writes messages to the log instead of delivering them.
type LogMailer struct {
	logger zerolog.Logger
}

// NewLogMailer is used when no SMTP relay is configured.
func NewLogMailer(logger zerolog.Logger) *LogMailer {
	return &LogMailer{logger: logger.With().Str("component", "mail_log").Logger()}
}

// Send logs the recipient and subject.
func (m *LogMailer) Send(_ context.Context, msg Message) error {
	m.logger.Info().Str("to", msg.To).Str("subject", msg.Subject).Int("html_bytes", len(msg.HTML)).Msg("mail not delivered: smtp disabled")
	return nil
}

var (
	_ Mailer = (*SMTPMailer)(nil)
	_ Mailer = (*LogMailer)(nil)
)
