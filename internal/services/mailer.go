package services

import (
	"context"
	"crypto/tls"
	"fmt"
	"mime"
	"net"
	"net/smtp"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/festpass/registration-backend/internal/config"
)

// Mailer hands a rendered message to an outbound relay
type Mailer interface {
	Send(ctx context.Context, msg *EmailMessage) error
}

type sendMailFunc func(ctx context.Context, addr string, a smtp.Auth, from string, to []string, msg []byte) error

// SMTPMailer delivers through an authenticated SMTP relay, upgrading with
// STARTTLS when the server offers it.
type SMTPMailer struct {
	cfg      config.SMTPConfig
	logger   *logrus.Logger
	sendMail sendMailFunc
}

// NewMailer returns the SMTP mailer, or a log-only mailer when SMTP is disabled
func NewMailer(cfg config.SMTPConfig, logger *logrus.Logger) (Mailer, error) {
	if cfg.Disabled {
		logger.Warn("SMTP_DISABLED=true: notifications will be logged, not sent")
		return &LogMailer{logger: logger}, nil
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &SMTPMailer{cfg: cfg, logger: logger, sendMail: sendMailContext}, nil
}

// Send writes the message to the relay
func (m *SMTPMailer) Send(ctx context.Context, msg *EmailMessage) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	from := m.cfg.SenderAddress()
	addr := fmt.Sprintf("%s:%d", m.cfg.Host, m.cfg.Port)
	auth := smtp.PlainAuth("", m.cfg.Username, m.cfg.Password, m.cfg.Host)

	start := time.Now()
	if err := m.sendMail(ctx, addr, auth, from, []string{msg.To}, buildMIMEMessage(m.cfg.FromName, from, msg)); err != nil {
		return fmt.Errorf("smtp send to %s failed: %w", msg.To, err)
	}

	m.logger.WithFields(logrus.Fields{
		"to":         msg.To,
		"subject":    msg.Subject,
		"latency_ms": time.Since(start).Milliseconds(),
	}).Info("Email sent")
	return nil
}

// sendMailContext is smtp.SendMail bounded by ctx: the connection deadline
// follows the context deadline and cancellation aborts any blocked read or write.
func sendMailContext(ctx context.Context, addr string, a smtp.Auth, from string, to []string, msg []byte) error {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return err
	}

	var dialer net.Dialer
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return err
	}
	defer conn.Close()

	if deadline, ok := ctx.Deadline(); ok {
		if err := conn.SetDeadline(deadline); err != nil {
			return err
		}
	}
	stop := context.AfterFunc(ctx, func() { _ = conn.SetDeadline(time.Now()) })
	defer stop()

	c, err := smtp.NewClient(conn, host)
	if err != nil {
		return err
	}
	defer c.Close()

	if ok, _ := c.Extension("STARTTLS"); ok {
		if err := c.StartTLS(&tls.Config{ServerName: host, MinVersion: tls.VersionTLS12}); err != nil {
			return err
		}
	}
	if a != nil {
		if ok, _ := c.Extension("AUTH"); ok {
			if err := c.Auth(a); err != nil {
				return err
			}
		}
	}
	if err := c.Mail(from); err != nil {
		return err
	}
	for _, rcpt := range to {
		if err := c.Rcpt(rcpt); err != nil {
			return err
		}
	}

	w, err := c.Data()
	if err != nil {
		return err
	}
	if _, err := w.Write(msg); err != nil {
		return err
	}
	if err := w.Close(); err != nil {
		return err
	}
	return c.Quit()
}

func buildMIMEMessage(fromName, from string, msg *EmailMessage) []byte {
	sender := from
	if fromName != "" {
		sender = fmt.Sprintf("%s <%s>", mime.QEncoding.Encode("utf-8", fromName), from)
	}

	var b strings.Builder
	b.WriteString("From: " + sender + "\r\n")
	b.WriteString("To: " + msg.To + "\r\n")
	b.WriteString("Subject: " + mime.QEncoding.Encode("utf-8", msg.Subject) + "\r\n")
	b.WriteString("Date: " + time.Now().UTC().Format(time.RFC1123Z) + "\r\n")
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/html; charset=\"UTF-8\"\r\n")
	b.WriteString("\r\n")
	b.WriteString(msg.HTMLBody)
	return []byte(b.String())
}

// LogMailer only logs, for local development
type LogMailer struct {
	logger *logrus.Logger
}

func (m *LogMailer) Send(ctx context.Context, msg *EmailMessage) error {
	m.logger.WithFields(logrus.Fields{
		"to":      msg.To,
		"subject": msg.Subject,
	}).Info("Email (not sent, SMTP disabled)")
	return nil
}
