package dispatch

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"mime"
	"mime/quotedprintable"
	"net"
	"net/smtp"
	"strings"
	"time"
)

type smtpTransport struct {
	cfg Config
}

func newSMTPTransport(cfg Config) *smtpTransport {
	return &smtpTransport{cfg: cfg}
}

// Verify opens a session, negotiates TLS and authenticates, then quits.
func (t *smtpTransport) Verify(ctx context.Context) error {
	client, done, err := t.open(ctx)
	if err != nil {
		return err
	}
	defer done()
	return client.Quit()
}

func (t *smtpTransport) Send(ctx context.Context, msg Message) error {
	raw, err := buildMessage(msg)
	if err != nil {
		return err
	}

	client, done, err := t.open(ctx)
	if err != nil {
		return err
	}
	defer done()

	if err = client.Mail(msg.From); err != nil {
		return fmt.Errorf("failed to set sender: %w", err)
	}
	if err = client.Rcpt(msg.To); err != nil {
		return fmt.Errorf("failed to set recipient %s: %w", msg.To, err)
	}

	w, err := client.Data()
	if err != nil {
		return fmt.Errorf("failed to open data writer: %w", err)
	}
	if _, err = w.Write(raw); err != nil {
		return fmt.Errorf("failed to write message: %w", err)
	}
	if err = w.Close(); err != nil {
		return fmt.Errorf("message rejected: %w", err)
	}

	// the server accepted the message once DATA completed
	_ = client.Quit()
	return nil
}

// open dials the server and returns an authenticated client. done closes the
// connection and must always be called.
func (t *smtpTransport) open(ctx context.Context) (*smtp.Client, func(), error) {
	if err := ctx.Err(); err != nil {
		return nil, nil, fmt.Errorf("context cancelled before connecting: %w", err)
	}

	var deadline time.Time
	if t.cfg.Timeout > 0 {
		deadline = time.Now().Add(t.cfg.Timeout)
	}
	if d, ok := ctx.Deadline(); ok && (deadline.IsZero() || d.Before(deadline)) {
		deadline = d
	}

	conn, err := t.dial(ctx, deadline)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to SMTP server: %w", err)
	}
	if err := conn.SetDeadline(deadline); err != nil {
		conn.Close()
		return nil, nil, err
	}
	stop := context.AfterFunc(ctx, func() { conn.Close() })

	client, err := smtp.NewClient(conn, t.cfg.Host)
	if err != nil {
		stop()
		conn.Close()
		return nil, nil, fmt.Errorf("SMTP handshake failed: %w", err)
	}
	done := func() {
		stop()
		client.Close()
	}

	if !t.cfg.Secure {
		if ok, _ := client.Extension("STARTTLS"); ok {
			if err := client.StartTLS(t.cfg.tlsConfig()); err != nil {
				done()
				return nil, nil, fmt.Errorf("failed to start TLS: %w", err)
			}
		}
	}

	if t.cfg.Username != "" {
		if ok, _ := client.Extension("AUTH"); !ok {
			done()
			return nil, nil, fmt.Errorf("SMTP server does not support authentication")
		}
		auth := smtp.PlainAuth("", t.cfg.Username, t.cfg.Password, t.cfg.Host)
		if err := client.Auth(auth); err != nil {
			done()
			return nil, nil, fmt.Errorf("SMTP authentication failed: %w", err)
		}
	}

	return client, done, nil
}

func (t *smtpTransport) dial(ctx context.Context, deadline time.Time) (net.Conn, error) {
	dialer := &net.Dialer{Deadline: deadline}
	if t.cfg.Secure {
		tlsDialer := &tls.Dialer{NetDialer: dialer, Config: t.cfg.tlsConfig()}
		return tlsDialer.DialContext(ctx, "tcp", t.cfg.Addr())
	}
	return dialer.DialContext(ctx, "tcp", t.cfg.Addr())
}

func buildMessage(msg Message) ([]byte, error) {
	var buf bytes.Buffer

	date := msg.Date
	if date.IsZero() {
		date = time.Now()
	}

	headers := []string{
		"From: " + msg.Sender,
		"To: " + sanitizeHeader(msg.To),
		"Subject: " + mime.QEncoding.Encode("utf-8", sanitizeHeader(msg.Subject)),
		"Date: " + date.Format(time.RFC1123Z),
	}
	if msg.ID != "" {
		headers = append(headers, "Message-ID: "+msg.ID)
	}
	headers = append(headers,
		"MIME-Version: 1.0",
		"Content-Type: text/html; charset=UTF-8",
		"Content-Transfer-Encoding: quoted-printable",
	)
	for _, h := range headers {
		buf.WriteString(h)
		buf.WriteString("\r\n")
	}
	buf.WriteString("\r\n")

	qp := quotedprintable.NewWriter(&buf)
	if _, err := qp.Write([]byte(msg.HTML)); err != nil {
		return nil, fmt.Errorf("encode body: %w", err)
	}
	if err := qp.Close(); err != nil {
		return nil, fmt.Errorf("encode body: %w", err)
	}
	return buf.Bytes(), nil
}

func sanitizeHeader(v string) string {
	return strings.Join(strings.Fields(v), " ")
}
