// Package notify delivers plain-text email over an implicitly encrypted SMTP
// session. Delivery is best effort: one attempt, no retry.
package notify

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net"
	"net/smtp"
	"strconv"
	"time"

	"github.com/charmbracelet/log"

	"github.com/dharsanguruparan/ScribeDrop/internal/config"
	"github.com/dharsanguruparan/ScribeDrop/internal/logging"
)

// defaultSessionTimeout applies when neither the context nor the config sets
// a limit on the SMTP session.
const defaultSessionTimeout = 30 * time.Second

var (
	// ErrNotConfigured means one or more SMTP settings are absent; no
	// connection was attempted.
	ErrNotConfigured = errors.New("smtp settings incomplete")
	// ErrAuthFailed means the server rejected the credentials.
	ErrAuthFailed = errors.New("smtp authentication failed")
)

// smtpClient is the subset of *smtp.Client used to send one message.
type smtpClient interface {
	Auth(a smtp.Auth) error
	Mail(from string) error
	Rcpt(to string) error
	Data() (io.WriteCloser, error)
	Quit() error
	Close() error
}

type dialFunc func(ctx context.Context, addr string, tlsCfg *tls.Config) (smtpClient, error)

// Notifier sends transcript emails.
type Notifier struct {
	cfg  config.SMTPConfig
	dial dialFunc
	log  *log.Logger
}

// New returns a Notifier for cfg. Incomplete settings are reported on each
// Send call rather than here.
func New(cfg config.SMTPConfig, logger *log.Logger) *Notifier {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultSessionTimeout
	}
	dial := func(ctx context.Context, addr string, tlsCfg *tls.Config) (smtpClient, error) {
		return dialTLS(ctx, addr, tlsCfg, timeout)
	}
	return &Notifier{cfg: cfg, dial: dial, log: logging.OrDefault(logger)}
}

// ComposeMessage renders the full message payload as UTF-8 bytes.
func ComposeMessage(subject, body string) []byte {
	return []byte("Subject: " + subject + "\n\n" + body)
}

// Send delivers one message to destination.
func (n *Notifier) Send(ctx context.Context, destination, subject, body string) error {
	logger := n.log.With("to", destination)
	if !n.cfg.Complete() {
		logger.Error("smtp settings not set, cannot send email", "missing", n.cfg.Missing())
		return ErrNotConfigured
	}

	addr := net.JoinHostPort(n.cfg.Host, strconv.Itoa(n.cfg.Port))
	logger.Info("connecting to smtp server", "addr", addr)
	client, err := n.dial(ctx, addr, &tls.Config{ServerName: n.cfg.Host, MinVersion: tls.VersionTLS12})
	if err != nil {
		logger.Error("smtp connect failed", "addr", addr, "err", err)
		return fmt.Errorf("connect %s: %w", addr, err)
	}
	defer client.Close()

	if err := client.Auth(smtp.PlainAuth("", n.cfg.User, n.cfg.Password, n.cfg.Host)); err != nil {
		logger.Error("smtp authentication error, check SMTP_USER and SMTP_PASS", "err", err)
		return fmt.Errorf("%w: %w", ErrAuthFailed, err)
	}
	if err := n.deliver(client, destination, ComposeMessage(subject, body)); err != nil {
		logger.Error("failed to send email", "err", err)
		return err
	}
	logger.Info("email sent")
	return nil
}

func (n *Notifier) deliver(client smtpClient, destination string, msg []byte) error {
	if err := client.Mail(n.cfg.User); err != nil {
		return fmt.Errorf("mail from: %w", err)
	}
	if err := client.Rcpt(destination); err != nil {
		return fmt.Errorf("rcpt to: %w", err)
	}
	w, err := client.Data()
	if err != nil {
		return fmt.Errorf("data: %w", err)
	}
	if _, err := w.Write(msg); err != nil {
		w.Close()
		return fmt.Errorf("write message: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("finish message: %w", err)
	}
	if err := client.Quit(); err != nil {
		return fmt.Errorf("quit: %w", err)
	}
	return nil
}

// session ties an SMTP client to the context that opened it. Closing the
// session detaches the cancellation hook.
type session struct {
	*smtp.Client
	stop func() bool
}

func (s *session) Close() error {
	s.stop()
	return s.Client.Close()
}

// dialTLS opens an implicit TLS SMTP session. The whole session, greeting
// included, is bounded by ctx's deadline or by timeout when ctx has none, and
// cancelling ctx closes the connection.
func dialTLS(ctx context.Context, addr string, tlsCfg *tls.Config, timeout time.Duration) (smtpClient, error) {
	dialer := &tls.Dialer{Config: tlsCfg}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, err
	}
	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Now().Add(timeout)
	}
	if err := conn.SetDeadline(deadline); err != nil {
		conn.Close()
		return nil, err
	}
	stop := context.AfterFunc(ctx, func() { conn.Close() })

	client, err := smtp.NewClient(conn, tlsCfg.ServerName)
	if err != nil {
		stop()
		conn.Close()
		return nil, err
	}
	return &session{Client: client, stop: stop}, nil
}
