package notifications

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/smtp"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/dsvrelay/dsv-relay/internal/config"
)

type SMTPProvider struct {
	cfg    config.SMTPConfig
	logger *zap.Logger
	now    func() time.Time
}

func NewSMTPProvider(cfg config.SMTPConfig, logger *zap.Logger) *SMTPProvider {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SMTPProvider{cfg: cfg, logger: logger, now: time.Now}
}

func (s *SMTPProvider) Send(ctx context.Context, msg EmailMessage) error {
	if len(msg.To) == 0 {
		return ErrNoRecipients
	}
	body, err := msg.Bytes(s.now())
	if err != nil {
		return fmt.Errorf("failed to build message: %w", err)
	}

	if s.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.Timeout)
		defer cancel()
	}

	client, err := s.dialSMTPClient(ctx)
	if err != nil {
		return err
	}
	defer client.Close()

	if err := s.authenticate(client); err != nil {
		return err
	}

	sender := msg.From.Address
	if sender == "" {
		sender = "noreply@localhost"
	}
	if err := client.Mail(sender); err != nil {
		return fmt.Errorf("failed to set sender: %w", err)
	}

	for _, to := range msg.Recipients() {
		if err := client.Rcpt(to); err != nil {
			return fmt.Errorf("failed to set recipient %s: %w", to, err)
		}
	}

	w, err := client.Data()
	if err != nil {
		return fmt.Errorf("failed to initiate data transfer: %w", err)
	}
	if _, err := w.Write(body); err != nil {
		return fmt.Errorf("failed to write message: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("failed to close data transfer: %w", err)
	}

	if err := client.Quit(); err != nil {
		return fmt.Errorf("failed to quit SMTP session: %w", err)
	}
	s.logger.Debug("message delivered",
		zap.String("subject", msg.Subject),
		zap.Int("recipients", len(msg.Recipients())),
		zap.Int("bytes", len(body)))
	return nil
}

func (s *SMTPProvider) dialSMTPClient(ctx context.Context) (*smtp.Client, error) {
	mode := s.cfg.EffectiveTLSMode()
	addr := net.JoinHostPort(s.cfg.Host, strconv.Itoa(s.cfg.Port))
	tlsConfig := &tls.Config{
		ServerName:         s.cfg.Host,
		InsecureSkipVerify: s.cfg.SkipVerify,
	}

	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to SMTP server: %w", err)
	}
	// net/smtp has no context support; bound the whole session by the deadline instead.
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}

	switch mode {
	case "smtps":
		tlsConn := tls.Client(conn, tlsConfig)
		if err := tlsConn.HandshakeContext(ctx); err != nil {
			conn.Close()
			return nil, fmt.Errorf("failed to connect via SMTPS: %w", err)
		}
		client, err := smtp.NewClient(tlsConn, s.cfg.Host)
		if err != nil {
			tlsConn.Close()
			return nil, fmt.Errorf("failed to create SMTP client: %w", err)
		}
		return client, nil
	default:
		client, err := smtp.NewClient(conn, s.cfg.Host)
		if err != nil {
			conn.Close()
			return nil, fmt.Errorf("failed to create SMTP client: %w", err)
		}
		if mode == "starttls" {
			if ok, _ := client.Extension("STARTTLS"); ok {
				if err := client.StartTLS(tlsConfig); err != nil {
					client.Close()
					return nil, fmt.Errorf("failed to start TLS: %w", err)
				}
			} else {
				s.logger.Warn("SMTP server does not offer STARTTLS, continuing unencrypted",
					zap.String("host", s.cfg.Host))
			}
		}
		return client, nil
	}
}

func (s *SMTPProvider) authenticate(client *smtp.Client) error {
	if s.cfg.User == "" || s.cfg.Password == "" {
		return nil
	}

	authType := strings.ToLower(strings.TrimSpace(s.cfg.AuthType))
	var auth smtp.Auth
	switch authType {
	case "login":
		auth = &loginAuth{username: s.cfg.User, password: s.cfg.Password}
	default:
		auth = smtp.PlainAuth("", s.cfg.User, s.cfg.Password, s.cfg.Host)
	}

	if err := client.Auth(auth); err != nil {
		return fmt.Errorf("SMTP authentication failed: %w", err)
	}
	return nil
}

// loginAuth implements SMTP LOGIN authentication
type loginAuth struct {
	username, password string
}

func (a *loginAuth) Start(_ *smtp.ServerInfo) (string, []byte, error) {
	return "LOGIN", []byte{}, nil
}

func (a *loginAuth) Next(fromServer []byte, more bool) ([]byte, error) {
	if more {
		switch string(fromServer) {
		case "Username:":
			return []byte(a.username), nil
		case "Password:":
			return []byte(a.password), nil
		default:
			return nil, fmt.Errorf("unexpected server challenge: %s", fromServer)
		}
	}
	return nil, nil
}

// LogProvider drops messages after logging them. It stands in for SMTP when mail is
// disabled, e.g. during local development.
type LogProvider struct {
	logger *zap.Logger
}

func NewLogProvider(logger *zap.Logger) *LogProvider {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogProvider{logger: logger}
}

func (p *LogProvider) Send(_ context.Context, msg EmailMessage) error {
	if len(msg.To) == 0 {
		return ErrNoRecipients
	}
	p.logger.Info("mail disabled, message not sent",
		zap.String("subject", msg.Subject),
		zap.Strings("recipients", msg.Recipients()),
		zap.Int("attachments", len(msg.Attachments)))
	return nil
}

// ConfigProvider chooses the transport from the live mail configuration on every send, so
// SMTP changes picked up by a config reload apply without a restart.
type ConfigProvider struct {
	mail   func() config.MailConfig
	logger *zap.Logger
}

func NewConfigProvider(mail func() config.MailConfig, logger *zap.Logger) *ConfigProvider {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ConfigProvider{mail: mail, logger: logger}
}

func (p *ConfigProvider) Send(ctx context.Context, msg EmailMessage) error {
	m := p.mail()
	if !m.Enabled {
		return NewLogProvider(p.logger).Send(ctx, msg)
	}
	return NewSMTPProvider(m.SMTP, p.logger).Send(ctx, msg)
}
