// Package mail sends transactional email over an authenticated SMTP session.
//
// Every Send opens its own session and closes it before returning, whatever
// the outcome. There is no pooling, queueing or retry.
package mail

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/textproto"
	"strings"
	"time"

	"github.com/rs/zerolog"
	gomail "github.com/wneessen/go-mail"

	"github.com/realfinance/estate-api/internal/core/domain"
)

const defaultTimeout = 30 * time.Second

// Config captures the SMTP relay settings.
type Config struct {
	Host        string
	Port        int
	Username    string
	Password    string
	FromName    string
	FromAddress string
	// TLSPolicy is one of mandatory, opportunistic or none.
	TLSPolicy string
	// Timeout bounds the whole session, from dial to QUIT.
	Timeout time.Duration
	// TLSConfig overrides the STARTTLS settings, e.g. to trust a private CA.
	// ServerName defaults to Host.
	TLSConfig *tls.Config
}

// SMTPSender implements ports.EmailSender.
type SMTPSender struct {
	cfg    Config
	policy gomail.TLSPolicy
	log    zerolog.Logger
}

func NewSMTPSender(cfg Config, log zerolog.Logger) (*SMTPSender, error) {
	if strings.TrimSpace(cfg.Host) == "" {
		return nil, errors.New("smtp: host is required")
	}
	if cfg.Port <= 0 || cfg.Port > 65535 {
		return nil, fmt.Errorf("smtp: port out of range: %d", cfg.Port)
	}
	if cfg.Username == "" || cfg.Password == "" {
		return nil, errors.New("smtp: username and password are required")
	}
	if cfg.FromAddress == "" {
		cfg.FromAddress = cfg.Username
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}

	if cfg.TLSConfig != nil {
		cfg.TLSConfig = cfg.TLSConfig.Clone()
		if cfg.TLSConfig.ServerName == "" {
			cfg.TLSConfig.ServerName = cfg.Host
		}
	}

	policy, err := parseTLSPolicy(cfg.TLSPolicy)
	if err != nil {
		return nil, err
	}

	return &SMTPSender{cfg: cfg, policy: policy, log: log}, nil
}

func parseTLSPolicy(s string) (gomail.TLSPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "mandatory":
		return gomail.TLSMandatory, nil
	case "opportunistic":
		return gomail.TLSOpportunistic, nil
	case "none":
		return gomail.NoTLS, nil
	default:
		return gomail.TLSMandatory, fmt.Errorf("smtp: unknown tls policy %q", s)
	}
}

// Send delivers one plain-text email. Connection, authentication and
// transmission failures are reported as domain.ErrMailConnect,
// domain.ErrMailAuth and domain.ErrMailSend respectively.
func (s *SMTPSender) Send(ctx context.Context, to, subject, body string) error {
	msg := domain.EmailMessage{
		FromName:    s.cfg.FromName,
		FromAddress: s.cfg.FromAddress,
		To:          to,
		Subject:     subject,
		Body:        body,
	}
	if err := msg.Validate(); err != nil {
		return err
	}

	m, err := buildMessage(msg)
	if err != nil {
		return err
	}

	// The raw connection is tracked here because a session that fails during
	// EHLO, STARTTLS or AUTH is never handed back to the client and would
	// otherwise stay open.
	var conn net.Conn
	dial := func(ctx context.Context, network, address string) (net.Conn, error) {
		c, err := s.dial(ctx, network, address)
		conn = c
		return c, err
	}

	opts := []gomail.Option{
		gomail.WithPort(s.cfg.Port),
		gomail.WithTLSPolicy(s.policy),
		gomail.WithSMTPAuth(gomail.SMTPAuthPlain),
		gomail.WithUsername(s.cfg.Username),
		gomail.WithPassword(s.cfg.Password),
		gomail.WithTimeout(s.cfg.Timeout),
		gomail.WithDialContextFunc(dial),
	}
	if s.cfg.TLSConfig != nil {
		opts = append(opts, gomail.WithTLSConfig(s.cfg.TLSConfig))
	}

	client, err := gomail.NewClient(s.cfg.Host, opts...)
	if err != nil {
		return fmt.Errorf("smtp client: %w", err)
	}
	// Close sends QUIT and drops the socket once a session is established.
	defer func() {
		if cerr := client.Close(); cerr != nil {
			s.log.Warn().Err(cerr).Str("host", s.cfg.Host).Msg("smtp close failed")
		}
	}()

	if err := client.DialWithContext(ctx); err != nil {
		if conn != nil {
			_ = conn.Close()
		}
		return classifyDialError(err)
	}
	if err := client.Send(m); err != nil {
		return fmt.Errorf("%w: %w", domain.ErrMailSend, err)
	}

	s.log.Debug().Str("to", to).Str("subject", subject).Msg("email sent")
	return nil
}

// dial applies the session deadline to the raw connection so a silent peer
// cannot stall the caller past Timeout.
func (s *SMTPSender) dial(ctx context.Context, network, address string) (net.Conn, error) {
	d := net.Dialer{Timeout: s.cfg.Timeout}
	conn, err := d.DialContext(ctx, network, address)
	if err != nil {
		return nil, err
	}
	if err := conn.SetDeadline(time.Now().Add(s.cfg.Timeout)); err != nil {
		_ = conn.Close()
		return nil, err
	}
	return conn, nil
}

func buildMessage(msg domain.EmailMessage) (*gomail.Msg, error) {
	m := gomail.NewMsg()
	if err := m.FromFormat(msg.FromName, msg.FromAddress); err != nil {
		return nil, fmt.Errorf("%w: sender: %w", domain.ErrInvalidEmail, err)
	}
	if err := m.To(msg.To); err != nil {
		return nil, fmt.Errorf("%w: recipient: %w", domain.ErrInvalidEmail, err)
	}
	m.Subject(msg.Subject)
	m.SetBodyString(gomail.TypeTextPlain, msg.Body)
	return m, nil
}

// classifyDialError separates rejected credentials from everything else that
// can go wrong before a message is handed over.
func classifyDialError(err error) error {
	var tpErr *textproto.Error
	if errors.As(err, &tpErr) && tpErr.Code >= 530 && tpErr.Code < 540 {
		return fmt.Errorf("%w: %w", domain.ErrMailAuth, err)
	}
	if strings.Contains(strings.ToUpper(err.Error()), "SMTP AUTH") {
		return fmt.Errorf("%w: %w", domain.ErrMailAuth, err)
	}
	return fmt.Errorf("%w: %w", domain.ErrMailConnect, err)
}
