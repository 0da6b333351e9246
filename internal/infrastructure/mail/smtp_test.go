package mail

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"errors"
	"math/big"
	"net"
	"net/textproto"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	gomail "github.com/wneessen/go-mail"

	"github.com/realfinance/estate-api/internal/core/domain"
)

// fakeSMTP is a minimal ESMTP peer on loopback. It advertises STARTTLS only
// when tlsConfig is set.
type fakeSMTP struct {
	ln        net.Listener
	authReply string
	dataReply string
	silent    bool
	tlsConfig *tls.Config

	mu       sync.Mutex
	commands []string
	data     string
	quit     bool
	closed   chan struct{}
}

func startFakeSMTP(t *testing.T, opts ...func(*fakeSMTP)) *fakeSMTP {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	f := &fakeSMTP{
		ln:        ln,
		authReply: "235 2.7.0 Authentication successful",
		dataReply: "250 2.0.0 queued",
		closed:    make(chan struct{}, 4),
	}
	for _, opt := range opts {
		opt(f)
	}
	t.Cleanup(func() { _ = ln.Close() })
	go f.serve()
	return f
}

func (f *fakeSMTP) port() int {
	return f.ln.Addr().(*net.TCPAddr).Port
}

func (f *fakeSMTP) serve() {
	for {
		conn, err := f.ln.Accept()
		if err != nil {
			return
		}
		go f.handle(conn)
	}
}

func (f *fakeSMTP) handle(conn net.Conn) {
	defer func() {
		_ = conn.Close()
		f.closed <- struct{}{}
	}()
	tp := textproto.NewConn(conn)
	encrypted := false

	if f.silent {
		// Hold the socket open without greeting; the client gives up first.
		_, _ = tp.ReadLine()
		return
	}

	_ = tp.PrintfLine("220 fake.local ESMTP ready")
	for {
		line, err := tp.ReadLine()
		if err != nil {
			return
		}
		f.record(line)

		verb := strings.ToUpper(strings.SplitN(line, " ", 2)[0])
		switch verb {
		case "EHLO":
			_ = tp.PrintfLine("250-fake.local")
			if f.tlsConfig != nil && !encrypted {
				_ = tp.PrintfLine("250-STARTTLS")
			}
			_ = tp.PrintfLine("250-AUTH PLAIN LOGIN")
			_ = tp.PrintfLine("250 8BITMIME")
		case "STARTTLS":
			if f.tlsConfig == nil || encrypted {
				_ = tp.PrintfLine("502 5.5.1 not supported")
				continue
			}
			_ = tp.PrintfLine("220 2.0.0 ready to start TLS")
			tlsConn := tls.Server(conn, f.tlsConfig)
			if err := tlsConn.Handshake(); err != nil {
				return
			}
			tp = textproto.NewConn(tlsConn)
			encrypted = true
		case "AUTH":
			_ = tp.PrintfLine("%s", f.authReply)
		case "DATA":
			_ = tp.PrintfLine("354 end data with <CR><LF>.<CR><LF>")
			lines, err := tp.ReadDotLines()
			if err != nil {
				return
			}
			f.mu.Lock()
			f.data = strings.Join(lines, "\n")
			f.mu.Unlock()
			_ = tp.PrintfLine("%s", f.dataReply)
		case "QUIT":
			f.mu.Lock()
			f.quit = true
			f.mu.Unlock()
			_ = tp.PrintfLine("221 2.0.0 bye")
			return
		default:
			_ = tp.PrintfLine("250 2.0.0 OK")
		}
	}
}

func (f *fakeSMTP) record(line string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.commands = append(f.commands, line)
}

func (f *fakeSMTP) hasCommand(prefix string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, c := range f.commands {
		if strings.HasPrefix(strings.ToUpper(c), strings.ToUpper(prefix)) {
			return true
		}
	}
	return false
}

func (f *fakeSMTP) commandIndex(prefix string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, c := range f.commands {
		if strings.HasPrefix(strings.ToUpper(c), strings.ToUpper(prefix)) {
			return i
		}
	}
	return -1
}

func (f *fakeSMTP) waitClosed(t *testing.T) {
	t.Helper()
	select {
	case <-f.closed:
	case <-time.After(3 * time.Second):
		t.Fatal("smtp session was not closed")
	}
}

func newTestSender(t *testing.T, port int) *SMTPSender {
	t.Helper()
	s, err := NewSMTPSender(Config{
		Host:      "127.0.0.1",
		Port:      port,
		Username:  "support@example.com",
		Password:  "secret",
		FromName:  "Support CareApp",
		TLSPolicy: "opportunistic",
		Timeout:   2 * time.Second,
	}, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewSMTPSender: %v", err)
	}
	return s
}

func TestSend_DeliversAndClosesSession(t *testing.T) {
	srv := startFakeSMTP(t)
	sender := newTestSender(t, srv.port())

	err := sender.Send(context.Background(), "buyer@example.com", "Viewing confirmed", "See you on Monday at 10.")
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	srv.waitClosed(t)

	if !srv.hasCommand("AUTH PLAIN") {
		t.Error("expected AUTH PLAIN")
	}
	if !srv.hasCommand("MAIL FROM:<support@example.com>") {
		t.Error("sender address not defaulted to username")
	}
	if !srv.hasCommand("RCPT TO:<buyer@example.com>") {
		t.Error("expected RCPT TO buyer")
	}

	srv.mu.Lock()
	defer srv.mu.Unlock()
	if !srv.quit {
		t.Error("expected QUIT before close")
	}
	if !strings.Contains(srv.data, "Subject: Viewing confirmed") {
		t.Errorf("subject missing from data:\n%s", srv.data)
	}
	if !strings.Contains(srv.data, "See you on Monday at 10.") {
		t.Errorf("body missing from data:\n%s", srv.data)
	}
	if !strings.Contains(srv.data, "Support CareApp") {
		t.Errorf("sender display name missing from data:\n%s", srv.data)
	}
}

func TestSend_UnreachableEndpoint(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	port := ln.Addr().(*net.TCPAddr).Port
	_ = ln.Close()

	sender := newTestSender(t, port)

	start := time.Now()
	err = sender.Send(context.Background(), "buyer@example.com", "hi", "body")
	if !errors.Is(err, domain.ErrMailConnect) {
		t.Fatalf("expected ErrMailConnect, got %v", err)
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Errorf("unreachable endpoint took %s", elapsed)
	}
}

func TestSend_SilentPeerTimesOut(t *testing.T) {
	srv := startFakeSMTP(t, func(f *fakeSMTP) { f.silent = true })

	sender := newTestSender(t, srv.port())
	sender.cfg.Timeout = 300 * time.Millisecond

	start := time.Now()
	err := sender.Send(context.Background(), "buyer@example.com", "hi", "body")
	if !errors.Is(err, domain.ErrMailConnect) {
		t.Fatalf("expected ErrMailConnect, got %v", err)
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Errorf("silent peer held the caller for %s", elapsed)
	}
}

func TestSend_AuthRejected(t *testing.T) {
	srv := startFakeSMTP(t, func(f *fakeSMTP) {
		f.authReply = "535 5.7.8 Authentication credentials invalid"
	})
	sender := newTestSender(t, srv.port())

	err := sender.Send(context.Background(), "buyer@example.com", "hi", "body")
	if !errors.Is(err, domain.ErrMailAuth) {
		t.Fatalf("expected ErrMailAuth, got %v", err)
	}
	srv.waitClosed(t)
	if srv.hasCommand("MAIL FROM") {
		t.Error("no message should be submitted after auth failure")
	}
}

func TestSend_DataRejected(t *testing.T) {
	srv := startFakeSMTP(t, func(f *fakeSMTP) { f.dataReply = "554 5.6.0 message rejected" })
	sender := newTestSender(t, srv.port())

	err := sender.Send(context.Background(), "buyer@example.com", "hi", "body")
	if !errors.Is(err, domain.ErrMailSend) {
		t.Fatalf("expected ErrMailSend, got %v", err)
	}
	srv.waitClosed(t)
}

func TestSend_RejectsInvalidInputWithoutConnecting(t *testing.T) {
	srv := startFakeSMTP(t)
	sender := newTestSender(t, srv.port())

	cases := []struct {
		name, to, subject, body string
	}{
		{"empty recipient", "", "hi", "body"},
		{"empty subject", "buyer@example.com", "", "body"},
		{"empty body", "buyer@example.com", "hi", "  "},
		{"bad recipient", "not-an-address", "hi", "body"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := sender.Send(context.Background(), tc.to, tc.subject, tc.body)
			if !errors.Is(err, domain.ErrInvalidEmail) {
				t.Fatalf("expected ErrInvalidEmail, got %v", err)
			}
		})
	}

	srv.mu.Lock()
	defer srv.mu.Unlock()
	if len(srv.commands) != 0 {
		t.Errorf("expected no SMTP traffic, got %v", srv.commands)
	}
}

func TestNewSMTPSender_Validation(t *testing.T) {
	base := Config{Host: "smtp.example.com", Port: 587, Username: "u@example.com", Password: "p"}

	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"missing host", func(c *Config) { c.Host = " " }},
		{"bad port", func(c *Config) { c.Port = 0 }},
		{"missing password", func(c *Config) { c.Password = "" }},
		{"unknown tls policy", func(c *Config) { c.TLSPolicy = "sometimes" }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := base
			tc.mutate(&cfg)
			if _, err := NewSMTPSender(cfg, zerolog.Nop()); err == nil {
				t.Fatal("expected error")
			}
		})
	}

	s, err := NewSMTPSender(base, zerolog.Nop())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if s.cfg.FromAddress != base.Username {
		t.Errorf("from address = %q, want username", s.cfg.FromAddress)
	}
	if s.cfg.Timeout != defaultTimeout {
		t.Errorf("timeout = %s, want default", s.cfg.Timeout)
	}
}

// loopbackTLS returns a server config with a self-signed certificate for
// 127.0.0.1 and a client config that trusts it.
func loopbackTLS(t *testing.T) (server, client *tls.Config) {
	t.Helper()
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	tmpl := &x509.Certificate{
		SerialNumber:          big.NewInt(1),
		Subject:               pkix.Name{CommonName: "fake.local"},
		NotBefore:             time.Now().Add(-time.Hour),
		NotAfter:              time.Now().Add(time.Hour),
		IPAddresses:           []net.IP{net.IPv4(127, 0, 0, 1)},
		KeyUsage:              x509.KeyUsageDigitalSignature | x509.KeyUsageCertSign,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		BasicConstraintsValid: true,
		IsCA:                  true,
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &key.PublicKey, key)
	if err != nil {
		t.Fatalf("create certificate: %v", err)
	}
	cert, err := x509.ParseCertificate(der)
	if err != nil {
		t.Fatalf("parse certificate: %v", err)
	}
	roots := x509.NewCertPool()
	roots.AddCert(cert)

	server = &tls.Config{
		Certificates: []tls.Certificate{{Certificate: [][]byte{der}, PrivateKey: key}},
		MinVersion:   tls.VersionTLS12,
	}
	client = &tls.Config{RootCAs: roots, MinVersion: tls.VersionTLS12}
	return server, client
}

func TestSend_MandatoryTLSRefusesPlaintextRelay(t *testing.T) {
	srv := startFakeSMTP(t)
	sender := newTestSender(t, srv.port())
	sender.policy = gomail.TLSMandatory

	err := sender.Send(context.Background(), "buyer@example.com", "hi", "body")
	if !errors.Is(err, domain.ErrMailConnect) {
		t.Fatalf("expected ErrMailConnect, got %v", err)
	}
	srv.waitClosed(t)

	if srv.hasCommand("AUTH") {
		t.Fatal("credentials must not be sent over an unencrypted session")
	}
	if srv.hasCommand("MAIL FROM") {
		t.Fatal("no mail transaction may start without TLS")
	}
}

func TestSend_NegotiatesStartTLSBeforeAuth(t *testing.T) {
	serverTLS, clientTLS := loopbackTLS(t)
	srv := startFakeSMTP(t, func(f *fakeSMTP) { f.tlsConfig = serverTLS })

	sender, err := NewSMTPSender(Config{
		Host:      "127.0.0.1",
		Port:      srv.port(),
		Username:  "support@example.com",
		Password:  "secret",
		FromName:  "Support CareApp",
		Timeout:   2 * time.Second,
		TLSConfig: clientTLS,
	}, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewSMTPSender: %v", err)
	}
	if sender.policy != gomail.TLSMandatory {
		t.Fatalf("default policy = %v, want mandatory", sender.policy)
	}

	if err := sender.Send(context.Background(), "buyer@example.com", "Offer accepted", "Congratulations."); err != nil {
		t.Fatalf("Send: %v", err)
	}
	srv.waitClosed(t)

	starttls, auth := srv.commandIndex("STARTTLS"), srv.commandIndex("AUTH PLAIN")
	if starttls < 0 || auth < 0 {
		t.Fatalf("expected STARTTLS and AUTH, got commands %v", srv.commands)
	}
	if starttls > auth {
		t.Fatalf("AUTH (#%d) was sent before STARTTLS (#%d)", auth, starttls)
	}

	srv.mu.Lock()
	defer srv.mu.Unlock()
	if !srv.quit || !strings.Contains(srv.data, "Subject: Offer accepted") {
		t.Fatalf("message not delivered over TLS: quit=%v data=%q", srv.quit, srv.data)
	}
}
