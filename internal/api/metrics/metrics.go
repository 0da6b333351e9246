// Package metrics defines and registers all custom Prometheus metrics for the
// estate API. It is the single source of truth for metric names, labels, and
// help strings.
//
// Metrics are registered with the default Prometheus registry on package
// initialisation via promauto.
package metrics

import (
	"context"
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/realfinance/estate-api/internal/core/domain"
	"github.com/realfinance/estate-api/internal/core/ports"
)

const namespace = "estate"

// ── Auth metrics ──────────────────────────────────────────────────────────────

// TokenValidationsTotal counts bearer token checks made by the auth middleware.
// Label:
//   - result: "ok", "missing", "expired", "not_yet_valid", "bad_signature",
//     "bad_claims" or "malformed"
var TokenValidationsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "auth_token_validations_total",
		Help:      "Total number of bearer token validations, by result.",
	},
	[]string{"result"},
)

// LoginsTotal counts login attempts.
// Label:
//   - result: "success", "invalid_credentials" or "error"
var LoginsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "auth_logins_total",
		Help:      "Total number of login attempts, by result.",
	},
	[]string{"result"},
)

// ── Mail metrics ──────────────────────────────────────────────────────────────

// EmailsTotal counts send attempts.
// Label:
//   - result: "sent", "invalid", "connect_error", "auth_error", "send_error" or "error"
var EmailsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "emails_total",
		Help:      "Total number of email send attempts, by result.",
	},
	[]string{"result"},
)

// EmailSendDuration measures one full SMTP session.
var EmailSendDuration = promauto.NewHistogram(
	prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "email_send_duration_seconds",
		Help:      "Duration of a single email send, from connect to close.",
		Buckets:   prometheus.DefBuckets,
	},
)

// ── Bootstrap metrics ─────────────────────────────────────────────────────────

// BootstrapRolesCreated counts roles created by startup seeding.
var BootstrapRolesCreated = promauto.NewCounter(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "bootstrap_roles_created_total",
		Help:      "Total number of roles created by startup seeding.",
	},
)

// BootstrapAdminCreated is 1 when this process created the admin account.
var BootstrapAdminCreated = promauto.NewGauge(
	prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "bootstrap_admin_created",
		Help:      "1 if the admin account was created by this process at startup, otherwise 0.",
	},
)

// RecordBootstrap publishes the outcome of a startup seeding run.
func RecordBootstrap(rolesCreated int, adminCreated bool) {
	BootstrapRolesCreated.Add(float64(rolesCreated))
	if adminCreated {
		BootstrapAdminCreated.Set(1)
		return
	}
	BootstrapAdminCreated.Set(0)
}

// EmailResult maps a send error to its metric label.
func EmailResult(err error) string {
	switch {
	case err == nil:
		return "sent"
	case errors.Is(err, domain.ErrInvalidEmail):
		return "invalid"
	case errors.Is(err, domain.ErrMailConnect):
		return "connect_error"
	case errors.Is(err, domain.ErrMailAuth):
		return "auth_error"
	case errors.Is(err, domain.ErrMailSend):
		return "send_error"
	default:
		return "error"
	}
}

// InstrumentedSender wraps an EmailSender and records result and duration of
// every send.
type InstrumentedSender struct {
	next ports.EmailSender
}

func NewInstrumentedSender(next ports.EmailSender) *InstrumentedSender {
	return &InstrumentedSender{next: next}
}

func (s *InstrumentedSender) Send(ctx context.Context, to, subject, body string) error {
	start := time.Now()
	err := s.next.Send(ctx, to, subject, body)
	EmailSendDuration.Observe(time.Since(start).Seconds())
	EmailsTotal.WithLabelValues(EmailResult(err)).Inc()
	return err
}
