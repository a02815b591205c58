// Package metrics holds the Prometheus collectors of the auth service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Outcome labels.
const (
	ResultSuccess = "success"
	ResultDenied  = "denied"
	ResultError   = "error"
)

// Auth counts session lifecycle events. A nil *Auth records nothing.
type Auth struct {
	logins        *prometheus.CounterVec
	refreshes     *prometheus.CounterVec
	logouts       prometheus.Counter
	terminations  prometheus.Counter
	prunedTokens  prometheus.Counter
	deactivations prometheus.Counter
}

// NewAuth registers the collectors on reg.
func NewAuth(reg prometheus.Registerer) *Auth {
	f := promauto.With(reg)
	return &Auth{
		logins: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "cinelog",
			Subsystem: "auth",
			Name:      "logins_total",
			Help:      "Login attempts by result.",
		}, []string{"result"}),
		refreshes: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "cinelog",
			Subsystem: "auth",
			Name:      "refreshes_total",
			Help:      "Access token refresh attempts by result.",
		}, []string{"result"}),
		logouts: f.NewCounter(prometheus.CounterOpts{
			Namespace: "cinelog",
			Subsystem: "auth",
			Name:      "logouts_total",
			Help:      "Logout requests.",
		}),
		terminations: f.NewCounter(prometheus.CounterOpts{
			Namespace: "cinelog",
			Subsystem: "auth",
			Name:      "session_terminations_total",
			Help:      "Sessions terminated by their owner.",
		}),
		prunedTokens: f.NewCounter(prometheus.CounterOpts{
			Namespace: "cinelog",
			Subsystem: "auth",
			Name:      "refresh_tokens_pruned_total",
			Help:      "Expired refresh token rows deleted.",
		}),
		deactivations: f.NewCounter(prometheus.CounterOpts{
			Namespace: "cinelog",
			Subsystem: "auth",
			Name:      "sessions_superseded_total",
			Help:      "Sessions deactivated by a newer login on the same device.",
		}),
	}
}

func (m *Auth) Login(result string) {
	if m == nil {
		return
	}
	m.logins.WithLabelValues(result).Inc()
}

func (m *Auth) Refresh(result string) {
	if m == nil {
		return
	}
	m.refreshes.WithLabelValues(result).Inc()
}

func (m *Auth) Logout() {
	if m == nil {
		return
	}
	m.logouts.Inc()
}

func (m *Auth) Termination() {
	if m == nil {
		return
	}
	m.terminations.Inc()
}

func (m *Auth) Pruned(n int64) {
	if m == nil || n <= 0 {
		return
	}
	m.prunedTokens.Add(float64(n))
}

func (m *Auth) Superseded(n int64) {
	if m == nil || n <= 0 {
		return
	}
	m.deactivations.Add(float64(n))
}
