package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Label values used across the client
const (
	RefreshIssued    = "issued"
	RefreshNotNeeded = "not_needed"
	RefreshFailed    = "failed"

	RetryUnauthorized = "unauthorized"
	RetryUserNotFound = "user_not_found"

	LogoutRefreshFailed = "refresh_failed"
	LogoutRetryFailed   = "retry_failed"
	LogoutRenewalFailed = "renewal_failed"
	LogoutTokenExpired  = "token_expired"

	SyncExists         = "exists"
	SyncForceSynced    = "force_synced"
	SyncMinimalCreated = "minimal_created"
	SyncFailed         = "failed"
	SyncSuppressed     = "suppressed"
)

// Metrics holds the client's Prometheus collectors. A nil *Metrics is valid
// and records nothing.
type Metrics struct {
	Refreshes     *prometheus.CounterVec
	Retries       *prometheus.CounterVec
	ForcedLogouts *prometheus.CounterVec
	UserSyncs     *prometheus.CounterVec
	APIErrors     *prometheus.CounterVec
}

// New creates the collectors and registers them with reg
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		Refreshes: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "ticketctl_token_refreshes_total",
			Help: "Token refresh attempts by result",
		}, []string{"result"}),
		Retries: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "ticketctl_request_retries_total",
			Help: "Requests resent after a recoverable failure",
		}, []string{"reason"}),
		ForcedLogouts: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "ticketctl_forced_logouts_total",
			Help: "Sessions terminated because the token could not be recovered",
		}, []string{"reason"}),
		UserSyncs: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "ticketctl_user_sync_total",
			Help: "Backend user reconciliation outcomes",
		}, []string{"outcome"}),
		APIErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "ticketctl_api_errors_total",
			Help: "Failed API responses by status code",
		}, []string{"status"}),
	}
}

func (m *Metrics) IncRefresh(result string) {
	if m == nil {
		return
	}
	m.Refreshes.WithLabelValues(result).Inc()
}

func (m *Metrics) IncRetry(reason string) {
	if m == nil {
		return
	}
	m.Retries.WithLabelValues(reason).Inc()
}

func (m *Metrics) IncForcedLogout(reason string) {
	if m == nil {
		return
	}
	m.ForcedLogouts.WithLabelValues(reason).Inc()
}

func (m *Metrics) IncUserSync(outcome string) {
	if m == nil {
		return
	}
	m.UserSyncs.WithLabelValues(outcome).Inc()
}

func (m *Metrics) IncAPIError(status string) {
	if m == nil {
		return
	}
	m.APIErrors.WithLabelValues(status).Inc()
}
