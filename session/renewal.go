package session

import (
	"context"
	"time"

	"github.com/jrsteele09/go-ticket-client/identity"
	"github.com/jrsteele09/go-ticket-client/metrics"
)

const renewalTimeout = 30 * time.Second

// Timer is the handle of a scheduled renewal
type Timer interface {
	Stop() bool
}

// AfterFunc schedules f after d. time.AfterFunc satisfies it through a wrapper.
type AfterFunc func(d time.Duration, f func()) Timer

func realAfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

// RenewalDelay returns how long to wait before renewing a token expiring at
// expiresAt: lead before expiry, but never sooner than floor
func RenewalDelay(expiresAt, now time.Time, lead, floor time.Duration) time.Duration {
	return max(expiresAt.Sub(now)-lead, floor)
}

// ScheduleRenewal arms the renewal timer for the current token, replacing any
// previously scheduled renewal
func (m *Manager) ScheduleRenewal() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.stopTimer()
	if !m.session.Authenticated || m.session.Claims == nil || m.session.Claims.ExpiresAt.IsZero() {
		return
	}

	delay := RenewalDelay(m.session.Claims.ExpiresAt, identity.NowTimeFunc(), m.renewalLead, m.minRenewalDelay)
	m.timerGen++
	gen := m.timerGen
	m.timer = m.afterFunc(delay, func() { m.renew(gen) })

	m.logger.Debug().Dur("delay", delay).Time("expires_at", m.session.Claims.ExpiresAt).Msg("token renewal scheduled")
}

// stopTimer must be called with m.mu held
func (m *Manager) stopTimer() {
	m.timerGen++
	if m.timer != nil {
		m.timer.Stop()
		m.timer = nil
	}
}

// renew runs when the renewal timer fires. A provider error ends the session.
func (m *Manager) renew(gen uint64) {
	m.mu.Lock()
	current := gen == m.timerGen
	if current {
		m.timer = nil
	}
	m.mu.Unlock()
	if !current {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), renewalTimeout)
	defer cancel()

	refreshed, err := m.provider.UpdateToken(ctx, m.refreshThreshold)
	if err != nil {
		m.logger.Warn().Err(err).Msg("scheduled token renewal failed, logging out")
		m.metrics.IncRefresh(metrics.RefreshFailed)
		m.metrics.IncForcedLogout(metrics.LogoutRenewalFailed)
		if err := m.Logout(ctx, ""); err != nil {
			m.logger.Warn().Err(err).Msg("logout after failed renewal")
		}
		return
	}

	if refreshed {
		m.metrics.IncRefresh(metrics.RefreshIssued)
	} else {
		m.metrics.IncRefresh(metrics.RefreshNotNeeded)
	}
	m.syncFromProvider(ctx)
	m.ScheduleRenewal()
}
