// Package monitor implements the session monitor: a scheduled sweep that
// kills sessions which are orphaned, have run far past any reasonable
// duration or cost, or whose owner has run out of credits. Grounded
// directly on original_source/server/services/session_monitor.py — the
// same five ordered checks, the same grace-period and critical-credit
// thresholds, and the same five-step kill procedure.
package monitor

import (
	"context"
	"fmt"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/robfig/cron/v3"

	"github.com/sessionforge/sessionforge/internal/billing"
	sferrors "github.com/sessionforge/sessionforge/internal/errors"
	"github.com/sessionforge/sessionforge/internal/logger"
	"github.com/sessionforge/sessionforge/internal/manager"
	"github.com/sessionforge/sessionforge/internal/models"
	"github.com/sessionforge/sessionforge/internal/notify"
	"github.com/sessionforge/sessionforge/internal/store"
)

// Limits configures what counts as a stale/problematic session. Defaults
// match config.Config's MONITOR_* environment variables, which in turn
// match the Python original's SessionLimit dataclass defaults verbatim.
type Limits struct {
	CheckInterval    time.Duration
	MaxDuration      time.Duration
	MaxCostUSD       float64
	MinSessionAge    time.Duration
	GracePeriod      time.Duration
}

// Monitor runs the periodic sweep against the store, the session manager,
// and the billing engine.
type Monitor struct {
	store   store.Store
	mgr     *manager.Core
	billing *billing.Engine
	notify  *notify.Publisher
	limits  Limits

	cron *cron.Cron
}

func New(s store.Store, mgr *manager.Core, b *billing.Engine, n *notify.Publisher, limits Limits) *Monitor {
	return &Monitor{store: s, mgr: mgr, billing: b, notify: n, limits: limits}
}

// Start schedules the sweep on the configured interval and returns
// immediately; the sweep itself runs on cron's own goroutine.
func (m *Monitor) Start() error {
	log := logger.Monitor()
	c := cron.New()
	spec := fmt.Sprintf("@every %s", m.limits.CheckInterval.String())
	_, err := c.AddFunc(spec, func() {
		if err := m.Sweep(context.Background()); err != nil {
			log.Error().Err(err).Msg("sweep completed with errors")
		}
	})
	if err != nil {
		return fmt.Errorf("failed to schedule monitor sweep: %w", err)
	}
	m.cron = c
	c.Start()
	log.Info().Dur("interval", m.limits.CheckInterval).Msg("session monitor started")
	return nil
}

func (m *Monitor) Stop() {
	if m.cron != nil {
		<-m.cron.Stop().Done()
	}
}

// Sweep runs one pass over every active session. Each session is checked
// independently; one session's failure is recorded and does not stop the
// rest of the sweep from running.
func (m *Monitor) Sweep(ctx context.Context) error {
	log := logger.Monitor()

	sessions, err := m.store.ListActiveSessionsForMonitor(ctx)
	if err != nil {
		return fmt.Errorf("failed to list active sessions: %w", err)
	}

	var result *multierror.Error
	for _, s := range sessions {
		if err := m.checkSession(ctx, s); err != nil {
			result = multierror.Append(result, fmt.Errorf("session %s: %w", s.ID, err))
		}
	}

	log.Info().Int("checked", len(sessions)).Msg("sweep complete")
	if result != nil {
		return result.ErrorOrNil()
	}
	return nil
}

func (m *Monitor) checkSession(ctx context.Context, s *models.Session) error {
	info, err := m.store.GetSessionBillingInfo(ctx, s.ID)
	hourlyRate := 0.05
	var startTime time.Time
	if err == nil && info != nil {
		hourlyRate = info.HourlyRate
		startTime = info.StartTime
	} else {
		startTime = s.CreatedAt
	}

	// 1) Too young to touch.
	if time.Since(startTime) < m.limits.MinSessionAge {
		return nil
	}

	// 2) Orphaned: not found through any layer the manager checks.
	live, err := m.mgr.GetSession(ctx, s.ID)
	if err != nil {
		return fmt.Errorf("orphan check failed: %w", err)
	}
	if live == nil {
		return m.kill(ctx, s, "orphaned_session")
	}

	// 3) Extreme duration.
	if time.Since(startTime) > m.limits.MaxDuration {
		return m.kill(ctx, s, "extreme_duration_exceeded")
	}

	// 4) Extreme cost.
	hoursUsed := time.Since(startTime).Hours()
	if hoursUsed*clampRate(hourlyRate) > m.limits.MaxCostUSD {
		return m.kill(ctx, s, "extreme_cost_exceeded")
	}

	// 5) Zero or critically low credits.
	credits, err := m.store.GetUserCredits(ctx, s.UserID)
	if err != nil {
		return fmt.Errorf("credit check failed: %w", err)
	}
	if credits <= 0.0 {
		return m.kill(ctx, s, "zero_credits")
	}
	if credits < hourlyRate && credits < hourlyRate*0.1 {
		return m.kill(ctx, s, "zero_credits")
	}

	return nil
}

func clampRate(rate float64) float64 {
	if rate < 0 {
		return 0
	}
	if rate > 1000 {
		return 1000
	}
	return rate
}

// kill re-confirms the session still exists, respects the grace period for
// every reason except an orphan (which by definition has nothing left to
// wait for), stops billing best-effort, deletes the session via the
// manager, and publishes a kill notification.
func (m *Monitor) kill(ctx context.Context, s *models.Session, reason string) error {
	log := logger.Monitor()
	log.Warn().Str("session_id", s.ID).Str("reason", reason).Msg("considering session for kill")

	current, err := m.mgr.GetSession(ctx, s.ID)
	if err != nil || current == nil {
		log.Info().Str("session_id", s.ID).Msg("session no longer exists, aborting kill")
		return nil
	}

	if reason != "orphaned_session" {
		if age := time.Since(current.CreatedAt); age < m.limits.GracePeriod {
			log.Info().Str("session_id", s.ID).Dur("age", age).Msg("session within grace period, aborting kill")
			return nil
		}
	}

	log.Warn().Str("session_id", s.ID).Str("reason", reason).Msg("proceeding with kill")

	if _, err := m.billing.StopSessionBilling(ctx, s.ID); err != nil && sferrors.KindOf(err) != sferrors.NotFoundKind {
		log.Error().Err(err).Str("session_id", s.ID).Msg("failed to stop billing during kill")
	}

	if err := m.mgr.DeleteSession(ctx, s.ID); err != nil {
		return fmt.Errorf("delete failed: %w", err)
	}

	log.Warn().Str("session_id", s.ID).Str("reason", reason).Msg("session killed")

	if m.notify != nil {
		if err := m.notify.PublishKilled(notify.KillNotification{
			SessionID: s.ID,
			UserID:    s.UserID,
			Reason:    reason,
		}); err != nil {
			log.Error().Err(err).Str("session_id", s.ID).Msg("failed to publish kill notification")
		}
	}

	return nil
}
