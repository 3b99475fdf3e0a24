// Package scheduler drives the periodic check cycle and the daily digest.
package scheduler

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/rampager01/galaxy-agents/internal/agent"
	"github.com/rampager01/galaxy-agents/internal/alert"
	"github.com/rampager01/galaxy-agents/internal/checks"
	"github.com/rampager01/galaxy-agents/internal/config"
)

// maxDigestAttempts bounds retries within one digest hour. After the last
// failed attempt the day is marked done so the next window is tomorrow.
const maxDigestAttempts = 3

const dateLayout = "2006-01-02"

// Investigator runs one Tier 2 investigation over an alert batch.
type Investigator interface {
	Investigate(ctx context.Context, alerts []alert.Alert) agent.Outcome
}

// DigestRunner produces and delivers one daily digest.
type DigestRunner interface {
	Generate(ctx context.Context) error
}

// Notifier delivers one notification.
type Notifier interface {
	Notify(ctx context.Context, severity alert.Severity, title, message string) bool
}

// StateStore persists digest scheduling state. May be absent; state is then
// process-local.
type StateStore interface {
	Load(ctx context.Context) (lastDate string, attempts int, err error)
	Save(ctx context.Context, lastDate string, attempts int) error
}

// Loop is the sentinel's main cycle: every interval it runs the Tier 0
// checks, routes any alerts, and fires the daily digest inside its hour.
type Loop struct {
	cfg      *config.Config
	deps     *checks.Deps
	checkSet []checks.Check

	investigator Investigator // nil when AI is unavailable
	digest       DigestRunner // nil when AI is unavailable
	notifier     Notifier
	store        StateStore // nil disables persistence

	lastDigestDate string
	digestAttempts int

	now func() time.Time
	log *zap.Logger
}

// New assembles the loop. investigator and digest may be nil together; the
// loop then forwards raw alerts and skips the digest.
func New(cfg *config.Config, deps *checks.Deps, investigator Investigator, digest DigestRunner, notifier Notifier, store StateStore, log *zap.Logger) *Loop {
	return &Loop{
		cfg:          cfg,
		deps:         deps,
		checkSet:     checks.All(),
		investigator: investigator,
		digest:       digest,
		notifier:     notifier,
		store:        store,
		now:          time.Now,
		log:          log,
	}
}

// SetClock overrides the time source. Used in tests.
func (l *Loop) SetClock(now func() time.Time) { l.now = now }

// SetChecks overrides the check set. Used in tests.
func (l *Loop) SetChecks(checkSet []checks.Check) { l.checkSet = checkSet }

// Run ticks until ctx is canceled. The first tick fires immediately; an
// in-flight tick always finishes before shutdown.
func (l *Loop) Run(ctx context.Context) error {
	l.loadState(ctx)
	l.log.Info("scheduler started",
		zap.Duration("check_interval", l.cfg.CheckInterval()),
		zap.Int("digest_hour", l.cfg.DigestHour))

	for {
		l.Tick(ctx)

		select {
		case <-ctx.Done():
			l.log.Info("scheduler stopped")
			return nil
		case <-time.After(l.cfg.CheckInterval()):
		}
	}
}

// Tick runs one full cycle: Tier 0 plus the digest window check. A panic in
// the cycle is contained; the next interval retries.
func (l *Loop) Tick(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			l.log.Error("tick panicked", zap.Any("panic", r))
		}
	}()

	l.runChecks(ctx)
	l.maybeRunDigest(ctx)
}

func (l *Loop) runChecks(ctx context.Context) {
	l.log.Info("running checks")
	alerts := checks.RunAll(ctx, l.deps, l.checkSet)
	if len(alerts) == 0 {
		l.log.Info("all checks passed")
		return
	}

	l.log.Warn("checks detected alerts", zap.Int("count", len(alerts)))
	for _, a := range alerts {
		l.log.Warn("alert",
			zap.String("severity", string(a.Severity)),
			zap.String("check", a.CheckName),
			zap.String("message", a.Message))
	}

	if l.investigator != nil {
		l.investigator.Investigate(ctx, alerts)
		return
	}
	// No AI: forward the raw alerts unchanged.
	for _, a := range alerts {
		l.notifier.Notify(ctx, a.Severity, a.CheckName, a.Message)
	}
}

// maybeRunDigest fires the digest at most once per calendar day, only during
// the digest hour, with at most maxDigestAttempts tries. The attempt counter
// resets outside the window and after a success; after the final failed
// attempt the day is marked done.
func (l *Loop) maybeRunDigest(ctx context.Context) {
	now := l.now()
	today := now.Format(dateLayout)

	if now.Hour() != l.cfg.DigestHour || l.lastDigestDate == today {
		if l.digestAttempts != 0 {
			l.digestAttempts = 0
			l.saveState(ctx)
		}
		return
	}

	if l.digestAttempts >= maxDigestAttempts {
		return
	}

	if l.digest == nil {
		l.log.Info("skipping digest, no llm credentials configured")
		l.lastDigestDate = today
		l.digestAttempts = 0
		l.saveState(ctx)
		return
	}

	l.log.Info("generating daily digest")
	if err := l.digest.Generate(ctx); err != nil {
		l.digestAttempts++
		l.log.Error("daily digest failed",
			zap.Int("attempt", l.digestAttempts),
			zap.Int("max_attempts", maxDigestAttempts),
			zap.Error(err))
		if l.digestAttempts >= maxDigestAttempts {
			l.log.Error("giving up on daily digest", zap.Int("attempts", maxDigestAttempts))
			l.lastDigestDate = today
		}
		l.saveState(ctx)
		return
	}

	l.log.Info("daily digest sent")
	l.lastDigestDate = today
	l.digestAttempts = 0
	l.saveState(ctx)
}

func (l *Loop) loadState(ctx context.Context) {
	if l.store == nil {
		return
	}
	lastDate, attempts, err := l.store.Load(ctx)
	if err != nil {
		l.log.Warn("digest state load failed, starting fresh", zap.Error(err))
		return
	}
	l.lastDigestDate = lastDate
	l.digestAttempts = attempts
}

func (l *Loop) saveState(ctx context.Context) {
	if l.store == nil {
		return
	}
	if err := l.store.Save(ctx, l.lastDigestDate, l.digestAttempts); err != nil {
		l.log.Warn("digest state save failed", zap.Error(err))
	}
}
