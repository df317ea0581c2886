// Package action decides what to do about a validated input: the baseline
// severity-to-action mapping, repeat-offender escalation and per-user flood
// limiting. It never returns an action below the baseline.
package action

import (
	"context"
	"fmt"
	"hash/fnv"
	"sync"
	"time"

	"github.com/triage-ai/warden/internal/engine"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// OffenderStore records per-user violations. Implementations must be safe
// for concurrent use.
type OffenderStore interface {
	RecordViolation(ctx context.Context, userID string, at time.Time) error
	CountViolations(ctx context.Context, userID string, since time.Time) (int, error)
}

// Policy configures the Engine.
type Policy struct {
	// RepeatOffenderThreshold is how many prior violations inside
	// ViolationWindow escalate a user's action one step.
	RepeatOffenderThreshold int
	ViolationWindow         time.Duration
	// ViolationFloor is the lowest severity recorded as a violation.
	ViolationFloor engine.Severity

	// FloodRate and FloodBurst bound how often one user may call before
	// every result is at least logged. Zero disables flood limiting.
	FloodRate  rate.Limit
	FloodBurst int

	// Overrides replaces the baseline action for a severity. Overrides
	// below the baseline are ignored.
	Overrides map[engine.Severity]engine.Action
}

// DefaultPolicy returns the default action policy.
func DefaultPolicy() Policy {
	return Policy{
		RepeatOffenderThreshold: 3,
		ViolationWindow:         24 * time.Hour,
		ViolationFloor:          engine.SeverityMedium,
		FloodRate:               20,
		FloodBurst:              40,
	}
}

const (
	lockStripes     = 64
	limiterIdleTTL  = 10 * time.Minute
	limiterSweepMax = 4096
)

type limiterEntry struct {
	lim      *rate.Limiter
	lastSeen time.Time
}

// Engine implements engine.ActionResolver.
type Engine struct {
	policy Policy
	store  OffenderStore
	logger *zap.Logger
	now    func() time.Time

	// Violation count-then-record runs under the user's stripe so
	// concurrent requests from one user cannot lose an increment.
	stripes [lockStripes]sync.Mutex

	limMu    sync.Mutex
	limiters map[string]*limiterEntry
}

// NewEngine creates an action engine. A nil store disables repeat-offender
// escalation.
func NewEngine(policy Policy, store OffenderStore, logger *zap.Logger) *Engine {
	if policy.RepeatOffenderThreshold <= 0 {
		policy.RepeatOffenderThreshold = DefaultPolicy().RepeatOffenderThreshold
	}
	if policy.ViolationWindow <= 0 {
		policy.ViolationWindow = DefaultPolicy().ViolationWindow
	}
	if policy.ViolationFloor <= engine.SeveritySafe {
		policy.ViolationFloor = engine.SeverityLow
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		policy:   policy,
		store:    store,
		logger:   logger,
		now:      time.Now,
		limiters: make(map[string]*limiterEntry),
	}
}

// DetermineAction maps severity and user history to an action. On a store
// error it returns the action computed so far together with the error.
func (e *Engine) DetermineAction(ctx context.Context, sev engine.Severity, userID string) (engine.ActionDecision, error) {
	baseline := engine.BaselineAction(sev)
	d := engine.ActionDecision{Action: baseline}

	if o, ok := e.policy.Overrides[sev]; ok && o > d.Action {
		d.Action = o
		d.Reason = "policy override"
	}

	if !e.allow(userID) && d.Action < engine.ActionLog {
		d.Action = engine.ActionLog
		d.Escalated = true
		d.Reason = "request rate exceeded"
	}

	if sev == engine.SeveritySafe || e.store == nil {
		return d, nil
	}

	prior, err := e.recordAndCount(ctx, sev, userID)
	if err != nil {
		return d, fmt.Errorf("Engine.DetermineAction: %w", err)
	}
	if prior >= e.policy.RepeatOffenderThreshold {
		if next := escalate(d.Action); next != d.Action {
			d.Action = next
			d.Escalated = true
			d.Reason = fmt.Sprintf("repeat offender: %d violations in %s", prior, e.policy.ViolationWindow)
			e.logger.Info("escalated action for repeat offender",
				zap.String("user_id", userID),
				zap.Int("prior_violations", prior),
				zap.String("action", d.Action.String()),
			)
		}
	}
	return d, nil
}

// recordAndCount returns the user's violations inside the window before this
// call, then records this call if it is severe enough.
func (e *Engine) recordAndCount(ctx context.Context, sev engine.Severity, userID string) (int, error) {
	mu := &e.stripes[stripe(userID)]
	mu.Lock()
	defer mu.Unlock()

	now := e.now()
	prior, err := e.store.CountViolations(ctx, userID, now.Add(-e.policy.ViolationWindow))
	if err != nil {
		return 0, err
	}
	if sev >= e.policy.ViolationFloor {
		if err := e.store.RecordViolation(ctx, userID, now); err != nil {
			return prior, err
		}
	}
	return prior, nil
}

// allow reports whether userID is within its flood budget.
func (e *Engine) allow(userID string) bool {
	if e.policy.FloodRate <= 0 {
		return true
	}
	now := e.now()

	e.limMu.Lock()
	defer e.limMu.Unlock()

	ent, ok := e.limiters[userID]
	if !ok {
		if len(e.limiters) >= limiterSweepMax {
			e.sweepLimiters(now)
		}
		burst := e.policy.FloodBurst
		if burst <= 0 {
			burst = 1
		}
		ent = &limiterEntry{lim: rate.NewLimiter(e.policy.FloodRate, burst)}
		e.limiters[userID] = ent
	}
	ent.lastSeen = now
	return ent.lim.AllowN(now, 1)
}

// sweepLimiters drops limiters idle for longer than limiterIdleTTL.
// Caller holds limMu.
func (e *Engine) sweepLimiters(now time.Time) {
	for id, ent := range e.limiters {
		if now.Sub(ent.lastSeen) > limiterIdleTTL {
			delete(e.limiters, id)
		}
	}
}

func escalate(a engine.Action) engine.Action {
	if a >= engine.ActionBlockNotify {
		return engine.ActionBlockNotify
	}
	return a + 1
}

func stripe(userID string) uint32 {
	h := fnv.New32a()
	h.Write([]byte(userID))
	return h.Sum32() % lockStripes
}
