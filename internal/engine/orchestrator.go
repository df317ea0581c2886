package engine

import (
	"context"
	"errors"
	"slices"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// ErrInvalidMetadata is returned when a validation call lacks a user or
// session identifier.
var ErrInvalidMetadata = errors.New("engine: userId and sessionId are required")

// DefaultModuleTimeout bounds each dispatch group.
const DefaultModuleTimeout = 50 * time.Millisecond

// ActionResolver maps an aggregated severity and user to an action.
type ActionResolver interface {
	DetermineAction(ctx context.Context, severity Severity, userID string) (ActionDecision, error)
}

// Evaluation is one completed validation as handed to event and alert sinks.
type Evaluation struct {
	Result   ValidationResult
	Metadata ValidationMetadata
	Latency  time.Duration
}

// EventSink receives evaluations asynchronously. Enqueue must not block.
type EventSink interface {
	Enqueue(ev Evaluation) error
	Stop(ctx context.Context) error
}

// Recorder receives orchestrator measurements.
type Recorder interface {
	ObserveValidation(severity Severity, action Action, cacheHit bool, d time.Duration)
	CacheLookup(hit bool)
	ModuleFailure(module, reason string)
	EarlyExit()
}

type nopRecorder struct{}

func (nopRecorder) ObserveValidation(Severity, Action, bool, time.Duration) {}
func (nopRecorder) CacheLookup(bool)                                          {}
func (nopRecorder) ModuleFailure(string, string)                              {}
func (nopRecorder) EarlyExit()                                                {}

// baselineResolver applies BaselineAction with no per-user state.
type baselineResolver struct{}

func (baselineResolver) DetermineAction(_ context.Context, s Severity, _ string) (ActionDecision, error) {
	return ActionDecision{Action: BaselineAction(s)}, nil
}

// Options configures an Orchestrator. Only Detectors is commonly set; every
// other field has a working default.
type Options struct {
	Detectors []Detector
	// Modules disables individual detectors by name.
	Modules             ModulePolicy
	FastModules         []string
	EarlyExitOnCritical bool
	Disabled            bool
	ModuleTimeout       time.Duration
	EntropyThreshold    float64

	Cache    ResultCache
	Scorer   *SeverityScorer
	Actions  ActionResolver
	Events   EventSink
	Alerts   EventSink
	Recorder Recorder
	Tracer   trace.Tracer
	Logger   *zap.Logger
	Now      func() time.Time
}

// Orchestrator runs detection modules over untrusted text and turns their
// findings into an enforcement decision.
type Orchestrator struct {
	all  []Detector
	fast []Detector
	slow []Detector

	earlyExit     bool
	disabled      bool
	moduleTimeout time.Duration

	entropy  EntropyAnalyzer
	cache    ResultCache
	scorer   *SeverityScorer
	actions  ActionResolver
	events   EventSink
	alerts   EventSink
	recorder Recorder
	tracer   trace.Tracer
	logger   *zap.Logger
	now      func() time.Time

	flight singleflight.Group
}

// New builds an Orchestrator from opts.
func New(opts Options) (*Orchestrator, error) {
	o := &Orchestrator{
		earlyExit:     opts.EarlyExitOnCritical,
		disabled:      opts.Disabled,
		moduleTimeout: opts.ModuleTimeout,
		entropy:       EntropyAnalyzer{Threshold: opts.EntropyThreshold},
		cache:         opts.Cache,
		scorer:        opts.Scorer,
		actions:       opts.Actions,
		events:        opts.Events,
		alerts:        opts.Alerts,
		recorder:      opts.Recorder,
		tracer:        opts.Tracer,
		logger:        opts.Logger,
		now:           opts.Now,
	}
	if o.moduleTimeout <= 0 {
		o.moduleTimeout = DefaultModuleTimeout
	}
	if o.cache == nil {
		o.cache = NewLRUCache(DefaultCacheSize, DefaultCacheTTL)
	}
	if o.scorer == nil {
		o.scorer = NewSeverityScorer()
	}
	if o.actions == nil {
		o.actions = baselineResolver{}
	}
	if o.recorder == nil {
		o.recorder = nopRecorder{}
	}
	if o.tracer == nil {
		o.tracer = otel.Tracer("github.com/triage-ai/warden/internal/engine")
	}
	if o.logger == nil {
		o.logger = zap.NewNop()
	}
	if o.now == nil {
		o.now = time.Now
	}

	fastNames := opts.FastModules
	if fastNames == nil {
		fastNames = DefaultFastModules
	}

	seen := make(map[string]struct{}, len(opts.Detectors))
	for _, d := range opts.Detectors {
		if d == nil {
			return nil, errors.New("engine.New: nil detector")
		}
		name := d.Name()
		if _, dup := seen[name]; dup {
			return nil, errors.New("engine.New: duplicate detector " + name)
		}
		seen[name] = struct{}{}
		if !opts.Modules.Get(name).IsEnabled() {
			o.logger.Info("detection module disabled", zap.String("module", name))
			continue
		}
		o.all = append(o.all, d)
		if slices.Contains(fastNames, name) {
			o.fast = append(o.fast, d)
		} else {
			o.slow = append(o.slow, d)
		}
	}
	return o, nil
}

// Modules returns the names of the enabled detection modules.
func (o *Orchestrator) Modules() []string {
	names := make([]string, 0, len(o.all))
	for _, d := range o.all {
		names = append(names, d.Name())
	}
	return names
}

// Validate evaluates text on behalf of md's user. It fails only when md
// lacks a user or session id; detector, action and persistence failures
// degrade instead.
func (o *Orchestrator) Validate(ctx context.Context, text string, md ValidationMetadata) (*ValidationResult, error) {
	if strings.TrimSpace(md.UserID) == "" || strings.TrimSpace(md.SessionID) == "" {
		return nil, ErrInvalidMetadata
	}

	normalized := Normalize(text)
	fingerprint := fingerprintNormalized(normalized)

	if o.disabled {
		return &ValidationResult{
			Severity:        SeveritySafe,
			Action:          ActionAllow,
			Findings:        []Finding{},
			Fingerprint:     fingerprint,
			Timestamp:       o.now(),
			NormalizedText:  normalized,
			Recommendations: []string{},
		}, nil
	}

	start := time.Now()
	ctx, span := o.tracer.Start(ctx, "warden.Validate",
		trace.WithAttributes(attribute.String("warden.fingerprint", fingerprint)),
	)
	defer span.End()

	entry, hit := o.cache.Get(fingerprint)
	o.recorder.CacheLookup(hit)
	if !hit {
		// Concurrent misses for one fingerprint share a single evaluation.
		v, _, _ := o.flight.Do(fingerprint, func() (any, error) {
			if e, ok := o.cache.Get(fingerprint); ok {
				return e, nil
			}
			e, degraded := o.evaluate(context.WithoutCancel(ctx), text)
			if !degraded {
				o.cache.Set(fingerprint, e)
			}
			return e, nil
		})
		entry = v.(CacheEntry)
	}

	decision := o.resolveAction(ctx, entry.Severity, md.UserID)

	result := &ValidationResult{
		Severity:        entry.Severity,
		Action:          decision.Action,
		Findings:        slices.Clone(entry.Findings),
		Fingerprint:     fingerprint,
		Timestamp:       o.now(),
		NormalizedText:  normalized,
		Recommendations: Recommendations(entry.Findings, decision.Action),
		CacheHit:        hit,
	}
	if result.Findings == nil {
		result.Findings = []Finding{}
	}

	latency := time.Since(start)
	o.recorder.ObserveValidation(result.Severity, result.Action, hit, latency)
	span.SetAttributes(
		attribute.String("warden.severity", result.Severity.String()),
		attribute.String("warden.action", result.Action.String()),
		attribute.Int("warden.findings", len(result.Findings)),
		attribute.Bool("warden.cache_hit", hit),
	)

	ev := Evaluation{Result: *result, Metadata: md, Latency: latency}
	if o.events != nil {
		if err := o.events.Enqueue(ev); err != nil {
			o.logger.Warn("failed to enqueue security event",
				zap.String("fingerprint", fingerprint),
				zap.Error(err),
			)
		}
	}
	if o.alerts != nil && result.Action == ActionBlockNotify {
		if err := o.alerts.Enqueue(ev); err != nil {
			o.logger.Warn("failed to enqueue alert",
				zap.String("fingerprint", fingerprint),
				zap.Error(err),
			)
		}
	}

	return result, nil
}

// evaluate runs the modules and the entropy analyzer over text and scores
// the combined findings. A degraded evaluation is missing at least one
// module's findings and must not be cached.
func (o *Orchestrator) evaluate(ctx context.Context, text string) (CacheEntry, bool) {
	ctx, span := o.tracer.Start(ctx, "warden.dispatch",
		trace.WithAttributes(attribute.Bool("warden.early_exit", o.earlyExit)),
	)
	defer span.End()

	_, entropyFinding := o.entropy.Analyze(text)
	findings, degraded := o.dispatch(ctx, text)
	if degraded {
		span.SetAttributes(attribute.Bool("warden.degraded", true))
	}
	if entropyFinding != nil {
		findings = append(findings, *entropyFinding)
	}

	return CacheEntry{
		Findings:  findings,
		Severity:  o.scorer.CalculateSeverity(findings),
		Timestamp: o.now(),
	}, degraded
}

// resolveAction asks the resolver for an action and clamps it to the
// baseline. Resolver errors fall back to the baseline.
func (o *Orchestrator) resolveAction(ctx context.Context, sev Severity, userID string) ActionDecision {
	baseline := BaselineAction(sev)
	decision, err := o.actions.DetermineAction(ctx, sev, userID)
	if err != nil {
		o.logger.Warn("action resolution failed, using baseline",
			zap.String("severity", sev.String()),
			zap.Error(err),
		)
		trace.SpanFromContext(ctx).SetStatus(codes.Error, "action resolution failed")
		return ActionDecision{Action: baseline}
	}
	if decision.Action < baseline {
		decision.Action = baseline
	}
	return decision
}

// Stop drains the event and alert sinks. Callers must invoke it before
// process exit so buffered events are written.
func (o *Orchestrator) Stop(ctx context.Context) error {
	var errs []error
	if o.events != nil {
		if err := o.events.Stop(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	if o.alerts != nil {
		if err := o.alerts.Stop(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
