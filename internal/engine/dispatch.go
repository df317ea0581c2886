package engine

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
)

// ErrModulePanic wraps a recovered detector panic.
var ErrModulePanic = errors.New("detection module panicked")

// DefaultFastModules are the cheap, regex-only modules run first in
// early-exit mode.
var DefaultFastModules = []string{"command_validator", "path_validator", "injection_validator"}

// moduleOutput holds a single module's result alongside its position in the group.
type moduleOutput struct {
	idx      int
	name     string
	findings []Finding
	err      error
}

// dispatch runs the enabled modules. In early-exit mode the fast group runs
// first and a CRITICAL finding there short-circuits the slow group.
// degraded reports whether any module failed or timed out.
func (o *Orchestrator) dispatch(ctx context.Context, text string) (findings []Finding, degraded bool) {
	if !o.earlyExit {
		return o.runGroup(ctx, o.all, text)
	}

	fast, degraded := o.runGroup(ctx, o.fast, text)
	for _, f := range fast {
		if f.Severity == SeverityCritical {
			o.recorder.EarlyExit()
			o.logger.Debug("critical finding in fast modules, skipping slow modules",
				zap.String("module", f.Module),
				zap.String("pattern_id", f.PatternID),
			)
			return fast, degraded
		}
	}
	slow, slowDegraded := o.runGroup(ctx, o.slow, text)
	return append(fast, slow...), degraded || slowDegraded
}

// runGroup runs every detector in group concurrently and concatenates their
// findings in group order. Modules that fail, panic or miss the group
// deadline contribute nothing and mark the run degraded.
//
// Each goroutine sends through a buffered channel sized for the whole group,
// so late finishers never block after the deadline stops the reader.
func (o *Orchestrator) runGroup(ctx context.Context, group []Detector, text string) (findings []Finding, degraded bool) {
	findings = make([]Finding, 0)
	if len(group) == 0 {
		return findings, false
	}

	ctx, cancel := context.WithTimeout(ctx, o.moduleTimeout)
	defer cancel()

	ch := make(chan moduleOutput, len(group))
	for i, det := range group {
		go func(i int, d Detector) {
			out := scanModule(ctx, d, text)
			out.idx = i
			ch <- out
		}(i, det)
	}

	done := make([]bool, len(group))
	results := make([][]Finding, len(group))
	remaining := len(group)
	for remaining > 0 {
		select {
		case out := <-ch:
			remaining--
			done[out.idx] = true
			if out.err != nil {
				degraded = true
				reason := "error"
				if errors.Is(out.err, ErrModulePanic) {
					reason = "panic"
				}
				o.recorder.ModuleFailure(out.name, reason)
				o.logger.Warn("detection module failed, ignoring its findings",
					zap.String("module", out.name),
					zap.Error(out.err),
				)
				continue
			}
			results[out.idx] = stampFindings(out.name, out.findings)
		case <-ctx.Done():
			for i, d := range group {
				if done[i] {
					continue
				}
				degraded = true
				o.recorder.ModuleFailure(d.Name(), "timeout")
				o.logger.Warn("detection module timed out, ignoring its findings",
					zap.String("module", d.Name()),
					zap.Duration("timeout", o.moduleTimeout),
				)
			}
			remaining = 0
		}
	}

	for _, r := range results {
		findings = append(findings, r...)
	}
	return findings, degraded
}

func scanModule(ctx context.Context, d Detector, text string) (out moduleOutput) {
	out.name = d.Name()
	defer func() {
		if r := recover(); r != nil {
			out.findings = nil
			out.err = fmt.Errorf("%w: %v", ErrModulePanic, r)
		}
	}()
	out.findings, out.err = d.Scan(ctx, text)
	return out
}

// stampFindings attributes findings to the module that produced them and
// bounds their excerpts.
func stampFindings(module string, in []Finding) []Finding {
	if len(in) == 0 {
		return nil
	}
	out := make([]Finding, len(in))
	for i, f := range in {
		f.Module = module
		f.MatchedText = Excerpt(f.MatchedText, MaxExcerptLength)
		out[i] = f
	}
	return out
}
