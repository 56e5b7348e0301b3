// Package dispatch executes matched command rules against the capability
// registry and an external capability-action collaborator.
//
// Dispatch validates and (optionally) activates the capability synchronously
// through the registry, then runs the action on its own goroutine. Callers
// receive exactly one Result on the returned channel:
//
//	results, err := d.Dispatch(ctx, dispatch.Request{Match: m, Utterance: text})
//	if err != nil {
//	    // capability missing or inactive
//	}
//	result := <-results
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/tailored-agentic-units/voice/capability"
	"github.com/tailored-agentic-units/voice/observability"
	"github.com/tailored-agentic-units/voice/router"
)

// Invoker performs a capability action. It is the boundary to the code that
// actually implements a capability.
type Invoker interface {
	Invoke(ctx context.Context, capabilityID, action string) error
}

// InvokerFunc adapts a function to the Invoker interface.
type InvokerFunc func(ctx context.Context, capabilityID, action string) error

func (f InvokerFunc) Invoke(ctx context.Context, capabilityID, action string) error {
	return f(ctx, capabilityID, action)
}

// Request is a matched rule plus the utterance that produced it.
type Request struct {
	Match     router.Match
	Utterance string
	SessionID string
}

// ActivationPolicy decides whether a dispatch may activate an inactive capability.
type ActivationPolicy func(req Request) bool

// ActivateOnCommand permits activation when the rule's action is one of the
// configured activation verbs, or the utterance itself contains one.
func ActivateOnCommand(verbs ...string) ActivationPolicy {
	normalized := make([]string, 0, len(verbs))
	for _, v := range verbs {
		if n := router.Normalize(v); n != "" {
			normalized = append(normalized, n)
		}
	}

	return func(req Request) bool {
		action := router.Normalize(req.Match.Rule.Action)
		utterance := " " + router.Normalize(req.Utterance) + " "
		for _, v := range normalized {
			if action == v || strings.Contains(utterance, " "+v+" ") {
				return true
			}
		}
		return false
	}
}

// NeverActivate refuses every activation.
func NeverActivate(Request) bool { return false }

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithActivationPolicy overrides the config-derived activation policy.
func WithActivationPolicy(p ActivationPolicy) Option {
	return func(d *Dispatcher) { d.policy = p }
}

// WithObserver overrides the default NoOpObserver.
func WithObserver(o observability.Observer) Option {
	return func(d *Dispatcher) { d.observer = o }
}

// WithLogger overrides slog.Default.
func WithLogger(l *slog.Logger) Option {
	return func(d *Dispatcher) { d.logger = l }
}

// Dispatcher routes matched rules to the Invoker.
type Dispatcher struct {
	registry *capability.Registry
	invoker  Invoker
	policy   ActivationPolicy
	timeout  time.Duration
	observer observability.Observer
	logger   *slog.Logger
}

// New creates a Dispatcher from configuration.
func New(cfg *Config, registry *capability.Registry, invoker Invoker, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		registry: registry,
		invoker:  invoker,
		policy:   ActivateOnCommand(cfg.ActivationVerbs...),
		timeout:  cfg.ActionTimeout,
		observer: observability.NoOpObserver{},
		logger:   slog.Default(),
	}
	if !cfg.autoActivate() {
		d.policy = NeverActivate
	}

	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Dispatch claims the matched capability and invokes its action
// asynchronously. Missing or inactive capabilities fail synchronously; every
// other outcome, including invoker errors and panics, arrives as a Result.
func (d *Dispatcher) Dispatch(ctx context.Context, req Request) (<-chan Result, error) {
	rule := req.Match.Rule

	capab, activated, err := d.registry.Claim(rule.CapabilityID, d.policy(req))
	if err != nil {
		d.observer.OnEvent(ctx, observability.Event{
			Type:      EventRejected,
			Level:     observability.LevelWarning,
			Timestamp: time.Now(),
			Source:    "dispatch.Dispatch",
			Data: map[string]any{
				"session_id":    req.SessionID,
				"capability_id": rule.CapabilityID,
				"action":        rule.Action,
				"error":         err.Error(),
			},
		})
		return nil, err
	}

	if activated {
		d.observer.OnEvent(ctx, observability.Event{
			Type:      EventActivated,
			Level:     observability.LevelInfo,
			Timestamp: time.Now(),
			Source:    "dispatch.Dispatch",
			Data: map[string]any{
				"session_id":    req.SessionID,
				"capability_id": capab.ID,
			},
		})
	}

	results := make(chan Result, 1)
	go d.invoke(ctx, req, capab, activated, results)
	return results, nil
}

func (d *Dispatcher) invoke(ctx context.Context, req Request, capab capability.Capability, activated bool, results chan<- Result) {
	rule := req.Match.Rule
	start := time.Now()

	if d.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.timeout)
		defer cancel()
	}

	d.observer.OnEvent(ctx, observability.Event{
		Type:      EventInvoke,
		Level:     observability.LevelVerbose,
		Timestamp: start,
		Source:    "dispatch.invoke",
		Data: map[string]any{
			"session_id":    req.SessionID,
			"capability_id": capab.ID,
			"action":        rule.Action,
			"rule_id":       rule.ID,
		},
	})

	err := d.safeInvoke(ctx, capab.ID, rule.Action)
	if err == nil && ctx.Err() != nil {
		err = ctx.Err()
	}
	if errors.Is(err, context.DeadlineExceeded) {
		err = fmt.Errorf("%w: %v", ErrTimeout, err)
	}

	result := Result{
		CapabilityID: capab.ID,
		Action:       rule.Action,
		Success:      err == nil,
		Activated:    activated,
	}
	level := observability.LevelInfo
	if err != nil {
		result.ErrorKind = KindOf(err)
		if result.ErrorKind == KindCapabilityNotFound || result.ErrorKind == KindCapabilityInactive {
			result.ErrorKind = KindActionFailed
		}
		result.Message = failureMessage(result.ErrorKind, capab.DisplayName(), rule.Action)
		attrs := []any{
			slog.String("capability_id", capab.ID),
			slog.String("action", rule.Action),
			slog.String("error", err.Error()),
		}
		if errors.Is(err, context.Canceled) {
			// Superseded by the caller.
			level = observability.LevelVerbose
			d.logger.DebugContext(ctx, "capability action cancelled", attrs...)
		} else {
			level = observability.LevelWarning
			d.logger.WarnContext(ctx, "capability action failed", attrs...)
		}
	} else {
		result.Message = successMessage(capab.DisplayName(), rule.Action, activated)
	}

	d.observer.OnEvent(ctx, observability.Event{
		Type:      EventComplete,
		Level:     level,
		Timestamp: time.Now(),
		Source:    "dispatch.invoke",
		Data: map[string]any{
			"session_id":    req.SessionID,
			"capability_id": capab.ID,
			"action":        rule.Action,
			"success":       result.Success,
			"error_kind":    string(result.ErrorKind),
			"duration_ms":   time.Since(start).Milliseconds(),
		},
	})

	results <- result
	close(results)
}

func (d *Dispatcher) safeInvoke(ctx context.Context, capabilityID, action string) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: panic: %v", ErrActionFailed, r)
		}
	}()

	if d.invoker == nil {
		return fmt.Errorf("%w: no invoker configured", ErrActionFailed)
	}
	if err := d.invoker.Invoke(ctx, capabilityID, action); err != nil {
		return fmt.Errorf("%w: %w", ErrActionFailed, err)
	}
	return nil
}
