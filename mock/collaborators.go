package mock

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/tailored-agentic-units/voice/orchestrator"
)

// ClassifierOption configures a Classifier.
type ClassifierOption func(*Classifier)

// WithClassification sets the classification returned for every call.
func WithClassification(c orchestrator.Classification) ClassifierOption {
	return func(m *Classifier) { m.result = c }
}

// WithClassifyError makes every call fail.
func WithClassifyError(err error) ClassifierOption {
	return func(m *Classifier) { m.err = err }
}

// WithClassifyDelay delays each answer by d.
func WithClassifyDelay(d time.Duration) ClassifierOption {
	return func(m *Classifier) { m.delay = d }
}

// WithBlocking makes every call wait for context cancellation.
func WithBlocking() ClassifierOption {
	return func(m *Classifier) { m.block = true }
}

// Classifier is an orchestrator.Classifier double.
type Classifier struct {
	result orchestrator.Classification
	err    error
	delay  time.Duration
	block  bool

	calls     atomic.Int32
	cancelled atomic.Int32
	mu        sync.Mutex
	texts     []string
}

// NewClassifier creates a Classifier.
func NewClassifier(opts ...ClassifierOption) *Classifier {
	c := &Classifier{}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Classify implements orchestrator.Classifier.
func (c *Classifier) Classify(ctx context.Context, text string, _ orchestrator.ClassifyContext) (orchestrator.Classification, error) {
	c.calls.Add(1)
	c.mu.Lock()
	c.texts = append(c.texts, text)
	c.mu.Unlock()

	if c.block {
		<-ctx.Done()
		c.cancelled.Add(1)
		return orchestrator.Classification{}, ctx.Err()
	}
	if c.delay > 0 {
		select {
		case <-time.After(c.delay):
		case <-ctx.Done():
			c.cancelled.Add(1)
			return orchestrator.Classification{}, ctx.Err()
		}
	}
	return c.result, c.err
}

// Calls returns the number of Classify calls.
func (c *Classifier) Calls() int { return int(c.calls.Load()) }

// Cancelled returns how many calls ended because their context was cancelled.
func (c *Classifier) Cancelled() int { return int(c.cancelled.Load()) }

// Texts returns the classified texts in call order.
func (c *Classifier) Texts() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.texts...)
}

// Invocation is one recorded capability action.
type Invocation struct {
	CapabilityID string
	Action       string
}

// InvokerOption configures an Invoker.
type InvokerOption func(*Invoker)

// WithFailure makes actions on capabilityID fail with err.
func WithFailure(capabilityID string, err error) InvokerOption {
	return func(i *Invoker) { i.failures[capabilityID] = err }
}

// WithPanic makes actions on capabilityID panic.
func WithPanic(capabilityID string) InvokerOption {
	return func(i *Invoker) { i.panics[capabilityID] = true }
}

// WithInvokeDelay delays each action by d, honoring cancellation.
func WithInvokeDelay(d time.Duration) InvokerOption {
	return func(i *Invoker) { i.delay = d }
}

// Invoker is a dispatch.Invoker double.
type Invoker struct {
	failures map[string]error
	panics   map[string]bool
	delay    time.Duration

	cancelled atomic.Int32

	mu    sync.Mutex
	calls []Invocation
}

// NewInvoker creates an Invoker that succeeds unless configured otherwise.
func NewInvoker(opts ...InvokerOption) *Invoker {
	i := &Invoker{failures: make(map[string]error), panics: make(map[string]bool)}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// Invoke implements dispatch.Invoker.
func (i *Invoker) Invoke(ctx context.Context, capabilityID, action string) error {
	i.mu.Lock()
	i.calls = append(i.calls, Invocation{CapabilityID: capabilityID, Action: action})
	i.mu.Unlock()

	if i.delay > 0 {
		select {
		case <-time.After(i.delay):
		case <-ctx.Done():
			i.cancelled.Add(1)
			return ctx.Err()
		}
	}
	if i.panics[capabilityID] {
		panic(fmt.Sprintf("capability %s exploded", capabilityID))
	}
	return i.failures[capabilityID]
}

// Cancelled counts actions abandoned because their context ended.
func (i *Invoker) Cancelled() int { return int(i.cancelled.Load()) }

// Calls returns recorded invocations in order.
func (i *Invoker) Calls() []Invocation {
	i.mu.Lock()
	defer i.mu.Unlock()
	return append([]Invocation(nil), i.calls...)
}
