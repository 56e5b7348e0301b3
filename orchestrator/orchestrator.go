// Package orchestrator runs the half-duplex conversation loop: listening,
// understanding, acting, and speaking, with user barge-in.
//
// Every session is a single goroutine consuming an ordered mailbox. Public
// calls, collaborator callbacks, worker results, and timers all arrive as
// messages on that mailbox, so no two events for a session are ever handled
// concurrently. Sessions share nothing except the capability registry.
//
//	o, err := orchestrator.New(&cfg,
//	    orchestrator.WithRecognizer(stt),
//	    orchestrator.WithSynthesizer(tts),
//	    orchestrator.WithInvoker(actions),
//	)
//	id, err := o.StartSession(ctx, session.DefaultPreferences())
//	err = o.SubmitUtterance(ctx, id, "please generate smart code", &confidence)
package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/tailored-agentic-units/voice/capability"
	"github.com/tailored-agentic-units/voice/dispatch"
	"github.com/tailored-agentic-units/voice/manifest"
	"github.com/tailored-agentic-units/voice/observability"
	"github.com/tailored-agentic-units/voice/router"
	"github.com/tailored-agentic-units/voice/session"
)

// Option configures an Orchestrator after config-driven initialization.
type Option func(*Orchestrator)

// WithRegistry shares an existing capability registry.
func WithRegistry(r *capability.Registry) Option {
	return func(o *Orchestrator) { o.registry = r }
}

// WithStore overrides the config-created session store. The caller keeps
// ownership and must close it.
func WithStore(s session.Store) Option {
	return func(o *Orchestrator) {
		o.store = s
		o.ownsStore = false
	}
}

// WithArchive overrides the config-created session archive.
func WithArchive(a *session.Archive) Option {
	return func(o *Orchestrator) { o.archive = a }
}

// WithRecognizer sets the speech-to-text collaborator.
func WithRecognizer(r Recognizer) Option {
	return func(o *Orchestrator) { o.recognizer = r }
}

// WithSynthesizer sets the text-to-speech collaborator.
func WithSynthesizer(s Synthesizer) Option {
	return func(o *Orchestrator) { o.synthesizer = s }
}

// WithClassifier sets the NLU collaborator consulted when no rule matches.
func WithClassifier(c Classifier) Option {
	return func(o *Orchestrator) { o.classifier = c }
}

// WithInvoker sets the capability action collaborator.
func WithInvoker(i dispatch.Invoker) Option {
	return func(o *Orchestrator) { o.invoker = i }
}

// WithObserver overrides the config-resolved observer.
func WithObserver(obs observability.Observer) Option {
	return func(o *Orchestrator) { o.observer = obs }
}

// WithLogger overrides slog.Default.
func WithLogger(l *slog.Logger) Option {
	return func(o *Orchestrator) { o.logger = l }
}

// WithHooks installs session callbacks.
func WithHooks(h Hooks) Option {
	return func(o *Orchestrator) { o.hooks = h }
}

// Orchestrator owns the conversation sessions and the routing stack they use.
type Orchestrator struct {
	cfg Config

	registry   *capability.Registry
	router     *router.Router
	dispatcher *dispatch.Dispatcher
	invoker    dispatch.Invoker

	store     session.Store
	ownsStore bool
	archive   *session.Archive

	recognizer  Recognizer
	synthesizer Synthesizer
	classifier  Classifier

	hooks    Hooks
	observer observability.Observer
	logger   *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.RWMutex
	sessions map[string]*conversation
	retired  map[string]struct{}
	closed   bool
}

// New creates an Orchestrator from configuration. The session store and
// observer come from cfg; options applied afterwards may replace any of them.
func New(cfg *Config, opts ...Option) (*Orchestrator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	observer, err := observability.Resolve(cfg.Observers...)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve observers: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	o := &Orchestrator{
		cfg:       *cfg,
		ownsStore: true,
		archive:   cfg.Session.NewArchive(),
		observer:  observer,
		logger:    slog.Default(),
		ctx:       ctx,
		cancel:    cancel,
		sessions:  make(map[string]*conversation),
		retired:   make(map[string]struct{}),
	}

	for _, opt := range opts {
		opt(o)
	}

	if o.store == nil {
		store, err := session.New(&cfg.Session, o.logger)
		if err != nil {
			cancel()
			return nil, fmt.Errorf("failed to create session store: %w", err)
		}
		o.store = store
		o.ownsStore = true
	}

	if o.registry == nil {
		o.registry = capability.NewRegistry()
	}
	o.router = router.New(o.registry)
	o.dispatcher = dispatch.New(&o.cfg.Dispatch, o.registry, o.invoker,
		dispatch.WithObserver(o.observer),
		dispatch.WithLogger(o.logger),
	)

	if cfg.Manifest != "" {
		m, err := manifest.Load(cfg.Manifest)
		if err == nil {
			err = m.Apply(o.registry, o.router)
		}
		if err != nil {
			o.closeStore()
			cancel()
			return nil, fmt.Errorf("failed to apply manifest %s: %w", cfg.Manifest, err)
		}
		o.logger.Info("manifest applied",
			slog.String("path", cfg.Manifest),
			slog.Int("capabilities", len(m.Capabilities)),
			slog.Int("rules", len(m.Rules)),
		)
	}

	return o, nil
}

// Registry returns the capability registry.
func (o *Orchestrator) Registry() *capability.Registry { return o.registry }

// Router returns the command router.
func (o *Orchestrator) Router() *router.Router { return o.router }

// RegisterCapability adds a capability to the registry.
func (o *Orchestrator) RegisterCapability(c capability.Capability) error {
	return o.registry.Register(c)
}

// RegisterRule adds a command rule to the router.
func (o *Orchestrator) RegisterRule(r router.Rule) error {
	return o.router.Register(r)
}

// StartSession creates a session in the Idle state.
func (o *Orchestrator) StartSession(ctx context.Context, prefs session.Preferences) (string, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.closed {
		return "", ErrClosed
	}

	id, err := o.store.Create(ctx, prefs)
	if err != nil {
		return "", fmt.Errorf("failed to create session: %w", err)
	}
	prefs, err = o.store.Preferences(ctx, id)
	if err != nil {
		return "", fmt.Errorf("failed to read session preferences: %w", err)
	}

	c := newConversation(o, id, prefs)
	o.sessions[id] = c
	go c.run()

	o.emit(observability.Event{
		Type:      EventSessionOpen,
		Level:     observability.LevelInfo,
		Timestamp: time.Now(),
		Source:    "orchestrator.StartSession",
		Data:      map[string]any{"session_id": id, "language": prefs.Language},
	})
	return id, nil
}

func (o *Orchestrator) conversation(id string) (*conversation, error) {
	o.mu.RLock()
	defer o.mu.RUnlock()

	if c, ok := o.sessions[id]; ok {
		return c, nil
	}
	if _, ok := o.retired[id]; ok || o.closed {
		return nil, fmt.Errorf("%w: %s", ErrSessionClosed, id)
	}
	return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
}

// Listen begins a recognition pass. From Speaking it behaves like Interrupt.
func (o *Orchestrator) Listen(ctx context.Context, id string) error {
	c, err := o.conversation(id)
	if err != nil {
		return err
	}
	return c.call(ctx, listenRequest{})
}

// StopSession returns the session to Idle, cancelling any recognition,
// processing, or synthesis. It is a no-op for an Idle session.
func (o *Orchestrator) StopSession(ctx context.Context, id string) error {
	c, err := o.conversation(id)
	if err != nil {
		return err
	}
	return c.call(ctx, stopRequest{})
}

// SubmitUtterance supplies a final utterance. Idle and Listening sessions
// treat it as a recognition result; a Speaking session is interrupted first.
// A Processing session returns ErrBusy. A nil confidence resolves through
// Config.MissingConfidence.
func (o *Orchestrator) SubmitUtterance(ctx context.Context, id, text string, confidence *float64) error {
	c, err := o.conversation(id)
	if err != nil {
		return err
	}
	return c.call(ctx, utteranceRequest{text: text, confidence: confidence})
}

// Interrupt barges in on a Speaking session: the synthesis is cancelled and
// a new recognition pass begins. Other states are left unchanged.
func (o *Orchestrator) Interrupt(ctx context.Context, id string) error {
	c, err := o.conversation(id)
	if err != nil {
		return err
	}
	return c.call(ctx, interruptRequest{})
}

// State returns the session's current state.
func (o *Orchestrator) State(ctx context.Context, id string) (State, error) {
	c, err := o.conversation(id)
	if err != nil {
		return StateIdle, err
	}

	req := stateRequest{state: make(chan State, 1)}
	if err := c.call(ctx, req); err != nil {
		return StateIdle, err
	}
	return <-req.state, nil
}

// SetPreferences updates speech preferences for subsequent replies.
func (o *Orchestrator) SetPreferences(ctx context.Context, id string, prefs session.Preferences) error {
	c, err := o.conversation(id)
	if err != nil {
		return err
	}
	return c.call(ctx, preferencesRequest{prefs: prefs})
}

// History returns the session's turns. Closed sessions remain readable
// while the store retains them.
func (o *Orchestrator) History(ctx context.Context, id string) ([]session.Turn, error) {
	if _, err := o.conversation(id); err != nil && !o.isRetired(id) {
		return nil, err
	}
	return o.store.History(ctx, id)
}

// Relationship returns the session's relationship metrics.
func (o *Orchestrator) Relationship(ctx context.Context, id string) (session.Relationship, error) {
	if _, err := o.conversation(id); err != nil && !o.isRetired(id) {
		return session.Relationship{}, err
	}
	return o.store.Relationship(ctx, id)
}

// Export returns the diagnostic export for a session.
func (o *Orchestrator) Export(ctx context.Context, id string) (session.Export, error) {
	if _, err := o.conversation(id); err != nil && !o.isRetired(id) {
		return session.Export{}, err
	}
	return o.store.Export(ctx, id)
}

func (o *Orchestrator) isRetired(id string) bool {
	o.mu.RLock()
	defer o.mu.RUnlock()
	_, ok := o.retired[id]
	return ok
}

// CloseSession stops a session's goroutine and archives its export when an
// archive is configured. Further calls for the session return ErrSessionClosed.
func (o *Orchestrator) CloseSession(ctx context.Context, id string) error {
	o.mu.Lock()
	c, ok := o.sessions[id]
	if ok {
		delete(o.sessions, id)
		o.retired[id] = struct{}{}
	}
	o.mu.Unlock()

	if !ok {
		_, err := o.conversation(id)
		return err
	}
	return o.shutdown(ctx, c)
}

func (o *Orchestrator) shutdown(ctx context.Context, c *conversation) error {
	if err := c.close(ctx); err != nil {
		return err
	}

	o.emit(observability.Event{
		Type:      EventSessionClose,
		Level:     observability.LevelInfo,
		Timestamp: time.Now(),
		Source:    "orchestrator.CloseSession",
		Data:      map[string]any{"session_id": c.id},
	})

	if o.archive == nil {
		return nil
	}
	exp, err := o.store.Export(ctx, c.id)
	if err != nil {
		return fmt.Errorf("failed to export session %s: %w", c.id, err)
	}
	if err := o.archive.Save(ctx, exp); err != nil {
		return fmt.Errorf("failed to archive session %s: %w", c.id, err)
	}
	return nil
}

// Sessions returns the IDs of open sessions.
func (o *Orchestrator) Sessions() []string {
	o.mu.RLock()
	defer o.mu.RUnlock()

	ids := make([]string, 0, len(o.sessions))
	for id := range o.sessions {
		ids = append(ids, id)
	}
	return ids
}

// Close shuts down every open session in parallel, archives them when
// configured, and closes the session store if the orchestrator created it.
func (o *Orchestrator) Close(ctx context.Context) error {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return nil
	}
	o.closed = true
	open := make([]*conversation, 0, len(o.sessions))
	for id, c := range o.sessions {
		open = append(open, c)
		o.retired[id] = struct{}{}
	}
	o.sessions = make(map[string]*conversation)
	o.mu.Unlock()

	var g errgroup.Group
	for _, c := range open {
		g.Go(func() error {
			return o.shutdown(ctx, c)
		})
	}
	err := g.Wait()

	o.cancel()
	if cerr := o.closeStore(); cerr != nil && err == nil {
		err = cerr
	}
	return err
}

func (o *Orchestrator) closeStore() error {
	if !o.ownsStore {
		return nil
	}
	return o.store.Close()
}

func (o *Orchestrator) emit(e observability.Event) {
	o.observer.OnEvent(o.ctx, e)
}
