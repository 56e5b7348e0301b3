package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/tailored-agentic-units/voice/observability"
	"github.com/tailored-agentic-units/voice/session"
)

const (
	clarifyLowConfidence = "Sorry, I didn't quite catch that. Could you say it again?"
	clarifyNoMatch       = "I'm not sure how to help with that yet. Could you put it another way?"
)

// Public requests, delivered inside an envelope with a reply channel.
type (
	listenRequest      struct{}
	stopRequest        struct{}
	interruptRequest   struct{}
	closeRequest       struct{}
	stateRequest       struct{ state chan State }
	preferencesRequest struct{ prefs session.Preferences }
	utteranceRequest   struct {
		text       string
		confidence *float64
	}
)

type envelope struct {
	request any
	reply   chan error
}

// Collaborator and timer events. Each carries the generation it was issued
// under and is dropped once the session has moved on.
type (
	recognitionStarted struct{ gen uint64 }
	recognitionResult  struct {
		gen        uint64
		final      bool
		text       string
		confidence *float64
	}
	recognitionFailed struct {
		gen uint64
		err error
	}
	recognitionEnded struct{ gen uint64 }
	synthesisEnded   struct{ gen uint64 }
	synthesisFailed  struct {
		gen uint64
		err error
	}
	replyReady struct {
		gen     uint64
		outcome outcome
	}
	timerFired struct{ gen uint64 }
)

// conversation is a single session's actor. Fields below box are owned by
// the run goroutine.
type conversation struct {
	o       *Orchestrator
	id      string
	box     *mailbox[any]
	done    chan struct{}
	workers sync.WaitGroup
	logger  *slog.Logger

	state       State
	gen         uint64
	prefs       session.Preferences
	recognition Handle
	synthesis   Handle
	cancelWork  context.CancelFunc
	timer       *time.Timer
	pending     *session.Turn
}

func newConversation(o *Orchestrator, id string, prefs session.Preferences) *conversation {
	return &conversation{
		o:      o,
		id:     id,
		box:    newMailbox[any](),
		done:   make(chan struct{}),
		logger: o.logger.With(slog.String("session_id", id)),
		state:  StateIdle,
		prefs:  prefs,
	}
}

func (c *conversation) run() {
	defer close(c.done)
	for {
		<-c.box.Ready()
		for _, msg := range c.box.Drain() {
			if c.handle(msg) {
				return
			}
		}
	}
}

func (c *conversation) post(msg any) {
	c.box.Send(msg)
}

// call delivers a request and waits until the loop has applied it.
func (c *conversation) call(ctx context.Context, request any) error {
	reply := make(chan error, 1)
	if !c.box.Send(envelope{request: request, reply: reply}) {
		return fmt.Errorf("%w: %s", ErrSessionClosed, c.id)
	}

	select {
	case err := <-reply:
		return err
	case <-c.done:
		select {
		case err := <-reply:
			return err
		default:
			return fmt.Errorf("%w: %s", ErrSessionClosed, c.id)
		}
	case <-ctx.Done():
		return ctx.Err()
	}
}

// close stops the loop and waits for it to exit.
func (c *conversation) close(ctx context.Context) error {
	if err := c.call(ctx, closeRequest{}); err != nil && !errors.Is(err, ErrSessionClosed) {
		return err
	}
	select {
	case <-c.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// handle applies one message and reports whether the loop should exit.
func (c *conversation) handle(msg any) bool {
	switch m := msg.(type) {
	case envelope:
		if _, ok := m.request.(closeRequest); ok {
			c.shutdown()
			m.reply <- nil
			return true
		}
		m.reply <- c.handleRequest(m.request)

	case recognitionStarted:
		if c.current(m.gen, "recognition.start") {
			c.logger.Debug("recognition started")
		}

	case recognitionResult:
		if !c.current(m.gen, "recognition.result") || c.state != StateListening {
			return false
		}
		text := strings.TrimSpace(m.text)
		if !m.final {
			c.emit(EventTranscript, observability.LevelVerbose, map[string]any{"final": false, "text": text})
			return false
		}
		if text != "" {
			c.finalResult(text, m.confidence)
		}

	case recognitionFailed:
		if c.current(m.gen, "recognition.error") && c.state == StateListening {
			c.fail(fmt.Errorf("%w: %v", ErrRecognition, m.err))
		}

	case recognitionEnded:
		if c.current(m.gen, "recognition.end") && c.state == StateListening {
			c.recognition = nil
			c.transition(StateIdle)
		}

	case synthesisEnded:
		if c.current(m.gen, "synthesis.end") && c.state == StateSpeaking {
			c.synthesis = nil
			c.transition(StateIdle)
		}

	case synthesisFailed:
		if c.current(m.gen, "synthesis.error") && c.state == StateSpeaking {
			c.synthesis = nil
			c.fail(fmt.Errorf("%w: %v", ErrSynthesis, m.err))
		}

	case replyReady:
		if c.current(m.gen, "reply") && c.state == StateProcessing {
			c.reply(m.outcome)
		}

	case timerFired:
		if c.current(m.gen, "timer") {
			c.expire()
		}
	}
	return false
}

func (c *conversation) handleRequest(request any) error {
	switch r := request.(type) {
	case listenRequest:
		return c.listen()
	case stopRequest:
		c.stop()
		return nil
	case interruptRequest:
		c.interrupt()
		return nil
	case utteranceRequest:
		return c.utterance(r.text, r.confidence)
	case stateRequest:
		r.state <- c.state
		return nil
	case preferencesRequest:
		return c.setPreferences(r.prefs)
	default:
		return fmt.Errorf("unknown request %T", request)
	}
}

// current reports whether gen is the live generation.
func (c *conversation) current(gen uint64, what string) bool {
	if gen == c.gen {
		return true
	}
	c.emit(EventStale, observability.LevelVerbose, map[string]any{
		"event":      what,
		"generation": gen,
		"current":    c.gen,
	})
	return false
}

// transition moves to a new state, releasing everything the old state held
// and advancing the generation.
func (c *conversation) transition(to State) {
	from := c.state
	if !CanTransition(from, to) {
		c.logger.Error("rejected state transition",
			slog.String("from", from.String()),
			slog.String("to", to.String()),
			slog.Any("error", ErrInvalidTransition),
		)
		return
	}

	c.release()
	c.state = to
	c.gen++

	c.emit(EventState, observability.LevelInfo, map[string]any{
		"from":       from.String(),
		"to":         to.String(),
		"generation": c.gen,
	})
	c.o.hooks.stateChange(c.id, from, to)
}

func (c *conversation) release() {
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	if c.recognition != nil {
		c.recognition.Cancel()
		c.recognition = nil
	}
	if c.synthesis != nil {
		c.synthesis.Cancel()
		c.synthesis = nil
	}
	if c.cancelWork != nil {
		c.cancelWork()
		c.cancelWork = nil
	}
	c.pending = nil
}

func (c *conversation) arm(d time.Duration) {
	if d <= 0 {
		return
	}
	gen := c.gen
	c.timer = time.AfterFunc(d, func() { c.post(timerFired{gen: gen}) })
}

func (c *conversation) listen() error {
	switch c.state {
	case StateIdle:
		c.enterListening()
	case StateSpeaking:
		c.interrupt()
	case StateProcessing:
		return fmt.Errorf("%w: %s", ErrBusy, c.id)
	}
	return nil
}

// enterListening starts a fresh recognition pass bounded by the listen timeout.
func (c *conversation) enterListening() {
	c.transition(StateListening)
	c.arm(c.o.cfg.ListenTimeout)

	if c.o.recognizer == nil {
		return
	}

	sink := &recognitionSink{c: c, gen: c.gen}
	h, err := c.o.recognizer.Recognize(c.o.ctx, RecognitionRequest{
		SessionID: c.id,
		Language:  c.prefs.Language,
	}, sink)
	if err != nil {
		c.fail(fmt.Errorf("%w: %v", ErrRecognition, err))
		return
	}
	c.recognition = h
}

func (c *conversation) stop() {
	if c.state == StateIdle {
		return
	}
	c.transition(StateIdle)
}

func (c *conversation) interrupt() {
	if c.state != StateSpeaking {
		return
	}
	c.enterListening()
}

func (c *conversation) utterance(text string, confidence *float64) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return fmt.Errorf("%w: empty utterance", session.ErrInvalidTurn)
	}

	switch c.state {
	case StateProcessing:
		return fmt.Errorf("%w: %s", ErrBusy, c.id)
	case StateIdle, StateSpeaking:
		c.transition(StateListening)
	}

	c.finalResult(text, confidence)
	return nil
}

// finalResult acts on a final utterance while Listening. Results below the
// confidence threshold record a clarification and keep listening.
func (c *conversation) finalResult(text string, confidence *float64) {
	var conf *float64
	if confidence != nil {
		v := *confidence
		conf = &v
	}
	user := session.Turn{
		Sender:     session.SenderUser,
		Kind:       session.KindUtterance,
		Content:    text,
		Timestamp:  time.Now(),
		Confidence: conf,
	}

	score := c.o.cfg.confidence(conf)
	c.emit(EventTranscript, observability.LevelInfo, map[string]any{
		"final":      true,
		"text":       text,
		"confidence": score,
	})

	if score < c.o.cfg.ConfidenceThreshold {
		clarify := session.Turn{
			Sender:  session.SenderAssistant,
			Kind:    session.KindClarification,
			Content: clarifyLowConfidence,
		}
		if err := c.commit(user, clarify); err != nil {
			c.fail(err)
			return
		}
		c.emit(EventClarification, observability.LevelInfo, map[string]any{
			"confidence": score,
			"threshold":  c.o.cfg.ConfidenceThreshold,
		})
		c.enterListening()
		return
	}

	c.transition(StateProcessing)
	c.pending = &user
	c.arm(c.o.cfg.ProcessTimeout)

	ctx, cancel := context.WithCancel(c.o.ctx)
	c.cancelWork = cancel

	cc := ClassifyContext{SessionID: c.id, Language: c.prefs.Language}
	if history, err := c.o.store.History(c.o.ctx, c.id); err == nil {
		cc.History = history
	}
	if rel, err := c.o.store.Relationship(c.o.ctx, c.id); err == nil {
		cc.Relationship = rel
	}

	gen := c.gen
	c.workers.Add(1)
	go func() {
		defer c.workers.Done()
		out, err := c.o.understand(ctx, c.id, text, cc)
		if err != nil {
			return
		}
		c.post(replyReady{gen: gen, outcome: out})
	}()
}

// reply commits the user turn and the assistant reply together, then speaks.
func (c *conversation) reply(out outcome) {
	rel, err := c.o.store.Relationship(c.o.ctx, c.id)
	if err != nil {
		c.logger.Warn("relationship unavailable", slog.String("error", err.Error()))
	}
	text := RenderTone(ToneFromRelationship(rel), out.text)

	user := *c.pending
	user.Intent = out.intent
	assistant := session.Turn{
		Sender:   session.SenderAssistant,
		Kind:     out.kind,
		Content:  text,
		Intent:   out.intent,
		Dispatch: out.result,
	}
	if err := c.commit(user, assistant); err != nil {
		c.fail(err)
		return
	}

	if _, err := c.o.store.AdvanceRelationship(c.o.ctx, c.id, c.o.cfg.Growth); err != nil {
		c.logger.Warn("relationship not advanced", slog.String("error", err.Error()))
	}

	data := map[string]any{"kind": string(out.kind), "intent": out.intent}
	if out.result != nil {
		data["capability_id"] = out.result.CapabilityID
		data["success"] = out.result.Success
	}
	c.emit(EventReply, observability.LevelInfo, data)

	c.transition(StateSpeaking)
	c.speak(text)
}

func (c *conversation) speak(text string) {
	if c.o.synthesizer == nil {
		c.transition(StateIdle)
		return
	}

	sink := &synthesisSink{c: c, gen: c.gen}
	h, err := c.o.synthesizer.Speak(c.o.ctx, newSpeechRequest(c.id, text, c.prefs), sink)
	if err != nil {
		c.fail(fmt.Errorf("%w: %v", ErrSynthesis, err))
		return
	}
	c.synthesis = h
}

func (c *conversation) commit(turns ...session.Turn) error {
	stored, err := c.o.store.Append(c.o.ctx, c.id, turns...)
	if err != nil {
		return fmt.Errorf("failed to record turns: %w", err)
	}
	for _, t := range stored {
		c.o.hooks.turn(c.id, t)
	}
	return nil
}

// expire handles the listen and process timeouts.
func (c *conversation) expire() {
	switch c.state {
	case StateListening:
		c.emit(EventState, observability.LevelVerbose, map[string]any{"timeout": "listen"})
		c.transition(StateIdle)
	case StateProcessing:
		c.transition(StateIdle)
		c.report(StateProcessing, fmt.Errorf("%w: no reply within %s", ErrTimeout, c.o.cfg.ProcessTimeout))
	}
}

// fail passes through Error and recovers to Idle.
func (c *conversation) fail(err error) {
	from := c.state
	c.transition(StateError)
	c.report(from, err)
	c.transition(StateIdle)
}

func (c *conversation) report(state State, err error) {
	serr := &SessionError{SessionID: c.id, State: state, Err: err}
	c.logger.Warn("session recovered from error",
		slog.String("failed_state", state.String()),
		slog.String("error", err.Error()),
	)
	c.emit(EventError, observability.LevelWarning, map[string]any{
		"failed_state": state.String(),
		"error":        err.Error(),
	})
	c.o.hooks.error(c.id, serr)
}

func (c *conversation) setPreferences(prefs session.Preferences) error {
	if err := c.o.store.SetPreferences(c.o.ctx, c.id, prefs); err != nil {
		return err
	}
	stored, err := c.o.store.Preferences(c.o.ctx, c.id)
	if err != nil {
		return err
	}
	c.prefs = stored
	return nil
}

func (c *conversation) shutdown() {
	if c.state != StateIdle {
		c.transition(StateIdle)
	}
	c.release()

	for _, msg := range c.box.Close() {
		if env, ok := msg.(envelope); ok {
			env.reply <- fmt.Errorf("%w: %s", ErrSessionClosed, c.id)
		}
	}
	c.workers.Wait()
}

func (c *conversation) emit(typ observability.EventType, level observability.Level, data map[string]any) {
	data["session_id"] = c.id
	data["state"] = c.state.String()
	c.o.observer.OnEvent(c.o.ctx, observability.Event{
		Type:      typ,
		Level:     level,
		Timestamp: time.Now(),
		Source:    "orchestrator.conversation",
		Data:      data,
	})
}

type recognitionSink struct {
	c   *conversation
	gen uint64
}

func (s *recognitionSink) OnStart() { s.c.post(recognitionStarted{gen: s.gen}) }

func (s *recognitionSink) OnResult(final bool, text string, confidence *float64) {
	var conf *float64
	if confidence != nil {
		v := *confidence
		conf = &v
	}
	s.c.post(recognitionResult{gen: s.gen, final: final, text: text, confidence: conf})
}

func (s *recognitionSink) OnError(err error) { s.c.post(recognitionFailed{gen: s.gen, err: err}) }

func (s *recognitionSink) OnEnd() { s.c.post(recognitionEnded{gen: s.gen}) }

type synthesisSink struct {
	c   *conversation
	gen uint64
}

func (s *synthesisSink) OnEnd() { s.c.post(synthesisEnded{gen: s.gen}) }

func (s *synthesisSink) OnError(err error) { s.c.post(synthesisFailed{gen: s.gen, err: err}) }
