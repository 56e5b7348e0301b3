package orchestrator

import (
	"context"
	"sync"

	"github.com/tailored-agentic-units/voice/session"
)

// Handle cancels an in-flight recognition or synthesis. Cancel must be
// idempotent and must not block.
type Handle interface {
	Cancel()
}

// HandleFunc adapts a function to Handle. The function runs at most once.
func HandleFunc(fn func()) Handle {
	return &funcHandle{fn: fn}
}

type funcHandle struct {
	once sync.Once
	fn   func()
}

func (h *funcHandle) Cancel() { h.once.Do(h.fn) }

// RecognitionRequest describes one listening pass.
type RecognitionRequest struct {
	SessionID string
	Language  string
}

// RecognitionSink receives speech-to-text callbacks. Methods may be called
// from any goroutine, and calls after the handle is cancelled are ignored.
type RecognitionSink interface {
	OnStart()
	OnResult(final bool, text string, confidence *float64)
	OnError(err error)
	OnEnd()
}

// Recognizer is a speech-to-text engine. Recognize must return promptly and
// report through sink.
type Recognizer interface {
	Recognize(ctx context.Context, req RecognitionRequest, sink RecognitionSink) (Handle, error)
}

// SpeechRequest describes one reply to speak.
type SpeechRequest struct {
	SessionID string
	Text      string
	Voice     string
	Rate      float64
	Pitch     float64
	Language  string
}

func newSpeechRequest(id, text string, prefs session.Preferences) SpeechRequest {
	return SpeechRequest{
		SessionID: id,
		Text:      text,
		Voice:     prefs.Voice,
		Rate:      prefs.Rate,
		Pitch:     prefs.Pitch,
		Language:  prefs.Language,
	}
}

// SynthesisSink receives text-to-speech callbacks.
type SynthesisSink interface {
	OnEnd()
	OnError(err error)
}

// Synthesizer is a text-to-speech engine. Speak must return promptly.
type Synthesizer interface {
	Speak(ctx context.Context, req SpeechRequest, sink SynthesisSink) (Handle, error)
}

// ClassifyContext is what the classifier knows about the conversation.
type ClassifyContext struct {
	SessionID    string
	Language     string
	History      []session.Turn
	Relationship session.Relationship
}

// Classification is a free-form intent produced by the NLU collaborator.
type Classification struct {
	Intent          string
	Confidence      float64
	Entities        map[string]string
	SuggestedAction string
	Explanation     string
}

// Classifier is the natural-language understanding collaborator. It is
// called off the session loop and must honor ctx cancellation.
type Classifier interface {
	Classify(ctx context.Context, text string, cc ClassifyContext) (Classification, error)
}

// ClassifierFunc adapts a function to Classifier.
type ClassifierFunc func(ctx context.Context, text string, cc ClassifyContext) (Classification, error)

func (f ClassifierFunc) Classify(ctx context.Context, text string, cc ClassifyContext) (Classification, error) {
	return f(ctx, text, cc)
}

// Hooks observe a session from the outside. They run on the session's
// goroutine and must not block or call back into the Orchestrator
// synchronously.
type Hooks struct {
	OnStateChange func(sessionID string, from, to State)
	OnTurn        func(sessionID string, turn session.Turn)
	OnError       func(sessionID string, err *SessionError)
}

func (h Hooks) stateChange(id string, from, to State) {
	if h.OnStateChange != nil {
		h.OnStateChange(id, from, to)
	}
}

func (h Hooks) turn(id string, t session.Turn) {
	if h.OnTurn != nil {
		h.OnTurn(id, t)
	}
}

func (h Hooks) error(id string, err *SessionError) {
	if h.OnError != nil {
		h.OnError(id, err)
	}
}
