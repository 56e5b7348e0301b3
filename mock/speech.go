// Package mock provides scriptable stand-ins for the orchestrator's
// collaborators: speech recognition, speech synthesis, intent
// classification, and capability actions.
//
// Doubles record every call and expose the sinks they were given so tests
// can drive callbacks explicitly. Optional delays simulate slow engines.
package mock

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/tailored-agentic-units/voice/orchestrator"
)

// Recognition is one in-flight recognition pass.
type Recognition struct {
	Request orchestrator.RecognitionRequest
	Sink    orchestrator.RecognitionSink

	cancels atomic.Int32
	stop    chan struct{}
	once    sync.Once
}

// Cancel implements orchestrator.Handle.
func (r *Recognition) Cancel() {
	r.cancels.Add(1)
	r.once.Do(func() { close(r.stop) })
}

// Cancels returns how many times Cancel was called.
func (r *Recognition) Cancels() int { return int(r.cancels.Load()) }

// Cancelled reports whether Cancel was called at least once.
func (r *Recognition) Cancelled() bool { return r.Cancels() > 0 }

// Final delivers a final transcript.
func (r *Recognition) Final(text string, confidence *float64) {
	r.Sink.OnResult(true, text, confidence)
}

// Interim delivers a partial transcript.
func (r *Recognition) Interim(text string) {
	r.Sink.OnResult(false, text, nil)
}

// Fail reports a recognition error.
func (r *Recognition) Fail(err error) { r.Sink.OnError(err) }

// End reports the end of the pass.
func (r *Recognition) End() { r.Sink.OnEnd() }

// Scripted is a transcript a Recognizer delivers automatically.
type Scripted struct {
	Text       string
	Confidence *float64
	Delay      time.Duration
}

// RecognizerOption configures a Recognizer.
type RecognizerOption func(*Recognizer)

// WithRecognizeError makes Recognize fail synchronously.
func WithRecognizeError(err error) RecognizerOption {
	return func(r *Recognizer) { r.err = err }
}

// WithScript queues transcripts delivered to successive passes, one each.
func WithScript(script ...Scripted) RecognizerOption {
	return func(r *Recognizer) { r.script = append(r.script, script...) }
}

// Recognizer is an orchestrator.Recognizer double.
type Recognizer struct {
	mu       sync.Mutex
	err      error
	script   []Scripted
	passes   []*Recognition
	started  chan *Recognition
	inflight sync.WaitGroup
}

// NewRecognizer creates a Recognizer. Started passes are also announced on
// Started.
func NewRecognizer(opts ...RecognizerOption) *Recognizer {
	r := &Recognizer{started: make(chan *Recognition, 64)}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Recognize implements orchestrator.Recognizer.
func (r *Recognizer) Recognize(ctx context.Context, req orchestrator.RecognitionRequest, sink orchestrator.RecognitionSink) (orchestrator.Handle, error) {
	r.mu.Lock()
	if r.err != nil {
		r.mu.Unlock()
		return nil, r.err
	}

	pass := &Recognition{Request: req, Sink: sink, stop: make(chan struct{})}
	r.passes = append(r.passes, pass)

	var next *Scripted
	if len(r.script) > 0 {
		s := r.script[0]
		r.script = r.script[1:]
		next = &s
	}
	r.mu.Unlock()

	sink.OnStart()
	select {
	case r.started <- pass:
	default:
	}

	if next != nil {
		r.inflight.Add(1)
		go func() {
			defer r.inflight.Done()
			select {
			case <-time.After(next.Delay):
				pass.Final(next.Text, next.Confidence)
			case <-pass.stop:
			case <-ctx.Done():
			}
		}()
	}
	return pass, nil
}

// Started announces each recognition pass as it begins.
func (r *Recognizer) Started() <-chan *Recognition { return r.started }

// Passes returns every pass so far.
func (r *Recognizer) Passes() []*Recognition {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*Recognition(nil), r.passes...)
}

// Last returns the most recent pass, or nil.
func (r *Recognizer) Last() *Recognition {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.passes) == 0 {
		return nil
	}
	return r.passes[len(r.passes)-1]
}

// Wait blocks until scripted deliveries have finished.
func (r *Recognizer) Wait() { r.inflight.Wait() }

// Speech is one in-flight synthesis.
type Speech struct {
	Request orchestrator.SpeechRequest
	Sink    orchestrator.SynthesisSink

	cancels atomic.Int32
	stop    chan struct{}
	once    sync.Once
}

// Cancel implements orchestrator.Handle.
func (s *Speech) Cancel() {
	s.cancels.Add(1)
	s.once.Do(func() { close(s.stop) })
}

// Cancels returns how many times Cancel was called.
func (s *Speech) Cancels() int { return int(s.cancels.Load()) }

// Cancelled reports whether Cancel was called at least once.
func (s *Speech) Cancelled() bool { return s.Cancels() > 0 }

// Finish reports the end of playback.
func (s *Speech) Finish() { s.Sink.OnEnd() }

// Fail reports a synthesis error.
func (s *Speech) Fail(err error) { s.Sink.OnError(err) }

// SynthesizerOption configures a Synthesizer.
type SynthesizerOption func(*Synthesizer)

// WithSpeakError makes Speak fail synchronously.
func WithSpeakError(err error) SynthesizerOption {
	return func(s *Synthesizer) { s.err = err }
}

// WithPlayback finishes every speech after d unless it is cancelled first.
func WithPlayback(d time.Duration) SynthesizerOption {
	return func(s *Synthesizer) { s.playback = d }
}

// Synthesizer is an orchestrator.Synthesizer double. Without WithPlayback,
// speeches stay in flight until the test calls Finish, Fail, or the
// orchestrator cancels them.
type Synthesizer struct {
	mu       sync.Mutex
	err      error
	playback time.Duration
	speeches []*Speech
	started  chan *Speech
	inflight sync.WaitGroup
}

// NewSynthesizer creates a Synthesizer.
func NewSynthesizer(opts ...SynthesizerOption) *Synthesizer {
	s := &Synthesizer{started: make(chan *Speech, 64)}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Speak implements orchestrator.Synthesizer.
func (s *Synthesizer) Speak(ctx context.Context, req orchestrator.SpeechRequest, sink orchestrator.SynthesisSink) (orchestrator.Handle, error) {
	s.mu.Lock()
	if s.err != nil {
		s.mu.Unlock()
		return nil, s.err
	}
	speech := &Speech{Request: req, Sink: sink, stop: make(chan struct{})}
	s.speeches = append(s.speeches, speech)
	playback := s.playback
	s.mu.Unlock()

	select {
	case s.started <- speech:
	default:
	}

	if playback > 0 {
		s.inflight.Add(1)
		go func() {
			defer s.inflight.Done()
			select {
			case <-time.After(playback):
				speech.Finish()
			case <-speech.stop:
			case <-ctx.Done():
			}
		}()
	}
	return speech, nil
}

// Started announces each speech as it begins.
func (s *Synthesizer) Started() <-chan *Speech { return s.started }

// Speeches returns every speech so far.
func (s *Synthesizer) Speeches() []*Speech {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*Speech(nil), s.speeches...)
}

// Last returns the most recent speech, or nil.
func (s *Synthesizer) Last() *Speech {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.speeches) == 0 {
		return nil
	}
	return s.speeches[len(s.speeches)-1]
}

// Wait blocks until timed playbacks have finished.
func (s *Synthesizer) Wait() { s.inflight.Wait() }
