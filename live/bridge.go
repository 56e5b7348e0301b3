// Package live connects browsers to the conversation orchestrator over
// WebSocket.
//
// The browser hosts speech recognition and synthesis. It streams transcripts
// up and receives speak and cancel_speech frames down, while the Bridge
// presents those remote engines to the orchestrator as a Recognizer and a
// Synthesizer. State changes, turns, and recovered errors are pushed to the
// browser through the orchestrator hooks.
//
//	bridge := live.NewBridge(logger)
//	o, _ := orchestrator.New(&cfg,
//	    orchestrator.WithRecognizer(bridge),
//	    orchestrator.WithSynthesizer(bridge),
//	    orchestrator.WithHooks(bridge.Hooks()),
//	)
//	http.Handle("/live", live.NewHandler(o, bridge, &liveCfg))
package live

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/tailored-agentic-units/voice/orchestrator"
	"github.com/tailored-agentic-units/voice/session"
)

// Bridge routes orchestrator speech requests to the connection that owns
// each session.
type Bridge struct {
	logger *slog.Logger

	mu    sync.RWMutex
	peers map[string]*peer
}

// NewBridge creates a Bridge. A nil logger uses slog.Default.
func NewBridge(logger *slog.Logger) *Bridge {
	if logger == nil {
		logger = slog.Default()
	}
	return &Bridge{logger: logger, peers: make(map[string]*peer)}
}

func (b *Bridge) attach(p *peer) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.peers[p.sessionID] = p
}

func (b *Bridge) detach(p *peer) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.peers[p.sessionID] == p {
		delete(b.peers, p.sessionID)
	}
}

func (b *Bridge) peer(sessionID string) (*peer, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	p, ok := b.peers[sessionID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotConnected, sessionID)
	}
	return p, nil
}

// Connected returns the number of attached connections.
func (b *Bridge) Connected() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.peers)
}

// Recognize implements orchestrator.Recognizer. Transcripts arrive later as
// transcript frames on the session's connection.
func (b *Bridge) Recognize(_ context.Context, req orchestrator.RecognitionRequest, sink orchestrator.RecognitionSink) (orchestrator.Handle, error) {
	p, err := b.peer(req.SessionID)
	if err != nil {
		return nil, err
	}

	pass := p.beginRecognition(sink)
	sink.OnStart()
	return orchestrator.HandleFunc(func() { p.endRecognition(pass) }), nil
}

// Speak implements orchestrator.Synthesizer by sending a speak frame.
// Cancelling the handle sends cancel_speech.
func (b *Bridge) Speak(_ context.Context, req orchestrator.SpeechRequest, sink orchestrator.SynthesisSink) (orchestrator.Handle, error) {
	p, err := b.peer(req.SessionID)
	if err != nil {
		return nil, err
	}

	id := uuid.NewString()
	p.addSpeech(id, sink)
	if !p.send(ServerFrame{
		Type:      FrameSpeak,
		SessionID: req.SessionID,
		SpeechID:  id,
		Text:      req.Text,
		Voice:     req.Voice,
		Language:  req.Language,
		Rate:      req.Rate,
		Pitch:     req.Pitch,
	}) {
		p.takeSpeech(id)
		return nil, fmt.Errorf("%w: speak frame not delivered", ErrNotConnected)
	}

	return orchestrator.HandleFunc(func() {
		if p.takeSpeech(id) != nil {
			p.send(ServerFrame{Type: FrameCancelSpeech, SessionID: req.SessionID, SpeechID: id})
		}
	}), nil
}

// Hooks returns orchestrator hooks that forward state changes, turns, and
// errors to the session's connection.
func (b *Bridge) Hooks() orchestrator.Hooks {
	return orchestrator.Hooks{
		OnStateChange: func(id string, from, to orchestrator.State) {
			if p, err := b.peer(id); err == nil {
				p.send(ServerFrame{Type: FrameState, SessionID: id, From: from.String(), State: to.String()})
			}
		},
		OnTurn: func(id string, turn session.Turn) {
			if p, err := b.peer(id); err == nil {
				t := turn
				p.send(ServerFrame{Type: FrameTurn, SessionID: id, Turn: &t})
			}
		},
		OnError: func(id string, serr *orchestrator.SessionError) {
			if p, err := b.peer(id); err == nil {
				f := errorFrame(serr)
				f.SessionID = id
				p.send(f)
			}
		},
	}
}

// transcript feeds a transcript frame to the active recognition pass.
func (p *peer) transcript(f ClientFrame) {
	sink := p.activeRecognition(f.End || f.Error != "")
	if sink == nil {
		p.logger.Debug("transcript outside a recognition pass dropped")
		return
	}

	if f.Error != "" {
		sink.OnError(errors.New(f.Error))
		return
	}
	if f.Text != "" {
		sink.OnResult(f.Final, f.Text, f.Confidence)
	}
	if f.End {
		sink.OnEnd()
	}
}

// speechDone reports the end of a speak frame's playback.
func (p *peer) speechDone(f ClientFrame) error {
	if f.SpeechID == "" {
		return badFrame("%s requires speech_id", f.Type)
	}
	sink := p.takeSpeech(f.SpeechID)
	if sink == nil {
		return nil
	}
	if f.Type == FrameSpeechError {
		msg := f.Error
		if msg == "" {
			msg = "playback failed"
		}
		sink.OnError(errors.New(msg))
		return nil
	}
	sink.OnEnd()
	return nil
}
