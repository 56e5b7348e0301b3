package live

import (
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/tailored-agentic-units/voice/orchestrator"
)

// peer is one browser connection bound to one session.
type peer struct {
	sessionID string
	out       chan ServerFrame
	done      chan struct{}
	closeOnce sync.Once
	logger    *slog.Logger

	mu       sync.Mutex
	pass     uint64
	recog    orchestrator.RecognitionSink
	speeches map[string]orchestrator.SynthesisSink
}

func newPeer(sessionID string, buffer int, logger *slog.Logger) *peer {
	return &peer{
		sessionID: sessionID,
		out:       make(chan ServerFrame, buffer),
		done:      make(chan struct{}),
		logger:    logger.With(slog.String("session_id", sessionID)),
		speeches:  make(map[string]orchestrator.SynthesisSink),
	}
}

// send queues a frame without blocking. Frames are dropped once the peer is
// closed or its buffer is full.
func (p *peer) send(f ServerFrame) bool {
	select {
	case <-p.done:
		return false
	default:
	}

	select {
	case p.out <- f:
		return true
	case <-p.done:
		return false
	default:
		p.logger.Warn("outbound frame dropped", slog.String("type", f.Type))
		return false
	}
}

func (p *peer) close() {
	p.closeOnce.Do(func() { close(p.done) })
}

func (p *peer) beginRecognition(sink orchestrator.RecognitionSink) uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.pass++
	p.recog = sink
	return p.pass
}

func (p *peer) endRecognition(pass uint64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.pass == pass {
		p.recog = nil
	}
}

// activeRecognition returns the current sink, detaching it when finish is set.
func (p *peer) activeRecognition(finish bool) orchestrator.RecognitionSink {
	p.mu.Lock()
	defer p.mu.Unlock()
	sink := p.recog
	if finish {
		p.recog = nil
	}
	return sink
}

func (p *peer) addSpeech(id string, sink orchestrator.SynthesisSink) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.speeches[id] = sink
}

func (p *peer) takeSpeech(id string) orchestrator.SynthesisSink {
	p.mu.Lock()
	defer p.mu.Unlock()
	sink, ok := p.speeches[id]
	if !ok {
		return nil
	}
	delete(p.speeches, id)
	return sink
}

// wsWriter is the subset of *websocket.Conn the writer needs.
type wsWriter interface {
	SetWriteDeadline(t time.Time) error
	WriteMessage(messageType int, data []byte) error
	WriteControl(messageType int, data []byte, deadline time.Time) error
}

// writeLoop is the connection's only writer. It drains queued frames, pings
// on an interval, and sends a close frame once the peer is closed.
func (p *peer) writeLoop(ws wsWriter, cfg Config) error {
	ping := time.NewTicker(cfg.PingInterval)
	defer ping.Stop()

	for {
		select {
		case <-p.done:
			p.flush(ws, cfg.WriteTimeout)
			deadline := time.Now().Add(cfg.WriteTimeout)
			_ = ws.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
			return nil

		case <-ping.C:
			if err := ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(cfg.WriteTimeout)); err != nil {
				return err
			}

		case f := <-p.out:
			if err := writeFrame(ws, f, cfg.WriteTimeout); err != nil {
				return err
			}
		}
	}
}

// flush writes frames still queued at shutdown, such as a final error frame.
func (p *peer) flush(ws wsWriter, timeout time.Duration) {
	for {
		select {
		case f := <-p.out:
			if err := writeFrame(ws, f, timeout); err != nil {
				return
			}
		default:
			return
		}
	}
}

func writeFrame(ws wsWriter, f ServerFrame, timeout time.Duration) error {
	data, err := json.Marshal(f)
	if err != nil {
		return err
	}
	if err := ws.SetWriteDeadline(time.Now().Add(timeout)); err != nil {
		return err
	}
	return ws.WriteMessage(websocket.TextMessage, data)
}
