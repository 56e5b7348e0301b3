package live

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"slices"
	"time"

	"github.com/gorilla/websocket"

	"github.com/tailored-agentic-units/voice/observability"
	"github.com/tailored-agentic-units/voice/session"
)

// Conversations is the orchestrator surface a connection drives.
type Conversations interface {
	StartSession(ctx context.Context, prefs session.Preferences) (string, error)
	Listen(ctx context.Context, id string) error
	SubmitUtterance(ctx context.Context, id, text string, confidence *float64) error
	Interrupt(ctx context.Context, id string) error
	StopSession(ctx context.Context, id string) error
	SetPreferences(ctx context.Context, id string, prefs session.Preferences) error
	CloseSession(ctx context.Context, id string) error
}

// Option configures a Handler.
type Option func(*Handler)

// WithLogger overrides the bridge's logger.
func WithLogger(l *slog.Logger) Option {
	return func(h *Handler) { h.logger = l }
}

// WithObserver reports connection lifecycle events.
func WithObserver(o observability.Observer) Option {
	return func(h *Handler) { h.observer = o }
}

// Handler upgrades HTTP requests to live conversation connections. Each
// connection owns exactly one session, opened by the hello frame and closed
// when the socket goes away.
type Handler struct {
	conversations Conversations
	bridge        *Bridge
	cfg           Config
	upgrader      websocket.Upgrader
	observer      observability.Observer
	logger        *slog.Logger
}

// NewHandler creates a Handler. cfg is merged over DefaultConfig.
func NewHandler(c Conversations, b *Bridge, cfg *Config, opts ...Option) *Handler {
	merged := DefaultConfig()
	if cfg != nil {
		merged.Merge(cfg)
	}

	h := &Handler{
		conversations: c,
		bridge:        b,
		cfg:           merged,
		observer:      observability.NoOpObserver{},
		logger:        b.logger,
	}
	h.upgrader = websocket.Upgrader{CheckOrigin: h.originAllowed}

	for _, opt := range opts {
		opt(h)
	}
	return h
}

func (h *Handler) originAllowed(r *http.Request) bool {
	if len(h.cfg.AllowedOrigins) == 0 {
		return true
	}
	origin := r.Header.Get("Origin")
	return origin == "" || slices.Contains(h.cfg.AllowedOrigins, origin)
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Debug("websocket upgrade failed", slog.String("error", err.Error()))
		return
	}
	defer conn.Close()

	if h.cfg.MaxMessageBytes > 0 {
		conn.SetReadLimit(h.cfg.MaxMessageBytes)
	}

	ctx := r.Context()
	hello, err := h.handshake(conn)
	if err != nil {
		h.reject(conn, err)
		return
	}

	prefs := session.DefaultPreferences()
	if hello.Preferences != nil {
		prefs = *hello.Preferences
	}
	id, err := h.conversations.StartSession(ctx, prefs)
	if err != nil {
		h.reject(conn, err)
		return
	}

	p := newPeer(id, h.cfg.OutboundBuffer, h.logger)
	h.bridge.attach(p)
	p.send(ServerFrame{Type: FrameSession, SessionID: id})
	h.emit(ctx, EventConnect, id, nil)

	writerDone := make(chan error, 1)
	go func() { writerDone <- p.writeLoop(conn, h.cfg) }()

	readErr := h.readLoop(ctx, conn, p)

	h.bridge.detach(p)
	closeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), h.cfg.WriteTimeout)
	if err := h.conversations.CloseSession(closeCtx, id); err != nil {
		p.logger.Warn("session close failed", slog.String("error", err.Error()))
	}
	cancel()

	p.close()
	writeErr := <-writerDone

	data := map[string]any{}
	if readErr != nil && !websocket.IsCloseError(readErr, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
		data["read_error"] = readErr.Error()
	}
	if writeErr != nil {
		data["write_error"] = writeErr.Error()
	}
	h.emit(ctx, EventDisconnect, id, data)
}

// handshake reads the hello frame within the handshake timeout.
func (h *Handler) handshake(conn *websocket.Conn) (ClientFrame, error) {
	_ = conn.SetReadDeadline(time.Now().Add(h.cfg.HandshakeTimeout))
	messageType, data, err := conn.ReadMessage()
	if err != nil {
		return ClientFrame{}, badFrame("failed to read hello: %v", err)
	}
	if messageType != websocket.TextMessage {
		return ClientFrame{}, badFrame("first frame must be hello")
	}

	f, err := DecodeClientFrame(data)
	if err != nil {
		return ClientFrame{}, err
	}
	if f.Type != FrameHello {
		return ClientFrame{}, badFrame("first frame must be hello, got %s", f.Type)
	}
	return f, nil
}

// reject writes an error frame and a close frame directly; no writer runs yet.
func (h *Handler) reject(conn *websocket.Conn, err error) {
	_ = writeFrame(conn, errorFrame(err), h.cfg.WriteTimeout)
	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "handshake failed"),
		time.Now().Add(h.cfg.WriteTimeout))
}

func (h *Handler) readLoop(ctx context.Context, conn *websocket.Conn, p *peer) error {
	extend := func() {
		if h.cfg.IdleTimeout > 0 {
			_ = conn.SetReadDeadline(time.Now().Add(h.cfg.IdleTimeout))
		} else {
			_ = conn.SetReadDeadline(time.Time{})
		}
	}
	extend()
	conn.SetPongHandler(func(string) error {
		extend()
		return nil
	})

	for {
		messageType, data, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		extend()

		if messageType != websocket.TextMessage {
			p.send(errorFrame(badFrame("binary frames are not supported")))
			continue
		}

		f, err := DecodeClientFrame(data)
		if err == nil {
			err = h.apply(ctx, p, f)
		}
		if err != nil {
			p.send(errorFrame(err))
		}
	}
}

// apply performs one client frame against the session.
func (h *Handler) apply(ctx context.Context, p *peer, f ClientFrame) error {
	id := p.sessionID
	switch f.Type {
	case FrameHello:
		return badFrame("session already started")
	case FrameListen:
		return h.conversations.Listen(ctx, id)
	case FrameUtterance:
		return h.conversations.SubmitUtterance(ctx, id, f.Text, f.Confidence)
	case FrameTranscript:
		p.transcript(f)
		return nil
	case FrameInterrupt:
		return h.conversations.Interrupt(ctx, id)
	case FrameStop:
		return h.conversations.StopSession(ctx, id)
	case FramePreferences:
		if f.Preferences == nil {
			return badFrame("preferences frame requires preferences")
		}
		return h.conversations.SetPreferences(ctx, id, *f.Preferences)
	case FrameSpeechEnd, FrameSpeechError:
		return p.speechDone(f)
	default:
		return errors.New("unhandled frame " + f.Type)
	}
}

func (h *Handler) emit(ctx context.Context, typ observability.EventType, id string, data map[string]any) {
	if data == nil {
		data = map[string]any{}
	}
	data["session_id"] = id
	h.observer.OnEvent(ctx, observability.Event{
		Type:      typ,
		Level:     observability.LevelInfo,
		Timestamp: time.Now(),
		Source:    "live.Handler",
		Data:      data,
	})
}
