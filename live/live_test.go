package live_test

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tailored-agentic-units/voice/capability"
	"github.com/tailored-agentic-units/voice/live"
	"github.com/tailored-agentic-units/voice/mock"
	"github.com/tailored-agentic-units/voice/orchestrator"
	"github.com/tailored-agentic-units/voice/router"
	"github.com/tailored-agentic-units/voice/session"
)

type liveServer struct {
	url    string
	o      *orchestrator.Orchestrator
	bridge *live.Bridge
	inv    *mock.Invoker
}

func newLiveServer(t *testing.T) *liveServer {
	t.Helper()

	bridge := live.NewBridge(nil)
	inv := mock.NewInvoker()
	cfg := orchestrator.DefaultConfig()
	cfg.Observers = nil

	o, err := orchestrator.New(&cfg,
		orchestrator.WithRecognizer(bridge),
		orchestrator.WithSynthesizer(bridge),
		orchestrator.WithHooks(bridge.Hooks()),
		orchestrator.WithInvoker(inv),
	)
	require.NoError(t, err)
	require.NoError(t, o.RegisterCapability(capability.Capability{ID: "smarty-core", Name: "Smarty Core"}))
	require.NoError(t, o.RegisterRule(router.Rule{
		ID:           "smart-code",
		Matcher:      router.Phrase("generate smart code"),
		CapabilityID: "smarty-core",
		Action:       "generate",
	}))

	srv := httptest.NewServer(live.NewHandler(o, bridge, &live.Config{PingInterval: time.Second}))
	t.Cleanup(func() {
		srv.Close()
		assert.NoError(t, o.Close(context.Background()))
	})

	return &liveServer{
		url:    "ws" + strings.TrimPrefix(srv.URL, "http"),
		o:      o,
		bridge: bridge,
		inv:    inv,
	}
}

func dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func send(t *testing.T, conn *websocket.Conn, frame map[string]any) {
	t.Helper()
	require.NoError(t, conn.WriteJSON(frame))
}

func read(t *testing.T, conn *websocket.Conn) live.ServerFrame {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)

	var f live.ServerFrame
	require.NoError(t, json.Unmarshal(data, &f))
	return f
}

// readUntil reads frames until one satisfies match, returning it and every
// frame before it.
func readUntil(t *testing.T, conn *websocket.Conn, match func(live.ServerFrame) bool) (live.ServerFrame, []live.ServerFrame) {
	t.Helper()
	var before []live.ServerFrame
	for range 50 {
		f := read(t, conn)
		if match(f) {
			return f, before
		}
		before = append(before, f)
	}
	t.Fatalf("frame not received; saw %+v", before)
	return live.ServerFrame{}, nil
}

func ofType(typ string) func(live.ServerFrame) bool {
	return func(f live.ServerFrame) bool { return f.Type == typ }
}

func inState(state string) func(live.ServerFrame) bool {
	return func(f live.ServerFrame) bool { return f.Type == live.FrameState && f.State == state }
}

func hello(t *testing.T, conn *websocket.Conn) string {
	t.Helper()
	send(t, conn, map[string]any{
		"type":        "hello",
		"preferences": map[string]any{"language": "en-GB", "voice": "amelie", "rate": 1.2, "pitch": 1},
	})
	f := read(t, conn)
	require.Equal(t, live.FrameSession, f.Type)
	require.NotEmpty(t, f.SessionID)
	return f.SessionID
}

func TestHandler_Conversation(t *testing.T) {
	s := newLiveServer(t)
	conn := dial(t, s.url)
	id := hello(t, conn)
	assert.Equal(t, 1, s.bridge.Connected())

	// Typed utterance through to a spoken reply.
	send(t, conn, map[string]any{"type": "utterance", "text": "please generate smart code", "confidence": 0.9})
	speak, before := readUntil(t, conn, ofType(live.FrameSpeak))
	assert.Equal(t, "Smarty Core has finished generate.", speak.Text)
	assert.Equal(t, "amelie", speak.Voice)
	assert.Equal(t, "en-GB", speak.Language)
	assert.Equal(t, 1.2, speak.Rate)
	assert.Equal(t, id, speak.SessionID)
	require.NotEmpty(t, speak.SpeechID)

	var turns []*session.Turn
	for _, f := range before {
		if f.Type == live.FrameTurn {
			turns = append(turns, f.Turn)
		}
	}
	require.Len(t, turns, 2)
	assert.Equal(t, session.SenderUser, turns[0].Sender)
	assert.Equal(t, session.SenderAssistant, turns[1].Sender)

	// Barge-in cancels the speech and starts listening.
	send(t, conn, map[string]any{"type": "interrupt"})
	cancel, _ := readUntil(t, conn, ofType(live.FrameCancelSpeech))
	assert.Equal(t, speak.SpeechID, cancel.SpeechID)
	readUntil(t, conn, inState("listening"))

	// Interim then final transcript from the browser recognizer.
	send(t, conn, map[string]any{"type": "transcript", "text": "generate", "final": false})
	send(t, conn, map[string]any{"type": "transcript", "text": "generate smart code", "final": true, "confidence": 0.8})
	second, _ := readUntil(t, conn, ofType(live.FrameSpeak))
	assert.NotEqual(t, speak.SpeechID, second.SpeechID)

	send(t, conn, map[string]any{"type": "speech_end", "speech_id": second.SpeechID})
	readUntil(t, conn, inState("idle"))

	// Playback failure is reported and the session recovers.
	send(t, conn, map[string]any{"type": "utterance", "text": "generate smart code", "confidence": 1})
	third, _ := readUntil(t, conn, ofType(live.FrameSpeak))
	send(t, conn, map[string]any{"type": "speech_error", "speech_id": third.SpeechID, "error": "audio blocked"})
	errFrame, _ := readUntil(t, conn, ofType(live.FrameError))
	assert.Equal(t, live.CodeSynthesis, errFrame.Code)
	assert.NotEmpty(t, errFrame.Message)
	readUntil(t, conn, inState("idle"))

	assert.Len(t, s.inv.Calls(), 3)

	history, err := s.o.History(context.Background(), id)
	require.NoError(t, err)
	assert.Len(t, history, 6)

	// Closing the socket closes the session.
	require.NoError(t, conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")))
	assert.Eventually(t, func() bool {
		return s.bridge.Connected() == 0 && len(s.o.Sessions()) == 0
	}, 2*time.Second, 10*time.Millisecond)
}

func TestHandler_FrameErrors(t *testing.T) {
	s := newLiveServer(t)
	conn := dial(t, s.url)
	hello(t, conn)

	tests := []struct {
		name  string
		frame map[string]any
		code  string
	}{
		{name: "unknown type", frame: map[string]any{"type": "dance"}, code: live.CodeBadRequest},
		{name: "second hello", frame: map[string]any{"type": "hello"}, code: live.CodeBadRequest},
		{name: "empty utterance", frame: map[string]any{"type": "utterance", "text": "  "}, code: live.CodeBadRequest},
		{name: "preferences missing", frame: map[string]any{"type": "preferences"}, code: live.CodeBadRequest},
		{name: "speech_end without id", frame: map[string]any{"type": "speech_end"}, code: live.CodeBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			send(t, conn, tt.frame)
			f, _ := readUntil(t, conn, ofType(live.FrameError))
			assert.Equal(t, tt.code, f.Code)
		})
	}
}

func TestHandler_HandshakeRequiresHello(t *testing.T) {
	s := newLiveServer(t)
	conn := dial(t, s.url)

	send(t, conn, map[string]any{"type": "listen"})
	f := read(t, conn)
	assert.Equal(t, live.FrameError, f.Type)
	assert.Equal(t, live.CodeBadRequest, f.Code)

	_, _, err := conn.ReadMessage()
	assert.Error(t, err, "connection closed after a failed handshake")
	assert.Empty(t, s.o.Sessions())
}

func TestHandler_BusyWhileProcessing(t *testing.T) {
	bridge := live.NewBridge(nil)
	cfg := orchestrator.DefaultConfig()
	cfg.Observers = nil
	o, err := orchestrator.New(&cfg,
		orchestrator.WithRecognizer(bridge),
		orchestrator.WithSynthesizer(bridge),
		orchestrator.WithHooks(bridge.Hooks()),
		orchestrator.WithClassifier(mock.NewClassifier(mock.WithBlocking())),
	)
	require.NoError(t, err)
	srv := httptest.NewServer(live.NewHandler(o, bridge, nil))
	t.Cleanup(func() {
		srv.Close()
		assert.NoError(t, o.Close(context.Background()))
	})

	conn := dial(t, "ws"+strings.TrimPrefix(srv.URL, "http"))
	hello(t, conn)

	send(t, conn, map[string]any{"type": "utterance", "text": "what is the weather", "confidence": 0.9})
	readUntil(t, conn, inState("processing"))

	send(t, conn, map[string]any{"type": "listen"})
	f, _ := readUntil(t, conn, ofType(live.FrameError))
	assert.Equal(t, live.CodeBusy, f.Code)

	send(t, conn, map[string]any{"type": "stop"})
	readUntil(t, conn, inState("idle"))
}

func TestDecodeClientFrame(t *testing.T) {
	tests := []struct {
		name    string
		data    string
		wantErr bool
	}{
		{name: "hello", data: `{"type":"hello"}`},
		{name: "transcript", data: `{"type":"transcript","text":"hi","final":true,"confidence":0.7}`},
		{name: "missing type", data: `{"text":"hi"}`, wantErr: true},
		{name: "unknown type", data: `{"type":"sing"}`, wantErr: true},
		{name: "not json", data: `hello`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, err := live.DecodeClientFrame([]byte(tt.data))
			if tt.wantErr {
				assert.ErrorIs(t, err, live.ErrBadFrame)
				return
			}
			require.NoError(t, err)
			assert.NotEmpty(t, f.Type)
		})
	}
}
