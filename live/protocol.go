package live

import (
	"encoding/json"
	"fmt"

	"github.com/tailored-agentic-units/voice/session"
)

// Client frame types.
const (
	FrameHello       = "hello"
	FrameListen      = "listen"
	FrameUtterance   = "utterance"
	FrameTranscript  = "transcript"
	FrameInterrupt   = "interrupt"
	FrameStop        = "stop"
	FramePreferences = "preferences"
	FrameSpeechEnd   = "speech_end"
	FrameSpeechError = "speech_error"
)

// Server frame types.
const (
	FrameSession      = "session"
	FrameState        = "state"
	FrameTurn         = "turn"
	FrameError        = "error"
	FrameSpeak        = "speak"
	FrameCancelSpeech = "cancel_speech"
)

// Error codes carried by error frames.
const (
	CodeBadRequest  = "bad_request"
	CodeBusy        = "busy"
	CodeClosed      = "session_closed"
	CodeTimeout     = "timeout"
	CodeRecognition = "recognition"
	CodeSynthesis   = "synthesis"
	CodeInternal    = "internal"
)

// ClientFrame is a message from the browser. Fields beyond Type are read
// according to Type.
type ClientFrame struct {
	Type string `json:"type"`

	// hello, preferences
	Preferences *session.Preferences `json:"preferences,omitempty"`

	// utterance, transcript
	Text       string   `json:"text,omitempty"`
	Confidence *float64 `json:"confidence,omitempty"`
	Final      bool     `json:"final,omitempty"`

	// transcript: the recognition pass ended, with or without an error.
	End bool `json:"end,omitempty"`

	// speech_end, speech_error
	SpeechID string `json:"speech_id,omitempty"`

	// transcript, speech_error
	Error string `json:"error,omitempty"`
}

// DecodeClientFrame parses a client frame and checks its type.
func DecodeClientFrame(data []byte) (ClientFrame, error) {
	var f ClientFrame
	if err := json.Unmarshal(data, &f); err != nil {
		return ClientFrame{}, fmt.Errorf("%w: %v", ErrBadFrame, err)
	}
	switch f.Type {
	case FrameHello, FrameListen, FrameUtterance, FrameTranscript, FrameInterrupt,
		FrameStop, FramePreferences, FrameSpeechEnd, FrameSpeechError:
		return f, nil
	case "":
		return ClientFrame{}, fmt.Errorf("%w: missing type", ErrBadFrame)
	default:
		return ClientFrame{}, fmt.Errorf("%w: unknown type %q", ErrBadFrame, f.Type)
	}
}

// ServerFrame is a message to the browser.
type ServerFrame struct {
	Type      string `json:"type"`
	SessionID string `json:"session_id,omitempty"`

	// state
	From  string `json:"from,omitempty"`
	State string `json:"state,omitempty"`

	// turn
	Turn *session.Turn `json:"turn,omitempty"`

	// speak, cancel_speech
	SpeechID string  `json:"speech_id,omitempty"`
	Text     string  `json:"text,omitempty"`
	Voice    string  `json:"voice,omitempty"`
	Language string  `json:"language,omitempty"`
	Rate     float64 `json:"rate,omitempty"`
	Pitch    float64 `json:"pitch,omitempty"`

	// error
	Code    string `json:"code,omitempty"`
	Message string `json:"message,omitempty"`
}
