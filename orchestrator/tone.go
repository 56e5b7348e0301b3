package orchestrator

import (
	"strings"

	"github.com/tailored-agentic-units/voice/session"
)

// ToneState flavours reply wording. Values are in [0,1].
type ToneState struct {
	Familiarity float64
	Rapport     float64
	Trust       float64
}

// ToneFromRelationship derives a tone from a session's relationship metrics.
func ToneFromRelationship(r session.Relationship) ToneState {
	return ToneState{Familiarity: r.Familiarity, Rapport: r.Rapport, Trust: r.Trust}
}

const (
	familiarThreshold = 0.3
	warmThreshold     = 0.6
)

// RenderTone rewrites base to match tone. It is pure: the same inputs always
// produce the same output.
//
// Below the familiar threshold the text is returned unchanged. Familiar
// sessions get a short lead-in, and warm sessions (high rapport and trust)
// close with a friendly sign-off.
func RenderTone(tone ToneState, base string) string {
	text := strings.TrimSpace(base)
	if text == "" || tone.Familiarity < familiarThreshold {
		return text
	}

	text = "Sure. " + text

	if tone.Rapport >= warmThreshold && tone.Trust >= warmThreshold && !strings.HasSuffix(text, "?") {
		text += " Anything else I can do?"
	}
	return text
}
