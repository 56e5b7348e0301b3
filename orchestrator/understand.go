package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/tailored-agentic-units/voice/dispatch"
	"github.com/tailored-agentic-units/voice/router"
	"github.com/tailored-agentic-units/voice/session"
)

// outcome is the reply produced while Processing.
type outcome struct {
	text   string
	kind   session.Kind
	intent string
	result *dispatch.Result
}

// understand resolves an utterance to a reply: a routed dispatch first, then
// the classifier, then a clarification. It returns ctx.Err() when cancelled.
func (o *Orchestrator) understand(ctx context.Context, id, text string, cc ClassifyContext) (outcome, error) {
	if m, err := o.router.Match(text); err == nil {
		return o.act(ctx, id, text, m.Rule.ID, m)
	}

	if o.classifier != nil {
		cls, err := o.classifier.Classify(ctx, text, cc)
		if ctx.Err() != nil {
			return outcome{}, ctx.Err()
		}
		switch {
		case err != nil:
			o.logger.Warn("classification failed",
				slog.String("session_id", id),
				slog.String("error", err.Error()),
			)
		case cls.Intent == "" || cls.Confidence < o.cfg.ConfidenceThreshold:
		case cls.SuggestedAction != "":
			if m, err := o.router.Match(cls.SuggestedAction); err == nil {
				return o.act(ctx, id, text, cls.Intent, m)
			}
			return outcome{text: describe(cls), kind: session.KindReply, intent: cls.Intent}, nil
		default:
			return outcome{text: describe(cls), kind: session.KindReply, intent: cls.Intent}, nil
		}
	}

	return outcome{text: clarifyNoMatch, kind: session.KindClarification}, nil
}

func (o *Orchestrator) act(ctx context.Context, id, text, intent string, m router.Match) (outcome, error) {
	rule := m.Rule
	results, err := o.dispatcher.Dispatch(ctx, dispatch.Request{Match: m, Utterance: text, SessionID: id})

	var result dispatch.Result
	if err != nil {
		name := rule.CapabilityID
		if c, gerr := o.registry.Get(rule.CapabilityID); gerr == nil {
			name = c.DisplayName()
		}
		result = dispatch.FailureResult(rule.CapabilityID, rule.Action, name, err)
	} else {
		select {
		case result = <-results:
		case <-ctx.Done():
			return outcome{}, ctx.Err()
		}
	}

	if ctx.Err() != nil {
		return outcome{}, ctx.Err()
	}
	if !result.Success && errors.Is(result.Err(), dispatch.ErrTimeout) {
		o.logger.Warn("capability action timed out",
			slog.String("session_id", id),
			slog.String("capability_id", rule.CapabilityID),
		)
	}

	return outcome{text: result.Message, kind: session.KindReply, intent: intent, result: &result}, nil
}

func describe(cls Classification) string {
	if cls.Explanation != "" {
		return cls.Explanation
	}
	return fmt.Sprintf("It sounds like you want to %s.", strings.ReplaceAll(cls.Intent, "_", " "))
}
