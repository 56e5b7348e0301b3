package main

import (
	"context"
	"log/slog"

	"github.com/tailored-agentic-units/voice/actions"
	"github.com/tailored-agentic-units/voice/capability"
	"github.com/tailored-agentic-units/voice/orchestrator"
	"github.com/tailored-agentic-units/voice/router"
)

// builtinActions returns a registry with handlers for the built-in
// capabilities. Handlers only log; real deployments register their own.
func builtinActions(logger *slog.Logger) (*actions.Registry, error) {
	reg := actions.NewRegistry()
	for _, c := range builtinCapabilities {
		if err := reg.Register(c.ID, actions.Any, logAction(logger)); err != nil {
			return nil, err
		}
	}
	return reg, nil
}

// registerBuiltinRules adds the built-in capabilities and rules when no
// manifest supplied any.
func registerBuiltinRules(o *orchestrator.Orchestrator) error {
	if o.Registry().Len() > 0 {
		return nil
	}
	for _, c := range builtinCapabilities {
		if err := o.RegisterCapability(c); err != nil {
			return err
		}
	}
	for _, r := range builtinRules {
		if err := o.RegisterRule(r); err != nil {
			return err
		}
	}
	return nil
}

var builtinCapabilities = []capability.Capability{
	{ID: "smarty-core", Name: "Smarty Core", Category: "development", Type: "generator", Priority: capability.PriorityHigh},
	{ID: "notes", Name: "Notes", Category: "productivity", Type: "recorder", Priority: capability.PriorityLow, Status: capability.StatusInactive},
	{ID: "clock", Name: "Clock", Category: "utility", Type: "query", Priority: capability.PriorityMedium},
}

var builtinRules = []router.Rule{
	{ID: "smart-code", Matcher: router.MustRegex(`generate\s+smart\s+code`), CapabilityID: "smarty-core", Action: "generate"},
	{ID: "take-note", Matcher: router.Phrase("take a note"), CapabilityID: "notes", Action: "record", Keywords: []string{"note"}},
	{ID: "what-time", Matcher: router.AllKeywords("what", "time"), CapabilityID: "clock", Action: "check the time"},
}

func logAction(logger *slog.Logger) actions.Handler {
	return func(ctx context.Context, call actions.Call) error {
		logger.InfoContext(ctx, "action performed",
			slog.String("capability_id", call.CapabilityID),
			slog.String("action", call.Action),
		)
		return nil
	}
}
