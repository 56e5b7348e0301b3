package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"

	"github.com/spf13/cobra"

	"github.com/tailored-agentic-units/voice/orchestrator"
	"github.com/tailored-agentic-units/voice/session"
)

// typedConfidence is the confidence given to typed input.
const typedConfidence = 1.0

func chatCmd(g *globals) *cobra.Command {
	var voice string

	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Converse with the router from the terminal",
		Long: `Chat reads utterances from stdin, one per line, and prints the replies.
Commands: /history, /export, /relationship, /quit.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := g.setup()
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()

			handlers, err := builtinActions(logger)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			settled := make(chan struct{}, 1)
			hooks := orchestrator.Hooks{
				OnStateChange: func(_ string, _, to orchestrator.State) {
					if to == orchestrator.StateIdle {
						select {
						case settled <- struct{}{}:
						default:
						}
					}
				},
				OnTurn: func(_ string, t session.Turn) {
					if t.Sender == session.SenderAssistant {
						fmt.Fprintf(out, "assistant> %s\n", t.Content)
					}
				},
				OnError: func(_ string, err *orchestrator.SessionError) {
					fmt.Fprintf(out, "assistant> %s\n", err.Message())
				},
			}

			o, err := orchestrator.New(cfg,
				orchestrator.WithInvoker(handlers),
				orchestrator.WithHooks(hooks),
				orchestrator.WithLogger(logger),
			)
			if err != nil {
				return fmt.Errorf("failed to create orchestrator: %w", err)
			}
			defer o.Close(context.WithoutCancel(ctx))

			if err := registerBuiltinRules(o); err != nil {
				return err
			}

			prefs := session.DefaultPreferences()
			prefs.Voice = voice
			id, err := o.StartSession(ctx, prefs)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "session %s\n", id)

			return chat(ctx, o, id, cmd.InOrStdin(), out, settled)
		},
	}

	cmd.Flags().StringVar(&voice, "voice", "", "Preferred voice name")
	return cmd
}

func chat(ctx context.Context, o *orchestrator.Orchestrator, id string, in io.Reader, out io.Writer, settled <-chan struct{}) error {
	scanner := bufio.NewScanner(in)
	for {
		fmt.Fprint(out, "you> ")
		if !scanner.Scan() {
			fmt.Fprintln(out)
			return scanner.Err()
		}

		line := strings.TrimSpace(scanner.Text())
		switch line {
		case "":
			continue
		case "/quit", "/exit":
			return nil
		case "/history":
			history, err := o.History(ctx, id)
			if err != nil {
				return err
			}
			for _, t := range history {
				fmt.Fprintf(out, "  %s [%s] %s: %s\n", t.Timestamp.Format("15:04:05"), t.Kind, t.Sender, t.Content)
			}
			continue
		case "/relationship":
			rel, err := o.Relationship(ctx, id)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "  trust %.2f familiarity %.2f rapport %.2f shared %d\n",
				rel.Trust, rel.Familiarity, rel.Rapport, rel.SharedExperiences)
			continue
		case "/export":
			exp, err := o.Export(ctx, id)
			if err != nil {
				return err
			}
			data, err := exp.MarshalIndent()
			if err != nil {
				return err
			}
			fmt.Fprintln(out, string(data))
			continue
		}

		select {
		case <-settled:
		default:
		}

		confidence := typedConfidence
		if err := o.SubmitUtterance(ctx, id, line, &confidence); err != nil {
			fmt.Fprintf(out, "error: %v\n", err)
			continue
		}

		select {
		case <-settled:
		case <-ctx.Done():
			return nil
		}
	}
}
