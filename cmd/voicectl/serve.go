package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/tailored-agentic-units/voice/live"
	"github.com/tailored-agentic-units/voice/observability"
	"github.com/tailored-agentic-units/voice/orchestrator"
)

func serveCmd(g *globals) *cobra.Command {
	var (
		addr            string
		metrics         bool
		idleTimeout     time.Duration
		allowedOrigins  []string
		shutdownTimeout time.Duration
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve live conversation sessions over WebSocket",
		Long: `Serve accepts browser connections on /live. The browser hosts speech
recognition and synthesis; each connection owns one conversation session.
Prometheus metrics are exposed on /metrics.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := g.setup()
			if err != nil {
				return err
			}

			liveCfg := live.DefaultConfig()
			liveCfg.Merge(&live.Config{IdleTimeout: idleTimeout, AllowedOrigins: allowedOrigins})

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			return serve(ctx, cfg, &liveCfg, logger, addr, metrics, shutdownTimeout)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", ":8080", "Listen address")
	cmd.Flags().BoolVar(&metrics, "metrics", true, "Expose Prometheus metrics on /metrics")
	cmd.Flags().DurationVar(&idleTimeout, "idle-timeout", 0, "Close connections idle this long (default from live config)")
	cmd.Flags().StringSliceVar(&allowedOrigins, "allowed-origin", nil, "Allowed Origin header (repeatable; default any)")
	cmd.Flags().DurationVar(&shutdownTimeout, "shutdown-timeout", 10*time.Second, "Grace period for open sessions on shutdown")

	return cmd
}

func serve(ctx context.Context, cfg *orchestrator.Config, liveCfg *live.Config, logger *slog.Logger, addr string, metrics bool, shutdownTimeout time.Duration) error {
	mux := http.NewServeMux()

	var observer observability.Observer
	resolved, err := observability.Resolve(cfg.Observers...)
	if err != nil {
		return err
	}
	observer = resolved

	if metrics {
		prom := observability.NewPrometheusObserver("voice",
			observability.TrackActive(orchestrator.EventSessionOpen, orchestrator.EventSessionClose),
		)
		observer = observability.NewMultiObserver(resolved, prom)
		mux.Handle("/metrics", prom.Handler())
	}

	handlers, err := builtinActions(logger)
	if err != nil {
		return err
	}

	bridge := live.NewBridge(logger)
	o, err := orchestrator.New(cfg,
		orchestrator.WithRecognizer(bridge),
		orchestrator.WithSynthesizer(bridge),
		orchestrator.WithHooks(bridge.Hooks()),
		orchestrator.WithInvoker(handlers),
		orchestrator.WithObserver(observer),
		orchestrator.WithLogger(logger),
	)
	if err != nil {
		return fmt.Errorf("failed to create orchestrator: %w", err)
	}
	if err := registerBuiltinRules(o); err != nil {
		return errors.Join(err, o.Close(ctx))
	}

	mux.Handle("/live", live.NewHandler(o, bridge, liveCfg,
		live.WithObserver(observer),
		live.WithLogger(logger),
	))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok\n"))
	})

	server := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	group, gctx := errgroup.WithContext(ctx)
	group.Go(func() error {
		logger.Info("serving", slog.String("addr", addr), slog.Int("capabilities", o.Registry().Len()))
		if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	group.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")

		sctx, cancel := context.WithTimeout(context.WithoutCancel(gctx), shutdownTimeout)
		defer cancel()
		return errors.Join(server.Shutdown(sctx), o.Close(sctx))
	})

	return group.Wait()
}
