package cli

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	configx "github.com/tanpawarit/corecraft-support/pkg/config"
	"github.com/tanpawarit/corecraft-support/server"
)

func newServeCmd() *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the support chat HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			httpCfg, err := configx.New[server.Config]("HTTP")
			if err != nil {
				return fmt.Errorf("load HTTP config: %w", err)
			}
			if cmd.Flags().Changed("addr") {
				httpCfg.Addr = addr
			}

			a, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer a.close()

			orch, err := a.newOrchestrator(ctx)
			if err != nil {
				return err
			}

			var verifier server.SignatureVerifier
			if a.verifier != nil {
				verifier = a.verifier
			}
			srv, err := server.New(*httpCfg, orch, a.catalog, verifier, a.metrics)
			if err != nil {
				return err
			}

			errCh := make(chan error, 1)
			go func() { errCh <- srv.Start() }()

			select {
			case err := <-errCh:
				return err
			case <-ctx.Done():
			}

			log.Info().Msg("cli: shutting down")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", ":8080", "Listen address")
	return cmd
}
