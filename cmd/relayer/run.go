package main

import (
	"context"
	"encoding/json"
	"os"
	"time"

	"bridge/relayer/internal/metrics"
	"bridge/relayer/internal/models"
	"bridge/relayer/internal/services"

	"github.com/cockroachdb/errors"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 5 * time.Second

func runCmd(opts *rootOptions) *cobra.Command {
	var noAPI bool
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Relay both directions continuously and serve the status API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := opts.cfg
			ctx, cancel := signalContext(cmd.Context())
			defer cancel()

			l, err := openLedger(ctx, cfg, true)
			if err != nil {
				return err
			}
			defer l.close()

			reg := newRegistry()
			r, err := buildEngine(ctx, cfg, l, metrics.New(reg))
			if err != nil {
				return err
			}
			defer r.close()

			g, gctx := errgroup.WithContext(ctx)
			for _, role := range models.Roles {
				p := services.NewPoller(r.engine, role, cfg.Chain(role).PollInterval)
				g.Go(func() error {
					if err := p.Start(gctx); err != nil && !errors.Is(err, context.Canceled) {
						return err
					}
					return nil
				})
			}

			if !noAPI {
				api := services.NewApiService(cfg.API.Listen, l.cursors, l.events, r.engine, reg)
				g.Go(api.Start)
				g.Go(func() error {
					<-gctx.Done()
					shutdownCtx, stop := context.WithTimeout(context.Background(), shutdownTimeout)
					defer stop()
					return api.Shutdown(shutdownCtx)
				})
			}

			log.Info().Msg("[relayer] [Run] started")
			err = g.Wait()
			log.Info().Msg("[relayer] [Run] stopped")
			return err
		},
	}
	cmd.Flags().BoolVar(&noAPI, "no-api", false, "do not start the status API")
	return cmd
}

func passCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:       "pass <source|destination>",
		Short:     "Run a single relay pass for one role and print the result",
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{string(models.Source), string(models.Destination)},
		RunE: func(cmd *cobra.Command, args []string) error {
			role, err := models.ParseRole(args[0])
			if err != nil {
				return err
			}
			ctx, cancel := signalContext(cmd.Context())
			defer cancel()

			l, err := openLedger(ctx, opts.cfg, true)
			if err != nil {
				return err
			}
			defer l.close()

			r, err := buildEngine(ctx, opts.cfg, l, nil)
			if err != nil {
				return err
			}
			defer r.close()

			res, err := r.engine.Pass(ctx, role)
			if err != nil {
				return err
			}
			return printJSON(res)
		},
	}
}

func serveCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the read-only status API over an existing ledger",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := signalContext(cmd.Context())
			defer cancel()

			l, err := openLedger(ctx, opts.cfg, false)
			if err != nil {
				return err
			}
			defer l.close()

			api := services.NewApiService(opts.cfg.API.Listen, l.cursors, l.events, nil, newRegistry())
			go func() {
				<-ctx.Done()
				shutdownCtx, stop := context.WithTimeout(context.Background(), shutdownTimeout)
				defer stop()
				if err := api.Shutdown(shutdownCtx); err != nil {
					log.Error().Err(err).Msg("[relayer] [Serve] shutdown")
				}
			}()
			return api.Start()
		},
	}
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
