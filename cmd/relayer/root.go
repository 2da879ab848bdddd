package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"bridge/relayer/internal/config"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

type rootOptions struct {
	configPath string
	envFiles   []string
	cfg        *config.Config
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:           "relayer",
		Short:         "Relays bridge events between a source and a destination EVM chain",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if err := config.LoadEnv(opts.envFiles...); err != nil {
				return err
			}
			cfg, err := config.Load(opts.configPath)
			if err != nil {
				return err
			}
			config.InitLogger(cfg.Log.Level, cfg.Log.Format)
			opts.cfg = cfg
			return nil
		},
	}
	cobra.EnableCommandSorting = false

	cmd.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "config file (default ./relayer.yaml)")
	cmd.PersistentFlags().StringSliceVar(&opts.envFiles, "env-file", nil, "dotenv files loaded before the config (default .env)")

	cmd.AddCommand(
		runCmd(opts),
		passCmd(opts),
		serveCmd(opts),
		eventsCmd(opts),
		keysCmd(opts),
		ipfsCmd(opts),
		mineCmd(),
	)
	return cmd
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)
	sigch := make(chan os.Signal, 1)
	signal.Notify(sigch, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		defer signal.Stop(sigch)
		select {
		case s := <-sigch:
			log.Info().Str("signal", s.String()).Msg("[relayer] stopping")
			cancel()
		case <-ctx.Done():
		}
	}()
	return ctx, cancel
}
