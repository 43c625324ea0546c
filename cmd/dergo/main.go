// Package main is the entry point for the dergo scene streaming client.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/Faultbox/dergo/internal/config"
	"github.com/Faultbox/dergo/internal/logger"
)

// Version information set at build time.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// app carries what every subcommand needs after flags are parsed.
type app struct {
	cfg *config.Config
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		stop()
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	a := &app{}
	cmd := &cobra.Command{
		Use:   "dergo",
		Short: "Stream 3D scenes to a DERGO renderer",
		Long: `dergo loads a glTF scene and keeps a DERGO renderer in sync with it.

Only what changed since the previous frame is sent: moved objects get a
new transform, edited meshes are re-uploaded, deleted objects are removed.

Examples:
  dergo stream scene.gltf --watch
  dergo render scene.gltf -o frame.png --fit
  dergo export scene.gltf -o scene.drgc
  dergo dump scene.drgc`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(cmd.Flags())
			if err != nil {
				return err
			}
			if err := logger.Init(cfg.Logging.Level, cfg.Logging.LogFile); err != nil {
				return fmt.Errorf("logger: %w", err)
			}
			a.cfg = cfg
			logger.Sugar.Debugf("config: %+v", cfg)
			return nil
		},
		PersistentPostRun: func(*cobra.Command, []string) {
			logger.Sync()
		},
	}

	config.BindFlags(cmd.PersistentFlags())
	cmd.AddCommand(
		a.streamCmd(),
		a.renderCmd(),
		a.exportCmd(),
		a.dumpCmd(),
		a.configCmd(),
		versionCmd(),
	)
	return cmd
}
