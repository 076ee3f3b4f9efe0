package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/syntrixbase/mongofixture/internal/config"
	"github.com/syntrixbase/mongofixture/internal/logging"
	"github.com/syntrixbase/mongofixture/pkg/engine"
	"github.com/syntrixbase/mongofixture/pkg/platform"
)

// Version is the CLI version (can be overridden at build time).
var Version = "dev"

const flagConfig = "config"

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "mongofixture",
		Short:         "Launch and inspect ephemeral MongoDB engines used by test fixtures",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringP(flagConfig, "c", "", "Config file (env: MONGOFIXTURE_CONFIG, default mongofixture.yml)")

	root.AddCommand(newRunCmd())
	root.AddCommand(newPatternCmd())
	root.AddCommand(newVersionCmd())
	return root
}

func newRunCmd() *cobra.Command {
	var noReplSet bool

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Start an engine, print its connection string, and stop it on interrupt",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			path, _ := cmd.Flags().GetString(flagConfig)
			cfg, err := config.Load(path)
			if err != nil {
				return err
			}
			logger, err := logging.NewLogger(cfg.Logging)
			if err != nil {
				return err
			}
			defer logging.Shutdown()

			pattern, err := platform.Current()
			if err != nil {
				return err
			}
			opts := engine.NewOptions(cfg, pattern)
			opts.ReplicaSet = !noReplSet
			opts.Logger = logger

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			e, err := engine.Start(ctx, opts)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), e.ConnectionString())

			<-ctx.Done()
			logger.Info("Shutting down engine...")
			return e.Stop(context.Background())
		},
	}
	cmd.Flags().BoolVar(&noReplSet, "no-replset", false, "Start a standalone node instead of a single-node replica set")
	return cmd
}

func newPatternCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "pattern [goos]",
		Short: "Print the mongod search pattern for a platform (default: this one)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			goos := runtime.GOOS
			if len(args) == 1 {
				goos = args[0]
			}
			family, err := platform.FamilyOf(goos)
			if err != nil {
				return err
			}
			pattern, err := platform.BinarySearchPattern(family)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), pattern)
			return nil
		},
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "mongofixture version %s\n", Version)
		},
	}
}
