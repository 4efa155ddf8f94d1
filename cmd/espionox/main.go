// Package main is the entry point for the espionox CLI.
package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/voidKandy/espionox-sub001/internal/core"
	"github.com/voidKandy/espionox-sub001/pkg/app"
)

// Set by goreleaser ldflags.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd().ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "espionox",
		Short:         "Run LLM agents with pluggable memory and streaming dispatch",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			envFile, _ := cmd.Flags().GetString("env-file")
			return loadEnv(envFile)
		},
	}
	root.PersistentFlags().StringP("config", "c", "", "Path to configuration file")
	root.PersistentFlags().String("data-dir", "", "Persistent data directory")
	root.PersistentFlags().String("env-file", ".env", "Dotenv file loaded before the configuration is read")
	root.AddCommand(versionCmd(), serveCmd(), askCmd(), threadsCmd(), configCmd())
	return root
}

// loadEnv loads path into the environment. A missing file is not an error;
// variables already set win.
func loadEnv(path string) error {
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("loading %s: %w", path, err)
	}
	return nil
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version and compiled modules",
		Run: func(cmd *cobra.Command, _ []string) {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "espionox %s (commit: %s, built: %s)\n", version, commit, date)
			fmt.Fprintln(out, "\nCompiled modules:")
			for _, mod := range core.GetModules() {
				fmt.Fprintf(out, "  %s\n", mod.ID)
			}
		},
	}
}

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run all configured modules, the gateway and store maintenance",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfgPath, _ := cmd.Flags().GetString("config")
			dataDir, _ := cmd.Flags().GetString("data-dir")
			level, _ := cmd.Flags().GetString("log-level")
			return app.Run(cmd.Context(), app.RunParams{
				ConfigPath: cfgPath,
				DataDir:    dataDir,
				LogLevel:   level,
			})
		},
	}
	cmd.Flags().String("log-level", "", "Override logging.level (debug, info, warn, error)")
	return cmd
}

// buildRuntime loads the configuration and assembles a runtime that is
// not started.
func buildRuntime(cmd *cobra.Command) (*app.Runtime, error) {
	cfgPath, _ := cmd.Flags().GetString("config")
	dataDir, _ := cmd.Flags().GetString("data-dir")
	cfg, err := app.LoadConfig(cfgPath)
	if err != nil {
		return nil, err
	}
	return app.Build(cmd.Context(), cfg, app.Options{DataDir: dataDir})
}

func askCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ask <prompt>",
		Short: "Send one prompt to an agent and stream the reply",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name, _ := cmd.Flags().GetString("agent")
			rt, err := buildRuntime(cmd)
			if err != nil {
				return err
			}
			defer rt.Close()
			return ask(cmd.Context(), rt, name, args[0], cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringP("agent", "a", "", "Agent name (defaults to the first configured agent)")
	return cmd
}

func threadsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "threads",
		Short: "List the thread names persisted in a store",
		RunE: func(cmd *cobra.Command, _ []string) error {
			storeID, _ := cmd.Flags().GetString("store")
			rt, err := buildRuntime(cmd)
			if err != nil {
				return err
			}
			defer rt.Close()
			return listThreads(cmd.Context(), rt, storeID, cmd.OutOrStdout())
		},
	}
	cmd.Flags().String("store", "memory.sqlite", "Store module ID")
	return cmd
}

func configCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Configuration management",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "check <path>",
		Short: "Validate configuration and provision every module",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dataDir, _ := cmd.Flags().GetString("data-dir")
			cfg, err := app.LoadConfig(args[0])
			if err != nil {
				return err
			}
			rt, err := app.Build(cmd.Context(), cfg, app.Options{DataDir: dataDir})
			if err != nil {
				return err
			}
			defer rt.Close()
			return printCheck(rt, cmd.OutOrStdout())
		},
	})
	return cmd
}
