// Package main is the entry point for the tickclaw CLI.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/flemzord/tickclaw/pkg/app"
	"github.com/spf13/cobra"
)

// Set by goreleaser ldflags.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "tickclaw",
		Short:         "Run an AI coding agent on a heartbeat and cron schedule for a project",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringP("project", "p", "", "Project directory (defaults to the working directory)")
	root.AddCommand(
		versionCmd(),
		startCmd(),
		statusCmd(),
		jobsCmd(),
		checkCmd(),
		resetSessionCmd(),
	)
	return root
}

func projectDir(cmd *cobra.Command) (string, error) {
	flag, _ := cmd.Flags().GetString("project")
	return app.ResolveProjectDir(flag)
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "tickclaw %s (commit: %s, built: %s)\n", version, commit, date)
		},
	}
}

func startCmd() *cobra.Command {
	var (
		replace  bool
		logLevel string
	)
	cmd := &cobra.Command{
		Use:   "start",
		Short: "Run the daemon in the foreground",
		RunE: func(cmd *cobra.Command, _ []string) error {
			dir, err := projectDir(cmd)
			if err != nil {
				return err
			}
			level, err := parseLogLevel(logLevel)
			if err != nil {
				return err
			}
			return app.Run(context.Background(), app.RunParams{
				ProjectDir: dir,
				Version:    version,
				Commit:     commit,
				Date:       date,
				LogLevel:   level,
				LogOutput:  cmd.ErrOrStderr(),
				Replace:    replace,
			})
		},
	}
	cmd.Flags().BoolVar(&replace, "replace", false, "Stop a daemon already running for this project and take over")
	cmd.Flags().StringVar(&logLevel, "log-level", "info", "Log level: debug, info, warn, error")
	return cmd
}

func parseLogLevel(s string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.ToUpper(s))); err != nil {
		return 0, fmt.Errorf("invalid --log-level %q", s)
	}
	return level, nil
}
