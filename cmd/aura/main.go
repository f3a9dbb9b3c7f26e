// Package main provides the CLI entry point for the Aura Mission
// Orchestrator core.
//
// Aura runs the mission state machine (Mission Log, Notification Bus, LLM
// Gateway, Tool Runner, Planner Pipeline, Conductor) described in this
// repository's specification, fronted by an HTTP/WebSocket Core API
// surface. Authentication, routing in front of that surface, and the
// vector-context service are external collaborators this binary does not
// implement.
//
// Start the server:
//
//	aura serve --config aura.yaml
//
// Install as a user service:
//
//	aura service install
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

// Build information, populated by ldflags during build.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	rootCmd := buildRootCmd()
	if err := rootCmd.Execute(); err != nil {
		slog.Error("command execution failed", "error", err)
		os.Exit(1)
	}
}

func buildRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:          "aura",
		Short:        "Aura Mission Orchestrator core",
		Long:         "Aura drives autonomous coding missions: plan, execute, retry, and replan against a sandboxed project workspace, fanning out progress over a Notification Bus.",
		Version:      fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		SilenceUsage: true,
	}

	rootCmd.AddCommand(buildServeCmd())
	return rootCmd
}
