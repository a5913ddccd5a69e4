package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Version information set at build time.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "fiard",
		Short: "Five-in-a-row game server",
		Long: `fiard hosts live five-in-a-row games over WebSocket.

It keeps the authoritative board and turn state for every game,
grows the board as play approaches an edge, persists games and
move history to SQLite, and synchronizes two remote players in
real time.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(
		serveCmd(),
		versionCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}
