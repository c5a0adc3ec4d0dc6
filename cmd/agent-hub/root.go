package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var flags struct {
	dataDir         string
	configFile      string
	host            string
	port            int
	cleanStart      bool
	logLevel        string
	noFrontendBuild bool
}

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "agent-hub",
		Short: "Agent Hub orchestrates containerized coding-agent chats over a single HTTP facade",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run()
		},
	}

	cmd.Flags().StringVar(&flags.dataDir, "data-dir", "", "directory the hub persists its state and logs under")
	cmd.Flags().StringVar(&flags.configFile, "config-file", "", "path to an optional config.yaml")
	cmd.Flags().StringVar(&flags.host, "host", "", "HTTP bind host")
	cmd.Flags().IntVar(&flags.port, "port", 0, "HTTP bind port")
	cmd.Flags().BoolVar(&flags.cleanStart, "clean-start", false, "wipe chats/projects/logs and reset every project's snapshot build to pending before serving")
	cmd.Flags().StringVar(&flags.logLevel, "log-level", "", "log level (debug, info, warn, error)")
	cmd.Flags().BoolVar(&flags.noFrontendBuild, "no-frontend-build", false, "skip serving the built frontend bundle")

	return cmd
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
