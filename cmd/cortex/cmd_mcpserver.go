package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"cortex/internal/mcpserver"
)

var mcpServerCwd string

var mcpServerCmd = &cobra.Command{
	Use:   "mcp-server",
	Short: "Run the tier-3 mid-session query surface over stdio",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runMCPServer(resolveCwd(mcpServerCwd))
	},
}

func init() {
	mcpServerCmd.Flags().StringVar(&mcpServerCwd, "cwd", "", "Project directory (default: current working directory)")
}

func runMCPServer(cwd string) error {
	srv, err := mcpserver.New(cwd)
	if err != nil {
		return fmt.Errorf("mcp-server: %w", err)
	}
	defer srv.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return srv.Run(ctx, os.Stdin, os.Stdout)
}
