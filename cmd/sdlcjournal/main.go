// Command sdlcjournal is the terminal front end of the encrypted journal.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/peoplesafe/sdlcjournal/internal/mcp"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	rootCmd.Version = version
	mcp.Version = version

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()

	// Pending autosaves are written before exit.
	if j != nil {
		_ = j.Close()
	}
	if err != nil {
		os.Exit(1)
	}
}
