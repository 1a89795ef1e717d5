// Command docindex indexes documents into a vector store and retrieves
// relevant passages from them.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/custodia-labs/sercha-docindex/internal/adapters/driving/cli"
)

// version is set at build time via -ldflags.
var version = "dev"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cli.SetVersion(version)
	// cobra has already printed the error.
	if err := cli.Execute(ctx, bootstrap); err != nil {
		stop()
		os.Exit(1)
	}
}
