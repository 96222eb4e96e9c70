// Command classy-sync replicates a remote class catalog into a local SQLite
// database.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/Pjt727/classy-sync/internal/cli"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := cli.Execute(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}
