// Command sfdump exports Salesforce files to a verifiable local archive.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/ksteptoe/sfdump/internal/adapters/driving/cli"
)

// version is injected with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	cli.SetVersion(version)
	code := cli.Execute(ctx)
	stop()
	os.Exit(code)
}
