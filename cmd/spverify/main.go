// Command spverify runs browser verification scenarios against the service
// provider dashboard and portal.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/kuitang/spverify/internal/cli"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := cli.Execute(ctx, os.Args[1:], os.Stdout, os.Stderr, cli.DefaultDeps())
	stop()
	os.Exit(code)
}
