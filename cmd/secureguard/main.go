package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"secureguard-lab/internal/cli"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := cli.Execute(ctx)
	stop()
	cli.ExitOnError(os.Stderr, err)
}
