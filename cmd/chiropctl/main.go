package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/grid5000/chiropctl/pkg/cli"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	code := cli.Run(ctx, os.Args)
	stop()
	os.Exit(code)
}
