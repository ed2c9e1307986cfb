// Package main is the CLI command itself.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"go.viam.com/sensorsync/cli"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := cli.NewApp(os.Stdout).RunContext(ctx, os.Args); err != nil {
		stop()
		log.Fatal(err)
	}
}
