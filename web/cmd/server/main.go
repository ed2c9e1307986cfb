// Package main runs the sensorsync HTTP API.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/edaniels/golog"

	"go.viam.com/sensorsync/web/server"
)

var logger = golog.NewDevelopmentLogger("server")

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := server.RunServer(ctx, os.Args, logger); err != nil {
		logger.Fatal(err)
	}
}
