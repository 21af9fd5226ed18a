package main

import (
	"context"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"
)

func init() {
	// Diagnostics are written explicitly to stderr, nothing logs through the
	// standard logger.
	log.SetOutput(io.Discard)
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGHUP, syscall.SIGINT, syscall.SIGTERM)
	code := root(ctx, os.Args[1:]...)
	cancel()
	os.Exit(code)
}
