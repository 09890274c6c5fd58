// Package main starts the event registration service and handles termination.
//
// The process is a transport adapter around the registration, approval, and
// attendance lifecycle; clients subscribe to change streams over WebSocket.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	eventscmd "github.com/gatherpoint/gatherpoint/internal/cmd/events"
)

func main() {
	cfg, err := eventscmd.ParseConfig(flag.CommandLine, os.Args[1:])
	if err != nil {
		log.Fatalf("parse flags: %v", err)
	}
	log.SetPrefix("[EVENTS] ")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := eventscmd.Run(ctx, cfg); err != nil {
		log.Fatalf("failed to serve: %v", err)
	}
}
