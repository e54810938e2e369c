// Package main starts the dispatcher service process lifecycle.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	dispatchercmd "github.com/louisbranch/neso/internal/cmd/dispatcher"
	"github.com/louisbranch/neso/internal/platform/config"
)

func main() {
	cfg, err := dispatchercmd.ParseConfig(flag.CommandLine, os.Args[1:])
	if err != nil {
		config.Exitf("parse flags: %v", err)
	}
	log.SetPrefix("[DISPATCHER] ")
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := dispatchercmd.Run(ctx, cfg); err != nil {
		log.Fatalf("failed to serve: %v", err)
	}
}
