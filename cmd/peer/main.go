package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	peercmd "github.com/jabolina/go-rollback/internal/cmd/peer"
)

func main() {
	cfg, err := peercmd.ParseConfig(flag.CommandLine, os.Args[1:])
	if err != nil {
		log.Fatalf("parse flags: %v", err)
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := peercmd.Run(ctx, cfg); err != nil {
		log.Fatalf("session failed: %v", err)
	}
}
