package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	contactscmd "github.com/walletbook/walletbook/internal/cmd/contacts"
)

func main() {
	cfg, err := contactscmd.ParseConfig(flag.CommandLine, os.Args[1:])
	if err != nil {
		log.Fatalf("parse flags: %v", err)
	}
	log.SetPrefix("[CONTACTS] ")
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := contactscmd.Run(ctx, cfg); err != nil {
		log.Fatalf("failed to serve: %v", err)
	}
}
