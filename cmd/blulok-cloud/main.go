package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/skatamatic/blulok-cloud/internal/app"
	"github.com/skatamatic/blulok-cloud/internal/config"
	"github.com/skatamatic/blulok-cloud/internal/signing"
)

func main() {
	mode := flag.String("mode", "", "run mode: api or worker (overrides BLULOK_MODE)")
	genKeypair := flag.Bool("gen-keypair", false, "print a new operator Ed25519 keypair and exit")
	flag.Parse()

	if *genKeypair {
		pub, priv, err := signing.GenerateKeypair()
		if err != nil {
			fmt.Fprintf(os.Stderr, "error: generating keypair: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("OPERATOR_PUBLIC_KEY_B64=%s\nOPERATOR_PRIVATE_KEY_B64=%s\n", pub, priv)
		return
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: loading config: %v\n", err)
		os.Exit(1)
	}

	// CLI flag overrides env var.
	if *mode != "" {
		cfg.Mode = *mode
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := app.Run(ctx, cfg); err != nil {
		slog.Error("fatal", "error", err)
		os.Exit(1)
	}
}
