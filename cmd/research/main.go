package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"deepresearch/internal/cli"
	"deepresearch/internal/config"
	"deepresearch/internal/engine"
)

func main() {
	cfg := config.Load()

	if cfg.OpenRouterAPIKey == "" {
		fmt.Fprintln(os.Stderr, "Error: OPENROUTER_API_KEY environment variable not set")
		os.Exit(1)
	}
	if cfg.BraveAPIKey == "" {
		fmt.Fprintln(os.Stderr, "Error: BRAVE_API_KEY environment variable not set")
		os.Exit(1)
	}

	eng, err := engine.New(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error creating engine: %v\n", err)
		os.Exit(1)
	}
	defer eng.Shutdown()

	shell, err := cli.New(eng, filepath.Join(cfg.MemoryDir, "history"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error creating shell: %v\n", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()

	if err := shell.Run(ctx); err != nil && err != context.Canceled {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
