package main

import (
	"bufio"
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/ChamsBouzaiene/toolgate/internal/config"
	"github.com/ChamsBouzaiene/toolgate/internal/server"
)

func main() {
	config.LoadDotEnv()

	fs := flag.NewFlagSet("toolgate", flag.ExitOnError)
	configPath := fs.String("config", "", "path to config.yaml (defaults to the user config directory)")
	serveAddr := fs.String("serve", "", "serve the HTTP API on this address instead of starting the REPL")
	watch := fs.Bool("watch", false, "re-sync tools when the catalog file changes")
	resume := fs.String("resume", "", "resume a saved session by ID")
	verbose := fs.Bool("verbose", false, "log every round, tool call and retry")
	_ = fs.Parse(os.Args[1:])

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM)
	defer stop()

	settings, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	env, err := prepareRuntimeEnv(ctx, settings, runtimeOptions{Watch: *watch, Verbose: *verbose})
	if err != nil {
		log.Fatalf("failed to start: %v", err)
	}
	defer env.Close()

	if *serveAddr != "" {
		ctx, stopInt := signal.NotifyContext(ctx, os.Interrupt)
		defer stopInt()
		srv := server.New(env.NewOrchestrator, env.Registry)
		if err := srv.Run(ctx, *serveAddr); err != nil {
			log.Fatalf("server failed: %v", err)
		}
		return
	}

	r, err := newREPL(env, *resume, os.Stdout)
	if err != nil {
		log.Fatalf("failed to start session: %v", err)
	}
	if err := r.Run(ctx, bufio.NewScanner(os.Stdin)); err != nil {
		log.Fatalf("command failed: %v", err)
	}
}
