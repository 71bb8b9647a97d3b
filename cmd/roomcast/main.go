package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"roomcast/internal/app"
	"roomcast/internal/dispatch"
)

func main() {
	var (
		cfgPath string
		dryRun  bool
	)
	flag.StringVar(&cfgPath, "config", "./config.yaml", "path to config (yaml or json)")
	flag.BoolVar(&dryRun, "dry-run", false, "accept every message without contacting the room")
	flag.Parse()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigs)

	var opts []app.Option
	if dryRun {
		opts = append(opts, app.WithDeliverer(dispatch.DelivererFunc(func(context.Context, string, string, string, string) error {
			return nil
		})))
	}

	a, err := app.NewApp(cfgPath, opts...)
	if err != nil {
		fmt.Fprintln(os.Stderr, "fatal:", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := a.Start(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "fatal start:", err)
		stopCtx, stopCancel := context.WithTimeout(context.Background(), 5*time.Second)
		_ = a.Stop(stopCtx, app.StopFatalError)
		stopCancel()
		os.Exit(1)
	}

	reason := app.StopUnknown
	select {
	case sig := <-sigs:
		if sig == syscall.SIGTERM {
			reason = app.StopSIGTERM
		} else {
			reason = app.StopSIGINT
		}
	case <-a.Done():
		reason = app.StopFatalError
	}

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 10*time.Second)
	_ = a.Stop(stopCtx, reason)
	stopCancel()

	if reason == app.StopFatalError {
		if err := a.Err(); err != nil {
			fmt.Fprintln(os.Stderr, "fatal:", err)
		}
		os.Exit(1)
	}
}
