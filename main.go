package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"claudima/internal/config"
	"claudima/internal/gatewaycore"
	"claudima/internal/logging"
)

func main() {
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "usage: %s [config-path] [--message|-m text]\n", os.Args[0])
	}
	message := flag.String("message", "", "post one synthetic system message into the engine at startup")
	flag.StringVar(message, "m", "", "shorthand for --message")
	flag.Parse()

	configPath := "claudima.json"
	if args := flag.Args(); len(args) > 0 {
		configPath = args[0]
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logging.PrintBanner()
	logging.Setup("info")

	reloadCh := config.Watch(ctx, configPath)

	// A startup message is only ever posted once, on the process's first
	// lifecycle; subsequent reload-triggered rebuilds must not replay it.
	pendingMessage := *message

	for {
		err := runGateway(ctx, configPath, pendingMessage, reloadCh)
		pendingMessage = ""

		if err != nil {
			slog.Error("gateway crashed or failed to start", "error", err)
			slog.Info("waiting 5 seconds before retrying")
			select {
			case <-ctx.Done():
				return
			case <-reloadCh:
				slog.Info("config change detected while waiting, retrying immediately")
			case <-time.After(5 * time.Second):
			}
			continue
		}

		select {
		case <-ctx.Done():
			return
		default:
			slog.Info("configuration reloaded, rebuilding gateway")
		}
	}
}

// runGateway loads config, builds and runs one Gateway lifecycle, and
// returns when ctx is cancelled (clean exit, err == nil) or a config
// reload is observed (err == nil, caller rebuilds) or the Gateway failed
// to come up (err != nil, caller backs off and retries).
func runGateway(ctx context.Context, configPath, startupMessage string, reloadCh <-chan struct{}) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	sysCfg := config.LoadSystemConfig(systemConfigPath(configPath))

	gw, err := gatewaycore.New(cfg, sysCfg).Build(ctx)
	if err != nil {
		return fmt.Errorf("failed to build gateway: %w", err)
	}

	if startupMessage != "" {
		gw.Engine.EnqueueSystemMessage(startupMessage)
	}

	runCtx, cancelRun := context.WithCancel(ctx)
	defer cancelRun()

	done := make(chan struct{})
	go func() {
		defer close(done)
		gw.Run(runCtx)
	}()

	select {
	case <-ctx.Done():
		slog.Info("received shutdown signal, stopping gateway")
		gw.Stop()
		cancelRun()
		<-done
		slog.Info("bye")
		return nil
	case <-reloadCh:
		slog.Info("config change detected, stopping gateway for rebuild")
		gw.Stop()
		cancelRun()
		<-done
		time.Sleep(time.Second)
		return nil
	case <-done:
		// Telegram's long-poll loop returned on its own (Stop() called
		// from elsewhere, or ctx was already done) — treat as a clean
		// exit rather than a crash.
		gw.Stop()
		return nil
	}
}

func systemConfigPath(configPath string) string {
	return filepath.Join(filepath.Dir(configPath), "system.json")
}
