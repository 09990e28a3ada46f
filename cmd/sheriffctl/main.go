// Command sheriffctl is a minimal launcher for a Sheriff (spec.md §6): it
// wires a RedisBus and OpenTelemetry tracer, optionally loads a YAML
// configuration file, and then either runs one named script to completion
// and exits, or drives the reconciliation loop until interrupted. It is peripheral
// to the reconciliation engine and script interpreter themselves, which
// live entirely in core and script.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fleetsheriff/sheriff/bus"
	"github.com/fleetsheriff/sheriff/configfile"
	"github.com/fleetsheriff/sheriff/core"
	"github.com/fleetsheriff/sheriff/script"
	"github.com/fleetsheriff/sheriff/telemetry"
)

const usage = `sheriffctl [-h] [config_file [script_name]]

  config_file   YAML file describing commands, groups, and scripts
                (see configfile package). Loaded with merge_with_existing=false.
  script_name   If given, run this script to completion and exit non-zero
                on preflight or execution errors; otherwise the sheriff
                stays up and reconciles indefinitely.

Environment:
  SHERIFF_REDIS_URL       Redis connection URL (required), e.g. redis://localhost:6379/0
  SHERIFF_NAME            Display name broadcast on orders frames (default "sheriff")
  SHERIFF_OBSERVER        "true" to start in observer mode
  SHERIFF_ORDERS_INTERVAL Go duration string for the orders-broadcast tick (default "1s")
  SHERIFF_OTLP_ENDPOINT   OTLP/gRPC collector endpoint; stdout tracing if unset
  SHERIFF_LOG_FORMAT      "json" or "text" (default "text")
  SHERIFF_DEBUG           "true" to enable debug-level logging
`

func main() {
	help := flag.Bool("h", false, "print usage")
	flag.BoolVar(help, "help", false, "print usage")
	flag.Usage = func() { fmt.Fprint(os.Stderr, usage) }
	flag.Parse()

	if *help {
		fmt.Fprint(os.Stdout, usage)
		return
	}

	if err := run(flag.Args()); err != nil {
		fmt.Fprintln(os.Stderr, "sheriffctl:", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	var configPath, scriptName string
	if len(args) > 0 {
		configPath = args[0]
	}
	if len(args) > 1 {
		scriptName = args[1]
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()

	logger := core.NewProductionLogger(
		envOr("SHERIFF_NAME", "sheriff"),
		envOr("SHERIFF_LOG_FORMAT", "text"),
		envOr("SHERIFF_DEBUG", "") == "true",
		os.Stdout,
	)

	redisURL := os.Getenv("SHERIFF_REDIS_URL")
	if redisURL == "" {
		return fmt.Errorf("SHERIFF_REDIS_URL is required")
	}
	redisBus, err := bus.NewRedisBus(bus.Options{RedisURL: redisURL, Logger: logger})
	if err != nil {
		return fmt.Errorf("connecting to bus: %w", err)
	}
	defer redisBus.Close()

	tracer, err := telemetry.NewProvider(ctx, envOr("SHERIFF_NAME", "sheriff"))
	if err != nil {
		logger.Warn("telemetry disabled", map[string]interface{}{"error": err.Error()})
	} else {
		defer tracer.Shutdown(context.Background())
	}

	opts := []core.Option{
		core.WithName(envOr("SHERIFF_NAME", "sheriff")),
		core.WithBus(redisBus),
		core.WithLogger(logger),
	}
	if tracer != nil {
		opts = append(opts, core.WithTracer(tracer))
	}
	if envOr("SHERIFF_OBSERVER", "") == "true" {
		opts = append(opts, core.WithObserverMode(true))
	}
	if v := os.Getenv("SHERIFF_ORDERS_INTERVAL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid SHERIFF_ORDERS_INTERVAL: %w", err)
		}
		opts = append(opts, core.WithOrdersInterval(d))
	}

	sheriff, err := core.NewSheriff(opts...)
	if err != nil {
		return fmt.Errorf("constructing sheriff: %w", err)
	}

	if configPath != "" {
		tree, err := configfile.Load(configPath)
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}
		if err := sheriff.LoadConfig(tree, false); err != nil {
			return fmt.Errorf("applying config: %w", err)
		}
	}

	if scriptName != "" {
		return runScriptToCompletion(ctx, sheriff, scriptName)
	}

	logger.Info("sheriff starting", map[string]interface{}{"identity": sheriff.Identity()})
	return sheriff.Run(ctx)
}

// runScriptToCompletion executes one script and exits, per spec.md §6
// ("on script_name, the sheriff executes the named script after loading
// and exits non-zero if errors are returned"). Info frames still have to
// be merged and orders broadcast while the script runs, so the script's
// wait_status conditions can ever be satisfied; this function does that
// work itself, interleaved with engine ticks, and stops once the script
// finishes.
func runScriptToCompletion(ctx context.Context, sheriff *core.Sheriff, scriptName string) error {
	// Everything below runs on this one goroutine: info frames are merged,
	// orders broadcast, and the script engine ticked from the same select
	// loop, honoring Sheriff.Run's documented single-threaded contract
	// (spec.md §5) rather than driving HandleInfoFrame and the script
	// engine's mutators from two goroutines at once.
	infoCh, err := sheriff.Config().Bus.SubscribeInfo(ctx)
	if err != nil {
		return fmt.Errorf("subscribing to info frames: %w", err)
	}

	engine := script.NewEngine(sheriff)

	finished := false
	sheriff.Events().On(core.EventScriptFinished, func(args ...interface{}) {
		if len(args) > 0 && args[0] == scriptName {
			finished = true
		}
	})

	if err := engine.ExecuteScript(scriptName); err != nil {
		return err
	}
	if finished {
		return nil
	}

	ordersTicker := time.NewTicker(sheriff.Config().OrdersInterval)
	defer ordersTicker.Stop()
	engineTicker := time.NewTicker(50 * time.Millisecond)
	defer engineTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case frame, ok := <-infoCh:
			if !ok {
				return fmt.Errorf("info subscription closed before script %q finished", scriptName)
			}
			if err := sheriff.HandleInfoFrame(frame); err != nil {
				return err
			}

		case <-ordersTicker.C:
			if sheriff.IsObserver() {
				continue
			}
			if err := sheriff.SendOrders(); err != nil {
				return err
			}

		case <-engineTicker.C:
			if err := engine.Tick(sheriff.Now()); err != nil {
				return err
			}
			if finished {
				return nil
			}
		}
	}
}

func envOr(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok {
		return v
	}
	return fallback
}
