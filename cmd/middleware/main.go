// Command middleware runs the cartesi-drand middleware: it sits between
// the rollup host and the application dapp, verifying drand beacons fed in
// as inputs and serving salted randomness on demand.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	cli "github.com/urfave/cli/v2"

	"github.com/Calindra/cartesi-drand/common/log"
	"github.com/Calindra/cartesi-drand/config"
	"github.com/Calindra/cartesi-drand/crypto"
	"github.com/Calindra/cartesi-drand/httpapi"
	"github.com/Calindra/cartesi-drand/metrics"
	"github.com/Calindra/cartesi-drand/rollupio"
	"github.com/Calindra/cartesi-drand/state"
)

var (
	version   = "dev"
	gitCommit = "none"
	buildDate = "unknown"
)

func main() {
	app := &cli.App{
		Name:    "cartesi-drand-middleware",
		Version: version,
		Usage:   "drand beacon verifier and randomness gate for a Cartesi rollup",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "http-bind",
				Usage:   "address the middleware's own HTTP API listens on",
				Value:   "0.0.0.0:8080",
				EnvVars: []string{"MIDDLEWARE_HTTP_BIND"},
			},
			&cli.StringFlag{
				Name:    "metrics-bind",
				Usage:   "address the Prometheus /metrics endpoint listens on (empty disables it)",
				EnvVars: []string{"MIDDLEWARE_METRICS_BIND"},
			},
			&cli.StringFlag{
				Name:    "rollup-http-server-url",
				Usage:   "base URL of the Cartesi rollup HTTP server",
				EnvVars: []string{"ROLLUP_HTTP_SERVER_URL"},
			},
			&cli.StringFlag{
				Name:    "config-path",
				Usage:   "path to the persisted drand.config.json",
				Value:   "./drand.config.json",
				EnvVars: []string{"DRAND_CONFIG_PATH"},
			},
			&cli.StringFlag{
				Name:    "drand-public-key",
				Usage:   "hex-encoded BLS public key of the drand chain being followed",
				EnvVars: []string{"DRAND_PUBLIC_KEY"},
			},
			&cli.Uint64Flag{
				Name:    "drand-period",
				Usage:   "seconds between drand rounds",
				EnvVars: []string{"DRAND_PERIOD"},
			},
			&cli.Uint64Flag{
				Name:    "drand-genesis-time",
				Usage:   "unix timestamp of round 0",
				EnvVars: []string{"DRAND_GENESIS_TIME"},
			},
			&cli.Uint64Flag{
				Name:    "drand-safe-seconds",
				Usage:   "margin added to a randomness query before a beacon is considered fresh enough",
				Value:   5,
				EnvVars: []string{"DRAND_SAFE_SECONDS"},
			},
			&cli.StringFlag{
				Name:    "config-owner",
				Usage:   "lowercase hex address allowed to call PUT /update_drand_config (empty disables the check)",
				EnvVars: []string{"ADDRESS_OWNER_GAME"},
			},
			&cli.DurationFlag{
				Name:    "poll-backoff",
				Usage:   "how long the middleware's own background finish poller waits before re-polling the rollup host when idle",
				Value:   time.Second,
				EnvVars: []string{"MIDDLEWARE_POLL_BACKOFF"},
			},
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "log level: debug, info, warn, or error",
				Value:   "info",
				EnvVars: []string{"MIDDLEWARE_LOG_LEVEL"},
			},
			&cli.BoolFlag{
				Name:    "log-json",
				Usage:   "log in JSON instead of console-formatted lines",
				Value:   true,
				EnvVars: []string{"MIDDLEWARE_LOG_JSON"},
			},
		},
		Action: run,
	}
	cli.VersionPrinter = func(c *cli.Context) {
		fmt.Printf("cartesi-drand-middleware %s (date %s, commit %s)\n", version, buildDate, gitCommit)
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "error: %+v\n", err)
		os.Exit(1)
	}
}

// loadConfig builds the initial AppConfig by starting from whatever is
// already on disk at configPath, then letting any env-sourced CLI flag
// override individual fields — the boot-time hot-reload-then-override
// sequence the config layer is built around.
func loadConfig(c *cli.Context, configPath string) (config.AppConfig, error) {
	cfg := config.AppConfig{
		SafeSeconds: c.Uint64("drand-safe-seconds"),
	}

	if persisted, found, err := config.LoadFromFile(configPath); err != nil {
		return cfg, fmt.Errorf("loading %s: %w", configPath, err)
	} else if found {
		cfg = *persisted
	}

	if v := c.String("drand-public-key"); v != "" {
		cfg.DrandPublicKey = v
	}
	if v := c.Uint64("drand-period"); v != 0 {
		cfg.DrandPeriod = v
	}
	if v := c.Uint64("drand-genesis-time"); v != 0 {
		cfg.DrandGenesisTime = v
	}
	if c.IsSet("drand-safe-seconds") {
		cfg.SafeSeconds = c.Uint64("drand-safe-seconds")
	}

	return cfg, cfg.Validate()
}

func run(c *cli.Context) error {
	logger := log.New(os.Stdout, log.ParseLevel(c.String("log-level")), c.Bool("log-json"))

	cfg, err := loadConfig(c, c.String("config-path"))
	if err != nil {
		return fmt.Errorf("loading drand config: %w", err)
	}

	manager, err := state.NewManager(cfg, crypto.NewVerifier(), logger)
	if err != nil {
		return fmt.Errorf("building state manager: %w", err)
	}

	if metricsBind := c.String("metrics-bind"); metricsBind != "" {
		ln := metrics.Start(metricsBind)
		if ln != nil {
			defer ln.Close()
		}
	}

	rollup := rollupio.NewClient(c.String("rollup-http-server-url"), logger)
	server := httpapi.NewServer(manager, rollup, c.String("config-path"), c.String("config-owner"), logger)
	httpServer := &http.Server{
		Addr:    c.String("http-bind"),
		Handler: server.Router(),
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// The middleware runs its own Rollup I/O Driver against the rollup host,
	// independently of the application's polling cadence against this
	// process's own /finish: it verifies and stores beacons and fills the
	// Input Buffer Manager's queue as soon as inputs are available, rather
	// than only on-demand when an application poll happens to find the
	// queue empty.
	poller := rollupio.NewDriver(rollup, c.Duration("poll-backoff"), logger)
	go poller.RunLoop(ctx, server.PollDispatch)

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = httpServer.Shutdown(shutdownCtx)
	}()

	logger.Infow("middleware listening", "addr", c.String("http-bind"))
	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("http server: %w", err)
	}
	return nil
}
