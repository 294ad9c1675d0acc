// Command blackjack runs the blackjack dapp: it drives the generic Cartesi
// rollup loop, dispatching advance inputs into table/player actions and
// drawing cards using randomness sourced from the cartesi-drand middleware.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	cli "github.com/urfave/cli/v2"

	"github.com/Calindra/cartesi-drand/app"
	"github.com/Calindra/cartesi-drand/common/log"
	"github.com/Calindra/cartesi-drand/game"
	"github.com/Calindra/cartesi-drand/rollupio"
)

var (
	version   = "dev"
	gitCommit = "none"
	buildDate = "unknown"
)

func main() {
	cliApp := &cli.App{
		Name:    "blackjack-dapp",
		Version: version,
		Usage:   "Cartesi blackjack dapp backed by cartesi-drand randomness",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "rollup-http-server-url",
				Usage:    "base URL of the Cartesi rollup HTTP server",
				EnvVars:  []string{"ROLLUP_HTTP_SERVER_URL"},
				Required: true,
			},
			&cli.StringFlag{
				Name:     "middleware-http-server-url",
				Usage:    "base URL of the cartesi-drand middleware's HTTP API",
				EnvVars:  []string{"MIDDLEWARE_HTTP_SERVER_URL"},
				Required: true,
			},
			&cli.StringFlag{
				Name:    "address-owner-game",
				Usage:   "lowercase hex address allowed to call update_drand",
				EnvVars: []string{"ADDRESS_OWNER_GAME"},
			},
			&cli.StringFlag{
				Name:    "data-dir",
				Usage:   "directory where player registrations are persisted",
				Value:   "./data",
				EnvVars: []string{"BLACKJACK_DATA_DIR"},
			},
			&cli.IntFlag{
				Name:    "lobby-count",
				Usage:   "number of fixed lobbies seeded at boot",
				Value:   5,
				EnvVars: []string{"BLACKJACK_LOBBY_COUNT"},
			},
			&cli.DurationFlag{
				Name:    "poll-backoff",
				Usage:   "how long to wait before re-polling the middleware's /finish when idle or unreachable",
				Value:   time.Second,
				EnvVars: []string{"BLACKJACK_POLL_BACKOFF"},
			},
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "log level: debug, info, warn, or error",
				Value:   "info",
				EnvVars: []string{"BLACKJACK_LOG_LEVEL"},
			},
			&cli.BoolFlag{
				Name:    "log-json",
				Usage:   "log in JSON instead of console-formatted lines",
				Value:   true,
				EnvVars: []string{"BLACKJACK_LOG_JSON"},
			},
		},
		Action: run,
	}
	cli.VersionPrinter = func(c *cli.Context) {
		fmt.Printf("blackjack-dapp %s (date %s, commit %s)\n", version, buildDate, gitCommit)
	}

	if err := cliApp.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "error: %+v\n", err)
		os.Exit(1)
	}
}

func run(c *cli.Context) error {
	logger := log.New(os.Stdout, log.ParseLevel(c.String("log-level")), c.Bool("log-json"))

	manager := game.NewManagerWithGames(c.Int("lobby-count"))
	store := app.NewStore(c.String("data-dir"))
	middleware := app.NewMiddlewareClient(c.String("middleware-http-server-url"))

	// host is used only to report/notice results back to the rollup host
	// (the original's send_report/send_notice read ROLLUP_HTTP_SERVER_URL);
	// the poll loop itself drains the middleware's own /finish, never the
	// host's.
	host := rollupio.NewClient(c.String("rollup-http-server-url"), logger)
	middlewareFinish := rollupio.NewClient(c.String("middleware-http-server-url"), logger)

	handlers := app.NewHandlers(manager, store, middleware, host, c.String("address-owner-game"), logger)
	driver := rollupio.NewDriver(middlewareFinish, c.Duration("poll-backoff"), logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Infow("blackjack dapp running", "rollup", c.String("rollup-http-server-url"), "middleware", c.String("middleware-http-server-url"))
	driver.RunLoop(ctx, handlers.Dispatch)
	return nil
}
