// Command 5dcserver runs the matchmaking and relay server described by
// the wire protocol in pkg/wire: clients create or join matches, get
// paired through pkg/rendezvous, and have their moves relayed for the
// duration of the match.
package main

import (
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pkg/errors"
	"github.com/urfave/cli"
	"go.uber.org/zap"

	"github.com/5dchess/5dcserver/pkg/config"
	"github.com/5dchess/5dcserver/pkg/metrics"
	"github.com/5dchess/5dcserver/pkg/relay"
	"github.com/5dchess/5dcserver/pkg/state"
)

var (
	configFlag = cli.StringFlag{
		Name:  "config, c",
		Usage: "Path to the server's TOML config file",
		Value: "config.toml",
	}
	metricsFlag = cli.StringFlag{
		Name:  "metrics-addr, m",
		Usage: "Address to serve Prometheus metrics on (empty disables)",
		Value: ":9090",
	}
	debugFlag = cli.BoolFlag{
		Name:  "debug, d",
		Usage: "Enable debug-level logging",
	}
)

func main() {
	app := cli.NewApp()
	app.Name = "5dcserver"
	app.Usage = "5D Chess matchmaking and relay server"
	app.Flags = []cli.Flag{configFlag, metricsFlag, debugFlag}
	app.Action = run

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(ctx *cli.Context) error {
	path := ctx.String(configFlag.Name)
	if ctx.NArg() > 0 {
		path = ctx.Args().First()
	}
	cfg, err := config.Load(path)
	if err != nil {
		return cli.NewExitError(errors.Wrap(err, "loading config"), 1)
	}

	log, err := newLogger(ctx.Bool(debugFlag.Name) || cfg.Trace)
	if err != nil {
		return cli.NewExitError(err, 1)
	}
	defer log.Sync() //nolint:errcheck

	srv := state.New(cfg, log, elapsedSeconds())
	r := relay.New(srv, log)

	if addr := ctx.String(metricsFlag.Name); addr != "" {
		go serveMetrics(addr, log)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Info("shutdown signal received")
		srv.Shutdown()
		r.Shutdown()
	}()

	if err := r.Start(cfg.Addr, int(cfg.Port)); err != nil {
		return cli.NewExitError(errors.Wrap(err, "relay"), 1)
	}
	return nil
}

func serveMetrics(addr string, log *zap.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	log.Info("metrics listening", zap.String("addr", addr))
	if err := http.ListenAndServe(addr, mux); err != nil {
		log.Error("metrics server stopped", zap.Error(err))
	}
}

func newLogger(debug bool) (*zap.Logger, error) {
	if debug {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

// elapsedSeconds returns a clock reporting whole seconds since it was
// created, matching state.Server's message_id / history duration use.
func elapsedSeconds() func() int64 {
	start := time.Now()
	return func() int64 {
		return int64(time.Since(start).Seconds())
	}
}
