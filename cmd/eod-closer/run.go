package main

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/urfave/cli"
	"golang.org/x/sync/errgroup"

	"eodcloser/internal/api"
	"eodcloser/internal/broker"
	"eodcloser/internal/config"
	"eodcloser/internal/engine"
	"eodcloser/internal/metrics"
	"eodcloser/internal/notify"
	"eodcloser/internal/runner"
	"eodcloser/internal/schedule"
	"eodcloser/internal/store"
	"eodcloser/internal/util"
)

func runCmd(c *cli.Context) error {
	cfg, err := config.Load(c.GlobalString("config"))
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger := util.NewLogger(cfg.Logging.Level, cfg.Logging.Format, os.Stdout)
	util.SetDefault(logger)

	sched, err := schedule.New(cfg.ScheduleConfig(), logger)
	if err != nil {
		return fmt.Errorf("building schedule: %w", err)
	}

	b := newBroker(cfg)
	messenger, err := newMessenger(cfg, logger)
	if err != nil {
		return err
	}

	runs, err := store.NewSQLiteStore(cfg.Storage.SQLitePath)
	if err != nil {
		return fmt.Errorf("opening run store: %w", err)
	}
	defer runs.Close()

	met := metrics.New()
	eng := engine.NewEngine(b, messenger, runs, sched, met, logger, cfg.Logging.Verbose)
	r := runner.New(sched, eng, met, cfg.Schedule.DispatchTimeout, logger)
	src := newSource(cfg, sched, logger)

	srv := api.NewServer(
		hostPort(cfg.Server.Host, cfg.Server.Port),
		grpcAddr(cfg.Server),
		r, met.Handler(), logger,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info("starting eod-closer",
		"version", version,
		"broker", b.Name(),
		"tick_source", src.Name(),
		"timezone", sched.Location().String(),
		"next_alert", sched.NextAlert(time.Now()),
		"next_close", sched.NextClosing(time.Now()))

	ticks := make(chan time.Time, 1)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return r.Run(gctx, ticks) })
	g.Go(func() error { return src.Run(gctx, ticks) })
	g.Go(func() error { return srv.ListenAndServe(gctx) })

	err = g.Wait()
	logger.Info("eod-closer stopped")
	return err
}

func newBroker(cfg *config.Config) broker.Broker {
	if cfg.Trading.Broker == "simulator" {
		return broker.NewSimulatorBroker()
	}
	return broker.NewAlpacaBroker(cfg.Alpaca.APIKey, cfg.Alpaca.APISecret, cfg.Alpaca.BaseURL, cfg.Alpaca.RateLimitPerMin)
}

func newMessenger(cfg *config.Config, logger *slog.Logger) (notify.Messenger, error) {
	if !cfg.Telegram.Enabled {
		return notify.NewNopMessenger(logger), nil
	}
	m, err := notify.NewTelegramMessenger(cfg.Telegram.Token, cfg.Telegram.APIURL, cfg.Telegram.ChatID, logger)
	if err != nil {
		return nil, fmt.Errorf("creating telegram messenger: %w", err)
	}
	return m, nil
}

func newSource(cfg *config.Config, sched *schedule.Scheduler, logger *slog.Logger) runner.Source {
	if cfg.Schedule.TickSource == "bars" {
		return runner.NewBarSource(cfg.Alpaca.APIKey, cfg.Alpaca.APISecret, cfg.Alpaca.StreamURL,
			cfg.Alpaca.Feed, cfg.Schedule.BarSymbols, logger)
	}
	return runner.NewCronSource(cfg.Schedule.TickInterval, sched.Location(), logger)
}

func hostPort(host string, port int) string {
	return net.JoinHostPort(host, strconv.Itoa(port))
}

func grpcAddr(s config.Server) string {
	if s.GRPCPort == 0 {
		return ""
	}
	return hostPort(s.Host, s.GRPCPort)
}
