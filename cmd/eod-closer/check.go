package main

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/urfave/cli"

	"eodcloser/internal/config"
	"eodcloser/internal/schedule"
	"eodcloser/internal/util"
)

func checkCmd(c *cli.Context) error {
	cfg, err := config.Load(c.GlobalString("config"))
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	logger := util.NewLogger(cfg.Logging.Level, "text", os.Stderr)
	sched, err := schedule.New(cfg.ScheduleConfig(), logger)
	if err != nil {
		return err
	}
	printCheck(c.App.Writer, cfg, sched, time.Now())
	return nil
}

func printCheck(w io.Writer, cfg *config.Config, sched *schedule.Scheduler, now time.Time) {
	alert := sched.NextAlert(now)
	closing := sched.NextClosing(now)
	const layout = "2006-01-02 15:04:05 MST"

	fmt.Fprintln(w, "configuration OK")
	fmt.Fprintf(w, "  timezone:    %s\n", sched.Location())
	fmt.Fprintf(w, "  window:      %s\n", sched.Width())
	fmt.Fprintf(w, "  broker:      %s\n", cfg.Trading.Broker)
	fmt.Fprintf(w, "  tick source: %s\n", cfg.Schedule.TickSource)
	fmt.Fprintf(w, "  telegram:    %t\n", cfg.Telegram.Enabled)
	fmt.Fprintf(w, "  next alert:  %s (%s)\n", alert.Format(layout), alert.UTC().Format(layout))
	fmt.Fprintf(w, "  next close:  %s (%s)\n", closing.Format(layout), closing.UTC().Format(layout))
}
