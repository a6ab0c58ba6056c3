package main

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/urfave/cli"

	"eodcloser/internal/config"
	"eodcloser/pkg/eodcloser"
)

func statusCmd(c *cli.Context) error {
	addr := c.String("addr")
	if addr == "" {
		cfg, err := config.Load(c.GlobalString("config"))
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}
		addr = "http://" + hostPort(cfg.Server.Host, cfg.Server.Port)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client := eodcloser.NewClient(addr)
	if err := client.Health(ctx); err != nil {
		return err
	}
	s, err := client.Status(ctx)
	if err != nil {
		return err
	}
	printStatus(c.App.Writer, s)
	return nil
}

func printStatus(w io.Writer, s *eodcloser.Status) {
	fmt.Fprintf(w, "phase %s on %s (%s)\n", s.Phase, s.Date, s.Timezone)
	fmt.Fprintf(w, "  pre-alert fired: %t\n", s.PreAlertFired)
	fmt.Fprintf(w, "  closing fired:   %t\n", s.ClosingFired)
	fmt.Fprintf(w, "  next alert:      %s\n", s.NextAlert.Format(time.RFC3339))
	fmt.Fprintf(w, "  next close:      %s\n", s.NextClose.Format(time.RFC3339))
	fmt.Fprintf(w, "  ticks:           %d (last %s)\n", s.Ticks, s.LastTick.Format(time.RFC3339))

	r := s.LastRun
	if r == nil {
		fmt.Fprintln(w, "  last run:        none")
		return
	}
	fmt.Fprintf(w, "  last run:        %s %s at %s, notify %s\n",
		r.Kind, r.LocalDate, r.FiredAt.Format(time.RFC3339), r.NotifyStatus)
	if r.Kind == "closing" {
		fmt.Fprintf(w, "    closed %d/%d, cancelled %d/%d, pnl %s\n",
			r.PositionsClosed, r.PositionsClosed+r.PositionsFailed,
			r.OrdersCancelled, r.OrdersCancelled+r.OrdersFailed, r.RealizedPnL)
	}
	for _, f := range r.Failures {
		fmt.Fprintf(w, "    ! %s\n", f)
	}
}
