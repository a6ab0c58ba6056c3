package main

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/urfave/cli"

	"eodcloser/internal/config"
	"eodcloser/internal/domain"
	"eodcloser/internal/store"
)

func historyCmd(c *cli.Context) error {
	cfg, err := config.Load(c.GlobalString("config"))
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	runs, err := store.NewSQLiteStore(cfg.Storage.SQLitePath)
	if err != nil {
		return fmt.Errorf("opening run store: %w", err)
	}
	defer runs.Close()

	recs, err := runs.ListRuns(context.Background(), c.Int("limit"))
	if err != nil {
		return fmt.Errorf("listing runs: %w", err)
	}
	printHistory(c.App.Writer, recs)
	return nil
}

func printHistory(w io.Writer, recs []domain.RunRecord) {
	if len(recs) == 0 {
		fmt.Fprintln(w, "no runs recorded")
		return
	}
	fmt.Fprintf(w, "%-10s %-9s %-20s %9s %9s %12s %s\n",
		"DATE", "KIND", "FIRED", "CLOSED", "CANCELLED", "PNL", "NOTIFY")
	for _, r := range recs {
		fmt.Fprintf(w, "%-10s %-9s %-20s %9s %9s %12s %s\n",
			r.LocalDate,
			r.Kind,
			r.FiredAt.Format("2006-01-02 15:04:05"),
			ratio(r.PositionsClosed, r.PositionsFailed),
			ratio(r.OrdersCancelled, r.OrdersFailed),
			pnlColumn(r),
			r.NotifyStatus)
		for _, f := range r.Failures {
			fmt.Fprintf(w, "    ! %s\n", strings.TrimSpace(f))
		}
	}
}

// ratio renders done/attempted.
func ratio(done, failed int) string {
	return fmt.Sprintf("%d/%d", done, done+failed)
}

func pnlColumn(r domain.RunRecord) string {
	if r.Kind != domain.RunKindClosing {
		return "-"
	}
	return r.RealizedPnL.StringFixed(2)
}
