package main

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"eodcloser/internal/config"
	"eodcloser/internal/domain"
	"eodcloser/internal/schedule"
)

func TestPrintCheck(t *testing.T) {
	cfg := &config.Config{}
	cfg.Trading.Broker = "simulator"
	cfg.Schedule.TickSource = "cron"
	sched, err := schedule.New(schedule.Config{Timezone: "America/New_York", CloseHour: 15, CloseMinute: 50, LeadMinutes: 10}, nil)
	if err != nil {
		t.Fatalf("schedule.New: %v", err)
	}

	var buf bytes.Buffer
	printCheck(&buf, cfg, sched, time.Date(2024, 7, 1, 12, 0, 0, 0, time.UTC))
	out := buf.String()
	for _, want := range []string{
		"timezone:    America/New_York",
		"next alert:  2024-07-01 15:40:00 EDT (2024-07-01 19:40:00 UTC)",
		"next close:  2024-07-01 15:50:00 EDT (2024-07-01 19:50:00 UTC)",
		"broker:      simulator",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestPrintHistory(t *testing.T) {
	var buf bytes.Buffer
	printHistory(&buf, nil)
	if !strings.Contains(buf.String(), "no runs recorded") {
		t.Errorf("empty history output = %q", buf.String())
	}

	buf.Reset()
	printHistory(&buf, []domain.RunRecord{
		{
			Kind:            domain.RunKindClosing,
			LocalDate:       "2024-07-01",
			FiredAt:         time.Date(2024, 7, 1, 15, 50, 0, 0, time.UTC),
			PositionsClosed: 2,
			PositionsFailed: 1,
			OrdersCancelled: 3,
			RealizedPnL:     decimal.RequireFromString("-4.5"),
			NotifyStatus:    "ok",
			Failures:        []string{"close GME: rejected"},
		},
		{Kind: domain.RunKindPreAlert, LocalDate: "2024-07-01", NotifyStatus: "disabled"},
	})
	out := buf.String()
	for _, want := range []string{"2/3", "3/3", "-4.50", "! close GME: rejected", "pre_alert"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestCheckCommand(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "closer.yaml")
	yaml := "schedule:\n  timezone: UTC\n  close_hour: 20\n  close_minute: 0\ntrading:\n  broker: simulator\n"
	if err := os.WriteFile(path, []byte(yaml), 0o644); err != nil {
		t.Fatal(err)
	}

	app := newApp()
	var buf bytes.Buffer
	app.Writer = &buf
	if err := app.Run([]string{"eod-closer", "--config", path, "check"}); err != nil {
		t.Fatalf("check: %v", err)
	}
	if !strings.Contains(buf.String(), "configuration OK") {
		t.Errorf("output = %q", buf.String())
	}
}

func TestGRPCAddr(t *testing.T) {
	if got := grpcAddr(config.Server{Host: "127.0.0.1", GRPCPort: 0}); got != "" {
		t.Errorf("disabled grpc addr = %q", got)
	}
	if got := grpcAddr(config.Server{Host: "::1", GRPCPort: 9090}); got != "[::1]:9090" {
		t.Errorf("grpc addr = %q", got)
	}
}

func TestNewSourceSelection(t *testing.T) {
	sched, err := schedule.New(schedule.Config{Timezone: "UTC", CloseHour: 20, LeadMinutes: 10}, nil)
	if err != nil {
		t.Fatal(err)
	}
	cfg := &config.Config{}
	cfg.Schedule.TickSource = "bars"
	cfg.Schedule.BarSymbols = []string{"SPY"}
	if got := newSource(cfg, sched, nil).Name(); got != "bars" {
		t.Errorf("bars source = %q", got)
	}
	cfg.Schedule.TickSource = "cron"
	cfg.Schedule.TickInterval = time.Minute
	if got := newSource(cfg, sched, nil).Name(); got != "cron" {
		t.Errorf("cron source = %q", got)
	}

	cfg.Trading.Broker = "simulator"
	if got := newBroker(cfg).Name(); got != "simulator" {
		t.Errorf("broker = %q", got)
	}
}

func TestStatusCommand(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/healthz" {
			w.WriteHeader(http.StatusOK)
			return
		}
		_, _ = w.Write([]byte(`{"timezone":"UTC","date":"2024-07-01","phase":"closed","closing_fired":true,"ticks":3,` +
			`"last_run":{"kind":"closing","local_date":"2024-07-01","positions_closed":2,"positions_failed":1,` +
			`"orders_cancelled":1,"realized_pnl":"12.5","notify_status":"ok","failures":["close GME: rejected"]}}`))
	}))
	defer ts.Close()

	app := newApp()
	var buf bytes.Buffer
	app.Writer = &buf
	if err := app.Run([]string{"eod-closer", "status", "--addr", ts.URL}); err != nil {
		t.Fatalf("status: %v", err)
	}
	for _, want := range []string{"phase closed on 2024-07-01 (UTC)", "last run:        closing 2024-07-01", "closed 2/3, cancelled 1/1, pnl 12.5", "! close GME: rejected"} {
		if !strings.Contains(buf.String(), want) {
			t.Errorf("output missing %q:\n%s", want, buf.String())
		}
	}
}
