package api

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/test/bufconn"

	"eodcloser/internal/domain"
	"eodcloser/internal/metrics"
	"eodcloser/internal/runner"
	"eodcloser/pkg/eodcloser"
)

type fakeStatus struct {
	running bool
	snap    runner.Snapshot
}

func (f *fakeStatus) Snapshot() runner.Snapshot { return f.snap }
func (f *fakeStatus) Running() bool             { return f.running }

func TestHealthz(t *testing.T) {
	st := &fakeStatus{running: true}
	srv := NewServer(":0", "", st, nil, nil)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("running: status = %d, want 200", rec.Code)
	}

	st.running = false
	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("stopped: status = %d, want 503", rec.Code)
	}
}

func TestStatusJSON(t *testing.T) {
	st := &fakeStatus{running: true, snap: runner.Snapshot{
		Timezone:     "America/New_York",
		Date:         "2024-07-01",
		Phase:        "closed",
		ClosingFired: true,
		NextClose:    time.Date(2024, 7, 2, 20, 50, 0, 0, time.UTC),
		Running:      true,
	}}
	srv := NewServer(":0", "", st, nil, nil)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/status", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q", ct)
	}

	var got runner.Snapshot
	if err := json.NewDecoder(rec.Body).Decode(&got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Phase != "closed" || got.Timezone != "America/New_York" || !got.NextClose.Equal(st.snap.NextClose) {
		t.Errorf("decoded %+v", got)
	}
}

func TestMetricsRoute(t *testing.T) {
	m := metrics.New()
	m.ObserveTick(time.Unix(1700000000, 0))
	srv := NewServer(":0", "", &fakeStatus{}, m.Handler(), nil)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "closer_last_tick_timestamp_seconds") {
		t.Error("/metrics is missing the tick gauge")
	}

	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/status", nil))
	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("POST /status = %d, want 405", rec.Code)
	}
}

func TestGRPCHealth(t *testing.T) {
	st := &fakeStatus{running: true}
	srv := NewServer(":0", "", st, nil, nil)

	lis := bufconn.Listen(1 << 16)
	gs := grpc.NewServer()
	srv.RegisterGRPC(gs)
	go func() { _ = gs.Serve(lis) }()
	defer gs.Stop()

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) { return lis.DialContext(ctx) }),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		t.Fatalf("grpc.NewClient: %v", err)
	}
	defer conn.Close()
	client := healthpb.NewHealthClient(conn)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	resp, err := client.Check(ctx, &healthpb.HealthCheckRequest{Service: ServiceName})
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if resp.GetStatus() != healthpb.HealthCheckResponse_SERVING {
		t.Errorf("status = %s, want SERVING", resp.GetStatus())
	}

	st.running = false
	srv.syncHealth()
	resp, err = client.Check(ctx, &healthpb.HealthCheckRequest{})
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if resp.GetStatus() != healthpb.HealthCheckResponse_NOT_SERVING {
		t.Errorf("status = %s, want NOT_SERVING", resp.GetStatus())
	}
}

func TestListenAndServeStopsOnCancel(t *testing.T) {
	srv := NewServer("127.0.0.1:0", "127.0.0.1:0", &fakeStatus{running: true}, nil, nil)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.ListenAndServe(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("ListenAndServe() = %v, want nil", err)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("ListenAndServe did not return")
	}
}

func TestStatusDecodesWithClient(t *testing.T) {
	st := &fakeStatus{running: true, snap: runner.Snapshot{
		Phase: "closed",
		LastRun: &domain.RunRecord{
			Kind:            domain.RunKindClosing,
			LocalDate:       "2024-07-01",
			PositionsClosed: 3,
			OrdersFailed:    1,
			RealizedPnL:     decimal.RequireFromString("20.25"),
			NotifyStatus:    "ok",
			Failures:        []string{"cancel MSFT o-2: rejected"},
		},
		Running: true,
	}}
	ts := httptest.NewServer(NewServer(":0", "", st, nil, nil).Handler())
	defer ts.Close()

	got, err := eodcloser.NewClient(ts.URL).Status(context.Background())
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	r := got.LastRun
	if r == nil {
		t.Fatal("LastRun missing from decoded status")
	}
	if r.Kind != "closing" || r.PositionsClosed != 3 || r.OrdersFailed != 1 || r.RealizedPnL != "20.25" || len(r.Failures) != 1 {
		t.Errorf("LastRun = %+v", r)
	}
}
