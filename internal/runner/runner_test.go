package runner

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alpacahq/alpaca-trade-api-go/v3/marketdata/stream"

	"eodcloser/internal/domain"
	"eodcloser/internal/metrics"
	"eodcloser/internal/schedule"
)

type fakeDispatcher struct {
	mu       sync.Mutex
	events   []schedule.Event
	deadline bool
	panicOn  schedule.Kind
}

func (f *fakeDispatcher) Dispatch(ctx context.Context, ev schedule.Event) domain.RunRecord {
	f.mu.Lock()
	f.events = append(f.events, ev)
	_, f.deadline = ctx.Deadline()
	f.mu.Unlock()
	if ev.Kind == f.panicOn {
		panic("broker exploded")
	}
	kind := domain.RunKindPreAlert
	if ev.Kind == schedule.Closing {
		kind = domain.RunKindClosing
	}
	return domain.RunRecord{Kind: kind, LocalDate: ev.Date.String(), FiredAt: ev.At, Failures: []string{"x"}}
}

func (f *fakeDispatcher) kinds() []schedule.Kind {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]schedule.Kind, 0, len(f.events))
	for _, ev := range f.events {
		out = append(out, ev.Kind)
	}
	return out
}

func newTestRunner(t *testing.T, disp Dispatcher, timeout time.Duration) *Runner {
	t.Helper()
	sched, err := schedule.New(schedule.Config{Timezone: "UTC", CloseHour: 16, CloseMinute: 0, LeadMinutes: 10}, nil)
	if err != nil {
		t.Fatalf("schedule.New: %v", err)
	}
	return New(sched, disp, metrics.New(), timeout, nil)
}

func at(day, hour, minute int) time.Time {
	return time.Date(2024, 7, day, hour, minute, 0, 0, time.UTC)
}

func TestTickDispatchesEachTriggerOnce(t *testing.T) {
	disp := &fakeDispatcher{}
	r := newTestRunner(t, disp, time.Minute)
	ctx := context.Background()

	for _, now := range []time.Time{at(1, 15, 49), at(1, 15, 50), at(1, 15, 51), at(1, 16, 0), at(1, 16, 1), at(1, 17, 0)} {
		r.Tick(ctx, now)
	}

	got := disp.kinds()
	if len(got) != 2 || got[0] != schedule.PreAlert || got[1] != schedule.Closing {
		t.Fatalf("dispatched %v, want [pre_alert closing]", got)
	}
	if !disp.deadline {
		t.Error("dispatch context has no deadline")
	}

	r.now = func() time.Time { return at(1, 17, 0) }
	snap := r.Snapshot()
	if snap.Phase != "closed" || !snap.PreAlertFired || !snap.ClosingFired {
		t.Errorf("snapshot = %+v, want closed with both flags", snap)
	}
	if snap.Ticks != 6 || !snap.LastTick.Equal(at(1, 17, 0)) {
		t.Errorf("ticks = %d last = %s", snap.Ticks, snap.LastTick)
	}
	if snap.LastRun == nil || snap.LastRun.Kind != domain.RunKindClosing {
		t.Errorf("LastRun = %+v, want closing record", snap.LastRun)
	}
	if !snap.NextClose.Equal(at(2, 16, 0)) || !snap.NextAlert.Equal(at(2, 15, 50)) {
		t.Errorf("next alert %s close %s", snap.NextAlert, snap.NextClose)
	}
}

func TestTickRecoversFromDispatchPanic(t *testing.T) {
	disp := &fakeDispatcher{panicOn: schedule.Closing}
	r := newTestRunner(t, disp, 0)
	ctx := context.Background()

	r.Tick(ctx, at(1, 16, 0))
	r.Tick(ctx, at(1, 16, 1))

	if got := disp.kinds(); len(got) != 1 {
		t.Fatalf("dispatched %v, want a single closing attempt", got)
	}
	if disp.deadline {
		t.Error("zero timeout should not set a deadline")
	}
	r.now = func() time.Time { return at(1, 16, 1) }
	if !r.Snapshot().ClosingFired {
		t.Error("closing flag not kept after a panicking dispatch")
	}
}

func TestSnapshotResetsOnNewDate(t *testing.T) {
	r := newTestRunner(t, &fakeDispatcher{}, 0)
	r.Tick(context.Background(), at(1, 16, 0))

	r.now = func() time.Time { return at(2, 9, 0) }
	snap := r.Snapshot()
	if snap.Phase != "idle" || snap.ClosingFired || snap.Date != "2024-07-02" {
		t.Errorf("snapshot = %+v, want idle on 2024-07-02", snap)
	}

	// The copy must not alias runner state.
	snap.LastRun.Failures[0] = "mutated"
	if r.Snapshot().LastRun.Failures[0] != "x" {
		t.Error("Snapshot leaked the failures slice")
	}
}

func TestRunConsumesUntilClosed(t *testing.T) {
	disp := &fakeDispatcher{}
	r := newTestRunner(t, disp, 0)

	ticks := make(chan time.Time, 3)
	ticks <- at(1, 15, 50)
	ticks <- at(1, 16, 0)
	ticks <- at(1, 16, 1)
	close(ticks)

	if err := r.Run(context.Background(), ticks); err != nil {
		t.Fatalf("Run() = %v", err)
	}
	if got := disp.kinds(); len(got) != 2 {
		t.Errorf("dispatched %v, want 2 events", got)
	}
	if r.Running() {
		t.Error("Running() = true after Run returned")
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	r := newTestRunner(t, &fakeDispatcher{}, 0)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx, make(chan time.Time)) }()

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run() = %v, want nil", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Run did not stop after cancel")
	}
}

func TestOfferDropsWhenFull(t *testing.T) {
	out := make(chan time.Time, 1)
	log := newTestRunner(t, &fakeDispatcher{}, 0).log
	if !offer(out, at(1, 0, 0), log) {
		t.Fatal("first offer dropped")
	}
	if offer(out, at(1, 0, 1), log) {
		t.Error("offer into a full channel succeeded")
	}
}

func TestCronSourceImmediateTick(t *testing.T) {
	src := NewCronSource(30*time.Second, time.UTC, nil)
	if src.Expr() != "@every 30s" {
		t.Errorf("Expr() = %q", src.Expr())
	}
	fixed := at(1, 12, 0)
	src.now = func() time.Time { return fixed }

	ctx, cancel := context.WithCancel(context.Background())
	out := make(chan time.Time, 1)
	done := make(chan error, 1)
	go func() { done <- src.Run(ctx, out) }()

	select {
	case got := <-out:
		if !got.Equal(fixed) {
			t.Errorf("tick = %s, want %s", got, fixed)
		}
	case <-time.After(time.Second):
		t.Fatal("no immediate tick")
	}
	cancel()
	if err := <-done; err != nil {
		t.Errorf("Run() = %v", err)
	}
}

func TestCronSourceMinimumInterval(t *testing.T) {
	if got := NewCronSource(10*time.Millisecond, nil, nil).Expr(); got != "@every 1s" {
		t.Errorf("Expr() = %q, want @every 1s", got)
	}
}

func TestBarSourceReconnects(t *testing.T) {
	var (
		mu    sync.Mutex
		dials int
	)
	dial := func(ctx context.Context, onBar func(stream.Bar)) (<-chan error, error) {
		mu.Lock()
		dials++
		n := dials
		mu.Unlock()

		if n == 1 {
			return nil, errors.New("connection refused")
		}
		term := make(chan error, 1)
		if n == 2 {
			onBar(stream.Bar{Symbol: "SPY"})
			term <- errors.New("stream reset")
			return term, nil
		}
		onBar(stream.Bar{Symbol: "SPY"})
		go func() {
			<-ctx.Done()
			close(term)
		}()
		return term, nil
	}

	src := newBarSource([]string{"SPY"}, dial, newTestRunner(t, &fakeDispatcher{}, 0).log)
	src.backoff = time.Millisecond
	fixed := at(1, 15, 59)
	src.now = func() time.Time { return fixed }

	ctx, cancel := context.WithCancel(context.Background())
	out := make(chan time.Time, 4)
	done := make(chan error, 1)
	go func() { done <- src.Run(ctx, out) }()

	for i := 0; i < 2; i++ {
		select {
		case got := <-out:
			if !got.Equal(fixed) {
				t.Errorf("tick = %s, want %s", got, fixed)
			}
		case <-time.After(2 * time.Second):
			t.Fatalf("tick %d never arrived", i)
		}
	}
	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run() = %v, want nil", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not stop after cancel")
	}

	mu.Lock()
	defer mu.Unlock()
	if dials != 3 {
		t.Errorf("dials = %d, want 3", dials)
	}
}

func TestBarSourceName(t *testing.T) {
	if got := NewBarSource("k", "s", "", "iex", []string{"SPY"}, nil).Name(); got != "bars" {
		t.Errorf("Name() = %q", got)
	}
}
