package scheduler

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/AIS-Commercial-Business-Unit/RiskInsure-sub003/internal/bus"
	"github.com/AIS-Commercial-Business-Unit/RiskInsure-sub003/internal/clock"
	"github.com/AIS-Commercial-Business-Unit/RiskInsure-sub003/internal/logging"
	"github.com/AIS-Commercial-Business-Unit/RiskInsure-sub003/internal/model"
	"github.com/AIS-Commercial-Business-Unit/RiskInsure-sub003/internal/store"
)

func newTestLoop(t *testing.T, clk *clock.Fake, b bus.Bus, maxConcurrent int) (*Loop, *store.ConfigurationStore) {
	t.Helper()
	cfgStore, err := store.NewConfigurationStore(filepath.Join(t.TempDir(), "cfg.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = cfgStore.Close() })
	l := New(cfgStore, b, clk, logging.Default(), nil, maxConcurrent, 60, 2)
	return l, cfgStore
}

func activeCfg(clientID, id, cron string) *model.Configuration {
	return &model.Configuration{
		ClientID: clientID,
		ID:       id,
		Name:     "nightly",
		Protocol: model.ProtocolFTP,
		ProtocolSettings: model.ProtocolSettings{
			Protocol: model.ProtocolFTP,
			FTP:      &model.FTPSettings{Server: "ftp.test"},
		},
		FilePathPattern: "/in",
		FilenamePattern: "*.txt",
		Schedule:        model.Schedule{CronExpression: cron, Timezone: "UTC"},
		IsActive:        true,
	}
}

func TestTickDispatchesDueConfiguration(t *testing.T) {
	clk := clock.NewFake(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))
	b := bus.NewMemoryBus()
	var dispatched []bus.Envelope
	b.Handle(bus.TypeExecuteFileCheck, func(_ context.Context, env bus.Envelope) error {
		dispatched = append(dispatched, env)
		return nil
	})

	l, cfgStore := newTestLoop(t, clk, b, 5)
	cfg := activeCfg("clientA", "cfg-1", "* * * * *")
	if err := cfgStore.Create(cfg); err != nil {
		t.Fatal(err)
	}

	if err := l.tick(context.Background()); err != nil {
		t.Fatalf("tick: %v", err)
	}
	if len(dispatched) != 1 {
		t.Fatalf("expected exactly one dispatch, got %d", len(dispatched))
	}
	if dispatched[0].MessageType != bus.TypeExecuteFileCheck {
		t.Fatalf("unexpected message type: %s", dispatched[0].MessageType)
	}
	if l.inFlight.Len() != 0 {
		t.Fatalf("in-flight mark should be cleared after a synchronous dispatch")
	}
}

func TestTickSkipsAlreadyInFlight(t *testing.T) {
	clk := clock.NewFake(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))
	b := bus.NewMemoryBus()
	count := 0
	b.Handle(bus.TypeExecuteFileCheck, func(_ context.Context, _ bus.Envelope) error { count++; return nil })

	l, cfgStore := newTestLoop(t, clk, b, 5)
	cfg := activeCfg("clientA", "cfg-1", "* * * * *")
	if err := cfgStore.Create(cfg); err != nil {
		t.Fatal(err)
	}

	l.inFlight.TryMark(cfg.ID)
	if err := l.tick(context.Background()); err != nil {
		t.Fatalf("tick: %v", err)
	}
	if count != 0 {
		t.Fatalf("expected the in-flight configuration to be skipped, got %d dispatches", count)
	}
}

func TestTickDefersWhenSemaphoreExhausted(t *testing.T) {
	clk := clock.NewFake(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))
	b := bus.NewMemoryBus()
	count := 0
	b.Handle(bus.TypeExecuteFileCheck, func(_ context.Context, _ bus.Envelope) error { count++; return nil })

	l, cfgStore := newTestLoop(t, clk, b, 1)
	if err := cfgStore.Create(activeCfg("clientA", "cfg-1", "* * * * *")); err != nil {
		t.Fatal(err)
	}
	if err := cfgStore.Create(activeCfg("clientA", "cfg-2", "* * * * *")); err != nil {
		t.Fatal(err)
	}

	if !l.sem.TryAcquire() {
		t.Fatal("expected to acquire the single permit")
	}
	if err := l.tick(context.Background()); err != nil {
		t.Fatalf("tick: %v", err)
	}
	if count != 0 {
		t.Fatalf("expected both configurations deferred while the permit is held, got %d", count)
	}
}

func TestDueCheckRespectsExecutionWindow(t *testing.T) {
	clk := clock.NewFake(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))
	l, _ := newTestLoop(t, clk, bus.NewMemoryBus(), 5)

	future := clk.Now().Add(10 * time.Minute)
	cfg := activeCfg("clientA", "cfg-1", "* * * * *")
	cfg.NextScheduledRun = &future
	if _, due := l.dueCheck(cfg, clk.Now(), logging.Default()); due {
		t.Fatal("a run 10 minutes out should not be due under a 2-minute window")
	}

	soon := clk.Now().Add(1 * time.Minute)
	cfg.NextScheduledRun = &soon
	if _, due := l.dueCheck(cfg, clk.Now(), logging.Default()); !due {
		t.Fatal("a run 1 minute out should be due under a 2-minute window")
	}
}
