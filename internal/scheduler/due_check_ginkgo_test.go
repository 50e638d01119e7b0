package scheduler

import (
	"context"
	"os"
	"path/filepath"
	"time"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"

	"github.com/AIS-Commercial-Business-Unit/RiskInsure-sub003/internal/bus"
	"github.com/AIS-Commercial-Business-Unit/RiskInsure-sub003/internal/clock"
	"github.com/AIS-Commercial-Business-Unit/RiskInsure-sub003/internal/logging"
	"github.com/AIS-Commercial-Business-Unit/RiskInsure-sub003/internal/store"
)

func newGinkgoConfigStore() *store.ConfigurationStore {
	dir, err := os.MkdirTemp("", "scheduler-ginkgo")
	Expect(err).NotTo(HaveOccurred())
	s, err := store.NewConfigurationStore(filepath.Join(dir, "cfg.db"))
	Expect(err).NotTo(HaveOccurred())
	return s
}

var _ = Describe("due-window evaluation", func() {
	var (
		clk *clock.Fake
		l   *Loop
	)

	BeforeEach(func() {
		clk = clock.NewFake(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))
		l = New(newGinkgoConfigStore(), bus.NewMemoryBus(), clk, logging.Default(), nil, 5, 60, 2)
	})

	Context("when nextScheduledRun is well inside the execution window", func() {
		It("is due", func() {
			cfg := activeCfg("clientA", "cfg-1", "* * * * *")
			soon := clk.Now().Add(1 * time.Minute)
			cfg.NextScheduledRun = &soon

			_, due := l.dueCheck(cfg, clk.Now(), logging.Default())
			Expect(due).To(BeTrue())
		})
	})

	Context("when nextScheduledRun is far in the future", func() {
		It("is not due", func() {
			cfg := activeCfg("clientA", "cfg-1", "* * * * *")
			future := clk.Now().Add(10 * time.Minute)
			cfg.NextScheduledRun = &future

			_, due := l.dueCheck(cfg, clk.Now(), logging.Default())
			Expect(due).To(BeFalse())
		})
	})

	Context("when nextScheduledRun is far enough in the past to be overdue", func() {
		It("is still due, so a stalled worker catches up instead of skipping forever", func() {
			cfg := activeCfg("clientA", "cfg-1", "* * * * *")
			overdue := clk.Now().Add(-1 * time.Hour)
			cfg.NextScheduledRun = &overdue

			_, due := l.dueCheck(cfg, clk.Now(), logging.Default())
			Expect(due).To(BeTrue())
		})
	})
})

var _ = Describe("tick dispatch", func() {
	It("dispatches exactly one ExecuteFileCheck per due configuration and clears the in-flight mark", func() {
		clk := clock.NewFake(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))
		b := bus.NewMemoryBus()
		var dispatched []bus.Envelope
		b.Handle(bus.TypeExecuteFileCheck, func(_ context.Context, env bus.Envelope) error {
			dispatched = append(dispatched, env)
			return nil
		})

		cfgStore := newGinkgoConfigStore()
		l := New(cfgStore, b, clk, logging.Default(), nil, 5, 60, 2)

		cfg := activeCfg("clientA", "cfg-1", "* * * * *")
		Expect(cfgStore.Create(cfg)).To(Succeed())

		Expect(l.tick(context.Background())).To(Succeed())
		Expect(dispatched).To(HaveLen(1))
		Expect(dispatched[0].MessageType).To(Equal(bus.TypeExecuteFileCheck))
		Expect(l.inFlight.Len()).To(Equal(0))
	})
})
