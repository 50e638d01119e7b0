package filecheck

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
	"github.com/AIS-Commercial-Business-Unit/RiskInsure-sub003/internal/model"
	"github.com/AIS-Commercial-Business-Unit/RiskInsure-sub003/internal/secretstore"
	"github.com/AIS-Commercial-Business-Unit/RiskInsure-sub003/internal/store"
)

func newGinkgoService() (*Service, bus.Bus, *store.DiscoveryStore) {
	dir, err := os.MkdirTemp("", "filecheck-ginkgo")
	Expect(err).NotTo(HaveOccurred())

	execStore, err := store.NewExecutionStore(filepath.Join(dir, "exec.db"))
	Expect(err).NotTo(HaveOccurred())
	discStore, err := store.NewDiscoveryStore(filepath.Join(dir, "disc.db"))
	Expect(err).NotTo(HaveOccurred())

	b := bus.NewMemoryBus()
	clk := clock.NewFake(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))
	secrets := secretstore.NewCachingResolver(secretstore.InMemorySource{}, clk)

	return NewService(execStore, discStore, b, clk, secrets, logging.Default(), nil), b, discStore
}

var _ = Describe("discovery idempotency", func() {
	var (
		svc      *Service
		b        bus.Bus
		discStore *store.DiscoveryStore
		cfg      *model.Configuration
	)

	BeforeEach(func() {
		svc, b, discStore = newGinkgoService()
		cfg = sampleCfg()
	})

	Context("when the same listed file is observed twice for the same scheduled run", func() {
		It("persists exactly one discovery and publishes FileDiscovered exactly once", func() {
			var events int
			b.Handle(bus.TypeFileDiscovered, func(context.Context, bus.Envelope) error { events++; return nil })

			files := []model.ListedFile{{FileURL: "ftp://ftp.test/in/a.txt", Filename: "a.txt", Size: 10}}
			scheduled := time.Date(2025, 6, 2, 3, 0, 0, 0, time.UTC)

			_, err := svc.executeWithListedFiles(context.Background(), cfg, scheduled, "exec-1", "corr-1", files)
			Expect(err).NotTo(HaveOccurred())
			_, err = svc.executeWithListedFiles(context.Background(), cfg, scheduled, "exec-2", "corr-2", files)
			Expect(err).NotTo(HaveOccurred())

			Expect(events).To(Equal(1))

			all, err := discStore.ListByConfiguration(cfg.ClientID, cfg.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(all).To(HaveLen(1))
		})
	})

	Context("when two distinct files are observed in one run", func() {
		It("publishes one FileDiscovered per file", func() {
			var published []bus.Envelope
			b.Handle(bus.TypeFileDiscovered, func(_ context.Context, env bus.Envelope) error {
				published = append(published, env)
				return nil
			})

			files := []model.ListedFile{
				{FileURL: "ftp://ftp.test/in/a.txt", Filename: "a.txt", Size: 10},
				{FileURL: "ftp://ftp.test/in/b.txt", Filename: "b.txt", Size: 20},
			}
			result, err := svc.executeWithListedFiles(context.Background(), cfg, time.Date(2025, 6, 2, 3, 0, 0, 0, time.UTC), "exec-1", "corr-1", files)
			Expect(err).NotTo(HaveOccurred())
			Expect(result.Failed).To(BeFalse())
			Expect(published).To(HaveLen(2))
		})
	})
})
