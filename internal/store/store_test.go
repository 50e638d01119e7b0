package store

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/kylelemons/godebug/pretty"

	"github.com/AIS-Commercial-Business-Unit/RiskInsure-sub003/internal/model"
	"github.com/AIS-Commercial-Business-Unit/RiskInsure-sub003/internal/svcerr"
)

func newConfigStore(t *testing.T) *ConfigurationStore {
	t.Helper()
	s, err := NewConfigurationStore(filepath.Join(t.TempDir(), "cfg.db"))
	if err != nil {
		t.Fatalf("NewConfigurationStore: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func sampleConfig(clientID, id string) *model.Configuration {
	return &model.Configuration{
		ClientID:        clientID,
		ID:              id,
		Name:            "nightly-seed",
		Protocol:        model.ProtocolFTP,
		ProtocolSettings: model.ProtocolSettings{Protocol: model.ProtocolFTP, FTP: &model.FTPSettings{Server: "ftp.test"}},
		FilePathPattern: "/",
		FilenamePattern: "seed-{yyyymmdd}.txt",
		Schedule:        model.Schedule{CronExpression: "*/5 * * * * *", Timezone: "UTC"},
		IsActive:        true,
		CreatedAt:       time.Now().UTC(),
	}
}

func TestConfigurationCreateGetRoundTrip(t *testing.T) {
	s := newConfigStore(t)
	cfg := sampleConfig("clientA", "cfg-1")
	if err := s.Create(cfg); err != nil {
		t.Fatalf("Create: %v", err)
	}
	got, ok, err := s.GetByID("clientA", "cfg-1")
	if err != nil || !ok {
		t.Fatalf("GetByID: ok=%v err=%v", ok, err)
	}
	// Create stamps cfg.ETag in place; everything must survive the JSON
	// round trip through buntdb untouched, including nested ProtocolSettings.
	if diff := pretty.Compare(cfg, got); diff != "" {
		t.Fatalf("round trip mismatch (-want +got):\n%s", diff)
	}
}

func TestConfigurationCreateConflict(t *testing.T) {
	s := newConfigStore(t)
	cfg := sampleConfig("clientA", "cfg-1")
	if err := s.Create(cfg); err != nil {
		t.Fatalf("Create: %v", err)
	}
	err := s.Create(sampleConfig("clientA", "cfg-1"))
	if err != svcerr.ErrConflict {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
}

func TestConfigurationClientIsolation(t *testing.T) {
	s := newConfigStore(t)
	cfg := sampleConfig("clientB", "cfg-1")
	if err := s.Create(cfg); err != nil {
		t.Fatalf("Create: %v", err)
	}
	// Client A cannot see client B's configuration, and gets a plain "miss"
	// rather than any signal that it exists for someone else (§8 S5).
	_, ok, err := s.GetByID("clientA", "cfg-1")
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if ok {
		t.Fatalf("expected cross-client lookup to miss")
	}
}

func TestConfigurationETagConflict(t *testing.T) {
	s := newConfigStore(t)
	cfg := sampleConfig("clientA", "cfg-1")
	if err := s.Create(cfg); err != nil {
		t.Fatalf("Create: %v", err)
	}
	stored, _, _ := s.GetByID("clientA", "cfg-1")
	staleETag := stored.ETag

	// First update succeeds and rotates the etag.
	update1 := *stored
	update1.Name = "updated-once"
	if err := s.Update(&update1); err != nil {
		t.Fatalf("first Update: %v", err)
	}

	// Second update, using the now-stale etag, must fail and leave state
	// untouched (§8 property 3, scenario S2).
	update2 := *stored
	update2.ETag = staleETag
	update2.Name = "updated-twice"
	err := s.Update(&update2)
	if err != svcerr.ErrPreconditionFailed {
		t.Fatalf("expected ErrPreconditionFailed, got %v", err)
	}

	final, _, _ := s.GetByID("clientA", "cfg-1")
	if final.Name != "updated-once" {
		t.Fatalf("expected state from the successful update to persist, got %q", final.Name)
	}
}

func TestConfigurationGetAllActiveIsCrossClient(t *testing.T) {
	s := newConfigStore(t)
	active := sampleConfig("clientA", "cfg-1")
	inactive := sampleConfig("clientB", "cfg-2")
	inactive.IsActive = false
	if err := s.Create(active); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := s.Create(inactive); err != nil {
		t.Fatalf("Create: %v", err)
	}
	all, err := s.GetAllActive()
	if err != nil {
		t.Fatalf("GetAllActive: %v", err)
	}
	if len(all) != 1 || all[0].ID != "cfg-1" {
		t.Fatalf("expected exactly the one active config across clients, got %+v", all)
	}
}

func TestDiscoveryUniqueness(t *testing.T) {
	s, err := NewDiscoveryStore(filepath.Join(t.TempDir(), "disc.db"))
	if err != nil {
		t.Fatalf("NewDiscoveryStore: %v", err)
	}
	defer s.Close()

	date := time.Date(2025, 1, 24, 0, 0, 0, 0, time.UTC)
	mk := func() *model.DiscoveredFile {
		return &model.DiscoveredFile{
			ClientID:        "clientA",
			ConfigurationID: "cfg-1",
			ExecutionID:     "exec-1",
			FileURL:         "ftp://ftp.test/seed-20250124.txt",
			Filename:        "seed-20250124.txt",
			DiscoveryDate:   date,
			DiscoveredAt:    time.Now().UTC(),
		}
	}

	first, inserted, err := s.Create(mk())
	if err != nil || !inserted || first == nil {
		t.Fatalf("first Create: inserted=%v err=%v", inserted, err)
	}

	// A duplicate observation of the same file on the same discovery date
	// must be silently absorbed, not errored (§4.5 step 5, §8 property 1).
	second, inserted, err := s.Create(mk())
	if err != nil {
		t.Fatalf("second Create: %v", err)
	}
	if inserted || second != nil {
		t.Fatalf("expected duplicate insert to be a silent no-op, got inserted=%v rec=%v", inserted, second)
	}

	all, err := s.ListByConfiguration("clientA", "cfg-1")
	if err != nil {
		t.Fatalf("ListByConfiguration: %v", err)
	}
	if len(all) != 1 {
		t.Fatalf("expected exactly one discovered file on disk, got %d", len(all))
	}
}

func TestProcessedDuplicateIsSilent(t *testing.T) {
	s, err := NewProcessedStore(filepath.Join(t.TempDir(), "proc.db"))
	if err != nil {
		t.Fatalf("NewProcessedStore: %v", err)
	}
	defer s.Close()

	p := &model.ProcessedFile{ClientID: "clientA", ConfigurationID: "cfg-1", DiscoveredFileID: "disc-1", ChecksumAlgorithm: "SHA-256", ChecksumHex: "abc"}
	if _, inserted, err := s.Create(p); err != nil || !inserted {
		t.Fatalf("first Create: inserted err=%v", err)
	}
	rec, inserted, err := s.Create(&model.ProcessedFile{ClientID: "clientA", ConfigurationID: "cfg-1", DiscoveredFileID: "disc-1"})
	if err != nil {
		t.Fatalf("second Create: %v", err)
	}
	if inserted || rec != nil {
		t.Fatalf("expected duplicate processed-record insert to be silent")
	}
}
