package handler

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/AIS-Commercial-Business-Unit/RiskInsure-sub003/internal/adapter"
	"github.com/AIS-Commercial-Business-Unit/RiskInsure-sub003/internal/bus"
	"github.com/AIS-Commercial-Business-Unit/RiskInsure-sub003/internal/clock"
	"github.com/AIS-Commercial-Business-Unit/RiskInsure-sub003/internal/logging"
	"github.com/AIS-Commercial-Business-Unit/RiskInsure-sub003/internal/model"
	"github.com/AIS-Commercial-Business-Unit/RiskInsure-sub003/internal/store"
	"github.com/AIS-Commercial-Business-Unit/RiskInsure-sub003/internal/svcerr"
)

type fakeDownload struct {
	*bytes.Reader
	size int64
}

func (f *fakeDownload) Close() error { return nil }
func (f *fakeDownload) Size() int64  { return f.size }

// fakeAdapter is a test double for adapter.Adapter that returns fixed
// content instead of dialing a remote location.
type fakeAdapter struct {
	content []byte
}

func (f *fakeAdapter) List(context.Context, string, string, string) ([]model.ListedFile, error) {
	return nil, nil
}

func (f *fakeAdapter) Download(context.Context, string) (adapter.ReadCloserWithSize, error) {
	return &fakeDownload{Reader: bytes.NewReader(f.content), size: int64(len(f.content))}, nil
}

func newTestProcessedHandler(t *testing.T) (*ProcessDiscoveredFileHandler, *store.ProcessedStore) {
	t.Helper()
	procStore, err := store.NewProcessedStore(filepath.Join(t.TempDir(), "proc.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = procStore.Close() })
	clk := clock.NewFake(time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC))
	h := &ProcessDiscoveredFileHandler{Processed: procStore, Bus: bus.NewMemoryBus(), Clock: clk, Log: logging.Default()}
	return h, procStore
}

func TestProcessDiscoveredFileHandlerEmitsOnce(t *testing.T) {
	h, procStore := newTestProcessedHandler(t)
	var emitted int
	h.Bus.Handle(bus.TypeDiscoveredFileProcessed, func(context.Context, bus.Envelope) error { emitted++; return nil })

	df := &model.DiscoveredFile{ClientID: "clientA", ConfigurationID: "cfg-1", ID: "df-1", FileURL: "ftp://ftp.test/in/a.txt", Filename: "a.txt"}
	a := &fakeAdapter{content: []byte("hello world")}

	env := bus.Envelope{ClientID: df.ClientID, CorrelationID: "corr-1", IdempotencyKey: "idem-1"}

	if err := h.processWithAdapter(context.Background(), env, df, a); err != nil {
		t.Fatalf("first process: %v", err)
	}
	if err := h.processWithAdapter(context.Background(), env, df, a); err != nil {
		t.Fatalf("second process (redelivery): %v", err)
	}
	if emitted != 1 {
		t.Fatalf("expected exactly one DiscoveredFileProcessed, got %d", emitted)
	}

	stored, ok, err := procStore.GetByDiscoveredFileID(df.ClientID, df.ConfigurationID, df.ID)
	if err != nil || !ok {
		t.Fatalf("GetByDiscoveredFileID: ok=%v err=%v", ok, err)
	}
	if stored.ChecksumAlgorithm != "SHA-256" || stored.ChecksumHex == "" {
		t.Fatalf("unexpected processed record: %+v", stored)
	}
}

func TestProcessDiscoveredFileHandlerRejectsZeroByteTransfer(t *testing.T) {
	h, procStore := newTestProcessedHandler(t)

	df := &model.DiscoveredFile{ClientID: "clientA", ConfigurationID: "cfg-1", ID: "df-empty", FileURL: "ftp://ftp.test/in/empty.txt", Filename: "empty.txt"}
	a := &fakeAdapter{content: []byte{}}
	env := bus.Envelope{ClientID: df.ClientID, CorrelationID: "corr-1", IdempotencyKey: "idem-empty"}

	err := h.processWithAdapter(context.Background(), env, df, a)
	if err == nil {
		t.Fatal("expected zero-byte transfer to fail, got nil error")
	}
	if cat := svcerr.CategoryOf(err); cat != svcerr.ProtocolError {
		t.Fatalf("expected ProtocolError, got %v", cat)
	}

	if _, ok, err := procStore.GetByDiscoveredFileID(df.ClientID, df.ConfigurationID, df.ID); err != nil || ok {
		t.Fatalf("expected no processed record for a rejected zero-byte transfer, ok=%v err=%v", ok, err)
	}
}
