// Package filecheck implements the File-Check Service (§4.5): the single
// execution pipeline a scheduled or manually-triggered configuration run
// drives. Orchestration only — protocol I/O lives in internal/adapter,
// persistence in internal/store, messaging in internal/bus.
package filecheck

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	cuckoo "github.com/seiflotfy/cuckoofilter"

	"github.com/AIS-Commercial-Business-Unit/RiskInsure-sub003/internal/adapter"
	"github.com/AIS-Commercial-Business-Unit/RiskInsure-sub003/internal/bus"
	"github.com/AIS-Commercial-Business-Unit/RiskInsure-sub003/internal/clock"
	"github.com/AIS-Commercial-Business-Unit/RiskInsure-sub003/internal/logging"
	"github.com/AIS-Commercial-Business-Unit/RiskInsure-sub003/internal/model"
	"github.com/AIS-Commercial-Business-Unit/RiskInsure-sub003/internal/store"
	"github.com/AIS-Commercial-Business-Unit/RiskInsure-sub003/internal/svcerr"
	"github.com/AIS-Commercial-Business-Unit/RiskInsure-sub003/internal/telemetry"
	"github.com/AIS-Commercial-Business-Unit/RiskInsure-sub003/internal/tokenexpand"
)

const (
	listMaxAttempts  = 3
	listBaseBackoff  = 1 * time.Second
)

// Service runs one configuration's file-check pipeline per call (§4.5).
type Service struct {
	Executions  *store.ExecutionStore
	Discoveries *store.DiscoveryStore
	Bus         bus.Bus
	Clock       clock.Clock
	Secrets     adapter.SecretResolver
	Log         *logging.Logger
	Metrics     *telemetry.Metrics

	dedupe *dedupeCache
}

// NewService wires a Service; dedupe sizes its per-configuration cuckoo
// filters to accommodate a reasonably busy single day's discoveries before
// false-positive rates climb (§4.5).
func NewService(executions *store.ExecutionStore, discoveries *store.DiscoveryStore, b bus.Bus, clk clock.Clock, secrets adapter.SecretResolver, log *logging.Logger, metrics *telemetry.Metrics) *Service {
	return &Service{
		Executions:  executions,
		Discoveries: discoveries,
		Bus:         b,
		Clock:       clk,
		Secrets:     secrets,
		Log:         log,
		Metrics:     metrics,
		dedupe:      newDedupeCache(),
	}
}

// Result is the outcome of one Execute call, enough for the handler layer to
// decide which terminal event to emit (§4.7).
type Result struct {
	Execution      *model.Execution
	DiscoveredNew  []*model.DiscoveredFile
	Failed         bool
}

// Execute runs the pipeline of §4.5 steps 1-7 for cfg at scheduledInstant,
// under executionID (pre-allocated by the caller, per §4.5's input
// contract).
func (s *Service) Execute(ctx context.Context, cfg *model.Configuration, scheduledInstant time.Time, executionID, correlationID string) (*Result, error) {
	log := s.Log.WithClient(cfg.ClientID).WithConfiguration(cfg.ID).WithExecution(executionID).WithCorrelation(correlationID).WithProtocol(string(cfg.Protocol))

	started := s.Clock.Now()
	exec := &model.Execution{
		ClientID:        cfg.ClientID,
		ConfigurationID: cfg.ID,
		ID:              executionID,
		Status:          model.ExecutionRunning,
		StartedAt:       started,
	}
	if err := s.Executions.Create(exec); err != nil && err != svcerr.ErrConflict {
		return nil, svcerr.New(svcerr.HandlerError, err, "filecheck: persist execution record")
	}

	resolvedPath := tokenexpand.Expand(cfg.FilePathPattern, scheduledInstant)
	resolvedName := tokenexpand.Expand(cfg.FilenamePattern, scheduledInstant)
	exec.ResolvedFilePathPattern = resolvedPath
	exec.ResolvedFilenamePattern = resolvedName

	a, err := adapter.Resolve(cfg.ProtocolSettings, s.Secrets)
	if err != nil {
		return s.fail(ctx, log, cfg, exec, started, err)
	}

	listed, err := s.listWithRetry(ctx, a, string(cfg.Protocol), resolvedPath, resolvedName, cfg.FileExtension, log)
	if err != nil {
		return s.fail(ctx, log, cfg, exec, started, err)
	}

	return s.runDiscoveryAndPublish(ctx, log, cfg, exec, started, scheduledInstant, correlationID, listed)
}

// runDiscoveryAndPublish implements §4.5 steps 5-7 given an already-listed
// file set, factored out of Execute so the discovery/idempotency/publish
// logic is independently testable without exercising a real protocol
// adapter.
func (s *Service) runDiscoveryAndPublish(ctx context.Context, log *logging.Logger, cfg *model.Configuration, exec *model.Execution, started, scheduledInstant time.Time, correlationID string, listed []model.ListedFile) (*Result, error) {
	exec.FilesFound = len(listed)

	discoveryDate := time.Date(scheduledInstant.Year(), scheduledInstant.Month(), scheduledInstant.Day(), 0, 0, 0, 0, time.UTC)
	filter := s.dedupe.forConfiguration(cfg.ClientID, cfg.ID, discoveryDate)

	var newlyDiscovered []*model.DiscoveredFile
	for _, lf := range listed {
		df := &model.DiscoveredFile{
			ClientID:        cfg.ClientID,
			ConfigurationID: cfg.ID,
			ExecutionID:     exec.ID,
			FileURL:         lf.FileURL,
			Filename:        lf.Filename,
			FileSizeBytes:   lf.Size,
			DiscoveryDate:   discoveryDate,
			DiscoveredAt:    s.Clock.Now(),
		}
		dedupeKey := []byte(df.UniqueKey())
		if filter.Lookup(dedupeKey) {
			// Probably already recorded today; the store insert below is
			// still the authority, so a false positive here only costs a
			// skipped fast-path, never a missed discovery.
			if exists, _ := s.Discoveries.Exists(df); exists {
				continue
			}
		}
		inserted, ok, err := s.Discoveries.Create(df)
		if err != nil {
			return s.fail(ctx, log, cfg, exec, started, svcerr.New(svcerr.HandlerError, err, "filecheck: discovery insert"))
		}
		filter.InsertUnique(dedupeKey)
		if !ok {
			continue
		}
		newlyDiscovered = append(newlyDiscovered, inserted)
		if s.Metrics != nil {
			s.Metrics.FilesDiscovered.WithLabelValues(string(cfg.Protocol)).Inc()
		}
	}
	exec.FilesProcessed = len(newlyDiscovered)

	for _, df := range newlyDiscovered {
		idempotencyKey := fmt.Sprintf("%s##%s##%s##%s", cfg.ClientID, cfg.ID, exec.ID, df.ID)
		if containsString(cfg.EventsToPublish, bus.TypeFileDiscovered) {
			env := bus.Envelope{
				MessageID:      uuid.NewString(),
				MessageType:    bus.TypeFileDiscovered,
				ClientID:       cfg.ClientID,
				CorrelationID:  correlationID,
				IdempotencyKey: idempotencyKey,
				OccurredUTC:    s.Clock.Now(),
				Payload:        df,
			}
			if err := s.Bus.Publish(ctx, env); err != nil {
				return s.fail(ctx, log, cfg, exec, started, svcerr.New(svcerr.HandlerError, err, "filecheck: publish FileDiscovered"))
			}
		}
		if containsString(cfg.CommandsToSend, bus.TypeProcessDiscoveredFile) {
			env := bus.Envelope{
				MessageID:      uuid.NewString(),
				MessageType:    bus.TypeProcessDiscoveredFile,
				ClientID:       cfg.ClientID,
				CorrelationID:  correlationID,
				IdempotencyKey: idempotencyKey,
				OccurredUTC:    s.Clock.Now(),
				Payload:        df,
			}
			if err := s.Bus.Send(ctx, env); err != nil {
				return s.fail(ctx, log, cfg, exec, started, svcerr.New(svcerr.HandlerError, err, "filecheck: send ProcessDiscoveredFile"))
			}
		}
	}

	completed := s.Clock.Now()
	exec.Status = model.ExecutionCompleted
	exec.CompletedAt = &completed
	exec.DurationMs = completed.Sub(started).Milliseconds()
	if err := s.Executions.Update(exec); err != nil {
		log.WithError(err).Errorf("filecheck: failed to persist completed execution")
	}
	if s.Metrics != nil {
		s.Metrics.ExecutionDuration.WithLabelValues(string(cfg.Protocol), "completed").Observe(float64(exec.DurationMs) / 1000)
	}

	return &Result{Execution: exec, DiscoveredNew: newlyDiscovered}, nil
}

func (s *Service) fail(ctx context.Context, log *logging.Logger, cfg *model.Configuration, exec *model.Execution, started time.Time, cause error) (*Result, error) {
	completed := s.Clock.Now()
	exec.Status = model.ExecutionFailed
	exec.CompletedAt = &completed
	exec.DurationMs = completed.Sub(started).Milliseconds()
	exec.ErrorMessage = cause.Error()
	exec.ErrorCategory = string(svcerr.CategoryOf(cause))
	if err := s.Executions.Update(exec); err != nil {
		log.WithError(err).Errorf("filecheck: failed to persist failed execution")
	}
	if s.Metrics != nil {
		s.Metrics.ExecutionDuration.WithLabelValues(string(cfg.Protocol), "failed").Observe(float64(exec.DurationMs) / 1000)
	}
	log.WithError(cause).Errorf("filecheck: execution failed")
	return &Result{Execution: exec, Failed: true}, cause
}

// executeWithListedFiles drives steps 1 and 5-7 against a caller-supplied
// listed-file set, skipping step 2's token expansion, adapter resolution and
// step 4's list-with-retry entirely. Test-only seam (unexported), used to exercise discovery
// idempotency and event publication without a live protocol adapter.
func (s *Service) executeWithListedFiles(ctx context.Context, cfg *model.Configuration, scheduledInstant time.Time, executionID, correlationID string, listed []model.ListedFile) (*Result, error) {
	log := s.Log.WithClient(cfg.ClientID).WithConfiguration(cfg.ID).WithExecution(executionID).WithCorrelation(correlationID).WithProtocol(string(cfg.Protocol))
	started := s.Clock.Now()
	exec := &model.Execution{
		ClientID:        cfg.ClientID,
		ConfigurationID: cfg.ID,
		ID:              executionID,
		Status:          model.ExecutionRunning,
		StartedAt:       started,
	}
	if err := s.Executions.Create(exec); err != nil && err != svcerr.ErrConflict {
		return nil, svcerr.New(svcerr.HandlerError, err, "filecheck: persist execution record")
	}
	return s.runDiscoveryAndPublish(ctx, log, cfg, exec, started, scheduledInstant, correlationID, listed)
}

// listWithRetry implements §4.5 step 4: up to listMaxAttempts attempts,
// exponential back-off with jitter, retrying only ConnectionTimeout and
// ProtocolError categories.
func (s *Service) listWithRetry(ctx context.Context, a adapter.Adapter, protocol, pathPattern, filenamePattern, fileExtension string, log *logging.Logger) ([]model.ListedFile, error) {
	var lastErr error
	for attempt := 0; attempt < listMaxAttempts; attempt++ {
		if attempt > 0 {
			backoff := listBaseBackoff * time.Duration(1<<uint(attempt-1))
			jitter := time.Duration(rand.Int63n(int64(backoff) / 2))
			select {
			case <-ctx.Done():
				return nil, svcerr.New(svcerr.Cancelled, ctx.Err(), "filecheck: list cancelled during back-off")
			case <-s.Clock.After(backoff + jitter):
			}
		}
		listed, err := a.List(ctx, pathPattern, filenamePattern, fileExtension)
		if err == nil {
			return listed, nil
		}
		lastErr = err
		cat := svcerr.CategoryOf(err)
		if s.Metrics != nil {
			s.Metrics.AdapterErrors.WithLabelValues(protocol, string(cat)).Inc()
		}
		if !cat.Retryable() {
			return nil, err
		}
		log.WithError(err).Warnf("filecheck: list attempt %d/%d failed, retrying", attempt+1, listMaxAttempts)
	}
	return nil, lastErr
}

func containsString(ss []string, s string) bool {
	for _, v := range ss {
		if v == s {
			return true
		}
	}
	return false
}

// dedupeCache holds one cuckoofilter per (clientId, configurationId),
// reset whenever the UTC calendar date rolls over (§4.5's "cleared once per
// UTC day" rule).
type dedupeCache struct {
	mu      sync.Mutex
	entries map[string]*dedupeEntry
}

type dedupeEntry struct {
	date   time.Time
	filter *cuckoo.Filter
}

func newDedupeCache() *dedupeCache {
	return &dedupeCache{entries: make(map[string]*dedupeEntry)}
}

const cuckooFilterCapacity = 100_000

func (c *dedupeCache) forConfiguration(clientID, configurationID string, date time.Time) *cuckoo.Filter {
	key := clientID + "##" + configurationID
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	if !ok || !e.date.Equal(date) {
		e = &dedupeEntry{date: date, filter: cuckoo.NewFilter(cuckooFilterCapacity)}
		c.entries[key] = e
	}
	return e.filter
}
