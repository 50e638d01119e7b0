package handler

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"io"

	"github.com/google/uuid"

	"github.com/AIS-Commercial-Business-Unit/RiskInsure-sub003/internal/adapter"
	"github.com/AIS-Commercial-Business-Unit/RiskInsure-sub003/internal/bus"
	"github.com/AIS-Commercial-Business-Unit/RiskInsure-sub003/internal/clock"
	"github.com/AIS-Commercial-Business-Unit/RiskInsure-sub003/internal/logging"
	"github.com/AIS-Commercial-Business-Unit/RiskInsure-sub003/internal/model"
	"github.com/AIS-Commercial-Business-Unit/RiskInsure-sub003/internal/store"
	"github.com/AIS-Commercial-Business-Unit/RiskInsure-sub003/internal/svcerr"
)

// ProcessDiscoveredFileHandler implements §4.7's ProcessDiscoveredFileHandler
// and §3's Processed Record creation: download, checksum, idempotent
// insert, conditional emission.
type ProcessDiscoveredFileHandler struct {
	Configs     *store.ConfigurationStore
	Discoveries *store.DiscoveryStore
	Processed   *store.ProcessedStore
	Secrets     adapter.SecretResolver
	Bus         bus.Bus
	Clock       clock.Clock
	Log         *logging.Logger
}

func (h *ProcessDiscoveredFileHandler) Handle(ctx context.Context, env bus.Envelope) error {
	df, ok := env.Payload.(*model.DiscoveredFile)
	if !ok {
		return svcerr.New(svcerr.HandlerError, nil, "handler: ProcessDiscoveredFile payload has unexpected shape")
	}
	log := h.Log.WithClient(df.ClientID).WithConfiguration(df.ConfigurationID).WithCorrelation(env.CorrelationID)

	cfg, ok, err := h.Configs.GetByID(df.ClientID, df.ConfigurationID)
	if err != nil {
		return svcerr.New(svcerr.HandlerError, err, "handler: load configuration %s", df.ConfigurationID)
	}
	if !ok {
		log.Warnf("handler: configuration no longer exists, dropping ProcessDiscoveredFile")
		return nil
	}

	a, err := adapter.Resolve(cfg.ProtocolSettings, h.Secrets)
	if err != nil {
		return err
	}
	return h.processWithAdapter(ctx, env, df, a)
}

// processWithAdapter implements the download-checksum-insert-emit sequence
// given an already-resolved adapter, factored out of Handle so tests can
// supply a fake Adapter instead of dialing a real remote location.
func (h *ProcessDiscoveredFileHandler) processWithAdapter(ctx context.Context, env bus.Envelope, df *model.DiscoveredFile, a adapter.Adapter) error {
	log := h.Log.WithClient(df.ClientID).WithConfiguration(df.ConfigurationID).WithCorrelation(env.CorrelationID)

	rc, err := a.Download(ctx, df.FileURL)
	if err != nil {
		return err
	}
	defer rc.Close()

	sum := sha256.New()
	size, err := io.Copy(sum, rc)
	if err != nil {
		return svcerr.New(svcerr.ProtocolError, err, "handler: download %s", df.FileURL)
	}
	if size == 0 {
		return svcerr.New(svcerr.ProtocolError, nil, "handler: download %s yielded zero bytes", df.FileURL)
	}

	processed := &model.ProcessedFile{
		ClientID:            df.ClientID,
		ConfigurationID:     df.ConfigurationID,
		DiscoveredFileID:    df.ID,
		Filename:            df.Filename,
		DownloadedSizeBytes: size,
		ChecksumAlgorithm:   "SHA-256",
		ChecksumHex:         hex.EncodeToString(sum.Sum(nil)),
		ProcessedAt:         h.Clock.Now(),
		CorrelationID:       env.CorrelationID,
		IdempotencyKey:      env.IdempotencyKey,
	}

	inserted, ok, err := h.Processed.Create(processed)
	if err != nil {
		return svcerr.New(svcerr.HandlerError, err, "handler: persist processed file %s", df.ID)
	}
	if !ok {
		log.Debugf("handler: discovered file %s already processed, skipping DiscoveredFileProcessed", df.ID)
		return nil
	}

	out := bus.Envelope{
		MessageID:      uuid.NewString(),
		MessageType:    bus.TypeDiscoveredFileProcessed,
		ClientID:       df.ClientID,
		CorrelationID:  env.CorrelationID,
		IdempotencyKey: idempotencyKey(df.ClientID, df.ConfigurationID, df.ID, bus.TypeDiscoveredFileProcessed),
		OccurredUTC:    h.Clock.Now(),
		Payload:        inserted,
	}
	if err := h.Bus.Publish(ctx, out); err != nil {
		log.WithError(err).Errorf("handler: publish DiscoveredFileProcessed")
	}
	return nil
}
