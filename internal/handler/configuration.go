package handler

import (
	"context"

	"github.com/google/uuid"
	"github.com/teris-io/shortid"

	"github.com/AIS-Commercial-Business-Unit/RiskInsure-sub003/internal/bus"
	"github.com/AIS-Commercial-Business-Unit/RiskInsure-sub003/internal/clock"
	"github.com/AIS-Commercial-Business-Unit/RiskInsure-sub003/internal/logging"
	"github.com/AIS-Commercial-Business-Unit/RiskInsure-sub003/internal/model"
	"github.com/AIS-Commercial-Business-Unit/RiskInsure-sub003/internal/schedule"
	"github.com/AIS-Commercial-Business-Unit/RiskInsure-sub003/internal/store"
	"github.com/AIS-Commercial-Business-Unit/RiskInsure-sub003/internal/svcerr"
	"github.com/AIS-Commercial-Business-Unit/RiskInsure-sub003/internal/tokenexpand"
)

// ConfigurationHandlers groups the three configuration-lifecycle commands
// of §4.7 (Create/Update/Delete). They share the same store, bus, clock,
// logger, and schedule validator, so a single struct registers all three
// rather than three near-identical ones.
type ConfigurationHandlers struct {
	Configs   *store.ConfigurationStore
	Bus       bus.Bus
	Clock     clock.Clock
	Evaluator *schedule.Evaluator
	Log       *logging.Logger
}

// Register wires all three handlers against b.
func (h *ConfigurationHandlers) Register(b bus.Bus) {
	b.Handle(bus.TypeCreateConfiguration, h.HandleCreate)
	b.Handle(bus.TypeUpdateConfiguration, h.HandleUpdate)
	b.Handle(bus.TypeDeleteConfiguration, h.HandleDelete)
}

func (h *ConfigurationHandlers) validate(cfg *model.Configuration) error {
	if !h.Evaluator.IsValidCron(cfg.Schedule.CronExpression) {
		return svcerr.New(svcerr.ValidationError, nil, "handler: invalid cron expression %q", cfg.Schedule.CronExpression)
	}
	if !h.Evaluator.IsValidTimezone(cfg.Schedule.Timezone) {
		return svcerr.New(svcerr.ValidationError, nil, "handler: invalid timezone %q", cfg.Schedule.Timezone)
	}
	if tokenexpand.HasHostToken(cfg.FilePathPattern) {
		return svcerr.New(svcerr.ValidationError, nil, "handler: filePathPattern may not place a token in the URL authority")
	}
	if https := cfg.ProtocolSettings.HTTPS; https != nil {
		if err := validateHTTPSSettings(https); err != nil {
			return err
		}
	}
	return nil
}

// validateHTTPSSettings enforces §3's HTTPS field bounds (baseUrl host may
// not carry a token, baseUrl <= 500 chars, usernameOrKey/secretId <= 200
// chars, maxRedirects in [0,10]) — all previously documented only as
// comments on model.HTTPSSettings.
func validateHTTPSSettings(https *model.HTTPSSettings) error {
	if tokenexpand.HasHostToken(https.BaseURL) {
		return svcerr.New(svcerr.ValidationError, nil, "handler: HTTPS baseUrl may not place a token in the URL authority")
	}
	if len(https.BaseURL) < 8 || https.BaseURL[:8] != "https://" {
		return svcerr.New(svcerr.ValidationError, nil, "handler: HTTPS baseUrl must begin with https://")
	}
	if len(https.BaseURL) > 500 {
		return svcerr.New(svcerr.ValidationError, nil, "handler: HTTPS baseUrl exceeds 500 characters")
	}
	if len(https.UsernameOrKey) > 200 {
		return svcerr.New(svcerr.ValidationError, nil, "handler: HTTPS usernameOrKey exceeds 200 characters")
	}
	if len(https.SecretID) > 200 {
		return svcerr.New(svcerr.ValidationError, nil, "handler: HTTPS secretId exceeds 200 characters")
	}
	if https.MaxRedirects < 0 || https.MaxRedirects > 10 {
		return svcerr.New(svcerr.ValidationError, nil, "handler: HTTPS maxRedirects must be within [0, 10]")
	}
	return nil
}

// HandleCreate implements §4.7's CreateConfigurationHandler: idempotent on
// (clientId, id) collision, validates before persisting, emits
// ConfigurationCreated only on an actual insert.
func (h *ConfigurationHandlers) HandleCreate(ctx context.Context, env bus.Envelope) error {
	cfg, ok := env.Payload.(*model.Configuration)
	if !ok {
		return svcerr.New(svcerr.HandlerError, nil, "handler: CreateConfiguration payload has unexpected shape")
	}
	if cfg.ID == "" {
		id, err := shortid.Generate()
		if err != nil {
			return svcerr.New(svcerr.HandlerError, err, "handler: generate configurationId")
		}
		cfg.ID = id
	}
	if err := h.validate(cfg); err != nil {
		return err
	}

	now := h.Clock.Now()
	cfg.CreatedAt = now
	cfg.LastModifiedAt = now

	err := h.Configs.Create(cfg)
	if err == svcerr.ErrConflict {
		h.Log.WithClient(cfg.ClientID).WithConfiguration(cfg.ID).Debugf("handler: configuration already exists, CreateConfiguration is a no-op")
		return nil
	}
	if err != nil {
		return svcerr.New(svcerr.HandlerError, err, "handler: persist configuration %s", cfg.ID)
	}

	h.emit(ctx, bus.TypeConfigurationCreated, cfg.ClientID, env.CorrelationID, idempotencyKey(cfg.ClientID, cfg.ID, bus.TypeConfigurationCreated), cfg)
	return nil
}

// HandleUpdate implements §4.7's UpdateConfigurationHandler: an ETag
// mismatch fails with PreconditionFailed and leaves the stored record
// untouched (§8 property 3); changes take effect on the configuration's
// next scheduled evaluation only.
func (h *ConfigurationHandlers) HandleUpdate(ctx context.Context, env bus.Envelope) error {
	cfg, ok := env.Payload.(*model.Configuration)
	if !ok {
		return svcerr.New(svcerr.HandlerError, nil, "handler: UpdateConfiguration payload has unexpected shape")
	}
	if err := h.validate(cfg); err != nil {
		return err
	}

	cfg.LastModifiedAt = h.Clock.Now()
	if err := h.Configs.Update(cfg); err != nil {
		if err == svcerr.ErrPreconditionFailed {
			return svcerr.New(svcerr.PreconditionFailed, err, "handler: stale etag for configuration %s", cfg.ID)
		}
		return svcerr.New(svcerr.HandlerError, err, "handler: update configuration %s", cfg.ID)
	}

	h.emit(ctx, bus.TypeConfigurationUpdated, cfg.ClientID, env.CorrelationID, idempotencyKey(cfg.ClientID, cfg.ID, cfg.ETag, bus.TypeConfigurationUpdated), cfg)
	return nil
}

// DeleteConfigurationCommand is the payload DeleteConfigurationHandler
// expects: identity plus the caller's view of the current ETag.
type DeleteConfigurationCommand struct {
	ClientID        string `json:"clientId"`
	ConfigurationID string `json:"configurationId"`
	ETag            string `json:"etag"`
}

// HandleDelete implements §4.7's DeleteConfigurationHandler: an ETag-checked
// soft delete, emitting ConfigurationDeleted on success.
func (h *ConfigurationHandlers) HandleDelete(ctx context.Context, env bus.Envelope) error {
	cmd, ok := env.Payload.(DeleteConfigurationCommand)
	if !ok {
		return svcerr.New(svcerr.HandlerError, nil, "handler: DeleteConfiguration payload has unexpected shape")
	}
	if err := h.Configs.SoftDelete(cmd.ClientID, cmd.ConfigurationID, cmd.ETag); err != nil {
		if err == svcerr.ErrPreconditionFailed {
			return svcerr.New(svcerr.PreconditionFailed, err, "handler: stale etag for configuration %s", cmd.ConfigurationID)
		}
		return svcerr.New(svcerr.HandlerError, err, "handler: soft-delete configuration %s", cmd.ConfigurationID)
	}
	h.emit(ctx, bus.TypeConfigurationDeleted, cmd.ClientID, env.CorrelationID, idempotencyKey(cmd.ClientID, cmd.ConfigurationID, bus.TypeConfigurationDeleted), cmd)
	return nil
}

func (h *ConfigurationHandlers) emit(ctx context.Context, eventType, clientID, correlationID, idemKey string, payload interface{}) {
	env := bus.Envelope{
		MessageID:      uuid.NewString(),
		MessageType:    eventType,
		ClientID:       clientID,
		CorrelationID:  correlationID,
		IdempotencyKey: idemKey,
		OccurredUTC:    h.Clock.Now(),
		Payload:        payload,
	}
	if err := h.Bus.Publish(ctx, env); err != nil {
		h.Log.WithClient(clientID).WithError(err).Errorf("handler: publish %s", eventType)
	}
}
