// Package handler implements the message-bus command/event handlers of
// §4.7: each one is idempotent under at-least-once redelivery, the same
// discipline the store package's uniqueness constraints enforce one layer
// down.
package handler

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/AIS-Commercial-Business-Unit/RiskInsure-sub003/internal/bus"
	"github.com/AIS-Commercial-Business-Unit/RiskInsure-sub003/internal/clock"
	"github.com/AIS-Commercial-Business-Unit/RiskInsure-sub003/internal/filecheck"
	"github.com/AIS-Commercial-Business-Unit/RiskInsure-sub003/internal/logging"
	"github.com/AIS-Commercial-Business-Unit/RiskInsure-sub003/internal/model"
	"github.com/AIS-Commercial-Business-Unit/RiskInsure-sub003/internal/scheduler"
	"github.com/AIS-Commercial-Business-Unit/RiskInsure-sub003/internal/store"
	"github.com/AIS-Commercial-Business-Unit/RiskInsure-sub003/internal/svcerr"
)

func idempotencyKey(parts ...string) string {
	key := parts[0]
	for _, p := range parts[1:] {
		key += "##" + p
	}
	return key
}

const (
	triggerSourceScheduler = "scheduler"
	triggerSourceManualAPI = "manual-api"
)

// FileCheckTriggeredEvent is the payload of a FileCheckTriggered event (§6).
type FileCheckTriggeredEvent struct {
	ExecutionID            string    `json:"executionId"`
	ConfigurationName      string    `json:"configurationName"`
	Protocol               string    `json:"protocol"`
	ScheduledExecutionTime time.Time `json:"scheduledExecutionTime"`
	IsManualTrigger        bool      `json:"isManualTrigger"`
	TriggeredBy            string    `json:"triggeredBy"`
}

// ExecuteFileCheckHandler consumes ExecuteFileCheck commands, drives the
// File-Check Service, and emits FileCheckTriggered followed by
// FileCheckCompleted or FileCheckFailed (§4.7). When Handle returns it
// releases the scheduler's in-flight mark and concurrency permit; the
// scheduler's own release after its synchronous Send then finds nothing to
// release, so the permit is returned exactly once.
//
// Manual-trigger invariant (§4.5): identical pipeline to a scheduled run,
// except FileCheckTriggered.triggeredBy reads "manual-api" instead of
// "scheduler". The due-window check is the scheduler's own gate on
// dispatching ExecuteFileCheck in the first place (internal/scheduler's
// dueCheck) — a manually dispatched command reaches Handle directly, never
// passing through the scheduler's tick, so it is never subject to that
// check at all.
type ExecuteFileCheckHandler struct {
	Configs   *store.ConfigurationStore
	Service   *filecheck.Service
	Bus       bus.Bus
	Clock     clock.Clock
	Log       *logging.Logger
	Scheduler *scheduler.Loop // nil when no scheduler runs; Release ignores ids it has not marked in flight (e.g. a manual trigger)
}

func (h *ExecuteFileCheckHandler) Handle(ctx context.Context, env bus.Envelope) error {
	cmd, ok := decodeExecuteFileCheckCommand(env.Payload)
	if !ok {
		return svcerr.New(svcerr.HandlerError, nil, "handler: ExecuteFileCheck payload has unexpected shape")
	}
	if h.Scheduler != nil {
		defer h.Scheduler.Release(cmd.ConfigurationID)
	}
	log := h.Log.WithClient(env.ClientID).WithConfiguration(cmd.ConfigurationID).WithExecution(cmd.ExecutionID).WithCorrelation(env.CorrelationID)

	cfg, ok, err := h.Configs.GetByID(env.ClientID, cmd.ConfigurationID)
	if err != nil {
		return svcerr.New(svcerr.HandlerError, err, "handler: load configuration %s", cmd.ConfigurationID)
	}
	if !ok || !cfg.IsActive {
		log.Warnf("handler: configuration missing or inactive, failing ExecuteFileCheck")
		h.publishTerminal(ctx, bus.TypeFileCheckFailed, env, cmd, nil)
		return nil
	}

	triggeredBy := triggerSourceScheduler
	if cmd.IsManualTrigger {
		triggeredBy = triggerSourceManualAPI
	}
	triggered := FileCheckTriggeredEvent{
		ExecutionID:            cmd.ExecutionID,
		ConfigurationName:      cfg.Name,
		Protocol:               string(cfg.Protocol),
		ScheduledExecutionTime: cmd.ScheduledExecutionTime,
		IsManualTrigger:        cmd.IsManualTrigger,
		TriggeredBy:            triggeredBy,
	}
	h.publish(ctx, bus.TypeFileCheckTriggered, env.ClientID, env.CorrelationID, idempotencyKey(cfg.ClientID, cfg.ID, cmd.ExecutionID, bus.TypeFileCheckTriggered), triggered)

	result, execErr := h.Service.Execute(ctx, cfg, cmd.ScheduledExecutionTime, cmd.ExecutionID, env.CorrelationID)
	if result == nil {
		h.publishTerminal(ctx, bus.TypeFileCheckFailed, env, cmd, nil)
		return execErr
	}

	h.advanceSchedule(cfg, result)

	eventType := bus.TypeFileCheckCompleted
	if result.Failed {
		eventType = bus.TypeFileCheckFailed
	}
	h.publishTerminal(ctx, eventType, env, cmd, result.Execution)
	return execErr
}

func (h *ExecuteFileCheckHandler) publishTerminal(ctx context.Context, eventType string, env bus.Envelope, cmd scheduler.ExecuteFileCheckCommand, execution *model.Execution) {
	h.publish(ctx, eventType, env.ClientID, env.CorrelationID, idempotencyKey(env.ClientID, cmd.ConfigurationID, cmd.ExecutionID, eventType), execution)
}

func (h *ExecuteFileCheckHandler) publish(ctx context.Context, eventType, clientID, correlationID, idemKey string, payload interface{}) {
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

// advanceSchedule clears the persisted nextScheduledRun after a run so the
// scheduler's next tick recomputes it from lastExecutedAt (§4.6 step 3);
// changes to a configuration's schedule therefore take effect starting with
// the next evaluation, never mid-execution (§4.7).
func (h *ExecuteFileCheckHandler) advanceSchedule(cfg *model.Configuration, result *filecheck.Result) {
	now := result.Execution.StartedAt
	cfg.LastExecutedAt = &now
	cfg.NextScheduledRun = nil
	if err := h.Configs.Update(cfg); err != nil {
		h.Log.WithClient(cfg.ClientID).WithConfiguration(cfg.ID).WithError(err).Warnf("handler: failed to advance lastExecutedAt")
	}
}

func decodeExecuteFileCheckCommand(payload interface{}) (scheduler.ExecuteFileCheckCommand, bool) {
	if cmd, ok := payload.(scheduler.ExecuteFileCheckCommand); ok {
		return cmd, true
	}
	m, ok := payload.(map[string]interface{})
	if !ok {
		return scheduler.ExecuteFileCheckCommand{}, false
	}
	cmd := scheduler.ExecuteFileCheckCommand{}
	if v, ok := m["configurationId"].(string); ok {
		cmd.ConfigurationID = v
	}
	if v, ok := m["executionId"].(string); ok {
		cmd.ExecutionID = v
	}
	if v, ok := m["isManualTrigger"].(bool); ok {
		cmd.IsManualTrigger = v
	}
	if v, ok := m["scheduledExecutionTime"].(string); ok {
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			cmd.ScheduledExecutionTime = t
		}
	}
	return cmd, cmd.ConfigurationID != ""
}
