// Package audithook bridges metering lifecycle events to an audit
// trail backend.
//
// It defines a local Recorder interface so the package does not depend
// on any concrete audit store. Callers inject a RecorderFunc adapter
// that bridges to their backend at wiring time.
package audithook

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/outlaylabs/outlay/hook"
)

// Compile-time interface checks.
var (
	_ hook.Hook                = (*Extension)(nil)
	_ hook.OnCharge            = (*Extension)(nil)
	_ hook.OnLedgerWriteFailed = (*Extension)(nil)
	_ hook.OnReservationLeaked = (*Extension)(nil)
	_ hook.OnVoucherCreated    = (*Extension)(nil)
)

// Recorder is the interface that audit backends must implement.
type Recorder interface {
	Record(ctx context.Context, event *AuditEvent) error
}

// AuditEvent is a local representation of an audit event.
type AuditEvent struct {
	Action     string         `json:"action"`
	Resource   string         `json:"resource"`
	Category   string         `json:"category"`
	ResourceID string         `json:"resource_id,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	Outcome    string         `json:"outcome"`
	Severity   string         `json:"severity"`
	Reason     string         `json:"reason,omitempty"`
}

// RecorderFunc is an adapter to use a plain function as a Recorder.
type RecorderFunc func(ctx context.Context, event *AuditEvent) error

// Record implements Recorder.
func (f RecorderFunc) Record(ctx context.Context, event *AuditEvent) error {
	return f(ctx, event)
}

// Extension bridges metering lifecycle events to an audit trail backend.
type Extension struct {
	recorder Recorder
	enabled  map[string]bool // nil = all enabled
	logger   *slog.Logger
}

// New creates an Extension that emits audit events through the provided Recorder.
func New(r Recorder, opts ...Option) *Extension {
	e := &Extension{
		recorder: r,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Name implements hook.Hook.
func (e *Extension) Name() string { return "audit-hook" }

// OnCharge implements hook.OnCharge.
func (e *Extension) OnCharge(ctx context.Context, ev hook.ChargeEvent) error {
	return e.record(ctx, ActionChargeRecorded, SeverityInfo, OutcomeSuccess,
		ResourceCharge, ev.Payer.String(), CategoryBilling, nil,
		"kind", string(ev.Transaction.Kind()),
	)
}

// OnLedgerWriteFailed implements hook.OnLedgerWriteFailed.
func (e *Extension) OnLedgerWriteFailed(ctx context.Context, ev hook.WriteFailure) error {
	kind := ""
	if ev.Transaction != nil {
		kind = string(ev.Transaction.Kind())
	}
	return e.record(ctx, ActionChargeWriteFailed, SeverityCritical, OutcomeFailure,
		ResourceCharge, ev.Payer.String(), CategoryBilling, ev.Err,
		"kind", kind,
	)
}

// OnReservationLeaked implements hook.OnReservationLeaked.
func (e *Extension) OnReservationLeaked(ctx context.Context, ev hook.Leak) error {
	return e.record(ctx, ActionReservationLeaked, SeverityCritical, OutcomeFailure,
		ResourceReservation, ev.Identifier.String(), CategoryBilling, ev.Err,
		"payer", ev.Payer.String(),
		"reserved", ev.Reserved.String(),
	)
}

// OnVoucherCreated implements hook.OnVoucherCreated.
func (e *Extension) OnVoucherCreated(ctx context.Context, ev hook.VoucherEvent) error {
	return e.record(ctx, ActionVoucherCreated, SeverityInfo, OutcomeSuccess,
		ResourceVoucher, ev.VoucherID, CategoryPayment, nil,
		"workspace", ev.WorkspaceID.String(),
		"amount", ev.Amount.String(),
	)
}

// record builds and sends an audit event if the action is enabled.
func (e *Extension) record(
	ctx context.Context,
	action, severity, outcome string,
	resource, resourceID, category string,
	err error,
	kvPairs ...any,
) error {
	if e.enabled != nil && !e.enabled[action] {
		return nil
	}

	meta := make(map[string]any, len(kvPairs)/2+1)
	for i := 0; i+1 < len(kvPairs); i += 2 {
		key, ok := kvPairs[i].(string)
		if !ok {
			key = fmt.Sprintf("%v", kvPairs[i])
		}
		meta[key] = kvPairs[i+1]
	}

	var reason string
	if err != nil {
		reason = err.Error()
		meta["error"] = err.Error()
	}

	evt := &AuditEvent{
		Action:     action,
		Resource:   resource,
		Category:   category,
		ResourceID: resourceID,
		Metadata:   meta,
		Outcome:    outcome,
		Severity:   severity,
		Reason:     reason,
	}

	if recErr := e.recorder.Record(ctx, evt); recErr != nil {
		e.logger.Warn("audit_hook: failed to record audit event",
			"action", action,
			"resource_id", resourceID,
			"error", recErr,
		)
	}
	return nil
}
