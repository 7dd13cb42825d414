package hook

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// Registry manages registered hooks and dispatches events to them.
// Interface lists are cached at registration time so emission does no
// type assertions.
type Registry struct {
	mu     sync.RWMutex
	hooks  []Hook
	logger *slog.Logger

	onCharge            []OnCharge
	onLedgerWriteFailed []OnLedgerWriteFailed
	onReservationLeaked []OnReservationLeaked
	onVoucherCreated    []OnVoucherCreated
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{logger: slog.Default()}
}

// WithLogger sets the logger for the registry.
func (r *Registry) WithLogger(logger *slog.Logger) *Registry {
	r.logger = logger
	return r
}

// Register adds a hook and caches the event interfaces it implements.
func (r *Registry) Register(h Hook) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, existing := range r.hooks {
		if existing.Name() == h.Name() {
			return fmt.Errorf("hook: duplicate registration: %s", h.Name())
		}
	}
	r.hooks = append(r.hooks, h)

	if v, ok := h.(OnCharge); ok {
		r.onCharge = append(r.onCharge, v)
	}
	if v, ok := h.(OnLedgerWriteFailed); ok {
		r.onLedgerWriteFailed = append(r.onLedgerWriteFailed, v)
	}
	if v, ok := h.(OnReservationLeaked); ok {
		r.onReservationLeaked = append(r.onReservationLeaked, v)
	}
	if v, ok := h.(OnVoucherCreated); ok {
		r.onVoucherCreated = append(r.onVoucherCreated, v)
	}

	r.logger.Info("hook registered", "name", h.Name())
	return nil
}

// Count returns the number of registered hooks.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.hooks)
}

// EmitCharge calls OnCharge for all hooks that implement it.
func (r *Registry) EmitCharge(ctx context.Context, ev ChargeEvent) {
	r.mu.RLock()
	hooks := r.onCharge
	r.mu.RUnlock()

	for _, h := range hooks {
		if err := r.callWithTimeout(ctx, h.Name(), func() error {
			return h.OnCharge(ctx, ev)
		}); err != nil {
			r.logger.Warn("hook OnCharge failed", "hook", h.Name(), "error", err)
		}
	}
}

// EmitLedgerWriteFailed calls OnLedgerWriteFailed for all hooks that
// implement it.
func (r *Registry) EmitLedgerWriteFailed(ctx context.Context, ev WriteFailure) {
	r.mu.RLock()
	hooks := r.onLedgerWriteFailed
	r.mu.RUnlock()

	for _, h := range hooks {
		if err := r.callWithTimeout(ctx, h.Name(), func() error {
			return h.OnLedgerWriteFailed(ctx, ev)
		}); err != nil {
			r.logger.Warn("hook OnLedgerWriteFailed failed", "hook", h.Name(), "error", err)
		}
	}
}

// EmitReservationLeaked calls OnReservationLeaked for all hooks that
// implement it.
func (r *Registry) EmitReservationLeaked(ctx context.Context, ev Leak) {
	r.mu.RLock()
	hooks := r.onReservationLeaked
	r.mu.RUnlock()

	for _, h := range hooks {
		if err := r.callWithTimeout(ctx, h.Name(), func() error {
			return h.OnReservationLeaked(ctx, ev)
		}); err != nil {
			r.logger.Warn("hook OnReservationLeaked failed", "hook", h.Name(), "error", err)
		}
	}
}

// EmitVoucherCreated calls OnVoucherCreated for all hooks that
// implement it.
func (r *Registry) EmitVoucherCreated(ctx context.Context, ev VoucherEvent) {
	r.mu.RLock()
	hooks := r.onVoucherCreated
	r.mu.RUnlock()

	for _, h := range hooks {
		if err := r.callWithTimeout(ctx, h.Name(), func() error {
			return h.OnVoucherCreated(ctx, ev)
		}); err != nil {
			r.logger.Warn("hook OnVoucherCreated failed", "hook", h.Name(), "error", err)
		}
	}
}

// callWithTimeout calls a hook function with a timeout. Hooks must
// never block the billing pipeline.
func (r *Registry) callWithTimeout(ctx context.Context, hookName string, fn func() error) error {
	done := make(chan error, 1)

	go func() {
		done <- fn()
	}()

	select {
	case err := <-done:
		return err
	case <-time.After(5 * time.Second):
		return fmt.Errorf("hook timeout: %s", hookName)
	case <-ctx.Done():
		return ctx.Err()
	}
}
