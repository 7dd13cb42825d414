// Package webhook turns payment-provider events into ledger credits.
//
// Incoming amounts are gross: they include the plan's pass-through
// markup and are denominated in the customer's billing currency. The
// processor strips the markup, converts to USD and appends a
// WorkspaceCashIn. Signature verification happens upstream; events
// arriving here are already authenticated.
package webhook

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/outlaylabs/outlay/gateway"
	"github.com/outlaylabs/outlay/id"
	"github.com/outlaylabs/outlay/metrics"
	"github.com/outlaylabs/outlay/plan"
	"github.com/outlaylabs/outlay/rates"
	"github.com/outlaylabs/outlay/txn"
	"github.com/outlaylabs/outlay/types"
)

// ErrUnknownCustomer is returned when no workspace maps to a provider
// customer id.
var ErrUnknownCustomer = errors.New("webhook: unknown customer")

// PaymentEvent is an already-verified event from the payment provider.
// Providers report the gross charge in minor units of Currency (cents
// for USD); conversion to ledger money happens here at the boundary.
type PaymentEvent struct {
	ID               string `json:"id"`
	Type             string `json:"type"`
	CustomerID       string `json:"customer_id"`
	AmountMinorUnits int64  `json:"amount_minor_units"`
	Currency         string `json:"currency"`
}

// GrossAmount is the event's charge as ledger money. One minor unit is
// a hundredth of a currency unit, so ten thousand micros.
func (ev PaymentEvent) GrossAmount() types.Money {
	return types.MicrosFromInt(ev.AmountMinorUnits * 10_000)
}

// Workspace is the billing identity a provider customer maps to.
type Workspace struct {
	ID       id.AccountID
	PlanSlug string
}

// Resolver maps provider customer ids to workspaces.
type Resolver interface {
	WorkspaceForCustomer(ctx context.Context, customerID string) (Workspace, error)
}

// Processor handles payment events.
type Processor struct {
	gw       gateway.Gateway
	resolver Resolver
	plans    *plan.Registry
	rates    rates.Source
	logger   *slog.Logger

	mu        sync.Mutex
	processed map[string]bool
}

// NewProcessor creates a Processor.
func NewProcessor(gw gateway.Gateway, resolver Resolver, plans *plan.Registry, src rates.Source, logger *slog.Logger) *Processor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Processor{
		gw:        gw,
		resolver:  resolver,
		plans:     plans,
		rates:     src,
		logger:    logger,
		processed: make(map[string]bool),
	}
}

// HandlePaymentSucceeded credits a workspace for a settled payment.
// Processing the same event id twice appends nothing the second time.
func (p *Processor) HandlePaymentSucceeded(ctx context.Context, ev PaymentEvent) error {
	if ev.ID == "" {
		return fmt.Errorf("webhook: event without id")
	}
	if ev.AmountMinorUnits <= 0 {
		return fmt.Errorf("webhook: event %s: %w", ev.ID, types.ErrInvalidAmount)
	}
	gross := ev.GrossAmount()

	// Claim the event id before any remote call, so concurrent
	// redeliveries of the same event see it as processed. The claim is
	// released if processing fails, keeping the event retryable.
	p.mu.Lock()
	if p.processed[ev.ID] {
		p.mu.Unlock()
		metrics.WebhookEventsTotal.WithLabelValues(ev.Type, "duplicate").Inc()
		p.logger.InfoContext(ctx, "duplicate payment event skipped", "event", ev.ID)
		return nil
	}
	p.processed[ev.ID] = true
	p.mu.Unlock()

	credited := false
	defer func() {
		if !credited {
			p.mu.Lock()
			delete(p.processed, ev.ID)
			p.mu.Unlock()
		}
	}()

	workspace, err := p.resolver.WorkspaceForCustomer(ctx, ev.CustomerID)
	if err != nil {
		metrics.WebhookEventsTotal.WithLabelValues(ev.Type, "error").Inc()
		return fmt.Errorf("webhook: event %s: %w", ev.ID, err)
	}

	pl, err := p.plans.Get(workspace.PlanSlug)
	if err != nil {
		metrics.WebhookEventsTotal.WithLabelValues(ev.Type, "error").Inc()
		return fmt.Errorf("webhook: event %s: %w", ev.ID, err)
	}

	// The customer paid cost plus markup; only the cost part becomes
	// ledger credit.
	net, err := types.InvertMarkup(gross, pl.Markup)
	if err != nil {
		metrics.WebhookEventsTotal.WithLabelValues(ev.Type, "error").Inc()
		return fmt.Errorf("webhook: event %s: %w", ev.ID, err)
	}

	usd, err := p.toUSD(ctx, net, ev.Currency)
	if err != nil {
		metrics.WebhookEventsTotal.WithLabelValues(ev.Type, "error").Inc()
		return fmt.Errorf("webhook: event %s: %w", ev.ID, err)
	}

	credit, err := txn.NewWorkspaceCashIn(usd, workspace.ID)
	if err != nil {
		metrics.WebhookEventsTotal.WithLabelValues(ev.Type, "error").Inc()
		return fmt.Errorf("webhook: event %s: %w", ev.ID, err)
	}
	if _, err := p.gw.Append(ctx, credit); err != nil {
		metrics.WebhookEventsTotal.WithLabelValues(ev.Type, "error").Inc()
		return fmt.Errorf("webhook: event %s: append: %w", ev.ID, err)
	}
	credited = true

	metrics.WebhookEventsTotal.WithLabelValues(ev.Type, "ok").Inc()
	p.logger.InfoContext(ctx, "payment credited",
		"event", ev.ID,
		"workspace", workspace.ID.String(),
		"gross", gross.String(),
		"credited", usd.String(),
		"currency", ev.Currency)
	return nil
}

func (p *Processor) toUSD(ctx context.Context, amount types.Money, currency string) (types.Money, error) {
	if currency == "" || currency == "USD" || currency == "usd" {
		return amount, nil
	}
	resolved, err := p.rates.Rates(ctx, []string{currency})
	if err != nil {
		return types.Money{}, err
	}
	for _, rate := range resolved {
		return rate.USDFromLocal(amount)
	}
	return types.Money{}, fmt.Errorf("%w: %q", rates.ErrCurrencyNotSupported, currency)
}
