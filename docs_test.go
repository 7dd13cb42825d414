package outlay_test

import (
	"context"
	"log"
	"log/slog"
	"testing"

	"github.com/outlaylabs/outlay"
	"github.com/outlaylabs/outlay/gateway/memory"
	"github.com/outlaylabs/outlay/id"
	"github.com/outlaylabs/outlay/txn"
	"github.com/outlaylabs/outlay/types"
)

// TestDocumentationExamples verifies that the examples in the documentation compile
func TestDocumentationExamples(t *testing.T) {
	// Quick Start example from the package docs
	t.Run("QuickStartExample", func(t *testing.T) {
		// Create a gateway (memory for demo, use httpgw in production)
		gw := memory.New()

		m := outlay.New(gw,
			outlay.WithLogger(slog.Default()),
			outlay.WithMetrics(false),
		)

		ctx := context.Background()
		payer := id.NewAccountID()
		user := id.NewAccountID()

		// Fund the account
		if err := m.Deposit(ctx, payer, types.FromUnits(50)); err != nil {
			t.Fatal(err)
		}

		// Charge for a piece of metered work
		result, err := m.Charge(ctx, outlay.ChargeRequest{
			Payer: payer,
			Actor: user,
			Work: func(ctx context.Context) (outlay.WorkResult, error) {
				// Call the vendor here; report what it consumed.
				return outlay.WorkResult{
					Usage: txn.Usage{PromptTokens: 120, CompletionTokens: 80, TotalTokens: 200},
					Model: "gpt-4o-mini",
				}, nil
			},
		})
		if err != nil {
			t.Fatal(err)
		}
		log.Printf("charged for %d tokens\n", result.Work.Usage.TotalTokens)

		balance, err := m.Balance(ctx, payer)
		if err != nil {
			t.Fatal(err)
		}
		if !balance.IsPositive() {
			t.Fatalf("balance after one small charge: %s", balance)
		}
	})

	// Money examples
	t.Run("MoneyExamples", func(t *testing.T) {
		// Constructors
		_ = outlay.FromUnits(49)           // 49 units
		_ = outlay.Zero()                  // zero
		_ = outlay.MustParse("10_500000")  // 10.5 units
		_ = outlay.MustParse("-1_000000")  // -1 unit

		// Arithmetic
		m1 := outlay.FromUnits(1)
		m2 := outlay.FromUnits(2)
		_ = m1.Add(m2)
		_ = m1.Sub(m2)
		_ = m1.Neg()

		// Comparison
		if m1.Cmp(m2) < 0 {
			// m1 is less than m2
		}

		// Formatting
		_ = m1.MicroString() // "1_000000"

		// Markup
		gross, err := outlay.ApplyMarkup(outlay.FromUnits(100), outlay.MustPercent("25"))
		if err != nil {
			t.Fatal(err)
		}
		net, err := outlay.InvertMarkup(gross, outlay.MustPercent("25"))
		if err != nil {
			t.Fatal(err)
		}
		if !net.Equal(outlay.FromUnits(100)) {
			t.Fatalf("markup round trip: %s", net)
		}
	})
}
