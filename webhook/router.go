package webhook

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/outlaylabs/outlay/plan"
	"github.com/outlaylabs/outlay/rates"
	"github.com/outlaylabs/outlay/types"
)

// Router mounts the payment webhook endpoints. The caller is expected
// to wrap it with the provider's signature-verification middleware.
func Router(p *Processor) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Post("/payments", func(w http.ResponseWriter, req *http.Request) {
		var ev PaymentEvent
		if err := json.NewDecoder(req.Body).Decode(&ev); err != nil {
			http.Error(w, "malformed event", http.StatusBadRequest)
			return
		}

		switch ev.Type {
		case "payment.succeeded":
			if err := p.HandlePaymentSucceeded(req.Context(), ev); err != nil {
				writeError(w, err)
				return
			}
		default:
			// Unknown event types are acknowledged so the provider
			// stops redelivering them.
			p.logger.InfoContext(req.Context(), "ignoring event type", "type", ev.Type, "event", ev.ID)
		}
		w.WriteHeader(http.StatusOK)
	})

	return r
}

func writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrUnknownCustomer), errors.Is(err, plan.ErrPlanNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, types.ErrInvalidAmount), errors.Is(err, types.ErrInvalidMarkup),
		errors.Is(err, rates.ErrCurrencyNotSupported):
		http.Error(w, err.Error(), http.StatusUnprocessableEntity)
	default:
		// Transient failures: the provider will retry delivery.
		http.Error(w, "temporary failure", http.StatusInternalServerError)
	}
}
