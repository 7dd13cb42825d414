package rates

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
)

// HTTP fetches rates from an external exchange-rate service. The
// service returns decimal strings; floats never enter the math.
type HTTP struct {
	baseURL string
	client  *http.Client
}

// NewHTTP creates an HTTP rate source.
func NewHTTP(baseURL string, client *http.Client) *HTTP {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &HTTP{baseURL: strings.TrimRight(baseURL, "/"), client: client}
}

type ratesPayload struct {
	Rates map[string]string `json:"rates"`
}

// Rates implements Source.
func (h *HTTP) Rates(ctx context.Context, codes []string) (map[string]Rate, error) {
	wanted := make([]string, 0, len(codes))
	out := make(map[string]Rate, len(codes))
	for _, code := range codes {
		code = strings.ToUpper(code)
		if code == "USD" {
			out["USD"] = Rate{Code: "USD", Value: big.NewRat(1, 1)}
			continue
		}
		wanted = append(wanted, code)
	}
	if len(wanted) == 0 {
		return out, nil
	}

	q := url.Values{"codes": {strings.Join(wanted, ",")}}
	operation := func() (*ratesPayload, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, h.baseURL+"/v1/rates?"+q.Encode(), nil)
		if err != nil {
			return nil, backoff.Permanent(err)
		}
		resp, err := h.client.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
			return nil, backoff.Permanent(fmt.Errorf("rates: service returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body))))
		}
		var payload ratesPayload
		if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
			return nil, backoff.Permanent(fmt.Errorf("rates: decode: %w", err))
		}
		return &payload, nil
	}

	payload, err := backoff.Retry(ctx, operation,
		backoff.WithBackOff(backoff.NewExponentialBackOff()),
		backoff.WithMaxTries(3))
	if err != nil {
		return nil, err
	}

	for _, code := range wanted {
		raw, ok := payload.Rates[code]
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrCurrencyNotSupported, code)
		}
		v, ok := new(big.Rat).SetString(raw)
		if !ok || v.Sign() <= 0 {
			return nil, fmt.Errorf("rates: bad rate %q for %s", raw, code)
		}
		out[code] = Rate{Code: code, Value: v}
	}
	return out, nil
}
