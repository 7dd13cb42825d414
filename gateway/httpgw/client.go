// Package httpgw implements the Gateway contract against the ledger
// service's HTTP API.
//
// Monetary amounts cross the wire as canonical micro-unit decimal
// strings, never as floats. Every mutating request carries a
// caller-supplied identifier, so the client retries transport failures
// freely: the service deduplicates on the identifier.
package httpgw

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/outlaylabs/outlay/gateway"
	"github.com/outlaylabs/outlay/id"
	"github.com/outlaylabs/outlay/txn"
	"github.com/outlaylabs/outlay/types"
)

// StatusError is a non-2xx answer from the ledger service. Status
// answers are authoritative and never retried here.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("httpgw: ledger service returned %d: %s", e.Code, e.Body)
}

// Client talks to the ledger service over HTTP.
type Client struct {
	baseURL  string
	token    string
	http     *http.Client
	logger   *slog.Logger
	maxTries uint
}

// Option configures a Client.
type Option func(*Client)

// WithToken sets the bearer token sent on every request.
func WithToken(token string) Option {
	return func(c *Client) { c.token = token }
}

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.http = h }
}

// WithLogger sets the logger. Defaults to slog.Default.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// WithMaxTries bounds the retry loop, initial attempt included.
func WithMaxTries(n uint) Option {
	return func(c *Client) { c.maxTries = n }
}

// New creates a Client for the service at baseURL.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:  strings.TrimRight(baseURL, "/"),
		http:     &http.Client{Timeout: 15 * time.Second},
		logger:   slog.Default(),
		maxTries: 4,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type accountPayload struct {
	ID      string `json:"id"`
	Balance string `json:"balance"`
}

type statementPayload struct {
	ID        string            `json:"id"`
	Type      string            `json:"type"`
	Amount    string            `json:"amount"`
	Timestamp time.Time         `json:"timestamp"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

type statementsPayload struct {
	Statements []statementPayload `json:"statements"`
	NextCursor string             `json:"next_cursor,omitempty"`
}

type commitPayload struct {
	Amount     *string           `json:"amount,omitempty"`
	ContractID string            `json:"contract_id,omitempty"`
	Vendor     *txn.Vendor       `json:"vendor,omitempty"`
	Metadata   map[string]string `json:"metadata,omitempty"`
}

// Account implements gateway.Gateway.
func (c *Client) Account(ctx context.Context, accountID id.AccountID) (gateway.Account, error) {
	body, err := c.get(ctx, "/v1/accounts/"+url.PathEscape(accountID.String()))
	if err != nil {
		var status *StatusError
		if errors.As(err, &status) && status.Code == http.StatusNotFound {
			return gateway.Account{}, fmt.Errorf("%w: %s", gateway.ErrAccountNotFound, accountID)
		}
		return gateway.Account{}, err
	}

	var payload accountPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return gateway.Account{}, fmt.Errorf("httpgw: decode account: %w", err)
	}
	balance, err := types.Parse(payload.Balance)
	if err != nil {
		return gateway.Account{}, fmt.Errorf("httpgw: account %s balance: %w", accountID, err)
	}
	parsed, err := id.ParseAny(payload.ID)
	if err != nil {
		return gateway.Account{}, fmt.Errorf("httpgw: account id: %w", err)
	}
	return gateway.Account{ID: parsed, Balance: balance}, nil
}

// Statements implements gateway.Gateway.
func (c *Client) Statements(ctx context.Context, accountID id.AccountID, cursor string, limit int) (gateway.StatementPage, error) {
	q := url.Values{}
	if cursor != "" {
		q.Set("cursor", cursor)
	}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	path := "/v1/accounts/" + url.PathEscape(accountID.String()) + "/statements"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}

	body, err := c.get(ctx, path)
	if err != nil {
		return gateway.StatementPage{}, err
	}

	var payload statementsPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return gateway.StatementPage{}, fmt.Errorf("httpgw: decode statements: %w", err)
	}

	page := gateway.StatementPage{NextCursor: payload.NextCursor}
	for _, s := range payload.Statements {
		amount, err := types.Parse(s.Amount)
		if err != nil {
			return gateway.StatementPage{}, fmt.Errorf("httpgw: statement %s amount: %w", s.ID, err)
		}
		txID, err := id.ParseAny(s.ID)
		if err != nil {
			return gateway.StatementPage{}, fmt.Errorf("httpgw: statement id: %w", err)
		}
		page.Statements = append(page.Statements, gateway.Statement{
			ID:        txID,
			Kind:      txn.Kind(s.Type),
			Amount:    amount,
			Timestamp: s.Timestamp,
			Metadata:  s.Metadata,
		})
	}
	return page, nil
}

// Append implements gateway.Gateway.
func (c *Client) Append(ctx context.Context, tx txn.Transaction) (id.TransactionID, error) {
	body, err := txn.Marshal(tx)
	if err != nil {
		return id.Nil, err
	}
	resp, err := c.post(ctx, "/v1/transactions", body)
	if err != nil {
		return id.Nil, err
	}
	return parseTxID(resp), nil
}

// Commit implements gateway.Gateway.
func (c *Client) Commit(ctx context.Context, identifier id.HoldID, opts gateway.CommitOpts) (id.TransactionID, error) {
	payload := commitPayload{
		ContractID: opts.ContractID,
		Metadata:   opts.Metadata,
	}
	if opts.Amount != nil {
		s := opts.Amount.MicroString()
		payload.Amount = &s
	}
	if opts.Vendor != (txn.Vendor{}) {
		vendor := opts.Vendor
		payload.Vendor = &vendor
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return id.Nil, fmt.Errorf("httpgw: encode commit: %w", err)
	}
	resp, err := c.post(ctx, "/v1/holds/"+url.PathEscape(identifier.String())+"/commit", body)
	if err != nil {
		return id.Nil, err
	}
	return parseTxID(resp), nil
}

// parseTxID extracts the transaction id from a write response. Services
// that report no id, or an id in an unknown shape, yield a zero id.
func parseTxID(body []byte) id.TransactionID {
	var payload struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(body, &payload); err != nil || payload.ID == "" {
		return id.Nil
	}
	txID, err := id.ParseAny(payload.ID)
	if err != nil {
		return id.Nil
	}
	return txID
}

func (c *Client) get(ctx context.Context, path string) ([]byte, error) {
	return c.do(ctx, http.MethodGet, path, nil)
}

func (c *Client) post(ctx context.Context, path string, body []byte) ([]byte, error) {
	return c.do(ctx, http.MethodPost, path, body)
}

// do runs a request with bounded exponential backoff. Only
// transport-level failures are retried; any HTTP status is an answer
// from the service and is final.
func (c *Client) do(ctx context.Context, method, path string, body []byte) ([]byte, error) {
	operation := func() ([]byte, error) {
		var reader io.Reader
		if body != nil {
			reader = bytes.NewReader(body)
		}
		req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
		if err != nil {
			return nil, backoff.Permanent(err)
		}
		req.Header.Set("Content-Type", "application/json")
		if c.token != "" {
			req.Header.Set("Authorization", "Bearer "+c.token)
		}

		resp, err := c.http.Do(req)
		if err != nil {
			c.logger.WarnContext(ctx, "ledger request failed, will retry",
				slog.String("method", method),
				slog.String("path", path),
				slog.String("error", err.Error()))
			return nil, err
		}
		defer resp.Body.Close()

		data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		if err != nil {
			return nil, err
		}
		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			return nil, backoff.Permanent(&StatusError{Code: resp.StatusCode, Body: strings.TrimSpace(string(data))})
		}
		return data, nil
	}

	return backoff.Retry(ctx, operation,
		backoff.WithBackOff(backoff.NewExponentialBackOff()),
		backoff.WithMaxTries(c.maxTries))
}
