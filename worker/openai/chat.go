// Package openai adapts OpenAI-compatible chat completion APIs into
// metered work.
package openai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/outlaylabs/outlay"
	"github.com/outlaylabs/outlay/metrics"
	"github.com/outlaylabs/outlay/txn"
)

// ErrVendor wraps every failure coming back from the completion API.
var ErrVendor = errors.New("openai: vendor request failed")

// Config holds the chat completion provider settings.
type Config struct {
	APIKey  string
	BaseURL string // empty for api.openai.com
	Model   string
	// VaultKey marks the key as customer-supplied. Work run with a
	// vault key reports VaultKey on its result so the engine can skip
	// billing when asked.
	VaultKey bool
	Logger   *slog.Logger
}

// Worker turns chat completion requests into outlay.Work.
type Worker struct {
	client   *openai.Client
	model    string
	vaultKey bool
	logger   *slog.Logger
}

// New creates a chat completion worker.
func New(cfg Config) *Worker {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Worker{
		client:   openai.NewClientWithConfig(clientCfg),
		model:    cfg.Model,
		vaultKey: cfg.VaultKey,
		logger:   logger,
	}
}

// Message is one turn of a chat conversation.
type Message struct {
	Role    string
	Content string
}

// Request describes a single chat completion.
type Request struct {
	Model       string // overrides the worker default when set
	Messages    []Message
	MaxTokens   int
	Temperature float32
}

// Reply holds the completion output. The Work closure fills it in once
// the vendor call succeeds.
type Reply struct {
	Content      string
	FinishReason string
}

// Chat returns a Work that runs the completion and stores the reply in
// out. The returned usage is the vendor's own accounting, copied
// verbatim.
func (w *Worker) Chat(req Request, out *Reply) outlay.Work {
	model := req.Model
	if model == "" {
		model = w.model
	}

	return func(ctx context.Context) (outlay.WorkResult, error) {
		apiReq := openai.ChatCompletionRequest{
			Model:       model,
			MaxTokens:   req.MaxTokens,
			Temperature: req.Temperature,
		}
		for _, msg := range req.Messages {
			apiReq.Messages = append(apiReq.Messages, openai.ChatCompletionMessage{
				Role:    msg.Role,
				Content: msg.Content,
			})
		}

		start := time.Now()
		resp, err := w.client.CreateChatCompletion(ctx, apiReq)
		duration := time.Since(start)

		if err != nil {
			metrics.WorkerRequestsTotal.WithLabelValues("openai", model, "error").Inc()
			return outlay.WorkResult{}, parseAPIError(err)
		}
		if len(resp.Choices) == 0 {
			metrics.WorkerRequestsTotal.WithLabelValues("openai", model, "error").Inc()
			return outlay.WorkResult{}, fmt.Errorf("empty completion response: %w", ErrVendor)
		}

		metrics.WorkerRequestsTotal.WithLabelValues("openai", model, "ok").Inc()
		if resp.Usage.TotalTokens > 0 {
			metrics.WorkerTokensTotal.WithLabelValues("openai", model, "prompt").Add(float64(resp.Usage.PromptTokens))
			metrics.WorkerTokensTotal.WithLabelValues("openai", model, "completion").Add(float64(resp.Usage.CompletionTokens))
		}

		if out != nil {
			out.Content = resp.Choices[0].Message.Content
			out.FinishReason = string(resp.Choices[0].FinishReason)
		}

		w.logger.DebugContext(ctx, "chat completion",
			"model", model,
			"total_tokens", resp.Usage.TotalTokens,
			"duration_ms", duration.Milliseconds())

		return outlay.WorkResult{
			Usage: txn.Usage{
				PromptTokens:     int64(resp.Usage.PromptTokens),
				CompletionTokens: int64(resp.Usage.CompletionTokens),
				TotalTokens:      int64(resp.Usage.TotalTokens),
				DurationMillis:   duration.Milliseconds(),
			},
			Model:    model,
			VaultKey: w.vaultKey,
		}, nil
	}
}

// HealthCheck verifies API availability via ListModels (free endpoint).
func (w *Worker) HealthCheck(ctx context.Context) error {
	if _, err := w.client.ListModels(ctx); err != nil {
		return fmt.Errorf("list models: %w", err)
	}
	return nil
}

// parseAPIError extracts a human-readable error from the API response.
// All errors are wrapped with ErrVendor so the engine treats them as
// work failures, not ledger failures.
func parseAPIError(err error) error {
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		detail := extractDetail(reqErr.Body)
		if detail != "" {
			return fmt.Errorf("completion API error %d: %s: %w",
				reqErr.HTTPStatusCode, detail, ErrVendor)
		}
		return fmt.Errorf("completion API error %d: %s: %w",
			reqErr.HTTPStatusCode, string(reqErr.Body), ErrVendor)
	}

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return fmt.Errorf("completion API error %d: %s: %w",
			apiErr.HTTPStatusCode, apiErr.Message, ErrVendor)
	}

	return fmt.Errorf("completion request failed: %v: %w", err, ErrVendor)
}

// extractDetail pulls the "detail" field from a JSON error body.
func extractDetail(body []byte) string {
	var parsed struct {
		Detail string `json:"detail"`
	}
	if json.Unmarshal(body, &parsed) == nil && parsed.Detail != "" {
		return parsed.Detail
	}
	return ""
}
