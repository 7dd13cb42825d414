package txn

import (
	"errors"
	"fmt"

	"github.com/outlaylabs/outlay/id"
)

// ErrUnknownVendor is returned when a model identifier cannot be resolved
// against a fixed-price catalog.
var ErrUnknownVendor = errors.New("txn: unknown vendor")

// Usage is a raw usage event: token counts for text models, duration and
// size for media. Counts only — a Usage never carries a price.
type Usage struct {
	PromptTokens     int64 `json:"prompt_tokens,omitempty"`
	CompletionTokens int64 `json:"completion_tokens,omitempty"`
	TotalTokens      int64 `json:"total_tokens,omitempty"`
	DurationMillis   int64 `json:"duration_ms,omitempty"`
	SizeBytes        int64 `json:"size_bytes,omitempty"`
}

// Vendor identifies who performed metered work. CustomKey marks a vendor
// billed through the caller's own API key rather than the fixed-price
// catalog.
type Vendor struct {
	Name      string `json:"name"`
	Model     string `json:"model"`
	CustomKey bool   `json:"custom_key,omitempty"`
}

// Catalog resolves model identifiers to vendors. When fixed pricing is in
// effect, unknown models are rejected; otherwise they pass through as
// custom-key-billed vendor references.
type Catalog struct {
	models     map[string]string // model id -> vendor name
	fixedPrice bool
}

// NewCatalog creates a catalog from a model-to-vendor mapping.
func NewCatalog(models map[string]string, fixedPrice bool) *Catalog {
	copied := make(map[string]string, len(models))
	for k, v := range models {
		copied[k] = v
	}
	return &Catalog{models: copied, fixedPrice: fixedPrice}
}

// DefaultCatalog returns the fixed-price catalog of first-party billed
// models.
func DefaultCatalog() *Catalog {
	return NewCatalog(map[string]string{
		"gpt-4o":            "openai",
		"gpt-4o-mini":       "openai",
		"gpt-4.1":           "openai",
		"o3-mini":           "openai",
		"claude-sonnet-4-5": "anthropic",
		"claude-haiku-4-5":  "anthropic",
		"mistral-large":     "mistral",
	}, true)
}

// Resolve maps a model identifier to a Vendor.
func (c *Catalog) Resolve(model string) (Vendor, error) {
	if name, ok := c.models[model]; ok {
		return Vendor{Name: name, Model: model}, nil
	}
	if c.fixedPrice {
		return Vendor{}, fmt.Errorf("%w: %q", ErrUnknownVendor, model)
	}
	return Vendor{Name: "custom", Model: model, CustomKey: true}, nil
}

// BuildUsageTransaction shapes a raw usage event into a generation-family
// transaction. Usage fields are copied verbatim; no pricing math happens
// here.
func (c *Catalog) BuildUsageTransaction(
	family Kind,
	usage Usage,
	model string,
	payer id.AccountID,
	actor id.AccountID,
	metadata map[string]string,
) (Transaction, error) {
	vendor, err := c.Resolve(model)
	if err != nil {
		return nil, err
	}

	payload := GenerationPayload{
		GeneratedBy: actor,
		Vendor:      vendor,
		Payer:       payer,
		Usage:       usage,
		Metadata:    metadata,
	}

	switch family {
	case KindGeneration:
		return Generation{Header: newHeader(), GenerationPayload: payload}, nil
	case KindAgentGeneration:
		return AgentGeneration{Header: newHeader(), GenerationPayload: payload}, nil
	case KindLLMGeneration:
		return LLMGeneration{Header: newHeader(), GenerationPayload: payload}, nil
	default:
		return nil, fmt.Errorf("txn: %q is not a generation kind", family)
	}
}
