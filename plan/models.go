// Package plan describes the commercial plans workspaces subscribe to:
// the pass-through markup applied to metered usage, the seat limit, and
// the feature switches the rest of the system consults.
package plan

import (
	"github.com/outlaylabs/outlay/id"
	"github.com/outlaylabs/outlay/types"
)

type Status string

const (
	StatusActive   Status = "active"
	StatusArchived Status = "archived"
	StatusDraft    Status = "draft"
)

type Plan struct {
	types.Entity
	ID          id.PlanID         `json:"id"`
	Name        string            `json:"name"`
	Slug        string            `json:"slug"`
	Description string            `json:"description"`
	Status      Status            `json:"status"`
	// Markup is the surcharge applied on top of vendor cost for usage
	// billed under this plan. It must be invertible, so webhooks can
	// strip it from incoming payments.
	Markup    types.Percent     `json:"markup"`
	SeatLimit int               `json:"seat_limit"` // -1 means unlimited
	Features  []Feature         `json:"features"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

type Feature struct {
	Key       string      `json:"key"`
	Name      string      `json:"name"`
	Type      FeatureType `json:"type"`
	Limit     int64       `json:"limit"`
	SoftLimit bool        `json:"soft_limit"`
}

type FeatureType string

const (
	FeatureMetered FeatureType = "metered"
	FeatureBoolean FeatureType = "boolean"
	FeatureSeat    FeatureType = "seat"
)

func (p *Plan) FindFeature(key string) *Feature {
	for i := range p.Features {
		if p.Features[i].Key == key {
			return &p.Features[i]
		}
	}
	return nil
}

// Allows reports whether the plan admits more usage of a feature given
// what has already been consumed.
func (p *Plan) Allows(featureKey string, currentUsage int64) bool {
	f := p.FindFeature(featureKey)
	if f == nil {
		return false
	}
	if f.Type == FeatureBoolean {
		return f.Limit > 0
	}
	if f.Limit == -1 {
		return true
	}
	if currentUsage < f.Limit {
		return true
	}
	return f.SoftLimit
}
