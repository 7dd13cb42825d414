package outlay

import "github.com/outlaylabs/outlay/types"

// Re-export common types for convenience so users don't have to import types package.

// Money is re-exported from types package.
type Money = types.Money

// Percent is re-exported from types package.
type Percent = types.Percent

// Entity is re-exported from types package.
type Entity = types.Entity

// Re-export Money constructors
var (
	FromUnits  = types.FromUnits
	FromMicros = types.FromMicros
	Zero       = types.Zero
	Parse      = types.Parse
	MustParse  = types.MustParse
	Sum        = types.Sum
)

// Re-export markup helpers
var (
	ApplyMarkup  = types.ApplyMarkup
	InvertMarkup = types.InvertMarkup
	MustPercent  = types.MustPercent
)

// Re-export Entity constructor
var NewEntity = types.NewEntity
