package outlay

import "github.com/outlaylabs/outlay/id"

// ID is the primary identifier type for all Outlay entities.
type ID = id.ID

// Prefix identifies the entity type encoded in a TypeID.
type Prefix = id.Prefix
