package types

// Event represents a typed notification emitted after a committed state
// transition. Attributes use string values so the record stays stable for
// off-process indexers.
type Event struct {
	Type       string            `json:"type"`
	Attributes map[string]string `json:"attributes"`
}
