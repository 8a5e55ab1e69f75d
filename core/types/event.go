package types

// Event is the wire form of a structured event emitted during state
// transitions. Attributes are flat string pairs so the log stays renderable
// by any downstream consumer.
type Event struct {
	Type       string            `json:"type"`
	Attributes map[string]string `json:"attributes"`
}
