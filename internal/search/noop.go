package search

import "context"

// NoopAdapter is a search.Adapter that finds nothing. Provider discovery
// (web search, a maps API, a business directory) is out of scope for this
// system; RequestOrchestrator always runs against a real search.Adapter in
// production, but nothing in this module ships one. NoopAdapter lets the
// server wire a complete orchestrator.New call without a discovery backend,
// leaving Advance to fail the request at the SEARCHING step until a real
// adapter is configured in its place.
type NoopAdapter struct{}

// NewNoopAdapter returns a search.Adapter that always reports zero candidates.
func NewNoopAdapter() *NoopAdapter {
	return &NoopAdapter{}
}

// Find always returns an empty candidate list.
func (a *NoopAdapter) Find(ctx context.Context, q Query) ([]Candidate, error) {
	return nil, nil
}
