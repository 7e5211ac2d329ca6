// Package search defines the provider-discovery collaborator boundary.
// Provider discovery itself (web search, a maps API, a business directory)
// is out of scope for this system; RequestOrchestrator only depends on this
// interface.
package search

import "context"

// Candidate is a discovered provider, before it has been persisted and
// assigned a store-owned ID.
type Candidate struct {
	Name        string
	PhoneNumber string
	Address     string
	Rating      float64
	ReviewCount int
	SourceURL   string

	// PlaceID is the discovery source's own identifier for this business,
	// kept separate from the store-assigned Provider.ID the rest of the
	// system uses as its authoritative key.
	PlaceID       string
	DistanceMiles *float64
	Hours         string
	IsOpenNow     *bool
}

// Query describes what RequestOrchestrator is searching for.
type Query struct {
	ServiceType string
	Location    string
	Latitude    float64
	Longitude   float64
}

// Adapter discovers candidate providers for a query.
type Adapter interface {
	Find(ctx context.Context, q Query) ([]Candidate, error)
}
