// Package domain holds the core entities of the call-orchestration system:
// service requests, the providers contacted on their behalf, the raw
// interaction logs those calls produce, and the repository contracts used
// to persist them.
package domain

import (
	"time"

	"github.com/google/uuid"
)

// RequestStatus is the orchestrator state of a ServiceRequest. Transitions
// form a DAG: PENDING -> SEARCHING -> CALLING -> ANALYZING -> RECOMMENDED ->
// BOOKING -> COMPLETED, with a universal edge to FAILED from any non-terminal
// state.
type RequestStatus string

const (
	RequestStatusPending     RequestStatus = "pending"
	RequestStatusSearching   RequestStatus = "searching"
	RequestStatusCalling     RequestStatus = "calling"
	RequestStatusAnalyzing   RequestStatus = "analyzing"
	RequestStatusRecommended RequestStatus = "recommended"
	RequestStatusBooking     RequestStatus = "booking"
	RequestStatusCompleted   RequestStatus = "completed"
	RequestStatusFailed      RequestStatus = "failed"
)

// Urgency describes how soon the requester needs service.
type Urgency string

const (
	UrgencyImmediate Urgency = "immediate"
	UrgencyWithin24h Urgency = "within_24h"
	UrgencyWithin2d  Urgency = "within_2d"
	UrgencyFlexible  Urgency = "flexible"
)

// PreferredContact is how the requester wants to be reached with results.
type PreferredContact string

const (
	PreferredContactPhone PreferredContact = "phone"
	PreferredContactText  PreferredContact = "text"
)

// ServiceRequest is the top-level aggregate: a consumer's ask for a service,
// the providers found for it, and the calls placed to qualify them.
type ServiceRequest struct {
	ID uuid.UUID `json:"id"`

	ServiceType string  `json:"service_type"`
	Description string  `json:"description"`
	Location    string  `json:"location"`
	Latitude    float64 `json:"latitude,omitempty"`
	Longitude   float64 `json:"longitude,omitempty"`

	Urgency           Urgency          `json:"urgency"`
	PreferredContact  PreferredContact `json:"preferred_contact"`
	ContactPhone      string           `json:"contact_phone,omitempty"`
	MaxBudget         *float64         `json:"max_budget,omitempty"`

	Status RequestStatus `json:"status"`

	// Recommendations holds the ranked Recommender output once ANALYZING
	// completes. Nil until then.
	Recommendations []Recommendation `json:"recommendations,omitempty"`

	BookedProviderID *uuid.UUID `json:"booked_provider_id,omitempty"`
	FailureReason    string     `json:"failure_reason,omitempty"`

	// NotificationSentAt records when the requester was notified of the
	// outcome. Notification delivery itself is an external collaborator's
	// job; this column only records whether/when it happened.
	NotificationSentAt *time.Time `json:"notification_sent_at,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Recommendation is one scored candidate in a ServiceRequest's ranked result
// list, produced by the Recommender. Scores are integers 0..100 per the
// scoring rubric in the recommender package.
type Recommendation struct {
	ProviderID uuid.UUID `json:"provider_id"`
	Score      int       `json:"score"`

	ConversationScore int `json:"conversation_score"`
	ServiceFitScore   int `json:"service_fit_score"`
	ReputationScore   int `json:"reputation_score"`
	TrustScore        int `json:"trust_score"`

	Rationale string `json:"rationale,omitempty"`
}

// RecommenderOutput is the result of a Recommender run: ranked survivors
// (possibly empty) plus a human-readable summary of the outcome.
type RecommenderOutput struct {
	Recommendations []Recommendation
	Summary         string
}

// requestTransitions enumerates the legal edges of the RequestStatus DAG.
// FAILED is reachable from every non-terminal state and is therefore not
// listed as a destination under each source; callers should treat it as an
// implicit universal edge (see IsValidTransition).
var requestTransitions = map[RequestStatus][]RequestStatus{
	RequestStatusPending:     {RequestStatusSearching},
	RequestStatusSearching:   {RequestStatusCalling},
	RequestStatusCalling:     {RequestStatusAnalyzing},
	RequestStatusAnalyzing:   {RequestStatusRecommended},
	RequestStatusRecommended: {RequestStatusBooking},
	// BOOKING -> RECOMMENDED is the designed recovery edge for a booking call
	// that didn't confirm: the request falls back to awaiting another
	// selection rather than treating confirmation failure as fatal.
	RequestStatusBooking: {RequestStatusCompleted, RequestStatusRecommended},
	RequestStatusCompleted:   {},
	RequestStatusFailed:      {},
}

// IsValidTransition reports whether moving a ServiceRequest from `from` to
// `to` is legal. FAILED is always a legal destination from any non-terminal
// status; COMPLETED and FAILED themselves are terminal and accept no further
// transitions.
func IsValidTransition(from, to RequestStatus) bool {
	if from == RequestStatusCompleted || from == RequestStatusFailed {
		return false
	}
	if to == RequestStatusFailed {
		return true
	}
	for _, allowed := range requestTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// IsTerminal reports whether status accepts no further transitions.
func IsTerminal(status RequestStatus) bool {
	return status == RequestStatusCompleted || status == RequestStatusFailed
}
