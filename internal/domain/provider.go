package domain

import (
	"time"

	"github.com/google/uuid"
)

// Provider is a candidate service provider discovered for a ServiceRequest,
// along with the normalized outcome of the qualification call placed to it.
type Provider struct {
	ID        uuid.UUID `json:"id"`
	RequestID uuid.UUID `json:"request_id"`

	Name        string `json:"name"`
	PhoneNumber string `json:"phone_number"`
	Address     string `json:"address,omitempty"`
	Rating      float64 `json:"rating,omitempty"`
	ReviewCount int     `json:"review_count,omitempty"`
	SourceURL   string  `json:"source_url,omitempty"`

	// PlaceID is the discovery source's own identifier for this business,
	// kept distinct from ID: ID is store-assigned and authoritative for
	// every foreign key in this system; PlaceID is an external reference
	// used only to correlate back to the discovery source.
	PlaceID       string   `json:"place_id,omitempty"`
	DistanceMiles *float64 `json:"distance_miles,omitempty"`
	Hours         string   `json:"hours,omitempty"`
	IsOpenNow     *bool    `json:"is_open_now,omitempty"`

	// CallID is the vendor's call identifier once a call has been placed
	// (the idempotency key for UpsertProviderCall).
	CallID string `json:"call_id,omitempty"`

	CallStatus CallStatus `json:"call_status"`

	StructuredData *StructuredCallData `json:"structured_data,omitempty"`

	// Booking fields, written once a booking-confirmation call parses a
	// confirmed appointment. BookingConfirmed is the authoritative flag;
	// the rest are only meaningful once it is true.
	BookingConfirmed   bool   `json:"booking_confirmed,omitempty"`
	BookingDate        string `json:"booking_date,omitempty"`
	BookingTime        string `json:"booking_time,omitempty"`
	ConfirmationNumber string `json:"confirmation_number,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// CallStatus is the lifecycle status of a single provider call, as tracked
// by DirectCaller/BatchCaller and reconciled from webhook+poll observers.
type CallStatus string

const (
	CallStatusQueued     CallStatus = "queued"
	CallStatusInProgress CallStatus = "in_progress"
	CallStatusCompleted  CallStatus = "completed"
	CallStatusFailed     CallStatus = "failed"
	CallStatusNoAnswer   CallStatus = "no_answer"
	CallStatusVoicemail  CallStatus = "voicemail"
	CallStatusBusy       CallStatus = "busy"
	CallStatusError      CallStatus = "error"
	CallStatusTimeout    CallStatus = "timeout"
)

// IsTerminal reports whether a CallStatus will not change further.
func (s CallStatus) IsTerminal() bool {
	switch s {
	case CallStatusCompleted, CallStatusFailed, CallStatusNoAnswer,
		CallStatusVoicemail, CallStatusBusy, CallStatusError, CallStatusTimeout:
		return true
	default:
		return false
	}
}

// Availability describes whether the provider can take on the job.
type Availability string

const (
	AvailabilityAvailable          Availability = "available"
	AvailabilityUnavailable        Availability = "unavailable"
	AvailabilityCallbackRequested  Availability = "callback_requested"
	AvailabilityUnclear            Availability = "unclear"
)

// CallOutcome is the Recommender-relevant disposition of a completed call.
type CallOutcome string

const (
	CallOutcomePositive  CallOutcome = "positive"
	CallOutcomeNegative  CallOutcome = "negative"
	CallOutcomeNeutral   CallOutcome = "neutral"
	CallOutcomeNoAnswer  CallOutcome = "no_answer"
	CallOutcomeVoicemail CallOutcome = "voicemail"
	CallOutcomeBusy      CallOutcome = "busy"
)

// StructuredCallData is the analysis payload extracted from a completed
// qualification call, whether delivered by webhook or by polling.
type StructuredCallData struct {
	Availability Availability `json:"availability,omitempty"`
	// EstimatedRate is whatever the provider quoted, verbatim -- "$80-120",
	// "around $150", "free estimate" -- not a parsed number, since providers
	// rarely quote a single clean figure on a qualification call.
	EstimatedRate          string            `json:"estimated_rate,omitempty"`
	SinglePersonFound      bool              `json:"single_person_found"`
	TechnicianName         string            `json:"technician_name,omitempty"`
	AllCriteriaMet         bool              `json:"all_criteria_met"`
	CriteriaDetails        map[string]bool   `json:"criteria_details,omitempty"`
	CallOutcome            CallOutcome       `json:"call_outcome,omitempty"`
	Recommended            bool              `json:"recommended"`
	Disqualified           bool              `json:"disqualified"`
	DisqualificationReason string            `json:"disqualification_reason,omitempty"`
	EarliestAvailability   string            `json:"earliest_availability,omitempty"`
	Notes                  string            `json:"notes,omitempty"`

	// Booking-call-only fields; zero on every qualification call's data.
	BookingConfirmed   bool   `json:"booking_confirmed,omitempty"`
	BookingDate        string `json:"booking_date,omitempty"`
	BookingTime        string `json:"booking_time,omitempty"`
	ConfirmationNumber string `json:"confirmation_number,omitempty"`
}
