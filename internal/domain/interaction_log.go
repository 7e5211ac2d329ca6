package domain

import (
	"time"

	"github.com/google/uuid"
)

// TranscriptEntry is one turn of a call transcript.
type TranscriptEntry struct {
	Role      string  `json:"role"`
	Content   string  `json:"content"`
	Timestamp float64 `json:"timestamp"`
}

// InteractionLog is the raw, append-only record of a single provider call:
// its transcript and whatever the vendor reported about it. It is kept
// distinct from Provider (the qualification result) so the same call can be
// observed twice -- once via webhook, once via poll -- without either write
// clobbering useful data; AppendLog is idempotent on CallID via a unique
// partial index (see migrations).
type InteractionLog struct {
	ID        uuid.UUID `json:"id"`
	RequestID uuid.UUID `json:"request_id"`
	ProviderID uuid.UUID `json:"provider_id"`

	CallID string `json:"call_id"`

	Transcript        string             `json:"transcript,omitempty"`
	TranscriptEntries []TranscriptEntry  `json:"transcript_entries,omitempty"`
	RecordingURL      string             `json:"recording_url,omitempty"`
	DurationSecs      int                `json:"duration_secs,omitempty"`

	RawPayload []byte `json:"raw_payload,omitempty"`

	Source string `json:"source"` // "webhook" or "poll"

	CreatedAt time.Time `json:"created_at"`
}

// CallResult is the normalized outcome BatchCaller/DirectCaller hand back to
// the orchestrator for a single dispatched call: whichever of Provider's
// CallStatus/StructuredCallData fields are known at the time polling or
// fan-out gives up waiting.
type CallResult struct {
	ProviderID uuid.UUID  `json:"provider_id"`
	CallID     string     `json:"call_id,omitempty"`
	Status     CallStatus `json:"status"`
	Data       *StructuredCallData `json:"data,omitempty"`
	Err        string     `json:"error,omitempty"`
}

// FetchStatus describes how complete a CachedEntry's data is.
type FetchStatus string

const (
	FetchStatusPending    FetchStatus = "pending"
	FetchStatusPartial    FetchStatus = "partial"
	FetchStatusFetching   FetchStatus = "fetching"
	FetchStatusComplete   FetchStatus = "complete"
	FetchStatusFetchFailed FetchStatus = "fetch_failed"
)

// CachedEntry is the in-memory (or Redis-backed) record the Cache keeps per
// call while webhook delivery and background polling race to complete it.
type CachedEntry struct {
	CallID            string
	Status            CallStatus
	Transcript        string
	TranscriptEntries []TranscriptEntry
	Data              *StructuredCallData
	FetchStatus       FetchStatus
	CreatedAt         time.Time
	UpdatedAt         time.Time
	ExpiresAt         time.Time
}
