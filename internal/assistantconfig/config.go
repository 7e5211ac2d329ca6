// Package assistantconfig builds the vendor-facing assistant configuration
// for a single qualification or booking call: the system prompt, the
// structured-data schema the vendor must fill in, and (in webhook mode) the
// server URL and metadata block used to correlate the eventual webhook back
// to a provider and service request.
package assistantconfig

import (
	"fmt"
	"strings"
)

// CallRequest describes the call the assistant is being configured for.
type CallRequest struct {
	ServiceNeeded string
	UserCriteria  string
	Location      string
	Urgency       string
	ProviderName  string
	ProviderPhone string

	// Booking, when set, switches the prompt from qualification mode to
	// booking-confirmation mode: the assistant's job becomes confirming an
	// appointment with the provider rather than screening them.
	Booking *BookingContext

	// Webhook correlation. Present only when webhook mode is active.
	ProviderID       string
	ServiceRequestID string
}

// BookingContext carries the details a booking call needs to confirm.
type BookingContext struct {
	PreferredDate string
	PreferredTime string
	CustomerName  string
}

// Voice and model defaults. These mirror a calm, professional phone-screener
// persona; there is no per-business customization in this domain.
const (
	DefaultVoice       = "maya"
	DefaultTranscriber = "deepgram-nova-2"
	DefaultModel       = "gpt-4o"
	DefaultLanguage    = "en-US"
	DefaultTemperature = 0.6
)

// Config is the opaque assistant configuration handed to the vendor's
// StartCall. Its shape follows the vendor's "assistant" object.
type Config struct {
	FirstMessage      string                 `json:"firstMessage"`
	Model             ModelConfig            `json:"model"`
	Voice             VoiceConfig            `json:"voice"`
	Transcriber       TranscriberConfig      `json:"transcriber"`
	AnalysisPlan      AnalysisPlan           `json:"analysisPlan"`
	EndCallFunctionEnabled bool              `json:"endCallFunctionEnabled"`
	MaxDurationSeconds int                   `json:"maxDurationSeconds"`
	ServerURL         string                 `json:"serverUrl,omitempty"`
	Metadata          map[string]interface{} `json:"metadata,omitempty"`
}

// ModelConfig selects the LLM driving the conversation and carries the
// system prompt as its first message.
type ModelConfig struct {
	Provider    string                   `json:"provider"`
	Model       string                   `json:"model"`
	Temperature float64                  `json:"temperature"`
	Messages    []map[string]string      `json:"messages"`
}

// VoiceConfig selects the vendor's TTS voice.
type VoiceConfig struct {
	Provider string `json:"provider"`
	VoiceID  string `json:"voiceId"`
}

// TranscriberConfig selects the vendor's ASR engine.
type TranscriberConfig struct {
	Provider string `json:"provider"`
	Model    string `json:"model"`
	Language string `json:"language"`
}

// AnalysisPlan is the vendor's post-call structured-data extraction request.
// SummaryPrompt and SuccessEvaluationPrompt steer the free-text fields;
// StructuredDataSchema is the JSON schema the vendor's analysis LLM fills in
// per the StructuredCallData contract.
type AnalysisPlan struct {
	SummaryPrompt            string                 `json:"summaryPrompt"`
	StructuredDataPrompt      string                 `json:"structuredDataPrompt"`
	StructuredDataSchema      map[string]interface{} `json:"structuredDataSchema"`
	SuccessEvaluationPrompt   string                 `json:"successEvaluationPrompt"`
	SuccessEvaluationRubric   string                 `json:"successEvaluationRubric"`
}

// DefaultMaxDurationSeconds bounds any single call, qualification or
// booking, at 5 minutes per the hard per-call timeout.
const DefaultMaxDurationSeconds = 300

// Build produces the assistant config for a qualification call. When
// serverURL is non-empty and req carries a ProviderID or ServiceRequestID,
// webhook mode is enabled: the config carries a
// serverUrl and a metadata block so WebhookIngestor can correlate the
// eventual event back to this provider/request.
func Build(req CallRequest, serverURL string) *Config {
	cfg := &Config{
		FirstMessage: buildGreeting(req),
		Model: ModelConfig{
			Provider:    "openai",
			Model:       DefaultModel,
			Temperature: DefaultTemperature,
			Messages: []map[string]string{
				{"role": "system", "content": buildPrompt(req)},
			},
		},
		Voice: VoiceConfig{
			Provider: "11labs",
			VoiceID:  DefaultVoice,
		},
		Transcriber: TranscriberConfig{
			Provider: "deepgram",
			Model:    DefaultTranscriber,
			Language: DefaultLanguage,
		},
		AnalysisPlan:           buildAnalysisPlan(req),
		EndCallFunctionEnabled: true,
		MaxDurationSeconds:     DefaultMaxDurationSeconds,
	}

	if serverURL != "" && (req.ProviderID != "" || req.ServiceRequestID != "") {
		cfg.ServerURL = serverURL
		cfg.Metadata = map[string]interface{}{
			"providerId":       req.ProviderID,
			"serviceRequestId": req.ServiceRequestID,
			"providerName":     req.ProviderName,
			"providerPhone":    req.ProviderPhone,
			"serviceNeeded":    req.ServiceNeeded,
			"userCriteria":     req.UserCriteria,
			"location":         req.Location,
			"urgency":          req.Urgency,
		}
	}

	return cfg
}

func buildGreeting(req CallRequest) string {
	if req.Booking != nil {
		return fmt.Sprintf(
			"Hi, this is an automated assistant calling on behalf of a customer to confirm a %s appointment.",
			req.ServiceNeeded,
		)
	}
	return fmt.Sprintf(
		"Hi, I'm calling on behalf of a customer looking for %s in %s. Do you have a moment?",
		req.ServiceNeeded, req.Location,
	)
}

// buildPrompt constructs the system prompt. For qualification calls it
// encodes the five behavioral obligations from the assistant-config
// contract: ask only the enumerated criteria, verify a SINGLE person meets
// ALL of them, detect disqualification and exit politely, capture a
// specific earliest-availability, and only use the scheduling-callback
// closing when every criterion is met.
func buildPrompt(req CallRequest) string {
	if req.Booking != nil {
		return buildBookingPrompt(req)
	}

	criteria := req.UserCriteria
	if strings.TrimSpace(criteria) == "" {
		criteria = "general availability and pricing"
	}

	return fmt.Sprintf(`You are calling %s, a %s provider, on behalf of a customer who needs: %s.

Customer location: %s
Urgency: %s

## Your job
1. Ask ONLY about these criteria, one at a time: %s
2. You must confirm that a SINGLE person you are speaking with (not different staff members for different criteria) can satisfy ALL of the criteria above. If the person transfers you or says someone else handles part of it, note that and keep asking the same person about the rest before accepting a partial answer from someone else.
3. If it becomes clear this business cannot meet the criteria, politely thank them and end the call early. Do not keep pushing once disqualification is clear.
4. If they can help, ask for the earliest available date and time, as a specific date/time, not a vague "this week".
5. Only if every criterion was confirmed met, close by asking if you can schedule a callback to book; otherwise close by thanking them for their time.

## Rules
- Never invent availability, pricing, or names the caller didn't state.
- Keep the call brief and professional.
- If they ask who you are, say you're an automated scheduling assistant calling on behalf of a customer.`,
		req.ProviderName, req.ServiceNeeded, criteria, req.Location, req.Urgency, criteria,
	)
}

func buildBookingPrompt(req CallRequest) string {
	b := req.Booking
	return fmt.Sprintf(`You are calling %s to confirm a %s appointment on behalf of %s.

Requested date: %s
Requested time: %s

## Your job
1. Confirm the appointment for the requested date and time.
2. If that slot isn't available, ask for the nearest alternative and record exactly what they offer.
3. Obtain a confirmation number if the business provides one.
4. Confirm the customer name is correctly associated with the booking.

## Rules
- Do not invent a confirmation number if none is given.
- Keep the call brief and professional.`,
		req.ProviderName, req.ServiceNeeded, b.CustomerName, b.PreferredDate, b.PreferredTime,
	)
}

// buildAnalysisPlan returns the post-call extraction request matching the
// StructuredCallData contract: availability, single_person_found, and
// all_criteria_met are the required fields; everything else is optional.
func buildAnalysisPlan(req CallRequest) AnalysisPlan {
	if req.Booking != nil {
		return AnalysisPlan{
			SummaryPrompt: "Summarize this call in two sentences: what was confirmed, and any details the provider gave.",
			StructuredDataPrompt: "Extract the booking confirmation outcome of this call as structured data. " +
				"Only set booking_confirmed true if the provider actually agreed to the appointment.",
			StructuredDataSchema:    bookingDataSchema(),
			SuccessEvaluationPrompt: "Was the call successful at confirming or rejecting the appointment?",
			SuccessEvaluationRubric: "NumericScale",
		}
	}
	return AnalysisPlan{
		SummaryPrompt: "Summarize this call in two sentences: what was asked, and what the provider said.",
		StructuredDataPrompt: "Extract the qualification outcome of this call as structured data. " +
			"Only mark all_criteria_met true if a single person confirmed every criterion listed in the system prompt.",
		StructuredDataSchema:    structuredDataSchema(),
		SuccessEvaluationPrompt: "Was the call successful at determining availability and criteria fit?",
		SuccessEvaluationRubric: "NumericScale",
	}
}

func structuredDataSchema() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"availability": map[string]interface{}{
				"type": "string",
				"enum": []string{"available", "unavailable", "callback_requested", "unclear"},
			},
			"estimated_rate": map[string]interface{}{
				"type":        "string",
				"description": "Rate as the provider quoted it, verbatim (e.g. \"$80-120\", \"free estimate\"); empty if none was given",
			},
			"single_person_found": map[string]interface{}{
				"type":        "boolean",
				"description": "Whether one person on the call confirmed all criteria",
			},
			"technician_name": map[string]interface{}{
				"type": "string",
			},
			"all_criteria_met": map[string]interface{}{
				"type": "boolean",
			},
			"criteria_details": map[string]interface{}{
				"type":                 "object",
				"description":          "One entry per criterion from the system prompt, true if confirmed met",
				"additionalProperties": map[string]interface{}{"type": "boolean"},
			},
			"recommended": map[string]interface{}{
				"type": "boolean",
			},
			"disqualified": map[string]interface{}{
				"type": "boolean",
			},
			"disqualification_reason": map[string]interface{}{
				"type": "string",
			},
			"earliest_availability": map[string]interface{}{
				"type":        "string",
				"description": "Specific date/time, not a relative phrase",
			},
			"notes": map[string]interface{}{
				"type": "string",
			},
		},
		"required": []string{"availability", "single_person_found", "all_criteria_met"},
	}
}

// bookingDataSchema is the post-call extraction request for a booking
// confirmation call: did the provider agree to the proposed slot, and if
// so, what exactly was confirmed.
func bookingDataSchema() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"booking_confirmed": map[string]interface{}{
				"type":        "boolean",
				"description": "Whether the provider actually agreed to the appointment",
			},
			"booking_date": map[string]interface{}{
				"type":        "string",
				"description": "Confirmed appointment date, only if booking_confirmed is true",
			},
			"booking_time": map[string]interface{}{
				"type":        "string",
				"description": "Confirmed appointment time, only if booking_confirmed is true",
			},
			"confirmation_number": map[string]interface{}{
				"type":        "string",
				"description": "Confirmation number, only if the business actually gave one",
			},
		},
		"required": []string{"booking_confirmed"},
	}
}
