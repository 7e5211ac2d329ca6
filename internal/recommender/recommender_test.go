package recommender

import (
	"fmt"
	"testing"

	"github.com/google/uuid"

	"github.com/fieldops/voicedispatch/internal/domain"
)

func rate(v float64) string { return fmt.Sprintf("$%.0f", v) }

func completedProvider(rating float64, reviewCount int, data domain.StructuredCallData) *domain.Provider {
	return &domain.Provider{
		ID:             uuid.New(),
		Rating:         rating,
		ReviewCount:    reviewCount,
		CallStatus:     domain.CallStatusCompleted,
		StructuredData: &data,
	}
}

func TestRunHappyPathOrdersByScore(t *testing.T) {
	p1 := completedProvider(4.8, 200, domain.StructuredCallData{
		AllCriteriaMet: true, Availability: domain.AvailabilityAvailable, SinglePersonFound: true,
		CallOutcome: domain.CallOutcomePositive, Recommended: true,
		EarliestAvailability: "Tomorrow 2pm", EstimatedRate: rate(120),
	})
	p2 := completedProvider(4.3, 30, domain.StructuredCallData{
		AllCriteriaMet: true, Availability: domain.AvailabilityAvailable, SinglePersonFound: true,
		CallOutcome: domain.CallOutcomePositive, EarliestAvailability: "Tomorrow 2pm", EstimatedRate: rate(120),
	})
	p3 := completedProvider(3.9, 8, domain.StructuredCallData{
		AllCriteriaMet: true, Availability: domain.AvailabilityAvailable,
		CallOutcome: domain.CallOutcomePositive, EarliestAvailability: "Tomorrow 2pm", EstimatedRate: rate(120),
	})

	out := Run([]*domain.Provider{p1, p2, p3})

	if len(out.Recommendations) != 3 {
		t.Fatalf("expected 3 recommendations, got %d", len(out.Recommendations))
	}
	if out.Recommendations[0].ProviderID != p1.ID {
		t.Errorf("expected p1 to rank first, got %v", out.Recommendations[0].ProviderID)
	}
	if out.Recommendations[0].Score < 80 {
		t.Errorf("expected top score >= 80, got %d", out.Recommendations[0].Score)
	}
	for i := 1; i < len(out.Recommendations); i++ {
		if out.Recommendations[i].Score > out.Recommendations[i-1].Score {
			t.Errorf("recommendations not sorted descending by score at index %d", i)
		}
	}
}

func TestRunAllDisqualifiedReturnsEmptyWithSummary(t *testing.T) {
	p1 := completedProvider(4.5, 50, domain.StructuredCallData{Disqualified: true, CallOutcome: domain.CallOutcomeNegative})
	p2 := completedProvider(4.0, 20, domain.StructuredCallData{Disqualified: true, CallOutcome: domain.CallOutcomeNegative})

	out := Run([]*domain.Provider{p1, p2})

	if len(out.Recommendations) != 0 {
		t.Errorf("expected no recommendations, got %d", len(out.Recommendations))
	}
	if out.Summary == "" {
		t.Error("expected a non-empty explanatory summary")
	}
}

func TestRunFiltersNoAnswerVoicemailBusy(t *testing.T) {
	noAnswer := &domain.Provider{ID: uuid.New(), CallStatus: domain.CallStatusNoAnswer}
	voicemail := completedProvider(4.0, 10, domain.StructuredCallData{CallOutcome: domain.CallOutcomeVoicemail})
	busy := completedProvider(4.0, 10, domain.StructuredCallData{CallOutcome: domain.CallOutcomeBusy})
	qualifies := completedProvider(4.0, 10, domain.StructuredCallData{CallOutcome: domain.CallOutcomePositive, AllCriteriaMet: true})

	out := Run([]*domain.Provider{noAnswer, voicemail, busy, qualifies})

	if len(out.Recommendations) != 1 {
		t.Fatalf("expected 1 survivor, got %d", len(out.Recommendations))
	}
	if out.Recommendations[0].ProviderID != qualifies.ID {
		t.Error("expected the single qualifying provider to survive")
	}
}

func TestRunTopKCapsAtThree(t *testing.T) {
	providers := make([]*domain.Provider, 5)
	for i := range providers {
		providers[i] = completedProvider(4.0, 10, domain.StructuredCallData{CallOutcome: domain.CallOutcomePositive, AllCriteriaMet: true})
	}

	out := Run(providers)

	if len(out.Recommendations) != TopK {
		t.Errorf("expected %d recommendations, got %d", TopK, len(out.Recommendations))
	}
}

func TestScoreClampedToHundred(t *testing.T) {
	p := completedProvider(5.0, 500, domain.StructuredCallData{
		AllCriteriaMet: true, Availability: domain.AvailabilityAvailable, SinglePersonFound: true,
		CallOutcome: domain.CallOutcomePositive, Recommended: true,
		EarliestAvailability: "Tomorrow", EstimatedRate: rate(1),
	})

	s := score(p)
	if s > 100 {
		t.Errorf("score = %d, expected clamp at 100", s)
	}
}
