// Package recommender scores completed provider calls and selects the
// top candidates to present back to the user. It is pure, synchronous
// logic over already-persisted Provider records; it has no I/O of its own.
package recommender

import (
	"fmt"
	"sort"

	"github.com/fieldops/voicedispatch/internal/domain"
)

// TopK is the number of survivors returned when any qualify.
const TopK = 3

// Run applies the hard filters, scores survivors, and returns the top-K
// ranked Recommendations plus a human-readable summary. When no provider
// survives the filters, Recommendations is empty and Summary explains why.
func Run(providers []*domain.Provider) domain.RecommenderOutput {
	survivors := filter(providers)

	if len(survivors) == 0 {
		return domain.RecommenderOutput{
			Recommendations: nil,
			Summary:         summarizeNoSurvivors(providers),
		}
	}

	scored := make([]scoredProvider, 0, len(survivors))
	for _, p := range survivors {
		scored = append(scored, scoredProvider{provider: p, score: score(p)})
	}

	sort.Slice(scored, func(i, j int) bool {
		if scored[i].score != scored[j].score {
			return scored[i].score > scored[j].score
		}
		if scored[i].provider.Rating != scored[j].provider.Rating {
			return scored[i].provider.Rating > scored[j].provider.Rating
		}
		return scored[i].provider.ReviewCount > scored[j].provider.ReviewCount
	})

	n := TopK
	if n > len(scored) {
		n = len(scored)
	}

	recs := make([]domain.Recommendation, 0, n)
	for _, s := range scored[:n] {
		recs = append(recs, toRecommendation(s))
	}

	return domain.RecommenderOutput{
		Recommendations: recs,
		Summary:         fmt.Sprintf("%d of %d providers qualified; top match scored %d/100", len(survivors), len(providers), scored[0].score),
	}
}

type scoredProvider struct {
	provider     *domain.Provider
	score        int
	conversation int
	serviceFit   int
	reputation   int
	trust        int
}

func filter(providers []*domain.Provider) []*domain.Provider {
	var out []*domain.Provider
	for _, p := range providers {
		if p.CallStatus != domain.CallStatusCompleted || p.StructuredData == nil {
			continue
		}
		data := p.StructuredData
		switch data.CallOutcome {
		case domain.CallOutcomeNoAnswer, domain.CallOutcomeVoicemail, domain.CallOutcomeBusy:
			continue
		}
		if data.Disqualified {
			continue
		}
		out = append(out, p)
	}
	return out
}

func score(p *domain.Provider) int {
	data := p.StructuredData
	conversation := conversationScore(data)
	serviceFit := serviceFitScore(data)
	reputation := reputationScore(p)
	trust := trustScore(data)

	total := conversation + serviceFit + reputation + trust
	if total > 100 {
		total = 100
	}
	if total < 0 {
		total = 0
	}
	return total
}

func conversationScore(data *domain.StructuredCallData) int {
	s := 0
	switch data.CallOutcome {
	case domain.CallOutcomePositive:
		s += 20
	case domain.CallOutcomeNeutral:
		s += 10
	}
	if data.EarliestAvailability != "" {
		s += 8
	}
	if data.EstimatedRate != "" {
		s += 7
	}
	return s
}

func serviceFitScore(data *domain.StructuredCallData) int {
	s := 0
	if data.AllCriteriaMet {
		s += 20
	}
	switch data.Availability {
	case domain.AvailabilityAvailable:
		s += 7
	case domain.AvailabilityCallbackRequested:
		s += 3
	}
	if data.SinglePersonFound {
		s += 3
	}
	return s
}

func reputationScore(p *domain.Provider) int {
	s := 0
	switch {
	case p.Rating >= 4.5:
		s += 20
	case p.Rating >= 4.0:
		s += 16
	case p.Rating >= 3.5:
		s += 12
	case p.Rating >= 3.0:
		s += 8
	case p.Rating > 0:
		s += 4
	}
	switch {
	case p.ReviewCount >= 100:
		s += 5
	case p.ReviewCount >= 50:
		s += 4
	case p.ReviewCount >= 20:
		s += 3
	case p.ReviewCount >= 10:
		s += 2
	case p.ReviewCount > 0:
		s += 1
	}
	return s
}

func trustScore(data *domain.StructuredCallData) int {
	if data.Recommended {
		return 10
	}
	return 0
}

func toRecommendation(s scoredProvider) domain.Recommendation {
	data := s.provider.StructuredData
	return domain.Recommendation{
		ProviderID:         s.provider.ID,
		Score:              s.score,
		ConversationScore:  conversationScore(data),
		ServiceFitScore:    serviceFitScore(data),
		ReputationScore:    reputationScore(s.provider),
		TrustScore:         trustScore(data),
		Rationale:          rationale(s.provider),
	}
}

func rationale(p *domain.Provider) string {
	data := p.StructuredData
	if data.Recommended {
		return "Vendor analysis recommended this provider; all criteria were confirmed met."
	}
	if data.AllCriteriaMet {
		return "All criteria were confirmed met during the call."
	}
	return "Call completed without disqualification."
}

func summarizeNoSurvivors(providers []*domain.Provider) string {
	var noAnswer, disqualified, other int
	for _, p := range providers {
		switch {
		case p.CallStatus == domain.CallStatusNoAnswer || p.CallStatus == domain.CallStatusVoicemail || p.CallStatus == domain.CallStatusBusy:
			noAnswer++
		case p.StructuredData != nil && p.StructuredData.Disqualified:
			disqualified++
		default:
			other++
		}
	}
	return fmt.Sprintf(
		"No providers qualified out of %d contacted: %d did not answer, %d were disqualified, %d had no usable result.",
		len(providers), noAnswer, disqualified, other,
	)
}
