package engine

import (
	"strings"
)

// Intent is the coarse classification of an inbound message, used to route
// catalog lookups and to tag the context snapshot.
type Intent int

const (
	IntentGeneral Intent = iota
	IntentRecommendation
	IntentSurvey
)

func (i Intent) String() string {
	switch i {
	case IntentRecommendation:
		return "recommendation"
	case IntentSurvey:
		return "survey"
	default:
		return "general"
	}
}

// recommendationKeywords trigger the recommendation path. French first since
// it is the dominant guest language, with English equivalents.
var recommendationKeywords = []string{
	"restaurant", "manger", "dîner", "diner", "déjeuner", "dejeuner",
	"activité", "activite", "visiter", "sortir", "recommand", "conseil", "suggest",
	"eat", "food", "dinner", "lunch", "activity", "visit", "recommend",
}

// ClassifyIntent buckets a message. A bare digit on the satisfaction scale is
// a survey reply; any recommendation keyword routes to the catalog path;
// everything else is general conversation.
func ClassifyIntent(message string) Intent {
	trimmed := strings.TrimSpace(message)
	if len(trimmed) == 1 && trimmed >= "1" && trimmed <= "5" {
		return IntentSurvey
	}

	lower := strings.ToLower(trimmed)
	for _, kw := range recommendationKeywords {
		if strings.Contains(lower, kw) {
			return IntentRecommendation
		}
	}
	return IntentGeneral
}
