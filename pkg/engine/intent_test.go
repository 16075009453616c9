package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassifyIntent(t *testing.T) {
	cases := []struct {
		name    string
		message string
		want    Intent
	}{
		{"bare score is a survey reply", "4", IntentSurvey},
		{"score with whitespace", "  5  ", IntentSurvey},
		{"score outside the scale is not a survey", "7", IntentGeneral},
		{"digits inside a sentence are not a survey", "we are 4 people", IntentGeneral},
		{"french restaurant request", "Tu peux me recommander un restaurant ?", IntentRecommendation},
		{"french activity request", "Quelle activité pour demain ?", IntentRecommendation},
		{"english dinner request", "Any good place to eat tonight?", IntentRecommendation},
		{"keyword match is case-insensitive", "RESTAURANT please", IntentRecommendation},
		{"small talk", "Merci beaucoup !", IntentGeneral},
		{"empty message", "", IntentGeneral},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, ClassifyIntent(tc.message))
		})
	}
}

func TestIntentString(t *testing.T) {
	assert.Equal(t, "general", IntentGeneral.String())
	assert.Equal(t, "recommendation", IntentRecommendation.String())
	assert.Equal(t, "survey", IntentSurvey.String())
}
