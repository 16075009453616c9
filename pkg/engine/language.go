package engine

import (
	"strings"

	"golang.org/x/text/language"
)

// languageMarkers are high-frequency function words per supported language.
// Detection is a marker count, not real language identification: guests write
// short informal messages and a handful of stopwords separates the supported
// languages well enough.
var languageMarkers = map[language.Tag][]string{
	language.French:  {"le", "la", "les", "je", "tu", "vous", "est", "et", "une", "un", "pour", "avec", "bonjour", "merci", "oui"},
	language.English: {"the", "is", "are", "you", "and", "for", "with", "hello", "thanks", "please", "what", "where", "can"},
	language.Spanish: {"el", "los", "las", "es", "y", "una", "para", "con", "hola", "gracias", "por", "que", "donde"},
	language.Italian: {"il", "lo", "gli", "sono", "e", "una", "per", "con", "ciao", "grazie", "che", "dove"},
	language.German:  {"der", "die", "das", "ist", "und", "eine", "für", "mit", "hallo", "danke", "bitte", "wo", "ich"},
}

// LanguageDetector guesses the language of an inbound message from marker
// words, falling back to a configured default when nothing matches.
type LanguageDetector struct {
	fallback string
}

// NewLanguageDetector creates a detector. The fallback is a BCP 47 tag; an
// empty or invalid fallback becomes French, the resort's default.
func NewLanguageDetector(fallback string) *LanguageDetector {
	tag, err := language.Parse(fallback)
	if err != nil || fallback == "" {
		tag = language.French
	}
	return &LanguageDetector{fallback: tag.String()}
}

// Detect returns the BCP 47 tag of the best-matching language. Ties and
// marker-free messages return the fallback.
func (d *LanguageDetector) Detect(text string) string {
	words := strings.Fields(strings.ToLower(text))
	if len(words) == 0 {
		return d.fallback
	}
	present := make(map[string]bool, len(words))
	for _, w := range words {
		present[strings.Trim(w, ".,!?;:'\"()")] = true
	}

	best := d.fallback
	bestCount := 0
	tied := false
	for tag, markers := range languageMarkers {
		count := 0
		for _, m := range markers {
			if present[m] {
				count++
			}
		}
		switch {
		case count > bestCount:
			best = tag.String()
			bestCount = count
			tied = false
		case count == bestCount && count > 0:
			tied = true
		}
	}
	if bestCount == 0 || tied {
		return d.fallback
	}
	return best
}
