package engine

import (
	"fmt"
	"sort"
	"strings"

	"github.com/roomieai/concierge-go/pkg/core"
)

// DefaultPatternCap bounds how many trusted patterns reach the prompt.
const DefaultPatternCap = 3

// AssembleRequest carries everything assembly needs. The assembler performs
// no I/O: callers gather the inputs, Assemble orders them.
type AssembleRequest struct {
	Instructions string
	TraceID      string
	Profile      *core.ClientProfile
	Patterns     []core.LearnedPattern
	// PatternCap bounds the pattern section; zero means DefaultPatternCap.
	PatternCap int
	Window       []core.ConversationTurn
	Suggestions  []string
	Intent       Intent
	NewMessage   string
}

// Assemble builds the ordered prompt context for one turn: instructions,
// profile facts (absent fields omitted, never placeholders), the capped
// best-first pattern descriptions, optional catalog suggestions, the history
// window as alternating transcript entries, and the new message last. The
// returned snapshot records exactly which stored facts were used.
func Assemble(req AssembleRequest) *core.PromptContext {
	pc := &core.PromptContext{
		Instructions: req.Instructions,
		Suggestions:  req.Suggestions,
		NewMessage:   req.NewMessage,
		Snapshot: core.ContextSnapshot{
			TraceID:     req.TraceID,
			Intent:      req.Intent.String(),
			CatalogUsed: len(req.Suggestions) > 0,
		},
	}

	if req.Profile != nil {
		pc.ProfileFacts, pc.Snapshot.ProfileFields = profileFacts(req.Profile)
		pc.Snapshot.ProfileUsed = len(pc.ProfileFacts) > 0
	}

	for _, p := range capPatterns(req.Patterns, req.PatternCap) {
		pc.Patterns = append(pc.Patterns, patternLine(p))
		pc.Snapshot.Patterns = append(pc.Snapshot.Patterns, p.PatternType)
	}

	pc.History = make([]core.Message, 0, len(req.Window)*2)
	for _, turn := range req.Window {
		pc.History = append(pc.History,
			core.Message{Role: core.RoleUser, Content: turn.MessageText},
			core.Message{Role: core.RoleAssistant, Content: turn.ResponseText},
		)
	}
	pc.Snapshot.HistoryTurns = len(req.Window)

	return pc
}

// capPatterns orders patterns best first with deterministic ties (earlier
// created, then pattern type) and truncates to the cap.
func capPatterns(patterns []core.LearnedPattern, limit int) []core.LearnedPattern {
	if limit <= 0 {
		limit = DefaultPatternCap
	}
	sorted := make([]core.LearnedPattern, len(patterns))
	copy(sorted, patterns)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].SuccessRate != sorted[j].SuccessRate {
			return sorted[i].SuccessRate > sorted[j].SuccessRate
		}
		if !sorted[i].CreatedAt.Equal(sorted[j].CreatedAt) {
			return sorted[i].CreatedAt.Before(sorted[j].CreatedAt)
		}
		return sorted[i].PatternType < sorted[j].PatternType
	})
	if len(sorted) > limit {
		sorted = sorted[:limit]
	}
	return sorted
}

func patternLine(p core.LearnedPattern) string {
	if p.Description != "" {
		return p.Description
	}
	return strings.ReplaceAll(p.PatternType, "_", " ")
}

func profileFacts(profile *core.ClientProfile) (facts, fields []string) {
	add := func(field, fact string) {
		facts = append(facts, fact)
		fields = append(fields, field)
	}

	if profile.DisplayName != "" {
		add("display_name", "Guest name: "+profile.DisplayName)
	}
	if profile.Language != "" {
		add("language", "Preferred language: "+profile.Language)
	}
	if profile.BudgetRange != "" {
		add("budget_range", "Budget range: "+profile.BudgetRange)
	}
	if profile.ActivityStyle != "" {
		add("activity_style", "Activity style: "+profile.ActivityStyle)
	}
	if profile.Allergies != "" {
		add("allergies", "Allergies: "+profile.Allergies)
	}
	if len(profile.Preferences) > 0 {
		keys := make([]string, 0, len(profile.Preferences))
		for k := range profile.Preferences {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		parts := make([]string, 0, len(keys))
		for _, k := range keys {
			parts = append(parts, k+": "+profile.Preferences[k])
		}
		add("preferences", "Preferences: "+strings.Join(parts, ", "))
	}
	if profile.TotalInteractions > 1 {
		add("total_interactions", fmt.Sprintf("Returning guest, %d previous interactions", profile.TotalInteractions))
	}
	return facts, fields
}
