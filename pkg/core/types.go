package core

import "time"

// ClientProfile is the durable per-client record accumulated across sessions.
// Exactly one profile exists per client identity.
type ClientProfile struct {
	ClientID          string            `json:"client_id"`
	DisplayName       string            `json:"display_name,omitempty"`
	Language          string            `json:"language,omitempty"`
	Preferences       map[string]string `json:"preferences,omitempty"`
	BudgetRange       string            `json:"budget_range,omitempty"`
	ActivityStyle     string            `json:"activity_style,omitempty"`
	Allergies         string            `json:"allergies,omitempty"`
	LastInteractionAt time.Time         `json:"last_interaction_at"`
	TotalInteractions int               `json:"total_interactions"`
	AvgSatisfaction   *float64          `json:"avg_satisfaction,omitempty"`
}

// ConversationTurn is one request/response exchange. Turns are immutable
// once persisted except for the satisfaction score, which feedback sets.
type ConversationTurn struct {
	ID                int64           `json:"id"`
	ClientID          string          `json:"client_id"`
	MessageText       string          `json:"message_text"`
	ResponseText      string          `json:"response_text"`
	CreatedAt         time.Time       `json:"created_at"`
	SatisfactionScore *float64        `json:"satisfaction_score,omitempty"`
	ResponseLatencyMs int64           `json:"response_latency_ms"`
	Snapshot          ContextSnapshot `json:"context_snapshot"`
}

// ContextSnapshot records which stored facts were assembled into a turn's
// prompt. It is small metadata, never the prompt itself.
type ContextSnapshot struct {
	TraceID       string   `json:"trace_id,omitempty"`
	ProfileUsed   bool     `json:"profile_used"`
	ProfileFields []string `json:"profile_fields,omitempty"`
	Patterns      []string `json:"patterns,omitempty"`
	HistoryTurns  int      `json:"history_turns"`
	Intent        string   `json:"intent,omitempty"`
	CatalogUsed   bool     `json:"catalog_used,omitempty"`
}

// LearnedPattern is a named interaction strategy with a tracked success rate.
// Only patterns above the trust threshold are eligible for assembled context.
type LearnedPattern struct {
	PatternType string    `json:"pattern_type"`
	Description string    `json:"description"`
	SuccessRate float64   `json:"success_rate"`
	UsageCount  int       `json:"usage_count"`
	CreatedAt   time.Time `json:"created_at"`
	LastUpdated time.Time `json:"last_updated"`
}

// PerformanceSample is the daily aggregate recomputed from that day's turns.
type PerformanceSample struct {
	Date              string  `json:"date"` // YYYY-MM-DD
	AvgResponseTimeMs float64 `json:"avg_response_time_ms"`
	AvgSatisfaction   float64 `json:"avg_satisfaction"`
	TotalConversations int    `json:"total_conversations"`
	SuccessfulOutcomes int    `json:"successful_outcomes"`
	Escalations        int    `json:"escalations"`
}

// ProfileUpdate is a partial profile mutation. Nil fields are left untouched;
// Preferences merge per inner key rather than replacing the mapping.
type ProfileUpdate struct {
	DisplayName   *string
	Language      *string
	Preferences   map[string]string
	BudgetRange   *string
	ActivityStyle *string
	Allergies     *string
}

// Empty reports whether the update carries no fields at all.
func (u ProfileUpdate) Empty() bool {
	return u.DisplayName == nil &&
		u.Language == nil &&
		len(u.Preferences) == 0 &&
		u.BudgetRange == nil &&
		u.ActivityStyle == nil &&
		u.Allergies == nil
}

// String returns a pointer to s, a convenience for building updates.
func String(s string) *string { return &s }

// Float64 returns a pointer to f.
func Float64(f float64) *float64 { return &f }
