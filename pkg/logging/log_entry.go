package logging

import "github.com/roomieai/concierge-go/pkg/core"

// LogEntry represents a structured log record with fields relevant to turn processing.
type LogEntry struct {
	// Standard fields
	Time     int64
	Severity Severity
	Message  string
	File     string
	Line     int
	Function string

	// Turn-specific fields
	ClientID  string          // Client identity the record belongs to, if any
	TurnID    int64           // Persisted turn id, once known
	TokenInfo *core.TokenInfo // Token usage reported by the generation collaborator
	Latency   int64           // Operation duration in milliseconds

	// General structured data
	Fields map[string]interface{}
}
