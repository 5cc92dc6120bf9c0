package models

import "time"

// UsageRecord is one append-only log entry for a completed call.
// Cost is computed once, at record time, and never re-derived.
type UsageRecord struct {
	ID           string    `json:"id" db:"id"`
	Timestamp    time.Time `json:"timestamp" db:"created_at"`
	Model        string    `json:"model" db:"model"`
	Provider     Provider  `json:"provider" db:"provider"`
	InputTokens  int       `json:"input_tokens" db:"input_tokens"`
	OutputTokens int       `json:"output_tokens" db:"output_tokens"`
	CachedTokens int       `json:"cached_tokens,omitempty" db:"cached_tokens"`
	Cost         float64   `json:"cost" db:"cost"`
	TaskType     string    `json:"task_type,omitempty" db:"task_type"`
	ProjectID    string    `json:"project_id,omitempty" db:"project_id"`
}

// TotalTokens returns input plus output tokens.
func (r UsageRecord) TotalTokens() int {
	return r.InputTokens + r.OutputTokens
}
