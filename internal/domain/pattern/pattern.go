// Package pattern defines the reusable behavioral abstractions extracted
// from episodes, and the shared usage/effectiveness statistics tracked
// against them.
//
// Modeled on the teacher's internal/app/domain/<entity>/model.go shape.
package pattern

import "time"

// Variant tags the kind of pattern a Pattern represents (spec.md §3, §4.5).
type Variant string

const (
	ToolSequence   Variant = "tool_sequence"
	DecisionPoint  Variant = "decision_point"
	ErrorRecovery  Variant = "error_recovery"
	ContextPattern Variant = "context_pattern"
)

// RepresentativeFields holds the variant-specific payload of a Pattern.
// Only the fields relevant to Pattern.Variant are populated; this mirrors
// the teacher's flat-struct convention rather than introducing a Go sum
// type the corpus itself does not use.
type RepresentativeFields struct {
	// ToolSequence
	Tools []string `json:"tools,omitempty"`

	// DecisionPoint
	Action     string   `json:"action,omitempty"`
	Indicators []string `json:"indicators,omitempty"`

	// ErrorRecovery
	FailingTool    string `json:"failing_tool,omitempty"`
	RecoveryTool   string `json:"recovery_tool,omitempty"`
	ErrorSignature string `json:"error_signature,omitempty"`

	// ContextPattern
	Domain          string   `json:"domain,omitempty"`
	Tags            []string `json:"tags,omitempty"`
	Language        string   `json:"language,omitempty"`
	OutcomePolarity string   `json:"outcome_polarity,omitempty"`

	// Shared provenance
	SourceEpisodeIDs []string `json:"source_episode_ids,omitempty"`
	EvidenceCount    int      `json:"evidence_count,omitempty"`
}

// Pattern is a reusable behavioral abstraction extracted from one or more
// episodes (spec.md §3).
type Pattern struct {
	PatternID    string               `json:"pattern_id"`
	Variant      Variant              `json:"variant"`
	Confidence   float64              `json:"confidence"`
	UsageCount   int                  `json:"usage_count"`
	SuccessCount int                  `json:"success_count"`
	Fields       RepresentativeFields `json:"representative_fields"`
	CreatedAt    time.Time            `json:"created_at"`
	LastUsedAt   time.Time            `json:"last_used_at"`
}

// Usage is the per-pattern retrieval/application/success statistics
// maintained by the effectiveness tracker (spec.md §3, §4.7). It is
// shared across retrieval call sites behind a single-writer discipline.
type Usage struct {
	PatternID         string        `json:"pattern_id"`
	RetrievalCount    int64         `json:"retrieval_count"`
	ApplicationCount  int64         `json:"application_count"`
	SuccessCount      int64         `json:"success_count"`
	LastAccess        time.Time     `json:"last_access"`
	AvgInterval       time.Duration `json:"avg_interval"`
	EffectivenessScore float64      `json:"effectiveness_score"`
}

// SuccessRate returns success_count/application_count, or 0 if never applied.
func (u *Usage) SuccessRate() float64 {
	if u.ApplicationCount == 0 {
		return 0
	}
	return float64(u.SuccessCount) / float64(u.ApplicationCount)
}

// ApplicationRate returns application_count/retrieval_count, or 0 if never retrieved.
func (u *Usage) ApplicationRate() float64 {
	if u.RetrievalCount == 0 {
		return 0
	}
	return float64(u.ApplicationCount) / float64(u.RetrievalCount)
}
