// Package summary holds the entities derived from a completed episode for
// storage-time quality gating and compact retrieval: salient features and
// the episode summary itself (spec.md §3).
package summary

import "github.com/r3e-network/agentmemory/internal/domain/episode"

// Features is the set of salient facts pulled from a completed episode,
// used by the pattern extractors and the reflection generator.
type Features struct {
	Decisions        []string        `json:"decisions"`
	ToolCombinations [][]string      `json:"tool_combinations"`
	ErrorRecoveries  []string        `json:"error_recoveries"`
	KeyInsights      []string        `json:"key_insights"`
	TaskContext      episode.Context `json:"task_context"`
}

// Episode is the 100-200 word compact summary attached to a completed
// episode at storage time.
type Episode struct {
	Summary          string     `json:"summary"`
	KeyDecisions     []string   `json:"key_decisions"`
	ToolCombinations [][]string `json:"tool_combinations"`
	KeyInsights      []string   `json:"key_insights"`
	SummaryEmbedding []float32  `json:"summary_embedding,omitempty"`
}
