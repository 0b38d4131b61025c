package summarizer

import (
	"fmt"
	"strings"

	"github.com/r3e-network/agentmemory/internal/domain/episode"
	"github.com/r3e-network/agentmemory/internal/domain/summary"
)

// MinWords and MaxWords bound the generated summary text (spec.md §3's
// EpisodeSummary "summary (100-200 words)").
const (
	MinWords = 100
	MaxWords = 200
)

// Summarize builds the compact episode summary attached at storage time:
// a 100-200 word narrative plus the key decisions/tool-combinations/
// insights pulled from features (spec.md §3, §4.2).
func Summarize(ep *episode.Episode, features summary.Features) summary.Episode {
	text := buildSummaryText(ep, features)

	return summary.Episode{
		Summary:          text,
		KeyDecisions:     features.Decisions,
		ToolCombinations: features.ToolCombinations,
		KeyInsights:      features.KeyInsights,
	}
}

func buildSummaryText(ep *episode.Episode, features summary.Features) string {
	var sentences []string

	sentences = append(sentences, openingSentence(ep))

	if len(features.ToolCombinations) > 0 {
		sentences = append(sentences, toolSentence(features.ToolCombinations))
	}
	if len(features.Decisions) > 0 {
		sentences = append(sentences, fmt.Sprintf("The episode involved %d decision point(s) where branching behavior was observed.", len(features.Decisions)))
	}
	if len(features.ErrorRecoveries) > 0 {
		sentences = append(sentences, fmt.Sprintf("It recovered from %d error(s) before reaching its final outcome.", len(features.ErrorRecoveries)))
	}

	sentences = append(sentences, outcomeSentence(ep))

	for _, insight := range features.KeyInsights {
		sentences = append(sentences, strings.ToUpper(insight[:1])+insight[1:]+".")
	}

	text := strings.Join(sentences, " ")
	return padToWordRange(text, ep)
}

func openingSentence(ep *episode.Episode) string {
	domain := ep.Context.Domain
	if domain == "" {
		domain = "an unspecified domain"
	}
	return fmt.Sprintf("This episode executed a %q task of type %q in %s, recording %d step(s).",
		ep.TaskDescription, ep.TaskType, domain, len(ep.Steps))
}

func toolSentence(combinations [][]string) string {
	names := make([]string, 0, len(combinations))
	for _, c := range combinations {
		names = append(names, fmt.Sprintf("%s->%s", c[0], c[1]))
	}
	return fmt.Sprintf("It chained the following tool transitions: %s.", strings.Join(names, ", "))
}

func outcomeSentence(ep *episode.Episode) string {
	if ep.Outcome == nil {
		return "The episode has not yet reached a recorded outcome."
	}
	switch ep.Outcome.Kind {
	case episode.OutcomeSuccess:
		return fmt.Sprintf("The episode concluded successfully with verdict %q.", ep.Outcome.Verdict)
	case episode.OutcomePartialSuccess:
		return fmt.Sprintf("The episode reached partial success, completing %d subtask(s) and failing %d.", len(ep.Outcome.Completed), len(ep.Outcome.Failed))
	default:
		return fmt.Sprintf("The episode failed: %s.", ep.Outcome.Reason)
	}
}

// padToWordRange extends a too-short summary with step-level detail until
// it clears MinWords, and truncates a too-long one at MaxWords — both
// measured by whitespace-split word count, matching spec.md §3's literal
// word-count bound rather than a byte/rune length.
func padToWordRange(text string, ep *episode.Episode) string {
	words := strings.Fields(text)

	if len(words) > MaxWords {
		return strings.Join(words[:MaxWords], " ")
	}

	stepIdx := 0
	for len(words) < MinWords && stepIdx < len(ep.Steps) {
		s := ep.Steps[stepIdx]
		addition := fmt.Sprintf("Step %d invoked %s (%s) with result %s.", s.StepNumber, s.Tool, s.Action, s.Result.Kind)
		words = append(words, strings.Fields(addition)...)
		stepIdx++
	}

	for len(words) < MinWords {
		words = append(words, strings.Fields("No further detail is available for this episode.")...)
	}

	if len(words) > MaxWords {
		words = words[:MaxWords]
	}

	return strings.Join(words, " ")
}
