// Package validation enforces the bounded-size input checks from spec.md
// §4.1 ("Validation bounds") before an episode or step is accepted.
//
// Modeled on the teacher's small-function validation style
// (infrastructure/service/validate.go: one function per check, plain
// fmt-built errors) but returning the memory engine's own error taxonomy.
package validation

import (
	"encoding/json"
	"strings"

	"github.com/r3e-network/agentmemory/internal/domain/episode"
	"github.com/r3e-network/agentmemory/internal/memerr"
)

const (
	MaxDescriptionBytes  = 10 * 1024
	MaxObservationBytes  = 10 * 1024
	MaxParametersBytes   = 1024 * 1024
	MaxArtifactBytes     = 1024 * 1024
	MaxStepsPerEpisode   = episode.MaxSteps
	MaxSerializedEpisode = episode.MaxSerializedBytes
)

// Description validates a task/episode description string.
func Description(description string) error {
	if strings.TrimSpace(description) == "" {
		return memerr.ErrValidation("description must not be empty")
	}
	if len(description) > MaxDescriptionBytes {
		return memerr.Newf(memerr.Validation, "description exceeds %d bytes (got %d)", MaxDescriptionBytes, len(description))
	}
	return nil
}

// Context validates a task context.
func Context(ctx episode.Context) error {
	if strings.TrimSpace(ctx.Domain) == "" {
		return memerr.ErrValidation("context.domain must not be empty")
	}
	switch ctx.Complexity {
	case episode.Simple, episode.Moderate, episode.Complex, "":
	default:
		return memerr.Newf(memerr.Validation, "invalid complexity %q", ctx.Complexity)
	}
	return nil
}

// Step validates a single execution step against the spec's bounds. It does
// not check step_number monotonicity; that is the caller's (engine's)
// responsibility since it depends on episode state.
func Step(step episode.Step) error {
	if strings.TrimSpace(step.Tool) == "" {
		return memerr.ErrValidation("step.tool must not be empty")
	}

	observation := step.Result.Output
	if step.Result.IsError() {
		observation = step.Result.Message
	}
	if len(observation) > MaxObservationBytes {
		return memerr.Newf(memerr.Validation, "step observation exceeds %d bytes (got %d)", MaxObservationBytes, len(observation))
	}

	if step.Parameters != nil {
		encoded, err := json.Marshal(step.Parameters)
		if err != nil {
			return memerr.Wrap(memerr.Validation, "step parameters not serializable", err)
		}
		if len(encoded) > MaxParametersBytes {
			return memerr.Newf(memerr.Validation, "step parameters exceed %d bytes (got %d)", MaxParametersBytes, len(encoded))
		}
	}

	return nil
}

// StepCount validates that adding one more step would not exceed the
// per-episode step cap.
func StepCount(currentCount int) error {
	if currentCount >= MaxStepsPerEpisode {
		return memerr.Newf(memerr.QuotaExceeded, "episode already holds the maximum of %d steps", MaxStepsPerEpisode)
	}
	return nil
}

// Outcome validates a terminal outcome's required text fields and artifact bounds.
func Outcome(outcome episode.Outcome) error {
	switch outcome.Kind {
	case episode.OutcomeSuccess:
		if strings.TrimSpace(outcome.Verdict) == "" {
			return memerr.ErrValidation("success outcome requires a non-empty verdict")
		}
		for _, artifact := range outcome.Artifacts {
			if len(artifact) > MaxArtifactBytes {
				return memerr.Newf(memerr.Validation, "artifact exceeds %d bytes", MaxArtifactBytes)
			}
		}
	case episode.OutcomePartialSuccess:
		if strings.TrimSpace(outcome.Verdict) == "" {
			return memerr.ErrValidation("partial success outcome requires a non-empty verdict")
		}
	case episode.OutcomeFailure:
		if strings.TrimSpace(outcome.Reason) == "" {
			return memerr.ErrValidation("failure outcome requires a non-empty reason")
		}
	default:
		return memerr.Newf(memerr.Validation, "unknown outcome kind %q", outcome.Kind)
	}
	return nil
}

// SerializedSize validates that an episode's serialized size stays within
// the hard cap (spec.md §3, §8).
func SerializedSize(ep *episode.Episode) error {
	encoded, err := json.Marshal(ep)
	if err != nil {
		return memerr.Wrap(memerr.Serialization, "episode not serializable", err)
	}
	if len(encoded) > MaxSerializedEpisode {
		return memerr.Newf(memerr.QuotaExceeded, "episode serialized size exceeds %d bytes (got %d)", MaxSerializedEpisode, len(encoded))
	}
	return nil
}
