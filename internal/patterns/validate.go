package patterns

import "github.com/r3e-network/agentmemory/internal/domain/pattern"

// ValidationMetrics reports precision/recall/F1/accuracy for a candidate
// pattern set against a caller-supplied ground truth (spec.md §4.6).
type ValidationMetrics struct {
	Precision float64
	Recall    float64
	F1        float64
	Accuracy  float64
	Quality   float64
}

// Validate matches candidates against groundTruth by Similarity >= threshold
// ("match" per spec.md §4.6) and computes precision/recall/F1/accuracy plus
// a quality score penalizing a high false-positive rate.
func Validate(candidates, groundTruth []*pattern.Pattern, threshold float64) ValidationMetrics {
	truePositives := 0
	matchedTruth := make([]bool, len(groundTruth))

	for _, c := range candidates {
		for i, g := range groundTruth {
			if matchedTruth[i] {
				continue
			}
			if Similarity(c, g) >= threshold {
				truePositives++
				matchedTruth[i] = true
				break
			}
		}
	}

	falsePositives := len(candidates) - truePositives
	falseNegatives := 0
	for _, matched := range matchedTruth {
		if !matched {
			falseNegatives++
		}
	}

	precision := safeDiv(float64(truePositives), float64(truePositives+falsePositives))
	recall := safeDiv(float64(truePositives), float64(truePositives+falseNegatives))
	f1 := 0.0
	if precision+recall > 0 {
		f1 = 2 * precision * recall / (precision + recall)
	}

	total := truePositives + falsePositives + falseNegatives
	accuracy := safeDiv(float64(truePositives), float64(total))

	falsePositiveRate := safeDiv(float64(falsePositives), float64(len(candidates)))
	quality := minFloat(precision, recall) - falsePositiveRate*0.5

	return ValidationMetrics{
		Precision: precision,
		Recall:    recall,
		F1:        f1,
		Accuracy:  accuracy,
		Quality:   quality,
	}
}

func safeDiv(a, b float64) float64 {
	if b == 0 {
		return 0
	}
	return a / b
}

func minFloat(a, b float64) float64 {

	if a < b {
		return a
	}
	return b
}
