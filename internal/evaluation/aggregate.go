package evaluation

import "math"

// AggregateScore converts per-question judgments into one weighted
// percentage in [0,100], rounded to the given precision. An empty judgment
// list yields 0.0; the function never divides by zero.
func AggregateScore(judgments []Judgment, precision int) float64 {
	if len(judgments) == 0 {
		return 0.0
	}

	var earned, possible float64
	for _, judgment := range judgments {
		maxMarks := judgment.EffectiveMaxMarks()
		possible += maxMarks
		earned += judgment.Normalized() * maxMarks
	}

	if possible <= 0 {
		return 0.0
	}

	return roundTo(earned/possible*100.0, precision)
}

func roundTo(value float64, precision int) float64 {
	factor := math.Pow(10, float64(precision))
	return math.Round(value*factor) / factor
}
