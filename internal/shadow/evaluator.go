package shadow

import (
	"github.com/rawblock/coinjoin-engine/internal/metrics"
)

// Evaluator scores how closely a shadow engine configuration tracks the
// production configuration over a batch of paired classifications. It
// wraps the real clustering-agreement metrics so a canary run can answer
// "did the candidate config just relabel everything?" with one number
// instead of eyeballing a divergence log.
type Evaluator struct{}

func NewEvaluator() *Evaluator {
	return &Evaluator{}
}

// AdjustedRandIndex reports how well the shadow variant labels agree with
// the production variant labels over the same ordered batch. +1 is
// identical labeling, 0 is random agreement, negative is worse than random.
func (e *Evaluator) AdjustedRandIndex(production, shadow []int) float64 {
	return metrics.AdjustedRandIndex(production, shadow)
}

// VariationOfInformation measures the information-theoretic distance
// between the production and shadow labelings. 0 means identical.
func (e *Evaluator) VariationOfInformation(production, shadow []int) float64 {
	return metrics.VariationOfInformation(production, shadow)
}
