package coinjoin

// Whirlpool Mix (equal-in, equal-out round transaction) detection.
//
// Every Whirlpool mix round is exactly 5 inputs and 5 outputs, all
// outputs equal to the pool denomination, all inputs within epsilon_max
// above it, with between 1 and 4 inputs actually coming from a prior
// mix round (value strictly greater than the denomination).
//
// Conditions 1 and 2 short-circuit: if either fails, confidence is 0.
// Conditions 3 and 4 then add their weights independently.
//  1. 0.5 — exactly 5 inputs, 5 outputs, 5 distinct input scripts,
//     5 distinct output scripts
//  2. (gate) a pool denomination d with count(outputs == d) == 5
//  3. 0.3 — all 5 input values lie in [d, d + epsilon_max]
//  4. 0.2 — the count of inputs strictly greater than d lies in [1, 4]
//
// Grounded on detect_whirlpool_mix in
// original_source/heuristics/coinjoin_detection.py.
type whirlpoolMixDetector struct{}

func (whirlpoolMixDetector) Variant() Variant { return VariantWhirlpoolMix }

func (whirlpoolMixDetector) Detect(fr FeatureRecord, cfg *Config) Verdict {
	v := Verdict{Variant: VariantWhirlpoolMix}

	// FeatureRecord does not itself carry script-uniqueness counts
	// separately for inputs vs outputs beyond NScriptsIn/NScriptsOut,
	// which is exactly what this condition needs.
	cond1 := len(fr.InputValues) == 5 &&
		len(fr.OutputValues) == 5 &&
		fr.NScriptsIn == 5 &&
		fr.NScriptsOut == 5

	if !cond1 {
		v.Error = "5x5 structure not met"
		return v
	}

	outHist := NewHistogram(fr.OutputValues)

	var dMatched int64
	matched := false
	for _, pool := range cfg.WhirlpoolPools {
		if outHist.Count(pool.Denomination) == 5 {
			dMatched = pool.Denomination
			matched = true
			break
		}
	}

	if !matched {
		v.Error = "no matching pool denomination found"
		return v
	}

	epsilonMax := cfg.WhirlpoolMix.EpsilonMax

	validInputs := 0
	inputsGtD := 0
	for _, val := range fr.InputValues {
		if dMatched <= val && val <= dMatched+epsilonMax {
			validInputs++
		}
		if val > dMatched {
			inputsGtD++
		}
	}

	cond2 := validInputs == 5
	cond3 := inputsGtD >= 1 && inputsGtD <= 4

	confidence := 0.5
	reasons := []string{"classic 5x5 Whirlpool structure confirmed"}

	if cond2 {
		confidence += 0.3
		reasons = append(reasons, "all inputs valid: 5 inputs within epsilon_max of the pool denomination")
	}
	if cond3 {
		confidence += 0.2
		reasons = append(reasons, "mix input requirement met: 1-4 inputs carried over from a prior round")
	}

	v.Confidence = clamp01(confidence)
	v.Reasons = reasons
	v.ConditionsMet = []bool{cond1, cond2, cond3}
	v.Participants = intPtr(5)
	v.Denomination = int64Ptr(dMatched)
	v.Diagnostic = map[string]any{
		"d_matched":    dMatched,
		"valid_inputs": validInputs,
		"inputs_gt_d":  inputsGtD,
		"epsilon_max":  epsilonMax,
	}
	return v
}
