package coinjoin

// Whirlpool Tx0 (pre-mix funding transaction) detection.
//
// Tx0 splits a user's funds into pool-sized pre-mix UTXOs plus a
// coordinator fee output and (typically) a zero-value marker output.
//
// Mathematical conditions:
//  1. 0.4 — k_pre ≥ |Δout| − 3
//  2. 0.3 — k_pre ≥ 1 ∧ k_fee = 1 ∧ k_zero = 1
//  3. 0.2 — k_pre ≤ amax
//  4. 0.1 — εmin ≤ ε̃ ≤ εmax
//
// Grounded on detect_whirlpool_tx0 in
// original_source/heuristics/coinjoin_detection.py.
type whirlpoolTx0Detector struct{}

func (whirlpoolTx0Detector) Variant() Variant { return VariantWhirlpoolTx0 }

func (whirlpoolTx0Detector) Detect(fr FeatureRecord, cfg *Config) Verdict {
	v := Verdict{Variant: VariantWhirlpoolTx0}
	p := cfg.WhirlpoolTx0
	pools := cfg.WhirlpoolPools

	numOutputs := len(fr.OutputValues)

	// Collect candidate pre-mix values: outputs landing in [d+epsMin,
	// d+epsMax] above some pool denomination d.
	var candidates []int64
	for _, val := range fr.OutputValues {
		for _, pool := range pools {
			if pool.Denomination+p.EpsilonMin <= val && val <= pool.Denomination+p.EpsilonMax {
				candidates = append(candidates, val)
				break
			}
		}
	}

	if len(candidates) == 0 {
		v.Error = "no candidate pre-mix values found"
		return v
	}

	// d_tilde: most frequent candidate value, ties broken by larger value.
	candHist := NewHistogram(candidates)
	distinct := candHist.Values()
	dTilde := distinct[0]
	for _, val := range distinct[1:] {
		if candHist.Count(val) > candHist.Count(dTilde) ||
			(candHist.Count(val) == candHist.Count(dTilde) && val > dTilde) {
			dTilde = val
		}
	}

	// Nearest pool with denomination <= d_tilde.
	var dHat, fHat int64
	found := false
	minDiff := int64(-1)
	for _, pool := range pools {
		if pool.Denomination <= dTilde {
			diff := dTilde - pool.Denomination
			if !found || diff < minDiff {
				minDiff = diff
				dHat = pool.Denomination
				fHat = pool.Fee
				found = true
			}
		}
	}
	if !found {
		v.Error = "no matching pool found"
		return v
	}

	epsilonTilde := dTilde - dHat

	kPre := 0
	kFee := 0
	kZero := 0
	for _, val := range fr.OutputValues {
		if val == dTilde {
			kPre++
		}
		lo := p.Eta1 * float64(fHat)
		hi := p.Eta2 * float64(fHat)
		if float64(val) >= lo && float64(val) <= hi {
			kFee++
		}
		if val == 0 {
			kZero++
		}
	}

	cond1 := kPre >= numOutputs-3
	cond2 := kPre >= 1 && kFee == 1 && kZero == 1
	cond3 := kPre <= p.Amax
	cond4 := p.EpsilonMin <= epsilonTilde && epsilonTilde <= p.EpsilonMax

	var confidence float64
	var reasons []string

	if cond1 {
		confidence += 0.4
		reasons = append(reasons, "pre-mix count condition met: k_pre >= |Δout|-3")
	}
	if cond2 {
		confidence += 0.3
		reasons = append(reasons, "required outputs present: one pre-mix group, one coordinator fee, one zero-value marker")
	}
	if cond3 {
		confidence += 0.2
		reasons = append(reasons, "max pre-mix condition met: k_pre <= amax")
	}
	if cond4 {
		confidence += 0.1
		reasons = append(reasons, "epsilon condition met: epsilon_min <= epsilon_tilde <= epsilon_max")
	}

	v.Confidence = clamp01(confidence)
	v.Reasons = reasons
	v.ConditionsMet = []bool{cond1, cond2, cond3, cond4}
	v.Participants = intPtr(kPre)
	v.Denomination = int64Ptr(dHat)
	v.Diagnostic = map[string]any{
		"d_tilde":       dTilde,
		"d_hat":         dHat,
		"f_hat":         fHat,
		"epsilon_tilde": epsilonTilde,
		"k_pre":         kPre,
		"k_fee":         kFee,
		"k_zero":        kZero,
	}
	return v
}
