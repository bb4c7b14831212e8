package coinjoin

// Wasabi 1.0 / 1.1 (ZeroLink) detection.
//
// Both protocols target a fixed ~0.1 BTC post-mix denomination. 1.1
// adds a fifth condition bounding the estimated participant count by
// the protocol's mixing-level parameter L.
//
// Mathematical conditions (1.0: weights sum to 1.0; 1.1 adds a fifth
// weight of 0.1, so the pre-clamp sum can reach 1.1 — spec keeps the
// listed weights and clamps the final confidence, see spec §9):
//  1. 0.4 — target − ε ≤ d̂ ≤ target + ε
//  2. 0.3 — n̂ ≤ nscripts_in ≤ |input_values| ≤ amax·n̂
//  3. 0.2 — n̂ ≥ (|Δout| − 1) / 2
//  4. 0.1 — |Δout| = nscripts_out
//  5. 0.1 (1.1 only) — n̂ ≤ max_mixing_level
//
// Grounded on detect_wasabi_1_0 / detect_wasabi_1_1 in
// original_source/heuristics/coinjoin_detection.py.

// wasabi1Conditions evaluates the four conditions shared by 1.0 and 1.1,
// returning the shared diagnostic state so both detectors can build
// their own Verdict (1.1 appends the fifth mixing-level condition).
func wasabi1Conditions(fr FeatureRecord, p Wasabi1Params) (dHat int64, nHat int, conds [4]bool, reasons []string, diag map[string]any, ok bool) {
	if fr.OutHistogram.Len() == 0 {
		return 0, 0, conds, nil, nil, false
	}

	nHat = fr.OutHistogram.Max()
	atMax := fr.OutHistogram.AtMax()

	dHat = atMax[0]
	bestDiff := abs64(dHat - p.TargetSat)
	for _, v := range atMax[1:] {
		if d := abs64(v - p.TargetSat); d < bestDiff || (d == bestDiff && v < dHat) {
			dHat = v
			bestDiff = d
		}
	}

	deltaOut := len(fr.OutputValues)
	numInputs := len(fr.InputValues)

	cond1 := p.TargetSat-p.EpsilonSat <= dHat && dHat <= p.TargetSat+p.EpsilonSat
	cond2 := nHat <= fr.NScriptsIn && fr.NScriptsIn <= numInputs && int64(numInputs) <= int64(p.Amax)*int64(nHat)
	cond3 := float64(nHat) >= float64(deltaOut-1)/2
	cond4 := deltaOut == fr.NScriptsOut

	if cond1 {
		reasons = append(reasons, "denomination condition met: d_hat within epsilon of target")
	}
	if cond2 {
		reasons = append(reasons, "input constraints met: n_hat <= nscripts_in <= |inputs| <= amax*n_hat")
	}
	if cond3 {
		reasons = append(reasons, "output count condition met: n_hat >= (|Δout|-1)/2")
	}
	if cond4 {
		reasons = append(reasons, "unique output scripts condition met: |Δout| == nscripts_out")
	}

	diag = map[string]any{
		"n_hat":     nHat,
		"d_hat":     dHat,
		"target":    p.TargetSat,
		"epsilon":   p.EpsilonSat,
		"delta_out": deltaOut,
	}

	return dHat, nHat, [4]bool{cond1, cond2, cond3, cond4}, reasons, diag, true
}

func abs64(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}

type wasabi1_0Detector struct{}

func (wasabi1_0Detector) Variant() Variant { return VariantWasabi1_0 }

func (wasabi1_0Detector) Detect(fr FeatureRecord, cfg *Config) Verdict {
	v := Verdict{Variant: VariantWasabi1_0}

	dHat, nHat, conds, reasons, diag, ok := wasabi1Conditions(fr, cfg.Wasabi1_0)
	if !ok {
		v.Error = "no output values found"
		return v
	}

	weights := [4]float64{0.4, 0.3, 0.2, 0.1}
	var confidence float64
	for i, met := range conds {
		if met {
			confidence += weights[i]
		}
	}

	v.Confidence = clamp01(confidence)
	v.Reasons = reasons
	v.ConditionsMet = conds[:]
	v.Participants = intPtr(nHat)
	v.Denomination = int64Ptr(dHat)
	v.Diagnostic = diag
	return v
}

type wasabi1_1Detector struct{}

func (wasabi1_1Detector) Variant() Variant { return VariantWasabi1_1 }

func (wasabi1_1Detector) Detect(fr FeatureRecord, cfg *Config) Verdict {
	v := Verdict{Variant: VariantWasabi1_1}

	p := cfg.Wasabi1_1
	dHat, nHat, conds, reasons, diag, ok := wasabi1Conditions(fr, p)
	if !ok {
		v.Error = "no output values found"
		return v
	}

	cond5 := nHat <= p.MaxMixingLevel
	if cond5 {
		reasons = append(reasons, "mixing-level condition met: n_hat <= max_mixing_level")
	}
	diag["max_mixing_level"] = p.MaxMixingLevel

	weights := [5]float64{0.4, 0.3, 0.2, 0.1, 0.1}
	allConds := [5]bool{conds[0], conds[1], conds[2], conds[3], cond5}
	var confidence float64
	for i, met := range allConds {
		if met {
			confidence += weights[i]
		}
	}

	v.Confidence = clamp01(confidence)
	v.Reasons = reasons
	v.ConditionsMet = allConds[:]
	v.Participants = intPtr(nHat)
	v.Denomination = int64Ptr(dHat)
	v.Diagnostic = diag
	return v
}
