package coinjoin

// Wasabi 2.0 (WabiSabi) detection.
//
// WabiSabi replaces the single ~0.1 BTC denomination with a fixed
// ladder of standard denominations. The remaining structural
// conditions mirror Wasabi 1.0.
//
// Mathematical conditions:
//  1. 0.4 — d̂ ∈ S (exact membership in the fixed denomination ladder)
//  2. 0.3 — n̂ ≤ nscripts_in ≤ |input_values| ≤ amax·n̂
//  3. 0.2 — n̂ ≥ (|Δout| − 1) / 2
//  4. 0.1 — |Δout| = nscripts_out
//  5. 0.1 — d̂ ≥ vmin
//
// d̂ selection when D_max contains no member of S: pick the D_max entry
// nearest any s ∈ S, ties broken by smallest value — this spec-retained
// behavior means condition 1 then fails unless d̂ happens to land
// exactly on a denomination (see spec §9 Open Questions).
//
// Grounded on detect_wasabi_2_0 in
// original_source/heuristics/coinjoin_detection.py.
type wasabi2_0Detector struct{}

func (wasabi2_0Detector) Variant() Variant { return VariantWasabi2_0 }

func (wasabi2_0Detector) Detect(fr FeatureRecord, cfg *Config) Verdict {
	v := Verdict{Variant: VariantWasabi2_0}
	p := cfg.Wasabi2_0

	if fr.OutHistogram.Len() == 0 {
		v.Error = "no output values found"
		return v
	}

	nHat := fr.OutHistogram.Max()
	atMax := fr.OutHistogram.AtMax()

	nearestDist := func(v int64) int64 {
		best := abs64(v - p.Denominations[0])
		for _, s := range p.Denominations[1:] {
			if d := abs64(v - s); d < best {
				best = d
			}
		}
		return best
	}

	dHat := atMax[0]
	bestDist := nearestDist(dHat)
	for _, v := range atMax[1:] {
		if d := nearestDist(v); d < bestDist || (d == bestDist && v < dHat) {
			dHat = v
			bestDist = d
		}
	}

	inSet := false
	for _, s := range p.Denominations {
		if dHat == s {
			inSet = true
			break
		}
	}

	deltaOut := len(fr.OutputValues)
	numInputs := len(fr.InputValues)

	cond1 := inSet
	cond2 := nHat <= fr.NScriptsIn && fr.NScriptsIn <= numInputs && int64(numInputs) <= int64(p.Amax)*int64(nHat)
	cond3 := float64(nHat) >= float64(deltaOut-1)/2
	cond4 := deltaOut == fr.NScriptsOut
	cond5 := dHat >= p.Vmin

	var confidence float64
	var reasons []string

	if cond1 {
		confidence += 0.4
		reasons = append(reasons, "denomination condition met: d_hat is a standard WabiSabi denomination")
	}
	if cond2 {
		confidence += 0.3
		reasons = append(reasons, "input constraints met: n_hat <= nscripts_in <= |inputs| <= amax*n_hat")
	}
	if cond3 {
		confidence += 0.2
		reasons = append(reasons, "output count condition met: n_hat >= (|Δout|-1)/2")
	}
	if cond4 {
		confidence += 0.1
		reasons = append(reasons, "unique output scripts condition met: |Δout| == nscripts_out")
	}
	if cond5 {
		confidence += 0.1
		reasons = append(reasons, "vmin condition met: d_hat >= vmin")
	}

	v.Confidence = clamp01(confidence)
	v.Reasons = reasons
	v.ConditionsMet = []bool{cond1, cond2, cond3, cond4, cond5}
	v.Participants = intPtr(nHat)
	v.Denomination = int64Ptr(dHat)
	v.Diagnostic = map[string]any{
		"n_hat":         nHat,
		"d_hat":         dHat,
		"denominations": p.Denominations,
		"vmin":          p.Vmin,
	}
	return v
}
