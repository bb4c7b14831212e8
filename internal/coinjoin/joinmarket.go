package coinjoin

// JoinMarket detection.
//
// JoinMarket transactions have no fixed denomination: the signal is
// purely structural — a cluster of equal-valued outputs large enough
// relative to the total output count, funded by enough distinct input
// scripts, with every output address used exactly once.
//
// Mathematical conditions (weights sum to 1.0):
//  1. 0.4 — n̂ ≥ |Δout| / 2
//  2. 0.4 — nscripts_in ≥ 3
//  3. 0.2 — |Δout| = nscripts_out
//
// Grounded on detect_joinmarket_v2 in
// original_source/heuristics/coinjoin_detection.py.
type joinMarketDetector struct{}

func (joinMarketDetector) Variant() Variant { return VariantJoinMarket }

func (joinMarketDetector) Detect(fr FeatureRecord, _ *Config) Verdict {
	v := Verdict{Variant: VariantJoinMarket}

	if fr.OutHistogram.Len() == 0 {
		v.Error = "no output values found"
		return v
	}

	nHat := fr.OutHistogram.Max()
	deltaOut := len(fr.OutputValues)

	cond1 := float64(nHat) >= float64(deltaOut)/2
	cond2 := fr.NScriptsIn >= 3
	cond3 := deltaOut == fr.NScriptsOut

	var confidence float64
	var reasons []string

	if cond1 {
		confidence += 0.4
		reasons = append(reasons, "equal-output condition met: n̂ >= |Δout|/2")
	}
	if cond2 {
		confidence += 0.4
		reasons = append(reasons, "input script diversity condition met: nscripts_in >= 3")
	}
	if cond3 {
		confidence += 0.2
		reasons = append(reasons, "unique output scripts condition met: |Δout| == nscripts_out")
	}

	denom, _ := func() (int64, bool) {
		atMax := fr.OutHistogram.AtMax()
		if len(atMax) == 0 {
			return 0, false
		}
		return atMax[0], true
	}()

	v.Confidence = clamp01(confidence)
	v.Reasons = reasons
	v.ConditionsMet = []bool{cond1, cond2, cond3}
	v.Participants = intPtr(nHat)
	v.Denomination = int64Ptr(denom)
	v.Diagnostic = map[string]any{
		"n_hat":        nHat,
		"delta_out":    deltaOut,
		"nscripts_in":  fr.NScriptsIn,
		"nscripts_out": fr.NScriptsOut,
	}
	return v
}
