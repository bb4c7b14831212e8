package coinjoin

// Classify runs every detector in the suite's fixed order and selects
// the strictly-greatest-confidence verdict among those meeting the
// configured threshold. Ties at the maximum are resolved by fixed
// order — the earlier detector wins. If no verdict qualifies, the
// returned Classification is negative but still carries all six
// verdicts for audit.
//
// Grounded on the best-match selection loop in analyze_transaction of
// original_source/heuristics/coinjoin_detection.py.
func (s *Suite) Classify(fr FeatureRecord, cfg *Config) Classification {
	byVariant, ordered := s.Run(fr, cfg)

	var best *Verdict
	for i := range ordered {
		v := &ordered[i]
		if v.Confidence < cfg.ConfidenceThreshold {
			continue
		}
		if best == nil || v.Confidence > best.Confidence {
			best = v
		}
	}

	if best == nil {
		return Classification{
			IsCoinJoin:  false,
			Variant:     VariantNone,
			Reason:      "no CoinJoin pattern detected above threshold",
			AllVerdicts: byVariant,
		}
	}

	return Classification{
		IsCoinJoin:   true,
		Variant:      best.Variant,
		Confidence:   best.Confidence,
		Participants: best.Participants,
		Denomination: best.Denomination,
		AllVerdicts:  byVariant,
	}
}
