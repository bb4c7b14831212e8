package coinjoin

// ExtractFeatures normalizes a raw TxView into a FeatureRecord, or
// returns a short-circuit negative Classification when the transaction
// is structurally too small to analyze.
//
// Coinbase inputs are dropped before feature extraction. An input
// without a PrevValue contributes zero to amount aggregates but never
// counts toward NScriptsIn. Outputs without a script still contribute
// their value; every missing-script output shares a single unnamed
// script, so all of them together add one to NScriptsOut, the same way
// two outputs with identical real scripts collapse to one distinct
// script.
//
// Grounded on the extraction helpers in
// original_source/heuristics/coinjoin_detection.py
// (_extract_input_amounts, _extract_input_scripts, _extract_output_scripts).
func ExtractFeatures(tx TxView) (FeatureRecord, *Classification) {
	inputs := tx.TxInputs()
	outputs := tx.TxOutputs()

	nonCoinbase := make([]TxInput, 0, len(inputs))
	for _, in := range inputs {
		if in.Coinbase {
			continue
		}
		nonCoinbase = append(nonCoinbase, in)
	}

	if len(nonCoinbase) < 2 || len(outputs) < 2 {
		return FeatureRecord{}, negativeClassification("coinbase / insufficient inputs")
	}

	inputValues := make([]int64, len(nonCoinbase))
	inScripts := make(map[string]struct{}, len(nonCoinbase))
	for i, in := range nonCoinbase {
		if in.PrevValue != nil {
			if *in.PrevValue < 0 {
				return FeatureRecord{}, negativeClassification("invalid amount")
			}
			inputValues[i] = *in.PrevValue
			if in.PrevScript != nil {
				inScripts[string(in.PrevScript)] = struct{}{}
			}
		}
	}

	outputValues := make([]int64, len(outputs))
	outScripts := make(map[string]struct{}, len(outputs))
	const unnamedScriptKey = "\x00unnamed"
	for i, out := range outputs {
		if out.Value < 0 {
			return FeatureRecord{}, negativeClassification("invalid amount")
		}
		outputValues[i] = out.Value
		if out.Script == nil {
			outScripts[unnamedScriptKey] = struct{}{}
		} else {
			outScripts[string(out.Script)] = struct{}{}
		}
	}

	fr := FeatureRecord{
		InputValues:  inputValues,
		OutputValues: outputValues,
		NScriptsIn:   len(inScripts),
		NScriptsOut:  len(outScripts),
		OutHistogram: NewHistogram(outputValues),
	}
	return fr, nil
}

func negativeClassification(reason string) *Classification {
	return &Classification{
		IsCoinJoin: false,
		Variant:    VariantNone,
		Reason:     reason,
	}
}
