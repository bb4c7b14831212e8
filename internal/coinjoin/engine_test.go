package coinjoin

import "testing"

func scr(s string) []byte { return []byte(s) }

func input(value int64, script string) TxInput {
	v := value
	return TxInput{PrevValue: &v, PrevScript: scr(script)}
}

func output(value int64, script string) TxOutput {
	return TxOutput{Value: value, Script: scr(script)}
}

// TestWhirlpoolMixDetector_5x5Pool exercises the WhirlpoolMix detector
// directly against the spec's 0.01-BTC-pool scenario. Any genuine 5x5
// Whirlpool mix (5 equal-valued outputs, 5 distinct scripts each side)
// also satisfies every JoinMarket condition — n̂=5 always meets
// n̂>=|Δout|/2 for a uniform 5-output set, 5 distinct input scripts
// always meets nscripts_in>=3, and 5 distinct output scripts always
// meets |Δout|=nscripts_out — so JoinMarket reads confidence 1.0 on the
// same transaction. The arbiter's fixed-order tie-break (spec §4.3,
// testable property #2) then picks JoinMarket, since it sorts first.
// That arbiter-level behavior is covered separately in
// TestArbiter_JoinMarketWinsWhirlpoolMixTie; this test isolates the
// WhirlpoolMix detector's own per-condition math.
func TestWhirlpoolMixDetector_5x5Pool(t *testing.T) {
	tx := SimpleTx{
		Inputs: []TxInput{
			input(1_000_000, "inA"),
			input(1_050_000, "inB"),
			input(1_030_000, "inC"),
			input(1_010_000, "inD"),
			input(1_000_000, "inE"),
		},
		Outputs: []TxOutput{
			output(1_000_000, "outA"),
			output(1_000_000, "outB"),
			output(1_000_000, "outC"),
			output(1_000_000, "outD"),
			output(1_000_000, "outE"),
		},
	}

	fr, negative := ExtractFeatures(tx)
	if negative != nil {
		t.Fatalf("unexpected short-circuit: %+v", negative)
	}

	got := whirlpoolMixDetector{}.Detect(fr, DefaultConfig())

	if got.Confidence != 1.0 {
		t.Errorf("expected confidence 1.0, got %v (%v)", got.Confidence, got.Reasons)
	}
	if got.Participants == nil || *got.Participants != 5 {
		t.Errorf("expected 5 participants, got %v", got.Participants)
	}
	if got.Denomination == nil || *got.Denomination != 1_000_000 {
		t.Errorf("expected denomination 1_000_000, got %v", got.Denomination)
	}
}

// TestArbiter_JoinMarketWinsWhirlpoolMixTie confirms the documented
// fixed-order tie-break: on a transaction where JoinMarket and
// WhirlpoolMix both read confidence 1.0, JoinMarket — first in
// AllVariants — wins.
func TestArbiter_JoinMarketWinsWhirlpoolMixTie(t *testing.T) {
	tx := SimpleTx{
		Inputs: []TxInput{
			input(1_000_000, "inA"),
			input(1_050_000, "inB"),
			input(1_030_000, "inC"),
			input(1_010_000, "inD"),
			input(1_000_000, "inE"),
		},
		Outputs: []TxOutput{
			output(1_000_000, "outA"),
			output(1_000_000, "outB"),
			output(1_000_000, "outC"),
			output(1_000_000, "outD"),
			output(1_000_000, "outE"),
		},
	}

	got := NewEngine(DefaultConfig()).Classify(tx)

	if !got.IsCoinJoin || got.Variant != VariantJoinMarket {
		t.Fatalf("expected the fixed-order tie-break to favor JoinMarket, got %+v", got)
	}
	if mixVerdict, ok := got.AllVerdicts[VariantWhirlpoolMix]; !ok || mixVerdict.Confidence != 1.0 {
		t.Errorf("expected WhirlpoolMix to also read confidence 1.0 in the audit trail, got %+v", mixVerdict)
	}
}

func TestClassify_ClassicJoinMarket(t *testing.T) {
	tx := SimpleTx{
		Inputs: []TxInput{
			input(5_000_000, "inA"),
			input(7_000_000, "inB"),
			input(9_000_000, "inC"),
		},
		Outputs: []TxOutput{
			output(3_000_000, "outA"),
			output(3_000_000, "outB"),
			output(3_000_000, "outC"),
			output(2_100_000, "outD"),
			output(4_200_000, "outE"),
			output(8_700_000, "outF"),
		},
	}

	got := NewEngine(DefaultConfig()).Classify(tx)

	if !got.IsCoinJoin || got.Variant != VariantJoinMarket {
		t.Fatalf("expected JoinMarket, got %+v", got)
	}
	if got.Confidence < 0.7 {
		t.Errorf("expected confidence >= 0.7, got %v", got.Confidence)
	}
	if got.Participants == nil || *got.Participants != 3 {
		t.Errorf("expected 3 participants, got %v", got.Participants)
	}
	if got.Denomination == nil || *got.Denomination != 3_000_000 {
		t.Errorf("expected denomination 3_000_000, got %v", got.Denomination)
	}
}

// TestClassify_Wasabi1_0 mirrors the eight-equal-output / three-change
// shape from the spec's Wasabi 1.0 scenario. One change output reuses
// an earlier script so |Δout| != nscripts_out, which breaks JoinMarket's
// third condition and Wasabi's fourth condition alike — without that,
// this transaction's shape satisfies every JoinMarket condition too and
// JoinMarket would win the fixed-order tie, since both detectors read
// purely structural (script/count) signals here.
func TestClassify_Wasabi1_0(t *testing.T) {
	inputs := make([]TxInput, 0, 10)
	scripts := []string{"i1", "i2", "i3", "i4", "i5", "i6", "i7", "i8"}
	for i := 0; i < 10; i++ {
		inputs = append(inputs, input(12_000_000, scripts[i%len(scripts)]))
	}

	outputs := []TxOutput{
		output(10_000_000, "o1"),
		output(10_000_000, "o2"),
		output(10_000_000, "o3"),
		output(10_000_000, "o4"),
		output(10_000_000, "o5"),
		output(10_000_000, "o6"),
		output(10_000_000, "o7"),
		output(10_000_000, "o8"),
		output(50_000, "o9"),
		output(75_000, "o9"), // reused script — breaks the unique-scripts condition
		output(60_000, "o11"),
	}

	tx := SimpleTx{Inputs: inputs, Outputs: outputs}
	got := NewEngine(DefaultConfig()).Classify(tx)

	if !got.IsCoinJoin || got.Variant != VariantWasabi1_0 {
		t.Fatalf("expected Wasabi1_0, got %+v", got)
	}
	if got.Confidence < 0.9 {
		t.Errorf("expected confidence >= 0.9, got %v", got.Confidence)
	}
	if got.Participants == nil || *got.Participants != 8 {
		t.Errorf("expected 8 participants, got %v", got.Participants)
	}
	if got.Denomination == nil || *got.Denomination != 10_000_000 {
		t.Errorf("expected denomination 10_000_000, got %v", got.Denomination)
	}
}

// TestClassify_Wasabi2_0 mirrors the fixed-denomination scenario. As in
// TestClassify_Wasabi1_0, one output script is reused so JoinMarket's
// unique-scripts condition fails, avoiding a fixed-order tie with
// JoinMarket (both would otherwise read confidence 1.0 from the same
// equal-output-group structure).
func TestClassify_Wasabi2_0(t *testing.T) {
	tx := SimpleTx{
		Inputs: []TxInput{
			input(600_000, "i1"),
			input(600_000, "i2"),
			input(600_000, "i3"),
			input(600_000, "i4"),
			input(600_000, "i5"),
			input(600_000, "i6"),
		},
		Outputs: []TxOutput{
			output(500_000, "o1"),
			output(500_000, "o2"),
			output(500_000, "o3"),
			output(500_000, "o4"),
			output(500_000, "o5"),
			output(500_000, "o6"),
			output(10_000, "o7"),
			output(20_000, "o7"), // reused script
			output(30_000, "o9"),
		},
	}

	got := NewEngine(DefaultConfig()).Classify(tx)

	if !got.IsCoinJoin || got.Variant != VariantWasabi2_0 {
		t.Fatalf("expected Wasabi2_0, got %+v", got)
	}
	if got.Denomination == nil || *got.Denomination != 500_000 {
		t.Errorf("expected denomination 500_000, got %v", got.Denomination)
	}
}

func TestClassify_WhirlpoolTx0(t *testing.T) {
	tx := SimpleTx{
		Inputs: []TxInput{
			input(2_000_000, "i1"),
			input(3_000_000, "i2"),
		},
		Outputs: []TxOutput{
			output(1_050_000, "o1"),
			output(1_050_000, "o2"),
			output(1_050_000, "o3"),
			output(1_050_000, "o4"),
			output(1_050_000, "o5"),
			output(50_000, "o6"),
			output(0, "o7"),
		},
	}

	got := NewEngine(DefaultConfig()).Classify(tx)

	if !got.IsCoinJoin || got.Variant != VariantWhirlpoolTx0 {
		t.Fatalf("expected WhirlpoolTx0, got %+v", got)
	}
	if got.Confidence < 0.9 {
		t.Errorf("expected confidence >= 0.9, got %v", got.Confidence)
	}
	if got.Participants == nil || *got.Participants != 5 {
		t.Errorf("expected 5 participants, got %v", got.Participants)
	}
	if got.Denomination == nil || *got.Denomination != 1_000_000 {
		t.Errorf("expected denomination 1_000_000, got %v", got.Denomination)
	}
}

func TestClassify_PlainPayment_InsufficientInputs(t *testing.T) {
	tx := SimpleTx{
		Inputs: []TxInput{
			input(500_000, "A"),
		},
		Outputs: []TxOutput{
			output(400_000, "B"),
			output(95_000, "A"),
		},
	}

	got := NewEngine(DefaultConfig()).Classify(tx)

	if got.IsCoinJoin {
		t.Fatalf("expected negative classification, got %+v", got)
	}
	if got.Variant != VariantNone {
		t.Errorf("expected VariantNone, got %v", got.Variant)
	}
	if got.AllVerdicts != nil {
		t.Errorf("expected no detector verdicts on short-circuit, got %v", got.AllVerdicts)
	}
}

func TestClassify_CoinbaseInputDropped(t *testing.T) {
	withoutCoinbase := SimpleTx{
		Inputs: []TxInput{
			input(5_000_000, "inA"),
			input(7_000_000, "inB"),
			input(9_000_000, "inC"),
		},
		Outputs: []TxOutput{
			output(3_000_000, "outA"),
			output(3_000_000, "outB"),
			output(3_000_000, "outC"),
			output(2_100_000, "outD"),
			output(4_200_000, "outE"),
			output(8_700_000, "outF"),
		},
	}
	withCoinbase := withoutCoinbase
	withCoinbase.Inputs = append([]TxInput{{Coinbase: true}}, withoutCoinbase.Inputs...)

	engine := NewEngine(DefaultConfig())
	a := engine.Classify(withoutCoinbase)
	b := engine.Classify(withCoinbase)

	if a.Variant != b.Variant || a.Confidence != b.Confidence {
		t.Errorf("adding a coinbase input changed the verdict: %+v vs %+v", a, b)
	}
}

func TestClassify_CoinbaseOnly_Negative(t *testing.T) {
	tx := SimpleTx{
		Inputs: []TxInput{
			{Coinbase: true},
		},
		Outputs: []TxOutput{
			output(400_000, "B"),
			output(95_000, "A"),
		},
	}

	got := NewEngine(DefaultConfig()).Classify(tx)
	if got.IsCoinJoin {
		t.Fatalf("expected negative classification for coinbase-only inputs, got %+v", got)
	}
	if got.Reason == "" {
		t.Errorf("expected a reason on negative classification")
	}
}

func TestClassify_ScriptRelabelingInvariant(t *testing.T) {
	base := SimpleTx{
		Inputs: []TxInput{
			input(5_000_000, "inA"),
			input(7_000_000, "inB"),
			input(9_000_000, "inC"),
		},
		Outputs: []TxOutput{
			output(3_000_000, "outA"),
			output(3_000_000, "outB"),
			output(3_000_000, "outC"),
			output(2_100_000, "outD"),
			output(4_200_000, "outE"),
			output(8_700_000, "outF"),
		},
	}
	relabeled := SimpleTx{
		Inputs: []TxInput{
			input(5_000_000, "zzz1"),
			input(7_000_000, "zzz2"),
			input(9_000_000, "zzz3"),
		},
		Outputs: []TxOutput{
			output(3_000_000, "zzz4"),
			output(3_000_000, "zzz5"),
			output(3_000_000, "zzz6"),
			output(2_100_000, "zzz7"),
			output(4_200_000, "zzz8"),
			output(8_700_000, "zzz9"),
		},
	}

	engine := NewEngine(DefaultConfig())
	a := engine.Classify(base)
	b := engine.Classify(relabeled)

	if a.Variant != b.Variant || a.Confidence != b.Confidence || *a.Participants != *b.Participants {
		t.Errorf("script relabeling changed the verdict: %+v vs %+v", a, b)
	}
}

func TestClassify_InsertionOrderIndependence(t *testing.T) {
	tx := SimpleTx{
		Inputs: []TxInput{
			input(5_000_000, "inA"),
			input(7_000_000, "inB"),
			input(9_000_000, "inC"),
		},
		Outputs: []TxOutput{
			output(3_000_000, "outA"),
			output(3_000_000, "outB"),
			output(3_000_000, "outC"),
			output(2_100_000, "outD"),
			output(4_200_000, "outE"),
			output(8_700_000, "outF"),
		},
	}
	permuted := SimpleTx{
		Inputs: []TxInput{
			input(9_000_000, "inC"),
			input(5_000_000, "inA"),
			input(7_000_000, "inB"),
		},
		Outputs: []TxOutput{
			output(8_700_000, "outF"),
			output(3_000_000, "outB"),
			output(4_200_000, "outE"),
			output(3_000_000, "outA"),
			output(2_100_000, "outD"),
			output(3_000_000, "outC"),
		},
	}

	engine := NewEngine(DefaultConfig())
	a := engine.Classify(tx)
	b := engine.Classify(permuted)

	if a.Variant != b.Variant || a.Confidence != b.Confidence {
		t.Errorf("permuting inputs/outputs changed the verdict: %+v vs %+v", a, b)
	}
}

// TestClassify_ThresholdMonotonicity uses the Wasabi1_0 fixture shape
// with its equal outputs moved to 10_000_100 sat: still within Wasabi
// 1.x's epsilon of the target, but off the WabiSabi ladder, so Wasabi2_0
// fails its denomination condition (0.6) and the winning verdict is
// Wasabi1_0 at 0.9. That demonstrates that raising the configured
// threshold can only ever turn a positive classification into a
// negative one, never the reverse. A fixture pinned at exactly 1.0
// (such as the classic JoinMarket scenario, or the unmodified Wasabi1_0
// fixture, where Wasabi2_0 reads 1.0) can't exercise this: no threshold
// below or at 1.0 could ever flip it negative.
func TestClassify_ThresholdMonotonicity(t *testing.T) {
	inputs := make([]TxInput, 0, 10)
	scripts := []string{"i1", "i2", "i3", "i4", "i5", "i6", "i7", "i8"}
	for i := 0; i < 10; i++ {
		inputs = append(inputs, input(12_000_000, scripts[i%len(scripts)]))
	}

	outputs := []TxOutput{
		output(10_000_100, "o1"),
		output(10_000_100, "o2"),
		output(10_000_100, "o3"),
		output(10_000_100, "o4"),
		output(10_000_100, "o5"),
		output(10_000_100, "o6"),
		output(10_000_100, "o7"),
		output(10_000_100, "o8"),
		output(50_000, "o9"),
		output(75_000, "o9"), // reused script — breaks the unique-scripts condition
		output(60_000, "o11"),
	}

	tx := SimpleTx{Inputs: inputs, Outputs: outputs}

	low := DefaultConfig()
	low.ConfidenceThreshold = 0.5
	high := DefaultConfig()
	high.ConfidenceThreshold = 0.95

	lowResult := NewEngine(low).Classify(tx)
	highResult := NewEngine(high).Classify(tx)

	if !lowResult.IsCoinJoin {
		t.Fatalf("expected a positive classification at a low threshold, got %+v", lowResult)
	}
	if highResult.IsCoinJoin {
		t.Fatalf("raising the threshold above the verdict's confidence should turn it negative, got %+v", highResult)
	}
}

func TestAllDetectors_ConfidenceBounds(t *testing.T) {
	fixtures := []SimpleTx{
		{
			Inputs: []TxInput{
				input(5_000_000, "inA"),
				input(7_000_000, "inB"),
				input(9_000_000, "inC"),
			},
			Outputs: []TxOutput{
				output(3_000_000, "outA"),
				output(3_000_000, "outB"),
				output(3_000_000, "outC"),
				output(2_100_000, "outD"),
				output(4_200_000, "outE"),
				output(8_700_000, "outF"),
			},
		},
		{
			Inputs: []TxInput{
				input(1, "i1"),
				input(0, "i2"),
			},
			Outputs: []TxOutput{
				output(0, "o1"),
				output(0, "o2"),
			},
		},
	}

	suite := NewSuite()
	cfg := DefaultConfig()
	for _, tx := range fixtures {
		fr, negative := ExtractFeatures(tx)
		if negative != nil {
			continue
		}
		_, verdicts := suite.Run(fr, cfg)
		for _, v := range verdicts {
			if v.Confidence < 0 || v.Confidence > 1 {
				t.Errorf("%s: confidence %v outside [0,1]", v.Variant, v.Confidence)
			}
		}
	}
}

func TestConfig_ValidationRejectsMisuse(t *testing.T) {
	if _, err := NewConfig(Config{ConfidenceThreshold: 1.5}); err == nil {
		t.Error("expected error for out-of-range threshold")
	}
	if _, err := NewConfig(Config{ConfidenceThreshold: 0.7}); err == nil {
		t.Error("expected error for empty denomination set / pool list")
	}
}

func TestExtractFeatures_NegativeAmountRejected(t *testing.T) {
	negOne := int64(-1)
	tx := SimpleTx{
		Inputs: []TxInput{
			{PrevValue: &negOne, PrevScript: scr("a")},
			input(1000, "b"),
		},
		Outputs: []TxOutput{
			output(100, "c"),
			output(100, "d"),
		},
	}

	_, negative := ExtractFeatures(tx)
	if negative == nil || negative.Reason != "invalid amount" {
		t.Fatalf("expected invalid amount short-circuit, got %+v", negative)
	}
}
