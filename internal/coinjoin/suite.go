package coinjoin

// Detector evaluates one protocol variant's structural conditions
// against a FeatureRecord and reports a confidence-weighted Verdict. A
// Detector never returns an error: an unevaluable shape (e.g. an empty
// output histogram) is reported as confidence 0 with Verdict.Error set,
// matching the "never throws" contract in spec §7.
type Detector interface {
	Variant() Variant
	Detect(fr FeatureRecord, cfg *Config) Verdict
}

// Suite runs every detector in the fixed protocol order used for
// detection, tie-breaking, and audit iteration.
type Suite struct {
	detectors []Detector
}

// NewSuite builds the six-detector suite in the order JoinMarket,
// Wasabi 1.0, Wasabi 1.1, Wasabi 2.0, Whirlpool Tx0, Whirlpool Mix.
func NewSuite() *Suite {
	return &Suite{
		detectors: []Detector{
			joinMarketDetector{},
			wasabi1_0Detector{},
			wasabi1_1Detector{},
			wasabi2_0Detector{},
			whirlpoolTx0Detector{},
			whirlpoolMixDetector{},
		},
	}
}

// Detectors returns the suite's detectors in fixed order.
func (s *Suite) Detectors() []Detector { return s.detectors }

// Run evaluates every detector against fr and returns their verdicts,
// keyed by variant and in fixed order.
func (s *Suite) Run(fr FeatureRecord, cfg *Config) (map[Variant]Verdict, []Verdict) {
	ordered := make([]Verdict, 0, len(s.detectors))
	byVariant := make(map[Variant]Verdict, len(s.detectors))
	for _, d := range s.detectors {
		v := d.Detect(fr, cfg)
		ordered = append(ordered, v)
		byVariant[d.Variant()] = v
	}
	return byVariant, ordered
}
