package coinjoin

import "fmt"

// WhirlpoolPool is a (denomination, coordinator fee) pair, both in
// satoshis.
type WhirlpoolPool struct {
	Denomination int64
	Fee          int64
}

// Wasabi1Params configures the Wasabi 1.0 / 1.1 detectors.
type Wasabi1Params struct {
	TargetSat       int64
	EpsilonSat      int64
	Amax            int
	MaxMixingLevel  int // only consulted by the 1.1 detector
}

// Wasabi2Params configures the Wasabi 2.0 detector.
type Wasabi2Params struct {
	Denominations []int64
	Amax          int
	Vmin          int64
}

// WhirlpoolTx0Params configures the Whirlpool Tx0 (pre-mix) detector.
type WhirlpoolTx0Params struct {
	Amax        int
	Eta1        float64
	Eta2        float64
	EpsilonMin  int64
	EpsilonMax  int64
}

// WhirlpoolMixParams configures the Whirlpool Mix (round) detector.
type WhirlpoolMixParams struct {
	EpsilonMax int64
}

// Config is the engine's process-wide, read-only parameter registry.
// Construct one with NewConfig or DefaultConfig and share it by pointer
// across every Classify call; it is never mutated after construction.
type Config struct {
	ConfidenceThreshold       float64
	JoinMarketEqualToleranceS int64

	Wasabi1_0 Wasabi1Params
	Wasabi1_1 Wasabi1Params
	Wasabi2_0 Wasabi2Params

	WhirlpoolPools []WhirlpoolPool
	WhirlpoolTx0   WhirlpoolTx0Params
	WhirlpoolMix   WhirlpoolMixParams
}

// DefaultConfig returns the parameter set named in the specification:
// Wasabi 1.x target 0.1 BTC with a 0.01 BTC epsilon, Wasabi 2.0's eight
// fixed denominations, and Samourai Whirlpool's four standard pools.
func DefaultConfig() *Config {
	cfg := &Config{
		ConfidenceThreshold:       0.7,
		JoinMarketEqualToleranceS: 1_000,
		Wasabi1_0: Wasabi1Params{
			TargetSat:  10_000_000,
			EpsilonSat: 1_000_000,
			Amax:       10,
		},
		Wasabi1_1: Wasabi1Params{
			TargetSat:      10_000_000,
			EpsilonSat:     1_000_000,
			Amax:           10,
			MaxMixingLevel: 3,
		},
		Wasabi2_0: Wasabi2Params{
			Denominations: []int64{
				50_000, 100_000, 200_000, 500_000,
				1_000_000, 2_000_000, 5_000_000, 10_000_000,
			},
			Amax: 10,
			Vmin: 5_000,
		},
		WhirlpoolPools: []WhirlpoolPool{
			{Denomination: 100_000, Fee: 5_000},
			{Denomination: 1_000_000, Fee: 50_000},
			{Denomination: 5_000_000, Fee: 175_000},
			{Denomination: 50_000_000, Fee: 1_750_000},
		},
		WhirlpoolTx0: WhirlpoolTx0Params{
			Amax:       70,
			Eta1:       0.5,
			Eta2:       3.0,
			EpsilonMin: 100,
			EpsilonMax: 100_000,
		},
		WhirlpoolMix: WhirlpoolMixParams{
			EpsilonMax: 100_000,
		},
	}
	return cfg
}

// NewConfig validates cfg and returns it, or an error describing the
// first violated constraint. Configuration misuse (empty denomination
// set, an out-of-range threshold, an empty pool list) is a construction
// failure, never a per-call error — see spec §7.
func NewConfig(cfg Config) (*Config, error) {
	if cfg.ConfidenceThreshold < 0 || cfg.ConfidenceThreshold > 1 {
		return nil, fmt.Errorf("coinjoin: confidence threshold %v outside [0,1]", cfg.ConfidenceThreshold)
	}
	if len(cfg.Wasabi2_0.Denominations) == 0 {
		return nil, fmt.Errorf("coinjoin: wasabi 2.0 denomination set is empty")
	}
	if len(cfg.WhirlpoolPools) == 0 {
		return nil, fmt.Errorf("coinjoin: whirlpool pool list is empty")
	}
	for _, p := range cfg.WhirlpoolPools {
		if p.Denomination <= 0 {
			return nil, fmt.Errorf("coinjoin: whirlpool pool denomination must be positive, got %d", p.Denomination)
		}
	}
	out := cfg
	return &out, nil
}
