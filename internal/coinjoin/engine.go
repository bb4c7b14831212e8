package coinjoin

// Engine is the package's sole exported entry point: a frozen Config
// plus the fixed six-detector Suite. Engines are cheap to construct and
// safe for concurrent use — Classify holds no lock because neither the
// Config nor the Suite is ever mutated after NewEngine returns.
type Engine struct {
	cfg   *Config
	suite *Suite
}

// NewEngine builds an Engine over cfg. Pass nil to use DefaultConfig.
func NewEngine(cfg *Config) *Engine {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	return &Engine{cfg: cfg, suite: NewSuite()}
}

// Classify is the sole public entry point described in spec §6:
// classify(tx_view, config) → classification. A transaction too small
// to analyze (fewer than two non-coinbase inputs, fewer than two
// outputs, or a negative amount) short-circuits to a negative
// Classification with no detector verdicts run.
func (e *Engine) Classify(tx TxView) Classification {
	fr, negative := ExtractFeatures(tx)
	if negative != nil {
		return *negative
	}
	return e.suite.Classify(fr, e.cfg)
}

// Config returns the engine's frozen configuration.
func (e *Engine) Config() *Config { return e.cfg }
