package shadow

import (
	"context"
	"log"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rawblock/coinjoin-engine/internal/coinjoin"
	"github.com/rawblock/coinjoin-engine/pkg/models"
)

// ShadowRunner classifies a transaction under both the production engine
// configuration and a candidate ("shadow") configuration, and records
// where they disagree. Nothing the shadow engine decides ever reaches a
// classification record or alert — it exists purely to canary-test a
// weight or threshold change against live traffic before it is promoted
// to production.
type ShadowRunner struct {
	pool           *pgxpool.Pool
	snapshotID     int64
	productionFunc func(tx models.RawTx) coinjoin.Classification
	shadowFunc     func(tx models.RawTx) coinjoin.Classification
}

// ShadowResult captures the diff between the production and shadow
// classifications of one transaction.
type ShadowResult struct {
	Txid              string    `json:"txid"`
	ProductionVariant string    `json:"productionVariant"`
	ShadowVariant     string    `json:"shadowVariant"`
	ProductionConf    float64   `json:"productionConfidence"`
	ShadowConf        float64   `json:"shadowConfidence"`
	Diverged          bool      `json:"diverged"`
	SnapshotID        int64     `json:"snapshotId"`
	CreatedAt         time.Time `json:"createdAt"`
}

// NewShadowRunner wires a production engine and a candidate engine
// configuration into a runner that compares their verdicts.
func NewShadowRunner(pool *pgxpool.Pool, snapshotID int64, productionCfg, shadowCfg *coinjoin.Config) *ShadowRunner {
	productionEngine := coinjoin.NewEngine(productionCfg)
	shadowEngine := coinjoin.NewEngine(shadowCfg)
	return &ShadowRunner{
		pool:           pool,
		snapshotID:     snapshotID,
		productionFunc: productionEngine.Classify,
		shadowFunc:     shadowEngine.Classify,
	}
}

// RunShadowAnalysis classifies tx under both configurations and persists
// the comparison to the shadow_results table.
func (sr *ShadowRunner) RunShadowAnalysis(ctx context.Context, tx models.RawTx) (*ShadowResult, error) {
	prod := sr.productionFunc(tx)
	shadow := sr.shadowFunc(tx)

	result := &ShadowResult{
		Txid:              tx.Txid,
		ProductionVariant: string(prod.Variant),
		ShadowVariant:     string(shadow.Variant),
		ProductionConf:    prod.Confidence,
		ShadowConf:        shadow.Confidence,
		Diverged:          prod.IsCoinJoin != shadow.IsCoinJoin || prod.Variant != shadow.Variant,
		SnapshotID:        sr.snapshotID,
		CreatedAt:         time.Now(),
	}

	if result.Diverged {
		log.Printf("[Shadow] DIVERGENCE on %s: production=%s(%.2f) shadow=%s(%.2f)",
			tx.Txid, result.ProductionVariant, result.ProductionConf, result.ShadowVariant, result.ShadowConf)
	}

	if sr.pool != nil {
		if err := sr.persistShadowResult(ctx, result); err != nil {
			return result, err
		}
	}

	return result, nil
}

// persistShadowResult writes the comparison to the database.
func (sr *ShadowRunner) persistShadowResult(ctx context.Context, result *ShadowResult) error {
	sql := `INSERT INTO shadow_results
		(txid, production_variant, shadow_variant, production_confidence, shadow_confidence, diverged, snapshot_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	_, err := sr.pool.Exec(ctx, sql,
		result.Txid,
		result.ProductionVariant,
		result.ShadowVariant,
		result.ProductionConf,
		result.ShadowConf,
		result.Diverged,
		result.SnapshotID,
		result.CreatedAt,
	)
	return err
}

// GenerateDriftReport computes the divergence rate and average confidence
// delta between shadow and production over every comparison run under
// this snapshot.
func (sr *ShadowRunner) GenerateDriftReport(ctx context.Context) (totalRuns int, divergences int, avgConfidenceDelta float64, err error) {
	sql := `SELECT
		COUNT(*) AS total,
		COUNT(*) FILTER (WHERE diverged) AS divergences,
		COALESCE(AVG(ABS(shadow_confidence - production_confidence)), 0) AS avg_delta
	FROM shadow_results WHERE snapshot_id = $1`

	row := sr.pool.QueryRow(ctx, sql, sr.snapshotID)
	err = row.Scan(&totalRuns, &divergences, &avgConfidenceDelta)
	return
}
