package db

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rawblock/coinjoin-engine/internal/coinjoin"
	"github.com/rawblock/coinjoin-engine/pkg/models"
)

type PostgresStore struct {
	pool *pgxpool.Pool
}

// Connect initializes the connection pool to PostgreSQL using pgx
func Connect(connStr string) (*PostgresStore, error) {
	pool, err := pgxpool.New(context.Background(), connStr)
	if err != nil {
		return nil, fmt.Errorf("unable to connect to database: %w", err)
	}

	if err := pool.Ping(context.Background()); err != nil {
		return nil, fmt.Errorf("ping failed: %w", err)
	}

	log.Println("Successfully connected to PostgreSQL for classification storage")
	return &PostgresStore{pool: pool}, nil
}

// Close gracefully closes the connection pool
func (s *PostgresStore) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// InitSchema loads and executes the schema.sql file
func (s *PostgresStore) InitSchema() error {
	schemaBytes, err := os.ReadFile("internal/db/schema.sql")
	if err != nil {
		return fmt.Errorf("failed to read schema file: %w", err)
	}

	_, err = s.pool.Exec(context.Background(), string(schemaBytes))
	if err != nil {
		return fmt.Errorf("failed to execute schema migrations: %w", err)
	}

	log.Println("Classification schema initialized")
	return nil
}

// SaveClassification upserts the engine's verdict for one transaction.
// txid is the natural key: re-scanning a transaction (e.g. the mempool
// poller observing it, then the block scanner confirming it) refreshes
// the same row rather than duplicating it.
func (s *PostgresStore) SaveClassification(ctx context.Context, rec models.ClassificationRecord) error {
	const sql = `
		INSERT INTO classifications
			(txid, block_height, is_coinjoin, variant, confidence, participants,
			 denomination, reason, num_inputs, num_outputs, total_input_btc)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (txid) DO UPDATE SET
			block_height    = EXCLUDED.block_height,
			is_coinjoin     = EXCLUDED.is_coinjoin,
			variant         = EXCLUDED.variant,
			confidence      = EXCLUDED.confidence,
			participants    = EXCLUDED.participants,
			denomination    = EXCLUDED.denomination,
			reason          = EXCLUDED.reason,
			num_inputs      = EXCLUDED.num_inputs,
			num_outputs     = EXCLUDED.num_outputs,
			total_input_btc = EXCLUDED.total_input_btc;
	`
	_, err := s.pool.Exec(ctx, sql,
		rec.Txid, rec.BlockHeight, rec.IsCoinJoin, rec.Variant, rec.Confidence,
		rec.Participants, rec.Denomination, rec.Reason, rec.NumInputs, rec.NumOutputs,
		rec.TotalInputBTC,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert classification %s: %w", rec.Txid, err)
	}
	return nil
}

// ClassificationByTxid backs GET /tx/:txid.
func (s *PostgresStore) ClassificationByTxid(ctx context.Context, txid string) (*models.ClassificationRecord, error) {
	const sql = `
		SELECT txid, block_height, is_coinjoin, variant, confidence, participants,
		       denomination, reason, num_inputs, num_outputs, total_input_btc,
		       cluster_id, observed_at
		FROM classifications WHERE txid = $1;
	`
	var rec models.ClassificationRecord
	var clusterID *string
	var observedAt time.Time
	err := s.pool.QueryRow(ctx, sql, txid).Scan(
		&rec.Txid, &rec.BlockHeight, &rec.IsCoinJoin, &rec.Variant, &rec.Confidence,
		&rec.Participants, &rec.Denomination, &rec.Reason, &rec.NumInputs, &rec.NumOutputs,
		&rec.TotalInputBTC, &clusterID, &observedAt,
	)
	if err != nil {
		return nil, err
	}
	rec.ClusterID = clusterID
	rec.ObservedAtUTC = observedAt.UTC().Format(time.RFC3339)
	return &rec, nil
}

// ListCoinJoins backs GET /export.csv and /export.json: every positive
// classification, newest block first.
func (s *PostgresStore) ListCoinJoins(ctx context.Context, page, limit int) ([]models.ClassificationRecord, int, error) {
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	if page < 1 {
		page = 1
	}
	offset := (page - 1) * limit

	var totalCount int
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM classifications WHERE is_coinjoin`).Scan(&totalCount); err != nil {
		return nil, 0, err
	}

	const sql = `
		SELECT txid, block_height, is_coinjoin, variant, confidence, participants,
		       denomination, reason, num_inputs, num_outputs, total_input_btc,
		       cluster_id, observed_at
		FROM classifications
		WHERE is_coinjoin
		ORDER BY block_height DESC
		LIMIT $1 OFFSET $2;
	`
	rows, err := s.pool.Query(ctx, sql, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var recs []models.ClassificationRecord
	for rows.Next() {
		var rec models.ClassificationRecord
		var clusterID *string
		var observedAt time.Time
		if err := rows.Scan(
			&rec.Txid, &rec.BlockHeight, &rec.IsCoinJoin, &rec.Variant, &rec.Confidence,
			&rec.Participants, &rec.Denomination, &rec.Reason, &rec.NumInputs, &rec.NumOutputs,
			&rec.TotalInputBTC, &clusterID, &observedAt,
		); err != nil {
			return nil, 0, err
		}
		rec.ClusterID = clusterID
		rec.ObservedAtUTC = observedAt.UTC().Format(time.RFC3339)
		recs = append(recs, rec)
	}
	if recs == nil {
		recs = []models.ClassificationRecord{}
	}
	return recs, totalCount, nil
}

// UpsertClusterNode attaches txid to the cluster for (variant,
// denomination), creating a fresh cluster if none exists yet within the
// lookback window. Grounded on the teacher's ON CONFLICT DO UPDATE
// upsert idiom in the original SaveAnalysisResult.
func (s *PostgresStore) UpsertClusterNode(ctx context.Context, variant string, denomination *int64, txid string) (string, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return "", err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var clusterID string
	const findSQL = `
		SELECT id FROM cluster_nodes
		WHERE variant = $1 AND denomination IS NOT DISTINCT FROM $2
		  AND last_seen > NOW() - INTERVAL '6 hours'
		ORDER BY last_seen DESC LIMIT 1;
	`
	err = tx.QueryRow(ctx, findSQL, variant, denomination).Scan(&clusterID)
	now := time.Now().UTC()

	switch {
	case err == nil:
		const updateSQL = `
			UPDATE cluster_nodes
			SET member_txids = array_append(member_txids, $2), last_seen = $3
			WHERE id = $1;
		`
		if _, err := tx.Exec(ctx, updateSQL, clusterID, txid, now); err != nil {
			return "", fmt.Errorf("updating cluster %s: %w", clusterID, err)
		}
	default:
		clusterID = uuid.NewString()
		const insertSQL = `
			INSERT INTO cluster_nodes (id, variant, denomination, member_txids, first_seen, last_seen)
			VALUES ($1, $2, $3, ARRAY[$4], $5, $5);
		`
		if _, err := tx.Exec(ctx, insertSQL, clusterID, variant, denomination, txid, now); err != nil {
			return "", fmt.Errorf("creating cluster for %s: %w", txid, err)
		}
	}

	const attachSQL = `UPDATE classifications SET cluster_id = $1 WHERE txid = $2;`
	if _, err := tx.Exec(ctx, attachSQL, clusterID, txid); err != nil {
		return "", fmt.Errorf("attaching %s to cluster %s: %w", txid, clusterID, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return "", err
	}
	return clusterID, nil
}

// ClusterByID backs GET /cluster/:id.
func (s *PostgresStore) ClusterByID(ctx context.Context, id string) (*models.ClusterNode, error) {
	const sql = `
		SELECT id, variant, denomination, member_txids, first_seen, last_seen
		FROM cluster_nodes WHERE id = $1;
	`
	var node models.ClusterNode
	var firstSeen, lastSeen time.Time
	err := s.pool.QueryRow(ctx, sql, id).Scan(
		&node.ID, &node.Variant, &node.Denomination, &node.MemberTxids, &firstSeen, &lastSeen,
	)
	if err != nil {
		return nil, err
	}
	node.FirstSeen = firstSeen.UTC().Format(time.RFC3339)
	node.LastSeen = lastSeen.UTC().Format(time.RFC3339)
	return &node, nil
}

// ToClassificationRecord adapts an engine Classification plus the
// transaction it was computed from into the persisted row shape.
func ToClassificationRecord(tx models.RawTx, blockHeight int, c coinjoin.Classification) models.ClassificationRecord {
	var totalIn int64
	for _, in := range tx.Inputs {
		totalIn += in.Value
	}
	return models.ClassificationRecord{
		Txid:          tx.Txid,
		BlockHeight:   blockHeight,
		IsCoinJoin:    c.IsCoinJoin,
		Variant:       string(c.Variant),
		Confidence:    c.Confidence,
		Participants:  c.Participants,
		Denomination:  c.Denomination,
		Reason:        c.Reason,
		NumInputs:     len(tx.Inputs),
		NumOutputs:    len(tx.Outputs),
		TotalInputBTC: btcutil.Amount(totalIn).ToBTC(),
	}
}

// GetPool exposes the connection pool for callers that need it directly
// (batch jobs, migrations).
func (s *PostgresStore) GetPool() *pgxpool.Pool {
	return s.pool
}
