// Package explorer implements the block-explorer ingestion client: a
// thin HTTP/JSON adapter that fetches transactions from a REST block
// explorer (Esplora-style: /tx/:txid, /block-height/:height, /block/:hash/txs,
// /address/:address/txs) instead of talking Bitcoin Core RPC directly.
//
// Shaped after internal/bitcoin/client.go's RPC-wrapper pattern — a
// single Client holding connection config, one method per upstream call,
// errors wrapped with enough context to diagnose which call failed —
// generalized from JSON-RPC framing to plain REST.
package explorer

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/rawblock/coinjoin-engine/pkg/models"
)

// Config holds the upstream explorer's base URL and the client's local
// tuning knobs. There are no credentials: public block explorers are
// unauthenticated.
type Config struct {
	BaseURL      string
	CacheSize    int           // distinct transactions to keep in the LRU cache; 0 uses DefaultCacheSize
	RatePerSec   float64       // outbound requests/sec; 0 uses DefaultRatePerSec
	Burst        int           // token-bucket burst; 0 uses DefaultBurst
	HTTPTimeout  time.Duration // 0 uses DefaultHTTPTimeout
}

const (
	DefaultCacheSize   = 4096
	DefaultRatePerSec  = 10.0
	DefaultBurst       = 20
	DefaultHTTPTimeout = 15 * time.Second
)

// Client is the ingestion adapter. It never retries on its own —
// callers (the scanner, the poller) decide whether a failed fetch is
// worth retrying — but it does cache and rate-limit to protect the
// upstream explorer from a scan's burst pattern.
type Client struct {
	baseURL    string
	httpClient *http.Client
	cache      *lru.Cache[string, models.RawTx]
	limiter    *tokenBucket
}

// NewClient builds a Client against cfg. Pass zero values for the
// tuning knobs to accept the package defaults.
func NewClient(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("explorer: BaseURL must not be empty")
	}
	cacheSize := cfg.CacheSize
	if cacheSize <= 0 {
		cacheSize = DefaultCacheSize
	}
	cache, err := lru.New[string, models.RawTx](cacheSize)
	if err != nil {
		return nil, fmt.Errorf("explorer: building response cache: %w", err)
	}

	ratePerSec := cfg.RatePerSec
	if ratePerSec <= 0 {
		ratePerSec = DefaultRatePerSec
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = DefaultBurst
	}
	timeout := cfg.HTTPTimeout
	if timeout <= 0 {
		timeout = DefaultHTTPTimeout
	}

	return &Client{
		baseURL:    cfg.BaseURL,
		httpClient: &http.Client{Timeout: timeout},
		cache:      cache,
		limiter:    newTokenBucket(ratePerSec, float64(burst)),
	}, nil
}

// esploraTx mirrors the subset of an Esplora-style /tx/:txid response
// this client needs; fields outside the CoinJoin engine's interest
// (witness data, per-input is_coinbase flags aside) are dropped at the
// decode boundary rather than carried as dead weight downstream.
type esploraTx struct {
	Txid     string `json:"txid"`
	Version  int32  `json:"version"`
	Locktime uint32 `json:"locktime"`
	Size     int    `json:"size"`
	Weight   int    `json:"weight"`
	Vin      []struct {
		Txid         string `json:"txid"`
		Vout         uint32 `json:"vout"`
		IsCoinbase   bool   `json:"is_coinbase"`
		Sequence     uint32 `json:"sequence"`
		Prevout      *struct {
			ScriptPubKey string `json:"scriptpubkey"`
			Value        int64  `json:"value"`
		} `json:"prevout"`
	} `json:"vin"`
	Vout []struct {
		ScriptPubKey string `json:"scriptpubkey"`
		Value        int64  `json:"value"`
	} `json:"vout"`
	Status struct {
		Confirmed   bool   `json:"confirmed"`
		BlockHeight int    `json:"block_height"`
		BlockTime   int64  `json:"block_time"`
	} `json:"status"`
}

func (e esploraTx) toRawTx() models.RawTx {
	tx := models.RawTx{
		Txid:     e.Txid,
		Version:  e.Version,
		LockTime: e.Locktime,
		Weight:   e.Weight,
		Vsize:    (e.Weight + 3) / 4,
		Inputs:   make([]models.RawTxIn, len(e.Vin)),
		Outputs:  make([]models.RawTxOut, len(e.Vout)),
	}
	if e.Status.Confirmed {
		tx.BlockHeight = e.Status.BlockHeight
		tx.BlockTime = e.Status.BlockTime
	}
	for i, in := range e.Vin {
		rawIn := models.RawTxIn{
			Txid:       in.Txid,
			Vout:       in.Vout,
			Sequence:   in.Sequence,
			IsCoinbase: in.IsCoinbase,
		}
		if in.Prevout != nil {
			rawIn.Value = in.Prevout.Value
			rawIn.ScriptPubKey = in.Prevout.ScriptPubKey
		}
		tx.Inputs[i] = rawIn
	}
	for i, out := range e.Vout {
		tx.Outputs[i] = models.RawTxOut{Value: out.Value, ScriptPubKey: out.ScriptPubKey}
	}
	return tx
}

// GetTransaction fetches and decodes a single transaction by txid,
// serving from the LRU cache when possible. Mempool transactions
// (Status.Confirmed == false) are deliberately not cached, since their
// shape can still change (RBF) before confirmation.
func (c *Client) GetTransaction(ctx context.Context, txid string) (*models.RawTx, error) {
	if _, err := chainhash.NewHashFromStr(txid); err != nil {
		return nil, fmt.Errorf("explorer: invalid txid %q: %w", txid, err)
	}

	if cached, ok := c.cache.Get(txid); ok {
		tx := cached
		return &tx, nil
	}

	var decoded esploraTx
	if err := c.getJSON(ctx, "/tx/"+txid, &decoded); err != nil {
		return nil, fmt.Errorf("explorer: GetTransaction %s: %w", txid, err)
	}

	tx := decoded.toRawTx()
	if decoded.Status.Confirmed {
		c.cache.Add(txid, tx)
	}
	return &tx, nil
}

// GetMempoolTxids returns every txid currently sitting in the explorer's
// unconfirmed pool, per the Esplora /mempool/txids contract. The poller
// resolves each new txid through GetTransaction.
func (c *Client) GetMempoolTxids(ctx context.Context) ([]string, error) {
	var txids []string
	if err := c.getJSON(ctx, "/mempool/txids", &txids); err != nil {
		return nil, fmt.Errorf("explorer: GetMempoolTxids: %w", err)
	}
	return txids, nil
}

// GetBlockTransactions resolves blockHeight to a block hash and fetches
// that block's full transactions as RawTx values. The explorer API paginates block
// transaction lists 25-at-a-time; this method walks every page.
func (c *Client) GetBlockTransactions(ctx context.Context, blockHeight int64) ([]models.RawTx, error) {
	blockHash, err := c.getText(ctx, "/block-height/"+strconv.FormatInt(blockHeight, 10))
	if err != nil {
		return nil, fmt.Errorf("explorer: GetBlockTransactions: resolving height %d: %w", blockHeight, err)
	}

	var all []models.RawTx
	for startIndex := 0; ; startIndex += 25 {
		path := fmt.Sprintf("/block/%s/txs/%d", blockHash, startIndex)
		var page []esploraTx
		if err := c.getJSON(ctx, path, &page); err != nil {
			return nil, fmt.Errorf("explorer: GetBlockTransactions: page at %d: %w", startIndex, err)
		}
		if len(page) == 0 {
			break
		}
		for _, t := range page {
			all = append(all, t.toRawTx())
		}
		if len(page) < 25 {
			break
		}
	}
	return all, nil
}

// AddressPage is one cursor-delimited page of an address's transaction
// history. NextCursor is empty once the caller has reached the oldest
// transaction.
type AddressPage struct {
	Transactions []models.RawTx
	NextCursor   string
}

// GetAddressTransactions fetches one page of an address's transaction
// history, oldest-first cursor continuing from the txid in cursor (pass
// "" for the first page) per the Esplora chain-txs pagination contract.
func (c *Client) GetAddressTransactions(ctx context.Context, address string, cursor string) (AddressPage, error) {
	if _, err := btcutil.DecodeAddress(address, &chaincfg.MainNetParams); err != nil {
		return AddressPage{}, fmt.Errorf("explorer: invalid address %q: %w", address, err)
	}

	path := "/address/" + address + "/txs/chain"
	if cursor != "" {
		path += "/" + cursor
	}

	var page []esploraTx
	if err := c.getJSON(ctx, path, &page); err != nil {
		return AddressPage{}, fmt.Errorf("explorer: GetAddressTransactions %s: %w", address, err)
	}

	result := AddressPage{Transactions: make([]models.RawTx, len(page))}
	for i, t := range page {
		result.Transactions[i] = t.toRawTx()
	}
	if len(page) > 0 {
		result.NextCursor = page[len(page)-1].Txid
	}
	return result, nil
}

// getRaw performs a rate-limited GET against path and returns the raw
// response body.
func (c *Client) getRaw(ctx context.Context, path string) ([]byte, error) {
	if err := c.limiter.wait(ctx); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading body: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d: %s", resp.StatusCode, string(body))
	}
	return body, nil
}

// getJSON performs a rate-limited GET against path and decodes the JSON
// body into out.
func (c *Client) getJSON(ctx context.Context, path string, out interface{}) error {
	body, err := c.getRaw(ctx, path)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}

// getText performs a rate-limited GET against path and returns the body
// as a trimmed plain-text string — some Esplora endpoints (notably
// /block-height/:height) respond with a bare hash, not a JSON value.
func (c *Client) getText(ctx context.Context, path string) (string, error) {
	body, err := c.getRaw(ctx, path)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(body)), nil
}
