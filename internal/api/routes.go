package api

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/rawblock/coinjoin-engine/internal/coinjoin"
	"github.com/rawblock/coinjoin-engine/internal/db"
	"github.com/rawblock/coinjoin-engine/internal/explorer"
	"github.com/rawblock/coinjoin-engine/internal/scanner"
	"github.com/rawblock/coinjoin-engine/pkg/models"
)

// maxScanBlocks caps the block range for a single scan job to prevent
// runaway resource exhaustion from unconstrained requests.
const maxScanBlocks int64 = 50_000

type APIHandler struct {
	dbStore        *db.PostgresStore
	explorerClient *explorer.Client
	engine         *coinjoin.Engine
	wsHub          *Hub
	blockScanner   *scanner.BlockScanner
}

func SetupRouter(dbStore *db.PostgresStore, explorerClient *explorer.Client, engine *coinjoin.Engine, wsHub *Hub, blockScanner *scanner.BlockScanner) *gin.Engine {
	r := gin.Default()

	// Enable CORS — configurable via ALLOWED_ORIGINS env var
	// Production: ALLOWED_ORIGINS=https://rawblock.net,https://www.rawblock.net
	// Development: ALLOWED_ORIGINS=http://localhost:3000 (or leave empty for *)
	allowedOrigins := os.Getenv("ALLOWED_ORIGINS")
	r.Use(func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")
		if allowedOrigins == "" || allowedOrigins == "*" {
			c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		} else {
			for _, allowed := range strings.Split(allowedOrigins, ",") {
				if strings.TrimSpace(allowed) == origin {
					c.Writer.Header().Set("Access-Control-Allow-Origin", origin)
					break
				}
			}
		}
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, X-CSRF-Token, Authorization, accept, origin, Cache-Control, X-Requested-With")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PUT")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}
		c.Next()
	})

	if engine == nil {
		engine = coinjoin.NewEngine(nil)
	}

	handler := &APIHandler{
		dbStore:        dbStore,
		explorerClient: explorerClient,
		engine:         engine,
		wsHub:          wsHub,
		blockScanner:   blockScanner,
	}

	// ── Public endpoints (no auth) ─────────────────────────────
	pub := r.Group("/api/v1")
	{
		pub.GET("/health", handler.handleHealth)
		pub.GET("/ws", wsHub.Subscribe)
		pub.GET("/scan/progress", handler.handleScanProgress)
	}

	// ── Protected endpoints (require bearer token if API_AUTH_TOKEN set) ──
	auth := r.Group("/api/v1")
	auth.Use(AuthMiddleware())
	// Rate-limit protected endpoints to 30 req/min per IP (burst=5).
	// /tx/:txid performs an upstream explorer fetch on a cache miss —
	// especially important to bound here.
	auth.Use(NewRateLimiter(30, 5).Middleware())
	{
		auth.GET("/tx/:txid", handler.handleGetTransaction)
		auth.GET("/cluster/:id", handler.handleGetCluster)
		auth.GET("/export.csv", handler.handleExportCSV)
		auth.GET("/export.json", handler.handleExportJSON)
		auth.POST("/scan", handler.handleStartScan)
	}

	return r
}

// handleGetTransaction classifies (or looks up a stored classification
// for) a single transaction: GET /api/v1/tx/:txid.
func (h *APIHandler) handleGetTransaction(c *gin.Context) {
	txid := c.Param("txid")

	if h.dbStore != nil {
		if rec, err := h.dbStore.ClassificationByTxid(c.Request.Context(), txid); err == nil {
			c.JSON(http.StatusOK, gin.H{"classification": rec, "source": "stored"})
			return
		}
	}

	if h.explorerClient == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "explorer client not configured"})
		return
	}

	rawTx, err := h.explorerClient.GetTransaction(c.Request.Context(), txid)
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": "failed to fetch transaction", "details": err.Error()})
		return
	}

	classification := h.engine.Classify(*rawTx)
	rec := db.ToClassificationRecord(*rawTx, rawTx.BlockHeight, classification)

	if h.dbStore != nil {
		if err := h.dbStore.SaveClassification(c.Request.Context(), rec); err != nil {
			c.Error(err) // non-fatal: still return the freshly computed result
		}
	}

	c.JSON(http.StatusOK, gin.H{"classification": rec, "source": "live"})
}

// handleGetCluster backs GET /api/v1/cluster/:id.
func (h *APIHandler) handleGetCluster(c *gin.Context) {
	if h.dbStore == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "database not connected"})
		return
	}
	node, err := h.dbStore.ClusterByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "cluster not found"})
		return
	}
	c.JSON(http.StatusOK, node)
}

// listCoinJoinsForExport reads the page/limit query parameters and
// returns every stored positive classification in that page. Both
// export endpoints share this so the CSV and JSON views never diverge.
func (h *APIHandler) listCoinJoinsForExport(c *gin.Context) ([]models.ClassificationRecord, int, error) {
	if h.dbStore == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "database not connected"})
		return nil, 0, fmt.Errorf("database not connected")
	}
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "100"))
	recs, total, err := h.dbStore.ListCoinJoins(c.Request.Context(), page, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list classifications", "details": err.Error()})
		return nil, 0, err
	}
	return recs, total, nil
}

// handleExportJSON backs GET /api/v1/export.json: every stored positive
// classification, paginated.
func (h *APIHandler) handleExportJSON(c *gin.Context) {
	recs, total, err := h.listCoinJoinsForExport(c)
	if err != nil {
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": recs, "totalCount": total})
}

// handleExportCSV backs GET /api/v1/export.csv: the same rows, in CSV.
func (h *APIHandler) handleExportCSV(c *gin.Context) {
	recs, _, err := h.listCoinJoinsForExport(c)
	if err != nil {
		return
	}

	c.Header("Content-Type", "text/csv")
	c.Header("Content-Disposition", "attachment; filename=coinjoin_classifications.csv")

	w := csv.NewWriter(c.Writer)
	defer w.Flush()

	_ = w.Write([]string{"txid", "block_height", "variant", "confidence", "participants", "denomination", "num_inputs", "num_outputs", "total_input_btc"})
	for _, rec := range recs {
		participants := ""
		if rec.Participants != nil {
			participants = strconv.Itoa(*rec.Participants)
		}
		denomination := ""
		if rec.Denomination != nil {
			denomination = strconv.FormatInt(*rec.Denomination, 10)
		}
		_ = w.Write([]string{
			rec.Txid,
			strconv.Itoa(rec.BlockHeight),
			rec.Variant,
			strconv.FormatFloat(rec.Confidence, 'f', 4, 64),
			participants,
			denomination,
			strconv.Itoa(rec.NumInputs),
			strconv.Itoa(rec.NumOutputs),
			strconv.FormatFloat(rec.TotalInputBTC, 'f', 8, 64),
		})
	}
}

// handleHealth returns engine status for service discovery.
func (h *APIHandler) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":      "operational",
		"engine":      "coinjoin-classification-engine",
		"dbConnected": h.dbStore != nil,
	})
}

// handleStartScan launches a historical block scan in the background.
// POST /api/v1/scan { "startHeight": 850000, "endHeight": 850100 }
func (h *APIHandler) handleStartScan(c *gin.Context) {
	if h.blockScanner == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Block scanner not initialized"})
		return
	}

	var req struct {
		StartHeight int64 `json:"startHeight"`
		EndHeight   int64 `json:"endHeight"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body. Expected: {startHeight, endHeight}"})
		return
	}

	if req.StartHeight <= 0 || req.EndHeight <= 0 || req.StartHeight > req.EndHeight {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid block range"})
		return
	}
	if req.EndHeight-req.StartHeight+1 > maxScanBlocks {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":     "Block range too large",
			"maxBlocks": maxScanBlocks,
			"hint":      "Split into multiple smaller requests",
		})
		return
	}

	h.blockScanner.ScanRange(context.Background(), req.StartHeight, req.EndHeight)

	c.JSON(http.StatusOK, gin.H{
		"status":      "scan_started",
		"startHeight": req.StartHeight,
		"endHeight":   req.EndHeight,
		"totalBlocks": req.EndHeight - req.StartHeight + 1,
	})
}

// handleScanProgress returns the current progress of the block scanner.
func (h *APIHandler) handleScanProgress(c *gin.Context) {
	if h.blockScanner == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Block scanner not initialized"})
		return
	}
	c.JSON(http.StatusOK, h.blockScanner.GetProgress())
}

// BroadcastCoinJoinAlert sends a CoinJoin detection alert via the
// WebSocket hub. Wired as the alertFunc callback for the BlockScanner.
func BroadcastCoinJoinAlert(wsHub *Hub) func(scanner.CoinJoinAlert) {
	return func(alert scanner.CoinJoinAlert) {
		alertBytes, err := json.Marshal(gin.H{"type": "coinjoin_alert", "alert": alert})
		if err != nil {
			return
		}
		wsHub.Broadcast(alertBytes)
	}
}
