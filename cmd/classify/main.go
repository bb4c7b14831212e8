// classify is a one-shot batch CLI: it reads either a newline-delimited
// list of txids (resolved through the block-explorer client) or a JSON
// file of pre-fetched raw transactions, classifies each one, and prints
// a verdict per line.
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/rawblock/coinjoin-engine/internal/coinjoin"
	"github.com/rawblock/coinjoin-engine/internal/explorer"
	"github.com/rawblock/coinjoin-engine/pkg/models"
)

func main() {
	txidFile := flag.String("txids", "", "path to a newline-delimited file of txids (resolved via the explorer client)")
	jsonFile := flag.String("json", "", "path to a JSON file containing an array of raw transactions")
	explorerURL := flag.String("explorer", "https://blockstream.info/api", "block-explorer base URL, used only with -txids")
	flag.Parse()

	if *txidFile == "" && *jsonFile == "" {
		log.Fatal("FATAL: one of -txids or -json is required")
	}

	engineCfg, err := coinjoin.NewConfig(*coinjoin.DefaultConfig())
	if err != nil {
		log.Fatalf("FATAL: built-in default configuration failed validation: %v", err)
	}
	engine := coinjoin.NewEngine(engineCfg)

	var txs []models.RawTx
	switch {
	case *jsonFile != "":
		txs, err = loadFromJSON(*jsonFile)
	case *txidFile != "":
		txs, err = loadFromTxidFile(*txidFile, *explorerURL)
	}
	if err != nil {
		log.Fatalf("FATAL: %v", err)
	}

	total := len(txs)
	coinjoins := 0
	for i, tx := range txs {
		c := engine.Classify(tx)
		if c.IsCoinJoin {
			coinjoins++
		}
		printVerdict(i+1, total, tx, c)
	}

	fmt.Fprintf(os.Stderr, "classified %d transactions, %d flagged as CoinJoin\n", total, coinjoins)
}

func printVerdict(i, total int, tx models.RawTx, c coinjoin.Classification) {
	line := map[string]interface{}{
		"txid":       tx.Txid,
		"isCoinJoin": c.IsCoinJoin,
		"variant":    string(c.Variant),
		"confidence": c.Confidence,
	}
	if c.Participants != nil {
		line["participants"] = *c.Participants
	}
	if c.Denomination != nil {
		line["denomination"] = *c.Denomination
	}
	if !c.IsCoinJoin {
		line["reason"] = c.Reason
	}
	encoded, err := json.Marshal(line)
	if err != nil {
		fmt.Fprintf(os.Stderr, "[%d/%d] %s: failed to encode verdict: %v\n", i, total, tx.Txid, err)
		return
	}
	fmt.Println(string(encoded))
}

func loadFromJSON(path string) ([]models.RawTx, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	var txs []models.RawTx
	if err := json.Unmarshal(data, &txs); err != nil {
		return nil, fmt.Errorf("decoding %s: %w", path, err)
	}
	return txs, nil
}

func loadFromTxidFile(path, explorerURL string) ([]models.RawTx, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	defer file.Close()

	client, err := explorer.NewClient(explorer.Config{BaseURL: explorerURL})
	if err != nil {
		return nil, fmt.Errorf("building explorer client: %w", err)
	}

	ctx := context.Background()
	var txs []models.RawTx
	scanner := bufio.NewScanner(file)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		txid := strings.TrimSpace(scanner.Text())
		if txid == "" {
			continue
		}
		tx, err := client.GetTransaction(ctx, txid)
		if err != nil {
			fmt.Fprintf(os.Stderr, "line %d: skipping %s: %v\n", lineNo, txid, err)
			continue
		}
		txs = append(txs, *tx)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	return txs, nil
}
