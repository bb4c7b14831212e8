package models

import "github.com/rawblock/coinjoin-engine/internal/coinjoin"

// RawTxIn is a transaction input as delivered by the block-explorer
// ingestion client: txid/vout of the spent output plus its value and
// script, already resolved from the previous output (the explorer API
// does this lookup server-side, unlike raw Bitcoin Core RPC).
type RawTxIn struct {
	Txid         string `json:"txid"`
	Vout         uint32 `json:"vout"`
	Value        int64  `json:"value"` // satoshis
	ScriptPubKey string `json:"scriptPubKey"`
	Sequence     uint32 `json:"sequence"`
	IsCoinbase   bool   `json:"isCoinbase,omitempty"`
}

// RawTxOut is a transaction output as delivered by the ingestion client.
type RawTxOut struct {
	Value        int64  `json:"value"` // satoshis
	ScriptPubKey string `json:"scriptPubKey"`
}

// RawTx is the ingestion client's materialized view of a transaction —
// the boundary type between the explorer and the rest of the engine.
// It implements coinjoin.TxView directly so a scanner or poller can
// hand it straight to Engine.Classify with no intermediate copy.
type RawTx struct {
	Txid        string     `json:"txid"`
	Inputs      []RawTxIn  `json:"inputs"`
	Outputs     []RawTxOut `json:"outputs"`
	Weight      int        `json:"weight"`
	Vsize       int        `json:"vsize"`
	LockTime    uint32     `json:"locktime"`
	Version     int32      `json:"version"`
	BlockHeight int        `json:"blockHeight,omitempty"` // 0 for mempool
	BlockTime   int64      `json:"blockTime,omitempty"`
}

// TxInputs satisfies coinjoin.TxView, adapting RawTxIn into coinjoin.TxInput.
func (t RawTx) TxInputs() []coinjoin.TxInput {
	out := make([]coinjoin.TxInput, len(t.Inputs))
	for i, in := range t.Inputs {
		var prevValue *int64
		if !in.IsCoinbase {
			v := in.Value
			prevValue = &v
		}
		out[i] = coinjoin.TxInput{
			PrevValue:  prevValue,
			PrevScript: []byte(in.ScriptPubKey),
			Coinbase:   in.IsCoinbase,
		}
	}
	return out
}

// TxOutputs satisfies coinjoin.TxView, adapting RawTxOut into coinjoin.TxOutput.
func (t RawTx) TxOutputs() []coinjoin.TxOutput {
	out := make([]coinjoin.TxOutput, len(t.Outputs))
	for i, o := range t.Outputs {
		out[i] = coinjoin.TxOutput{Value: o.Value, Script: []byte(o.ScriptPubKey)}
	}
	return out
}

var _ coinjoin.TxView = RawTx{}

// ClassificationRecord is the persisted row for one classified transaction —
// the write-side shape of coinjoin.Classification plus the identifying and
// provenance columns the persistence layer needs that the pure engine
// doesn't carry (txid, block height, observation time).
type ClassificationRecord struct {
	Txid          string   `json:"txid"`
	BlockHeight   int      `json:"blockHeight"` // 0 for mempool-only observations
	IsCoinJoin    bool     `json:"isCoinJoin"`
	Variant       string   `json:"variant"`
	Confidence    float64  `json:"confidence"`
	Participants  *int     `json:"participants,omitempty"`
	Denomination  *int64   `json:"denomination,omitempty"`
	Reason        string   `json:"reason,omitempty"`
	ObservedAtUTC string   `json:"observedAtUtc"`
	ClusterID     *string  `json:"clusterId,omitempty"`
	NumInputs     int      `json:"numInputs"`
	NumOutputs    int      `json:"numOutputs"`
	TotalInputBTC float64  `json:"totalInputBtc"`
}

// ClusterNode is a forensic grouping of one or more classified
// transactions attributed to the same wallet/coordinator round, surfaced
// by the web API's /cluster/:id view. Identifiers are UUIDs so that
// clusters minted independently by the scanner and the mempool poller
// never collide.
type ClusterNode struct {
	ID          string   `json:"id"` // uuid
	Variant     string   `json:"variant"`
	Denomination *int64  `json:"denomination,omitempty"`
	MemberTxids []string `json:"memberTxids"`
	FirstSeen   string   `json:"firstSeenUtc"`
	LastSeen    string   `json:"lastSeenUtc"`
}
