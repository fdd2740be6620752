// Package types common indexer types.
package types

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Amount is a quantity of one asset. Unit is "lovelace" or the concatenation of policy id and hex asset name.
type Amount struct {
	Unit     string `json:"unit"`
	Quantity string `json:"quantity"`
}

// Utxo contains the fields of an unspent transaction output returned by the indexer.
type Utxo struct {
	Address     string   `json:"address"`
	TxHash      string   `json:"tx_hash"`
	OutputIndex int      `json:"output_index"`
	Amount      []Amount `json:"amount"`
	Block       string   `json:"block"`
	DataHash    string   `json:"data_hash,omitempty"`
	InlineDatum string   `json:"inline_datum,omitempty"`
	ScriptRef   string   `json:"reference_script_hash,omitempty"`
}

// Ref returns the output reference as tx_hash#output_index.
func (u Utxo) Ref() string {
	return u.TxHash + "#" + strconv.Itoa(u.OutputIndex)
}

// Address contains the extended information of an address: its balance per asset and stake address.
type Address struct {
	Address      string   `json:"address"`
	Amount       []Amount `json:"amount"`
	StakeAddress string   `json:"stake_address"`
	Type         string   `json:"type"`
	Script       bool     `json:"script"`
}

// Tx contains a simplified number of transaction fields.
type Tx struct {
	Hash        string   `json:"hash"`
	Block       string   `json:"block"`
	BlockHeight uint64   `json:"block_height"`
	Slot        uint64   `json:"slot"`
	Index       int      `json:"index"`
	OutputAmt   []Amount `json:"output_amount"`
	Fees        string   `json:"fees"`
	Size        int      `json:"size"`
}

// Block contains a simplified list of block fields.
type Block struct {
	Hash          string `json:"hash"`
	Height        uint64 `json:"height"`
	Time          int64  `json:"time"`
	Slot          uint64 `json:"slot"`
	Epoch         uint64 `json:"epoch"`
	EpochSlot     uint64 `json:"epoch_slot"`
	PreviousBlock string `json:"previous_block"`
	TxCount       int    `json:"tx_count"`
}

// Params contains the protocol parameters of an epoch the backend cares about.
type Params struct {
	Epoch            uint64 `json:"epoch"`
	MinFeeA          uint64 `json:"min_fee_a"`
	MinFeeB          uint64 `json:"min_fee_b"`
	MaxTxSize        uint64 `json:"max_tx_size"`
	KeyDeposit       string `json:"key_deposit"`
	PoolDeposit      string `json:"pool_deposit"`
	CoinsPerUtxoSize string `json:"coins_per_utxo_size"`
	CollateralPct    uint64 `json:"collateral_percent"`
	MaxCollateralIns uint64 `json:"max_collateral_inputs"`
}

// LedgerEvent is published by the watcher when an output appears at or disappears from a contract address.
type LedgerEvent struct {
	Contract string `json:"contract"` // validator name, ie. savings
	Address  string `json:"address"`
	Kind     string `json:"kind"` // Created or Spent
	Ref      string `json:"ref"`
	Datum    string `json:"datum,omitempty"`
	Height   uint64 `json:"height"`
	TS       int64  `json:"ts"`
}

// LedgerEvent kinds.
const (
	Created = "created"
	Spent   = "spent"
)

// APIError is the error body replied by the indexer.
type APIError struct {
	StatusCode int    `json:"status_code"`
	Err        string `json:"error"`
	Message    string `json:"message"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%d %s: %s", e.StatusCode, e.Err, e.Message)
}

// Is makes a 404 APIError, or one whose message says so, match ErrNotFound.
func (e *APIError) Is(target error) bool {
	return target == ErrNotFound && (e.StatusCode == 404 || strings.Contains(e.Message, "not been found"))
}

// Error codes.
var (
	ErrNotFound    = errors.New("the requested component has not been found")
	ErrNoProjectID = errors.New("indexer project id is not set")
	ErrNetwork     = errors.New("unknown indexer network")
	ErrDecode      = errors.New("unable to decode indexer response")
)
