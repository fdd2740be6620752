// Package block defines the interface required to read the ledger through an indexer.
package block

import (
	"context"
	"errors"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/tarancss/safesave/lib/block/blockfrost"
	"github.com/tarancss/safesave/lib/block/types"
	"github.com/tarancss/safesave/lib/config"
)

// Indexer contains the ledger queries the services need. It follows the Blockfrost API but any indexer returning the
// same data can implement it.
type Indexer interface {
	Network() string
	AddressUtxos(ctx context.Context, address string) ([]types.Utxo, error)
	Address(ctx context.Context, address string) (types.Address, error)
	Tx(ctx context.Context, hash string) (types.Tx, error)
	SubmitTx(ctx context.Context, cbor []byte) (string, error)
	LatestBlock(ctx context.Context) (types.Block, error)
	EpochParameters(ctx context.Context, epoch uint64) (types.Params, error)
	ProtocolParameters(ctx context.Context) (types.Params, error)
}

// Init returns the indexer client described by the configuration. Its calls are recorded in the indexer metrics.
func Init(c config.IndexerConfig) (Indexer, error) {
	bf, err := blockfrost.Init(c.Network, c.ProjectID, c.URL, time.Duration(c.Timeout)*time.Second)
	if err != nil {
		return nil, fmt.Errorf("cannot initialise indexer: %w", err)
	}

	log.Infof("Indexer ready for network %s", c.Network)

	return &Metered{Indexer: bf}, nil
}

// ScriptUtxos returns the unspent outputs locked at a script address. An address the indexer has never seen holds no
// outputs, so not-found errors yield an empty slice.
func ScriptUtxos(ctx context.Context, ix Indexer, address string) ([]types.Utxo, error) {
	utxos, err := ix.AddressUtxos(ctx, address)
	if errors.Is(err, types.ErrNotFound) {
		return []types.Utxo{}, nil
	}

	return utxos, err
}
