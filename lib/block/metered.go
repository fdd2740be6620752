package block

import (
	"context"
	"time"

	"github.com/tarancss/safesave/lib/block/types"
	"github.com/tarancss/safesave/lib/metrics"
)

// Metered is an Indexer that records the duration and outcome of every call of the wrapped indexer.
type Metered struct {
	Indexer
}

// AddressUtxos implements Indexer.
func (m *Metered) AddressUtxos(ctx context.Context, address string) (utxos []types.Utxo, err error) {
	defer observe("address_utxos", time.Now(), &err)

	return m.Indexer.AddressUtxos(ctx, address)
}

// Address implements Indexer.
func (m *Metered) Address(ctx context.Context, address string) (a types.Address, err error) {
	defer observe("address", time.Now(), &err)

	return m.Indexer.Address(ctx, address)
}

// Tx implements Indexer.
func (m *Metered) Tx(ctx context.Context, hash string) (t types.Tx, err error) {
	defer observe("tx", time.Now(), &err)

	return m.Indexer.Tx(ctx, hash)
}

// SubmitTx implements Indexer.
func (m *Metered) SubmitTx(ctx context.Context, cbor []byte) (hash string, err error) {
	defer observe("submit_tx", time.Now(), &err)

	return m.Indexer.SubmitTx(ctx, cbor)
}

// LatestBlock implements Indexer.
func (m *Metered) LatestBlock(ctx context.Context) (b types.Block, err error) {
	defer observe("latest_block", time.Now(), &err)

	return m.Indexer.LatestBlock(ctx)
}

// EpochParameters implements Indexer.
func (m *Metered) EpochParameters(ctx context.Context, epoch uint64) (p types.Params, err error) {
	defer observe("epoch_parameters", time.Now(), &err)

	return m.Indexer.EpochParameters(ctx, epoch)
}

// ProtocolParameters implements Indexer.
func (m *Metered) ProtocolParameters(ctx context.Context) (p types.Params, err error) {
	defer observe("protocol_parameters", time.Now(), &err)

	return m.Indexer.ProtocolParameters(ctx)
}

// observe reads err once the call has returned.
func observe(op string, start time.Time, err *error) {
	metrics.IndexerCall(op, start, *err)
}
