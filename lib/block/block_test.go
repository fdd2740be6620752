package block

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tarancss/safesave/lib/block/types"
	"github.com/tarancss/safesave/lib/cache/memory"
	"github.com/tarancss/safesave/lib/config"
	"github.com/tarancss/safesave/lib/metrics"
)

// countingIndexer serves a fixed utxo set and counts the calls.
type countingIndexer struct {
	Indexer
	calls int
	err   error
}

func (c *countingIndexer) Network() string { return "preprod" }

func (c *countingIndexer) AddressUtxos(_ context.Context, addr string) ([]types.Utxo, error) {
	c.calls++
	if c.err != nil {
		return nil, c.err
	}

	return []types.Utxo{{Address: addr, TxHash: "aa", OutputIndex: 1}}, nil
}

func TestCached(t *testing.T) {
	ctx := context.Background()
	ix := &countingIndexer{}

	assert.Same(t, Indexer(ix), NewCached(ix, nil, time.Minute))
	assert.Same(t, Indexer(ix), NewCached(ix, memory.New(0, 0), 0))

	c := NewCached(ix, memory.New(0, time.Minute), time.Minute)

	for i := 0; i < 3; i++ {
		utxos, err := c.AddressUtxos(ctx, "addr1")
		require.NoError(t, err)
		require.Len(t, utxos, 1)
		assert.Equal(t, "aa#1", utxos[0].Ref())
	}

	assert.Equal(t, 1, ix.calls)

	inv, ok := c.(Invalidator)
	require.True(t, ok)
	require.NoError(t, inv.Invalidate(ctx, "addr1"))

	_, err := c.AddressUtxos(ctx, "addr1")
	require.NoError(t, err)
	assert.Equal(t, 2, ix.calls)

	ix.err = errors.New("down")
	_, err = c.AddressUtxos(ctx, "addr2")
	assert.Error(t, err)
}

func TestScriptUtxos(t *testing.T) {
	ctx := context.Background()

	ix := &countingIndexer{err: &types.APIError{StatusCode: 404, Err: "Not Found"}}
	utxos, err := ScriptUtxos(ctx, ix, "addr1")
	require.NoError(t, err)
	assert.NotNil(t, utxos)
	assert.Empty(t, utxos)

	ix.err = &types.APIError{StatusCode: 400, Message: "The requested component has not been found."}
	utxos, err = ScriptUtxos(ctx, ix, "addr1")
	require.NoError(t, err)
	assert.Empty(t, utxos)

	ix.err = &types.APIError{StatusCode: 500, Err: "Internal Server Error"}
	_, err = ScriptUtxos(ctx, ix, "addr1")
	assert.Error(t, err)
}

func TestInit(t *testing.T) {
	ix, err := Init(config.IndexerConfig{Network: "preview", ProjectID: "previewKEY"})
	require.NoError(t, err)
	assert.Equal(t, "preview", ix.Network())

	_, err = Init(config.IndexerConfig{Network: "preprod"})
	assert.ErrorIs(t, err, types.ErrNoProjectID)
}

// indexerSamples counts the observations of op in the indexer call histogram.
func indexerSamples(t *testing.T, op, success string) uint64 {
	t.Helper()

	mfs, err := metrics.Registry.Gather()
	require.NoError(t, err)

	var n uint64

	for _, mf := range mfs {
		if mf.GetName() != "safesave_indexer_call_duration_seconds" {
			continue
		}

		for _, m := range mf.GetMetric() {
			labels := map[string]string{}
			for _, l := range m.GetLabel() {
				labels[l.GetName()] = l.GetValue()
			}

			if labels["op"] == op && labels["success"] == success {
				n += m.GetHistogram().GetSampleCount()
			}
		}
	}

	return n
}

func TestMetered(t *testing.T) {
	ctx := context.Background()

	ix, err := Init(config.IndexerConfig{Network: "preview", ProjectID: "previewKEY"})
	require.NoError(t, err)
	assert.IsType(t, &Metered{}, ix)

	raw := &countingIndexer{}
	c := NewCached(&Metered{Indexer: raw}, memory.New(0, time.Minute), time.Minute)

	ok := indexerSamples(t, "address_utxos", "true")

	// only the miss reaches the indexer, every call that does is recorded
	for i := 0; i < 3; i++ {
		_, err = c.AddressUtxos(ctx, "addr_metered")
		require.NoError(t, err)
	}

	assert.Equal(t, ok+1, indexerSamples(t, "address_utxos", "true"))

	failed := indexerSamples(t, "address_utxos", "false")
	raw.err = errors.New("down")

	_, err = (&Metered{Indexer: raw}).AddressUtxos(ctx, "addr_down")
	assert.Error(t, err)
	assert.Equal(t, failed+1, indexerSamples(t, "address_utxos", "false"))
	assert.Equal(t, 2, raw.calls)
}
