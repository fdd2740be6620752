package block

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/tarancss/safesave/lib/block/types"
	"github.com/tarancss/safesave/lib/cache"
	"github.com/tarancss/safesave/lib/metrics"
)

// Cached is an Indexer that keeps the utxo sets of addresses in a cache for ttl. The other queries go straight to the
// wrapped indexer.
type Cached struct {
	Indexer
	c   cache.Cache
	ttl time.Duration
}

// NewCached wraps ix. A nil cache or a non positive ttl returns ix unchanged.
func NewCached(ix Indexer, c cache.Cache, ttl time.Duration) Indexer {
	if c == nil || ttl <= 0 {
		return ix
	}

	return &Cached{Indexer: ix, c: c, ttl: ttl}
}

func (ca *Cached) key(address string) string {
	return "utxos:" + ca.Network() + ":" + address
}

// AddressUtxos returns the cached utxo set of address, querying the indexer on a miss. Cache failures are logged and
// fall through to the indexer.
func (ca *Cached) AddressUtxos(ctx context.Context, address string) ([]types.Utxo, error) {
	k := ca.key(address)

	b, err := ca.c.Get(ctx, k)
	if err == nil {
		var utxos []types.Utxo
		if err = json.Unmarshal(b, &utxos); err == nil {
			metrics.CacheLookup(true)

			return utxos, nil
		}
	}

	if !errors.Is(err, cache.ErrMiss) {
		log.Warnf("Cache lookup of %s failed: %v", k, err)
	}

	metrics.CacheLookup(false)

	utxos, err := ca.Indexer.AddressUtxos(ctx, address)
	if err != nil {
		return nil, err
	}

	if b, err = json.Marshal(utxos); err == nil {
		err = ca.c.Set(ctx, k, b, ca.ttl)
	}

	if err != nil {
		log.Warnf("Cannot cache %s: %v", k, err)
	}

	return utxos, nil
}

// Invalidate drops the cached utxo set of address.
func (ca *Cached) Invalidate(ctx context.Context, address string) error {
	return ca.c.Del(ctx, ca.key(address))
}

// Invalidator is implemented by indexers that cache address state.
type Invalidator interface {
	Invalidate(ctx context.Context, address string) error
}
