// Package contractwatcher keeps the state of one watched contract address: the outputs seen on the last poll and a
// ring with the last chain tips.
package contractwatcher

import (
	"context"
	"errors"
	"sort"
	"sync"

	log "github.com/sirupsen/logrus"

	"github.com/tarancss/safesave/lib/block/types"
	"github.com/tarancss/safesave/lib/store"
	"github.com/tarancss/safesave/lib/util"
)

// Status possible values, control whether a ContractWatcher is working or is/has to stop
const (
	WORK int = 0
	STOP int = 1
)

// ContractWatcher contains the fields and data structures required to follow the outputs locked at a contract.
type ContractWatcher struct {
	l       sync.Mutex // guards all fields
	status  int
	Name    string            // validator name, ie. savings
	Address string            // script address
	Height  uint64            // height of the tip at the last poll
	Tips    []string          // hashes of the last tips polled
	TipIdx  int               // index of the last tip in Tips
	Utxos   map[string]string // outputs at the address keyed by reference, with their inline datum
}

// New returns the ContractWatcher of contract name at address, restoring the state saved in db. A missing state, or
// one saved for another address, starts from scratch.
func New(ctx context.Context, name, address string, ring int, db store.DB) (*ContractWatcher, error) {
	if ring <= 0 {
		ring = 1
	}

	cw := &ContractWatcher{Name: name, Address: address, status: WORK}

	s, err := db.LoadWatch(ctx, name)

	switch {
	case errors.Is(err, store.ErrDataNotFound):
		cw.reset(ring)
	case err != nil:
		return nil, err
	case s.Address != address:
		log.Warnf("[%s] Contract address changed from %s, starting afresh", name, s.Address)
		cw.reset(ring)
	default:
		cw.FromStore(s)
		cw.resize(ring)
	}

	log.Debugf("[%s] contractwatcher.New height:%d utxos:%d", name, cw.Height, len(cw.Utxos))

	return cw, nil
}

func (c *ContractWatcher) reset(ring int) {
	c.Height = 0
	c.TipIdx = 0
	c.Tips = make([]string, ring)
	c.Utxos = make(map[string]string)
}

// resize keeps the most recent tips when the configured ring length differs from the stored one.
func (c *ContractWatcher) resize(ring int) {
	if len(c.Tips) == ring && c.TipIdx < ring {
		return
	}

	tips := make([]string, ring)

	n := len(c.Tips)
	for i := 0; i < n && i < ring; i++ {
		tips[(ring-i)%ring] = c.Tips[(c.TipIdx-i+n)%n]
	}

	c.Tips, c.TipIdx = tips, 0
}

// Diff compares the utxos currently at the address with the last known ones, replaces the snapshot and returns one
// Created event per new output followed by one Spent event per vanished output. Spent events carry the last datum
// seen for the output.
func (c *ContractWatcher) Diff(utxos []types.Utxo, height uint64, ts int64) []types.LedgerEvent {
	c.l.Lock()
	defer c.l.Unlock()

	cur := make(map[string]string, len(utxos))
	for i := range utxos {
		cur[utxos[i].Ref()] = utxos[i].InlineDatum
	}

	var created, spent []types.LedgerEvent

	for ref, d := range cur {
		if _, ok := c.Utxos[ref]; !ok {
			created = append(created, c.event(types.Created, ref, d, height, ts))
		}
	}

	for ref, d := range c.Utxos {
		if _, ok := cur[ref]; !ok {
			spent = append(spent, c.event(types.Spent, ref, d, height, ts))
		}
	}

	sort.Slice(created, func(i, j int) bool { return created[i].Ref < created[j].Ref })
	sort.Slice(spent, func(i, j int) bool { return spent[i].Ref < spent[j].Ref })

	c.Utxos = cur

	return append(created, spent...)
}

func (c *ContractWatcher) event(kind, ref, d string, height uint64, ts int64) types.LedgerEvent {
	return types.LedgerEvent{
		Contract: c.Name,
		Address:  c.Address,
		Kind:     kind,
		Ref:      ref,
		Datum:    d,
		Height:   height,
		TS:       ts,
	}
}

// Chained checks whether blk extends the polled chain: either nothing was polled yet, it is or follows the last tip,
// it is higher than the last tip or it is a tip already seen. A lower block that was never polled means the chain
// was rolled back.
func (c *ContractWatcher) Chained(blk types.Block) bool {
	c.l.Lock()
	defer c.l.Unlock()

	last := c.Tips[c.TipIdx]
	return last == "" || last == blk.Hash || last == blk.PreviousBlock || blk.Height > c.Height ||
		util.In(c.Tips, blk.Hash)
}

// UpdateChain records hash as the new tip at height. Polling the same tip again leaves the ring untouched.
func (c *ContractWatcher) UpdateChain(hash string, height uint64) {
	c.l.Lock()
	defer c.l.Unlock()

	if c.Tips[c.TipIdx] == hash {
		return
	}

	c.TipIdx++
	c.TipIdx %= len(c.Tips)
	c.Tips[c.TipIdx] = hash
	c.Height = height
}

// Tip returns the hash and height of the last polled tip.
func (c *ContractWatcher) Tip() (string, uint64) {
	c.l.Lock()
	defer c.l.Unlock()

	return c.Tips[c.TipIdx], c.Height
}

// ToStore returns a store.WatchState struct to be saved to store
func (c *ContractWatcher) ToStore() store.WatchState {
	c.l.Lock()
	defer c.l.Unlock()

	utxos := make(map[string]string, len(c.Utxos))
	for k, v := range c.Utxos {
		utxos[k] = v
	}

	return store.WatchState{
		Address: c.Address,
		Height:  c.Height,
		Tips:    append([]string{}, c.Tips...),
		TipIdx:  c.TipIdx,
		Utxos:   utxos,
	}
}

// FromStore loads the ContractWatcher with the values read from store
func (c *ContractWatcher) FromStore(s store.WatchState) {
	c.l.Lock()
	defer c.l.Unlock()

	c.Height = s.Height
	c.Tips = s.Tips
	c.TipIdx = s.TipIdx

	c.Utxos = s.Utxos
	if c.Utxos == nil {
		c.Utxos = make(map[string]string)
	}
}

// Stop sets status to STOP
func (c *ContractWatcher) Stop() {
	c.l.Lock()
	c.status = STOP
	c.l.Unlock()
}

// Status returns the current ContractWatcher status
func (c *ContractWatcher) Status() int {
	c.l.Lock()
	defer c.l.Unlock()

	return c.status
}
