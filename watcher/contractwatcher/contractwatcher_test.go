package contractwatcher

import (
	"context"
	"testing"

	"github.com/tarancss/safesave/lib/block/types"
	"github.com/tarancss/safesave/lib/store/memory"
)

func utxo(hash string, idx int, d string) types.Utxo {
	return types.Utxo{TxHash: hash, OutputIndex: idx, InlineDatum: d}
}

// TestChain unit tests the tip ring: UpdateChain / Chained make sure the revolving slice Tips and index TipIdx behave
// correctly and rollbacks are detected.
func TestChain(t *testing.T) {
	ctx := context.Background()

	cw, err := New(ctx, "savings", "addr_test1", 4, memory.New())
	if err != nil {
		t.Fatalf("Error creating ContractWatcher: %v", err)
	}

	steps := []struct {
		blk     types.Block
		chained bool
		update  bool
	}{
		{types.Block{Hash: "hash1", Height: 1}, true, true}, // empty ring
		{types.Block{Hash: "hash2", Height: 2, PreviousBlock: "hash1"}, true, true},
		{types.Block{Hash: "hash2", Height: 2, PreviousBlock: "hash1"}, true, true}, // same tip
		{types.Block{Hash: "hash5", Height: 5, PreviousBlock: "hash4"}, true, true}, // skipped blocks
		{types.Block{Hash: "hash6", Height: 6, PreviousBlock: "hash5"}, true, true},
		{types.Block{Hash: "hash7", Height: 7, PreviousBlock: "hash6"}, true, true},
		{types.Block{Hash: "hash5", Height: 5, PreviousBlock: "hash4"}, true, false},     // old tip still in the ring
		{types.Block{Hash: "hash6bis", Height: 6, PreviousBlock: "hash5"}, false, false}, // rolled back
		{types.Block{Hash: "hash8", Height: 8, PreviousBlock: "hash7"}, true, true},
	}

	for i, s := range steps {
		if got := cw.Chained(s.blk); got != s.chained {
			t.Errorf("[%d] Chained(%s)=%v expected:%v", i, s.blk.Hash, got, s.chained)
		}

		if s.update {
			cw.UpdateChain(s.blk.Hash, s.blk.Height)
		}
	}

	if hash, h := cw.Tip(); hash != "hash8" || h != 8 {
		t.Errorf("Tip is %s %d", hash, h)
	}
	// ring of 4: hash1 and hash2 were overwritten
	if cw.TipIdx != 2 || cw.Tips[0] != "hash6" || cw.Tips[1] != "hash7" || cw.Tips[2] != "hash8" || cw.Tips[3] != "hash5" {
		t.Errorf("error cw:%+v %d", cw.Tips, cw.TipIdx)
	}
}

func TestDiff(t *testing.T) {
	cw, err := New(context.Background(), "loan", "addr_test1", 4, memory.New())
	if err != nil {
		t.Fatalf("Error creating ContractWatcher: %v", err)
	}

	cases := []struct {
		name  string
		utxos []types.Utxo
		exp   []types.LedgerEvent
	}{
		{"empty", nil, nil},
		{"first", []types.Utxo{utxo("bb", 0, "d1"), utxo("aa", 1, "d2")}, []types.LedgerEvent{
			{Kind: types.Created, Ref: "aa#1", Datum: "d2"},
			{Kind: types.Created, Ref: "bb#0", Datum: "d1"},
		}},
		{"unchanged", []types.Utxo{utxo("aa", 1, "d2"), utxo("bb", 0, "d1")}, nil},
		{"spent and created", []types.Utxo{utxo("bb", 0, "d1"), utxo("cc", 0, "d3")}, []types.LedgerEvent{
			{Kind: types.Created, Ref: "cc#0", Datum: "d3"},
			{Kind: types.Spent, Ref: "aa#1", Datum: "d2"},
		}},
		{"all spent", []types.Utxo{}, []types.LedgerEvent{
			{Kind: types.Spent, Ref: "bb#0", Datum: "d1"},
			{Kind: types.Spent, Ref: "cc#0", Datum: "d3"},
		}},
	}

	for i, c := range cases {
		got := cw.Diff(c.utxos, uint64(i), int64(i*10))
		if len(got) != len(c.exp) {
			t.Errorf("[%s] got %d events %+v expected %d", c.name, len(got), got, len(c.exp))

			continue
		}

		for j, e := range c.exp {
			g := got[j]
			if g.Kind != e.Kind || g.Ref != e.Ref || g.Datum != e.Datum {
				t.Errorf("[%s] event %d is %+v expected %+v", c.name, j, g, e)
			}

			if g.Contract != "loan" || g.Address != "addr_test1" || g.Height != uint64(i) || g.TS != int64(i*10) {
				t.Errorf("[%s] event %d has wrong context %+v", c.name, j, g)
			}
		}
	}
}

func TestStore(t *testing.T) {
	ctx := context.Background()
	db := memory.New()

	cw, err := New(ctx, "savings", "addr_test1", 3, db)
	if err != nil {
		t.Fatalf("Error creating ContractWatcher: %v", err)
	}

	cw.Diff([]types.Utxo{utxo("aa", 0, "d")}, 10, 0)
	cw.UpdateChain("h10", 10)
	cw.UpdateChain("h11", 11)

	if err = db.SaveWatch(ctx, "savings", cw.ToStore()); err != nil {
		t.Fatalf("Error saving state: %v", err)
	}

	// same address: state restored
	re, err := New(ctx, "savings", "addr_test1", 3, db)
	if err != nil {
		t.Fatalf("Error restoring ContractWatcher: %v", err)
	}

	if hash, h := re.Tip(); hash != "h11" || h != 11 || len(re.ToStore().Utxos) != 1 {
		t.Errorf("restored state %+v", re.ToStore())
	}

	if evs := re.Diff([]types.Utxo{utxo("aa", 0, "d")}, 12, 0); len(evs) != 0 {
		t.Errorf("restored snapshot emitted %+v", evs)
	}

	// a longer ring keeps the tips
	grown, err := New(ctx, "savings", "addr_test1", 5, db)
	if err != nil {
		t.Fatalf("Error resizing ContractWatcher: %v", err)
	}

	if hash, _ := grown.Tip(); hash != "h11" || len(grown.Tips) != 5 || grown.Tips[4] != "h10" {
		t.Errorf("resized tips %v idx %d", grown.Tips, grown.TipIdx)
	}

	// new address: start afresh
	moved, err := New(ctx, "savings", "addr_test2", 3, db)
	if err != nil {
		t.Fatalf("Error creating ContractWatcher: %v", err)
	}

	if hash, h := moved.Tip(); hash != "" || h != 0 || len(moved.ToStore().Utxos) != 0 {
		t.Errorf("moved state %+v", moved.ToStore())
	}

	// status
	if moved.Status() != WORK {
		t.Errorf("new watcher is not working")
	}

	moved.Stop()

	if moved.Status() != STOP {
		t.Errorf("stopped watcher is working")
	}
}
