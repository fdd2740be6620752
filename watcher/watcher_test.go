package watcher

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/tarancss/safesave/lib/block/types"
	"github.com/tarancss/safesave/lib/msg"
	"github.com/tarancss/safesave/lib/msg/local"
	"github.com/tarancss/safesave/lib/store/memory"
)

// ledger is an in memory indexer.
type ledger struct {
	mu    sync.Mutex
	tip   types.Block
	utxos map[string][]types.Utxo
	err   error
}

func (l *ledger) set(height uint64, addr string, utxos ...types.Utxo) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.tip = types.Block{Hash: "hash" + string(rune('a'+height)), Height: height, Time: int64(height) * 20}
	l.utxos[addr] = utxos
}

func (l *ledger) Network() string { return "preprod" }

func (l *ledger) AddressUtxos(_ context.Context, addr string) ([]types.Utxo, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.err != nil {
		return nil, l.err
	}

	u, ok := l.utxos[addr]
	if !ok {
		return nil, &types.APIError{StatusCode: 404, Err: "Not Found", Message: "The requested component has not been found."}
	}

	return append([]types.Utxo{}, u...), nil
}

func (l *ledger) Address(context.Context, string) (types.Address, error) {
	return types.Address{}, nil
}

func (l *ledger) Tx(context.Context, string) (types.Tx, error) { return types.Tx{}, nil }

func (l *ledger) SubmitTx(context.Context, []byte) (string, error) { return "", nil }

func (l *ledger) LatestBlock(context.Context) (types.Block, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	return l.tip, nil
}

func (l *ledger) EpochParameters(context.Context, uint64) (types.Params, error) {
	return types.Params{}, nil
}

func (l *ledger) ProtocolParameters(context.Context) (types.Params, error) { return types.Params{}, nil }

func out(hash string, d string) types.Utxo {
	return types.Utxo{TxHash: hash, InlineDatum: d, Amount: []types.Amount{{Unit: "lovelace", Quantity: "2000000"}}}
}

// setup returns a watcher of the savings and loan contracts, the broker and a receiver of its events.
func setup(t *testing.T, ix *ledger) (*Watcher, *local.Local, <-chan types.LedgerEvent, *sync.Mutex) {
	t.Helper()

	mb := local.New(16)
	db := memory.New()

	w := New("preprod", db, mb, ix, map[string]string{"savings": "addr_savings", "loan": "addr_loan", "rewards": ""},
		"@every 1h", 4)
	if _, err := w.Watch(); err != nil {
		t.Fatalf("Watch failed: %v", err)
	}

	mut := new(sync.Mutex)
	mut.Lock()

	eves, _, err := mb.GetEvents("preprod", mut)
	if err != nil {
		t.Fatalf("GetEvents failed: %v", err)
	}

	return w, mb, eves, mut
}

func receive(t *testing.T, eves <-chan types.LedgerEvent, mut *sync.Mutex, n int) []types.LedgerEvent {
	t.Helper()

	var got []types.LedgerEvent

	for i := 0; i < n; i++ {
		select {
		case e := <-eves:
			got = append(got, e)
			mut.Unlock()
		case <-time.After(2 * time.Second):
			t.Fatalf("received %d events of %d", len(got), n)
		}
	}

	select {
	case e := <-eves:
		t.Fatalf("unexpected event %+v", e)
	case <-time.After(50 * time.Millisecond):
	}

	return got
}

func TestPoll(t *testing.T) {
	ix := &ledger{utxos: map[string][]types.Utxo{}}
	ix.set(1, "addr_savings", out("aa", "d8799fff"))

	w, mb, eves, mut := setup(t, ix)
	defer mb.Close()

	ctx := context.Background()

	cases := []struct {
		name     string
		contract string
		prepare  func()
		exp      []string // kind and ref of the events
		err      bool
	}{
		{"first poll", "savings", func() {}, []string{"created aa#0"}, false},
		{"no changes", "savings", func() { ix.set(2, "addr_savings", out("aa", "d8799fff")) }, nil, false},
		{"spent and created", "savings", func() { ix.set(3, "addr_savings", out("bb", "d87a9fff")) },
			[]string{"created bb#0", "spent aa#0"}, false},
		{"address never used", "loan", func() {}, nil, false},
		{"unknown contract", "rewards", func() {}, nil, true},
		{"indexer down", "savings", func() { ix.err = errors.New("boom") }, nil, true},
	}

	for _, c := range cases {
		c.prepare()

		evs, err := w.Poll(ctx, c.contract)
		if (err != nil) != c.err {
			t.Errorf("[%s] error %v expected:%v", c.name, err, c.err)

			continue
		}

		got := receive(t, eves, mut, len(c.exp))
		for i, e := range got {
			if s := e.Kind + " " + e.Ref; s != c.exp[i] || evs[i].Ref != e.Ref {
				t.Errorf("[%s] event %d is %s expected:%s", c.name, i, s, c.exp[i])
			}
		}
	}

	// spent events carry the last datum seen
	ix.err = nil
	ix.set(4, "addr_savings")

	evs, err := w.Poll(ctx, "savings")
	if err != nil || len(evs) != 1 || evs[0].Kind != types.Spent || evs[0].Datum != "d87a9fff" || evs[0].Height != 4 {
		t.Errorf("last poll %+v err:%v", evs, err)
	}

	receive(t, eves, mut, 1)

	// state was persisted
	ws, err := w.db.LoadWatch(ctx, "savings")
	if err != nil || ws.Height != 4 || len(ws.Utxos) != 0 || ws.Address != "addr_savings" {
		t.Errorf("saved state %+v err:%v", ws, err)
	}
}

func TestWatchRequests(t *testing.T) {
	ix := &ledger{utxos: map[string][]types.Utxo{}}
	ix.set(1, "addr_loan", out("cc", ""))

	w, mb, eves, mut := setup(t, ix)
	defer mb.Close()

	// a rescan request for all contracts polls them right away
	if err := mb.SendRequest("preprod", msg.WatchReq{Net: "preprod", Act: msg.RESCAN}); err != nil {
		t.Fatalf("SendRequest failed: %v", err)
	}

	got := receive(t, eves, mut, 1)
	if got[0].Contract != "loan" || got[0].Ref != "cc#0" || got[0].Kind != types.Created {
		t.Errorf("rescan event %+v", got[0])
	}

	// requests for other networks are ignored
	ix.set(2, "addr_loan")

	if err := mb.SendRequest("preprod", msg.WatchReq{Net: "mainnet", Contract: "loan", Act: msg.RESCAN}); err != nil {
		t.Fatalf("SendRequest failed: %v", err)
	}

	receive(t, eves, mut, 0)

	if err := mb.SendRequest("preprod", msg.WatchReq{Net: "preprod", Contract: "loan", Act: msg.RESCAN}); err != nil {
		t.Fatalf("SendRequest failed: %v", err)
	}

	got = receive(t, eves, mut, 1)
	if got[0].Kind != types.Spent {
		t.Errorf("rescan event %+v", got[0])
	}

	// exit stops the watcher and saves every contract
	if err := mb.SendRequest("preprod", msg.WatchReq{Net: "preprod", Act: msg.EXIT}); err != nil {
		t.Fatalf("SendRequest failed: %v", err)
	}

	select {
	case s := <-w.ret:
		t.Logf("watcher returned: %s", s)
	case <-time.After(2 * time.Second):
		t.Fatal("watcher did not stop")
	}

	if evs, err := w.Poll(context.Background(), "loan"); err != nil || evs != nil {
		t.Errorf("stopped watcher polled %+v err:%v", evs, err)
	}

	for _, name := range []string{"savings", "loan"} {
		if _, err := w.db.LoadWatch(context.Background(), name); err != nil {
			t.Errorf("state of %s not saved: %v", name, err)
		}
	}
}
