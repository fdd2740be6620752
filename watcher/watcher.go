// Package watcher implements the ledger watcher microservice. The watcher polls the outputs locked at the configured
// contract addresses and sends events when an output is created or spent.
package watcher

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	log "github.com/sirupsen/logrus"

	"github.com/tarancss/safesave/lib/block"
	"github.com/tarancss/safesave/lib/block/types"
	"github.com/tarancss/safesave/lib/metrics"
	"github.com/tarancss/safesave/lib/msg"
	"github.com/tarancss/safesave/lib/store"
	cw "github.com/tarancss/safesave/watcher/contractwatcher"
)

// pollTimeout bounds the indexer calls of one poll.
const pollTimeout = time.Minute

// ErrUnknownContract is returned when polling a contract that is not watched.
var ErrUnknownContract = errors.New("contract is not watched")

// Watcher implements a watcher service.
type Watcher struct {
	net       string
	db        store.DB
	ix        block.Indexer
	mb        msg.MsgBroker
	contracts map[string]string // contract addresses by validator name
	ring      int
	spec      string
	cwm       map[string]*cw.ContractWatcher
	polls     map[string]*sync.Mutex // one poll at a time per contract
	cron      *cron.Cron
	ret       chan string
	once      sync.Once
}

// New instantiates a new watcher service polling the given contracts on the cron schedule spec.
func New(net string, db store.DB, mb msg.MsgBroker, ix block.Indexer, contracts map[string]string, spec string,
	ring int,
) *Watcher {
	return &Watcher{
		net:       net,
		db:        db,
		ix:        ix,
		mb:        mb,
		contracts: contracts,
		ring:      ring,
		spec:      spec,
		cwm:       make(map[string]*cw.ContractWatcher),
		polls:     make(map[string]*sync.Mutex),
		ret:       make(chan string, 1),
	}
}

// Watch loads a ContractWatcher for each configured contract and schedules its polls. Watch requests sent by the api
// are consumed while the watcher runs. The returned channel gets a message once Stop has finished saving the state
// of every contract.
func (w *Watcher) Watch() (chan string, error) {
	ctx := context.Background()

	logger := cron.PrintfLogger(log.StandardLogger())
	w.cron = cron.New(cron.WithLogger(logger), cron.WithChain(cron.SkipIfStillRunning(logger)))

	for _, name := range w.names() {
		c, err := cw.New(ctx, name, w.contracts[name], w.ring, w.db)
		if err != nil {
			return nil, fmt.Errorf("[%s] cannot load watch state: %w", name, err)
		}

		w.cwm[name] = c
		w.polls[name] = new(sync.Mutex)

		contract := name
		if _, err = w.cron.AddFunc(w.spec, func() { w.tick(contract) }); err != nil {
			return nil, fmt.Errorf("invalid watch schedule %q: %w", w.spec, err)
		}

		log.Infof("[%s] Watching %s from height %d", name, c.Address, c.Height)
	}

	if len(w.cwm) == 0 {
		log.Warnf("[%s] No contract addresses configured, nothing to watch", w.net)
	}

	if w.mb != nil {
		if err := w.ManageWatchRequests(); err != nil {
			return nil, err
		}
	}

	w.cron.Start()

	return w.ret, nil
}

func (w *Watcher) names() []string {
	names := make([]string, 0, len(w.contracts))
	for n, addr := range w.contracts {
		if addr != "" {
			names = append(names, n)
		}
	}

	sort.Strings(names)

	return names
}

func (w *Watcher) tick(name string) {
	ctx, cancel := context.WithTimeout(context.Background(), pollTimeout)
	defer cancel()

	if _, err := w.Poll(ctx, name); err != nil {
		log.Errorf("[%s] Poll failed: %v", name, err)
	}
}

// Poll fetches the outputs at the address of contract name, sends the events of the differences with the last poll
// and saves the new state. It returns the events sent.
func (w *Watcher) Poll(ctx context.Context, name string) (evs []types.LedgerEvent, err error) {
	c, ok := w.cwm[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownContract, name)
	}

	w.polls[name].Lock()
	defer w.polls[name].Unlock()

	if c.Status() == cw.STOP {
		return nil, nil
	}

	defer func() { metrics.WatchTick(name, err) }()

	blk, err := w.ix.LatestBlock(ctx)
	if err != nil {
		return nil, fmt.Errorf("cannot get latest block: %w", err)
	}

	if !c.Chained(blk) {
		hash, height := c.Tip()
		log.Warnf("[%s] Chain rolled back from %d %s to %d %s", name, height, hash, blk.Height, blk.Hash)
	}
	// the watcher must see the ledger, not a cached copy
	if inv, isCached := w.ix.(block.Invalidator); isCached {
		if err = inv.Invalidate(ctx, c.Address); err != nil {
			log.Warnf("[%s] Cannot invalidate cached utxos: %v", name, err)
		}
	}

	utxos, err := block.ScriptUtxos(ctx, w.ix, c.Address)
	if err != nil {
		return nil, fmt.Errorf("cannot get script utxos: %w", err)
	}

	evs = c.Diff(utxos, blk.Height, blk.Time)
	c.UpdateChain(blk.Hash, blk.Height)

	if len(evs) > 0 {
		for _, e := range evs {
			metrics.LedgerEvent(name, e.Kind)
		}

		if w.mb != nil {
			if err = w.mb.SendEvents(w.net, evs); err != nil {
				log.Errorf("[%s] Error sending %d events: %v", name, len(evs), err)
			}
		}

		log.Infof("[%s] Sent %d events at height %d", name, len(evs), blk.Height)
	}

	if errSave := w.db.SaveWatch(ctx, name, c.ToStore()); errSave != nil {
		log.Errorf("[%s] Error saving watch state to DB: %v", name, errSave)

		if err == nil {
			err = errSave
		}
	}

	return evs, err
}

// PollAll polls every watched contract.
func (w *Watcher) PollAll(ctx context.Context) {
	for _, name := range w.names() {
		if _, err := w.Poll(ctx, name); err != nil {
			log.Errorf("[%s] Poll failed: %v", name, err)
		}
	}
}

// Stop ends the scheduled polls, waits for the running ones and saves the state of every contract. It may be called
// more than once.
func (w *Watcher) Stop() {
	w.once.Do(func() {
		go func() {
			if w.cron != nil {
				<-w.cron.Stop().Done()
			}

			var failed int

			for name, c := range w.cwm {
				w.polls[name].Lock()
				c.Stop()

				if err := w.db.SaveWatch(context.Background(), name, c.ToStore()); err != nil {
					log.Errorf("[%s] Error saving watch state to DB: %v", name, err)

					failed++
				}

				w.polls[name].Unlock()
			}

			w.ret <- fmt.Sprintf("[%s] Done! %d contracts, %d not saved", w.net, len(w.cwm), failed)
		}()
	})
}

// ManageWatchRequests starts a go routine to receive and manage watch requests sent for the network.
func (w *Watcher) ManageWatchRequests() error {
	var mut *sync.Mutex = new(sync.Mutex)

	mut.Lock()

	reqCh, errCh, err := w.mb.GetReqs(w.net, mut)
	if err != nil {
		return fmt.Errorf("watcher: cannot get requests: %w", err)
	}

	go func() {
		log.Infof("[%s] Start listening to watch request channel", w.net)

		for {
			select {
			case req, ok := <-reqCh:
				if !ok {
					log.Infof("[%s] Stop listening to watch request channel", w.net)

					return
				}

				w.handle(req)
				mut.Unlock()
			case e, ok := <-errCh:
				if !ok {
					errCh = nil

					continue
				}

				log.Errorf("[%s] Received error %v", w.net, e)
			}
		}
	}()

	return nil
}

func (w *Watcher) handle(req msg.WatchReq) {
	log.Debugf("[%s] Received request %+v", w.net, req)

	if req.Net != w.net {
		log.Warnf("[%s] Request for wrong net %s", w.net, req.Net)

		return
	}

	switch req.Act {
	case msg.EXIT:
		w.Stop()
	case msg.RESCAN:
		ctx, cancel := context.WithTimeout(context.Background(), pollTimeout)
		defer cancel()

		if req.Contract == "" {
			w.PollAll(ctx)

			return
		}

		if _, err := w.Poll(ctx, req.Contract); err != nil {
			log.Errorf("[%s] Rescan of %s failed: %v", w.net, req.Contract, err)
		}
	default:
		log.Warnf("[%s] Request has wrong action %d", w.net, req.Act)
	}
}
