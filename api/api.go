// Package api implements the api microservice.
//
// This microservice implements the RESTful API used by the Safe-Save frontend: wallet authentication and read views
// of the savings, loan, investment and rewards contracts decoded from the ledger, plus the savings groups kept in the
// database. Ledger events sent by the watcher service drop the cached utxo sets of the contracts that changed.
package api

import (
	"context"
	"net/http"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/tarancss/safesave/lib/block"
	"github.com/tarancss/safesave/lib/config"
	"github.com/tarancss/safesave/lib/msg"
	"github.com/tarancss/safesave/lib/store"
	"github.com/tarancss/safesave/lib/store/db"
)

// Service contains the data necessary to deliver the api.
type Service struct {
	conf config.ServiceConfig
	db   store.DB      // db connection
	ix   block.Indexer // ledger indexer
	mb   msg.MsgBroker // optional
	rl   *rateLimiter
	now  func() time.Time
	s    *http.Server  // http server
	ss   *http.Server  // https server
	sc   chan struct{} // http server channel used for graceful shutdowns
	once sync.Once
}

// New returns a pointer to a new api service.
func New(conf config.ServiceConfig, dbConn store.DB, mb msg.MsgBroker, ix block.Indexer) *Service {
	return &Service{
		conf: conf,
		db:   dbConn,
		ix:   ix,
		mb:   mb,
		rl:   newRateLimiter(conf.RateLimit, conf.RateBurst),
		now:  time.Now,
		sc:   make(chan struct{}),
	}
}

// Stop shuts down the http servers implementing the RESTful API and closes gracefully the connections to message
// broker and database.
func (s *Service) Stop() {
	s.once.Do(func() {
		ctx, cancel := context.WithTimeout(context.Background(), timeout*time.Second)
		defer cancel()
		// shutdown http servers
		if s.s != nil {
			if err := s.s.Shutdown(ctx); err != nil {
				log.Errorf("Error in http server shutdown: %v", err)
			}
		}

		if s.ss != nil {
			if err := s.ss.Shutdown(ctx); err != nil {
				log.Errorf("Error in https server shutdown: %v", err)
			}
		}

		close(s.sc) // indicate shutdowns have finished
		// close message broker
		if s.mb != nil {
			if err := s.mb.Close(); err != nil {
				log.Errorf("Error closing message broker: %v", err)
			}
		}
		// close database
		log.Infof("Disconnecting %s database, err:%v", s.conf.DBType, db.Close(s.db))
	})
}

// ManageEvents starts go routines to consume the ledger events sent by the watcher service for the indexer network:
// one reading events, one reading errors. Each event drops the cached utxo set of the address it refers to.
func (s *Service) ManageEvents() error {
	if s.mb == nil {
		return nil
	}

	net := s.ix.Network()

	var mut *sync.Mutex = new(sync.Mutex)

	mut.Lock()

	eveCh, errCh, err := s.mb.GetEvents(net, mut)
	if err != nil {
		return err
	}

	inv, cached := s.ix.(block.Invalidator)

	// launch event channel reader
	go func() {
		log.Infof("[%s] Start listening to watcher event channel", net)

		for eve := range eveCh {
			log.Debugf("[%s] Received %s event of %s %s", net, eve.Kind, eve.Contract, eve.Ref)

			if cached {
				if err := inv.Invalidate(context.Background(), eve.Address); err != nil {
					log.Warnf("[%s] Cannot invalidate cached utxos of %s: %v", net, eve.Address, err)
				}
			}

			mut.Unlock()
		}

		log.Infof("[%s] Stop listening to watcher event channel", net)
	}()

	// launch error channel reader
	go func() {
		for e := range errCh {
			log.Errorf("[%s] Received error %v", net, e)
		}
	}()

	return nil
}
