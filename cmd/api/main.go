// Package main: api service.
//
// The api reads contract state from the indexer, optionally through a redis or in-process cache, and keeps the
// savings groups in the configured database. With -w it also runs the ledger watcher in the same process, linked by
// the local message broker when no other broker is configured.
package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/tarancss/safesave/api"
	"github.com/tarancss/safesave/lib/block"
	"github.com/tarancss/safesave/lib/cache"
	cachemem "github.com/tarancss/safesave/lib/cache/memory"
	"github.com/tarancss/safesave/lib/cache/redis"
	"github.com/tarancss/safesave/lib/config"
	"github.com/tarancss/safesave/lib/metrics"
	"github.com/tarancss/safesave/lib/msg"
	"github.com/tarancss/safesave/lib/msg/amqp"
	"github.com/tarancss/safesave/lib/msg/local"
	"github.com/tarancss/safesave/lib/store/db"
	"github.com/tarancss/safesave/watcher"
)

func main() {
	// get command line flags
	confPath := flag.String("c", "", "flag to get configuration from json file")
	monitor := flag.Bool("m", false, "flag to monitor the server with Prometheus at http://localhost:9100/metrics")
	watch := flag.Bool("w", false, "flag to run the ledger watcher in this process")
	flag.Parse()

	// extract configuration
	conf, err := config.ExtractConfiguration(*confPath)
	if err != nil {
		log.Fatal(err)
	}

	conf.SetupLogging()

	if err = conf.Validate(); err != nil {
		log.Fatal(err)
	}

	if conf.JWTSecret == "" {
		log.Warn("JWT_SECRET is not set, wallet authentication will fail")
	}

	// connect to database, closed by the api service on Stop
	dbConn, err := db.New(conf.DBType, conf.DBConn)
	if err != nil {
		log.Fatal(err)
	}

	// load the indexer
	raw, err := block.Init(conf.Indexer)
	if err != nil {
		log.Fatal(err)
	}

	// cache utxo sets
	var c cache.Cache

	if conf.CacheTTL > 0 {
		if conf.CacheConn != "" {
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)

			r, errR := redis.New(ctx, conf.CacheConn, "safesave:")

			cancel()

			if errR != nil {
				log.Fatal(errR)
			}

			defer func() {
				log.Infof("Closing cache: %v", r.Close())
			}()

			c = r
		} else {
			c = cachemem.New(cachemem.DefaultSize, time.Duration(conf.CacheTTL)*time.Second)
		}
	}

	ix := block.NewCached(raw, c, time.Duration(conf.CacheTTL)*time.Second)

	// load Prometheus monitor
	if *monitor {
		go func() {
			log.Info("Serving metrics API")

			h := http.NewServeMux()
			h.Handle("/metrics", metrics.Handler())
			log.Error(http.ListenAndServe(":9100", h))
		}()
	}

	// load message broker, closed by the api service on Stop
	var mb msg.MsgBroker

	switch conf.MbType {
	case "amqp":
		var a *amqp.Amqp
		if a, err = amqp.New(conf.MbConn); err != nil {
			time.Sleep(10 * time.Second) // wait 10s for AMQP to be ready and try to reconnect

			if a, err = amqp.New(conf.MbConn); err != nil {
				log.Fatal(err)
			}
		}

		if err = a.Setup(); err != nil {
			log.Fatal(err)
		}

		mb = a
	case "local", "":
		if *watch {
			mb = local.New(local.QueueSize)
		} else {
			log.Warn("No message broker, cached utxo sets expire by ttl only")
		}
	default:
		log.Warnf("Unknown message broker type %q", conf.MbType)
	}

	// create api service and the optional watcher
	s := api.New(conf, dbConn, mb, ix)

	var w *watcher.Watcher

	var done chan string

	if *watch {
		w = watcher.New(raw.Network(), dbConn, mb, raw, conf.Contracts.Named(), conf.WatchSpec, conf.WatchRing)

		if done, err = w.Watch(); err != nil {
			log.Fatal(err)
		}
	}

	// capture CTRL+C or docker's SIGTERM for gracious exit
	finish := make(chan struct{})

	go func() {
		sigchan := make(chan os.Signal, 10)
		signal.Notify(sigchan, os.Interrupt, syscall.SIGTERM)
		<-sigchan
		log.Info("Program killed !")
		// the watcher saves its state before the database is closed
		if w != nil {
			w.Stop()
			log.Infof("Watch: %s", <-done)
		}

		s.Stop()
		close(finish)
	}()

	// manage watcher events
	if err = s.ManageEvents(); err != nil {
		log.Errorf("Error setting up broker readers for events: %v", err)
	}

	// init RESTful API, wait for its return and log response
	log.Infof("API: %s", s.Init(conf.RestfulEndpoint, conf.Port, conf.SSLPort, conf.SSLCert, conf.SSLKey))

	<-finish
}
