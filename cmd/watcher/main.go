// Package main: watcher service.
//
// The watcher persists its state in the configured database and publishes ledger events to the message broker. Run
// a single watcher per network: two of them would emit every event twice.
package main

import (
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/tarancss/safesave/lib/block"
	"github.com/tarancss/safesave/lib/config"
	"github.com/tarancss/safesave/lib/metrics"
	"github.com/tarancss/safesave/lib/msg"
	"github.com/tarancss/safesave/lib/msg/amqp"
	"github.com/tarancss/safesave/lib/store/db"
	"github.com/tarancss/safesave/watcher"
)

func main() {
	// get command line flags
	confPath := flag.String("c", "", "flag to get configuration from json file")
	monitor := flag.Bool("m", false, "flag to monitor the server with Prometheus at http://localhost:9100/metrics")
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

	// connect to database
	dbConn, err := db.New(conf.DBType, conf.DBConn)
	if err != nil {
		log.Fatal(err)
	}

	defer func() {
		log.Infof("Disconnecting %s database, err:%v", conf.DBType, db.Close(dbConn))
	}()

	// load the indexer, the watcher never reads from the cache
	ix, err := block.Init(conf.Indexer)
	if err != nil {
		log.Fatal(err)
	}

	// load Prometheus monitor
	if *monitor {
		go func() {
			log.Info("Serving metrics API")

			h := http.NewServeMux()
			h.Handle("/metrics", metrics.Handler())
			log.Error(http.ListenAndServe(":9100", h))
		}()
	}

	// load message broker
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

		defer func() {
			log.Infof("Closing messageBroker: %v", mb.Close())
		}()
	default:
		log.Warnf("Unknown message broker type %q, events will only be logged", conf.MbType)
	}

	// create watcher service
	w := watcher.New(ix.Network(), dbConn, mb, ix, conf.Contracts.Named(), conf.WatchSpec, conf.WatchRing)

	// capture CTRL+C or docker's SIGTERM for gracious exit
	go func() {
		sigchan := make(chan os.Signal, 10)
		signal.Notify(sigchan, os.Interrupt, syscall.SIGTERM)
		<-sigchan
		log.Info("Program killed !")
		// do last actions and wait for all write operations to end
		w.Stop()
	}()

	done, err := w.Watch()
	if err != nil {
		log.Fatal(err)
	}

	log.Infof("Watch: %s", <-done)
}
