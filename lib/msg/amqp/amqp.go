// Package amqp implements the message broker interface for AMQP compliant brokers (ie RabbitMQ)
package amqp

import (
	"encoding/json"
	"sync"

	log "github.com/sirupsen/logrus"
	"github.com/streadway/amqp"

	"github.com/tarancss/safesave/lib/block/types"
	"github.com/tarancss/safesave/lib/msg"
)

// Exchange names.
const (
	WatchExchange = "wq" // watch requests
	EventExchange = "le" // ledger events
)

// Amqp implements a connection to a broker and a channel for reuse.
type Amqp struct {
	conn *amqp.Connection
	ch   *amqp.Channel
	mu   sync.Mutex // guards ch
}

// New instantiates a new amqp broker.
func New(uri string) (*Amqp, error) {
	conn, err := amqp.Dial(uri)
	if err != nil {
		return nil, err
	}

	log.Infof("Connected to message broker")

	return &Amqp{conn: conn}, nil
}

// Setup declares the message broker exchanges:
//
// - wq ("watch requests"): the api service publishes requests to this exchange
//
// - le ("ledger events"): the watcher service publishes events to this exchange
func (r *Amqp) Setup() error {
	// obtain a one-use channel
	channel, err := r.conn.Channel()
	if err != nil {
		return err
	}
	defer channel.Close()

	if err = channel.ExchangeDeclare(WatchExchange, amqp.ExchangeTopic, true, false, false, false, nil); err != nil {
		return err
	}

	return channel.ExchangeDeclare(EventExchange, amqp.ExchangeTopic, true, false, false, false, nil)
}

// Close terminates gracefully the connection to the AMQP message broker
func (r *Amqp) Close() error {
	r.mu.Lock()
	if r.ch != nil {
		if err := r.ch.Close(); err != nil {
			log.Errorf("Error closing amqp.Channel: %v", err)
		}

		r.ch = nil
	}
	r.mu.Unlock()

	return r.conn.Close()
}

// channel returns the shared channel, opening it if not present.
func (r *Amqp) channel() (*amqp.Channel, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.ch == nil {
		var err error
		if r.ch, err = r.conn.Channel(); err != nil {
			return nil, err
		}
	}

	return r.ch, nil
}

func (r *Amqp) publish(exchange, key, header string, v interface{}) error {
	body, err := json.Marshal(v)
	if err != nil {
		return err
	}

	ch, err := r.channel()
	if err != nil {
		return err
	}

	return ch.Publish(exchange, key, false, false, amqp.Publishing{
		Headers:     amqp.Table{"x-safesave-name": header},
		Body:        body,
		ContentType: "application/json",
	})
}

// SendEvents publishes ledger events to the "le" exchange with routing key <net>.<contract>.<kind>.
func (r *Amqp) SendEvents(net string, evs []types.LedgerEvent) (err error) {
	for i := range evs {
		e := &evs[i]
		if err = r.publish(EventExchange, net+"."+e.Contract+"."+e.Kind, net+"."+e.Ref, e); err != nil {
			log.Errorf("[%s] Error sending ledger event to message broker: %v", net, err)

			return
		}
	}

	return
}

// SendRequest publishes a new watch request to the "wq" exchange with routing key <net>.<contract>.
func (r *Amqp) SendRequest(net string, wr msg.WatchReq) error {
	contract := wr.Contract
	if contract == "" {
		contract = "all"
	}

	err := r.publish(WatchExchange, net+"."+contract, net+"."+contract, wr)
	if err != nil {
		log.Errorf("[%s] Error sending request to message broker: %v", net, err)
	}

	return err
}

// consume declares a durable queue bound to exchange for the routing pattern and returns its deliveries.
func (r *Amqp) consume(queue, pattern, exchange, consumer string) (<-chan amqp.Delivery, error) {
	ch, err := r.channel()
	if err != nil {
		return nil, err
	}

	if _, err = ch.QueueDeclare(queue, true, false, false, false, nil); err != nil {
		return nil, err
	}

	if err = ch.QueueBind(queue, pattern, exchange, false, nil); err != nil {
		return nil, err
	}

	return ch.Consume(queue, consumer, false, false, false, false, nil)
}

// GetEvents consumes events from the "le" exchange pushing them to the returned channel. The Mutex pointer is provided
// to ensure the consumed message has been fully dealt with by the management function, so the message consumed is
// only acknowledged when the mutex is unlocked.
func (r *Amqp) GetEvents(net string, mut *sync.Mutex) (<-chan types.LedgerEvent, <-chan error, error) {
	msgs, err := r.consume(EventExchange+net, net+".*.*", EventExchange, "api-"+net)
	if err != nil {
		return nil, nil, err
	}

	eves := make(chan types.LedgerEvent)
	errs := make(chan error)

	go func() {
		defer close(eves)

		for m := range msgs {
			var e types.LedgerEvent
			if err := json.Unmarshal(m.Body, &e); err != nil {
				_ = m.Nack(false, false)
				errs <- err

				continue
			}

			eves <- e
			mut.Lock() // wait for the api to finish processing the event
			_ = m.Ack(false)
		}
	}()

	return eves, errs, nil
}

// GetReqs consumes requests from the "wq" exchange for the specified network pushing them to the returned channel.
// The Mutex pointer is provided to ensure the consumed message has been fully dealt with by the management function,
// so the message consumed is only acknowledged when the mutex is unlocked.
func (r *Amqp) GetReqs(net string, mut *sync.Mutex) (<-chan msg.WatchReq, <-chan error, error) {
	msgs, err := r.consume(WatchExchange+net, net+".*", WatchExchange, "watcher-"+net)
	if err != nil {
		return nil, nil, err
	}

	reqs := make(chan msg.WatchReq)
	errs := make(chan error)

	go func() {
		defer close(reqs)

		for m := range msgs {
			var req msg.WatchReq
			if err := json.Unmarshal(m.Body, &req); err != nil {
				_ = m.Nack(false, false)
				errs <- err

				continue
			}

			reqs <- req
			mut.Lock() // wait for the watcher to finish processing the request
			_ = m.Ack(false)
		}
	}()

	return reqs, errs, nil
}
