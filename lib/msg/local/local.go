// Package local implements the message broker interface in process, for single binary deployments and tests. Queues
// are buffered channels per network; messages published while a queue is full are dropped with an error.
package local

import (
	"errors"
	"sync"

	log "github.com/sirupsen/logrus"

	"github.com/tarancss/safesave/lib/block/types"
	"github.com/tarancss/safesave/lib/msg"
)

// QueueSize is the default capacity of each queue.
const QueueSize = 256

// Errors returned by the broker.
var (
	ErrFull   = errors.New("broker queue is full")
	ErrClosed = errors.New("broker is closed")
)

// Local is an in process broker.
type Local struct {
	mu     sync.Mutex
	size   int
	events map[string]chan types.LedgerEvent
	reqs   map[string]chan msg.WatchReq
	done   chan struct{}
	closed bool
}

// New returns a broker whose queues hold up to size messages, QueueSize if size is not positive.
func New(size int) *Local {
	if size <= 0 {
		size = QueueSize
	}

	return &Local{
		size:   size,
		events: make(map[string]chan types.LedgerEvent),
		reqs:   make(map[string]chan msg.WatchReq),
		done:   make(chan struct{}),
	}
}

// Setup has nothing to declare.
func (l *Local) Setup() error {
	return nil
}

// Close stops the consumers. Messages still queued are lost.
func (l *Local) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.closed {
		l.closed = true
		close(l.done)
	}

	return nil
}

func (l *Local) eventQueue(net string) (chan types.LedgerEvent, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return nil, ErrClosed
	}

	q, ok := l.events[net]
	if !ok {
		q = make(chan types.LedgerEvent, l.size)
		l.events[net] = q
	}

	return q, nil
}

func (l *Local) reqQueue(net string) (chan msg.WatchReq, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return nil, ErrClosed
	}

	q, ok := l.reqs[net]
	if !ok {
		q = make(chan msg.WatchReq, l.size)
		l.reqs[net] = q
	}

	return q, nil
}

// SendEvents queues the events of net.
func (l *Local) SendEvents(net string, evs []types.LedgerEvent) error {
	q, err := l.eventQueue(net)
	if err != nil {
		return err
	}

	for _, e := range evs {
		select {
		case q <- e:
		default:
			log.Errorf("[%s] Event queue full, dropping %s %s", net, e.Kind, e.Ref)

			return ErrFull
		}
	}

	return nil
}

// SendRequest queues a watch request for net.
func (l *Local) SendRequest(net string, wr msg.WatchReq) error {
	q, err := l.reqQueue(net)
	if err != nil {
		return err
	}

	select {
	case q <- wr:
		return nil
	default:
		return ErrFull
	}
}

// GetEvents pushes the queued events of net to the returned channel. Like the amqp broker, the next event is only
// taken once the receiver unlocks mut.
func (l *Local) GetEvents(net string, mut *sync.Mutex) (<-chan types.LedgerEvent, <-chan error, error) {
	q, err := l.eventQueue(net)
	if err != nil {
		return nil, nil, err
	}

	eves := make(chan types.LedgerEvent)
	errs := make(chan error)

	go func() {
		defer close(eves)
		defer close(errs)

		for {
			select {
			case <-l.done:
				return
			case e := <-q:
				select {
				case eves <- e:
				case <-l.done:
					return
				}

				mut.Lock()
			}
		}
	}()

	return eves, errs, nil
}

// GetReqs pushes the queued watch requests of net to the returned channel, one at a time as GetEvents does.
func (l *Local) GetReqs(net string, mut *sync.Mutex) (<-chan msg.WatchReq, <-chan error, error) {
	q, err := l.reqQueue(net)
	if err != nil {
		return nil, nil, err
	}

	reqs := make(chan msg.WatchReq)
	errs := make(chan error)

	go func() {
		defer close(reqs)
		defer close(errs)

		for {
			select {
			case <-l.done:
				return
			case r := <-q:
				select {
				case reqs <- r:
				case <-l.done:
					return
				}

				mut.Lock()
			}
		}
	}()

	return reqs, errs, nil
}
