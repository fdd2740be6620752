// Package msg defines the interface for different message brokers.
//
// The watcher publishes ledger events that the api consumes to drop stale cached utxo sets. The api publishes watch
// requests asking the watcher to poll a contract right away (ie. after a transaction was submitted).
package msg

import (
	"sync"

	"github.com/tarancss/safesave/lib/block/types"
)

// Actions of watch requests.
const (
	EXIT   = -1
	RESCAN = 0
)

// WatchReq defines the message that the api service publishes to the watcher.
type WatchReq struct {
	Net      string `json:"net"`
	Contract string `json:"contract"` // validator name, empty for all
	Act      int    `json:"act"`      // action to be applied
}

// MsgBroker is implemented by the message brokers. The consuming methods push every message to the returned channel
// and acknowledge it only after the receiver unlocks mut.
type MsgBroker interface { //nolint:revive // name kept for the broker implementations
	Setup() error
	Close() error

	// methods for api service
	SendRequest(net string, r WatchReq) error
	GetEvents(net string, mut *sync.Mutex) (<-chan types.LedgerEvent, <-chan error, error)

	// methods for watcher service
	GetReqs(net string, mut *sync.Mutex) (<-chan WatchReq, <-chan error, error)
	SendEvents(net string, evs []types.LedgerEvent) error
}
