package api

import (
	"context"
	"encoding/hex"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"github.com/tarancss/safesave/lib/block"
	"github.com/tarancss/safesave/lib/block/types"
	"github.com/tarancss/safesave/lib/datum"
	"github.com/tarancss/safesave/lib/msg"
)

// isoTime is the layout of the timestamps replied to clients.
const isoTime = "2006-01-02T15:04:05.000Z"

func iso(t time.Time) string {
	return t.UTC().Format(isoTime)
}

// isoMillis formats a POSIX time in milliseconds as read from a datum.
func isoMillis(ms int64) string {
	return iso(time.UnixMilli(ms))
}

// scan decodes the inline datums of the outputs at the contract address of domain and calls f for each one, until f
// returns false. Outputs without a datum or with one that cannot be decoded are skipped.
func (s *Service) scan(ctx context.Context, domain, address string, f func(u types.Utxo, d *datum.Value) bool) error {
	if address == "" {
		return internal("%s contract address not configured", domain)
	}

	utxos, err := block.ScriptUtxos(ctx, s.ix, address)
	if err != nil {
		return internal("Failed to fetch script UTxOs: %v", err)
	}

	for _, u := range utxos {
		if u.InlineDatum == "" {
			continue
		}

		d := datum.Parse(u.InlineDatum)
		if d == nil {
			continue
		}

		if !f(u, d) {
			break
		}
	}

	return nil
}

// sameWallet reports whether the wallet field of a datum identifies address. The field holds either the hex address
// without its two first characters, as the contracts were first written, or the bytes of the address itself.
func sameWallet(field *datum.Value, address string) bool {
	h := field.Hex()
	if h == "" || address == "" {
		return false
	}

	if len(address) > 2 && h == address[2:] {
		return true
	}

	return h == address || h == hex.EncodeToString([]byte(address))
}

// walletField returns the datum field identifying address, reusing the bytes of a known datum field.
func walletField(known *datum.Value, address string) *datum.Value {
	if known.Kind() == datum.Bytes {
		return known
	}

	return datum.NewText(address)
}

// statusName returns the name of a status field: a constructor or an integer alternative indexing names.
func statusName(v *datum.Value, names ...string) string {
	var alt int64 = -1

	switch v.Kind() {
	case datum.Constr:
		a, _ := v.Alt()
		alt = int64(a)
	case datum.Int:
		alt = v.Int64()
	}

	if alt < 0 || alt >= int64(len(names)) {
		return "Unknown"
	}

	return names[alt]
}

// healthHandler replies the service status.
func (s *Service) healthHandler(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":    "ok",
		"timestamp": iso(s.now()),
		"network":   s.ix.Network(),
	})
}

// submitHandler sends a signed transaction to the ledger and asks the watcher to poll the affected contract.
func (s *Service) submitHandler(w http.ResponseWriter, r *http.Request) {
	var err error

	var res Response

	defer func() { reply(w, r, http.StatusAccepted, res, err) }()

	var body struct {
		CBOR     string `json:"cbor"`
		Contract string `json:"contract"`
	}

	if err = decode(r, &body); err != nil {
		return
	}

	tx, errHex := hex.DecodeString(strings.TrimSpace(body.CBOR))
	if errHex != nil || len(tx) == 0 {
		err = badRequest("Signed transaction CBOR hex is required")

		return
	}

	hash, errSub := s.ix.SubmitTx(r.Context(), tx)
	if errSub != nil {
		var ae *types.APIError
		if errors.As(errSub, &ae) && ae.StatusCode == http.StatusBadRequest {
			err = badRequest("Transaction rejected: " + ae.Message)
		} else {
			err = internal("Failed to submit transaction: %v", errSub)
		}

		return
	}

	res = Response{"txHash": hash}

	if s.mb != nil {
		net := s.ix.Network()
		if errReq := s.mb.SendRequest(net, msg.WatchReq{Net: net, Contract: body.Contract, Act: msg.RESCAN}); errReq != nil {
			logger(r).Warnf("Cannot request a rescan of %q: %v", body.Contract, errReq)
		}
	}
}

// txHandler replies the details of a transaction.
func (s *Service) txHandler(w http.ResponseWriter, r *http.Request) {
	var err error

	var res Response

	defer func() { reply(w, r, 0, res, err) }()

	hash := mux.Vars(r)["hash"]
	if b, errHex := hex.DecodeString(hash); errHex != nil || len(b) != 32 {
		err = badRequest("A 32-byte transaction hash is required")

		return
	}

	tx, errTx := s.ix.Tx(r.Context(), hash)
	if errors.Is(errTx, types.ErrNotFound) {
		err = notFound("Transaction not found")

		return
	} else if errTx != nil {
		err = internal("Failed to fetch transaction: %v", errTx)

		return
	}

	res = Response{"transaction": tx}
}

// paramsHandler replies the protocol parameters of the current epoch.
func (s *Service) paramsHandler(w http.ResponseWriter, r *http.Request) {
	var err error

	var res Response

	defer func() { reply(w, r, 0, res, err) }()

	p, errP := s.ix.ProtocolParameters(r.Context())
	if errP != nil {
		err = internal("Failed to fetch protocol parameters: %v", errP)

		return
	}

	res = Response{"parameters": p}
}
