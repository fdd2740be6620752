package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMiddleware(t *testing.T) {
	r := mux.NewRouter()
	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusMethodNotAllowed)
	})

	a := r.PathPrefix("/api").Subrouter()
	a.MethodNotAllowedHandler = r.MethodNotAllowedHandler
	a.HandleFunc("/savings/{walletAddress}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}).Methods(http.MethodGet)

	h := Middleware(r, r)

	for i := 0; i < 2; i++ {
		h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/savings/addr_test1", nil))
	}

	assert.Equal(t, 2.0, testutil.ToFloat64(httpRequests.WithLabelValues("GET", "/api/savings/{walletAddress}", "418")))

	// replies of the router itself are counted too
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/nowhere", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, 1.0, testutil.ToFloat64(httpRequests.WithLabelValues("GET", "unmatched", "404")))

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/api/savings/addr_test1", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	assert.Equal(t, 1.0, testutil.ToFloat64(httpRequests.WithLabelValues("DELETE", "unmatched", "405")))
}

func TestCounters(t *testing.T) {
	before := testutil.ToFloat64(datumFailures)
	DatumFailure()
	assert.Equal(t, before+1, testutil.ToFloat64(datumFailures))

	LedgerEvent("savings", "created")
	assert.Equal(t, 1.0, testutil.ToFloat64(ledgerEvents.WithLabelValues("savings", "created")))

	WatchTick("loan", errors.New("down"))
	assert.Equal(t, 1.0, testutil.ToFloat64(watchTicks.WithLabelValues("loan", "false")))

	CacheLookup(true)
	CacheLookup(false)
	assert.Equal(t, 1.0, testutil.ToFloat64(cacheLookups.WithLabelValues("hit")))

	IndexerCall("utxos", time.Now(), nil)

	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.True(t, strings.Contains(rec.Body.String(), "safesave_datum_decode_failures_total"))
	assert.True(t, strings.Contains(rec.Body.String(), "safesave_indexer_call_duration_seconds"))
}
