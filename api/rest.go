package api

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	log "github.com/sirupsen/logrus"

	"github.com/tarancss/safesave/lib/metrics"
)

const timeout = 15

// Router returns the handler of the RESTful API.
func (s *Service) Router() http.Handler {
	r := mux.NewRouter()
	r.NotFoundHandler = http.HandlerFunc(notFoundHandler)
	r.MethodNotAllowedHandler = http.HandlerFunc(methodNotAllowedHandler)

	r.HandleFunc("/health", s.healthHandler).Methods("GET")

	a := r.PathPrefix("/api").Subrouter()
	a.NotFoundHandler = r.NotFoundHandler
	a.MethodNotAllowedHandler = r.MethodNotAllowedHandler
	// wallet authentication
	a.HandleFunc("/auth/connect-wallet", s.connectWalletHandler).Methods("POST")
	a.Handle("/auth/me", s.authenticate(s.meHandler)).Methods("GET")
	a.Handle("/auth/verify", s.authenticate(s.verifyHandler)).Methods("POST")
	// savings contract
	a.Handle("/savings/group/total", s.authenticate(s.groupTotalHandler)).Methods("GET")
	a.Handle("/savings/deposit/prepare", s.authenticate(s.depositHandler)).Methods("POST")
	a.Handle("/savings/streak/{walletAddress}", s.authenticate(s.streakHandler)).Methods("GET")
	a.Handle("/savings/{walletAddress}", s.authenticate(s.savingsHandler)).Methods("GET")
	// loan contract
	a.Handle("/loan/status/{walletAddress}", s.authenticate(s.loanStatusHandler)).Methods("GET")
	a.Handle("/loan/request", s.authenticate(s.loanRequestHandler)).Methods("POST")
	a.Handle("/loan/repay", s.authenticate(s.loanRepayHandler)).Methods("POST")
	// investment contract
	a.Handle("/investment/list", s.authenticate(s.investmentListHandler)).Methods("GET")
	a.Handle("/investment/register", s.authenticate(s.investmentRegisterHandler)).Methods("POST")
	a.Handle("/investment/{id}", s.authenticate(s.investmentHandler)).Methods("GET")
	// rewards policy
	a.Handle("/rewards/claim/{badgeType}", s.authenticate(s.claimHandler)).Methods("POST")
	a.Handle("/rewards/eligibility/{walletAddress}", s.authenticate(s.eligibilityHandler)).Methods("GET")
	a.Handle("/rewards/{walletAddress}", s.authenticate(s.badgesHandler)).Methods("GET")
	// savings groups
	a.Handle("/groups/join", s.authenticate(s.joinGroupHandler)).Methods("POST")
	a.Handle("/groups/leave", s.authenticate(s.leaveGroupHandler)).Methods("PUT")
	a.Handle("/groups", s.authenticate(s.createGroupHandler)).Methods("POST")
	a.Handle("/groups", s.authenticate(s.groupsHandler)).Methods("GET")
	a.Handle("/groups/{id}", s.authenticate(s.groupHandler)).Methods("GET")
	a.Handle("/groups/{id}", s.authenticate(s.updateGroupHandler)).Methods("PUT")
	a.Handle("/groups/{id}", s.authenticate(s.deleteGroupHandler)).Methods("DELETE")
	a.Handle("/groups/{id}/approve/{wallet}", s.authenticate(s.approveHandler)).Methods("POST")
	a.Handle("/groups/{id}/reject/{wallet}", s.authenticate(s.rejectHandler)).Methods("POST")
	// ledger
	a.Handle("/tx/submit", s.authenticate(s.submitHandler)).Methods("POST")
	a.Handle("/tx/{hash}", s.authenticate(s.txHandler)).Methods("GET")
	a.Handle("/params", s.authenticate(s.paramsHandler)).Methods("GET")

	return requestLogger(metrics.Middleware(r, s.cors(s.rl.handler(r))))
}

// Init sets up and starts the http/https server to service the RESTful API. If sslPort, sslCert and sslKey are
// informed, it will start an https (TLS) server on the specified endpoint. It returns once Stop has been called.
func (s *Service) Init(endpoint, port, sslPort, sslCert, sslKey string) string {
	var err, errTLS error

	h := s.Router()

	// start http server
	if port != "" {
		s.s = &http.Server{
			Handler:           h,
			Addr:              endpoint + ":" + port,
			WriteTimeout:      2 * timeout * time.Second,
			ReadTimeout:       timeout * time.Second,
			ReadHeaderTimeout: timeout * time.Second,
		}

		go func() {
			if e := s.s.ListenAndServe(); !errors.Is(e, http.ErrServerClosed) {
				err = e
				log.Errorf("http server: %v", e)
			}
		}()

		log.Infof("Listening to API http requests on %s:%s", endpoint, port)
	}
	// start https server
	if sslPort != "" && sslCert != "" && sslKey != "" {
		s.ss = &http.Server{
			Handler:           h,
			Addr:              endpoint + ":" + sslPort,
			WriteTimeout:      2 * timeout * time.Second,
			ReadTimeout:       timeout * time.Second,
			ReadHeaderTimeout: timeout * time.Second,
		}

		go func() {
			if e := s.ss.ListenAndServeTLS(sslCert, sslKey); !errors.Is(e, http.ErrServerClosed) {
				errTLS = e
				log.Errorf("https server: %v", e)
			}
		}()

		log.Infof("Listening to API https requests on %s:%s", endpoint, sslPort)
	}
	// wait for servers to be shutdown
	<-s.sc

	return fmt.Sprintf("shutdown http server:%v, https server:%v", err, errTLS)
}
