package api

import (
	"math/big"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/tarancss/safesave/lib/ada"
	"github.com/tarancss/safesave/lib/block/types"
	"github.com/tarancss/safesave/lib/datum"
)

// interestRate is applied to the requested amount of every loan.
const interestRate = 0.05

// Loan statuses by constructor.
const (
	loanActive  = "Active"
	loanCleared = "Cleared"
	loanLate    = "Late"
)

// loan is the decoded loan datum.
type loan struct {
	Borrower        string  `json:"borrower"`
	LoanAmount      float64 `json:"loanAmount"`
	Interest        float64 `json:"interest"`
	DueDate         string  `json:"dueDate"`
	RepaidAmount    float64 `json:"repaidAmount"`
	RemainingAmount float64 `json:"remainingAmount"`
	Status          string  `json:"status"`
	UtxoRef         string  `json:"utxoRef"`
	due             time.Time
}

// loans returns the loans of address.
func (s *Service) loans(r *http.Request, address string) (ls []loan, err error) {
	ls = []loan{}

	err = s.scan(r.Context(), "Loan", s.conf.Contracts.Loan, func(u types.Utxo, d *datum.Value) bool {
		// Loan(borrower, loan_amount, interest, due_date, repaid_amount, status)
		if d.Kind() != datum.Constr || !sameWallet(d.Field(0), address) {
			return true
		}

		amount, interest, repaid := d.Field(1).Int(), d.Field(2).Int(), d.Field(4).Int()
		remaining := new(big.Int).Add(amount, interest)
		remaining.Sub(remaining, repaid)

		due := time.UnixMilli(d.Field(3).Int64())

		ls = append(ls, loan{
			Borrower:        address,
			LoanAmount:      ada.BigToAda(amount),
			Interest:        ada.BigToAda(interest),
			DueDate:         iso(due),
			RepaidAmount:    ada.BigToAda(repaid),
			RemainingAmount: ada.BigToAda(remaining),
			Status:          statusName(d.Field(5), loanActive, loanCleared, loanLate),
			UtxoRef:         u.Ref(),
			due:             due,
		})

		return true
	})

	return ls, err
}

// loanStatusHandler replies the loans of a borrower.
func (s *Service) loanStatusHandler(w http.ResponseWriter, r *http.Request) {
	var err error

	var res Response

	defer func() { reply(w, r, 0, res, err) }()

	ls, err := s.loans(r, mux.Vars(r)["walletAddress"])
	if err != nil {
		return
	}

	var active int

	var borrowed float64

	for _, l := range ls {
		if l.Status == loanActive {
			active++
		}

		borrowed += l.LoanAmount
	}

	res = Response{"loans": ls, "activeLoans": active, "totalBorrowed": borrowed}
}

// loanRequestHandler prepares a loan request of the connected wallet.
func (s *Service) loanRequestHandler(w http.ResponseWriter, r *http.Request) {
	var err error

	var res Response

	defer func() { reply(w, r, 0, res, err) }()

	var body struct {
		Amount       float64 `json:"amount"` // ADA
		DurationDays int     `json:"durationDays"`
	}

	if err = decode(r, &body); err != nil {
		return
	}

	if !ada.ValidAmount(body.Amount) {
		err = badRequest("Invalid loan amount")

		return
	}

	if body.DurationDays <= 0 {
		err = badRequest("Invalid loan duration")

		return
	}

	wallet := user(r).WalletAddress
	interest := body.Amount * interestRate
	due := s.now().AddDate(0, 0, body.DurationDays)

	d, err := datum.Encode(datum.NewConstr(0,
		datum.NewText(wallet),
		datum.NewInt(ada.ToLovelace(body.Amount)),
		datum.NewInt(ada.ToLovelace(interest)),
		datum.NewInt(due.UnixMilli()),
		datum.NewInt(0),
		datum.NewConstr(0),
	))
	if err != nil {
		return
	}

	res = Response{
		"message": "Loan request prepared",
		"loan": Response{
			"borrower":       wallet,
			"amount":         body.Amount,
			"interest":       interest,
			"totalRepayment": body.Amount + interest,
			"dueDate":        iso(due),
			"durationDays":   body.DurationDays,
			"cbor":           "placeholder_loan_transaction_cbor",
			"datum":          d,
		},
	}
}

// loanRepayHandler prepares a repayment of the loan held at loanUtxoRef.
func (s *Service) loanRepayHandler(w http.ResponseWriter, r *http.Request) {
	var err error

	var res Response

	defer func() { reply(w, r, 0, res, err) }()

	var body struct {
		Amount      float64 `json:"amount"` // ADA
		LoanUtxoRef string  `json:"loanUtxoRef"`
	}

	if err = decode(r, &body); err != nil {
		return
	}

	if !ada.ValidAmount(body.Amount) {
		err = badRequest("Invalid repayment amount")

		return
	}

	if body.LoanUtxoRef == "" {
		err = badRequest("Loan UTxO reference required")

		return
	}

	res = Response{
		"message": "Repayment transaction prepared",
		"repayment": Response{
			"borrower":       user(r).WalletAddress,
			"amount":         body.Amount,
			"lovelaceAmount": ada.ToLovelace(body.Amount),
			"loanUtxoRef":    body.LoanUtxoRef,
			"cbor":           "placeholder_repayment_transaction_cbor",
		},
	}
}
