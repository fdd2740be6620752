package api

import (
	"math"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/tarancss/safesave/lib/ada"
	"github.com/tarancss/safesave/lib/block/types"
	"github.com/tarancss/safesave/lib/datum"
)

// maxROI bounds the expected ROI, in percent.
const maxROI = 1_000_000

// investment is the decoded investment datum.
type investment struct {
	ID             string  `json:"id"`
	ProjectName    string  `json:"projectName"`
	AmountInvested float64 `json:"amountInvested"`
	ExpectedROI    float64 `json:"expectedROI"` // percent
	RealProfit     float64 `json:"realProfit"`
	Status         string  `json:"status"`
	UtxoRef        string  `json:"utxoRef"`
}

func toInvestment(u types.Utxo, d *datum.Value) investment {
	// Investment(id, project_name, amount_invested, expected_roi, real_profit, status)
	return investment{
		ID:             d.Field(0).Text(),
		ProjectName:    d.Field(1).Text(),
		AmountInvested: ada.BigToAda(d.Field(2).Int()),
		ExpectedROI:    float64(d.Field(3).Int64()) / 100,
		RealProfit:     ada.BigToAda(d.Field(4).Int()),
		Status:         statusName(d.Field(5), "Active", "Completed"),
		UtxoRef:        u.Ref(),
	}
}

// investmentListHandler replies every investment of the group with the totals.
func (s *Service) investmentListHandler(w http.ResponseWriter, r *http.Request) {
	var err error

	var res Response

	defer func() { reply(w, r, 0, res, err) }()

	invs := []investment{}

	err = s.scan(r.Context(), "Investment", s.conf.Contracts.Investment, func(u types.Utxo, d *datum.Value) bool {
		if d.Kind() == datum.Constr {
			invs = append(invs, toInvestment(u, d))
		}

		return true
	})
	if err != nil {
		return
	}

	var invested, profit, roi float64

	for _, inv := range invs {
		invested += inv.AmountInvested
		profit += inv.RealProfit
	}

	if invested > 0 {
		roi = profit / invested * 100
	}

	res = Response{
		"investments": invs,
		"summary": Response{
			"totalInvestments": len(invs),
			"totalInvested":    invested,
			"totalProfit":      profit,
			"roi":              roi,
		},
	}
}

// investmentHandler replies the investment with the given id.
func (s *Service) investmentHandler(w http.ResponseWriter, r *http.Request) {
	var err error

	var res Response

	defer func() { reply(w, r, 0, res, err) }()

	id := mux.Vars(r)["id"]

	var found *investment

	err = s.scan(r.Context(), "Investment", s.conf.Contracts.Investment, func(u types.Utxo, d *datum.Value) bool {
		if d.Kind() != datum.Constr || d.Field(0).Text() != id {
			return true
		}

		inv := toInvestment(u, d)
		found = &inv

		return false
	})
	if err != nil {
		return
	}

	if found == nil {
		err = notFound("Investment not found")

		return
	}

	res = Response{"investment": found}
}

// investmentRegisterHandler prepares the registration of a new investment.
func (s *Service) investmentRegisterHandler(w http.ResponseWriter, r *http.Request) {
	var err error

	var res Response

	defer func() { reply(w, r, 0, res, err) }()

	var body struct {
		ProjectName string  `json:"projectName"`
		Amount      float64 `json:"amount"`      // ADA
		ExpectedROI float64 `json:"expectedROI"` // percent
	}

	if err = decode(r, &body); err != nil {
		return
	}

	if body.ProjectName == "" || body.Amount == 0 || body.ExpectedROI == 0 {
		err = badRequest("Missing required fields")

		return
	}

	if body.Amount < 0 || body.Amount > ada.MaxAda {
		err = badRequest("Invalid investment amount")

		return
	}

	if math.Abs(body.ExpectedROI) > maxROI {
		err = badRequest("Invalid expected ROI")

		return
	}

	id := "INV-" + strconv.FormatInt(s.now().UnixMilli(), 10)

	d, err := datum.Encode(datum.NewConstr(0,
		datum.NewText(id),
		datum.NewText(body.ProjectName),
		datum.NewInt(ada.ToLovelace(body.Amount)),
		datum.NewInt(int64(body.ExpectedROI*100)),
		datum.NewInt(0),
		datum.NewConstr(0),
	))
	if err != nil {
		return
	}

	res = Response{
		"message": "Investment registration prepared",
		"investment": Response{
			"id":           id,
			"projectName":  body.ProjectName,
			"amount":       body.Amount,
			"expectedROI":  body.ExpectedROI,
			"registeredBy": user(r).WalletAddress,
			"cbor":         "placeholder_investment_transaction_cbor",
			"datum":        d,
		},
	}
}
