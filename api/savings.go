package api

import (
	"math/big"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/tarancss/safesave/lib/ada"
	"github.com/tarancss/safesave/lib/block/types"
	"github.com/tarancss/safesave/lib/datum"
)

// Savings datum constructors.
const (
	groupConstr  = "0" // Group(total_balance, ...)
	memberConstr = "1" // Member(wallet, total_savings, streak, last_deposit)
)

var (
	groupDatum  = datum.Pattern{Constructor: groupConstr}
	memberDatum = datum.Pattern{Constructor: memberConstr}
)

// member is the decoded savings datum of a wallet.
type member struct {
	wallet       *datum.Value
	totalSavings *big.Int
	streak       int64
	lastDeposit  int64
	ref          string
}

// findMember returns the savings datum of address, nil if the wallet never saved.
func (s *Service) findMember(r *http.Request, address string) (m *member, err error) {
	err = s.scan(r.Context(), "Savings", s.conf.Contracts.Savings, func(u types.Utxo, d *datum.Value) bool {
		if !datum.Match(d, memberDatum) || !sameWallet(d.Field(0), address) {
			return true
		}

		m = &member{
			wallet:       d.Field(0),
			totalSavings: d.Field(1).Int(),
			streak:       d.Field(2).Int64(),
			lastDeposit:  d.Field(3).Int64(),
			ref:          u.Ref(),
		}

		return false
	})

	return m, err
}

// savingsHandler replies the savings of a member, or zero savings for a wallet that never deposited.
func (s *Service) savingsHandler(w http.ResponseWriter, r *http.Request) {
	var err error

	var res Response

	defer func() { reply(w, r, 0, res, err) }()

	address := mux.Vars(r)["walletAddress"]

	m, err := s.findMember(r, address)
	if err != nil {
		return
	}

	if m == nil {
		res = Response{"savings": Response{
			"wallet":               address,
			"totalSavings":         0,
			"totalSavingsLovelace": 0,
			"streak":               0,
			"lastDeposit":          nil,
			"isNewMember":          true,
		}}

		return
	}

	res = Response{"savings": Response{
		"wallet":               address,
		"totalSavings":         ada.BigToAda(m.totalSavings),
		"totalSavingsLovelace": m.totalSavings,
		"streak":               m.streak,
		"lastDeposit":          isoMillis(m.lastDeposit),
		"utxoRef":              m.ref,
	}}
}

// groupTotalHandler replies the balance held in the group datum.
func (s *Service) groupTotalHandler(w http.ResponseWriter, r *http.Request) {
	var err error

	var res Response

	defer func() { reply(w, r, 0, res, err) }()

	total := new(big.Int)

	err = s.scan(r.Context(), "Savings", s.conf.Contracts.Savings, func(_ types.Utxo, d *datum.Value) bool {
		if !datum.Match(d, groupDatum) {
			return true
		}

		total = d.Field(0).Int()

		return false
	})
	if err != nil {
		return
	}

	res = Response{"groupTotal": ada.BigToAda(total), "groupTotalLovelace": total}
}

// depositHandler prepares a deposit of the connected wallet to the savings contract. The reply carries the member
// datum the deposit output has to hold.
func (s *Service) depositHandler(w http.ResponseWriter, r *http.Request) {
	var err error

	var res Response

	defer func() { reply(w, r, 0, res, err) }()

	var body struct {
		Amount float64 `json:"amount"` // ADA
	}

	if err = decode(r, &body); err != nil {
		return
	}

	if !ada.ValidAmount(body.Amount) {
		err = badRequest("Invalid deposit amount")

		return
	}

	wallet := user(r).WalletAddress
	lovelace := ada.ToLovelace(body.Amount)

	m, err := s.findMember(r, wallet)
	if err != nil {
		return
	}

	if m == nil {
		m = &member{totalSavings: new(big.Int)}
	}

	next := datum.NewConstr(1,
		walletField(m.wallet, wallet),
		datum.NewBigInt(new(big.Int).Add(m.totalSavings, big.NewInt(lovelace))),
		datum.NewInt(m.streak+1),
		datum.NewInt(s.now().UnixMilli()),
	)

	d, err := datum.Encode(next)
	if err != nil {
		return
	}

	tx := Response{
		"type":           "deposit",
		"amount":         body.Amount,
		"lovelaceAmount": lovelace,
		"from":           wallet,
		"to":             s.conf.Contracts.Savings,
		"cbor":           "placeholder_transaction_cbor",
		"datum":          d,
	}
	if m.ref != "" {
		tx["memberUtxoRef"] = m.ref
	}

	res = Response{"message": "Transaction prepared", "transaction": tx}
}

// streakHandler replies the deposit streak of a member.
func (s *Service) streakHandler(w http.ResponseWriter, r *http.Request) {
	var err error

	var res Response

	defer func() { reply(w, r, 0, res, err) }()

	address := mux.Vars(r)["walletAddress"]

	m, err := s.findMember(r, address)
	if err != nil {
		return
	}

	var streak int64
	if m != nil {
		streak = m.streak
	}

	res = Response{"streak": streak, "walletAddress": address}
}
