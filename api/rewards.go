package api

import (
	"encoding/hex"
	"errors"
	"net/http"
	"strings"
	"unicode/utf8"

	"github.com/gorilla/mux"

	"github.com/tarancss/safesave/lib/ada"
	"github.com/tarancss/safesave/lib/block/types"
)

// policyIDLen is the length in hex of a minting policy id.
const policyIDLen = 56

// requiredStreak is the number of consecutive deposits earning the streak badge.
const requiredStreak = 10

// Badge types that can be claimed.
const (
	streakBadge     = "streak"
	earlyRepayBadge = "early-repay"
)

// badge is a reward token held by a wallet.
type badge struct {
	AssetID  string `json:"assetId"`
	Quantity string `json:"quantity"`
	Name     string `json:"name"`
}

// badgeName decodes the asset name following the policy id of unit.
func badgeName(unit string) string {
	if len(unit) < policyIDLen {
		return "Unknown Badge"
	}

	b, err := hex.DecodeString(unit[policyIDLen:])
	if err != nil || !utf8.Valid(b) {
		return "Unknown Badge"
	}

	return string(b)
}

// badgesHandler replies the badges held by a wallet.
func (s *Service) badgesHandler(w http.ResponseWriter, r *http.Request) {
	var err error

	var res Response

	defer func() { reply(w, r, 0, res, err) }()

	policy := s.conf.Contracts.Policy()
	if policy == "" {
		err = internal("Rewards contract address not configured")

		return
	}

	a, errA := s.ix.Address(r.Context(), mux.Vars(r)["walletAddress"])
	if errA != nil && !errors.Is(errA, types.ErrNotFound) {
		err = internal("Failed to fetch wallet assets: %v", errA)

		return
	}

	badges := []badge{}

	for _, am := range a.Amount {
		if am.Unit != ada.Lovelace && strings.HasPrefix(am.Unit, policy) {
			badges = append(badges, badge{AssetID: am.Unit, Quantity: am.Quantity, Name: badgeName(am.Unit)})
		}
	}

	res = Response{"badges": badges, "totalBadges": len(badges)}
}

// claimHandler prepares the mint of a badge for the connected wallet.
func (s *Service) claimHandler(w http.ResponseWriter, r *http.Request) {
	var err error

	var res Response

	defer func() { reply(w, r, 0, res, err) }()

	badgeType := mux.Vars(r)["badgeType"]
	if badgeType != streakBadge && badgeType != earlyRepayBadge {
		err = badRequest("Invalid badge type")

		return
	}

	res = Response{
		"message": "Badge claim prepared",
		"badge": Response{
			"type":      badgeType,
			"recipient": user(r).WalletAddress,
			"cbor":      "placeholder_badge_mint_transaction_cbor",
		},
	}
}

// eligibilityHandler replies whether a wallet has earned each badge: the streak badge after requiredStreak
// consecutive deposits, the early repayment badge once a loan was cleared before its due date. Contracts that are
// not configured count as no activity.
func (s *Service) eligibilityHandler(w http.ResponseWriter, r *http.Request) {
	var err error

	var res Response

	defer func() { reply(w, r, 0, res, err) }()

	address := mux.Vars(r)["walletAddress"]

	var streak int64

	if s.conf.Contracts.Savings != "" {
		m, errM := s.findMember(r, address)
		if errM != nil {
			err = errM

			return
		}

		if m != nil {
			streak = m.streak
		}
	}

	var early bool

	if s.conf.Contracts.Loan != "" {
		ls, errL := s.loans(r, address)
		if errL != nil {
			err = errL

			return
		}

		now := s.now()
		for _, l := range ls {
			if l.Status == loanCleared && l.due.After(now) {
				early = true

				break
			}
		}
	}

	streakElig := Response{
		"eligible":       streak >= requiredStreak,
		"currentStreak":  streak,
		"requiredStreak": requiredStreak,
		"reason":         "Need 10+ consecutive savings",
	}
	if streak >= requiredStreak {
		streakElig["reason"] = "Savings streak reached"
	}

	earlyElig := Response{"eligible": early, "reason": "No early loan repayments found"}
	if early {
		earlyElig["reason"] = "Loan repaid before its due date"
	}

	res = Response{
		"walletAddress": address,
		"eligibility": Response{
			"streakBadge":     streakElig,
			"earlyRepayBadge": earlyElig,
		},
	}
}
