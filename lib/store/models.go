package store

import (
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/tarancss/safesave/lib/util"
)

// CodeLen is the length of group join codes.
const CodeLen = 6

var codeRe = regexp.MustCompile(`^[A-Z0-9]{6}$`)

// ValidCode reports whether code, once upper cased, is a join code of CodeLen letters or digits.
func ValidCode(code string) bool {
	return codeRe.MatchString(strings.ToUpper(code))
}

// Group is a savings group. Members and Pending hold wallet addresses; Admin is always a member.
type Group struct {
	ID             string    `json:"id" bson:"_id"`
	Name           string    `json:"name" bson:"name"`
	Code           string    `json:"code" bson:"code"`
	Admin          string    `json:"admin" bson:"admin"`
	Members        []string  `json:"members" bson:"members"`
	Pending        []string  `json:"pending" bson:"pending"`
	SavingsGoal    float64   `json:"savingsGoal" bson:"savingsGoal"`
	CurrentSavings float64   `json:"currentSavings" bson:"currentSavings"`
	IsActive       bool      `json:"isActive" bson:"isActive"`
	CreatedAt      time.Time `json:"createdAt" bson:"createdAt"`
	UpdatedAt      time.Time `json:"updatedAt" bson:"updatedAt"`
}

// Prepare fills the id, code and timestamps of a group about to be created.
func (g *Group) Prepare(now time.Time) {
	if g.ID == "" {
		g.ID = uuid.NewString()
	}

	if g.Code == "" {
		g.Code = NewCode()
	}

	g.Code = strings.ToUpper(g.Code)

	if g.Members == nil {
		g.Members = []string{}
	}

	if g.Pending == nil {
		g.Pending = []string{}
	}

	g.CreatedAt, g.UpdatedAt = now, now
}

// HasMember reports whether wallet is an approved member.
func (g *Group) HasMember(wallet string) bool {
	return util.In(g.Members, wallet)
}

// IsPending reports whether wallet has a pending join request.
func (g *Group) IsPending(wallet string) bool {
	return util.In(g.Pending, wallet)
}

// Approve moves wallet from the pending requests to the members. It returns false if there was no such request.
func (g *Group) Approve(wallet string) bool {
	if !g.Reject(wallet) {
		return false
	}

	g.Members = append(g.Members, wallet)

	return true
}

// Reject drops the pending request of wallet. It returns false if there was no such request.
func (g *Group) Reject(wallet string) bool {
	var ok bool

	g.Pending, ok = util.Remove(g.Pending, wallet)

	return ok
}

// Wallets returns the members followed by the pending requests.
func (g *Group) Wallets() []string {
	return append(append([]string{}, g.Members...), g.Pending...)
}

// Remove drops wallet from the members and pending requests.
func (g *Group) Remove(wallet string) bool {
	var m, p bool

	g.Members, m = util.Remove(g.Members, wallet)
	g.Pending, p = util.Remove(g.Pending, wallet)

	return m || p
}

// NewCode returns a random join code of CodeLen uppercase alphanumerics.
func NewCode() string {
	return strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:CodeLen])
}

// WatchState is the persisted snapshot of a contract watcher: the height and hash ring of the last polls and the
// outputs seen at the address keyed by reference, with their inline datum.
type WatchState struct {
	Address string            `json:"address" bson:"address"`
	Height  uint64            `json:"height" bson:"height"`
	Tips    []string          `json:"tips" bson:"tips"`
	TipIdx  int               `json:"tipIdx" bson:"tipIdx"`
	Utxos   map[string]string `json:"utxos" bson:"utxos"`
}
