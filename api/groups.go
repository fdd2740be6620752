package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/gorilla/mux"

	"github.com/tarancss/safesave/lib/store"
)

// loadGroup returns the group with the id in the request path.
func (s *Service) loadGroup(r *http.Request) (store.Group, error) {
	id := mux.Vars(r)["id"]

	g, err := s.db.Group(r.Context(), id)
	if errors.Is(err, store.ErrDataNotFound) {
		return g, notFound("No group with the id of " + id)
	} else if err != nil {
		return g, internal("Failed to load group: %v", err)
	}

	return g, nil
}

// adminGroup returns the group in the request path if the connected wallet is its admin.
func (s *Service) adminGroup(r *http.Request, action string) (store.Group, error) {
	g, err := s.loadGroup(r)
	if err != nil {
		return g, err
	}

	if wallet := user(r).WalletAddress; g.Admin != wallet {
		return g, unauthorized(fmt.Sprintf("User %s is not authorized to %s this group", wallet, action))
	}

	return g, nil
}

// groupOf returns the group the wallet belongs to or asked to join, nil if none.
func (s *Service) groupOf(r *http.Request, wallet string) (*store.Group, error) {
	g, err := s.db.GroupOf(r.Context(), wallet)
	if errors.Is(err, store.ErrDataNotFound) {
		return nil, nil
	} else if err != nil {
		return nil, internal("Failed to load group: %v", err)
	}

	return &g, nil
}

func storeErr(err error) error {
	switch {
	case errors.Is(err, store.ErrDuplicate):
		return badRequest("A group with the same name or code already exists")
	case errors.Is(err, store.ErrInGroup):
		return badRequest("You are already in a group")
	}

	return internal("Failed to save group: %v", err)
}

// joinCode normalizes a join code set by the client.
func joinCode(code string) (string, error) {
	if code = strings.ToUpper(strings.TrimSpace(code)); !store.ValidCode(code) {
		return "", badRequest(fmt.Sprintf("Group code must have %d letters or digits", store.CodeLen))
	}

	return code, nil
}

// createGroupHandler creates a group administered by the connected wallet.
func (s *Service) createGroupHandler(w http.ResponseWriter, r *http.Request) {
	var err error

	var res Response

	defer func() { reply(w, r, http.StatusCreated, res, err) }()

	var body struct {
		Name        string  `json:"name"`
		Code        string  `json:"code"`
		SavingsGoal float64 `json:"savingsGoal"`
	}

	if err = decode(r, &body); err != nil {
		return
	}

	body.Name = strings.TrimSpace(body.Name)
	if body.Name == "" {
		err = badRequest("Please add a group name")

		return
	}

	if body.Code != "" {
		if body.Code, err = joinCode(body.Code); err != nil {
			return
		}
	}

	wallet := user(r).WalletAddress

	g := store.Group{
		Name:        body.Name,
		Code:        body.Code,
		Admin:       wallet,
		Members:     []string{wallet},
		SavingsGoal: body.SavingsGoal,
		IsActive:    true,
	}

	if errC := s.db.CreateGroup(r.Context(), &g); errC != nil {
		err = storeErr(errC)

		return
	}

	logger(r).Infof("Group %s created by %s", g.ID, wallet)

	res = Response{"data": g}
}

// groupsHandler replies every group.
func (s *Service) groupsHandler(w http.ResponseWriter, r *http.Request) {
	var err error

	var res Response

	defer func() { reply(w, r, 0, res, err) }()

	gs, errG := s.db.Groups(r.Context())
	if errG != nil {
		err = internal("Failed to load groups: %v", errG)

		return
	}

	res = Response{"count": len(gs), "data": gs}
}

// groupHandler replies a group to its members.
func (s *Service) groupHandler(w http.ResponseWriter, r *http.Request) {
	var err error

	var res Response

	defer func() { reply(w, r, 0, res, err) }()

	g, err := s.loadGroup(r)
	if err != nil {
		return
	}

	if !g.HasMember(user(r).WalletAddress) {
		err = unauthorized("Not authorized to access this group")

		return
	}

	res = Response{"data": g}
}

// updateGroupHandler updates the fields present in the body.
func (s *Service) updateGroupHandler(w http.ResponseWriter, r *http.Request) {
	var err error

	var res Response

	defer func() { reply(w, r, 0, res, err) }()

	g, err := s.adminGroup(r, "update")
	if err != nil {
		return
	}

	var body struct {
		Name           *string  `json:"name"`
		Code           *string  `json:"code"`
		SavingsGoal    *float64 `json:"savingsGoal"`
		CurrentSavings *float64 `json:"currentSavings"`
		IsActive       *bool    `json:"isActive"`
	}

	if err = decode(r, &body); err != nil {
		return
	}

	if body.Name != nil {
		if g.Name = strings.TrimSpace(*body.Name); g.Name == "" {
			err = badRequest("Please add a group name")

			return
		}
	}

	if body.Code != nil {
		if g.Code, err = joinCode(*body.Code); err != nil {
			return
		}
	}

	if body.SavingsGoal != nil {
		g.SavingsGoal = *body.SavingsGoal
	}

	if body.CurrentSavings != nil {
		g.CurrentSavings = *body.CurrentSavings
	}

	if body.IsActive != nil {
		g.IsActive = *body.IsActive
	}

	if errU := s.db.UpdateGroup(r.Context(), &g); errU != nil {
		err = storeErr(errU)

		return
	}

	res = Response{"data": g}
}

// deleteGroupHandler deletes a group, releasing its members.
func (s *Service) deleteGroupHandler(w http.ResponseWriter, r *http.Request) {
	var err error

	var res Response

	defer func() { reply(w, r, 0, res, err) }()

	g, err := s.adminGroup(r, "delete")
	if err != nil {
		return
	}

	if errD := s.db.DeleteGroup(r.Context(), g.ID); errD != nil {
		err = internal("Failed to delete group: %v", errD)

		return
	}

	logger(r).Infof("Group %s deleted", g.ID)

	res = Response{"data": Response{}}
}

// joinGroupHandler files a join request of the connected wallet to the group with the code in the body. The request
// stays pending until the group admin approves it.
func (s *Service) joinGroupHandler(w http.ResponseWriter, r *http.Request) {
	var err error

	var res Response

	defer func() { reply(w, r, 0, res, err) }()

	var body struct {
		Code string `json:"code"`
	}

	if err = decode(r, &body); err != nil {
		return
	}

	if body.Code = strings.TrimSpace(body.Code); body.Code == "" {
		err = badRequest("Please provide a group code")

		return
	}

	g, errJ := s.db.RequestJoin(r.Context(), body.Code, user(r).WalletAddress)
	if errors.Is(errJ, store.ErrDataNotFound) {
		err = notFound("Invalid group code")

		return
	} else if errJ != nil {
		err = storeErr(errJ)

		return
	}

	res = Response{"message": "Join request sent", "data": g}
}

// leaveGroupHandler takes the connected wallet out of its group, or withdraws its join request. The group is
// deleted when its admin leaves.
func (s *Service) leaveGroupHandler(w http.ResponseWriter, r *http.Request) {
	var err error

	var res Response

	defer func() { reply(w, r, 0, res, err) }()

	wallet := user(r).WalletAddress

	g, err := s.groupOf(r, wallet)
	if err != nil {
		return
	}

	if g == nil {
		err = badRequest("You are not in any group")

		return
	}

	if g.Admin == wallet {
		if errD := s.db.DeleteGroup(r.Context(), g.ID); errD != nil {
			err = internal("Failed to delete group: %v", errD)

			return
		}

		logger(r).Infof("Group %s deleted as its admin left", g.ID)
	} else if errR := s.db.RemoveMember(r.Context(), g.ID, wallet); errors.Is(errR, store.ErrDataNotFound) {
		err = badRequest("You are not in any group")

		return
	} else if errR != nil {
		err = internal("Failed to leave group: %v", errR)

		return
	}

	res = Response{"data": Response{}}
}

// approveHandler admits a wallet with a pending join request.
func (s *Service) approveHandler(w http.ResponseWriter, r *http.Request) {
	s.resolveRequest(w, r, s.db.Approve)
}

// rejectHandler drops the pending join request of a wallet.
func (s *Service) rejectHandler(w http.ResponseWriter, r *http.Request) {
	s.resolveRequest(w, r, s.db.Reject)
}

func (s *Service) resolveRequest(w http.ResponseWriter, r *http.Request,
	f func(ctx context.Context, id, wallet string) (store.Group, error)) {
	var err error

	var res Response

	defer func() { reply(w, r, 0, res, err) }()

	g, err := s.adminGroup(r, "update")
	if err != nil {
		return
	}

	wallet := mux.Vars(r)["wallet"]

	g, errF := f(r.Context(), g.ID, wallet)
	switch {
	case errors.Is(errF, store.ErrNotPending):
		err = notFound("No pending request from " + wallet)
	case errors.Is(errF, store.ErrDataNotFound):
		err = notFound("No group with the id of " + mux.Vars(r)["id"])
	case errF != nil:
		err = storeErr(errF)
	default:
		res = Response{"data": g}
	}
}
