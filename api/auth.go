package api

import (
	"net/http"
	"strconv"
)

// connectWalletHandler issues a token for the wallet in the request body.
func (s *Service) connectWalletHandler(w http.ResponseWriter, r *http.Request) {
	var err error

	var res Response

	defer func() { reply(w, r, 0, res, err) }()

	var body struct {
		WalletAddress string `json:"walletAddress"`
		StakeAddress  string `json:"stakeAddress"`
	}

	if err = decode(r, &body); err != nil {
		return
	}

	if body.WalletAddress == "" {
		err = badRequest("Wallet address is required")

		return
	}

	token, err := s.issueToken(body.WalletAddress, body.StakeAddress)
	if err != nil {
		return
	}

	res = Response{
		"token":         token,
		"walletAddress": body.WalletAddress,
		"expiresIn":     strconv.Itoa(int(s.tokenTTL().Hours())) + "h",
	}
}

// meHandler replies the claims of the connected wallet.
func (s *Service) meHandler(w http.ResponseWriter, r *http.Request) {
	reply(w, r, 0, Response{"user": user(r)}, nil)
}

// verifyHandler replies whether the token is valid, which it is once past authentication.
func (s *Service) verifyHandler(w http.ResponseWriter, r *http.Request) {
	reply(w, r, 0, Response{"valid": true, "user": user(r)}, nil)
}
