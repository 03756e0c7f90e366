package handlers

import (
	"net/http"

	"github.com/gorilla/mux"
)

// SessionTokenRequest answers a challenge
type SessionTokenRequest struct {
	Challenge string `json:"challenge"`
	Signature string `json:"signature"`
}

// createChallenge handles GET /auth/{account}
func (r *Router) createChallenge(w http.ResponseWriter, req *http.Request) {
	challenge, err := r.deps.Auth.CreateChallenge(req.Context(), mux.Vars(req)["account"])
	if err != nil {
		respondFailure(w, req, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"challenge": challenge})
}

// createSessionToken handles POST /auth/{account}
func (r *Router) createSessionToken(w http.ResponseWriter, req *http.Request) {
	var body SessionTokenRequest
	if !decodeJSON(w, req, &body) {
		return
	}

	token, err := r.deps.Auth.CreateNewSessionToken(req.Context(), mux.Vars(req)["account"], body.Signature, body.Challenge)
	if err != nil {
		respondFailure(w, req, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"token": token})
}
