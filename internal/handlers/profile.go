package handlers

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/xelth-com/dsrelay/internal/middleware"
	"github.com/xelth-com/dsrelay/internal/models"
)

// getUserProfile handles GET /profile/{account}
func (r *Router) getUserProfile(w http.ResponseWriter, req *http.Request) {
	p, err := r.deps.Profiles.GetUserProfile(req.Context(), mux.Vars(req)["account"])
	if err != nil {
		respondFailure(w, req, err)
		return
	}
	respondJSON(w, http.StatusOK, p)
}

// submitUserProfile handles POST /profile/{account}
func (r *Router) submitUserProfile(w http.ResponseWriter, req *http.Request) {
	var signed models.SignedUserProfile
	if !decodeJSON(w, req, &signed) {
		return
	}

	token, err := r.deps.Profiles.SubmitUserProfile(req.Context(), mux.Vars(req)["account"], signed)
	if err != nil {
		respondFailure(w, req, err)
		return
	}
	respondJSON(w, http.StatusCreated, map[string]string{"token": token})
}

// setSpamFilter handles POST /profile/{account}/spam-filter. A null body
// clears the rules.
func (r *Router) setSpamFilter(w http.ResponseWriter, req *http.Request) {
	var rules *models.SpamFilterRules
	if !decodeJSON(w, req, &rules) {
		return
	}

	if err := r.deps.Profiles.SetSpamFilterRules(req.Context(), middleware.Account(req.Context()), rules); err != nil {
		respondFailure(w, req, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
