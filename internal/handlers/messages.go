package handlers

import (
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/xelth-com/dsrelay/internal/delivery"
	"github.com/xelth-com/dsrelay/internal/middleware"
	"github.com/xelth-com/dsrelay/internal/models"
)

// PendingRequest names the account a sender is waiting for
type PendingRequest struct {
	Recipient string `json:"recipient"`
}

// ChannelRequest registers a notification channel
type ChannelRequest struct {
	Type      models.NotificationChannelType `json:"type"`
	Recipient string                         `json:"recipient"`
}

// submitMessage handles POST /messages. The sender's token comes from the
// Authorization header and is checked by the pipeline.
func (r *Router) submitMessage(w http.ResponseWriter, req *http.Request) {
	// Headroom over the envelope limit so the pipeline makes the exact call
	req.Body = http.MaxBytesReader(w, req.Body, int64(r.deps.SizeLimit)*2)

	var env models.EncryptionEnvelope
	if !decodeJSON(w, req, &env) {
		return
	}

	if err := r.deps.Pipeline.IncomingMessage(req.Context(), env, middleware.BearerToken(req)); err != nil {
		respondFailure(w, req, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "delivered"})
}

// getMessages handles GET /messages/{account}/{contact}?limit=N
func (r *Router) getMessages(w http.ResponseWriter, req *http.Request) {
	account := middleware.Account(req.Context())
	contact, err := r.deps.Names.Normalize(mux.Vars(req)["contact"])
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid contact")
		return
	}

	limit := r.deps.FetchLimit
	if raw := req.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			respondError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		if n < limit {
			limit = n
		}
	}

	envs, err := r.deps.Messages.GetMessages(req.Context(), delivery.ConversationID(account, contact), limit)
	if err != nil {
		respondFailure(w, req, err)
		return
	}
	if envs == nil {
		envs = []models.EncryptionEnvelope{}
	}
	respondJSON(w, http.StatusOK, envs)
}

// addPending handles POST /messages/{account}/pending: the authenticated
// account waits for the recipient to publish a profile.
func (r *Router) addPending(w http.ResponseWriter, req *http.Request) {
	var body PendingRequest
	if !decodeJSON(w, req, &body) {
		return
	}

	if err := r.deps.Profiles.AddPending(req.Context(), body.Recipient, middleware.Account(req.Context())); err != nil {
		respondFailure(w, req, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "pending"})
}

// addNotificationChannel handles POST /notifications/{account}
func (r *Router) addNotificationChannel(w http.ResponseWriter, req *http.Request) {
	if r.deps.Notify == nil {
		respondError(w, http.StatusNotImplemented, "notifications are disabled")
		return
	}

	var body ChannelRequest
	if !decodeJSON(w, req, &body) {
		return
	}

	err := r.deps.Notify.Register(req.Context(), models.NotificationChannel{
		Account:   middleware.Account(req.Context()),
		Type:      body.Type,
		Recipient: body.Recipient,
	})
	if err != nil {
		respondFailure(w, req, err)
		return
	}
	respondJSON(w, http.StatusCreated, map[string]string{"status": "registered"})
}
