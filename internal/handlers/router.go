package handlers

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/xelth-com/dsrelay/internal/auth"
	"github.com/xelth-com/dsrelay/internal/buildinfo"
	"github.com/xelth-com/dsrelay/internal/crypto"
	"github.com/xelth-com/dsrelay/internal/delivery"
	"github.com/xelth-com/dsrelay/internal/middleware"
	"github.com/xelth-com/dsrelay/internal/notify"
	"github.com/xelth-com/dsrelay/internal/profile"
	"github.com/xelth-com/dsrelay/internal/relayerr"
	"github.com/xelth-com/dsrelay/internal/resolver"
	"github.com/xelth-com/dsrelay/internal/store"
)

// Deps are the services the router exposes
type Deps struct {
	Auth       *auth.Manager
	Pipeline   *delivery.Pipeline
	Profiles   *profile.Service
	Messages   store.MessageStore
	Notify     *notify.Dispatcher // nil disables channel registration
	Names      resolver.Resolver
	Keys       *crypto.Keyring
	Push       http.Handler // push channel upgrade endpoint
	ServiceURL string
	SizeLimit  int
	FetchLimit int
}

// Router wraps the mux router and the delivery service
type Router struct {
	*mux.Router
	deps Deps
}

// NewRouter creates a new HTTP router with all routes
func NewRouter(deps Deps) *Router {
	if deps.SizeLimit <= 0 {
		deps.SizeLimit = delivery.DefaultSizeLimit
	}
	if deps.FetchLimit <= 0 {
		deps.FetchLimit = 100
	}
	r := &Router{
		Router: mux.NewRouter(),
		deps:   deps,
	}
	requireToken := middleware.RequireAccountToken(deps.Auth, deps.Names)

	// Health check endpoint
	r.HandleFunc("/health", r.healthCheck).Methods("GET")

	// Service identity
	r.HandleFunc("/service/profile", r.serviceProfile).Methods("GET")
	r.HandleFunc("/service/qr", r.serviceQR).Methods("GET")

	// Auth routes
	r.HandleFunc("/auth/{account}", r.createChallenge).Methods("GET")
	r.HandleFunc("/auth/{account}", r.createSessionToken).Methods("POST")

	// Profile routes
	r.HandleFunc("/profile/{account}", r.getUserProfile).Methods("GET")
	r.HandleFunc("/profile/{account}", r.submitUserProfile).Methods("POST")

	spamFilter := r.PathPrefix("/profile/{account}/spam-filter").Subrouter()
	spamFilter.Use(requireToken)
	spamFilter.HandleFunc("", r.setSpamFilter).Methods("POST")

	// Message routes. Submission authenticates the sender inside the pipeline.
	r.HandleFunc("/messages", r.submitMessage).Methods("POST")

	messages := r.PathPrefix("/messages/{account}").Subrouter()
	messages.Use(requireToken)
	messages.HandleFunc("/pending", r.addPending).Methods("POST")
	messages.HandleFunc("/{contact}", r.getMessages).Methods("GET")

	notifications := r.PathPrefix("/notifications/{account}").Subrouter()
	notifications.Use(requireToken)
	notifications.HandleFunc("", r.addNotificationChannel).Methods("POST")

	if deps.Push != nil {
		r.Handle("/ws", deps.Push).Methods("GET")
	}

	return r
}

// healthCheck returns the health status of the service
func (r *Router) healthCheck(w http.ResponseWriter, req *http.Request) {
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"status": "ok",
		"build":  buildinfo.Current(),
	})
}

// decodeJSON reads a JSON body, answering 400 on failure
func decodeJSON(w http.ResponseWriter, req *http.Request, v interface{}) bool {
	if err := json.NewDecoder(req.Body).Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			respondError(w, http.StatusRequestEntityTooLarge, "payload too large")
			return false
		}
		respondError(w, http.StatusBadRequest, "Invalid request payload")
		return false
	}
	return true
}

// respondJSON sends a JSON response
func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// respondError sends an error response
func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{
		"error": message,
	})
}

// respondFailure maps a service error to its public status and message.
// The full error is only logged.
func respondFailure(w http.ResponseWriter, req *http.Request, err error) {
	status, message := relayerr.Public(err)
	if status >= http.StatusInternalServerError {
		log.Printf("❌ %s %s: %v", req.Method, req.URL.Path, err)
	} else {
		log.Printf("http: %s %s: %v", req.Method, req.URL.Path, err)
	}
	respondError(w, status, message)
}
