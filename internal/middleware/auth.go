package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/gorilla/mux"
)

type contextKey string

const AccountContextKey contextKey = "account"

// TokenChecker validates an account's bearer token
type TokenChecker interface {
	CheckToken(ctx context.Context, account, token string) bool
}

// Normalizer canonicalizes identities
type Normalizer interface {
	Normalize(identity string) (string, error)
}

// BearerToken extracts the token of an "Authorization: Bearer <token>" header
func BearerToken(r *http.Request) string {
	parts := strings.Fields(r.Header.Get("Authorization"))
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return parts[1]
}

// RequireAccountToken admits requests whose bearer token is valid for the
// {account} route variable and stores the canonical account in the context.
func RequireAccountToken(tokens TokenChecker, names Normalizer) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			account, err := names.Normalize(mux.Vars(r)["account"])
			if err != nil || !tokens.CheckToken(r.Context(), account, BearerToken(r)) {
				reject(w)
				return
			}

			ctx := context.WithValue(r.Context(), AccountContextKey, account)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// Account returns the authenticated account stored by RequireAccountToken
func Account(ctx context.Context) string {
	account, _ := ctx.Value(AccountContextKey).(string)
	return account
}

func reject(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	json.NewEncoder(w).Encode(map[string]string{"error": "rejected"})
}
