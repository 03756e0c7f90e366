package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/skip2/go-qrcode"
)

// serviceProfile handles GET /service/profile
func (r *Router) serviceProfile(w http.ResponseWriter, req *http.Request) {
	respondJSON(w, http.StatusOK, r.deps.Keys.Profile(r.deps.ServiceURL))
}

// serviceQR renders the service profile as a QR code so a client can pair
// with this delivery service by scanning it.
func (r *Router) serviceQR(w http.ResponseWriter, req *http.Request) {
	payload, err := json.Marshal(r.deps.Keys.Profile(r.deps.ServiceURL))
	if err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to encode profile")
		return
	}

	png, err := qrcode.Encode(string(payload), qrcode.Low, 256)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to generate QR")
		return
	}

	w.Header().Set("Content-Type", "image/png")
	w.Write(png)
}
