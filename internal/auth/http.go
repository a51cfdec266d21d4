// ABOUTME: HTTP handlers for the two login endpoints
// ABOUTME: JSON requests in, bearer token string out, bare status codes on failure

package auth

import (
	"encoding/json"
	"io"
	"net/http"
)

// Request body size cap; login payloads are tiny.
const maxBodyBytes = 64 * 1024

// Handlers exposes the authentication flows over HTTP.
type Handlers struct {
	service *Service
}

// NewHandlers creates the login endpoint handlers.
func NewHandlers(service *Service) *Handlers {
	return &Handlers{service: service}
}

// Register attaches the login routes to the mux.
func (h *Handlers) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /auth/signature", h.handleSignature)
	mux.HandleFunc("POST /auth/otp", h.handleOTP)
}

type signatureRequest struct {
	Username string `json:"usr"`
	Nonce    string `json:"oid"`
	Sig      string `json:"sig"`
}

type otpRequest struct {
	Username string `json:"usr"`
	OTP      string `json:"otp"`
	Passkey  string `json:"pky,omitempty"`
}

func (h *Handlers) handleSignature(w http.ResponseWriter, r *http.Request) {
	var req signatureRequest
	if !decodeBody(w, r, &req) {
		return
	}

	signed, err := h.service.VerifySignature(r.Context(), req.Username, req.Nonce, req.Sig)
	if err != nil {
		w.WriteHeader(StatusFor(err))
		return
	}

	writeToken(w, signed)
}

func (h *Handlers) handleOTP(w http.ResponseWriter, r *http.Request) {
	var req otpRequest
	if !decodeBody(w, r, &req) {
		return
	}

	signed, err := h.service.VerifyOTP(r.Context(), req.Username, req.OTP, req.Passkey)
	if err != nil {
		w.WriteHeader(StatusFor(err))
		return
	}

	writeToken(w, signed)
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	body := http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(body).Decode(dst); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return false
	}
	return true
}

func writeToken(w http.ResponseWriter, signed string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	io.WriteString(w, signed)
}
