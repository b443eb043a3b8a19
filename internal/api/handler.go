// Package api exposes the relay's HTTP surface to the presentation layer:
// name registration, the presence snapshot, the send endpoint, and the
// per-token status probe.
package api

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"relay/internal/relay"
)

const defaultMaxBodyBytes = 16 << 10 // 16 KiB

// Handler wires the HTTP endpoints to the registry and router.
type Handler struct {
	log *slog.Logger

	reg    *relay.Registry
	router *relay.Router

	maxBodyBytes int64
}

// NewHandler constructs the API handler.
func NewHandler(log *slog.Logger, reg *relay.Registry, router *relay.Router, maxBodyBytes int64) *Handler {
	if log == nil {
		log = slog.Default()
	}
	if maxBodyBytes <= 0 {
		maxBodyBytes = defaultMaxBodyBytes
	}
	return &Handler{
		log:          log,
		reg:          reg,
		router:       router,
		maxBodyBytes: maxBodyBytes,
	}
}

// Register wires the API routes onto the provided mux.
func (h *Handler) Register(mux *http.ServeMux) {
	if h == nil || mux == nil {
		return
	}
	mux.HandleFunc("POST /register", h.handleRegister)
	mux.HandleFunc("POST /send_message", h.handleSend)
	mux.HandleFunc("GET /clients", h.handleClients)
	mux.HandleFunc("GET /status/{token}", h.handleStatus)
}

// ---- handlers ----

func (h *Handler) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := decodeJSON(w, r, h.maxBodyBytes, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "invalid request body")
		return
	}

	client, err := h.reg.Reserve(req.Name)
	switch {
	case errors.Is(err, relay.ErrNameInvalid):
		writeError(w, http.StatusBadRequest, "name_invalid", "name is required")
		return
	case errors.Is(err, relay.ErrNameTaken):
		writeError(w, http.StatusNotAcceptable, "name_taken", "the name is already taken")
		return
	case err != nil:
		h.log.Error("api.register.fail", "err", err)
		writeError(w, http.StatusInternalServerError, "internal", "registration failed")
		return
	}

	writeJSON(w, http.StatusOK, registerResponse{Token: client.Token})
}

func (h *Handler) handleSend(w http.ResponseWriter, r *http.Request) {
	var req sendRequest
	if err := decodeJSON(w, r, h.maxBodyBytes, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "invalid request body")
		return
	}

	err := h.router.Send(req.Token, req.To, req.Body)
	switch {
	case errors.Is(err, relay.ErrEmptyBody):
		writeError(w, http.StatusBadRequest, "empty_body", "message body is required")
		return
	case errors.Is(err, relay.ErrUnauthorized):
		writeError(w, http.StatusUnauthorized, "unauthorized", "unknown sender token")
		return
	case errors.Is(err, relay.ErrRecipientOffline):
		writeError(w, http.StatusNotFound, "recipient_offline", "recipient has no active connection")
		return
	case err != nil:
		h.log.Error("api.send.fail", "err", err)
		writeError(w, http.StatusInternalServerError, "internal", "send failed")
		return
	}

	// Ack is a 200 with an empty body.
	w.WriteHeader(http.StatusOK)
}

func (h *Handler) handleClients(w http.ResponseWriter, _ *http.Request) {
	clients := h.reg.ListActive()
	if clients == nil {
		clients = []relay.Client{}
	}
	writeJSON(w, http.StatusOK, clients)
}

func (h *Handler) handleStatus(w http.ResponseWriter, r *http.Request) {
	token := strings.TrimSpace(r.PathValue("token"))

	client, ok := h.reg.ResolveToken(token)
	if !ok {
		writeError(w, http.StatusNotFound, "token_invalid", "unknown token")
		return
	}

	writeJSON(w, http.StatusOK, statusResponse{
		Name:      client.Name,
		Connected: h.reg.Lookup(client.Name) != nil,
	})
}
