// Copyright 2026 The Tradewire Authors
// SPDX-License-Identifier: Apache-2.0

package api

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/tradewire-project/tradewire/lib/apikey"
	"github.com/tradewire-project/tradewire/lib/clock"
	"github.com/tradewire-project/tradewire/relay"
	"github.com/tradewire-project/tradewire/store"
)

// LicenseStore is the durable state the API reads and writes.
type LicenseStore interface {
	CreateLicense(ctx context.Context, key string, expiry int64) (store.License, error)
	GetLicense(ctx context.Context, key string) (store.License, error)
	ListLicenses(ctx context.Context) ([]store.License, error)
	SetLicenseStatus(ctx context.Context, key, status string) error
	QueryStats(ctx context.Context) (store.Stats, error)
}

// Broadcaster fans a trade out to live receivers.
type Broadcaster interface {
	BroadcastTrade(ctx context.Context, order relay.TradeOrder, licenseKey string) int
}

// Admitter applies the relay's admission rules to a credential.
type Admitter interface {
	Admit(ctx context.Context, role, credential string) error
}

// SessionCounter reports live session counts by role.
type SessionCounter interface {
	CountByRole(role string) int
}

// Config holds the collaborators for the HTTP handler.
type Config struct {
	Store       LicenseStore
	Broadcaster Broadcaster
	Admission   Admitter
	Sessions    SessionCounter
	Clock       clock.Clock
	Logger      *slog.Logger

	// AdminToken gates license administration and stats. Empty
	// disables those endpoints entirely.
	AdminToken string
}

// Handler serves the HTTP boundary.
type Handler struct {
	store       LicenseStore
	broadcaster Broadcaster
	admission   Admitter
	sessions    SessionCounter
	clock       clock.Clock
	logger      *slog.Logger
	adminToken  string
	mux         *http.ServeMux
}

// NewHandler builds the route table.
func NewHandler(cfg Config) *Handler {
	h := &Handler{
		store:       cfg.Store,
		broadcaster: cfg.Broadcaster,
		admission:   cfg.Admission,
		sessions:    cfg.Sessions,
		clock:       cfg.Clock,
		logger:      cfg.Logger,
		adminToken:  cfg.AdminToken,
		mux:         http.NewServeMux(),
	}
	h.mux.HandleFunc("POST /v1/licenses", h.admin(h.createLicense))
	h.mux.HandleFunc("GET /v1/licenses", h.admin(h.listLicenses))
	h.mux.HandleFunc("GET /v1/licenses/{key}", h.verifyLicense)
	h.mux.HandleFunc("POST /v1/licenses/{key}/status", h.admin(h.setLicenseStatus))
	h.mux.HandleFunc("POST /v1/trades", h.sendTrade)
	h.mux.HandleFunc("GET /v1/stats", h.admin(h.stats))
	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mux.ServeHTTP(w, r)
}

// admin wraps a handler with bearer-token authentication. An empty
// configured token fails closed: every admin request is rejected.
func (h *Handler) admin(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		if !ok || h.adminToken == "" ||
			subtle.ConstantTimeCompare([]byte(token), []byte(h.adminToken)) != 1 {
			h.writeError(w, http.StatusUnauthorized, "invalid admin token")
			return
		}
		next(w, r)
	}
}

type createLicenseRequest struct {
	// Key is the license key to issue. Empty generates a random one.
	Key string `json:"key"`

	// Expiry is the expiry as Unix seconds.
	Expiry int64 `json:"expiry"`
}

func (h *Handler) createLicense(w http.ResponseWriter, r *http.Request) {
	var req createLicenseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, fmt.Sprintf("decoding request: %v", err))
		return
	}
	if req.Expiry < h.clock.Now().Unix() {
		h.writeError(w, http.StatusBadRequest, "expiry is in the past")
		return
	}
	if req.Key == "" {
		id, err := apikey.NewID()
		if err != nil {
			h.writeError(w, http.StatusInternalServerError, "generating license key")
			return
		}
		req.Key = "LIC-" + strings.ToUpper(id)
	}

	license, err := h.store.CreateLicense(r.Context(), req.Key, req.Expiry)
	if err != nil {
		h.logger.Warn("creating license failed", "key", req.Key, "error", err)
		h.writeError(w, http.StatusConflict, "license already exists")
		return
	}
	h.logger.Info("license issued", "key", license.Key, "expiry", license.Expiry)
	h.writeJSON(w, http.StatusCreated, license)
}

func (h *Handler) listLicenses(w http.ResponseWriter, r *http.Request) {
	licenses, err := h.store.ListLicenses(r.Context())
	if err != nil {
		h.logger.Error("listing licenses failed", "error", err)
		h.writeError(w, http.StatusInternalServerError, "listing licenses")
		return
	}
	if licenses == nil {
		licenses = []store.License{}
	}
	h.writeJSON(w, http.StatusOK, licenses)
}

type verifyResponse struct {
	Key    string `json:"key"`
	Valid  bool   `json:"valid"`
	Reason string `json:"reason,omitempty"`
	Expiry int64  `json:"expiry,omitempty"`
}

// verifyLicense applies receiver-admission rules to a license key:
// same status check, same inclusive expiry boundary, and a successful
// check counts as an activation.
func (h *Handler) verifyLicense(w http.ResponseWriter, r *http.Request) {
	key := r.PathValue("key")
	err := h.admission.Admit(r.Context(), relay.RoleReceiver, key)
	switch {
	case err == nil:
		license, getErr := h.store.GetLicense(r.Context(), key)
		if getErr != nil {
			h.logger.Error("loading verified license failed", "key", key, "error", getErr)
			h.writeError(w, http.StatusInternalServerError, "loading license")
			return
		}
		h.writeJSON(w, http.StatusOK, verifyResponse{Key: key, Valid: true, Expiry: license.Expiry})
	case errors.Is(err, relay.ErrUnknownLicense):
		h.writeError(w, http.StatusNotFound, "unknown license")
	default:
		h.writeJSON(w, http.StatusOK, verifyResponse{
			Key: key, Valid: false, Reason: relay.RejectReason(err),
		})
	}
}

type statusRequest struct {
	Status string `json:"status"`
}

func (h *Handler) setLicenseStatus(w http.ResponseWriter, r *http.Request) {
	key := r.PathValue("key")
	var req statusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, fmt.Sprintf("decoding request: %v", err))
		return
	}

	err := h.store.SetLicenseStatus(r.Context(), key, req.Status)
	switch {
	case err == nil:
		h.logger.Info("license status changed", "key", key, "status", req.Status)
		w.WriteHeader(http.StatusNoContent)
	case errors.Is(err, store.ErrNotFound):
		h.writeError(w, http.StatusNotFound, "unknown license")
	default:
		h.writeError(w, http.StatusBadRequest, err.Error())
	}
}

type sendTradeRequest struct {
	LicenseKey string           `json:"license_key"`
	Trade      relay.TradeOrder `json:"trade"`
}

type sendTradeResponse struct {
	Delivered int `json:"delivered"`
}

// sendTrade injects a trade signal over HTTP. The carried license is
// checked exactly like a receiver admission, then the signal takes
// the same broadcast path as a transport-native trade-signal.
func (h *Handler) sendTrade(w http.ResponseWriter, r *http.Request) {
	var req sendTradeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, fmt.Sprintf("decoding request: %v", err))
		return
	}
	if req.LicenseKey == "" {
		h.writeError(w, http.StatusBadRequest, "license_key is required")
		return
	}
	if err := req.Trade.Validate(); err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := h.admission.Admit(r.Context(), relay.RoleReceiver, req.LicenseKey); err != nil {
		h.logger.Info("trade injection rejected", "license", req.LicenseKey, "error", err)
		h.writeError(w, http.StatusForbidden, relay.RejectReason(err))
		return
	}

	delivered := h.broadcaster.BroadcastTrade(r.Context(), req.Trade, req.LicenseKey)
	h.writeJSON(w, http.StatusOK, sendTradeResponse{Delivered: delivered})
}

type statsResponse struct {
	Masters   int         `json:"masters"`
	Receivers int         `json:"receivers"`
	Store     store.Stats `json:"store"`
}

func (h *Handler) stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.store.QueryStats(r.Context())
	if err != nil {
		h.logger.Error("querying stats failed", "error", err)
		h.writeError(w, http.StatusInternalServerError, "querying stats")
		return
	}
	h.writeJSON(w, http.StatusOK, statsResponse{
		Masters:   h.sessions.CountByRole(relay.RoleMaster),
		Receivers: h.sessions.CountByRole(relay.RoleReceiver),
		Store:     stats,
	})
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Debug("writing response failed", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, msg string) {
	h.writeJSON(w, status, map[string]string{"error": msg})
}
