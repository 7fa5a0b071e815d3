package handlers

import (
	"net/http"

	"media-ingest/internal/logging"
)

// quotaResponse reports an owner's job budget.
type quotaResponse struct {
	OwnerID   string `json:"ownerId"`
	Limit     int    `json:"limit"`
	Used      int    `json:"used"`
	Remaining int    `json:"remaining"`
}

// GetQuota returns the quota state for an owner.
func (h *Handlers) GetQuota(w http.ResponseWriter, r *http.Request) {
	ownerID := r.URL.Query().Get("owner")
	if ownerID == "" {
		ownerID = r.Header.Get(ownerHeader)
	}
	if ownerID == "" {
		writeJSONError(w, "missing owner (use ?owner= or "+ownerHeader+")", http.StatusBadRequest)
		return
	}

	limit, err := h.db.QuotaLimit(r.Context(), ownerID, h.defaultQuota)
	if err != nil {
		logging.Error("quota limit lookup for %s failed: %v", ownerID, err)
		writeJSONError(w, "quota lookup failed", http.StatusInternalServerError)
		return
	}
	used, err := h.db.QuotaUsed(r.Context(), ownerID)
	if err != nil {
		logging.Error("quota usage lookup for %s failed: %v", ownerID, err)
		writeJSONError(w, "quota lookup failed", http.StatusInternalServerError)
		return
	}
	remaining, err := h.gate.Remaining(r.Context(), ownerID)
	if err != nil {
		logging.Error("quota remaining lookup for %s failed: %v", ownerID, err)
		writeJSONError(w, "quota lookup failed", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, quotaResponse{
		OwnerID:   ownerID,
		Limit:     limit,
		Used:      used,
		Remaining: remaining,
	})
}
