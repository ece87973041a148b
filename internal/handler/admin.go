package handler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gitscribe/gitscribe/internal/report"
	"github.com/gitscribe/gitscribe/internal/store"
)

type AdminHandler struct {
	accounts *store.AccountStore
	reporter *report.Reporter
	logger   *slog.Logger
}

func NewAdminHandler(accounts *store.AccountStore, reporter *report.Reporter, logger *slog.Logger) *AdminHandler {
	return &AdminHandler{accounts: accounts, reporter: reporter, logger: logger}
}

// Metrics serves ledger aggregates for the last 30 days. Admin only.
func (h *AdminHandler) Metrics(w http.ResponseWriter, r *http.Request) {
	accountID := AccountIDFromContext(r.Context())
	account, err := h.accounts.GetByID(accountID)
	if err != nil || account == nil || !account.IsAdmin {
		respondError(w, http.StatusForbidden, "forbidden")
		return
	}

	since := time.Now().UTC().AddDate(0, 0, -30)

	docTypes, err := h.reporter.CountsByDocType(since)
	if err != nil {
		h.logger.Error("doc type counts", "error", err)
		respondError(w, http.StatusInternalServerError, "internal error")
		return
	}
	channels, err := h.reporter.CountsByChannel(since)
	if err != nil {
		h.logger.Error("channel counts", "error", err)
		respondError(w, http.StatusInternalServerError, "internal error")
		return
	}
	daily, err := h.reporter.DailyCounts(30)
	if err != nil {
		h.logger.Error("daily counts", "error", err)
		respondError(w, http.StatusInternalServerError, "internal error")
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"doc_types": docTypes,
		"channels":  channels,
		"daily":     daily,
	})
}
