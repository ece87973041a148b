package handler

import (
	"log/slog"
	"net/http"

	"github.com/gitscribe/gitscribe/internal/entitlement"
	"github.com/gitscribe/gitscribe/internal/model"
	"github.com/gitscribe/gitscribe/internal/store"
)

type AccountHandler struct {
	accounts  *store.AccountStore
	evaluator *entitlement.Evaluator
	logger    *slog.Logger
}

func NewAccountHandler(accounts *store.AccountStore, evaluator *entitlement.Evaluator, logger *slog.Logger) *AccountHandler {
	return &AccountHandler{accounts: accounts, evaluator: evaluator, logger: logger}
}

type usageSummary struct {
	Usage int    `json:"usage"`
	Limit int    `json:"limit"`
	Plan  string `json:"plan"`
}

// Dashboard returns the account plus current usage on both channels so the
// UI can render limits without extra round trips.
func (h *AccountHandler) Dashboard(w http.ResponseWriter, r *http.Request) {
	accountID := AccountIDFromContext(r.Context())
	if accountID == 0 {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	account, err := h.accounts.GetByID(accountID)
	if err != nil || account == nil {
		h.logger.Error("get account", "account_id", accountID, "error", err)
		respondError(w, http.StatusInternalServerError, "internal error")
		return
	}

	payload := map[string]any{"account": account}
	if web, err := h.evaluator.Evaluate(accountID, model.ChannelWeb); err == nil {
		payload["web"] = usageSummary{Usage: web.Usage, Limit: web.Limit, Plan: string(web.Plan)}
	}
	if api, err := h.evaluator.Evaluate(accountID, model.ChannelAPI); err == nil {
		payload["api"] = usageSummary{Usage: api.Usage, Limit: api.Limit, Plan: string(api.Plan)}
	}

	respondJSON(w, http.StatusOK, payload)
}
