package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/gitscribe/gitscribe/internal/store"
)

type SurveyHandler struct {
	surveys  *store.SurveyStore
	accounts *store.AccountStore
	logger   *slog.Logger
}

func NewSurveyHandler(surveys *store.SurveyStore, accounts *store.AccountStore, logger *slog.Logger) *SurveyHandler {
	return &SurveyHandler{surveys: surveys, accounts: accounts, logger: logger}
}

type surveyRequest struct {
	Referral string `json:"referral"`
	UseCase  string `json:"use_case"`
	Comments string `json:"comments"`
}

func (h *SurveyHandler) Submit(w http.ResponseWriter, r *http.Request) {
	accountID := AccountIDFromContext(r.Context())
	if accountID == 0 {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req surveyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if _, err := h.surveys.Create(accountID, req.Referral, req.UseCase, req.Comments); err != nil {
		h.logger.Error("save survey", "account_id", accountID, "error", err)
		respondError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if err := h.accounts.SetSurveyCompleted(accountID); err != nil {
		h.logger.Warn("set survey completed", "account_id", accountID, "error", err)
	}

	w.WriteHeader(http.StatusNoContent)
}
