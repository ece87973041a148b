package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gitscribe/gitscribe/internal/model"
	"github.com/gitscribe/gitscribe/internal/store"
)

type APIKeyHandler struct {
	keys     *store.APIKeyStore
	accounts *store.AccountStore
	logger   *slog.Logger
}

func NewAPIKeyHandler(keys *store.APIKeyStore, accounts *store.AccountStore, logger *slog.Logger) *APIKeyHandler {
	return &APIKeyHandler{keys: keys, accounts: accounts, logger: logger}
}

func (h *APIKeyHandler) List(w http.ResponseWriter, r *http.Request) {
	accountID := AccountIDFromContext(r.Context())
	if accountID == 0 {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	keys, err := h.keys.ListByAccount(accountID)
	if err != nil {
		h.logger.Error("list api keys", "account_id", accountID, "error", err)
		respondError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if keys == nil {
		keys = []*model.APIKey{}
	}
	respondJSON(w, http.StatusOK, map[string]any{"keys": keys})
}

type createKeyRequest struct {
	Label string `json:"label"`
}

type createKeyResponse struct {
	Key    *model.APIKey `json:"key"`
	Secret string        `json:"secret"`
}

// Create issues a new key. The secret appears only in this response. Keys
// are limited to accounts whose plan includes the API channel.
func (h *APIKeyHandler) Create(w http.ResponseWriter, r *http.Request) {
	accountID := AccountIDFromContext(r.Context())
	if accountID == 0 {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	account, err := h.accounts.GetByID(accountID)
	if err != nil || account == nil {
		h.logger.Error("get account for key creation", "account_id", accountID, "error", err)
		respondError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if account.APICallsLimit == 0 {
		respondError(w, http.StatusForbidden, "plan does not include API access")
		return
	}

	var req createKeyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Label == "" {
		req.Label = "default"
	}

	key, secret, err := h.keys.Create(accountID, req.Label)
	if err != nil {
		h.logger.Error("create api key", "account_id", accountID, "error", err)
		respondError(w, http.StatusInternalServerError, "internal error")
		return
	}

	respondJSON(w, http.StatusCreated, createKeyResponse{Key: key, Secret: secret})
}

func (h *APIKeyHandler) Delete(w http.ResponseWriter, r *http.Request) {
	accountID := AccountIDFromContext(r.Context())
	if accountID == 0 {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid key id")
		return
	}

	deleted, err := h.keys.Delete(id, accountID)
	if err != nil {
		h.logger.Error("delete api key", "account_id", accountID, "key_id", id, "error", err)
		respondError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if !deleted {
		respondError(w, http.StatusNotFound, "key not found")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
