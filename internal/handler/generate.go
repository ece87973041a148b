package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/gitscribe/gitscribe/internal/entitlement"
	"github.com/gitscribe/gitscribe/internal/generate"
	"github.com/gitscribe/gitscribe/internal/model"
	"github.com/gitscribe/gitscribe/internal/usage"
)

type GenerateHandler struct {
	orchestrator *generate.Orchestrator
	recorder     *usage.Recorder
	logger       *slog.Logger
}

func NewGenerateHandler(o *generate.Orchestrator, rec *usage.Recorder, logger *slog.Logger) *GenerateHandler {
	return &GenerateHandler{orchestrator: o, recorder: rec, logger: logger}
}

type generateRequest struct {
	Repository string `json:"repository"`
	DocType    string `json:"doc_type"`
}

type deniedResponse struct {
	Error string `json:"error"`
	Usage int    `json:"usage"`
	Limit int    `json:"limit"`
	Plan  string `json:"plan"`
}

// Generate returns the handler for one channel. Web requests arrive via
// session auth, API requests via key auth; the entitlement decision is
// scoped to the channel either way.
func (h *GenerateHandler) Generate(ch model.Channel) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		accountID := AccountIDFromContext(r.Context())
		if accountID == 0 {
			respondError(w, http.StatusUnauthorized, "unauthorized")
			return
		}

		var req generateRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			respondError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		if req.Repository == "" {
			respondError(w, http.StatusBadRequest, "repository is required")
			return
		}
		docType := model.DocType(req.DocType)
		if !docType.Valid() {
			respondError(w, http.StatusBadRequest, "unknown doc_type")
			return
		}

		result, err := h.orchestrator.Generate(r.Context(), accountID, ch, docType, req.Repository)
		if err != nil {
			h.respondGenerateError(w, accountID, err)
			return
		}

		respondJSON(w, http.StatusOK, result)
	}
}

// respondGenerateError maps orchestration failures: denials carry their
// usage figures so clients can render an upgrade prompt; everything else
// stays opaque.
func (h *GenerateHandler) respondGenerateError(w http.ResponseWriter, accountID int64, err error) {
	var denied *generate.DeniedError
	if errors.As(err, &denied) {
		respondJSON(w, http.StatusForbidden, deniedResponse{
			Error: "generation limit reached",
			Usage: denied.Decision.Usage,
			Limit: denied.Decision.Limit,
			Plan:  string(denied.Decision.Plan),
		})
		return
	}
	if errors.Is(err, entitlement.ErrAccountNotFound) {
		h.logger.Error("generation for missing account", "account_id", accountID)
		respondError(w, http.StatusInternalServerError, "internal error")
		return
	}
	h.logger.Error("generation failed", "account_id", accountID, "error", err)
	respondError(w, http.StatusBadGateway, "generation failed")
}

type trackRequest struct {
	EventID    int64  `json:"event_id"`
	Repository string `json:"repository"`
	DocType    string `json:"doc_type"`
	Action     string `json:"action"`
}

// Track records a post-generation action (copied, downloaded, pr_created)
// against a ledger event. A stale or unmatched reference reports
// tracked=false and still succeeds; this path is analytics, not billing.
func (h *GenerateHandler) Track(w http.ResponseWriter, r *http.Request) {
	accountID := AccountIDFromContext(r.Context())
	if accountID == 0 {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req trackRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	action := model.Action(req.Action)
	if !action.Valid() {
		respondError(w, http.StatusBadRequest, "unknown action")
		return
	}

	tracked, err := h.recorder.TrackAction(accountID, req.EventID, req.Repository, model.DocType(req.DocType), action)
	if err != nil {
		h.logger.Error("track action", "account_id", accountID, "error", err)
		respondError(w, http.StatusInternalServerError, "internal error")
		return
	}

	respondJSON(w, http.StatusOK, map[string]bool{"tracked": tracked})
}

type pullRequestRequest struct {
	EventID    int64  `json:"event_id"`
	Repository string `json:"repository"`
	DocType    string `json:"doc_type"`
	Artifact   string `json:"artifact"`
}

// OpenPullRequest pushes a generated artifact to the repository as a PR.
func (h *GenerateHandler) OpenPullRequest(w http.ResponseWriter, r *http.Request) {
	accountID := AccountIDFromContext(r.Context())
	if accountID == 0 {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req pullRequestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Repository == "" || req.Artifact == "" {
		respondError(w, http.StatusBadRequest, "repository and artifact are required")
		return
	}
	docType := model.DocType(req.DocType)
	if !docType.Valid() {
		respondError(w, http.StatusBadRequest, "unknown doc_type")
		return
	}

	url, err := h.orchestrator.OpenPullRequest(r.Context(), accountID, req.EventID, docType, req.Repository, req.Artifact)
	if err != nil {
		h.logger.Error("open pull request", "account_id", accountID, "error", err)
		respondError(w, http.StatusBadGateway, "pull request failed")
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{"url": url})
}
