package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/gitscribe/gitscribe/internal/payment"
	"github.com/gitscribe/gitscribe/internal/plan"
	"github.com/gitscribe/gitscribe/internal/store"
)

type CheckoutHandler struct {
	payments *payment.Client
	accounts *store.AccountStore
	prices   plan.PriceMap
	logger   *slog.Logger
}

func NewCheckoutHandler(pc *payment.Client, as *store.AccountStore, prices plan.PriceMap, logger *slog.Logger) *CheckoutHandler {
	return &CheckoutHandler{payments: pc, accounts: as, prices: prices, logger: logger}
}

type checkoutRequest struct {
	PriceID string `json:"price_id"`
}

// CreateCheckoutSession starts a Stripe checkout for a configured price
// and returns the redirect URL. Only prices present in the price map are
// accepted, so a completed checkout always maps to a known plan.
func (h *CheckoutHandler) CreateCheckoutSession(w http.ResponseWriter, r *http.Request) {
	accountID := AccountIDFromContext(r.Context())
	if accountID == 0 {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req checkoutRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if _, ok := h.prices.Lookup(req.PriceID); !ok {
		respondError(w, http.StatusBadRequest, "unknown price")
		return
	}

	account, err := h.accounts.GetByID(accountID)
	if err != nil || account == nil {
		h.logger.Error("get account for checkout", "account_id", accountID, "error", err)
		respondError(w, http.StatusInternalServerError, "internal error")
		return
	}

	customerID := ""
	if account.StripeCustomerID != nil {
		customerID = *account.StripeCustomerID
	}
	if customerID == "" {
		email := ""
		if account.Email != nil {
			email = *account.Email
		}
		customerID, err = h.payments.CreateCustomer(email, account.Username)
		if err != nil {
			h.logger.Error("create stripe customer", "account_id", accountID, "error", err)
			respondError(w, http.StatusInternalServerError, "failed to create customer")
			return
		}
		if err := h.accounts.SetStripeCustomerID(account.ID, customerID); err != nil {
			h.logger.Error("store stripe customer id", "account_id", accountID, "error", err)
		}
	}

	url, err := h.payments.CreateCheckoutSession(customerID, req.PriceID, account.ID)
	if err != nil {
		h.logger.Error("create checkout session", "account_id", accountID, "error", err)
		respondError(w, http.StatusInternalServerError, "failed to create checkout session")
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{"url": url})
}

// BillingPortal creates a Stripe billing portal session and returns the URL.
func (h *CheckoutHandler) BillingPortal(w http.ResponseWriter, r *http.Request) {
	accountID := AccountIDFromContext(r.Context())
	if accountID == 0 {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	account, err := h.accounts.GetByID(accountID)
	if err != nil || account == nil {
		respondError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if account.StripeCustomerID == nil {
		respondError(w, http.StatusBadRequest, "no billing account")
		return
	}

	returnURL := r.Header.Get("Referer")
	if returnURL == "" {
		returnURL = "/dashboard"
	}

	url, err := h.payments.CreateBillingPortalSession(*account.StripeCustomerID, returnURL)
	if err != nil {
		h.logger.Error("create billing portal session", "account_id", accountID, "error", err)
		respondError(w, http.StatusInternalServerError, "failed to create portal session")
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{"url": url})
}
