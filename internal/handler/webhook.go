package handler

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	stripe "github.com/stripe/stripe-go/v82"

	"github.com/gitscribe/gitscribe/internal/model"
	"github.com/gitscribe/gitscribe/internal/payment"
	"github.com/gitscribe/gitscribe/internal/plan"
	"github.com/gitscribe/gitscribe/internal/store"
)

// WebhookHandler is the plan transition handler: it consumes verified
// Stripe lifecycle events and rewrites the account's plan/limit fields.
// It is the only writer of those fields.
type WebhookHandler struct {
	payments *payment.Client
	accounts *store.AccountStore
	catalog  plan.Catalog
	prices   plan.PriceMap
	logger   *slog.Logger
	now      func() time.Time
}

func NewWebhookHandler(
	pc *payment.Client,
	as *store.AccountStore,
	catalog plan.Catalog,
	prices plan.PriceMap,
	logger *slog.Logger,
) *WebhookHandler {
	return &WebhookHandler{
		payments: pc,
		accounts: as,
		catalog:  catalog,
		prices:   prices,
		logger:   logger,
		now:      time.Now,
	}
}

// HandleStripeWebhook verifies the event signature before any processing.
// Unverifiable events are rejected with no state change; Stripe owns
// redelivery.
func (h *WebhookHandler) HandleStripeWebhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, 65536))
	if err != nil {
		http.Error(w, "read body", http.StatusBadRequest)
		return
	}

	event, err := h.payments.ConstructWebhookEvent(body, r.Header.Get("Stripe-Signature"))
	if err != nil {
		h.logger.Warn("webhook signature verification failed", "error", err)
		http.Error(w, "invalid signature", http.StatusBadRequest)
		return
	}

	switch event.Type {
	case "checkout.session.completed":
		h.applyCheckoutCompleted(event)
	case "customer.subscription.updated":
		h.applySubscriptionUpdated(event)
	case "customer.subscription.deleted":
		h.applySubscriptionDeleted(event)
	}

	w.WriteHeader(http.StatusOK)
}

func (h *WebhookHandler) applyCheckoutCompleted(event stripe.Event) {
	var sess stripe.CheckoutSession
	if err := json.Unmarshal(event.Data.Raw, &sess); err != nil {
		h.logger.Error("unmarshal checkout session", "error", err)
		return
	}

	priceID := sess.Metadata["price_id"]
	planID, ok := h.prices.Lookup(priceID)
	if !ok {
		// Unknown price: never guess a plan. No entitlement change.
		h.logger.Error("checkout completed with unmapped price", "price_id", priceID, "event_id", event.ID)
		return
	}
	spec, ok := h.catalog.Lookup(planID)
	if !ok {
		h.logger.Error("price maps to plan missing from catalog", "plan", planID, "event_id", event.ID)
		return
	}

	account, err := h.resolveAccount(&sess)
	if err != nil {
		h.logger.Error("resolve account for checkout", "error", err)
		return
	}
	if account == nil {
		// Payment events never create accounts.
		h.logger.Error("checkout completed for unknown account", "event_id", event.ID)
		return
	}

	customerID := ""
	if sess.Customer != nil {
		customerID = sess.Customer.ID
	}
	subscriptionID := ""
	if sess.Subscription != nil {
		subscriptionID = sess.Subscription.ID
	}

	if err := h.accounts.ApplyPlan(
		account.ID, string(planID), spec.IsPro, spec.Limits.API,
		customerID, subscriptionID, h.now().UTC(),
	); err != nil {
		h.logger.Error("apply plan", "account_id", account.ID, "plan", planID, "error", err)
		return
	}

	h.logger.Info("plan upgraded", "account_id", account.ID, "plan", planID)
}

func (h *WebhookHandler) resolveAccount(sess *stripe.CheckoutSession) (*model.Account, error) {
	if sess.Customer != nil && sess.Customer.ID != "" {
		account, err := h.accounts.GetByStripeCustomerID(sess.Customer.ID)
		if err != nil || account != nil {
			return account, err
		}
	}
	// First checkout: the customer reference is not stored yet, fall back
	// to the account ID stamped on the session at checkout creation.
	if sess.ClientReferenceID != "" {
		id, err := strconv.ParseInt(sess.ClientReferenceID, 10, 64)
		if err != nil {
			return nil, nil
		}
		return h.accounts.GetByID(id)
	}
	return nil, nil
}

func (h *WebhookHandler) applySubscriptionUpdated(event stripe.Event) {
	var sub stripe.Subscription
	if err := json.Unmarshal(event.Data.Raw, &sub); err != nil {
		h.logger.Error("unmarshal subscription", "error", err)
		return
	}

	switch sub.Status {
	case stripe.SubscriptionStatusPastDue,
		stripe.SubscriptionStatusCanceled,
		stripe.SubscriptionStatusUnpaid:
		h.revertBySubscription(sub.ID, string(sub.Status))
	}
}

func (h *WebhookHandler) applySubscriptionDeleted(event stripe.Event) {
	var sub stripe.Subscription
	if err := json.Unmarshal(event.Data.Raw, &sub); err != nil {
		h.logger.Error("unmarshal subscription", "error", err)
		return
	}
	h.revertBySubscription(sub.ID, "deleted")
}

// revertBySubscription matches by the stored subscription reference, not
// by account ID, because these events arrive keyed by subscription.
func (h *WebhookHandler) revertBySubscription(subscriptionID, reason string) {
	account, err := h.accounts.GetByStripeSubscriptionID(subscriptionID)
	if err != nil {
		h.logger.Error("get account by subscription", "subscription_id", subscriptionID, "error", err)
		return
	}
	if account == nil {
		h.logger.Warn("subscription event for unknown subscription", "subscription_id", subscriptionID)
		return
	}

	if err := h.accounts.RevertToFree(account.ID, h.now().UTC()); err != nil {
		h.logger.Error("revert to free", "account_id", account.ID, "error", err)
		return
	}

	h.logger.Info("plan reverted to free", "account_id", account.ID, "reason", reason)
}
