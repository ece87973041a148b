package store

import (
	"testing"
	"time"
)

func TestAccountGetOrCreate(t *testing.T) {
	s := NewAccountStore(setupTestDB(t))

	a, err := s.GetOrCreate(testIdentity(42, "alice"))
	if err != nil {
		t.Fatalf("get or create: %v", err)
	}
	if a.GitHubID != 42 {
		t.Errorf("github_id = %d, want 42", a.GitHubID)
	}
	if a.Username != "alice" {
		t.Errorf("username = %q, want %q", a.Username, "alice")
	}
	if a.Plan != "free" {
		t.Errorf("plan = %q, want %q", a.Plan, "free")
	}
	if a.APICallsUsed != 0 || a.APICallsLimit != 0 {
		t.Errorf("counters = %d/%d, want 0/0", a.APICallsUsed, a.APICallsLimit)
	}
}

func TestAccountGetOrCreateIdempotent(t *testing.T) {
	s := NewAccountStore(setupTestDB(t))

	first, err := s.GetOrCreate(testIdentity(42, "alice"))
	if err != nil {
		t.Fatalf("first login: %v", err)
	}
	second, err := s.GetOrCreate(testIdentity(42, "alice-renamed"))
	if err != nil {
		t.Fatalf("second login: %v", err)
	}

	if first.ID != second.ID {
		t.Errorf("second login created a new account: %d != %d", first.ID, second.ID)
	}
	if second.Username != "alice-renamed" {
		t.Errorf("username not refreshed: %q", second.Username)
	}
}

func TestAccountGetByIDNotFound(t *testing.T) {
	s := NewAccountStore(setupTestDB(t))

	a, err := s.GetByID(999)
	if err != nil {
		t.Fatalf("get by id: %v", err)
	}
	if a != nil {
		t.Error("expected nil for nonexistent id")
	}
}

func TestAccountApplyPlan(t *testing.T) {
	s := NewAccountStore(setupTestDB(t))
	created := createTestAccount(t, s, 42, "alice")

	now := time.Date(2026, 8, 10, 12, 0, 0, 0, time.UTC)
	if err := s.ApplyPlan(created.ID, "api_metered", true, 100, "cus_123", "sub_456", now); err != nil {
		t.Fatalf("apply plan: %v", err)
	}

	a, _ := s.GetByID(created.ID)
	if a.Plan != "api_metered" {
		t.Errorf("plan = %q, want %q", a.Plan, "api_metered")
	}
	if !a.IsPro {
		t.Error("expected is_pro")
	}
	if a.APICallsLimit != 100 {
		t.Errorf("api_calls_limit = %d, want 100", a.APICallsLimit)
	}
	if a.APICallsUsed != 0 {
		t.Errorf("api_calls_used = %d, want 0", a.APICallsUsed)
	}
	if a.StripeCustomerID == nil || *a.StripeCustomerID != "cus_123" {
		t.Errorf("stripe_customer_id = %v, want cus_123", a.StripeCustomerID)
	}
	if a.StripeSubscriptionID == nil || *a.StripeSubscriptionID != "sub_456" {
		t.Errorf("stripe_subscription_id = %v, want sub_456", a.StripeSubscriptionID)
	}
	if a.UpgradedAt == nil {
		t.Error("expected upgraded_at to be set")
	}
	if a.CanceledAt != nil {
		t.Error("expected canceled_at to be cleared")
	}
}

func TestAccountApplyPlanResetsUsage(t *testing.T) {
	db := setupTestDB(t)
	s := NewAccountStore(db)
	created := createTestAccount(t, s, 42, "alice")

	if _, err := db.Exec(`UPDATE accounts SET api_calls_used = 37 WHERE id = ?`, created.ID); err != nil {
		t.Fatalf("seed usage: %v", err)
	}

	now := time.Now().UTC()
	if err := s.ApplyPlan(created.ID, "bundle", true, 100, "cus_1", "sub_1", now); err != nil {
		t.Fatalf("apply plan: %v", err)
	}

	a, _ := s.GetByID(created.ID)
	if a.APICallsUsed != 0 {
		t.Errorf("api_calls_used = %d, want 0 after transition", a.APICallsUsed)
	}
}

func TestAccountRevertToFree(t *testing.T) {
	s := NewAccountStore(setupTestDB(t))
	created := createTestAccount(t, s, 42, "alice")

	now := time.Now().UTC()
	if err := s.ApplyPlan(created.ID, "bundle", true, 100, "cus_1", "sub_1", now); err != nil {
		t.Fatalf("apply plan: %v", err)
	}
	if err := s.RevertToFree(created.ID, now); err != nil {
		t.Fatalf("revert to free: %v", err)
	}

	a, _ := s.GetByID(created.ID)
	if a.Plan != "free" {
		t.Errorf("plan = %q, want free", a.Plan)
	}
	if a.IsPro {
		t.Error("expected is_pro false")
	}
	if a.APICallsLimit != 0 {
		t.Errorf("api_calls_limit = %d, want 0", a.APICallsLimit)
	}
	if a.CanceledAt == nil {
		t.Error("expected canceled_at to be set")
	}
	// Subscription reference survives so late events still match.
	if a.StripeSubscriptionID == nil || *a.StripeSubscriptionID != "sub_1" {
		t.Errorf("stripe_subscription_id = %v, want sub_1", a.StripeSubscriptionID)
	}
}

func TestAccountGetByStripeSubscriptionID(t *testing.T) {
	s := NewAccountStore(setupTestDB(t))
	created := createTestAccount(t, s, 42, "alice")

	if err := s.ApplyPlan(created.ID, "bundle", true, 100, "cus_1", "sub_xyz", time.Now().UTC()); err != nil {
		t.Fatalf("apply plan: %v", err)
	}

	a, err := s.GetByStripeSubscriptionID("sub_xyz")
	if err != nil {
		t.Fatalf("get by subscription: %v", err)
	}
	if a == nil || a.ID != created.ID {
		t.Fatalf("expected account %d, got %v", created.ID, a)
	}

	missing, err := s.GetByStripeSubscriptionID("sub_unknown")
	if err != nil {
		t.Fatalf("get unknown subscription: %v", err)
	}
	if missing != nil {
		t.Error("expected nil for unknown subscription")
	}
}

func TestAccountDisable(t *testing.T) {
	s := NewAccountStore(setupTestDB(t))
	created := createTestAccount(t, s, 42, "alice")

	if err := s.Disable(created.ID, time.Now().UTC()); err != nil {
		t.Fatalf("disable: %v", err)
	}

	a, _ := s.GetByID(created.ID)
	if a == nil {
		t.Fatal("disabled account must still exist")
	}
	if a.DisabledAt == nil {
		t.Error("expected disabled_at to be set")
	}
}

func TestAccountSetSurveyCompleted(t *testing.T) {
	s := NewAccountStore(setupTestDB(t))
	created := createTestAccount(t, s, 42, "alice")

	if err := s.SetSurveyCompleted(created.ID); err != nil {
		t.Fatalf("set survey completed: %v", err)
	}
	a, _ := s.GetByID(created.ID)
	if !a.SurveyCompleted {
		t.Error("expected survey_completed")
	}
}
