package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/gitscribe/gitscribe/internal/model"
)

type AccountStore struct {
	db *sql.DB
}

func NewAccountStore(db *sql.DB) *AccountStore {
	return &AccountStore{db: db}
}

// Identity is the profile handed back by the OAuth provider on login.
type Identity struct {
	GitHubID  int64
	Username  string
	Email     string
	Name      string
	AvatarURL string
}

func scanAccount(scanner interface{ Scan(...any) error }) (*model.Account, error) {
	var a model.Account
	var email, name, avatar, custID, subID sql.NullString
	var upgradedAt, canceledAt, disabledAt sql.NullTime
	err := scanner.Scan(
		&a.ID, &a.GitHubID, &a.Username, &email, &name, &avatar,
		&a.Plan, &a.IsPro, &a.IsAdmin, &a.SurveyCompleted,
		&a.APICallsUsed, &a.APICallsLimit, &a.APICallsResetAt,
		&custID, &subID, &upgradedAt, &canceledAt, &disabledAt,
		&a.CreatedAt, &a.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if email.Valid {
		a.Email = &email.String
	}
	if name.Valid {
		a.Name = &name.String
	}
	if avatar.Valid {
		a.AvatarURL = &avatar.String
	}
	if custID.Valid {
		a.StripeCustomerID = &custID.String
	}
	if subID.Valid {
		a.StripeSubscriptionID = &subID.String
	}
	if upgradedAt.Valid {
		a.UpgradedAt = &upgradedAt.Time
	}
	if canceledAt.Valid {
		a.CanceledAt = &canceledAt.Time
	}
	if disabledAt.Valid {
		a.DisabledAt = &disabledAt.Time
	}
	return &a, nil
}

const accountCols = `id, github_id, username, email, name, avatar_url,
	plan, is_pro, is_admin, survey_completed,
	api_calls_used, api_calls_limit, api_calls_reset_at,
	stripe_customer_id, stripe_subscription_id, upgraded_at, canceled_at, disabled_at,
	created_at, updated_at`

// GetOrCreate resolves a provider identity to an account, creating it on
// first login. The upsert keys on github_id, so a second login with the
// same identity returns the same row and only refreshes profile fields.
func (s *AccountStore) GetOrCreate(ident Identity) (*model.Account, error) {
	now := time.Now().UTC()
	_, err := s.db.Exec(
		`INSERT INTO accounts (github_id, username, email, name, avatar_url, plan, api_calls_reset_at, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, 'free', ?, ?, ?)
		 ON CONFLICT(github_id) DO UPDATE SET
			username = excluded.username,
			email = COALESCE(excluded.email, accounts.email),
			name = COALESCE(excluded.name, accounts.name),
			avatar_url = COALESCE(excluded.avatar_url, accounts.avatar_url),
			updated_at = excluded.updated_at`,
		ident.GitHubID, ident.Username, nullString(ident.Email), nullString(ident.Name), nullString(ident.AvatarURL),
		now, now, now,
	)
	if err != nil {
		return nil, fmt.Errorf("upsert account: %w", err)
	}
	return s.GetByGitHubID(ident.GitHubID)
}

func (s *AccountStore) GetByID(id int64) (*model.Account, error) {
	row := s.db.QueryRow(`SELECT `+accountCols+` FROM accounts WHERE id = ?`, id)
	a, err := scanAccount(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get account: %w", err)
	}
	return a, nil
}

func (s *AccountStore) GetByGitHubID(githubID int64) (*model.Account, error) {
	row := s.db.QueryRow(`SELECT `+accountCols+` FROM accounts WHERE github_id = ?`, githubID)
	a, err := scanAccount(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get account by github id: %w", err)
	}
	return a, nil
}

func (s *AccountStore) GetByStripeCustomerID(customerID string) (*model.Account, error) {
	row := s.db.QueryRow(`SELECT `+accountCols+` FROM accounts WHERE stripe_customer_id = ?`, customerID)
	a, err := scanAccount(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get account by stripe customer: %w", err)
	}
	return a, nil
}

func (s *AccountStore) GetByStripeSubscriptionID(subscriptionID string) (*model.Account, error) {
	row := s.db.QueryRow(`SELECT `+accountCols+` FROM accounts WHERE stripe_subscription_id = ?`, subscriptionID)
	a, err := scanAccount(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get account by stripe subscription: %w", err)
	}
	return a, nil
}

func (s *AccountStore) SetStripeCustomerID(id int64, customerID string) error {
	_, err := s.db.Exec(
		`UPDATE accounts SET stripe_customer_id = ?, updated_at = ? WHERE id = ?`,
		customerID, time.Now().UTC(), id,
	)
	if err != nil {
		return fmt.Errorf("set stripe customer id: %w", err)
	}
	return nil
}

// ApplyPlan writes the full plan transition for a completed checkout.
// The usage counter is reset to the absolute value 0, which keeps replays
// of the same event idempotent.
func (s *AccountStore) ApplyPlan(id int64, planID string, isPro bool, apiLimit int, customerID, subscriptionID string, now time.Time) error {
	_, err := s.db.Exec(
		`UPDATE accounts SET
			plan = ?, is_pro = ?, api_calls_limit = ?,
			api_calls_used = 0, api_calls_reset_at = ?,
			stripe_customer_id = ?, stripe_subscription_id = ?,
			upgraded_at = ?, canceled_at = NULL, updated_at = ?
		 WHERE id = ?`,
		planID, isPro, apiLimit, now, customerID, subscriptionID, now, now, id,
	)
	if err != nil {
		return fmt.Errorf("apply plan: %w", err)
	}
	return nil
}

// RevertToFree is the cancellation transition. The subscription reference
// is kept so late-arriving events for the same subscription still match.
func (s *AccountStore) RevertToFree(id int64, now time.Time) error {
	_, err := s.db.Exec(
		`UPDATE accounts SET
			plan = 'free', is_pro = 0, api_calls_limit = 0,
			canceled_at = ?, updated_at = ?
		 WHERE id = ?`,
		now, now, id,
	)
	if err != nil {
		return fmt.Errorf("revert to free: %w", err)
	}
	return nil
}

func (s *AccountStore) SetSurveyCompleted(id int64) error {
	_, err := s.db.Exec(
		`UPDATE accounts SET survey_completed = 1, updated_at = ? WHERE id = ?`,
		time.Now().UTC(), id,
	)
	if err != nil {
		return fmt.Errorf("set survey completed: %w", err)
	}
	return nil
}

// Disable soft-disables an account. Accounts are never deleted.
func (s *AccountStore) Disable(id int64, now time.Time) error {
	_, err := s.db.Exec(
		`UPDATE accounts SET disabled_at = ?, updated_at = ? WHERE id = ?`,
		now, now, id,
	)
	if err != nil {
		return fmt.Errorf("disable account: %w", err)
	}
	return nil
}

func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
