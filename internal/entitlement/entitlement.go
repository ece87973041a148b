// Package entitlement answers "may this account perform one more
// generation on this channel right now". It always reads live account
// state and fails closed: any storage error produces a denial.
package entitlement

import (
	"errors"
	"fmt"
	"time"

	"github.com/gitscribe/gitscribe/internal/model"
	"github.com/gitscribe/gitscribe/internal/plan"
	"github.com/gitscribe/gitscribe/internal/store"
)

var (
	ErrAccountNotFound = errors.New("account not found")
	ErrUnknownChannel  = errors.New("unknown channel")
	ErrUnknownPlan     = errors.New("account plan not in catalog")
)

// Decision is the evaluation result. Usage and Limit are included so
// callers can render "3/10 used" without a second query. Limit is
// plan.Unlimited for uncapped channels.
type Decision struct {
	Allowed bool    `json:"allowed"`
	Usage   int     `json:"usage"`
	Limit   int     `json:"limit"`
	Plan    plan.ID `json:"plan"`
}

type Evaluator struct {
	accounts *store.AccountStore
	catalog  plan.Catalog
	web      usagePolicy
	api      usagePolicy
	now      func() time.Time
}

func NewEvaluator(accounts *store.AccountStore, events *store.EventStore, catalog plan.Catalog) *Evaluator {
	e := &Evaluator{
		accounts: accounts,
		catalog:  catalog,
		now:      time.Now,
	}
	e.web = &ledgerWindowPolicy{events: events, evaluator: e}
	e.api = counterPolicy{}
	return e
}

// Evaluate decides whether the account may consume one more generation on
// the channel. The returned Decision is deny on every error path.
func (e *Evaluator) Evaluate(accountID int64, ch model.Channel) (Decision, error) {
	deny := Decision{Allowed: false}
	if !ch.Valid() {
		return deny, fmt.Errorf("%w: %q", ErrUnknownChannel, ch)
	}

	account, err := e.accounts.GetByID(accountID)
	if err != nil {
		return deny, fmt.Errorf("evaluate entitlement: %w", err)
	}
	if account == nil {
		return deny, ErrAccountNotFound
	}
	deny.Plan = plan.ID(account.Plan)
	if account.DisabledAt != nil {
		return deny, nil
	}

	spec, ok := e.catalog.Lookup(plan.ID(account.Plan))
	if !ok {
		return deny, fmt.Errorf("%w: %q", ErrUnknownPlan, account.Plan)
	}

	policy := e.web
	if ch == model.ChannelAPI {
		policy = e.api
	}

	limit := policy.limit(account, spec)
	if limit == 0 {
		return Decision{Allowed: false, Usage: 0, Limit: 0, Plan: plan.ID(account.Plan)}, nil
	}

	usage, err := policy.usage(account)
	if err != nil {
		return deny, fmt.Errorf("evaluate entitlement: %w", err)
	}

	dec := Decision{
		Usage: usage,
		Limit: limit,
		Plan:  plan.ID(account.Plan),
	}
	if limit == plan.Unlimited {
		dec.Allowed = true
		return dec, nil
	}
	dec.Allowed = usage < limit
	return dec, nil
}

// usagePolicy is one of the two counting strategies: web usage is derived
// from the ledger over the current calendar month, API usage reads the
// persisted counter maintained by the usage recorder.
type usagePolicy interface {
	limit(a *model.Account, spec plan.Spec) int
	usage(a *model.Account) (int, error)
}

type ledgerWindowPolicy struct {
	events    *store.EventStore
	evaluator *Evaluator
}

func (p *ledgerWindowPolicy) limit(_ *model.Account, spec plan.Spec) int {
	return spec.Limits.Web
}

func (p *ledgerWindowPolicy) usage(a *model.Account) (int, error) {
	return p.events.CountWebSince(a.ID, monthStart(p.evaluator.now()))
}

type counterPolicy struct{}

// limit reads the persisted per-account limit, which is written only by
// plan transitions. The catalog value is applied to the row at transition
// time, so the two agree except mid-migration of plan economics.
func (counterPolicy) limit(a *model.Account, _ plan.Spec) int {
	return a.APICallsLimit
}

func (counterPolicy) usage(a *model.Account) (int, error) {
	return a.APICallsUsed, nil
}

// monthStart returns the first instant of the current calendar month in
// UTC. Using a fixed reference zone keeps the window boundary identical
// across evaluations within the same month.
func monthStart(now time.Time) time.Time {
	now = now.UTC()
	return time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
}
