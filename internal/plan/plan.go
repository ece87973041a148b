// Package plan holds the plan catalog and the Stripe price mapping. Both are
// injected configuration: limits live here, never inside evaluator logic.
package plan

import (
	"encoding/json"
	"fmt"
)

// ID is an internal plan identifier.
type ID string

const (
	Free         ID = "free"
	WebUnlimited ID = "web_unlimited"
	APIMetered   ID = "api_metered"
	Bundle       ID = "bundle"
)

// Unlimited marks a channel with no cap. It is only ever a catalog/response
// value; account rows never store it.
const Unlimited = -1

// Limits is the per-channel generation cap for a plan. Zero means the plan
// does not include the channel.
type Limits struct {
	Web int `json:"web"`
	API int `json:"api"`
}

type Spec struct {
	IsPro  bool   `json:"is_pro"`
	Limits Limits `json:"limits"`
}

// Catalog maps plan IDs to their entitlement spec.
type Catalog map[ID]Spec

func (c Catalog) Lookup(id ID) (Spec, bool) {
	s, ok := c[id]
	return s, ok
}

// DefaultCatalog returns the built-in plan economics, used when no catalog
// is configured in the environment.
func DefaultCatalog() Catalog {
	return Catalog{
		Free:         {IsPro: false, Limits: Limits{Web: 1, API: 0}},
		WebUnlimited: {IsPro: true, Limits: Limits{Web: Unlimited, API: 0}},
		APIMetered:   {IsPro: true, Limits: Limits{Web: 1, API: 100}},
		Bundle:       {IsPro: true, Limits: Limits{Web: Unlimited, API: 100}},
	}
}

// ParseCatalog decodes a JSON catalog, e.g.
// {"free":{"is_pro":false,"limits":{"web":1,"api":0}}}.
// An empty input returns the default catalog.
func ParseCatalog(raw string) (Catalog, error) {
	if raw == "" {
		return DefaultCatalog(), nil
	}
	var c Catalog
	if err := json.Unmarshal([]byte(raw), &c); err != nil {
		return nil, fmt.Errorf("parse plan catalog: %w", err)
	}
	if len(c) == 0 {
		return nil, fmt.Errorf("parse plan catalog: empty catalog")
	}
	if _, ok := c[Free]; !ok {
		return nil, fmt.Errorf("parse plan catalog: missing %q plan", Free)
	}
	return c, nil
}

// PriceMap maps Stripe price IDs to internal plan IDs.
type PriceMap map[string]ID

func (m PriceMap) Lookup(priceID string) (ID, bool) {
	id, ok := m[priceID]
	return id, ok
}

// ParsePriceMap decodes a JSON price mapping, e.g.
// {"price_1Abc":"api_metered","price_2Def":"bundle"}.
func ParsePriceMap(raw string) (PriceMap, error) {
	if raw == "" {
		return PriceMap{}, nil
	}
	var m PriceMap
	if err := json.Unmarshal([]byte(raw), &m); err != nil {
		return nil, fmt.Errorf("parse price map: %w", err)
	}
	return m, nil
}
