package model

import (
	"errors"
	"time"
)

// Plan identifiers for credit purchases.
const (
	PlanBasic    = "basic"
	PlanAdvanced = "advanced"
	PlanBusiness = "business"
)

// ErrUnknownPlan is returned when a plan ID is not in the catalog.
var ErrUnknownPlan = errors.New("unknown plan")

// Plan describes a purchasable bundle of credits.
type Plan struct {
	ID          string `json:"id"`
	Description string `json:"desc"`
	Credits     int64  `json:"credits"`
	// Amount is the price in minor currency units (cents).
	Amount int64 `json:"amount"`
}

// Plans is the purchasable catalog, cheapest first.
var Plans = []Plan{
	{ID: PlanBasic, Description: "Best for personal use.", Credits: 100, Amount: 1000},
	{ID: PlanAdvanced, Description: "Best for business use.", Credits: 500, Amount: 5000},
	{ID: PlanBusiness, Description: "Best for enterprise use.", Credits: 5000, Amount: 25000},
}

// LookupPlan finds a plan by ID.
func LookupPlan(id string) (Plan, error) {
	for _, p := range Plans {
		if p.ID == id {
			return p, nil
		}
	}
	return Plan{}, ErrUnknownPlan
}

// Transaction records a credit purchase.
// Payment stays false until a settlement step marks it paid; no such step exists here.
type Transaction struct {
	ID      string    `json:"id"`
	UserID  string    `json:"user_id"`
	Plan    string    `json:"plan"`
	Credits int64     `json:"credits"`
	Amount  int64     `json:"amount"`
	Payment bool      `json:"payment"`
	Date    time.Time `json:"date"`
}

// NewTransaction creates an unsettled transaction for a plan.
func NewTransaction(id, userID string, plan Plan, now time.Time) *Transaction {
	return &Transaction{
		ID:      id,
		UserID:  userID,
		Plan:    plan.ID,
		Credits: plan.Credits,
		Amount:  plan.Amount,
		Payment: false,
		Date:    now.UTC(),
	}
}
