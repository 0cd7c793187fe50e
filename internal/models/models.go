package models

import (
	"time"
)

type OutcomeStatus string

const (
	OutcomeWon  OutcomeStatus = "won"
	OutcomeLost OutcomeStatus = "lost"
)

type RedemptionStatus string

const (
	RedemptionPending  RedemptionStatus = "pending"
	RedemptionRedeemed RedemptionStatus = "redeemed"
)

type User struct {
	ID            int64     `json:"id"`
	Email         string    `json:"email"`
	EmailVerified bool      `json:"emailVerified"`
	HasSpun       bool      `json:"hasSpun"`
	CreatedAt     time.Time `json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

// Prize is a wheel item. QuantityTotal nil means unlimited stock.
type Prize struct {
	ID               int64     `json:"id"`
	Title            string    `json:"title"`
	Weight           float64   `json:"weight"`
	QuantityTotal    *int64    `json:"quantityTotal"`
	QuantityRedeemed int64     `json:"quantityRedeemed"`
	Active           bool      `json:"active"`
	CreatedAt        time.Time `json:"createdAt"`
	UpdatedAt        time.Time `json:"updatedAt"`
}

// Remaining reports the units left; ok is false for unlimited prizes.
func (p Prize) Remaining() (n int64, ok bool) {
	if p.QuantityTotal == nil {
		return 0, false
	}
	left := *p.QuantityTotal - p.QuantityRedeemed
	if left < 0 {
		left = 0
	}
	return left, true
}

func (p Prize) Exhausted() bool {
	left, limited := p.Remaining()
	return limited && left == 0
}

func (p Prize) Available() bool {
	return p.Active && !p.Exhausted()
}

type SpinOutcome struct {
	ID               int64             `json:"id"`
	UserID           int64             `json:"userId"`
	PrizeID          *int64            `json:"prizeId"`
	PrizeTitle       string            `json:"prizeTitle,omitempty"`
	OutcomeStatus    OutcomeStatus     `json:"outcomeStatus"`
	RedemptionToken  *string           `json:"redemptionToken,omitempty"`
	RedemptionStatus *RedemptionStatus `json:"redemptionStatus,omitempty"`
	RedeemedBy       *int64            `json:"redeemedBy,omitempty"`
	RedeemedAt       *time.Time        `json:"redeemedAt,omitempty"`
	ExpiresAt        *time.Time        `json:"expiresAt,omitempty"`
	CreatedAt        time.Time         `json:"createdAt"`
}

func (o SpinOutcome) Won() bool {
	return o.OutcomeStatus == OutcomeWon
}

func (o SpinOutcome) Redeemed() bool {
	return o.RedemptionStatus != nil && *o.RedemptionStatus == RedemptionRedeemed
}

// Expired is true once ExpiresAt has passed. Outcomes without an expiry never expire.
func (o SpinOutcome) Expired(now time.Time) bool {
	return o.ExpiresAt != nil && !now.Before(*o.ExpiresAt)
}

// OutcomeWithUser joins an outcome to the owner's contact address for vendor and export views.
type OutcomeWithUser struct {
	SpinOutcome
	UserEmail  string  `json:"userEmail"`
	VendorName *string `json:"vendorName,omitempty"`
}

type Vendor struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	Location  string    `json:"location"`
	PINHash   string    `json:"-"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"createdAt"`
}

type OTPChallenge struct {
	Email     string    `json:"email"`
	Secret    string    `json:"-"`
	Attempts  int       `json:"attempts"`
	ExpiresAt time.Time `json:"expiresAt"`
	CreatedAt time.Time `json:"createdAt"`
}

type HourlySummary struct {
	HourLabel string `json:"hour"`
	Won       int32  `json:"won"`
	Lost      int32  `json:"lost"`
	Redeemed  int32  `json:"redeemed"`
}

type SpinOverview struct {
	Total    int32 `json:"total"`
	Won      int32 `json:"won"`
	Lost     int32 `json:"lost"`
	Redeemed int32 `json:"redeemed"`
	Pending  int32 `json:"pending"`
}

type InventoryLine struct {
	PrizeID          int64  `json:"prizeId"`
	Title            string `json:"title"`
	Active           bool   `json:"active"`
	QuantityTotal    *int64 `json:"quantityTotal"`
	QuantityRedeemed int64  `json:"quantityRedeemed"`
	Remaining        *int64 `json:"remaining"`
	Redeemed         int64  `json:"redeemed"`
}
