package models

import "time"

// Payment request statuses. Paid and failed are terminal: the webhook
// reconciler only ever transitions rows out of pending.
const (
	PaymentStatusPending = "pending"
	PaymentStatusPaid    = "paid"
	PaymentStatusOverdue = "overdue"
	PaymentStatusFailed  = "failed"
)

// PaymentRequest is one resident's rent obligation for one billing period.
// Rows are never deleted; later periods supersede them.
type PaymentRequest struct {
	BaseModel

	HouseholdID string `gorm:"type:uuid;not null;index;uniqueIndex:idx_payment_user_period" json:"household_id"`
	UserID      string `gorm:"type:uuid;not null;index;uniqueIndex:idx_payment_user_period" json:"user_id"`

	AmountCents int64     `gorm:"not null" json:"amount_cents"`
	Currency    string    `gorm:"type:varchar(8);not null" json:"currency"`
	DueDate     time.Time `gorm:"not null;index" json:"due_date"`

	// Period is the calendar month of DueDate, formatted "2006-01". The
	// composite unique index makes a second batch for the same household and
	// month fail at the storage layer even when two generators race.
	Period string `gorm:"type:varchar(7);not null;uniqueIndex:idx_payment_user_period" json:"period"`

	Status string     `gorm:"type:varchar(16);not null;default:'pending';index" json:"status"`
	PaidAt *time.Time `json:"paid_at,omitempty"`

	// Gateway identifiers. The order id is the only value webhook events are
	// matched against; the transaction id is recorded on the first terminal
	// write and never overwritten.
	GatewayOrderID *string `gorm:"index" json:"gateway_order_id,omitempty"`
	GatewayTxnID   *string `json:"gateway_txn_id,omitempty"`

	// CheckoutToken is a live gateway session credential. It is returned once
	// to the paying resident and never serialised.
	CheckoutToken *string `json:"-"`

	Household *Household `gorm:"foreignKey:HouseholdID" json:"-"`
	User      *User      `gorm:"foreignKey:UserID" json:"-"`
}

// Terminal reports whether the status accepts no further webhook transitions.
func (p *PaymentRequest) Terminal() bool {
	return p.Status == PaymentStatusPaid || p.Status == PaymentStatusFailed
}
