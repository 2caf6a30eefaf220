// Package model defines the data models for the Telegram shop bot.
package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Account represents a user's economic identity in the shop.
// Balance and TotalSpent are written only through the ledger.
type Account struct {
	ID               int64           `db:"id"`
	Username         string          `db:"username"`
	FullName         string          `db:"full_name"`
	Balance          decimal.Decimal `db:"balance"`
	TotalSpent       decimal.Decimal `db:"total_spent"`
	ReferrerID       *int64          `db:"referrer_id"`
	Banned           bool            `db:"banned"`
	LastDailyClaim   *time.Time      `db:"last_daily_claim"`
	LastScratchClaim *time.Time      `db:"last_scratch_claim"`
	JoinedAt         time.Time       `db:"joined_at"`
	UpdatedAt        time.Time       `db:"updated_at"`
}

// Transaction is an append-only ledger row. Positive amounts are credits,
// negative amounts are debits. Rows are immutable once written; the sum of
// an account's transactions equals its current balance.
type Transaction struct {
	ID          int64           `db:"id"`
	AccountID   int64           `db:"account_id"`
	Amount      decimal.Decimal `db:"amount"`
	Kind        string          `db:"kind"`
	Description *string         `db:"description"`
	CreatedAt   time.Time       `db:"created_at"`
}

// Transaction kinds for categorizing balance changes.
const (
	TxKindReferral    = "referral"     // Signup referral bonus for the referrer
	TxKindDaily       = "daily"        // Daily bonus claim
	TxKindScratch     = "scratch"      // Scratch card win
	TxKindTask        = "task"         // Task completion reward
	TxKindPromo       = "promo"        // Promo code redemption
	TxKindPurchase    = "purchase"     // Product purchase debit
	TxKindAdminAdjust = "admin-adjust" // Manual admin balance adjustment
)

// Category groups products in the shop.
type Category struct {
	ID   int64  `db:"id"`
	Name string `db:"name"`
}

// Fulfillment types describing how a product is delivered.
const (
	FulfillmentDigital  = "digital"  // Content is sent as text after purchase
	FulfillmentFile     = "file"     // Content is a stored file reference
	FulfillmentPhysical = "physical" // Requires manual admin handling
)

// Product is a purchasable item. Stock of -1 means unlimited.
type Product struct {
	ID          int64           `db:"id"`
	CategoryID  int64           `db:"category_id"`
	Type        string          `db:"type"`
	Name        string          `db:"name"`
	Description string          `db:"description"`
	Price       decimal.Decimal `db:"price"`
	Content     string          `db:"content"`
	Stock       int             `db:"stock"`
}

// UnlimitedStock is the sentinel stock value for products without a
// bounded inventory. Purchases never mutate the stock of such products.
const UnlimitedStock = -1

// Unlimited reports whether the product has unbounded stock.
func (p *Product) Unlimited() bool {
	return p.Stock == UnlimitedStock
}

// Order statuses. Status only moves forward: pending orders become
// delivered or rejected; delivered and rejected are terminal.
const (
	OrderPending   = "pending"
	OrderDelivered = "delivered"
	OrderRejected  = "rejected"
)

// Order records a purchase and its delivery state. FulfillmentData holds
// the delivered content for digital/file orders, or the buyer-supplied
// shipping/manual note for physical ones.
type Order struct {
	ID              int64     `db:"id"`
	AccountID       int64     `db:"account_id"`
	ProductID       int64     `db:"product_id"`
	Status          string    `db:"status"`
	FulfillmentData string    `db:"fulfillment_data"`
	CreatedAt       time.Time `db:"created_at"`

	// ProductName is populated by listing queries that join products.
	ProductName string `db:"-"`
}

// Promo is a redeemable code. MaxUsage of -1 means unbounded.
type Promo struct {
	Code      string          `db:"code"`
	Reward    decimal.Decimal `db:"reward"`
	MaxUsage  int             `db:"max_usage"`
	UsedCount int             `db:"used_count"`
	ExpiresAt *time.Time      `db:"expires_at"`
}

// UnlimitedUsage is the sentinel max_usage value for promo codes without
// a redemption cap.
const UnlimitedUsage = -1

// Task is a micro-task users complete once for a reward. The reward
// amount recorded at completion time is final; later edits do not
// retroactively adjust past payouts.
type Task struct {
	ID          int64           `db:"id"`
	Description string          `db:"description"`
	Link        string          `db:"link"`
	Reward      decimal.Decimal `db:"reward"`
}

// ShopStats aggregates storefront-wide numbers for the admin panel.
type ShopStats struct {
	TotalAccounts   int64
	CompletedOrders int64
	Revenue         decimal.Decimal
	TotalBalance    decimal.Decimal
}
