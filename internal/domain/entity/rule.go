package entity

import "time"

// Rule maps a user's normalized store name to a debit account
type Rule struct {
	ID           string     `json:"id"`
	UserID       string     `json:"user_id"`
	StoreNameKey string     `json:"store_name_key"`
	DebitAccount string     `json:"debit_account"`
	TaxCategory  *string    `json:"tax_category"`
	HitCount     int64      `json:"hit_count"`
	LastUsedAt   *time.Time `json:"last_used_at,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}
