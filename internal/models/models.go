package models

import "time"

type RequestType string

const (
	RequestTypeText     RequestType = "text"
	RequestTypeImage    RequestType = "image"
	RequestTypeVideo    RequestType = "video"
	RequestTypeAudio    RequestType = "audio"
	RequestTypeDocument RequestType = "document"
)

// User carries the per-user ledger state inline: wallet balance, free trial
// and premium entitlement fields. Purchased packages live in their own table.
type User struct {
	ID                int64
	Username          string
	FirstName         string
	LastName          string
	Language          string
	SelectedModel     string
	IsAdmin           bool
	WalletBalance     int64
	FreeRequestsLeft  int
	FreeExpiry        *time.Time
	PremiumExpiry     *time.Time
	PremiumDailyLimit int
	PremiumUsedToday  int
	LastPremiumReset  *time.Time
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// PremiumActive reports whether the premium entitlement covers the given day.
func (u *User) PremiumActive(today time.Time) bool {
	return u.PremiumExpiry != nil && !DateOnly(today).After(DateOnly(*u.PremiumExpiry))
}

// FreeTrialExpired reports whether the free trial cycle has lapsed. A user
// without an expiry date never received a trial and counts as expired.
func (u *User) FreeTrialExpired(today time.Time) bool {
	return u.FreeExpiry == nil || DateOnly(today).After(DateOnly(*u.FreeExpiry))
}

// DateOnly truncates a timestamp to its calendar day in UTC. All entitlement
// expiry and reset comparisons happen at day granularity.
func DateOnly(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// Package is a purchased, non-expiring bucket of credits scoped to a category.
// Packages of the same category stack; consumption drains the oldest first.
type Package struct {
	ID           int64
	UserID       int64
	Category     Category
	CreditsTotal int
	CreditsLeft  int
	CreatedAt    time.Time
}

// UsageEvent is an append-only audit row written for every successful consumption.
type UsageEvent struct {
	ID          int64
	UserID      int64
	ModelName   string
	RequestType RequestType
	Cost        int
	CreatedAt   time.Time
}

// APIKeyRecord is an admin-managed provider credential. An inactive or missing
// key makes every model of that service unavailable regardless of quota.
type APIKeyRecord struct {
	ServiceName string
	SecretValue string
	IsActive    bool
	AddedBy     int64
	AddedAt     time.Time
}

// UsageStat is an aggregate over usage events grouped by model and request type.
type UsageStat struct {
	UserID      int64
	ModelName   string
	RequestType RequestType
	Requests    int
	TotalCost   int
}
