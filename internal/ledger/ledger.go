// Package ledger is the single authority over per-user entitlements: who may
// make a request, which bucket pays for it, and how wallet money turns into
// entitlements. All mutations for one user are serialized behind a per-user
// lock, and every storage debit is conditional, so no bucket can be taken
// below zero even by concurrent callers.
package ledger

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/NaJiKuN/AIPoweredProBot/internal/models"
)

type UserStore interface {
	FindByID(ctx context.Context, userID int64) (*models.User, error)
}

type BucketStore interface {
	RefreshFreeTrial(ctx context.Context, userID int64, requests int, expiry time.Time) error
	DebitFreeTrial(ctx context.Context, userID int64, cost int, today time.Time) (bool, error)
	CreditFreeTrial(ctx context.Context, userID int64, amount int) error
	ResetPremiumDay(ctx context.Context, userID int64, today time.Time) error
	DebitPremium(ctx context.Context, userID int64, cost int, today time.Time) (bool, error)
	CreditPremium(ctx context.Context, userID int64, amount int) error
	GrantPremium(ctx context.Context, userID int64, expiry time.Time, dailyLimit int) error
	AddPackage(ctx context.Context, userID int64, category models.Category, credits int) error
	OpenPackages(ctx context.Context, userID int64, category models.Category) ([]models.Package, error)
	AllPackages(ctx context.Context, userID int64) ([]models.Package, error)
	DebitPackage(ctx context.Context, packageID int64, cost int) (bool, error)
	CreditPackage(ctx context.Context, packageID int64, amount int) error
}

type WalletStore interface {
	Debit(ctx context.Context, userID int64, amount int64) (bool, error)
	Credit(ctx context.Context, userID int64, amount int64) error
	CreditOnce(ctx context.Context, key string, userID int64, amount int64) (bool, error)
	ApplyOnce(ctx context.Context, key string, userID int64) (bool, error)
}

type UsageLog interface {
	Log(ctx context.Context, ev models.UsageEvent) error
}

// TrialPolicy is the free allotment granted at first contact and restored
// once per cycle after expiry.
type TrialPolicy struct {
	Requests int
	Days     int
}

type Ledger struct {
	log     *slog.Logger
	users   UserStore
	buckets BucketStore
	wallet  WalletStore
	usage   UsageLog
	trial   TrialPolicy
	locks   *userLocks
	now     func() time.Time
}

func New(log *slog.Logger, users UserStore, buckets BucketStore, wallet WalletStore, usage UsageLog, trial TrialPolicy) *Ledger {
	return &Ledger{
		log:     log,
		users:   users,
		buckets: buckets,
		wallet:  wallet,
		usage:   usage,
		trial:   trial,
		locks:   newUserLocks(),
		now:     time.Now,
	}
}

// Bucket identifies which allowance paid for a request.
type Bucket string

const (
	BucketAdmin     Bucket = "admin"
	BucketFreeTrial Bucket = "free_trial"
	BucketPremium   Bucket = "premium"
	BucketPackage   Bucket = "package"
)

// Receipt records a successful consumption so a provider-side failure can be
// refunded to the exact bucket it was taken from.
type Receipt struct {
	UserID      int64
	Bucket      Bucket
	PackageID   int64
	ModelName   string
	RequestType models.RequestType
	Cost        int
}

// TryConsume decides whether the user may make this request and debits the
// paying bucket. The priority order is fixed: admins pass for free, then the
// free trial, then the premium daily allowance, then a package in the model's
// category (oldest first). It returns ErrUserNotFound for unknown users and
// ErrInsufficientQuota when no bucket can cover the cost.
func (l *Ledger) TryConsume(ctx context.Context, userID int64, modelName string, requestType models.RequestType, cost int) (*Receipt, error) {
	if cost <= 0 {
		return nil, fmt.Errorf("cost must be positive, got %d", cost)
	}

	unlock := l.locks.lock(userID)
	defer unlock()

	user, err := l.users.FindByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("load user: %w", err)
	}
	if user == nil {
		return nil, ErrUserNotFound
	}

	today := models.DateOnly(l.now().UTC())
	receipt := &Receipt{UserID: userID, ModelName: modelName, RequestType: requestType, Cost: cost}

	if user.IsAdmin {
		receipt.Bucket = BucketAdmin
		l.logUsage(ctx, receipt)
		return receipt, nil
	}

	// Free trial: an expired cycle is restored to the full allotment before
	// the debit is attempted.
	if user.FreeExpiry != nil {
		if user.FreeTrialExpired(today) {
			expiry := today.AddDate(0, 0, l.trial.Days)
			if err := l.buckets.RefreshFreeTrial(ctx, userID, l.trial.Requests, expiry); err != nil {
				return nil, fmt.Errorf("refresh free trial: %w", err)
			}
		}
		ok, err := l.buckets.DebitFreeTrial(ctx, userID, cost, today)
		if err != nil {
			return nil, fmt.Errorf("debit free trial: %w", err)
		}
		if ok {
			receipt.Bucket = BucketFreeTrial
			l.logUsage(ctx, receipt)
			return receipt, nil
		}
	}

	// Premium: the daily counter resets lazily, at most once per calendar day.
	if user.PremiumActive(today) {
		if user.LastPremiumReset == nil || models.DateOnly(*user.LastPremiumReset).Before(today) {
			if err := l.buckets.ResetPremiumDay(ctx, userID, today); err != nil {
				return nil, fmt.Errorf("reset premium day: %w", err)
			}
		}
		ok, err := l.buckets.DebitPremium(ctx, userID, cost, today)
		if err != nil {
			return nil, fmt.Errorf("debit premium: %w", err)
		}
		if ok {
			receipt.Bucket = BucketPremium
			l.logUsage(ctx, receipt)
			return receipt, nil
		}
	}

	// Packages: only models with a category can draw from one.
	if category := models.CategoryForModel(modelName); category != models.CategoryNone {
		packages, err := l.buckets.OpenPackages(ctx, userID, category)
		if err != nil {
			return nil, fmt.Errorf("list packages: %w", err)
		}
		for _, pkg := range packages {
			if pkg.CreditsLeft < cost {
				continue
			}
			ok, err := l.buckets.DebitPackage(ctx, pkg.ID, cost)
			if err != nil {
				return nil, fmt.Errorf("debit package: %w", err)
			}
			if ok {
				receipt.Bucket = BucketPackage
				receipt.PackageID = pkg.ID
				l.logUsage(ctx, receipt)
				return receipt, nil
			}
		}
	}

	return nil, ErrInsufficientQuota
}

// Refund credits a consumed request back to the bucket it was taken from.
// Used when the provider call fails after a successful consume. Admin
// receipts have nothing to refund.
func (l *Ledger) Refund(ctx context.Context, receipt *Receipt) error {
	if receipt == nil || receipt.Bucket == BucketAdmin {
		return nil
	}

	unlock := l.locks.lock(receipt.UserID)
	defer unlock()

	switch receipt.Bucket {
	case BucketFreeTrial:
		if err := l.buckets.CreditFreeTrial(ctx, receipt.UserID, receipt.Cost); err != nil {
			return fmt.Errorf("refund free trial: %w", err)
		}
	case BucketPremium:
		if err := l.buckets.CreditPremium(ctx, receipt.UserID, receipt.Cost); err != nil {
			return fmt.Errorf("refund premium: %w", err)
		}
	case BucketPackage:
		if err := l.buckets.CreditPackage(ctx, receipt.PackageID, receipt.Cost); err != nil {
			return fmt.Errorf("refund package: %w", err)
		}
	default:
		return fmt.Errorf("unknown bucket %q", receipt.Bucket)
	}

	l.log.Info("request refunded", "user", receipt.UserID, "bucket", receipt.Bucket, "cost", receipt.Cost)
	return nil
}

// Grant is the entitlement side of a purchase, applied after the wallet debit.
type Grant func(ctx context.Context, userID int64) error

// PremiumGrant extends premium for the given days at the given daily limit.
func (l *Ledger) PremiumGrant(days, dailyLimit int) Grant {
	return func(ctx context.Context, userID int64) error {
		expiry := models.DateOnly(l.now().UTC()).AddDate(0, 0, days)
		return l.buckets.GrantPremium(ctx, userID, expiry, dailyLimit)
	}
}

// PackageGrant adds a credit package in the given category.
func (l *Ledger) PackageGrant(category models.Category, credits int) Grant {
	return func(ctx context.Context, userID int64) error {
		return l.buckets.AddPackage(ctx, userID, category, credits)
	}
}

// PurchaseReceipt confirms a completed wallet purchase.
type PurchaseReceipt struct {
	ID        string
	UserID    int64
	Price     int64
	CreatedAt time.Time
}

// Purchase debits the wallet and applies the grant. A wallet that cannot
// cover the price fails with ErrInsufficientBalance and mutates nothing.
// A grant that fails after the debit triggers a compensating wallet credit
// and surfaces as *GrantError.
func (l *Ledger) Purchase(ctx context.Context, userID int64, price int64, grant Grant) (*PurchaseReceipt, error) {
	if price <= 0 {
		return nil, fmt.Errorf("price must be positive, got %d", price)
	}

	unlock := l.locks.lock(userID)
	defer unlock()

	user, err := l.users.FindByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("load user: %w", err)
	}
	if user == nil {
		return nil, ErrUserNotFound
	}

	ok, err := l.wallet.Debit(ctx, userID, price)
	if err != nil {
		return nil, fmt.Errorf("debit wallet: %w", err)
	}
	if !ok {
		return nil, ErrInsufficientBalance
	}

	if err := grant(ctx, userID); err != nil {
		if cerr := l.wallet.Credit(ctx, userID, price); cerr != nil {
			l.log.Error("compensating wallet credit failed", "user", userID, "price", price, "err", cerr)
		}
		l.log.Error("entitlement grant failed after wallet debit", "user", userID, "price", price, "err", err)
		return nil, &GrantError{Err: err}
	}

	return &PurchaseReceipt{
		ID:        uuid.NewString(),
		UserID:    userID,
		Price:     price,
		CreatedAt: l.now().UTC(),
	}, nil
}

// CreditWallet adds funds to the wallet. With a transaction id the credit is
// applied at most once; a replayed confirmation reports applied=false and is
// not an error. Admin credits may pass an empty txID.
func (l *Ledger) CreditWallet(ctx context.Context, userID int64, amount int64, txID string) (bool, error) {
	if amount <= 0 {
		return false, fmt.Errorf("amount must be positive, got %d", amount)
	}

	unlock := l.locks.lock(userID)
	defer unlock()

	if err := l.requireUser(ctx, userID); err != nil {
		return false, err
	}

	if txID == "" {
		if err := l.wallet.Credit(ctx, userID, amount); err != nil {
			return false, fmt.Errorf("credit wallet: %w", err)
		}
		return true, nil
	}

	applied, err := l.wallet.CreditOnce(ctx, "wallet:"+txID, userID, amount)
	if err != nil {
		return false, fmt.Errorf("credit wallet: %w", err)
	}
	if !applied {
		l.log.Info("duplicate wallet credit ignored", "user", userID, "tx", txID)
	}
	return applied, nil
}

// GrantFreeTrial resets the free trial to the given allotment.
func (l *Ledger) GrantFreeTrial(ctx context.Context, userID int64, requests, days int, key string) error {
	unlock := l.locks.lock(userID)
	defer unlock()

	if err := l.requireUser(ctx, userID); err != nil {
		return err
	}
	applied, err := l.applyOnce(ctx, "trial:"+key, key, userID)
	if err != nil || !applied {
		return err
	}
	expiry := models.DateOnly(l.now().UTC()).AddDate(0, 0, days)
	if err := l.buckets.RefreshFreeTrial(ctx, userID, requests, expiry); err != nil {
		return fmt.Errorf("grant free trial: %w", err)
	}
	return nil
}

// GrantPremium starts or extends premium from today.
func (l *Ledger) GrantPremium(ctx context.Context, userID int64, days, dailyLimit int, key string) error {
	unlock := l.locks.lock(userID)
	defer unlock()

	if err := l.requireUser(ctx, userID); err != nil {
		return err
	}
	applied, err := l.applyOnce(ctx, "premium:"+key, key, userID)
	if err != nil || !applied {
		return err
	}
	expiry := models.DateOnly(l.now().UTC()).AddDate(0, 0, days)
	if err := l.buckets.GrantPremium(ctx, userID, expiry, dailyLimit); err != nil {
		return fmt.Errorf("grant premium: %w", err)
	}
	return nil
}

// AddPackage credits a purchased package bucket.
func (l *Ledger) AddPackage(ctx context.Context, userID int64, category models.Category, credits int, key string) error {
	if credits <= 0 {
		return fmt.Errorf("credits must be positive, got %d", credits)
	}

	unlock := l.locks.lock(userID)
	defer unlock()

	if err := l.requireUser(ctx, userID); err != nil {
		return err
	}
	applied, err := l.applyOnce(ctx, "package:"+key, key, userID)
	if err != nil || !applied {
		return err
	}
	if err := l.buckets.AddPackage(ctx, userID, category, credits); err != nil {
		return fmt.Errorf("add package: %w", err)
	}
	return nil
}

// Status is the consolidated entitlement view used by /status and the admin
// panel. Reading it performs the same lazy maintenance as consumption: an
// expired trial is restored and a stale premium day counter is reset.
type Status struct {
	UserID            int64
	IsAdmin           bool
	Language          string
	SelectedModel     string
	WalletBalance     int64
	FreeRequestsLeft  int
	FreeExpiry        *time.Time
	PremiumActive     bool
	PremiumExpiry     *time.Time
	PremiumDailyLimit int
	PremiumLeftToday  int
	Packages          []models.Package
}

func (l *Ledger) Status(ctx context.Context, userID int64) (*Status, error) {
	unlock := l.locks.lock(userID)
	defer unlock()

	user, err := l.users.FindByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("load user: %w", err)
	}
	if user == nil {
		return nil, ErrUserNotFound
	}

	today := models.DateOnly(l.now().UTC())

	if user.FreeExpiry != nil && user.FreeTrialExpired(today) {
		expiry := today.AddDate(0, 0, l.trial.Days)
		if err := l.buckets.RefreshFreeTrial(ctx, userID, l.trial.Requests, expiry); err != nil {
			return nil, fmt.Errorf("refresh free trial: %w", err)
		}
		user.FreeRequestsLeft = l.trial.Requests
		user.FreeExpiry = &expiry
	}

	if user.PremiumActive(today) {
		if user.LastPremiumReset == nil || models.DateOnly(*user.LastPremiumReset).Before(today) {
			if err := l.buckets.ResetPremiumDay(ctx, userID, today); err != nil {
				return nil, fmt.Errorf("reset premium day: %w", err)
			}
			user.PremiumUsedToday = 0
		}
	}

	packages, err := l.buckets.AllPackages(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list packages: %w", err)
	}

	status := &Status{
		UserID:           userID,
		IsAdmin:          user.IsAdmin,
		Language:         user.Language,
		SelectedModel:    user.SelectedModel,
		WalletBalance:    user.WalletBalance,
		FreeRequestsLeft: user.FreeRequestsLeft,
		FreeExpiry:       user.FreeExpiry,
		Packages:         packages,
	}
	if user.PremiumActive(today) {
		status.PremiumActive = true
		status.PremiumExpiry = user.PremiumExpiry
		status.PremiumDailyLimit = user.PremiumDailyLimit
		left := user.PremiumDailyLimit - user.PremiumUsedToday
		if left < 0 {
			left = 0
		}
		status.PremiumLeftToday = left
	}
	return status, nil
}

func (l *Ledger) requireUser(ctx context.Context, userID int64) error {
	user, err := l.users.FindByID(ctx, userID)
	if err != nil {
		return fmt.Errorf("load user: %w", err)
	}
	if user == nil {
		return ErrUserNotFound
	}
	return nil
}

// applyOnce guards an idempotency-keyed operation. An empty key applies
// unconditionally.
func (l *Ledger) applyOnce(ctx context.Context, fullKey, key string, userID int64) (bool, error) {
	if key == "" {
		return true, nil
	}
	applied, err := l.wallet.ApplyOnce(ctx, fullKey, userID)
	if err != nil {
		return false, fmt.Errorf("record idempotency key: %w", err)
	}
	if !applied {
		l.log.Info("duplicate grant ignored", "user", userID, "key", fullKey)
	}
	return applied, nil
}

func (l *Ledger) logUsage(ctx context.Context, receipt *Receipt) {
	ev := models.UsageEvent{
		UserID:      receipt.UserID,
		ModelName:   receipt.ModelName,
		RequestType: receipt.RequestType,
		Cost:        receipt.Cost,
	}
	if err := l.usage.Log(ctx, ev); err != nil {
		l.log.Error("failed to log usage event", "user", receipt.UserID, "model", receipt.ModelName, "err", err)
	}
}
