// Package billing implements per-second fractional-hour session billing,
// credit ledgers, and cost estimation, grounded exactly on the arithmetic
// in original_source/server/services/billing_service.py.
package billing

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/paymentintent"

	sferrors "github.com/sessionforge/sessionforge/internal/errors"
	"github.com/sessionforge/sessionforge/internal/logger"
	"github.com/sessionforge/sessionforge/internal/models"
	"github.com/sessionforge/sessionforge/internal/store"
)

// Engine computes and records the cost of running sessions.
type Engine struct {
	store   store.Store
	pricing Pricing
}

func New(s store.Store, pricing Pricing) *Engine {
	return &Engine{store: s, pricing: pricing}
}

func round4(v float64) float64 {
	return math.Round(v*10000) / 10000
}

// CalculateSessionCost computes hourly_rate(user_type) * duration_hours *
// tier_multiplier, rounded to 4 decimal places.
func (e *Engine) CalculateSessionCost(userType models.UserType, tier models.ResourceTier, durationHours float64) float64 {
	cost := e.pricing.HourlyRate(userType) * durationHours * e.pricing.Multiplier(tier)
	return round4(cost)
}

// CalculateStorageCost computes monthly_rate * size_gb * (duration_days / 30).
func (e *Engine) CalculateStorageCost(storageType models.StorageType, sizeGB, durationDays float64) float64 {
	cost := e.pricing.StorageRate(storageType) * sizeGB * (durationDays / 30.0)
	return round4(cost)
}

// StartSessionBilling opens a billing row at the effective rate for the
// session's owner and resource tier.
func (e *Engine) StartSessionBilling(ctx context.Context, sessionID, userID string, tier models.ResourceTier) (*models.SessionBilling, error) {
	log := logger.Billing()
	user, err := e.store.GetUser(ctx, userID)
	if err != nil {
		return nil, sferrors.Wrap("billing.StartSessionBilling", "user lookup failed", err)
	}

	effectiveRate := round4(e.pricing.HourlyRate(user.UserType) * e.pricing.Multiplier(tier))
	b := &models.SessionBilling{
		SessionID:  sessionID,
		UserID:     userID,
		HourlyRate: effectiveRate,
		StartTime:  time.Now(),
	}
	if err := e.store.StartSessionBilling(ctx, b); err != nil {
		return nil, err
	}
	log.Info().Str("session_id", sessionID).Float64("hourly_rate", effectiveRate).Msg("session billing started")
	return b, nil
}

// StopSessionBilling closes the active billing row and deducts the computed
// cost from the user's credit balance in one atomic Store operation. Total
// hours is computed with millisecond precision so a sub-minute session
// still produces a nonzero cost.
func (e *Engine) StopSessionBilling(ctx context.Context, sessionID string) (*models.SessionBilling, error) {
	info, err := e.store.GetSessionBillingInfo(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if !info.Active {
		return nil, sferrors.NotFound("billing.StopSessionBilling", fmt.Sprintf("session %s billing is not active", sessionID))
	}

	endTime := time.Now()
	totalHours := endTime.Sub(info.StartTime).Seconds() / 3600.0
	totalCost := round4(info.HourlyRate * totalHours)

	result, err := e.store.StopSessionBilling(ctx, sessionID, endTime, totalHours, totalCost)
	if err != nil {
		return nil, err
	}
	logger.Billing().Info().Str("session_id", sessionID).Float64("total_hours", totalHours).
		Float64("total_cost", totalCost).Msg("session billing stopped")
	return result, nil
}

// PurchaseCredits creates a real payment intent via Stripe, then records
// the purchase transaction and credits the user's balance as one logical
// operation. amount below pricing.CreditPurchaseMinAmount fails
// BelowMinimum (InvalidInput).
func (e *Engine) PurchaseCredits(ctx context.Context, userID string, amountUSD float64) (float64, error) {
	if amountUSD < e.pricing.CreditPurchaseMinAmount {
		return 0, sferrors.InvalidInput("billing.PurchaseCredits",
			fmt.Sprintf("amount %.2f is below the minimum purchase of %.2f", amountUSD, e.pricing.CreditPurchaseMinAmount))
	}

	if stripe.Key != "" {
		_, err := paymentintent.New(&stripe.PaymentIntentParams{
			Amount:   stripe.Int64(int64(amountUSD * 100)),
			Currency: stripe.String(string(stripe.CurrencyUSD)),
			Metadata: map[string]string{"user_id": userID},
		})
		if err != nil {
			return 0, sferrors.ProviderUnavailable("billing.PurchaseCredits", "stripe payment intent failed", err)
		}
	}

	bonus := round4(amountUSD * e.pricing.CreditPurchaseBonusPct / 100.0)
	total := amountUSD + bonus

	if err := e.store.AddCredits(ctx, userID, amountUSD, models.TxnPurchase); err != nil {
		return 0, err
	}
	if bonus > 0 {
		if err := e.store.AddCredits(ctx, userID, bonus, models.TxnBonus); err != nil {
			return 0, err
		}
	}

	logger.Billing().Info().Str("user_id", userID).Float64("amount", amountUSD).Float64("bonus", bonus).Msg("credits purchased")
	return total, nil
}

// CheckUserCreditBalance reports whether userID's balance covers required.
func (e *Engine) CheckUserCreditBalance(ctx context.Context, userID string, required float64) (bool, error) {
	balance, err := e.store.GetUserCredits(ctx, userID)
	if err != nil {
		return false, err
	}
	return balance >= required, nil
}

// ProcessStorageCreationBilling prices a storage resource at durationDays of
// retention, checks the owner's balance, and debits it atomically before the
// resource is provisioned. Grounded on
// original_source/server/services/billing_service.py's
// process_storage_creation_billing. referenceID is recorded on the ledger
// row (typically the session the storage is attached to).
func (e *Engine) ProcessStorageCreationBilling(ctx context.Context, userID, referenceID string, storageType models.StorageType, sizeGB, durationDays float64) (float64, error) {
	cost := e.CalculateStorageCost(storageType, sizeGB, durationDays)

	sufficient, err := e.CheckUserCreditBalance(ctx, userID, cost)
	if err != nil {
		return 0, err
	}
	if !sufficient {
		return 0, sferrors.InsufficientCredits("billing.ProcessStorageCreationBilling",
			fmt.Sprintf("user %s has insufficient credits for %.4f storage cost", userID, cost))
	}

	if err := e.store.DeductCredits(ctx, userID, cost, referenceID); err != nil {
		return 0, err
	}

	logger.Billing().Info().Str("user_id", userID).Str("storage_type", string(storageType)).
		Float64("cost", cost).Msg("storage creation billed")
	return cost, nil
}
