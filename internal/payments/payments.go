package payments

import (
	"context"
	"errors"
	"time"

	"github.com/yukikurage/apollo-api/internal/constants"
)

var (
	// ErrNotConfigured is returned by every call when no API key was provided.
	ErrNotConfigured = errors.New("payment provider is not configured")
	// ErrSubscriptionNotOwned means the subscription belongs to another customer.
	ErrSubscriptionNotOwned = errors.New("subscription does not belong to the caller")
)

// Provider is the subscription capability the API relies on.
type Provider interface {
	HasActiveSubscription(ctx context.Context, email string) (bool, error)
	SubscriptionDetails(ctx context.Context, email string) (*SubscriptionDetails, error)
	ContinueSubscription(ctx context.Context, email, subscriptionID string) error
	CancelSubscription(ctx context.Context, email, subscriptionID string) error
	CreatePromoCode(ctx context.Context) (string, error)
}

// SubscriptionDetails describes the most recent subscription of a customer.
// Only CurrentPlan is set when the customer has no subscription.
type SubscriptionDetails struct {
	CurrentPlan      string `json:"currentPlan"`
	SubscriptionID   string `json:"subscriptionId,omitempty"`
	RenewalDate      string `json:"renewalDate,omitempty"`
	ExpirationDate   string `json:"expirationDate,omitempty"`
	BillingPortalURL string `json:"billingPortalUrl,omitempty"`
}

// subscriptionSummary is the part of a provider subscription the details are derived from.
type subscriptionSummary struct {
	ID               string
	Active           bool
	CanceledAt       int64
	CurrentPeriodEnd int64
}

const dateLayout = "01/02/2006"

// detailsFrom maps the most recent subscription to the details shown to the user.
// A subscription that was never canceled renews at the end of the period,
// otherwise it expires then.
func detailsFrom(sub *subscriptionSummary, billingPortalURL string) *SubscriptionDetails {
	if sub == nil {
		return &SubscriptionDetails{CurrentPlan: constants.PlanLite}
	}

	details := &SubscriptionDetails{
		CurrentPlan:      constants.PlanLite,
		SubscriptionID:   sub.ID,
		BillingPortalURL: billingPortalURL,
	}
	if sub.Active {
		details.CurrentPlan = constants.PlanSuite
	}

	periodEnd := time.Unix(sub.CurrentPeriodEnd, 0).UTC().Format(dateLayout)
	if sub.CanceledAt == 0 {
		details.RenewalDate = periodEnd
	} else {
		details.ExpirationDate = periodEnd
	}
	return details
}
