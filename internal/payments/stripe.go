package payments

import (
	"context"
	"fmt"
	"strings"

	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/client"
)

// StripeProvider implements Provider on top of the Stripe API.
type StripeProvider struct {
	api      *client.API
	priceID  string
	couponID string
}

// NewStripeProvider creates a StripeProvider. An empty key yields a provider
// whose calls fail with ErrNotConfigured.
func NewStripeProvider(apiKey, priceID, couponID string) *StripeProvider {
	return newStripeProvider(apiKey, priceID, couponID, nil)
}

// newStripeProvider uses backends instead of the default Stripe endpoints when set.
func newStripeProvider(apiKey, priceID, couponID string, backends *stripe.Backends) *StripeProvider {
	p := &StripeProvider{priceID: priceID, couponID: couponID}
	if apiKey != "" {
		p.api = client.New(apiKey, backends)
	}
	return p
}

// HasActiveSubscription reports whether any customer with email has an active subscription.
func (p *StripeProvider) HasActiveSubscription(ctx context.Context, email string) (bool, error) {
	if p.api == nil {
		return false, ErrNotConfigured
	}

	customerIDs, err := p.customerIDs(ctx, email)
	if err != nil {
		return false, err
	}

	for _, customerID := range customerIDs {
		params := &stripe.SubscriptionListParams{
			Customer: stripe.String(customerID),
			Status:   stripe.String(string(stripe.SubscriptionStatusActive)),
		}
		if p.priceID != "" {
			params.Price = stripe.String(p.priceID)
		}
		params.Context = ctx
		params.Limit = stripe.Int64(1)

		iter := p.api.Subscriptions.List(params)
		if iter.Next() {
			return true, nil
		}
		if err := iter.Err(); err != nil {
			return false, fmt.Errorf("failed to list subscriptions: %w", err)
		}
	}
	return false, nil
}

// SubscriptionDetails looks at the first customer with email and its most recent subscription.
func (p *StripeProvider) SubscriptionDetails(ctx context.Context, email string) (*SubscriptionDetails, error) {
	if p.api == nil {
		return nil, ErrNotConfigured
	}

	customerIDs, err := p.customerIDs(ctx, email)
	if err != nil {
		return nil, err
	}
	if len(customerIDs) == 0 {
		return detailsFrom(nil, ""), nil
	}
	customerID := customerIDs[0]

	params := &stripe.SubscriptionListParams{
		Customer: stripe.String(customerID),
		Status:   stripe.String("all"),
	}
	if p.priceID != "" {
		params.Price = stripe.String(p.priceID)
	}
	params.Context = ctx
	params.Limit = stripe.Int64(1)

	var summary *subscriptionSummary
	iter := p.api.Subscriptions.List(params)
	if iter.Next() {
		sub := iter.Subscription()
		summary = &subscriptionSummary{
			ID:               sub.ID,
			Active:           sub.Status == stripe.SubscriptionStatusActive,
			CanceledAt:       sub.CanceledAt,
			CurrentPeriodEnd: sub.CurrentPeriodEnd,
		}
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("failed to list subscriptions: %w", err)
	}

	portalParams := &stripe.BillingPortalSessionParams{Customer: stripe.String(customerID)}
	portalParams.Context = ctx
	session, err := p.api.BillingPortalSessions.New(portalParams)
	if err != nil {
		return nil, fmt.Errorf("failed to create billing portal session: %w", err)
	}

	return detailsFrom(summary, session.URL), nil
}

// ContinueSubscription removes a scheduled cancellation from a subscription of email's customer.
func (p *StripeProvider) ContinueSubscription(ctx context.Context, email, subscriptionID string) error {
	if p.api == nil {
		return ErrNotConfigured
	}
	if err := p.checkOwner(ctx, email, subscriptionID); err != nil {
		return err
	}

	params := &stripe.SubscriptionParams{CancelAtPeriodEnd: stripe.Bool(false)}
	params.AddExtra("cancel_at", "")
	params.Context = ctx
	if _, err := p.api.Subscriptions.Update(subscriptionID, params); err != nil {
		return fmt.Errorf("failed to continue subscription: %w", err)
	}
	return nil
}

// CancelSubscription cancels a subscription of email's customer at the end of the current period.
func (p *StripeProvider) CancelSubscription(ctx context.Context, email, subscriptionID string) error {
	if p.api == nil {
		return ErrNotConfigured
	}
	if err := p.checkOwner(ctx, email, subscriptionID); err != nil {
		return err
	}

	params := &stripe.SubscriptionParams{CancelAtPeriodEnd: stripe.Bool(true)}
	params.Context = ctx
	if _, err := p.api.Subscriptions.Update(subscriptionID, params); err != nil {
		return fmt.Errorf("failed to cancel subscription: %w", err)
	}
	return nil
}

// CreatePromoCode creates a single-use promotion code for the configured coupon.
func (p *StripeProvider) CreatePromoCode(ctx context.Context) (string, error) {
	if p.api == nil {
		return "", ErrNotConfigured
	}
	if p.couponID == "" {
		return "", fmt.Errorf("%w: coupon id is empty", ErrNotConfigured)
	}

	params := &stripe.PromotionCodeParams{
		Coupon:         stripe.String(p.couponID),
		MaxRedemptions: stripe.Int64(1),
	}
	params.Context = ctx
	promo, err := p.api.PromotionCodes.New(params)
	if err != nil {
		return "", fmt.Errorf("failed to create promotion code: %w", err)
	}
	return promo.Code, nil
}

// checkOwner fails unless subscriptionID belongs to one of email's customers.
func (p *StripeProvider) checkOwner(ctx context.Context, email, subscriptionID string) error {
	params := &stripe.SubscriptionParams{}
	params.Context = ctx
	sub, err := p.api.Subscriptions.Get(subscriptionID, params)
	if err != nil {
		return fmt.Errorf("failed to get subscription: %w", err)
	}
	if sub.Customer == nil {
		return ErrSubscriptionNotOwned
	}

	customerIDs, err := p.customerIDs(ctx, email)
	if err != nil {
		return err
	}
	for _, id := range customerIDs {
		if id == sub.Customer.ID {
			return nil
		}
	}
	return ErrSubscriptionNotOwned
}

var searchQuoter = strings.NewReplacer(`\`, `\\`, `'`, `\'`)

func (p *StripeProvider) customerIDs(ctx context.Context, email string) ([]string, error) {
	params := &stripe.CustomerSearchParams{}
	params.Query = fmt.Sprintf("email:'%s'", searchQuoter.Replace(email))
	params.Context = ctx

	var ids []string
	iter := p.api.Customers.Search(params)
	for iter.Next() {
		ids = append(ids, iter.Customer().ID)
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("failed to search customers: %w", err)
	}
	return ids, nil
}
