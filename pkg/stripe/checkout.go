package stripe

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/stripe/stripe-go/v84"
	"github.com/stripe/stripe-go/v84/checkout/session"
)

// Metadata keys written on checkout sessions and read back by the webhook.
const (
	MetadataUserID  = "userId"
	MetadataPriceID = "priceId"
)

// CheckoutSessionInput describes a one-off credit package purchase.
type CheckoutSessionInput struct {
	AccountID     string
	PriceID       string
	CustomerEmail string
	SuccessURL    string
	CancelURL     string
}

// CheckoutSession is the handle returned to the client.
type CheckoutSession struct {
	ID  string
	URL string
}

// CreateCheckoutSession opens a payment-mode Checkout Session for a single
// package. Credits are granted later by the webhook, never here.
func (c *Client) CreateCheckoutSession(ctx context.Context, input CheckoutSessionInput) (*CheckoutSession, error) {
	if c == nil {
		return nil, errors.New("stripe client not initialized")
	}
	accountID := strings.TrimSpace(input.AccountID)
	priceID := strings.TrimSpace(input.PriceID)
	if accountID == "" || priceID == "" {
		return nil, errors.New("account id and price id are required")
	}

	params := &stripe.CheckoutSessionParams{
		Mode: stripe.String(string(stripe.CheckoutSessionModePayment)),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{Price: stripe.String(priceID), Quantity: stripe.Int64(1)},
		},
		SuccessURL:        stripe.String(input.SuccessURL),
		CancelURL:         stripe.String(input.CancelURL),
		ClientReferenceID: stripe.String(accountID),
	}
	if email := strings.TrimSpace(input.CustomerEmail); email != "" {
		params.CustomerEmail = stripe.String(email)
	}
	params.AddMetadata(MetadataUserID, accountID)
	params.AddMetadata(MetadataPriceID, priceID)
	params.Context = ctx

	sess, err := session.New(params)
	if err != nil {
		return nil, fmt.Errorf("create checkout session: %w", err)
	}
	return &CheckoutSession{ID: sess.ID, URL: sess.URL}, nil
}

// FirstLineItemPriceID looks up the price of a completed session when the
// webhook payload carries neither metadata nor expanded line items.
func (c *Client) FirstLineItemPriceID(ctx context.Context, sessionID string) (string, error) {
	if c == nil {
		return "", errors.New("stripe client not initialized")
	}
	params := &stripe.CheckoutSessionListLineItemsParams{Session: stripe.String(sessionID)}
	params.Limit = stripe.Int64(1)
	params.Context = ctx

	iter := session.ListLineItems(params)
	for iter.Next() {
		item := iter.LineItem()
		if item != nil && item.Price != nil && item.Price.ID != "" {
			return item.Price.ID, nil
		}
	}
	if err := iter.Err(); err != nil {
		return "", fmt.Errorf("list line items: %w", err)
	}
	return "", nil
}
