package stripewebhook

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/stripe/stripe-go/v84"
	"gorm.io/gorm"

	"github.com/angelmondragon/snapstudio-backend/internal/events"
	"github.com/angelmondragon/snapstudio-backend/internal/ledger"
	"github.com/angelmondragon/snapstudio-backend/pkg/db/models"
	"github.com/angelmondragon/snapstudio-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/snapstudio-backend/pkg/errors"
	"github.com/angelmondragon/snapstudio-backend/pkg/logger"
	"github.com/angelmondragon/snapstudio-backend/pkg/metrics"
	"github.com/angelmondragon/snapstudio-backend/pkg/outbox"
	"github.com/angelmondragon/snapstudio-backend/pkg/outbox/payloads"
	stripeclient "github.com/angelmondragon/snapstudio-backend/pkg/stripe"
)

type ledgerService interface {
	RunInTx(ctx context.Context, op string, fn func(tx *gorm.DB) error) error
	Apply(ctx context.Context, tx *gorm.DB, entry ledger.Entry) (*models.CreditTransaction, error)
	FindAccount(ctx context.Context, tx *gorm.DB, id string) (*models.Account, error)
	FindAccountForSubscription(ctx context.Context, tx *gorm.DB, subscriptionID, customerID string) (*models.Account, error)
	SetPlan(ctx context.Context, tx *gorm.DB, accountID string, plan enums.Plan) error
	SetSubscription(ctx context.Context, tx *gorm.DB, accountID string, state ledger.SubscriptionState) error
	ClearSubscription(ctx context.Context, tx *gorm.DB, accountID string) error
	MarkPurchase(ctx context.Context, tx *gorm.DB, accountID, customerID string, at time.Time) error
}

type packageFinder interface {
	FindPackage(ctx context.Context, tx *gorm.DB, priceID string) (*models.CreditPackage, error)
}

type lineItemLookup interface {
	FirstLineItemPriceID(ctx context.Context, sessionID string) (string, error)
}

type ServiceParams struct {
	Ledger        ledgerService
	Events        events.Recorder
	Packages      packageFinder
	LineItems     lineItemLookup
	Outbox        outbox.Emitter
	SigningSecret string
	// Livemode must match the mode of the configured Stripe keys; events from
	// the other mode are acknowledged without touching the ledger.
	Livemode bool
	Metrics  *metrics.LedgerMetrics
	Logger   *logger.Logger
}

// Service applies verified payment-provider events to the ledger exactly once.
type Service struct {
	ledger        ledgerService
	events        events.Recorder
	packages      packageFinder
	lineItems     lineItemLookup
	outbox        outbox.Emitter
	signingSecret string
	livemode      bool
	metrics       *metrics.LedgerMetrics
	logg          *logger.Logger
	now           func() time.Time
}

// Result describes what happened to one delivery.
type Result struct {
	EventID   string `json:"event_id"`
	EventType string `json:"event_type"`
	Duplicate bool   `json:"duplicate"`
	Ignored   bool   `json:"ignored"`
}

func NewService(params ServiceParams) (*Service, error) {
	switch {
	case params.Ledger == nil:
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "ledger required")
	case params.Events == nil:
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "event recorder required")
	case params.Packages == nil:
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "package catalog required")
	case params.Outbox == nil:
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "outbox emitter required")
	case strings.TrimSpace(params.SigningSecret) == "":
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "stripe signing secret required")
	}
	return &Service{
		ledger:        params.Ledger,
		events:        params.Events,
		packages:      params.Packages,
		lineItems:     params.LineItems,
		outbox:        params.Outbox,
		signingSecret: params.SigningSecret,
		livemode:      params.Livemode,
		metrics:       params.Metrics,
		logg:          params.Logger,
		now:           time.Now,
	}, nil
}

// Handle verifies the payload and applies it. Duplicates and unknown event
// types are accepted without effect. Any returned error other than
// BAD_SIGNATURE means nothing was committed and the provider should retry.
func (s *Service) Handle(ctx context.Context, payload []byte, signature string) (*Result, error) {
	if strings.TrimSpace(signature) == "" {
		s.metrics.IncWebhookEvent("unknown", "bad_signature")
		return nil, pkgerrors.New(pkgerrors.CodeBadSignature, "stripe signature missing")
	}
	event, err := stripeclient.VerifyEvent(payload, signature, s.signingSecret)
	if err != nil {
		s.metrics.IncWebhookEvent("unknown", "bad_signature")
		return nil, pkgerrors.Wrap(pkgerrors.CodeBadSignature, err, "verify stripe signature")
	}

	eventType := string(event.Type)
	result := &Result{EventID: event.ID, EventType: eventType}
	if s.logg != nil {
		ctx = s.logg.WithFields(s.logg.WithEventID(ctx, event.ID), map[string]any{"event_type": eventType})
	}

	if event.Livemode != s.livemode {
		s.metrics.IncWebhookEvent(eventType, "mode_mismatch")
		s.warn(ctx, "stripe event livemode does not match configured keys; ignoring")
		result.Ignored = true
		return result, nil
	}

	apply, err := s.prepare(ctx, &event)
	if err != nil {
		s.metrics.IncWebhookEvent(eventType, "error")
		return nil, err
	}

	err = s.ledger.RunInTx(ctx, "webhook", func(tx *gorm.DB) error {
		result.Duplicate, result.Ignored = false, false
		claimed, err := s.events.TryClaim(ctx, tx, enums.EventSourceStripe, event.ID, eventType)
		if err != nil {
			return err
		}
		if !claimed {
			result.Duplicate = true
			return nil
		}
		if apply == nil {
			result.Ignored = true
			return nil
		}
		ignored, err := apply(tx)
		result.Ignored = ignored
		return err
	})
	if err != nil {
		s.metrics.IncWebhookEvent(eventType, "error")
		if s.logg != nil {
			s.logg.Error(ctx, "stripe event not applied", err)
		}
		if pkgerrors.As(err) == nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "apply stripe event")
		}
		return nil, err
	}

	switch {
	case result.Duplicate:
		s.metrics.IncWebhookEvent(eventType, "duplicate")
	case result.Ignored:
		s.metrics.IncWebhookEvent(eventType, "ignored")
	default:
		s.metrics.IncWebhookEvent(eventType, "applied")
		if s.logg != nil {
			s.logg.Info(ctx, "stripe event applied")
		}
	}
	return result, nil
}

// applyFunc runs inside the claiming transaction and reports whether the
// event turned out to need no ledger change.
type applyFunc func(tx *gorm.DB) (bool, error)

// prepare decodes the event and does any provider lookups before the
// transaction opens. A nil applyFunc means the type is not handled.
func (s *Service) prepare(ctx context.Context, event *stripe.Event) (applyFunc, error) {
	if event.Data == nil {
		return nil, nil
	}
	switch event.Type {
	case stripe.EventTypeCheckoutSessionCompleted:
		var sess stripe.CheckoutSession
		if err := json.Unmarshal(event.Data.Raw, &sess); err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "decode checkout session")
		}
		priceID, err := s.checkoutPriceID(ctx, event.ID, &sess)
		if err != nil {
			return nil, err
		}
		return func(tx *gorm.DB) (bool, error) {
			return s.applyCheckout(ctx, tx, event.ID, &sess, priceID)
		}, nil
	case stripe.EventTypeCustomerSubscriptionCreated, stripe.EventTypeCustomerSubscriptionUpdated:
		var sub stripe.Subscription
		if err := json.Unmarshal(event.Data.Raw, &sub); err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "decode subscription")
		}
		created := event.Type == stripe.EventTypeCustomerSubscriptionCreated
		return func(tx *gorm.DB) (bool, error) {
			return s.applySubscription(ctx, tx, event.ID, &sub, created)
		}, nil
	case stripe.EventTypeCustomerSubscriptionDeleted:
		var sub stripe.Subscription
		if err := json.Unmarshal(event.Data.Raw, &sub); err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "decode subscription")
		}
		return func(tx *gorm.DB) (bool, error) {
			return s.applySubscriptionDeleted(ctx, tx, &sub)
		}, nil
	default:
		return nil, nil
	}
}

// checkoutPriceID prefers session metadata, then expanded line items, then
// an API lookup. The lookup is skipped for events already processed.
func (s *Service) checkoutPriceID(ctx context.Context, eventID string, sess *stripe.CheckoutSession) (string, error) {
	if priceID := strings.TrimSpace(sess.Metadata[stripeclient.MetadataPriceID]); priceID != "" {
		return priceID, nil
	}
	if sess.LineItems != nil {
		for _, item := range sess.LineItems.Data {
			if item != nil && item.Price != nil && item.Price.ID != "" {
				return item.Price.ID, nil
			}
		}
	}
	if s.lineItems == nil || sess.ID == "" {
		return "", nil
	}
	seen, err := s.events.Exists(ctx, eventID)
	if err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check processed event")
	}
	if seen {
		return "", nil
	}
	priceID, err := s.lineItems.FirstLineItemPriceID(ctx, sess.ID)
	if err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeDependency, err, "look up checkout line items")
	}
	return priceID, nil
}

func (s *Service) applyCheckout(ctx context.Context, tx *gorm.DB, eventID string, sess *stripe.CheckoutSession, priceID string) (bool, error) {
	if sess.PaymentStatus == stripe.CheckoutSessionPaymentStatusUnpaid {
		s.warn(ctx, "checkout completed without payment; nothing to grant")
		return true, nil
	}
	accountID := strings.TrimSpace(sess.Metadata[stripeclient.MetadataUserID])
	if accountID == "" {
		accountID = strings.TrimSpace(sess.ClientReferenceID)
	}
	if accountID == "" {
		s.warn(ctx, "checkout session carries no account reference")
		return true, nil
	}

	account, err := s.ledger.FindAccount(ctx, tx, accountID)
	if err != nil {
		return false, err
	}
	if account == nil {
		return false, pkgerrors.New(pkgerrors.CodeNotFound, "checkout account not found: "+accountID)
	}

	pkg, err := s.packages.FindPackage(ctx, tx, priceID)
	if err != nil {
		return false, err
	}
	if pkg == nil {
		if priceID == "" {
			s.warn(ctx, "paid checkout carries no price id; nothing to grant")
			return true, nil
		}
		// Rolling back the claim keeps the grant pending until the package
		// exists; the provider keeps redelivering on 5xx.
		if s.logg != nil {
			logCtx := s.logg.WithFields(s.logg.WithAccountID(ctx, accountID), map[string]any{"price_id": priceID})
			s.logg.Error(logCtx, "paid checkout has no credit package", errors.New("unknown price id"))
		}
		return false, pkgerrors.New(pkgerrors.CodeDependency, "no credit package for price "+priceID)
	}

	eventRef := eventID
	txn, err := s.ledger.Apply(ctx, tx, ledger.Entry{
		AccountID:       accountID,
		Type:            enums.TransactionPurchase,
		Amount:          pkg.Credits,
		ExternalEventID: &eventRef,
		Description:     "Purchased " + pkg.Name + " package",
	})
	if err != nil {
		return false, err
	}
	if err := s.ledger.SetPlan(ctx, tx, accountID, pkg.Plan); err != nil {
		return false, err
	}
	if err := s.ledger.MarkPurchase(ctx, tx, accountID, customerID(sess.Customer), s.now()); err != nil {
		return false, err
	}

	return false, s.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     enums.EventCreditsPurchased,
		AggregateType: enums.AggregateAccount,
		AggregateID:   accountID,
		Actor:         &outbox.ActorRef{AccountID: accountID, Role: enums.RoleUser.String()},
		Data: payloads.CreditsPurchasedEvent{
			AccountID:       accountID,
			ExternalEventID: eventID,
			PriceID:         pkg.PriceID,
			PackageName:     pkg.Name,
			Credits:         txn.Amount,
			NewBalance:      txn.BalanceAfter,
			Type:            enums.TransactionPurchase,
		},
	})
}

func (s *Service) applySubscription(ctx context.Context, tx *gorm.DB, eventID string, sub *stripe.Subscription, created bool) (bool, error) {
	account, err := s.subscriptionAccount(ctx, tx, sub)
	if err != nil {
		return false, err
	}
	if account == nil {
		return false, pkgerrors.New(pkgerrors.CodeNotFound, "subscription account not found: "+sub.ID)
	}

	priceID, periodEnd := subscriptionItem(sub)
	pkg, err := s.packages.FindPackage(ctx, tx, priceID)
	if err != nil {
		return false, err
	}

	status := enums.SubscriptionStatus(sub.Status)
	subscribed := account.Plan
	if pkg != nil {
		subscribed = pkg.Plan
	}
	plan := status.PlanFor(account.Plan, subscribed)

	priceChanged := account.SubscriptionPriceID == nil || *account.SubscriptionPriceID != priceID
	if err := s.ledger.SetSubscription(ctx, tx, account.ID, ledger.SubscriptionState{
		Plan:           plan,
		SubscriptionID: sub.ID,
		CustomerID:     customerID(sub.Customer),
		Status:         string(sub.Status),
		PriceID:        priceID,
		PeriodEnd:      periodEnd,
	}); err != nil {
		return false, err
	}

	if pkg != nil && status.Entitled() && (created || priceChanged) {
		eventRef := eventID
		txn, err := s.ledger.Apply(ctx, tx, ledger.Entry{
			AccountID:       account.ID,
			Type:            enums.TransactionSubscriptionGrant,
			Amount:          pkg.Credits,
			ExternalEventID: &eventRef,
			Description:     pkg.Name + " subscription credits",
		})
		if err != nil {
			return false, err
		}
		if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventCreditsGranted,
			AggregateType: enums.AggregateAccount,
			AggregateID:   account.ID,
			Actor:         &outbox.ActorRef{AccountID: account.ID, Role: enums.RoleUser.String()},
			Data: payloads.CreditsGrantedEvent{
				AccountID:  account.ID,
				Type:       enums.TransactionSubscriptionGrant,
				Credits:    txn.Amount,
				NewBalance: txn.BalanceAfter,
			},
		}); err != nil {
			return false, err
		}
	}

	return false, s.emitSubscriptionChanged(ctx, tx, account.ID, plan, sub.ID, string(sub.Status), priceID)
}

func (s *Service) applySubscriptionDeleted(ctx context.Context, tx *gorm.DB, sub *stripe.Subscription) (bool, error) {
	account, err := s.subscriptionAccount(ctx, tx, sub)
	if err != nil {
		return false, err
	}
	if account == nil {
		s.warn(ctx, "deleted subscription has no account")
		return true, nil
	}
	if err := s.ledger.ClearSubscription(ctx, tx, account.ID); err != nil {
		return false, err
	}
	return false, s.emitSubscriptionChanged(ctx, tx, account.ID, enums.PlanFree, sub.ID, string(sub.Status), "")
}

func (s *Service) subscriptionAccount(ctx context.Context, tx *gorm.DB, sub *stripe.Subscription) (*models.Account, error) {
	account, err := s.ledger.FindAccountForSubscription(ctx, tx, sub.ID, customerID(sub.Customer))
	if err != nil || account != nil {
		return account, err
	}
	if userID := strings.TrimSpace(sub.Metadata[stripeclient.MetadataUserID]); userID != "" {
		return s.ledger.FindAccount(ctx, tx, userID)
	}
	return nil, nil
}

func (s *Service) emitSubscriptionChanged(ctx context.Context, tx *gorm.DB, accountID string, plan enums.Plan, subID, status, priceID string) error {
	return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     enums.EventSubscriptionChanged,
		AggregateType: enums.AggregateAccount,
		AggregateID:   accountID,
		Actor:         &outbox.ActorRef{AccountID: accountID, Role: enums.RoleUser.String()},
		Data: payloads.SubscriptionChangedEvent{
			AccountID:      accountID,
			Plan:           plan,
			SubscriptionID: subID,
			Status:         status,
			PriceID:        priceID,
		},
	})
}

func (s *Service) warn(ctx context.Context, msg string) {
	if s.logg != nil {
		s.logg.Warn(ctx, msg)
	}
}

func subscriptionItem(sub *stripe.Subscription) (string, *time.Time) {
	if sub.Items == nil || len(sub.Items.Data) == 0 || sub.Items.Data[0] == nil {
		return "", nil
	}
	item := sub.Items.Data[0]
	priceID := ""
	if item.Price != nil {
		priceID = item.Price.ID
	}
	var periodEnd *time.Time
	if item.CurrentPeriodEnd > 0 {
		t := time.Unix(item.CurrentPeriodEnd, 0).UTC()
		periodEnd = &t
	}
	return priceID, periodEnd
}

func customerID(c *stripe.Customer) string {
	if c == nil {
		return ""
	}
	return c.ID
}
