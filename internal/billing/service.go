package billing

import (
	"context"
	"errors"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/angelmondragon/snapstudio-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/snapstudio-backend/pkg/errors"
	"github.com/angelmondragon/snapstudio-backend/pkg/logger"
	stripeclient "github.com/angelmondragon/snapstudio-backend/pkg/stripe"
)

type catalog interface {
	ListPackages(ctx context.Context, activeOnly bool) ([]models.CreditPackage, error)
	FindPackage(ctx context.Context, tx *gorm.DB, priceID string) (*models.CreditPackage, error)
}

type accountLookup interface {
	GetAccount(ctx context.Context, id string) (*models.Account, error)
}

type sessionCreator interface {
	CreateCheckoutSession(ctx context.Context, input stripeclient.CheckoutSessionInput) (*stripeclient.CheckoutSession, error)
}

type rateLimiter interface {
	FixedWindowAllow(ctx context.Context, scope string, limit int64, window time.Duration) (bool, int64, error)
}

// ServiceParams groups dependencies for the billing service.
type ServiceParams struct {
	Catalog    catalog
	Accounts   accountLookup
	Sessions   sessionCreator
	Limiter    rateLimiter
	RateLimit  int
	RateWindow time.Duration
	SuccessURL string
	CancelURL  string
	Logger     *logger.Logger
}

// Service starts credit purchases. Credits are granted only when the
// provider reports the completed checkout.
type Service struct {
	catalog    catalog
	accounts   accountLookup
	sessions   sessionCreator
	limiter    rateLimiter
	rateLimit  int64
	rateWindow time.Duration
	successURL string
	cancelURL  string
	logg       *logger.Logger
}

// NewService builds a billing service. Limiter is optional.
func NewService(params ServiceParams) (*Service, error) {
	switch {
	case params.Catalog == nil:
		return nil, errors.New("package catalog is required")
	case params.Accounts == nil:
		return nil, errors.New("account lookup is required")
	case params.Sessions == nil:
		return nil, errors.New("checkout session creator is required")
	}
	window := params.RateWindow
	if window <= 0 {
		window = time.Minute
	}
	return &Service{
		catalog:    params.Catalog,
		accounts:   params.Accounts,
		sessions:   params.Sessions,
		limiter:    params.Limiter,
		rateLimit:  int64(params.RateLimit),
		rateWindow: window,
		successURL: params.SuccessURL,
		cancelURL:  params.CancelURL,
		logg:       params.Logger,
	}, nil
}

// Packages lists the purchasable credit packages.
func (s *Service) Packages(ctx context.Context) ([]models.CreditPackage, error) {
	return s.catalog.ListPackages(ctx, true)
}

type CheckoutInput struct {
	AccountID string
	PriceID   string
}

type CheckoutResult struct {
	SessionID string `json:"session_id"`
	URL       string `json:"url"`
}

// StartCheckout opens a hosted checkout session for an active package.
func (s *Service) StartCheckout(ctx context.Context, input CheckoutInput) (*CheckoutResult, error) {
	accountID := strings.TrimSpace(input.AccountID)
	priceID := strings.TrimSpace(input.PriceID)
	if accountID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "account id is required")
	}
	if priceID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "price_id is required")
	}

	if err := s.allow(ctx, accountID); err != nil {
		return nil, err
	}

	pkg, err := s.catalog.FindPackage(ctx, nil, priceID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "find credit package")
	}
	if pkg == nil || !pkg.Active {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "unknown price id").
			WithDetails(map[string]any{"price_id": priceID})
	}

	account, err := s.accounts.GetAccount(ctx, accountID)
	if err != nil {
		return nil, err
	}

	session, err := s.sessions.CreateCheckoutSession(ctx, stripeclient.CheckoutSessionInput{
		AccountID:     account.ID,
		PriceID:       pkg.PriceID,
		CustomerEmail: account.Email,
		SuccessURL:    s.successURL,
		CancelURL:     s.cancelURL,
	})
	if err != nil {
		if s.logg != nil {
			logCtx := s.logg.WithFields(s.logg.WithAccountID(ctx, accountID), map[string]any{"price_id": priceID})
			s.logg.Error(logCtx, "create checkout session failed", err)
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create checkout session")
	}
	return &CheckoutResult{SessionID: session.ID, URL: session.URL}, nil
}

func (s *Service) allow(ctx context.Context, accountID string) error {
	if s.limiter == nil || s.rateLimit <= 0 {
		return nil
	}
	ok, _, err := s.limiter.FixedWindowAllow(ctx, "checkout:"+accountID, s.rateLimit, s.rateWindow)
	if err != nil {
		// fail open
		if s.logg != nil {
			s.logg.Warn(s.logg.WithAccountID(ctx, accountID), "checkout rate limiter unavailable")
		}
		return nil
	}
	if !ok {
		return pkgerrors.New(pkgerrors.CodeRateLimit, "too many checkout attempts")
	}
	return nil
}
