package processor

import (
	"context"
	"errors"
	"strings"

	"github.com/smallbiznis/credits/internal/config"
	"github.com/stripe/stripe-go/v82"
	"go.uber.org/zap"
)

type StripeProcessor struct {
	client *stripe.Client
	log    *zap.Logger
}

// New returns the Stripe processor when a secret key is configured.
func New(cfg config.Config, log *zap.Logger) Processor {
	key := strings.TrimSpace(cfg.Stripe.SecretKey)
	if key == "" {
		log.Warn("stripe secret key missing, payment processor disabled")
		return Unconfigured{}
	}
	return NewStripe(stripe.NewClient(key, nil), log)
}

func NewStripe(client *stripe.Client, log *zap.Logger) *StripeProcessor {
	return &StripeProcessor{client: client, log: log.Named("payment.processor.stripe")}
}

func (p *StripeProcessor) Provider() string { return "stripe" }

// Charge confirms an off-session payment intent against the saved method.
func (p *StripeProcessor) Charge(ctx context.Context, req ChargeRequest) (*ChargeResult, error) {
	params := &stripe.PaymentIntentCreateParams{
		Amount:        stripe.Int64(req.AmountMinorUnits),
		Currency:      stripe.String(strings.ToLower(req.Currency)),
		Customer:      stripe.String(req.CustomerRef),
		PaymentMethod: stripe.String(req.PaymentMethodRef),
		OffSession:    stripe.Bool(true),
		Confirm:       stripe.Bool(true),
		Metadata:      req.Metadata,
	}
	if req.Description != "" {
		params.Description = stripe.String(req.Description)
	}
	if req.IdempotencyKey != "" {
		params.SetIdempotencyKey(req.IdempotencyKey)
	}

	intent, err := p.client.V1PaymentIntents.Create(ctx, params)
	if err != nil {
		return nil, p.mapError("charge", err)
	}
	return &ChargeResult{ChargeID: intent.ID, Status: string(intent.Status)}, nil
}

func (p *StripeProcessor) CreateCustomer(ctx context.Context, req CreateCustomerRequest) (string, error) {
	params := &stripe.CustomerCreateParams{
		Metadata: map[string]string{"tenant_id": req.TenantID},
	}
	if req.Email != "" {
		params.Email = stripe.String(req.Email)
	}
	if req.Name != "" {
		params.Name = stripe.String(req.Name)
	}
	params.SetIdempotencyKey("customer-" + req.TenantID)

	cust, err := p.client.V1Customers.Create(ctx, params)
	if err != nil {
		return "", p.mapError("create customer", err)
	}
	return cust.ID, nil
}

func (p *StripeProcessor) CreateSetupIntent(ctx context.Context, customerRef string) (*SetupIntent, error) {
	intent, err := p.client.V1SetupIntents.Create(ctx, &stripe.SetupIntentCreateParams{
		Customer: stripe.String(customerRef),
		Usage:    stripe.String(string(stripe.SetupIntentUsageOffSession)),
	})
	if err != nil {
		return nil, p.mapError("create setup intent", err)
	}
	return &SetupIntent{ID: intent.ID, ClientSecret: intent.ClientSecret}, nil
}

func (p *StripeProcessor) CreatePortalSession(ctx context.Context, customerRef, returnURL string) (*PortalSession, error) {
	params := &stripe.BillingPortalSessionCreateParams{
		Customer: stripe.String(customerRef),
	}
	if returnURL != "" {
		params.ReturnURL = stripe.String(returnURL)
	}
	sess, err := p.client.V1BillingPortalSessions.Create(ctx, params)
	if err != nil {
		return nil, p.mapError("create portal session", err)
	}
	return &PortalSession{URL: sess.URL}, nil
}

func (p *StripeProcessor) DescribePaymentMethod(ctx context.Context, paymentMethodRef string) (*PaymentMethod, error) {
	pm, err := p.client.V1PaymentMethods.Retrieve(ctx, paymentMethodRef, nil)
	if err != nil {
		return nil, p.mapError("retrieve payment method", err)
	}
	out := &PaymentMethod{ID: pm.ID}
	if pm.Card != nil {
		out.Brand = string(pm.Card.Brand)
		out.Last4 = pm.Card.Last4
	}
	return out, nil
}

func (p *StripeProcessor) mapError(op string, err error) error {
	var stripeErr *stripe.Error
	if !errors.As(err, &stripeErr) {
		p.log.Warn("stripe call failed", zap.String("op", op), zap.Error(err))
		return err
	}

	p.log.Info("stripe rejected request",
		zap.String("op", op),
		zap.String("code", string(stripeErr.Code)),
		zap.String("request_id", stripeErr.RequestID),
	)
	switch stripeErr.Code {
	case stripe.ErrorCodeCardDeclined:
		return &Error{Code: "card_declined", Message: "payment method declined"}
	case stripe.ErrorCodeAuthenticationRequired:
		return &Error{Code: "authentication_required", Message: "payment requires customer authentication"}
	case stripe.ErrorCodeExpiredCard:
		return &Error{Code: "expired_card", Message: "payment method expired"}
	default:
		code := string(stripeErr.Code)
		if code == "" {
			code = string(stripeErr.Type)
		}
		return &Error{Code: code, Message: stripeErr.Msg}
	}
}
