package customer

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/credits/internal/clock"
	"github.com/smallbiznis/credits/internal/config"
	"github.com/smallbiznis/credits/internal/payment/domain"
	"github.com/smallbiznis/credits/internal/payment/processor"
	"github.com/smallbiznis/credits/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB        *gorm.DB
	Log       *zap.Logger
	Cfg       config.Config
	Repo      domain.Repository
	Processor processor.Processor
	Clock     clock.Clock `optional:"true"`
}

type Service struct {
	db         *gorm.DB
	log        *zap.Logger
	repo       domain.Repository
	processor  processor.Processor
	clock      clock.Clock
	portalBack string
}

func NewService(p Params) domain.CustomerService {
	clk := p.Clock
	if clk == nil {
		clk = clock.New()
	}
	return &Service{
		db:         p.DB,
		log:        p.Log.Named("payment.customer"),
		repo:       p.Repo,
		processor:  p.Processor,
		clock:      clk,
		portalBack: p.Cfg.Stripe.PortalReturn,
	}
}

// EnsureCustomer returns the tenant's provider customer, creating it on first use.
func (s *Service) EnsureCustomer(ctx context.Context, req domain.CustomerRequest) (*domain.Customer, error) {
	if req.TenantID == 0 {
		return nil, domain.ErrInvalidTenant
	}
	provider := s.processor.Provider()

	existing, err := s.repo.FindCustomer(ctx, s.db, req.TenantID, provider)
	if err != nil {
		return nil, db.WrapStorage("find payment customer", err)
	}
	if existing != nil {
		return existing, nil
	}

	ref, err := s.processor.CreateCustomer(ctx, processor.CreateCustomerRequest{
		TenantID: req.TenantID.String(),
		Email:    strings.TrimSpace(req.Email),
		Name:     strings.TrimSpace(req.Name),
	})
	if err != nil {
		return nil, err
	}

	customer := &domain.Customer{
		TenantID:    req.TenantID,
		Provider:    provider,
		CustomerRef: ref,
		CreatedAt:   s.clock.Now().UTC(),
	}
	inserted, err := s.repo.InsertCustomer(ctx, s.db, customer)
	if err != nil {
		return nil, db.WrapStorage("insert payment customer", err)
	}
	if !inserted {
		// lost a race with a concurrent request; the stored mapping wins
		existing, err = s.repo.FindCustomer(ctx, s.db, req.TenantID, provider)
		if err != nil {
			return nil, db.WrapStorage("find payment customer", err)
		}
		if existing != nil {
			return existing, nil
		}
	}

	s.log.Info("payment customer created",
		zap.String("tenant_id", req.TenantID.String()),
		zap.String("provider", provider),
		zap.String("customer_ref", ref),
	)
	return customer, nil
}

func (s *Service) GetCustomerRef(ctx context.Context, tenantID snowflake.ID) (string, error) {
	if tenantID == 0 {
		return "", domain.ErrInvalidTenant
	}
	customer, err := s.repo.FindCustomer(ctx, s.db, tenantID, s.processor.Provider())
	if err != nil {
		return "", db.WrapStorage("find payment customer", err)
	}
	if customer == nil {
		return "", domain.ErrCustomerNotFound
	}
	return customer.CustomerRef, nil
}

// ResolveTenant maps a provider customer reference back to its tenant.
func (s *Service) ResolveTenant(ctx context.Context, provider string, customerRef string) (snowflake.ID, error) {
	provider = strings.ToLower(strings.TrimSpace(provider))
	customerRef = strings.TrimSpace(customerRef)
	if provider == "" || customerRef == "" {
		return 0, domain.ErrUnknownCustomer
	}
	customer, err := s.repo.FindCustomerByRef(ctx, s.db, provider, customerRef)
	if err != nil {
		return 0, db.WrapStorage("find payment customer", err)
	}
	if customer == nil {
		return 0, domain.ErrUnknownCustomer
	}
	return customer.TenantID, nil
}

func (s *Service) CreateSetupIntent(ctx context.Context, req domain.CustomerRequest) (*domain.SetupIntentResponse, error) {
	customer, err := s.EnsureCustomer(ctx, req)
	if err != nil {
		return nil, err
	}
	intent, err := s.processor.CreateSetupIntent(ctx, customer.CustomerRef)
	if err != nil {
		return nil, err
	}
	return &domain.SetupIntentResponse{
		ID:           intent.ID,
		ClientSecret: intent.ClientSecret,
		CustomerRef:  customer.CustomerRef,
	}, nil
}

func (s *Service) CreatePortalSession(ctx context.Context, req domain.PortalSessionRequest) (*domain.PortalSessionResponse, error) {
	ref, err := s.GetCustomerRef(ctx, req.TenantID)
	if err != nil {
		return nil, err
	}
	returnURL := strings.TrimSpace(req.ReturnURL)
	if returnURL == "" {
		returnURL = s.portalBack
	}
	session, err := s.processor.CreatePortalSession(ctx, ref, returnURL)
	if err != nil {
		return nil, err
	}
	return &domain.PortalSessionResponse{URL: session.URL}, nil
}
