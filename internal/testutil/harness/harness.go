// Package harness wires the credit engine against an in-memory database,
// a fake clock and a mocked payment processor for cross-package tests.
package harness

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	autorechargedomain "github.com/smallbiznis/credits/internal/autorecharge/domain"
	autorechargerepo "github.com/smallbiznis/credits/internal/autorecharge/repository"
	autorechargeservice "github.com/smallbiznis/credits/internal/autorecharge/service"
	"github.com/smallbiznis/credits/internal/autorecharge/trigger"
	"github.com/smallbiznis/credits/internal/clock"
	"github.com/smallbiznis/credits/internal/config"
	"github.com/smallbiznis/credits/internal/lock"
	"github.com/smallbiznis/credits/internal/payment/adapters"
	"github.com/smallbiznis/credits/internal/payment/adapters/stripe"
	"github.com/smallbiznis/credits/internal/payment/customer"
	paymentdomain "github.com/smallbiznis/credits/internal/payment/domain"
	"github.com/smallbiznis/credits/internal/payment/processor/processortest"
	paymentrepo "github.com/smallbiznis/credits/internal/payment/repository"
	paymentservice "github.com/smallbiznis/credits/internal/payment/service"
	"github.com/smallbiznis/credits/internal/payment/webhook"
	rechargerepo "github.com/smallbiznis/credits/internal/recharge/repository"
	rechargeservice "github.com/smallbiznis/credits/internal/recharge/service"
	"github.com/smallbiznis/credits/internal/testutil"
	walletdomain "github.com/smallbiznis/credits/internal/wallet/domain"
	walletrepo "github.com/smallbiznis/credits/internal/wallet/repository"
	walletservice "github.com/smallbiznis/credits/internal/wallet/service"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const WebhookSecret = "whsec_test"

// Epoch is where every harness clock starts.
var Epoch = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type Engine struct {
	DB        *gorm.DB
	Node      *snowflake.Node
	Clock     *clock.FakeClock
	Policy    *config.PolicyHolder
	Processor *processortest.Mock
	Locker    lock.Locker

	Wallet    walletdomain.Service
	Configs   autorechargedomain.Service
	Trigger   *trigger.Trigger
	Recharge  *rechargeservice.Service
	Customers paymentdomain.CustomerService
	Events    paymentdomain.EventService
	Webhooks  paymentdomain.WebhookService
}

func New(t *testing.T, tune ...func(*config.Policy)) *Engine {
	t.Helper()

	db := testutil.OpenDB(t)
	node, err := snowflake.NewNode(3)
	if err != nil {
		t.Fatalf("new node: %v", err)
	}

	p := config.DefaultPolicy()
	for _, fn := range tune {
		fn(&p)
	}
	policy := config.NewStaticPolicyHolder(p)
	clk := clock.NewFakeClock(Epoch)
	proc := &processortest.Mock{}
	locker := lock.NewLeaseLocker(db, clk)
	log := zap.NewNop()

	e := &Engine{
		DB:        db,
		Node:      node,
		Clock:     clk,
		Policy:    policy,
		Processor: proc,
		Locker:    locker,
	}

	e.Customers = customer.NewService(customer.Params{
		DB:        db,
		Log:       log,
		Repo:      paymentrepo.Provide(),
		Processor: proc,
		Clock:     clk,
	})
	autorechargeRepo := autorechargerepo.Provide()
	e.Configs = autorechargeservice.NewService(autorechargeservice.Params{
		DB:        db,
		Log:       log,
		GenID:     node,
		Repo:      autorechargeRepo,
		Policy:    policy,
		Processor: proc,
		Clock:     clk,
	})
	e.Recharge = rechargeservice.NewService(rechargeservice.Params{
		DB:        db,
		Log:       log,
		GenID:     node,
		Repo:      rechargerepo.Provide(),
		Configs:   e.Configs,
		Customers: e.Customers,
		Processor: proc,
		Locker:    locker,
		Policy:    policy,
		Clock:     clk,
	})
	e.Trigger = trigger.New(trigger.Params{
		DB:     db,
		Log:    log,
		Repo:   autorechargeRepo,
		Locker: locker,
		Queue:  e.Recharge,
		Policy: policy,
		Clock:  clk,
	})
	e.Wallet = walletservice.NewService(walletservice.Params{
		DB:       db,
		Log:      log,
		GenID:    node,
		Repo:     walletrepo.Provide(),
		Policy:   policy,
		Clock:    clk,
		Observer: e.Trigger,
	})
	e.Events = paymentservice.NewService(paymentservice.Params{
		DB:        db,
		Log:       log,
		GenID:     node,
		Repo:      paymentrepo.Provide(),
		Wallet:    e.Wallet,
		Customers: e.Customers,
		Policy:    policy,
		Recharge:  e.Recharge,
		Clock:     clk,
	})
	e.Webhooks = webhook.NewService(webhook.Params{
		Log:    log,
		Events: e.Events,
		Adapters: adapters.NewRegistry(
			map[string]string{paymentdomain.ProviderStripe: WebhookSecret},
			stripe.NewFactory(),
		),
	})
	return e
}

// Tenant provisions a wallet holding balance credits with the given threshold
// and no overdraft.
func (e *Engine) Tenant(t *testing.T, balance, threshold int64) snowflake.ID {
	t.Helper()

	ctx := context.Background()
	tenantID := e.Node.Generate()
	if _, err := e.Wallet.ProvisionWallet(ctx, walletdomain.ProvisionRequest{
		TenantID:                   tenantID,
		LowBalanceThresholdCredits: &threshold,
	}); err != nil {
		t.Fatalf("provision wallet: %v", err)
	}
	if balance > 0 {
		if _, err := e.Wallet.Credit(ctx, walletdomain.CreditRequest{
			TenantID:      tenantID,
			AmountCredits: balance,
			SourceType:    walletdomain.SourceTypeAdjustment,
			SourceRef:     "opening-" + tenantID.String(),
		}); err != nil {
			t.Fatalf("seed balance: %v", err)
		}
	}
	return tenantID
}

// EnableAutoRecharge stores an enabled config and a customer mapping for tenantID.
func (e *Engine) EnableAutoRecharge(t *testing.T, tenantID snowflake.ID, threshold, amountCents int64) *autorechargedomain.Config {
	t.Helper()

	ctx := context.Background()
	now := e.Clock.Now()
	if _, err := paymentrepo.Provide().InsertCustomer(ctx, e.DB, &paymentdomain.Customer{
		TenantID:    tenantID,
		Provider:    e.Processor.Provider(),
		CustomerRef: "cus_" + tenantID.String(),
		CreatedAt:   now,
	}); err != nil {
		t.Fatalf("insert customer: %v", err)
	}
	cfg := &autorechargedomain.Config{
		ID:                    e.Node.Generate(),
		TenantID:              tenantID,
		IsEnabled:             true,
		ThresholdCredits:      threshold,
		RechargeAmountCents:   amountCents,
		StripePaymentMethodID: "pm_card_visa",
		CardBrand:             "visa",
		CardLast4:             "4242",
		CreatedAt:             now,
		UpdatedAt:             now,
	}
	if err := autorechargerepo.Provide().Upsert(ctx, e.DB, cfg); err != nil {
		t.Fatalf("upsert config: %v", err)
	}
	return cfg
}
