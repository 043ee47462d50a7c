package config

import (
	"errors"
	"log"
	"strings"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// Policy carries the tunables of the credit engine that operators may
// change without a redeploy.
type Policy struct {
	CooldownWindow   time.Duration `mapstructure:"cooldownWindow"`
	LockTTL          time.Duration `mapstructure:"lockTTL"`
	ProcessorTimeout time.Duration `mapstructure:"processorTimeout"`
	MaxAppendRetries int           `mapstructure:"maxAppendRetries"`

	WorkerPollInterval time.Duration `mapstructure:"workerPollInterval"`
	WorkerBatchSize    int           `mapstructure:"workerBatchSize"`

	DefaultOverdraftPercent    float64 `mapstructure:"defaultOverdraftPercent"`
	DefaultLowBalanceThreshold int64   `mapstructure:"defaultLowBalanceThreshold"`
	MinRechargeAmountCents     int64   `mapstructure:"minRechargeAmountCents"`
	Currency                   string  `mapstructure:"currency"`
	CreditsPerMinorUnit        int64   `mapstructure:"creditsPerMinorUnit"`
}

func DefaultPolicy() Policy {
	return Policy{
		CooldownWindow:             5 * time.Minute,
		LockTTL:                    2 * time.Minute,
		ProcessorTimeout:           30 * time.Second,
		MaxAppendRetries:           5,
		WorkerPollInterval:         2 * time.Second,
		WorkerBatchSize:            25,
		DefaultOverdraftPercent:    0,
		DefaultLowBalanceThreshold: 1000,
		MinRechargeAmountCents:     500,
		Currency:                   "brl",
		CreditsPerMinorUnit:        1,
	}
}

type PolicyHolder struct {
	current atomic.Value // holds Policy
}

// NewStaticPolicyHolder returns a holder that never reloads.
func NewStaticPolicyHolder(p Policy) *PolicyHolder {
	holder := &PolicyHolder{}
	holder.current.Store(p)
	return holder
}

func NewPolicyHolder(cfg Config) (*PolicyHolder, error) {
	v := viper.New()

	if cfg.PolicyFile != "" {
		v.SetConfigFile(cfg.PolicyFile)
	} else {
		v.SetConfigName("credits")
		v.SetConfigType("yml")
		v.AddConfigPath("/etc/credits")
		v.AddConfigPath("./config")
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix("CREDITS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	defaults := DefaultPolicy()
	v.SetDefault("policy.cooldownWindow", defaults.CooldownWindow)
	v.SetDefault("policy.lockTTL", defaults.LockTTL)
	v.SetDefault("policy.processorTimeout", defaults.ProcessorTimeout)
	v.SetDefault("policy.maxAppendRetries", defaults.MaxAppendRetries)
	v.SetDefault("policy.workerPollInterval", defaults.WorkerPollInterval)
	v.SetDefault("policy.workerBatchSize", defaults.WorkerBatchSize)
	v.SetDefault("policy.defaultOverdraftPercent", defaults.DefaultOverdraftPercent)
	v.SetDefault("policy.defaultLowBalanceThreshold", defaults.DefaultLowBalanceThreshold)
	v.SetDefault("policy.minRechargeAmountCents", defaults.MinRechargeAmountCents)
	v.SetDefault("policy.currency", defaults.Currency)
	v.SetDefault("policy.creditsPerMinorUnit", defaults.CreditsPerMinorUnit)

	fileLoaded := true
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
		fileLoaded = false
	}

	var p Policy
	if err := v.UnmarshalKey("policy", &p); err != nil {
		return nil, err
	}
	if err := validatePolicy(p); err != nil {
		return nil, err
	}

	holder := NewStaticPolicyHolder(p)
	if !fileLoaded {
		return holder, nil
	}

	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		var updated Policy
		if err := v.UnmarshalKey("policy", &updated); err != nil {
			log.Printf("[credits-policy] reload failed: %v", err)
			return
		}
		if err := validatePolicy(updated); err != nil {
			log.Printf("[credits-policy] invalid policy ignored: %v", err)
			return
		}
		holder.current.Store(updated)
		log.Printf("[credits-policy] reloaded from %s", e.Name)
	})

	return holder, nil
}

func (h *PolicyHolder) Get() Policy {
	if h == nil {
		return DefaultPolicy()
	}
	return h.current.Load().(Policy)
}

func validatePolicy(p Policy) error {
	if p.CooldownWindow < 0 {
		return errors.New("policy.cooldownWindow cannot be negative")
	}
	if p.LockTTL <= 0 {
		return errors.New("policy.lockTTL must be positive")
	}
	if p.ProcessorTimeout <= 0 {
		return errors.New("policy.processorTimeout must be positive")
	}
	if p.MaxAppendRetries < 0 {
		return errors.New("policy.maxAppendRetries cannot be negative")
	}
	if p.DefaultOverdraftPercent < 0 || p.DefaultOverdraftPercent > 1 {
		return errors.New("policy.defaultOverdraftPercent must be within 0..1")
	}
	if p.DefaultLowBalanceThreshold < 0 {
		return errors.New("policy.defaultLowBalanceThreshold cannot be negative")
	}
	if p.CreditsPerMinorUnit <= 0 {
		return errors.New("policy.creditsPerMinorUnit must be positive")
	}
	if strings.TrimSpace(p.Currency) == "" {
		return errors.New("policy.currency is required")
	}
	return nil
}
