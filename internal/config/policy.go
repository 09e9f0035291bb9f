package config

import (
	"errors"
	"log"
	"strings"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// ReconcilePolicy is the operator-tunable reconciliation policy. It is kept
// separate from the env Config so it can be adjusted on a running instance
// without a restart.
type ReconcilePolicy struct {
	// MaxInvalidRate is the STOP-guard threshold: an execute run whose
	// invalid-row share exceeds it is blocked before any write.
	MaxInvalidRate float64 `mapstructure:"maxInvalidRate"`
	// SampleLimit bounds how many samples of each outcome a run reports.
	SampleLimit int `mapstructure:"sampleLimit"`
	// AmountTolerance is the aggregate comparison tolerance in currency
	// units (per-row audit is always exact).
	AmountTolerance float64 `mapstructure:"amountTolerance"`
	// MaxRowsPerRun bounds one invocation; unbounded scans are rejected.
	MaxRowsPerRun int `mapstructure:"maxRowsPerRun"`
}

func DefaultReconcilePolicy() ReconcilePolicy {
	return ReconcilePolicy{
		MaxInvalidRate:  0.10,
		SampleLimit:     10,
		AmountTolerance: 0.01,
		MaxRowsPerRun:   10_000,
	}
}

type PolicyHolder struct {
	current atomic.Value // holds ReconcilePolicy
}

func NewPolicyHolder() (*PolicyHolder, error) {
	v := viper.New()

	v.SetConfigName("reconcile")
	v.SetConfigType("yml")
	v.AddConfigPath("/var/lib/reconcile/config")
	v.AddConfigPath("/etc/reconcile")
	v.AddConfigPath(".")

	v.SetEnvPrefix("RECONCILE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
		defaults := DefaultReconcilePolicy()
		v.SetDefault("policy.maxInvalidRate", defaults.MaxInvalidRate)
		v.SetDefault("policy.sampleLimit", defaults.SampleLimit)
		v.SetDefault("policy.amountTolerance", defaults.AmountTolerance)
		v.SetDefault("policy.maxRowsPerRun", defaults.MaxRowsPerRun)
	}

	var cfg ReconcilePolicy
	if err := v.UnmarshalKey("policy", &cfg); err != nil {
		return nil, err
	}
	if err := validatePolicy(cfg); err != nil {
		return nil, err
	}

	holder := &PolicyHolder{}
	holder.current.Store(cfg)

	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		var updated ReconcilePolicy
		if err := v.UnmarshalKey("policy", &updated); err != nil {
			log.Printf("[reconcile-policy] reload failed: %v", err)
			return
		}
		if err := validatePolicy(updated); err != nil {
			log.Printf("[reconcile-policy] invalid config ignored: %v", err)
			return
		}
		holder.current.Store(updated)
		log.Printf("[reconcile-policy] reloaded from %s", e.Name)
	})

	return holder, nil
}

// NewStaticPolicyHolder returns a holder pinned to the given policy. Used by
// tests and callers that do not want file watching.
func NewStaticPolicyHolder(p ReconcilePolicy) *PolicyHolder {
	holder := &PolicyHolder{}
	holder.current.Store(p)
	return holder
}

func (h *PolicyHolder) Get() ReconcilePolicy {
	return h.current.Load().(ReconcilePolicy)
}

func validatePolicy(cfg ReconcilePolicy) error {
	if cfg.MaxInvalidRate <= 0 || cfg.MaxInvalidRate >= 1 {
		return errors.New("policy.maxInvalidRate must be in (0, 1)")
	}
	if cfg.SampleLimit <= 0 {
		return errors.New("policy.sampleLimit must be positive")
	}
	if cfg.AmountTolerance < 0 {
		return errors.New("policy.amountTolerance cannot be negative")
	}
	if cfg.MaxRowsPerRun <= 0 {
		return errors.New("policy.maxRowsPerRun must be positive")
	}
	return nil
}
