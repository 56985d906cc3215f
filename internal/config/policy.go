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

// PolicyConfig holds operator-tunable booking policy. Pricing tiers are fixed
// commercial constants; the policy file only controls operational windows.
type PolicyConfig struct {
	HoldTimeoutMinutes      int `mapstructure:"holdTimeoutMinutes"`
	ClickDedupWindowMinutes int `mapstructure:"clickDedupWindowMinutes"`
	SchedulerBatchSize      int `mapstructure:"schedulerBatchSize"`
}

func DefaultPolicyConfig() PolicyConfig {
	return PolicyConfig{
		HoldTimeoutMinutes:      30,
		ClickDedupWindowMinutes: 30,
		SchedulerBatchSize:      50,
	}
}

func (p PolicyConfig) HoldTimeout() time.Duration {
	return time.Duration(p.HoldTimeoutMinutes) * time.Minute
}

func (p PolicyConfig) ClickDedupWindow() time.Duration {
	return time.Duration(p.ClickDedupWindowMinutes) * time.Minute
}

// PolicyHolder exposes the current policy and hot-reloads it on file change.
type PolicyHolder struct {
	current atomic.Value // holds PolicyConfig
}

func NewPolicyHolder() (*PolicyHolder, error) {
	v := viper.New()

	v.SetConfigName("policy")
	v.SetConfigType("yml")
	v.AddConfigPath("/var/lib/slotline/config")
	v.AddConfigPath("/etc/slotline")
	v.AddConfigPath(".")

	v.SetEnvPrefix("SLOTLINE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	defaults := DefaultPolicyConfig()
	v.SetDefault("policy.holdTimeoutMinutes", defaults.HoldTimeoutMinutes)
	v.SetDefault("policy.clickDedupWindowMinutes", defaults.ClickDedupWindowMinutes)
	v.SetDefault("policy.schedulerBatchSize", defaults.SchedulerBatchSize)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	var cfg PolicyConfig
	if err := v.UnmarshalKey("policy", &cfg); err != nil {
		return nil, err
	}
	if err := validatePolicyConfig(cfg); err != nil {
		return nil, err
	}

	holder := &PolicyHolder{}
	holder.current.Store(cfg)

	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		var updated PolicyConfig
		if err := v.UnmarshalKey("policy", &updated); err != nil {
			log.Printf("[policy-config] reload failed: %v", err)
			return
		}
		if err := validatePolicyConfig(updated); err != nil {
			log.Printf("[policy-config] invalid config ignored: %v", err)
			return
		}
		holder.current.Store(updated)
		log.Printf("[policy-config] reloaded from %s", e.Name)
	})

	return holder, nil
}

func (h *PolicyHolder) Get() PolicyConfig {
	return h.current.Load().(PolicyConfig)
}

func validatePolicyConfig(cfg PolicyConfig) error {
	if cfg.HoldTimeoutMinutes <= 0 {
		return errors.New("policy.holdTimeoutMinutes must be positive")
	}
	if cfg.ClickDedupWindowMinutes <= 0 {
		return errors.New("policy.clickDedupWindowMinutes must be positive")
	}
	if cfg.SchedulerBatchSize <= 0 {
		return errors.New("policy.schedulerBatchSize must be positive")
	}
	return nil
}
