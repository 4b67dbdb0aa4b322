package config

import (
	"errors"
	"log"
	"strings"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// MarketplaceConfig carries the tunable marketplace policy: resale fee,
// content allow-list and the public URL base handed to the email/PDF
// collaborator.
type MarketplaceConfig struct {
	FeeRate       float64  `mapstructure:"feeRate"`
	MinimumFee    int64    `mapstructure:"minimumFee"`
	AllowedStyles []string `mapstructure:"allowedStyles"`
	PublicBaseURL string   `mapstructure:"publicBaseURL"`
}

func DefaultMarketplaceConfig() MarketplaceConfig {
	return MarketplaceConfig{
		FeeRate:       0.10,
		MinimumFee:    50,
		AllowedStyles: []string{"classic", "modern", "minimal", "festive", "noir"},
		PublicBaseURL: "https://ownaday.example",
	}
}

type MarketplaceConfigHolder struct {
	current atomic.Value // holds MarketplaceConfig
}

func NewMarketplaceConfigHolder() (*MarketplaceConfigHolder, error) {
	v := viper.New()

	v.SetConfigName("marketplace")
	v.SetConfigType("yml")
	v.AddConfigPath("/var/lib/daybook/config")
	v.AddConfigPath("/etc/daybook")
	v.AddConfigPath(".")

	v.SetEnvPrefix("DAYBOOK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
		defaults := DefaultMarketplaceConfig()
		v.SetDefault("marketplace.feeRate", defaults.FeeRate)
		v.SetDefault("marketplace.minimumFee", defaults.MinimumFee)
		v.SetDefault("marketplace.allowedStyles", defaults.AllowedStyles)
		v.SetDefault("marketplace.publicBaseURL", defaults.PublicBaseURL)
	}

	var cfg MarketplaceConfig
	if err := v.UnmarshalKey("marketplace", &cfg); err != nil {
		return nil, err
	}
	if err := validateMarketplaceConfig(cfg); err != nil {
		return nil, err
	}

	holder := &MarketplaceConfigHolder{}
	holder.current.Store(cfg)

	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		var updated MarketplaceConfig
		if err := v.UnmarshalKey("marketplace", &updated); err != nil {
			log.Printf("[marketplace-config] reload failed: %v", err)
			return
		}
		if err := validateMarketplaceConfig(updated); err != nil {
			log.Printf("[marketplace-config] invalid config ignored: %v", err)
			return
		}
		holder.current.Store(updated)
		log.Printf("[marketplace-config] reloaded from %s", e.Name)
	})

	return holder, nil
}

func (h *MarketplaceConfigHolder) Get() MarketplaceConfig {
	return h.current.Load().(MarketplaceConfig)
}

// NewStaticMarketplaceConfigHolder returns a holder pinned to cfg. Used by tests.
func NewStaticMarketplaceConfigHolder(cfg MarketplaceConfig) *MarketplaceConfigHolder {
	holder := &MarketplaceConfigHolder{}
	holder.current.Store(cfg)
	return holder
}

func validateMarketplaceConfig(cfg MarketplaceConfig) error {
	if cfg.FeeRate < 0 || cfg.FeeRate >= 1 {
		return errors.New("marketplace.feeRate must be in [0, 1)")
	}
	if cfg.MinimumFee < 0 {
		return errors.New("marketplace.minimumFee cannot be negative")
	}
	if len(cfg.AllowedStyles) == 0 {
		return errors.New("marketplace.allowedStyles cannot be empty")
	}
	return nil
}
