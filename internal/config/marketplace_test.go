package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultMarketplaceConfigIsValid(t *testing.T) {
	cfg := DefaultMarketplaceConfig()
	require.NoError(t, validateMarketplaceConfig(cfg))
	assert.Contains(t, cfg.AllowedStyles, "classic")
}

func TestValidateMarketplaceConfig(t *testing.T) {
	base := DefaultMarketplaceConfig()

	negativeRate := base
	negativeRate.FeeRate = -0.1
	assert.Error(t, validateMarketplaceConfig(negativeRate))

	fullRate := base
	fullRate.FeeRate = 1.0
	assert.Error(t, validateMarketplaceConfig(fullRate))

	negativeFloor := base
	negativeFloor.MinimumFee = -1
	assert.Error(t, validateMarketplaceConfig(negativeFloor))

	noStyles := base
	noStyles.AllowedStyles = nil
	assert.Error(t, validateMarketplaceConfig(noStyles))
}

func TestStaticHolderPinsConfig(t *testing.T) {
	cfg := MarketplaceConfig{
		FeeRate:       0.25,
		MinimumFee:    100,
		AllowedStyles: []string{"classic"},
		PublicBaseURL: "https://example.test",
	}
	holder := NewStaticMarketplaceConfigHolder(cfg)
	require.Equal(t, cfg, holder.Get())
}
