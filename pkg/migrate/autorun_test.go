package migrate

import (
	"context"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/portal-crm-backend/pkg/config"
	"github.com/angelmondragon/portal-crm-backend/pkg/logger"
)

func devConfig(autoMigrate, sqlite bool) *config.Config {
	return &config.Config{
		App:          config.AppConfig{Env: config.AppEnvDev},
		FeatureFlags: config.FeatureFlagsConfig{AutoMigrate: autoMigrate, UseSQLite: sqlite},
	}
}

func TestMaybeRunDevSkips(t *testing.T) {
	logg := logger.New(logger.Options{ServiceName: "migrate-test", Output: io.Discard})

	prod := devConfig(true, false)
	prod.App.Env = config.AppEnvProd

	tests := []struct {
		name   string
		cfg    *config.Config
		reason string
	}{
		{"prod", prod, "not a dev environment"},
		{"flag off", devConfig(false, false), "auto-migrate disabled"},
		{"sqlite", devConfig(true, true), "sqlite backend; migrations target postgres"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.reason, skipReason(tt.cfg))
			require.NoError(t, MaybeRunDev(context.Background(), tt.cfg, logg, nil))
		})
	}
}

func TestMaybeRunDevRequiresClient(t *testing.T) {
	logg := logger.New(logger.Options{ServiceName: "migrate-test", Output: io.Discard})
	cfg := devConfig(true, false)

	assert.Empty(t, skipReason(cfg))
	assert.Error(t, MaybeRunDev(context.Background(), cfg, logg, nil))
}
