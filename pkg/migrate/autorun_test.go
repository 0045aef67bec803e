package migrate

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/asbolsyn/mealmarket-backend/pkg/config"
)

func TestAutoRunReason(t *testing.T) {
	cases := []struct {
		name string
		cfg  config.Config
		want string
	}{
		{"prod postgres", config.Config{App: config.AppConfig{Env: config.AppEnvProd}, DB: config.DBConfig{Driver: "postgres"}}, ""},
		{"dev postgres without flag", config.Config{App: config.AppConfig{Env: config.AppEnvDev}, DB: config.DBConfig{Driver: "postgres"}}, ""},
		{"dev postgres with flag", config.Config{
			App:          config.AppConfig{Env: config.AppEnvDev},
			DB:           config.DBConfig{Driver: "postgres"},
			FeatureFlags: config.FeatureFlagsConfig{AutoMigrate: true},
		}, "dev auto-migrate flag"},
		{"prod sqlite", config.Config{App: config.AppConfig{Env: config.AppEnvProd}, DB: config.DBConfig{Driver: "SQLite"}}, "sqlite driver"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.want, autoRunReason(&tc.cfg))
		})
	}
}
