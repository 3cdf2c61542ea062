package config_test

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MrJamesThe3rd/unpaper/internal/config"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := config.Load()
	require.NoError(t, err)

	assert.Equal(t, config.DriverPostgres, cfg.Storage.Driver)
	assert.Equal(t, 168*time.Hour, cfg.Signing.TokenTTL)
	assert.Equal(t, 10, cfg.Signing.MaxAttempts)
	assert.True(t, decimal.NewFromInt(29990).Equal(cfg.Billing.ProcedureFee))
	assert.Equal(t, "CLP", cfg.Billing.Currency)
}

func TestLoad(t *testing.T) {
	type testCase struct {
		name    string
		env     map[string]string
		wantErr bool
		check   func(t *testing.T, cfg *config.Config)
	}

	tests := []testCase{
		{
			name: "Overrides",
			env: map[string]string{
				"STORAGE_DRIVER":        "memory",
				"SIGNING_MAX_ATTEMPTS":  "3",
				"BILLING_PROCEDURE_FEE": "1500.50",
				"CORS_ORIGINS":          "https://a.example,https://b.example",
				"AUTH_DEV_LOGIN":        "true",
			},
			check: func(t *testing.T, cfg *config.Config) {
				assert.Equal(t, config.DriverMemory, cfg.Storage.Driver)
				assert.Equal(t, 3, cfg.Signing.MaxAttempts)
				assert.Equal(t, "1500.5", cfg.Billing.ProcedureFee.String())
				assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.Server.CORSOrigins)
				assert.True(t, cfg.Auth.DevLogin)
			},
		},
		{
			name:    "UnknownDriver",
			env:     map[string]string{"STORAGE_DRIVER": "sqlite"},
			wantErr: true,
		},
		{
			name:    "NoAttempts",
			env:     map[string]string{"SIGNING_MAX_ATTEMPTS": "0"},
			wantErr: true,
		},
		{
			name:    "BadDuration",
			env:     map[string]string{"SIGNING_TOKEN_TTL": "soon"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}

			cfg, err := config.Load()
			if tt.wantErr {
				assert.Error(t, err)
				return
			}

			require.NoError(t, err)
			tt.check(t, cfg)
		})
	}
}
