package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

const baseYAML = `
server:
  addr: ":8080"
db:
  dsn: "postgres://localhost/smm"
provider:
  base_url: "https://panel.example/api/v2"
  api_key: "secret"
pricing:
  markup_percent: 20
`

func TestLoadAppliesDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, baseYAML))
	require.NoError(t, err)

	require.Equal(t, ":8080", cfg.Server.Addr)
	require.Equal(t, 15, cfg.Provider.TimeoutSeconds)
	require.Equal(t, "BRL", cfg.Pricing.Currency)
	require.Equal(t, 20.0, cfg.Pricing.MarkupPercent)
	require.Equal(t, "X-User-Id", cfg.Auth.UserHeader)
	require.Equal(t, "smm-order-events", cfg.Kafka.Topic)
	require.Equal(t, 300, cfg.Catalog.CacheTTLSeconds)
	require.Equal(t, "info", cfg.Log.Level)
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("SERVER_ADDR", ":9090")
	t.Setenv("PROVIDER_TIMEOUT_SECONDS", "5")
	t.Setenv("KAFKA_BROKERS", "k1:9092,k2:9092")

	cfg, err := Load(writeConfig(t, baseYAML))
	require.NoError(t, err)

	require.Equal(t, ":9090", cfg.Server.Addr)
	require.Equal(t, 5, cfg.Provider.TimeoutSeconds)
	require.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Kafka.Brokers)
}

func TestLoadFromConfigPathEnv(t *testing.T) {
	t.Setenv("CONFIG_PATH", writeConfig(t, baseYAML))

	cfg, err := Load("")
	require.NoError(t, err)
	require.Equal(t, "postgres://localhost/smm", cfg.DB.DSN)
}

func TestLoadValidation(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{
			name: "missing dsn",
			body: "server:\n  addr: \":8080\"\nprovider:\n  base_url: x\n  api_key: y\n",
			want: "db.dsn is required",
		},
		{
			name: "missing provider",
			body: "server:\n  addr: \":8080\"\ndb:\n  dsn: x\n",
			want: "provider config is incomplete",
		},
		{
			name: "negative markup",
			body: "server:\n  addr: \":8080\"\ndb:\n  dsn: x\nprovider:\n  base_url: x\n  api_key: y\npricing:\n  markup_percent: -1\n",
			want: "pricing.markup_percent must not be negative",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.body))
			require.Error(t, err)
			if tt.want != "" {
				require.EqualError(t, err, tt.want)
			}
		})
	}
}
