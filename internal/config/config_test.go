package config

import (
	"encoding/base64"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	for _, key := range []string{
		"HARNESS_HTTP_PORT", "HARNESS_USE_AUTH", "HARNESS_CLI_BINARY", "HARNESS_COMMAND_TIMEOUT",
		"HARNESS_NATS_URL", "HARNESS_NATS_PREFIX", "HARNESS_NATS_NKEY", "HARNESS_NATS_B64_JWT",
		"HARNESS_ENDPOINT_URL", "HARNESS_API_TOKEN", "OC_STORAGE_PATH", "HARNESS_POLL_INTERVAL",
	} {
		t.Setenv(key, "")
	}
}

func TestLoadConfigDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := LoadConfig()
	require.NoError(t, err)
	require.Equal(t, DefaultHttpPort, cfg.Http.Port)
	require.False(t, cfg.Http.UseAuth)
	require.Equal(t, DefaultBinary, cfg.Endpoint.Binary)
	require.Equal(t, DefaultCommandTimeout, cfg.Endpoint.CommandTimeout)
	require.Equal(t, DefaultPollInterval, cfg.Client.PollInterval)
	require.Equal(t, DefaultNatsPrefix, cfg.Nats.Prefix)
	require.False(t, cfg.Nats.Enabled())
}

func TestLoadConfigFromEnv(t *testing.T) {
	clearEnv(t)
	t.Setenv("HARNESS_HTTP_PORT", "9200")
	t.Setenv("HARNESS_USE_AUTH", "true")
	t.Setenv("HARNESS_CLI_BINARY", "/usr/bin/opencloud")
	t.Setenv("HARNESS_COMMAND_TIMEOUT", "90s")
	t.Setenv("HARNESS_NATS_URL", "nats://localhost:4222")
	t.Setenv("HARNESS_NATS_NKEY", " SUAKEY \n")
	t.Setenv("HARNESS_NATS_B64_JWT", base64.StdEncoding.EncodeToString([]byte("eyJ0.jwt\n")))
	t.Setenv("HARNESS_ENDPOINT_URL", "http://storage:9200")
	t.Setenv("OC_STORAGE_PATH", "~/.opencloud/storage")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	require.Equal(t, "9200", cfg.Http.Port)
	require.True(t, cfg.Http.UseAuth)
	require.Equal(t, "/usr/bin/opencloud", cfg.Endpoint.Binary)
	require.Equal(t, 90*time.Second, cfg.Endpoint.CommandTimeout)
	require.True(t, cfg.Nats.Enabled())
	require.Equal(t, "SUAKEY", cfg.Nats.Nkey)
	require.Equal(t, "eyJ0.jwt", cfg.Nats.Jwt)
	require.Equal(t, "http://storage:9200", cfg.Client.EndpointUrl)
	require.Equal(t, "~/.opencloud/storage", cfg.Client.StoragePath)
}

func TestLoadConfigErrors(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
		err  string
	}{
		{
			name: "nats without nkey",
			env:  map[string]string{"HARNESS_NATS_URL": "nats://localhost:4222"},
			err:  "missing HARNESS_NATS_NKEY",
		},
		{
			name: "nats without jwt",
			env:  map[string]string{"HARNESS_NATS_URL": "nats://localhost:4222", "HARNESS_NATS_NKEY": "SUA"},
			err:  "missing HARNESS_NATS_B64_JWT",
		},
		{
			name: "bad jwt",
			env:  map[string]string{"HARNESS_NATS_B64_JWT": "%%%"},
			err:  "HARNESS_NATS_B64_JWT is invalid base64",
		},
		{
			name: "bad bool",
			env:  map[string]string{"HARNESS_USE_AUTH": "maybe"},
			err:  "HARNESS_USE_AUTH is not a boolean",
		},
		{
			name: "bad duration",
			env:  map[string]string{"HARNESS_POLL_INTERVAL": "fast"},
			err:  "HARNESS_POLL_INTERVAL is not a duration",
		},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			clearEnv(t)
			for k, v := range test.env {
				t.Setenv(k, v)
			}
			_, err := LoadConfig()
			require.ErrorContains(t, err, test.err)
		})
	}
}

func TestLoadFile(t *testing.T) {
	clearEnv(t)
	t.Setenv("HARNESS_API_TOKEN", "from-env")

	path := filepath.Join(t.TempDir(), "harness.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
http:
  port: "9000"
client:
  endpoint_url: http://localhost:9000
  api_token: from-file
  storage_path: /srv/storage
  poll_interval: 50ms
`), 0o600))

	cfg, err := LoadFile(path)
	require.NoError(t, err)
	require.Equal(t, "9000", cfg.Http.Port)
	require.Equal(t, "http://localhost:9000", cfg.Client.EndpointUrl)
	require.Equal(t, "from-env", cfg.Client.ApiToken)
	require.Equal(t, "/srv/storage", cfg.Client.StoragePath)
	require.Equal(t, 50*time.Millisecond, cfg.Client.PollInterval)
	require.Equal(t, DefaultBinary, cfg.Endpoint.Binary)
}

func TestSaveCreds(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	cfg := &Config{Nats: NatsConfig{Jwt: "the-jwt", Nkey: "the-seed"}}
	path, err := cfg.SaveCreds()
	require.NoError(t, err)
	require.Equal(t, filepath.Join(home, "creds.txt"), path)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Contains(t, string(data), "the-jwt\n------END NATS USER JWT------")
	require.Contains(t, string(data), "the-seed\n------END USER NKEY SEED------")
}
