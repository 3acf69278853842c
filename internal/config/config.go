package config

import (
	"encoding/base64"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"text/template"
	"time"

	"gopkg.in/yaml.v3"
)

const credsTempl = `-----BEGIN NATS USER JWT-----
{{.Jwt}}
------END NATS USER JWT------

************************* IMPORTANT *************************
NKEY Seed printed below can be used to sign and prove identity.
NKEYs are sensitive and should be treated as secrets.

-----BEGIN USER NKEY SEED-----
{{.Nkey}}
------END USER NKEY SEED------

*************************************************************`

const (
	DefaultHttpPort       = "8080"
	DefaultBinary         = "opencloud"
	DefaultCommandTimeout = 5 * time.Minute
	DefaultPollInterval   = 200 * time.Millisecond
	DefaultNatsPrefix     = "HARNESS"
)

type NatsConfig struct {
	Url    string `yaml:"url"`
	Nkey   string `yaml:"nkey"`
	Jwt    string `yaml:"jwt"`
	Prefix string `yaml:"prefix"`
}

// Enabled reports whether a NATS server was configured.
func (n NatsConfig) Enabled() bool {
	return n.Url != ""
}

type HttpConfig struct {
	Port    string `yaml:"port"`
	UseAuth bool   `yaml:"use_auth"`
}

// EndpointConfig drives command execution on the storage node.
type EndpointConfig struct {
	Binary         string        `yaml:"binary"`
	CommandTimeout time.Duration `yaml:"command_timeout"`
}

// ClientConfig drives the harness side.
type ClientConfig struct {
	EndpointUrl  string        `yaml:"endpoint_url"`
	ApiToken     string        `yaml:"api_token"`
	StoragePath  string        `yaml:"storage_path"`
	PollInterval time.Duration `yaml:"poll_interval"`
}

type Config struct {
	Http     HttpConfig     `yaml:"http"`
	Nats     NatsConfig     `yaml:"nats"`
	Endpoint EndpointConfig `yaml:"endpoint"`
	Client   ClientConfig   `yaml:"client"`
}

// LoadConfig reads the configuration from the environment.
func LoadConfig() (*Config, error) {
	cfg := &Config{}
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	return cfg, cfg.finish()
}

// LoadFile reads a YAML configuration file and lets the environment
// override it.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("error parsing config file %s: %w", path, err)
	}
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	return cfg, cfg.finish()
}

func (c *Config) applyEnv() error {
	setString(&c.Http.Port, "HARNESS_HTTP_PORT")
	if err := setBool(&c.Http.UseAuth, "HARNESS_USE_AUTH"); err != nil {
		return err
	}

	setString(&c.Endpoint.Binary, "HARNESS_CLI_BINARY")
	if err := setDuration(&c.Endpoint.CommandTimeout, "HARNESS_COMMAND_TIMEOUT"); err != nil {
		return err
	}

	setString(&c.Nats.Url, "HARNESS_NATS_URL")
	setString(&c.Nats.Prefix, "HARNESS_NATS_PREFIX")
	if nkey := strings.TrimSpace(os.Getenv("HARNESS_NATS_NKEY")); nkey != "" {
		c.Nats.Nkey = nkey
	}
	if jwtB64 := os.Getenv("HARNESS_NATS_B64_JWT"); jwtB64 != "" {
		jwtBytes, err := base64.StdEncoding.DecodeString(jwtB64)
		if err != nil {
			return fmt.Errorf("HARNESS_NATS_B64_JWT is invalid base64: %s", err)
		}
		c.Nats.Jwt = strings.TrimSpace(string(jwtBytes))
	}

	setString(&c.Client.EndpointUrl, "HARNESS_ENDPOINT_URL")
	setString(&c.Client.ApiToken, "HARNESS_API_TOKEN")
	setString(&c.Client.StoragePath, "OC_STORAGE_PATH")
	return setDuration(&c.Client.PollInterval, "HARNESS_POLL_INTERVAL")
}

// finish fills defaults and validates.
func (c *Config) finish() error {
	if c.Http.Port == "" {
		c.Http.Port = DefaultHttpPort
	}
	if c.Endpoint.Binary == "" {
		c.Endpoint.Binary = DefaultBinary
	}
	if c.Endpoint.CommandTimeout <= 0 {
		c.Endpoint.CommandTimeout = DefaultCommandTimeout
	}
	if c.Nats.Prefix == "" {
		c.Nats.Prefix = DefaultNatsPrefix
	}
	if c.Client.PollInterval <= 0 {
		c.Client.PollInterval = DefaultPollInterval
	}

	if c.Nats.Enabled() {
		if c.Nats.Nkey == "" {
			return fmt.Errorf("missing HARNESS_NATS_NKEY")
		}
		if c.Nats.Jwt == "" {
			return fmt.Errorf("missing HARNESS_NATS_B64_JWT")
		}
	}
	return nil
}

// SaveCreds writes a NATS creds file into the user's home directory so
// the nats CLI can be used from inside the endpoint's container.
func (c *Config) SaveCreds() (string, error) {
	tmpl, err := template.New("creds").Parse(credsTempl)
	if err != nil {
		return "", fmt.Errorf("error parsing creds template: %s", err)
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("error getting user home directory: %s", err)
	}

	file, err := os.OpenFile(filepath.Join(home, "creds.txt"), os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return "", fmt.Errorf("error creating nats creds file: %s", err)
	}
	defer file.Close()

	err = tmpl.Execute(file, map[string]string{
		"Jwt":  c.Nats.Jwt,
		"Nkey": c.Nats.Nkey,
	})
	if err != nil {
		return "", fmt.Errorf("error writing nats creds file: %s", err)
	}
	return file.Name(), nil
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setBool(dst *bool, key string) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fmt.Errorf("%s is not a boolean: %s", key, err)
	}
	*dst = b
	return nil
}

func setDuration(dst *time.Duration, key string) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fmt.Errorf("%s is not a duration: %s", key, err)
	}
	*dst = d
	return nil
}
