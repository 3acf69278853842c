package main

import (
	"context"
	"fmt"

	"github.com/nats-io/nats.go"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/synadia-labs/cli-harness/internal/config"
	"github.com/synadia-labs/cli-harness/internal/harness"
	"github.com/synadia-labs/cli-harness/internal/logger"
)

// endpoint is what every subcommand needs from a transport.
type endpoint interface {
	harness.Runner
	Ping(ctx context.Context) error
	Environment(ctx context.Context) (map[string]string, error)
}

type rootOptions struct {
	configFile  string
	endpointUrl string
	token       string
	useNats     bool
	debug       bool
}

func NewRootCommand() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:           "harness",
		Short:         "Run commands on a storage node and wait for their effects",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	flags := cmd.PersistentFlags()
	flags.StringVar(&opts.configFile, "config", "", "YAML config file, overridden by HARNESS_* environment variables")
	flags.StringVar(&opts.endpointUrl, "endpoint", "", "command endpoint url (default $HARNESS_ENDPOINT_URL)")
	flags.StringVar(&opts.token, "token", "", "bearer token (default $HARNESS_API_TOKEN)")
	flags.BoolVar(&opts.useNats, "nats", false, "talk to the endpoint over NATS instead of HTTP")
	flags.BoolVar(&opts.debug, "debug", false, "log every poll")

	cmd.AddCommand(
		NewRunCommand(opts),
		NewWaitCommand(opts),
		NewSessionsCommand(opts),
		NewPingCommand(opts),
		NewEnvCommand(opts),
	)
	return cmd
}

func (o *rootOptions) load() (*config.Config, error) {
	if o.configFile != "" {
		return config.LoadFile(o.configFile)
	}
	return config.LoadConfig()
}

// connect returns the configured transport and a function releasing it.
func (o *rootOptions) connect() (endpoint, *config.Config, func(), error) {
	cfg, err := o.load()
	if err != nil {
		return nil, nil, nil, err
	}
	if o.debug {
		logger.New().SetLevel(logrus.DebugLevel)
	}

	if o.useNats {
		if !cfg.Nats.Enabled() {
			return nil, nil, nil, fmt.Errorf("--nats requires HARNESS_NATS_URL")
		}
		nc, err := nats.Connect(cfg.Nats.Url, nats.UserJWTAndSeed(cfg.Nats.Jwt, cfg.Nats.Nkey), nats.Name("harness"))
		if err != nil {
			return nil, nil, nil, fmt.Errorf("error connecting to nats: %s", err)
		}
		return harness.NewNATSClient(nc, cfg.Nats.Prefix), cfg, nc.Close, nil
	}

	url := o.endpointUrl
	if url == "" {
		url = cfg.Client.EndpointUrl
	}
	token := o.token
	if token == "" {
		token = cfg.Client.ApiToken
	}
	client, err := harness.NewClient(url, harness.WithToken(token))
	if err != nil {
		return nil, nil, nil, err
	}
	return client, cfg, func() {}, nil
}
