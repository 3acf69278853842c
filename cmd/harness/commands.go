package main

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"
	"github.com/synadia-labs/cli-harness/internal/harness"
	"github.com/synadia-labs/cli-harness/internal/logger"
	"github.com/synadia-labs/cli-harness/internal/steps"
)

func NewRunCommand(root *rootOptions) *cobra.Command {
	var (
		raw    bool
		inputs []string
		asJson bool
	)

	cmd := &cobra.Command{
		Use:   "run [flags] -- COMMAND [ARGS...]",
		Short: "Run an administrative command, or a shell command with --raw",
		Example: `  harness run -- search index --all-spaces
  harness run --input secret --input secret -- idm resetpassword -u admin
  harness run --raw -- 'ls -la /var/lib/opencloud/storage/users'`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, _, closeFn, err := root.connect()
			if err != nil {
				return err
			}
			defer closeFn()

			req := harness.Cmd(args[0], args[1:]...).Request(inputs...)
			if raw {
				req = harness.Request{Command: strings.Join(args, " "), Inputs: inputs, Raw: true}
			}

			env, err := client.Run(cmd.Context(), req)
			if err != nil {
				return err
			}

			if asJson {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				if err := enc.Encode(env); err != nil {
					return err
				}
			} else {
				fmt.Fprint(cmd.OutOrStdout(), env.Message)
			}

			if !env.Succeeded() {
				return fmt.Errorf("command failed with status %s and exit code %d", env.Status, env.ExitCode)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&raw, "raw", false, "run the command with the endpoint's shell")
	cmd.Flags().StringArrayVar(&inputs, "input", nil, "line written to the command's stdin, repeatable")
	cmd.Flags().BoolVar(&asJson, "json", false, "print the whole response envelope")
	return cmd
}

func NewWaitCommand(root *rootOptions) *cobra.Command {
	var (
		maxSeconds int
		size       string
	)

	cmd := &cobra.Command{
		Use:   "wait PATH",
		Short: "Wait until a path exists on the storage node, or reaches a size",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if size != "" {
				// fail on a malformed size before connecting
				if _, err := harness.ParseSize(size); err != nil {
					return err
				}
			}

			client, cfg, closeFn, err := root.connect()
			if err != nil {
				return err
			}
			defer closeFn()

			poller := harness.NewPoller(client,
				harness.WithInterval(cfg.Client.PollInterval),
				harness.WithLogger(logger.New()),
			)

			path := args[0]
			if size != "" {
				if !cmd.Flags().Changed("max-seconds") {
					maxSeconds = harness.DefaultSizeTimeout
				}
				err = poller.WaitForSize(cmd.Context(), path, size, maxSeconds)
			} else {
				err = poller.WaitForExistence(cmd.Context(), path, maxSeconds)
			}
			if err != nil {
				return err
			}

			logger.New().Success(cmd.OutOrStdout(), "%s is ready", path)
			return nil
		},
	}

	cmd.Flags().IntVar(&maxSeconds, "max-seconds", harness.DefaultExistenceTimeout, "give up after this many seconds")
	cmd.Flags().StringVar(&size, "size", "", "wait for at least this size, e.g. 5gb")
	return cmd
}

func NewSessionsCommand(root *rootOptions) *cobra.Command {
	var flag string

	cmd := &cobra.Command{
		Use:   "sessions",
		Short: "List upload sessions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, _, closeFn, err := root.connect()
			if err != nil {
				return err
			}
			defer closeFn()

			s, err := steps.New(steps.Deps{
				Runner: client,
				Poller: harness.NewPoller(client),
				Log:    logger.New(),
			})
			if err != nil {
				return err
			}
			if err := s.ListUploadSessions(cmd.Context(), flag); err != nil {
				return err
			}
			if err := s.CommandShouldBeSuccessful(); err != nil {
				return err
			}

			sessions, err := harness.DecodeJSONArray[steps.UploadSession](s.Last().Message)
			if err != nil {
				return err
			}
			for _, session := range sessions {
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", session.ID, session.Filename)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&flag, "flag", "", "filter flag passed on, e.g. expired or processing")
	return cmd
}

func NewPingCommand(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "ping",
		Short: "Check that the command endpoint answers",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, _, closeFn, err := root.connect()
			if err != nil {
				return err
			}
			defer closeFn()

			if err := client.Ping(cmd.Context()); err != nil {
				return err
			}
			logger.New().Success(cmd.OutOrStdout(), "PONG")
			return nil
		},
	}
}

func NewEnvCommand(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "env",
		Short: "Print the environment of the command endpoint",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, _, closeFn, err := root.connect()
			if err != nil {
				return err
			}
			defer closeFn()

			environ, err := client.Environment(cmd.Context())
			if err != nil {
				return err
			}
			keys := make([]string, 0, len(environ))
			for key := range environ {
				keys = append(keys, key)
			}
			sort.Strings(keys)
			for _, key := range keys {
				fmt.Fprintf(cmd.OutOrStdout(), "%s=%s\n", key, environ[key])
			}
			return nil
		},
	}
}
