// Package steps drives administrative acceptance scenarios against a
// storage node through the command endpoint: CLI subcommands of the
// administrative binary and POSIX filesystem changes that the server is
// expected to pick up.
package steps

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/synadia-labs/cli-harness/internal/harness"
)

// Pauses that give the server time to react to a filesystem change.
const (
	settleShort    = time.Second
	settleBatch    = 3 * time.Second
	settleLargeIO  = 7 * time.Second
	largeFileWait  = harness.DefaultSizeTimeout
	existenceWait  = harness.DefaultExistenceTimeout
	megabytesPerGB = 1024
)

// Users resolves scenario user names.
type Users interface {
	// UserID returns the id of a user created by the scenario.
	UserID(ctx context.Context, user string) (string, error)
	// UserName returns the account name the server knows the user by.
	UserName(user string) string
}

// Spaces resolves spaces and files to server ids.
type Spaces interface {
	SpaceID(ctx context.Context, user, space string) (string, error)
	FileID(ctx context.Context, user, space, file string) (string, error)
}

// Files downloads a file as user. A download only succeeds once the
// server finished postprocessing the file, so it doubles as a barrier.
type Files interface {
	Download(ctx context.Context, user, file string) error
}

// Passwords records a changed password for later requests of the scenario.
type Passwords interface {
	UpdatePassword(user, password string)
}

type Deps struct {
	Runner harness.Runner
	Poller *harness.Poller
	Layout Layout

	Users     Users
	Spaces    Spaces
	Files     Files
	Passwords Passwords

	// AdminUser owns the project spaces looked up by name.
	AdminUser string
	// StorageRoot is handed to CLI subcommands that take "-p". It
	// defaults to the root of Layout.
	StorageRoot string

	Sleep func(time.Duration)
	Log   logrus.FieldLogger
}

// Steps belongs to one scenario and keeps the last command response for
// the assertions. It is not safe for concurrent use.
type Steps struct {
	Deps
	last *harness.Envelope
}

func New(deps Deps) (*Steps, error) {
	if deps.Runner == nil {
		return nil, fmt.Errorf("steps: runner is required")
	}
	if deps.Poller == nil {
		return nil, fmt.Errorf("steps: poller is required")
	}
	if deps.Layout.IsZero() {
		deps.Layout = LayoutFromEnv()
	}
	if deps.StorageRoot == "" {
		deps.StorageRoot = deps.Layout.Root()
	}
	if deps.Sleep == nil {
		deps.Sleep = time.Sleep
	}
	if deps.Log == nil {
		deps.Log = logrus.StandardLogger()
	}
	return &Steps{Deps: deps}, nil
}

// Last returns the response of the last recorded command.
func (s *Steps) Last() *harness.Envelope {
	return s.last
}

// run submits req and records its response.
func (s *Steps) run(ctx context.Context, req harness.Request) error {
	env, err := s.exec(ctx, req)
	if err != nil {
		return err
	}
	s.last = env
	return nil
}

// exec submits req without recording it.
func (s *Steps) exec(ctx context.Context, req harness.Request) (*harness.Envelope, error) {
	s.Log.WithField("raw", req.Raw).Debugf("running %q", req.Command)
	env, err := s.Runner.Run(ctx, req)
	if err != nil {
		return nil, err
	}
	s.Log.WithFields(logrus.Fields{"status": env.Status, "exit_code": env.ExitCode}).Debug("command finished")
	return env, nil
}

func (s *Steps) userID(ctx context.Context, user string) (string, error) {
	if s.Users == nil {
		return "", fmt.Errorf("steps: no user directory configured")
	}
	id, err := s.Users.UserID(ctx, user)
	if err != nil {
		return "", errors.Wrapf(err, "looking up id of user %q", user)
	}
	return id, nil
}

func (s *Steps) spaceID(ctx context.Context, space string) (string, error) {
	if s.Spaces == nil {
		return "", fmt.Errorf("steps: no space directory configured")
	}
	id, err := s.Spaces.SpaceID(ctx, s.AdminUser, space)
	if err != nil {
		return "", errors.Wrapf(err, "looking up id of space %q", space)
	}
	return id, nil
}

// awaitPostprocessing blocks until user can download file.
func (s *Steps) awaitPostprocessing(ctx context.Context, user, file string) error {
	if s.Files == nil {
		return nil
	}
	return errors.Wrapf(s.Files.Download(ctx, user, file), "downloading %q as %q", file, user)
}

// AssertionError is a failed expectation about a command response.
type AssertionError struct {
	Message string
}

func (e *AssertionError) Error() string {
	return "assertion failed: " + e.Message
}

func failf(format string, args ...interface{}) error {
	return &AssertionError{Message: fmt.Sprintf(format, args...)}
}

func (s *Steps) lastResponse() (*harness.Envelope, error) {
	if s.last == nil {
		return nil, failf("no command has been run")
	}
	return s.last, nil
}

// CommandShouldBeSuccessful checks the last response: HTTP 200 (for HTTP
// transports), status OK and exit code 0.
func (s *Steps) CommandShouldBeSuccessful() error {
	env, err := s.lastResponse()
	if err != nil {
		return err
	}
	return expectSuccess(env)
}

func expectSuccess(env *harness.Envelope) error {
	if env.HTTPStatus != 0 && env.HTTPStatus != http.StatusOK {
		return failf("expected HTTP status code 200, but got %d", env.HTTPStatus)
	}
	if env.Status != harness.StatusOK {
		return failf("expected status %q, but got %q: %s", harness.StatusOK, env.Status, env.Message)
	}
	if env.ExitCode != 0 {
		return failf("Expected exit code to be 0, but got %d", env.ExitCode)
	}
	return nil
}

func (s *Steps) OutputShouldContain(text string) error {
	env, err := s.lastResponse()
	if err != nil {
		return err
	}
	if !strings.Contains(env.Message, text) {
		return failf("expected output to contain %q, got %q", text, env.Message)
	}
	return nil
}

func (s *Steps) OutputShouldNotContain(text string) error {
	env, err := s.lastResponse()
	if err != nil {
		return err
	}
	if strings.Contains(env.Message, text) {
		return failf("expected output not to contain %q, got %q", text, env.Message)
	}
	return nil
}
