package steps

import (
	"context"
	"net/http"
	"slices"

	"github.com/pkg/errors"
	"github.com/synadia-labs/cli-harness/internal/harness"
)

// UploadSession is one entry of "storage-users uploads sessions --json".
type UploadSession struct {
	ID       string `json:"id"`
	Filename string `json:"filename"`
}

func uploadSessions(args ...string) harness.Command {
	return harness.Cmd("storage-users", "uploads", "sessions").With(args...)
}

// ResetPassword answers the password prompt twice. For an existing user
// the new password is recorded for the rest of the scenario.
func (s *Steps) ResetPassword(ctx context.Context, existing bool, user, password string) error {
	cmd := harness.Cmd("idm", "resetpassword", "-u", user)
	if err := s.run(ctx, cmd.Request(password, password)); err != nil {
		return err
	}
	if existing && s.Passwords != nil {
		s.Passwords.UpdatePassword(user, password)
	}
	return nil
}

func (s *Steps) PurgeEmptyTrashDirs(ctx context.Context) error {
	return s.run(ctx, harness.Cmd("trash", "purge-empty-dirs", "-p", s.StorageRoot, "--dry-run=false").Request())
}

func (s *Steps) CheckBackupConsistency(ctx context.Context) error {
	return s.run(ctx, harness.Cmd("backup", "consistency", "-p", s.StorageRoot).Request())
}

func appTokenCommand(userName, expiration string) harness.Command {
	return harness.Cmd("auth-app", "create", "--user-name="+userName, "--expiration="+expiration)
}

func (s *Steps) userName(user string) string {
	if s.Users == nil {
		return user
	}
	return s.Users.UserName(user)
}

// CreateAppToken creates an app token for user valid for expiration
// (e.g. "72h").
func (s *Steps) CreateAppToken(ctx context.Context, user, expiration string) error {
	return s.run(ctx, appTokenCommand(s.userName(user), expiration).Request())
}

// HasCreatedAppToken is the precondition form of CreateAppToken: the
// response is checked, not recorded.
func (s *Steps) HasCreatedAppToken(ctx context.Context, user, expiration string) error {
	env, err := s.exec(ctx, appTokenCommand(s.userName(user), expiration).Request())
	if err != nil {
		return err
	}
	return expectSuccess(env)
}

// PurgeRevisions removes every file version in the storage.
func (s *Steps) PurgeRevisions(ctx context.Context) error {
	return s.run(ctx, harness.Cmd("revisions", "purge", "-p", s.StorageRoot, "--dry-run=false").Request())
}

// PurgeFileRevisions removes the versions of one file of user in space.
func (s *Steps) PurgeFileRevisions(ctx context.Context, file, user, space string) error {
	if s.Spaces == nil {
		return errors.New("steps: no space directory configured")
	}
	fileID, err := s.Spaces.FileID(ctx, user, space, file)
	if err != nil {
		return errors.Wrapf(err, "looking up id of file %q", file)
	}
	return s.run(ctx, harness.Cmd("revisions", "purge", "-p", s.StorageRoot, "-r", fileID, "--dry-run=false").Request())
}

// PurgeSpaceRevisions removes the versions of every file in an admin space.
func (s *Steps) PurgeSpaceRevisions(ctx context.Context, space string) error {
	spaceID, err := s.spaceID(ctx, space)
	if err != nil {
		return err
	}
	return s.run(ctx, harness.Cmd("revisions", "purge", "-p", s.StorageRoot, "-r", spaceID, "--dry-run=false").Request())
}

func (s *Steps) ReindexAllSpaces(ctx context.Context) error {
	return s.run(ctx, harness.Cmd("search", "index", "--all-spaces").Request())
}

func (s *Steps) ReindexSpace(ctx context.Context, space string) error {
	spaceID, err := s.spaceID(ctx, space)
	if err != nil {
		return err
	}
	return s.run(ctx, harness.Cmd("search", "index", "--space", spaceID).Request())
}

// ListUploadSessions lists sessions as JSON, optionally filtered by a flag
// such as "expired" or "processing".
func (s *Steps) ListUploadSessions(ctx context.Context, flag string) error {
	if flag != "" {
		flag = "--" + flag
	}
	return s.run(ctx, uploadSessions("--json", flag).Request())
}

// CleanUploadSessions cleans the sessions selected by flags.
func (s *Steps) CleanUploadSessions(ctx context.Context, flags ...string) error {
	var args []string
	for _, flag := range flags {
		args = append(args, "--"+flag)
	}
	args = append(args, "--clean", "--json")
	return s.run(ctx, uploadSessions(args...).Request())
}

func (s *Steps) RestartProcessingUploadSessions(ctx context.Context) error {
	return s.run(ctx, uploadSessions("--processing", "--restart", "--json").Request())
}

// RestartUploadSessionsOfFile restarts the session of file. When several
// sessions carry the same filename the last listed one wins.
func (s *Steps) RestartUploadSessionsOfFile(ctx context.Context, file string) error {
	env, err := s.exec(ctx, uploadSessions("--json").Request())
	if err != nil {
		return err
	}
	if env.HTTPStatus != 0 && env.HTTPStatus != http.StatusOK {
		return failf("expected HTTP status code 200, but got %d", env.HTTPStatus)
	}

	sessions, err := harness.DecodeJSONArray[UploadSession](env.Message)
	if err != nil {
		return err
	}

	var uploadID string
	for _, session := range sessions {
		if session.Filename == file {
			uploadID = session.ID
		}
	}
	if uploadID == "" {
		return failf("no upload session found for %q", file)
	}

	return s.run(ctx, uploadSessions("--id="+uploadID, "--restart", "--json").Request())
}

// CleanAllUploadSessions is the cleanup after upload session scenarios.
func (s *Steps) CleanAllUploadSessions(ctx context.Context) error {
	env, err := s.exec(ctx, uploadSessions("--clean").Request())
	if err != nil {
		return err
	}
	if env.HTTPStatus != 0 && env.HTTPStatus != http.StatusOK {
		return failf("Failed to clean upload sessions: HTTP status code %d", env.HTTPStatus)
	}
	return nil
}

func (s *Steps) lastSessionNames() ([]string, error) {
	env, err := s.lastResponse()
	if err != nil {
		return nil, err
	}
	sessions, err := harness.DecodeJSONArray[UploadSession](env.Message)
	if err != nil {
		return nil, err
	}
	var names []string
	for _, session := range sessions {
		if session.Filename != "" {
			names = append(names, session.Filename)
		}
	}
	return names, nil
}

// SessionsShouldContain checks that the last session listing names every file.
func (s *Steps) SessionsShouldContain(files ...string) error {
	names, err := s.lastSessionNames()
	if err != nil {
		return err
	}
	for _, file := range files {
		if !slices.Contains(names, file) {
			return failf("The resource '%s' was not found in the response.", file)
		}
	}
	return nil
}

// SessionsShouldNotContain checks that the last session listing names none
// of the files.
func (s *Steps) SessionsShouldNotContain(files ...string) error {
	names, err := s.lastSessionNames()
	if err != nil {
		return err
	}
	for _, file := range files {
		if slices.Contains(names, file) {
			return failf("The resource '%s' was found in the response.", file)
		}
	}
	return nil
}
