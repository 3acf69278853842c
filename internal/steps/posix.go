package steps

import (
	"context"
	"fmt"
	"strconv"

	"github.com/synadia-labs/cli-harness/internal/harness"
)

// The steps below change the storage behind the server's back and wait
// until the change is visible before giving the server time to react.

func (s *Steps) CreateFolder(ctx context.Context, folder, user string) error {
	userID, err := s.userID(ctx, user)
	if err != nil {
		return err
	}
	fullPath := s.Layout.UserPath(userID, folder)

	if err := s.run(ctx, harness.Sh("mkdir", "-p", fullPath).Request()); err != nil {
		return err
	}
	if err := s.Poller.WaitForExistence(ctx, fullPath, existenceWait); err != nil {
		return err
	}
	s.Sleep(settleShort)
	return nil
}

// ListUserFolder lists the personal space directory of user.
func (s *Steps) ListUserFolder(ctx context.Context, user string) error {
	userID, err := s.userID(ctx, user)
	if err != nil {
		return err
	}
	return s.run(ctx, harness.Sh("ls", "-la", s.Layout.UserPath(userID)).Request())
}

func (s *Steps) CreateFile(ctx context.Context, file, content, user string) error {
	userID, err := s.userID(ctx, user)
	if err != nil {
		return err
	}
	fullPath := s.Layout.UserPath(userID, file)

	if err := s.run(ctx, harness.Sh("echo", "-n", content).WriteTo(fullPath).Request()); err != nil {
		return err
	}
	if err := s.Poller.WaitForExistence(ctx, fullPath, existenceWait); err != nil {
		return err
	}
	s.Sleep(settleShort)
	return nil
}

// HasCreatedFile is the precondition form of CreateFile.
func (s *Steps) HasCreatedFile(ctx context.Context, file, content, user string) error {
	if err := s.CreateFile(ctx, file, content, user); err != nil {
		return err
	}
	return s.CommandShouldBeSuccessful()
}

// CreateLargeFile writes size (e.g. "5gb") zero bytes to file with dd and
// waits until the whole file is on disk.
func (s *Steps) CreateLargeFile(ctx context.Context, file, size, user string) error {
	bytes, err := harness.ParseSize(size)
	if err != nil {
		return err
	}
	userID, err := s.userID(ctx, user)
	if err != nil {
		return err
	}
	fullPath := s.Layout.UserPath(userID, file)
	count := (bytes >> 30) * megabytesPerGB

	dd := harness.Sh("dd", "if=/dev/zero", "of="+fullPath, "bs=1M", "count="+strconv.FormatInt(count, 10))
	if err := s.run(ctx, dd.Request()); err != nil {
		return err
	}
	if err := s.Poller.WaitForSize(ctx, fullPath, size, largeFileWait); err != nil {
		return err
	}
	s.Sleep(settleLargeIO)
	return nil
}

// CreateFilesSequentially writes file_1.txt .. file_<count>.txt into dir
// in one command, one after the other.
func (s *Steps) CreateFilesSequentially(ctx context.Context, count int, dir, user string) error {
	if count < 1 {
		return &harness.InvalidArgumentError{Name: "count", Value: strconv.Itoa(count), Reason: "must be at least 1"}
	}
	userID, err := s.userID(ctx, user)
	if err != nil {
		return err
	}
	base := s.Layout.UserPath(userID, dir)

	var script harness.Script
	for i := 1; i <= count; i++ {
		write := harness.Sh("echo", "-n", fmt.Sprintf("file %d content", i)).WriteTo(fmt.Sprintf("%s/file_%d.txt", base, i))
		if i == 1 {
			script = write
		} else {
			script = script.Then(write)
		}
	}

	if err := s.run(ctx, script.Request()); err != nil {
		return err
	}
	if err := s.Poller.WaitForExistence(ctx, fmt.Sprintf("%s/file_%d.txt", base, count), existenceWait); err != nil {
		return err
	}
	s.Sleep(settleBatch)
	return nil
}

// CreateFilesInParallel writes parallel_1.txt .. parallel_<count>.txt into
// dir with one background process per file.
func (s *Steps) CreateFilesInParallel(ctx context.Context, count int, dir, user string) error {
	if count < 1 {
		return &harness.InvalidArgumentError{Name: "count", Value: strconv.Itoa(count), Reason: "must be at least 1"}
	}
	userID, err := s.userID(ctx, user)
	if err != nil {
		return err
	}
	base := s.Layout.UserPath(userID, dir)

	script := harness.Sh("mkdir", "-p", base)
	for i := 1; i <= count; i++ {
		write := harness.Sh("echo", "-n", fmt.Sprintf("parallel file %d content", i)).WriteTo(fmt.Sprintf("%s/parallel_%d.txt", base, i))
		script = script.Then(write.Background())
	}
	script = script.Then(harness.Sh("wait"))

	if err := s.run(ctx, script.Request()); err != nil {
		return err
	}
	if err := s.Poller.WaitForExistence(ctx, fmt.Sprintf("%s/parallel_%d.txt", base, count), existenceWait); err != nil {
		return err
	}
	s.Sleep(settleShort)
	return nil
}

// AppendToFile appends content to file without a trailing newline.
func (s *Steps) AppendToFile(ctx context.Context, content, file, user string) error {
	userID, err := s.userID(ctx, user)
	if err != nil {
		return err
	}
	s.Sleep(settleShort)
	if err := s.run(ctx, harness.Sh("echo", "-n", content).AppendTo(s.Layout.UserPath(userID, file)).Request()); err != nil {
		return err
	}
	s.Sleep(settleShort)
	return nil
}

// ReadFile prints file once the server has finished postprocessing it.
func (s *Steps) ReadFile(ctx context.Context, user, file string) error {
	if err := s.awaitPostprocessing(ctx, user, file); err != nil {
		return err
	}
	userID, err := s.userID(ctx, user)
	if err != nil {
		return err
	}
	return s.run(ctx, harness.Sh("cat", s.Layout.UserPath(userID, file)).Request())
}

func (s *Steps) CopyFile(ctx context.Context, user, file, folder string) error {
	return s.transfer(ctx, "cp", user, file, folder)
}

func (s *Steps) RenameFile(ctx context.Context, user, file, newName string) error {
	return s.transfer(ctx, "mv", user, file, newName)
}

func (s *Steps) MoveFile(ctx context.Context, user, file, folder string) error {
	return s.transfer(ctx, "mv", user, file, folder)
}

// transfer runs cp or mv between two paths of the same personal space.
func (s *Steps) transfer(ctx context.Context, program, user, file, destination string) error {
	if err := s.awaitPostprocessing(ctx, user, file); err != nil {
		return err
	}
	userID, err := s.userID(ctx, user)
	if err != nil {
		return err
	}
	source := s.Layout.UserPath(userID, file)
	target := s.Layout.UserPath(userID, destination)

	if err := s.run(ctx, harness.Sh(program, source, target).Request()); err != nil {
		return err
	}
	s.Sleep(settleShort)
	return nil
}

func (s *Steps) DeleteFile(ctx context.Context, file, user string) error {
	return s.remove(ctx, user, file, false)
}

func (s *Steps) DeleteFolder(ctx context.Context, folder, user string) error {
	return s.remove(ctx, user, folder, true)
}

func (s *Steps) remove(ctx context.Context, user, name string, recursive bool) error {
	userID, err := s.userID(ctx, user)
	if err != nil {
		return err
	}
	cmd := harness.Sh("rm", s.Layout.UserPath(userID, name))
	if recursive {
		cmd = harness.Sh("rm", "-r", s.Layout.UserPath(userID, name))
	}
	if err := s.run(ctx, cmd.Request()); err != nil {
		return err
	}
	s.Sleep(settleShort)
	return nil
}

// CopyFileToSpace copies a file of user's personal space into the root of
// an admin project space.
func (s *Steps) CopyFileToSpace(ctx context.Context, user, file, space string) error {
	if err := s.awaitPostprocessing(ctx, user, file); err != nil {
		return err
	}
	userID, err := s.userID(ctx, user)
	if err != nil {
		return err
	}
	spaceID, err := s.spaceID(ctx, space)
	if err != nil {
		return err
	}
	destination, err := s.Layout.ProjectPath(spaceID)
	if err != nil {
		return err
	}

	if err := s.run(ctx, harness.Sh("cp", s.Layout.UserPath(userID, file), destination).Request()); err != nil {
		return err
	}
	s.Sleep(settleShort)
	return nil
}

// DeleteSpace removes the directory of an admin project space.
func (s *Steps) DeleteSpace(ctx context.Context, space string) error {
	spaceID, err := s.spaceID(ctx, space)
	if err != nil {
		return err
	}
	spacePath, err := s.Layout.ProjectPath(spaceID)
	if err != nil {
		return err
	}

	if err := s.run(ctx, harness.Sh("rm", "-r", spacePath).Request()); err != nil {
		return err
	}
	s.Sleep(settleShort)
	return nil
}

// ReadAttribute prints an extended attribute of file.
func (s *Steps) ReadAttribute(ctx context.Context, attribute, file, user string) error {
	if err := s.awaitPostprocessing(ctx, user, file); err != nil {
		return err
	}
	userID, err := s.userID(ctx, user)
	if err != nil {
		return err
	}
	return s.run(ctx, harness.Sh("xattr", "-p", "-slz", attribute, s.Layout.UserPath(userID, file)).Request())
}
