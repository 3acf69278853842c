package steps

import (
	"os"
	"path"
	"strings"

	"github.com/synadia-labs/cli-harness/internal/harness"
)

const DefaultStoragePath = "/var/lib/opencloud/storage/users"

// Layout maps users and project spaces to directories of the POSIX
// storage on the remote node.
type Layout struct {
	root string
}

// NewLayout resolves storagePath (DefaultStoragePath when empty) against
// home: a leading "~/" and every "$HOME" are expanded.
func NewLayout(storagePath, home string) Layout {
	if storagePath == "" {
		storagePath = DefaultStoragePath
	}
	if strings.HasPrefix(storagePath, "~/") {
		storagePath = home + "/" + strings.TrimPrefix(storagePath, "~/")
	}
	storagePath = strings.ReplaceAll(storagePath, "$HOME", home)
	return Layout{root: strings.TrimRight(storagePath, "/")}
}

// LayoutFromEnv builds a Layout from OC_STORAGE_PATH and HOME.
func LayoutFromEnv() Layout {
	return NewLayout(os.Getenv("OC_STORAGE_PATH"), os.Getenv("HOME"))
}

// Root is the resolved storage path.
func (l Layout) Root() string {
	return l.root
}

func (l Layout) IsZero() bool {
	return l.root == ""
}

func (l Layout) UsersPath() string {
	return l.root + "/users"
}

func (l Layout) ProjectsPath() string {
	return l.root + "/projects"
}

// UserPath is the directory of a user's personal space, or a path inside it.
func (l Layout) UserPath(userID string, elems ...string) string {
	return path.Join(append([]string{l.UsersPath(), userID}, elems...)...)
}

// ProjectPath is the directory of a project space. Space ids look like
// "<storage id>$<space id>"; only the part after '$' names the directory.
func (l Layout) ProjectPath(spaceID string) (string, error) {
	_, id, ok := strings.Cut(spaceID, "$")
	if !ok || id == "" {
		return "", &harness.InvalidArgumentError{Name: "space id", Value: spaceID, Reason: "expected <storage id>$<space id>"}
	}
	return path.Join(l.ProjectsPath(), id), nil
}
