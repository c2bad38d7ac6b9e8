package storage

import (
	"os"
	"path/filepath"
)

// EnsureParentDir creates the directory that will hold path.
func EnsureParentDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}

// UserKey scopes a local storage key to a signed-in user.
func UserKey(key, userID string) string {
	if userID == "" {
		return key
	}
	return key + ":" + userID
}
