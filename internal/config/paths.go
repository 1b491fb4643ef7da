package config

import (
	"os"
	"path/filepath"
	"strings"
)

// ExpandPath expands a leading "~" to the user's home directory. Absolute
// and relative paths are returned unchanged.
func ExpandPath(p string) string {
	if p != "~" && !strings.HasPrefix(p, "~/") && !strings.HasPrefix(p, `~\`) {
		return p
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return p
	}
	return filepath.Join(home, p[1:])
}
