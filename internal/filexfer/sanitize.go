package filexfer

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

const maxCollisionAttempts = 1000

// sanitizeFilename replaces path separators and any character outside
// [A-Za-z0-9._-] with '_'.
func sanitizeFilename(name string) string {
	var b strings.Builder
	b.Grow(len(name))
	for _, r := range name {
		switch {
		case r >= 'A' && r <= 'Z', r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '.', r == '_', r == '-':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	if b.Len() == 0 {
		return "_"
	}
	return b.String()
}

// resolveCollision returns the first of name, name_1.ext, name_2.ext, ...
// (capped at maxCollisionAttempts) that does not already exist in dir.
func resolveCollision(dir, name string) (string, error) {
	ext := filepath.Ext(name)
	stem := strings.TrimSuffix(name, ext)

	candidate := name
	for attempt := 0; attempt < maxCollisionAttempts; attempt++ {
		if attempt > 0 {
			candidate = fmt.Sprintf("%s_%d%s", stem, attempt, ext)
		}
		if _, err := os.Stat(filepath.Join(dir, candidate)); os.IsNotExist(err) {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("filexfer: exhausted %d collision-suffix attempts for %q", maxCollisionAttempts, name)
}
