// Package security guards file names and paths derived from client uploads.
package security

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
)

// ErrPathTraversal is returned when a path resolves outside its directory.
var ErrPathTraversal = errors.New("path escapes directory")

const maxNameLen = 128

// SanitizeFilename maps s to a name made only of ASCII letters, digits, dot,
// underscore and dash. Runs of other characters become one underscore and
// leading or trailing dots and underscores are trimmed. An empty result
// becomes "unknown".
func SanitizeFilename(s string) string {
	var b strings.Builder
	lastUnderscore := false
	for _, r := range s {
		if b.Len() >= maxNameLen {
			break
		}
		switch {
		case (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9'),
			r == '.', r == '_', r == '-':
			b.WriteRune(r)
			lastUnderscore = r == '_'
		case !lastUnderscore:
			b.WriteByte('_')
			lastUnderscore = true
		}
	}
	out := strings.Trim(b.String(), "._")
	if out == "" {
		return "unknown"
	}
	return out
}

// UploadName derives a safe on-disk name from a client-supplied file name.
// Directory components are dropped and the extension is kept when it is
// itself safe.
func UploadName(original string) string {
	base := filepath.Base(filepath.ToSlash(strings.ReplaceAll(original, `\`, "/")))
	ext := filepath.Ext(base)
	stem := strings.TrimSuffix(base, ext)
	if ext != "" && SanitizeFilename(ext[1:]) != ext[1:] {
		ext = ""
	}
	return SanitizeFilename(stem) + strings.ToLower(ext)
}

// ValidatePathWithinDirectory returns ErrPathTraversal if filePath resolves
// outside safeDir. Symlinks in safeDir and in the existing part of filePath
// are resolved first, so a link inside safeDir cannot point out of it.
func ValidatePathWithinDirectory(filePath, safeDir string) error {
	absPath, err := filepath.Abs(filePath)
	if err != nil {
		return fmt.Errorf("resolve %s: %w", filePath, err)
	}
	absDir, err := filepath.Abs(safeDir)
	if err != nil {
		return fmt.Errorf("resolve %s: %w", safeDir, err)
	}
	canonicalDir, err := filepath.EvalSymlinks(absDir)
	if err != nil {
		return fmt.Errorf("resolve %s: %w", safeDir, err)
	}

	rel, err := filepath.Rel(canonicalDir, canonicalize(absPath))
	if err != nil {
		return fmt.Errorf("%w: %s", ErrPathTraversal, filePath)
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) || filepath.IsAbs(rel) {
		return fmt.Errorf("%w: %s is outside %s", ErrPathTraversal, filePath, safeDir)
	}
	return nil
}

// canonicalize resolves symlinks in the longest existing prefix of path.
func canonicalize(path string) string {
	for dir := path; ; {
		if resolved, err := filepath.EvalSymlinks(dir); err == nil {
			rest, _ := filepath.Rel(dir, path)
			return filepath.Join(resolved, rest)
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return path
		}
		dir = parent
	}
}

// ResolveWithin joins a sanitized name onto dir and checks that the result
// stays inside dir.
func ResolveWithin(dir, name string) (string, error) {
	path := filepath.Join(dir, UploadName(name))
	if err := ValidatePathWithinDirectory(path, dir); err != nil {
		return "", err
	}
	return path, nil
}
