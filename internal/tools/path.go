package tools

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// PathGuard keeps scratch files inside a base directory.
type PathGuard struct {
	BaseDir string
}

// NewPathGuard constructs a guard rooted at baseDir (defaults to current working directory).
func NewPathGuard(baseDir string) (*PathGuard, error) {
	if baseDir == "" {
		var err error
		baseDir, err = os.Getwd()
		if err != nil {
			return nil, err
		}
	}
	absBase, err := filepath.Abs(baseDir)
	if err != nil {
		return nil, err
	}
	return &PathGuard{BaseDir: absBase}, nil
}

// Join builds an absolute path below BaseDir from single path elements.
// Elements may not contain separators or be "." or "..", so ids coming from
// the outside cannot address anything but their own directory.
func (g *PathGuard) Join(elems ...string) (string, error) {
	if len(elems) == 0 {
		return "", fmt.Errorf("path is required")
	}
	for _, e := range elems {
		switch {
		case e == "", e == ".", e == "..":
			return "", fmt.Errorf("invalid path element %q", e)
		case strings.ContainsAny(e, `/\`), strings.ContainsRune(e, 0):
			return "", fmt.Errorf("path element %q must not contain separators", e)
		}
	}
	abs := filepath.Clean(filepath.Join(append([]string{g.BaseDir}, elems...)...))
	if !strings.HasPrefix(abs, g.BaseDir+string(os.PathSeparator)) {
		return "", fmt.Errorf("path escapes base directory")
	}
	return abs, nil
}
