package tour

import (
	"fmt"
	"os"
	"path/filepath"
)

// AudioLibrary resolves POI audio references against a root directory.
type AudioLibrary struct {
	root string
}

// NewAudioLibrary returns a library rooted at dir.
func NewAudioLibrary(dir string) *AudioLibrary {
	return &AudioLibrary{root: filepath.Clean(dir)}
}

// Root returns the library directory.
func (l *AudioLibrary) Root() string {
	return l.root
}

// Resolve maps a reference to a path inside the root. References must be
// relative and local: "..", absolute paths and empty names are rejected.
// The file must exist and be a regular file.
func (l *AudioLibrary) Resolve(ref string) (string, error) {
	if ref == "" || !filepath.IsLocal(ref) {
		return "", fmt.Errorf("%w: %q", ErrInvalidAudioPath, ref)
	}
	path := filepath.Join(l.root, ref)

	info, err := os.Stat(path)
	if err != nil {
		return "", fmt.Errorf("%w: %q: %w", ErrInvalidAudioPath, ref, err)
	}
	if !info.Mode().IsRegular() {
		return "", fmt.Errorf("%w: %q is not a regular file", ErrInvalidAudioPath, ref)
	}
	return path, nil
}

// Paths resolves every POI narration of t in tour order.
func (l *AudioLibrary) Paths(t *Tour) ([]string, error) {
	refs, err := t.AudioRefs()
	if err != nil {
		return nil, err
	}
	paths := make([]string, 0, len(refs))
	for _, ref := range refs {
		p, err := l.Resolve(ref)
		if err != nil {
			return nil, err
		}
		paths = append(paths, p)
	}
	return paths, nil
}
