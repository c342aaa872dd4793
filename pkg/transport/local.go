package transport

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// LocalEngine stores every blob as a plain file under a root directory,
// writing through a temp-file-then-rename so a crash mid-write never leaves
// a half-written blob where a reader can see it — the same safeguard the
// teacher's FileStorage applies to schema.json via a ".old" backup file.
type LocalEngine struct {
	root string
}

// NewLocalEngine returns an Engine rooted at dir, creating it if needed.
func NewLocalEngine(dir string) (*LocalEngine, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("transport: mkdir %s: %w", dir, err)
	}
	return &LocalEngine{root: dir}, nil
}

func (e *LocalEngine) path(name string) string {
	return filepath.Join(e.root, filepath.FromSlash(name))
}

func (e *LocalEngine) WriteBlob(name string, data []byte) error {
	path := e.path(name)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("transport: mkdir for %s: %w", name, err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("transport: write %s: %w", name, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("transport: rename %s: %w", name, err)
	}
	return nil
}

func (e *LocalEngine) ReadBlob(name string) ([]byte, error) {
	data, err := os.ReadFile(e.path(name))
	if err != nil {
		return nil, fmt.Errorf("transport: read %s: %w", name, err)
	}
	return data, nil
}

func (e *LocalEngine) RemoveBlob(name string) error {
	if err := os.Remove(e.path(name)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("transport: remove %s: %w", name, err)
	}
	return nil
}

func (e *LocalEngine) List(prefix string) ([]string, error) {
	var out []string
	err := filepath.WalkDir(e.root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(e.root, path)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)
		if strings.HasSuffix(rel, ".tmp") {
			return nil
		}
		if strings.HasPrefix(rel, prefix) {
			out = append(out, rel)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("transport: list %s: %w", prefix, err)
	}
	return out, nil
}
