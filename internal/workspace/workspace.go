package workspace

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"

	"github.com/google/uuid"
)

const reqPrefix = "req-"

// Manager owns the base directory under which every request gets its
// own private scratch space.
type Manager struct {
	root string
}

// NewManager ensures the base root exists and removes request
// directories orphaned by a previous process. Only req-* entries are
// touched, so pointing the root at a shared directory is safe. A
// relative root is resolved against the working directory; every path
// handed out afterwards is absolute.
func NewManager(root string) (*Manager, error) {
	if root == "" {
		root = filepath.Join(os.TempDir(), "excel-to-image")
	}
	root, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve workspace root: %w", err)
	}
	if err := os.MkdirAll(root, 0o700); err != nil {
		return nil, fmt.Errorf("workspace root %s: %w", root, err)
	}

	m := &Manager{root: root}
	m.sweep()
	return m, nil
}

func (m *Manager) Root() string { return m.root }

// Acquire creates a fresh directory for one request. The name is a
// server-generated token, never derived from client input.
func (m *Manager) Acquire() (*Workspace, error) {
	dir := filepath.Join(m.root, reqPrefix+uuid.NewString())
	if err := os.Mkdir(dir, 0o700); err != nil {
		return nil, fmt.Errorf("create workspace: %w", err)
	}
	return &Workspace{dir: dir}, nil
}

func (m *Manager) sweep() {
	entries, err := os.ReadDir(m.root)
	if err != nil {
		return
	}
	for _, e := range entries {
		if e.IsDir() && strings.HasPrefix(e.Name(), reqPrefix) {
			_ = os.RemoveAll(filepath.Join(m.root, e.Name()))
		}
	}
}

// Workspace is one request's scratch directory. Every artifact of the
// request (input copy, office profile, PDF, page images) lives here
// and nowhere else.
type Workspace struct {
	dir      string
	released atomic.Bool
}

func (w *Workspace) Dir() string { return w.dir }

func (w *Workspace) Token() string { return filepath.Base(w.dir) }

// Join resolves a name inside the workspace.
func (w *Workspace) Join(name string) string { return filepath.Join(w.dir, name) }

// WriteInput persists the upload under a fixed server-chosen name.
// Client filenames never reach the filesystem.
func (w *Workspace) WriteInput(data []byte, ext string) (string, error) {
	path := w.Join("input" + ext)
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return "", fmt.Errorf("write input: %w", err)
	}
	return path, nil
}

// ProfileDir creates (if needed) the directory used as the office
// suite's user profile for this request.
func (w *Workspace) ProfileDir() (string, error) {
	p := w.Join("profile")
	if err := os.MkdirAll(p, 0o700); err != nil {
		return "", fmt.Errorf("create profile dir: %w", err)
	}
	return p, nil
}

// Release deletes the workspace and everything in it. It is
// idempotent and safe to call after a partial setup failure.
func (w *Workspace) Release() error {
	if !w.released.CompareAndSwap(false, true) {
		return nil
	}
	return os.RemoveAll(w.dir)
}
