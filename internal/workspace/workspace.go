package workspace

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/example/promptpack/api-go/internal/model"
)

// Workspace is a directory exclusively owned by one job.
type Workspace struct {
	ID   string
	Path string
}

// Join resolves a workspace-relative name, refusing names that escape the
// workspace.
func (w Workspace) Join(rel string) (string, error) {
	clean, err := CleanRel(rel)
	if err != nil {
		return "", err
	}
	return filepath.Join(w.Path, filepath.FromSlash(clean)), nil
}

// Create writes r to the workspace-relative name rel, creating parent
// directories as needed.
func (w Workspace) Create(rel string, r io.Reader) (string, error) {
	abs, err := w.Join(rel)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(abs), 0o700); err != nil {
		return "", err
	}
	f, err := os.OpenFile(abs, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		return "", err
	}
	if err := f.Close(); err != nil {
		return "", err
	}
	clean, _ := CleanRel(rel)
	return clean, nil
}

// CleanRel normalizes a relative, slash-separated name. Absolute names and
// names that climb out with ".." are rejected.
func CleanRel(rel string) (string, error) {
	if rel == "" {
		return "", errors.New("empty name")
	}
	slashed := filepath.ToSlash(rel)
	if strings.HasPrefix(slashed, "/") || filepath.IsAbs(rel) || filepath.VolumeName(rel) != "" {
		return "", fmt.Errorf("absolute name %q", rel)
	}
	clean := filepath.ToSlash(filepath.Clean(filepath.FromSlash(slashed)))
	if clean == "." || clean == ".." || strings.HasPrefix(clean, "../") {
		return "", fmt.Errorf("name %q escapes workspace", rel)
	}
	return clean, nil
}

// Manager allocates and removes job workspaces under Root.
type Manager struct {
	Root string
}

func NewManager(root string) *Manager {
	return &Manager{Root: root}
}

// Acquire creates <Root>/<jobID>. It fails if the directory already exists:
// a workspace is never shared between jobs.
func (m *Manager) Acquire(jobID string) (Workspace, error) {
	if jobID == "" || jobID == "." || jobID == ".." || strings.ContainsAny(jobID, `/\`) {
		return Workspace{}, model.NewJobError(model.ErrWorkspaceCreate, "invalid job id", nil)
	}
	if err := os.MkdirAll(m.Root, 0o755); err != nil {
		return Workspace{}, model.NewJobError(model.ErrWorkspaceCreate, "workspace root unavailable", err)
	}
	path := filepath.Join(m.Root, jobID)
	if err := os.Mkdir(path, 0o700); err != nil {
		if errors.Is(err, os.ErrExist) {
			return Workspace{}, model.NewJobError(model.ErrWorkspaceCreate, "workspace already exists", err)
		}
		return Workspace{}, model.NewJobError(model.ErrWorkspaceCreate, "workspace rejected by filesystem", err)
	}
	return Workspace{ID: jobID, Path: path}, nil
}

// Release removes the workspace tree. Releasing an already removed workspace
// is a no-op.
func (m *Manager) Release(ws Workspace) error {
	if ws.Path == "" {
		return nil
	}
	rel, err := filepath.Rel(m.Root, ws.Path)
	if err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return fmt.Errorf("release %q: outside workspace root", ws.ID)
	}
	if err := os.RemoveAll(ws.Path); err != nil {
		return fmt.Errorf("release %q: %w", ws.ID, err)
	}
	return nil
}
