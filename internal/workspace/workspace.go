// Package workspace manages the filesystem sandbox that one job's two
// containers share through bind mounts.
package workspace

import (
	"fmt"
	"os"
	"path/filepath"
)

// The four exchange directories, bound into both containers at matching
// paths under /.
const (
	SolutionOutputDir   = "solution-output"
	ResultsDir          = "results"
	DescriptionDir      = "description"
	EvaluationOutputDir = "evaluation-output"
)

// SubdirNames lists the exchange directories in manifest order.
var SubdirNames = []string{SolutionOutputDir, ResultsDir, DescriptionDir, EvaluationOutputDir}

// LastLink is a convenience symlink next to the workspace roots pointing
// at the most recent one. Debug aid only; nothing reads it back.
const LastLink = "last"

// Workspace is the sandbox root for a single job. Roots are never reused
// across jobs.
type Workspace struct {
	Root string
}

// Create makes a fresh uniquely-named root under baseDir, repoints the
// "last" link at it, and creates the four exchange directories empty.
func Create(baseDir string) (*Workspace, error) {
	root, err := os.MkdirTemp(baseDir, "crucible-job-")
	if err != nil {
		return nil, fmt.Errorf("creating workspace root: %w", err)
	}

	last := filepath.Join(baseDir, LastLink)
	os.Remove(last)
	if err := os.Symlink(root, last); err != nil {
		return nil, fmt.Errorf("creating %s symlink: %w", LastLink, err)
	}

	for _, name := range SubdirNames {
		if err := os.Mkdir(filepath.Join(root, name), 0o755); err != nil {
			return nil, fmt.Errorf("creating %s: %w", name, err)
		}
	}
	return &Workspace{Root: root}, nil
}

// Dir returns the host path of one of the exchange directories.
func (w *Workspace) Dir(name string) string {
	return filepath.Join(w.Root, name)
}

// WriteImageDescriptor writes the single-layer Dockerfile that the
// artifact publisher builds from: nothing but the workspace contents,
// namespaced by job id.
func (w *Workspace) WriteImageDescriptor(jobID string) error {
	contents := fmt.Sprintf("FROM scratch\nCOPY . /jobs/%s\n", jobID)
	path := filepath.Join(w.Root, "Dockerfile")
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		return fmt.Errorf("writing image descriptor: %w", err)
	}
	return nil
}
