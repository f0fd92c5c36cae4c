package workspace_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/crucible-eval/crucible/internal/workspace"
)

func TestCreateMakesFreshEmptySubdirs(t *testing.T) {
	base := t.TempDir()
	ws, err := workspace.Create(base)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	for _, name := range workspace.SubdirNames {
		dir := ws.Dir(name)
		info, err := os.Stat(dir)
		if err != nil {
			t.Fatalf("stat %s: %v", name, err)
		}
		if !info.IsDir() {
			t.Errorf("%s is not a directory", name)
		}
		entries, err := os.ReadDir(dir)
		if err != nil {
			t.Fatalf("reading %s: %v", name, err)
		}
		if len(entries) != 0 {
			t.Errorf("%s not empty: %d entries", name, len(entries))
		}
	}
}

func TestCreateNeverReusesRoots(t *testing.T) {
	base := t.TempDir()
	a, err := workspace.Create(base)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	b, err := workspace.Create(base)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if a.Root == b.Root {
		t.Errorf("two workspaces share a root: %s", a.Root)
	}
}

func TestLastLinkRepoints(t *testing.T) {
	base := t.TempDir()
	first, err := workspace.Create(base)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	second, err := workspace.Create(base)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	target, err := os.Readlink(filepath.Join(base, workspace.LastLink))
	if err != nil {
		t.Fatalf("reading last link: %v", err)
	}
	if target != second.Root {
		t.Errorf("last link: got %q, want %q", target, second.Root)
	}
	if target == first.Root {
		t.Error("last link still points at the older workspace")
	}
}

func TestWriteImageDescriptor(t *testing.T) {
	ws, err := workspace.Create(t.TempDir())
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := ws.WriteImageDescriptor("job-41"); err != nil {
		t.Fatalf("WriteImageDescriptor: %v", err)
	}
	data, err := os.ReadFile(filepath.Join(ws.Root, "Dockerfile"))
	if err != nil {
		t.Fatalf("reading Dockerfile: %v", err)
	}
	if !strings.HasPrefix(string(data), "FROM scratch\n") {
		t.Errorf("descriptor should start from scratch, got: %s", data)
	}
	if !strings.Contains(string(data), "/jobs/job-41") {
		t.Errorf("descriptor should namespace by job id, got: %s", data)
	}
}
