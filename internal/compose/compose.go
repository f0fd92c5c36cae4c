// Package compose renders the two-service orchestration manifest that
// wires the solution and evaluator containers to a workspace.
package compose

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/crucible-eval/crucible/internal/auth"
	"github.com/crucible-eval/crucible/internal/server"
	"github.com/crucible-eval/crucible/internal/workspace"
)

// Protocol is the single evaluation protocol this manifest shape
// supports.
const Protocol = "p1"

// FileName is the manifest's name inside the workspace root.
const FileName = "docker-compose.yaml"

const (
	SolutionService  = "solution"
	EvaluatorService = "evaluator"
)

type File struct {
	Version  string             `yaml:"version"`
	Services map[string]Service `yaml:"services"`
}

type Service struct {
	Image       string            `yaml:"image"`
	Environment map[string]string `yaml:"environment"`
	Volumes     []string          `yaml:"volumes"`
}

// Build derives the manifest from a job and its workspace. Any protocol
// other than Protocol is rejected before anything else; the job is then
// unrecoverable and must be reported as an error, never retried.
func Build(job *server.Job, ws *workspace.Workspace, user auth.User) (*File, error) {
	if p := job.ChallengeParameters.Protocol; p != Protocol {
		return nil, fmt.Errorf("unsupported protocol %q for job %s (only %q is supported)", p, job.JobID, Protocol)
	}
	if job.ChallengeParameters.Container == "" {
		return nil, fmt.Errorf("job %s has no evaluator container", job.JobID)
	}
	if job.Parameters.Hash == "" {
		return nil, fmt.Errorf("job %s has no solution image", job.JobID)
	}

	env := map[string]string{
		"username": user.Username,
		"uid":      fmt.Sprintf("%d", user.UID),
	}
	volumes := make([]string, 0, len(workspace.SubdirNames))
	for _, name := range workspace.SubdirNames {
		volumes = append(volumes, ws.Dir(name)+":/"+name)
	}

	return &File{
		Version: "3",
		Services: map[string]Service{
			SolutionService: {
				Image:       job.Parameters.Hash,
				Environment: env,
				Volumes:     volumes,
			},
			EvaluatorService: {
				Image:       job.ChallengeParameters.Container,
				Environment: env,
				Volumes:     volumes,
			},
		},
	}, nil
}

// Write serializes the manifest into the workspace root and returns its
// path. Written once, never mutated.
func (f *File) Write(ws *workspace.Workspace) (string, error) {
	data, err := yaml.Marshal(f)
	if err != nil {
		return "", fmt.Errorf("marshaling manifest: %w", err)
	}
	path := filepath.Join(ws.Root, FileName)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("writing manifest: %w", err)
	}
	return path, nil
}
