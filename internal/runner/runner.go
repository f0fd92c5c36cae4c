// Package runner drives the two-container pipeline through the docker
// compose CLI: an optional pull, then a blocking up that returns only
// after both services have exited.
package runner

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"

	"github.com/sirupsen/logrus"
)

var logger = logrus.WithFields(logrus.Fields{
	"app":       "crucible",
	"component": "runner",
})

// newExecCmd is a seam for tests.
var newExecCmd = exec.CommandContext

// ExitError reports a non-zero exit from one of the pipeline steps. The
// captured output tail preserves the failure detail for the job report.
type ExitError struct {
	Step   string
	Err    error
	Output string
}

func (e *ExitError) Error() string {
	if e.Output == "" {
		return fmt.Sprintf("docker compose %s failed: %v", e.Step, e.Err)
	}
	return fmt.Sprintf("docker compose %s failed: %v\n%s", e.Step, e.Err, e.Output)
}

func (e *ExitError) Unwrap() error { return e.Err }

// Run executes the pipeline described by the manifest. When pull is
// enabled, a pull failure aborts before up is attempted; running against
// possibly-stale local images is never allowed.
func Run(ctx context.Context, manifestPath string, pull bool) error {
	if pull {
		if err := step(ctx, manifestPath, "pull"); err != nil {
			return err
		}
	}
	return step(ctx, manifestPath, "up")
}

func step(ctx context.Context, manifestPath, verb string) error {
	logger.WithFields(logrus.Fields{"step": verb, "manifest": manifestPath}).Info("running docker compose")

	cmd := newExecCmd(ctx, "docker", "compose", "-f", manifestPath, verb)
	var tail bytes.Buffer
	cmd.Stdout = io.MultiWriter(os.Stdout, &tail)
	cmd.Stderr = io.MultiWriter(os.Stderr, &tail)
	if err := cmd.Run(); err != nil {
		return &ExitError{Step: verb, Err: err, Output: lastLines(tail.String(), 20)}
	}
	return nil
}

func lastLines(s string, n int) string {
	lines := strings.Split(strings.TrimRight(s, "\n"), "\n")
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return strings.Join(lines, "\n")
}
