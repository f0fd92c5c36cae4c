// Package evaluator drives the acquisition / execution / reporting state
// machine: one job at a time, every failure contained into a reportable
// outcome.
package evaluator

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime/debug"

	"github.com/sirupsen/logrus"

	"github.com/crucible-eval/crucible/internal/auth"
	"github.com/crucible-eval/crucible/internal/compose"
	"github.com/crucible-eval/crucible/internal/config"
	"github.com/crucible-eval/crucible/internal/publish"
	"github.com/crucible-eval/crucible/internal/result"
	"github.com/crucible-eval/crucible/internal/runner"
	"github.com/crucible-eval/crucible/internal/server"
	"github.com/crucible-eval/crucible/internal/workspace"
)

var logger = logrus.WithFields(logrus.Fields{
	"app":       "crucible",
	"component": "evaluator",
})

// API is the slice of the coordination server the driver needs.
type API interface {
	Acquire(ctx context.Context, req server.TakeRequest) (*server.Job, error)
	Report(ctx context.Context, req server.ReportRequest) error
}

// RunFunc executes the two-container pipeline for a written manifest.
type RunFunc func(ctx context.Context, manifestPath string, pull bool) error

// Publisher builds and pushes the workspace artifact image.
type Publisher interface {
	Publish(ctx context.Context, ws *workspace.Workspace, jobID string) (*publish.Artifact, error)
}

type Options struct {
	Config    *config.Config
	API       API
	Publisher Publisher // nil disables artifact publishing
	Runner    RunFunc   // nil means the real docker compose pipeline
	Version   string
}

type Evaluator struct {
	cfg       *config.Config
	api       API
	publisher Publisher
	run       RunFunc
	version   string
}

func New(opts Options) *Evaluator {
	run := opts.Runner
	if run == nil {
		run = runner.Run
	}
	return &Evaluator{
		cfg:       opts.Config,
		api:       opts.API,
		publisher: opts.Publisher,
		run:       run,
		version:   opts.Version,
	}
}

// EvaluateOne runs one full state-machine pass. jobID may be empty to
// take any pending submission. Once a job is acquired, exactly one
// report is attempted no matter how the stages in between fail; only
// acquisition errors (none available, connection failure) propagate
// without a report.
func (e *Evaluator) EvaluateOne(ctx context.Context, jobID string) error {
	token, err := auth.Token(e.cfg.ShellRoot)
	if err != nil {
		return err
	}
	// Identity is read fresh each pass so long-running continuous mode
	// never reports stale values.
	id := auth.CurrentIdentity()

	job, err := e.api.Acquire(ctx, server.TakeRequest{
		Token:            token,
		JobID:            jobID,
		MachineID:        id.MachineID,
		ProcessID:        id.ProcessID,
		EvaluatorVersion: e.version,
	})
	if err != nil {
		return err
	}

	log := logger.WithFields(logrus.Fields{"job_id": job.JobID, "challenge": job.ChallengeName})
	log.Info("evaluating job")

	cr, artifact := e.executeJob(ctx, job)

	stats := cr.Stats()
	if artifact != nil {
		stats["artifacts"] = map[string]any{
			"image": artifact.Image,
			"size":  artifact.SizeBytes,
		}
	}

	if err := e.api.Report(ctx, server.ReportRequest{
		Token:               token,
		JobID:               job.JobID,
		Stats:               stats,
		Result:              string(cr.Status),
		MachineID:           id.MachineID,
		ProcessID:           id.ProcessID,
		EvaluationContainer: job.ChallengeParameters.Container,
		EvaluatorVersion:    e.version,
	}); err != nil {
		log.WithError(err).Error("reporting job outcome failed")
		return err
	}
	return nil
}

// executeJob runs SANDBOXING through PUBLISHING. It never returns an
// error: every failure, panics included, becomes an error-status result
// carrying the failure detail.
func (e *Evaluator) executeJob(ctx context.Context, job *server.Job) (cr *result.ChallengeResult, artifact *publish.Artifact) {
	defer func() {
		if r := recover(); r != nil {
			msg := fmt.Sprintf("panic during evaluation: %v\n%s", r, debug.Stack())
			logger.WithField("job_id", job.JobID).Error(msg)
			cr = result.Synthesize(result.StatusError, msg)
			artifact = nil
		}
	}()

	ws, buildErr := e.buildSandbox(job)
	if buildErr != nil {
		logger.WithField("job_id", job.JobID).WithError(buildErr).Error("sandbox build failed")
		return result.Synthesize(result.StatusError, buildErr.Error()), nil
	}

	manifestPath := filepath.Join(ws.Root, compose.FileName)
	if runErr := e.run(ctx, manifestPath, e.cfg.Pull); runErr != nil {
		logger.WithField("job_id", job.JobID).WithError(runErr).Error("evaluation pipeline failed")
		cr := result.Synthesize(result.StatusError, runErr.Error())
		// Salvage partial results when the evaluator got far enough to
		// write any, so their detail reaches the report.
		if partial, _ := e.extract(ws); partial != nil {
			cr.Scores = partial.Scores
			if partial.Message != "" {
				cr.Message = runErr.Error() + "\n" + partial.Message
			}
		}
		return cr, nil
	}

	cr, extractErr := e.extract(ws)
	if cr == nil {
		msg := fmt.Sprintf("evaluation finished but left no readable results file in %s", ws.Dir(workspace.ResultsDir))
		if extractErr != nil {
			msg = fmt.Sprintf("could not read the challenge results: %v", extractErr)
		}
		cr = result.Synthesize(result.StatusError, msg)
	}

	if e.publisher != nil {
		a, err := e.publisher.Publish(ctx, ws, job.JobID)
		if err != nil {
			// The evaluation outcome is already known; report it with
			// the artifact metadata simply omitted.
			logger.WithField("job_id", job.JobID).WithError(err).Error("artifact publish failed")
		} else {
			artifact = a
		}
	}
	return cr, artifact
}

// buildSandbox performs the workspace and manifest sequence; each step
// is a hard precondition for the next.
func (e *Evaluator) buildSandbox(job *server.Job) (*workspace.Workspace, error) {
	ws, err := workspace.Create(e.cfg.WorkDir)
	if err != nil {
		return nil, err
	}
	if job.ChallengeParameters.Protocol != compose.Protocol {
		// Checked here as well as in compose.Build so nothing below
		// runs for a job this evaluator cannot interpret.
		return nil, fmt.Errorf("unsupported protocol %q for job %s (only %q is supported)",
			job.ChallengeParameters.Protocol, job.JobID, compose.Protocol)
	}
	user, err := auth.CurrentUser()
	if err != nil {
		return nil, err
	}
	manifest, err := compose.Build(job, ws, user)
	if err != nil {
		return nil, err
	}
	if _, err := manifest.Write(ws); err != nil {
		return nil, err
	}
	if err := ws.WriteImageDescriptor(job.JobID); err != nil {
		return nil, err
	}
	return ws, nil
}

// extract reads the declared results file. A nil result with a nil
// error means the file was never written; a nil result with an error
// means it exists but could not be parsed. The caller decides what
// either means for the job.
func (e *Evaluator) extract(ws *workspace.Workspace) (*result.ChallengeResult, error) {
	resultsDir := ws.Dir(workspace.ResultsDir)
	if _, err := os.Stat(filepath.Join(resultsDir, result.FileName)); err != nil {
		return nil, nil
	}
	cr, err := result.Read(resultsDir)
	if err != nil {
		logger.WithError(err).Error("could not read challenge results")
		return nil, err
	}
	return cr, nil
}
