// Package result defines the outcome of one job and parses the results
// file the evaluator container declares.
package result

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Status of one evaluated job.
type Status string

const (
	// StatusSuccess: the evaluation ran and declared the solution good.
	StatusSuccess Status = "success"
	// StatusFailed: the evaluation ran but declared the solution
	// unsuccessful.
	StatusFailed Status = "failed"
	// StatusError: the evaluation infrastructure itself broke.
	StatusError Status = "error"
)

// FileName is the artifact the evaluator container writes into the
// results exchange directory.
const FileName = "challenge_results.yaml"

// ChallengeResult is the single outcome of one job, immutable once
// produced.
type ChallengeResult struct {
	Status  Status             `yaml:"status"`
	Message string             `yaml:"msg"`
	Scores  map[string]float64 `yaml:"scores"`
}

// Read parses the results file from the given results directory. Errors
// here are the caller's to contain: a missing or malformed file must
// still end up as a reportable error-status result.
func Read(resultsDir string) (*ChallengeResult, error) {
	path := filepath.Join(resultsDir, FileName)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading results file %s: %w", path, err)
	}
	var cr ChallengeResult
	if err := yaml.Unmarshal(data, &cr); err != nil {
		return nil, fmt.Errorf("parsing results file %s: %w", path, err)
	}
	switch cr.Status {
	case StatusSuccess, StatusFailed, StatusError:
	default:
		return nil, fmt.Errorf("results file %s has unknown status %q", path, cr.Status)
	}
	if cr.Scores == nil {
		cr.Scores = map[string]float64{}
	}
	return &cr, nil
}

// Synthesize builds a local result for jobs whose evaluation never
// produced one. The scores map is always non-nil.
func Synthesize(status Status, message string) *ChallengeResult {
	return &ChallengeResult{
		Status:  status,
		Message: message,
		Scores:  map[string]float64{},
	}
}

// Stats returns the report payload mapping for this result. Never nil,
// so the reporting client can always extend it with artifact metadata.
func (cr *ChallengeResult) Stats() map[string]any {
	scores := cr.Scores
	if scores == nil {
		scores = map[string]float64{}
	}
	return map[string]any{
		"scores": scores,
		"msg":    cr.Message,
	}
}
