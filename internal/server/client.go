// Package server is the client for the remote job-coordination API: one
// call to take a pending submission, one call to report the outcome.
package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"
)

var logger = logrus.WithFields(logrus.Fields{
	"app":       "crucible",
	"component": "server",
})

const (
	takeSubmissionPath = "/take-submission"
	reportJobPath      = "/report-job"
)

// NoneAvailableError signals that the server has no pending submission.
// It is an expected, frequent condition, not a fault.
type NoneAvailableError struct {
	Reason string
}

func (e *NoneAvailableError) Error() string {
	return fmt.Sprintf("no submissions available: %s", e.Reason)
}

// ConnectionError wraps any transport-level failure talking to the
// server, so the continuous loop can apply backoff.
type ConnectionError struct {
	Op  string
	Err error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// Job describes one unit of work, as issued by the server. Consumed
// exactly once and never mutated after receipt.
type Job struct {
	JobID               string              `json:"job_id"`
	ChallengeName       string              `json:"challenge_name"`
	Parameters          Parameters          `json:"parameters"`
	ChallengeParameters ChallengeParameters `json:"challenge_parameters"`
}

type Parameters struct {
	Hash string `json:"hash"`
}

type ChallengeParameters struct {
	Protocol  string `json:"protocol"`
	Container string `json:"container"`
}

// TakeRequest identifies the caller and optionally names a specific job.
type TakeRequest struct {
	Token            string `json:"token"`
	JobID            string `json:"job_id,omitempty"`
	MachineID        string `json:"machine_id"`
	ProcessID        string `json:"process_id"`
	EvaluatorVersion string `json:"evaluator_version"`
}

// ReportRequest carries the final outcome of one job back to the server.
type ReportRequest struct {
	Token               string         `json:"token"`
	JobID               string         `json:"job_id"`
	Stats               map[string]any `json:"stats"`
	Result              string         `json:"result"`
	MachineID           string         `json:"machine_id"`
	ProcessID           string         `json:"process_id"`
	EvaluationContainer string         `json:"evaluation_container"`
	EvaluatorVersion    string         `json:"evaluator_version"`
}

type Client struct {
	baseURL string
	http    *http.Client
}

func New(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: 60 * time.Second},
	}
}

// Acquire asks the server for a pending submission. A response without a
// job_id means none is available and is returned as *NoneAvailableError;
// transport failures are returned as *ConnectionError. No structural
// validation of the challenge parameters happens here.
func (c *Client) Acquire(ctx context.Context, req TakeRequest) (*Job, error) {
	body, err := c.post(ctx, takeSubmissionPath, req)
	if err != nil {
		return nil, err
	}

	var probe struct {
		JobID string `json:"job_id"`
		Msg   string `json:"msg"`
	}
	if err := json.Unmarshal(body, &probe); err != nil {
		return nil, fmt.Errorf("parsing take-submission response: %w", err)
	}
	if probe.JobID == "" {
		return nil, &NoneAvailableError{Reason: probe.Msg}
	}

	var job Job
	if err := json.Unmarshal(body, &job); err != nil {
		return nil, fmt.Errorf("parsing job %s: %w", probe.JobID, err)
	}
	return &job, nil
}

// Report sends the final outcome for a job. The acknowledgement body is
// discarded; the call is fire-and-forget from the driver's perspective.
func (c *Client) Report(ctx context.Context, req ReportRequest) error {
	if req.Stats == nil {
		return fmt.Errorf("report for job %s has nil stats", req.JobID)
	}
	_, err := c.post(ctx, reportJobPath, req)
	if err == nil {
		logger.WithFields(logrus.Fields{
			"job_id": req.JobID,
			"result": req.Result,
		}).Info("reported job outcome")
	}
	return err
}

func (c *Client) post(ctx context.Context, path string, payload any) ([]byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshaling %s request: %w", path, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("building %s request: %w", path, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &ConnectionError{Op: "POST " + path, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &ConnectionError{Op: "reading " + path + " response", Err: err}
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &ConnectionError{
			Op:  "POST " + path,
			Err: fmt.Errorf("server returned %s: %s", resp.Status, body),
		}
	}
	return body, nil
}
