package server_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crucible-eval/crucible/internal/server"
)

func TestAcquireReturnsJob(t *testing.T) {
	var gotReq map[string]any
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/take-submission", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotReq))
		json.NewEncoder(w).Encode(map[string]any{
			"job_id":         "job-41",
			"challenge_name": "lane-following",
			"parameters":     map[string]string{"hash": "sha256:abc"},
			"challenge_parameters": map[string]string{
				"protocol":  "p1",
				"container": "registry.example.org/evaluator:3",
			},
		})
	}))
	defer ts.Close()

	c := server.New(ts.URL)
	job, err := c.Acquire(context.Background(), server.TakeRequest{
		Token:            "tok",
		MachineID:        "host-1",
		ProcessID:        "99",
		EvaluatorVersion: "0.5.0",
	})
	require.NoError(t, err)
	assert.Equal(t, "job-41", job.JobID)
	assert.Equal(t, "lane-following", job.ChallengeName)
	assert.Equal(t, "sha256:abc", job.Parameters.Hash)
	assert.Equal(t, "p1", job.ChallengeParameters.Protocol)
	assert.Equal(t, "registry.example.org/evaluator:3", job.ChallengeParameters.Container)

	assert.Equal(t, "tok", gotReq["token"])
	assert.Equal(t, "host-1", gotReq["machine_id"])
	assert.Equal(t, "99", gotReq["process_id"])
	assert.Equal(t, "0.5.0", gotReq["evaluator_version"])
	_, hasJobID := gotReq["job_id"]
	assert.False(t, hasJobID, "job_id should be omitted when not requested explicitly")
}

func TestAcquireExplicitJobID(t *testing.T) {
	var gotReq map[string]any
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotReq))
		json.NewEncoder(w).Encode(map[string]any{
			"job_id":               "job-7",
			"challenge_name":       "x",
			"parameters":           map[string]string{"hash": "h"},
			"challenge_parameters": map[string]string{"protocol": "p1", "container": "c"},
		})
	}))
	defer ts.Close()

	_, err := server.New(ts.URL).Acquire(context.Background(), server.TakeRequest{Token: "t", JobID: "job-7"})
	require.NoError(t, err)
	assert.Equal(t, "job-7", gotReq["job_id"])
}

func TestAcquireNoneAvailable(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"msg": "no jobs"})
	}))
	defer ts.Close()

	job, err := server.New(ts.URL).Acquire(context.Background(), server.TakeRequest{Token: "t"})
	assert.Nil(t, job)
	var none *server.NoneAvailableError
	require.ErrorAs(t, err, &none)
	assert.Equal(t, "no jobs", none.Reason)
}

func TestAcquireServerError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer ts.Close()

	_, err := server.New(ts.URL).Acquire(context.Background(), server.TakeRequest{Token: "t"})
	var conn *server.ConnectionError
	require.ErrorAs(t, err, &conn)
	var none *server.NoneAvailableError
	assert.False(t, errors.As(err, &none), "server error must not read as none-available")
}

func TestAcquireUnreachable(t *testing.T) {
	_, err := server.New("http://127.0.0.1:1").Acquire(context.Background(), server.TakeRequest{Token: "t"})
	var conn *server.ConnectionError
	require.ErrorAs(t, err, &conn)
}

func TestReportPayload(t *testing.T) {
	var gotReq map[string]any
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/report-job", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotReq))
		w.Write([]byte(`{}`))
	}))
	defer ts.Close()

	err := server.New(ts.URL).Report(context.Background(), server.ReportRequest{
		Token:               "tok",
		JobID:               "job-41",
		Stats:               map[string]any{"scores": map[string]float64{"distance": 1.5}},
		Result:              "success",
		MachineID:           "host-1",
		ProcessID:           "99",
		EvaluationContainer: "evaluator:3",
		EvaluatorVersion:    "0.5.0",
	})
	require.NoError(t, err)
	assert.Equal(t, "job-41", gotReq["job_id"])
	assert.Equal(t, "success", gotReq["result"])
	assert.Equal(t, "evaluator:3", gotReq["evaluation_container"])
	stats, ok := gotReq["stats"].(map[string]any)
	require.True(t, ok, "stats must be a mapping")
	_, hasArtifacts := stats["artifacts"]
	assert.False(t, hasArtifacts, "artifacts must be absent when not published")
}

func TestReportRejectsNilStats(t *testing.T) {
	err := server.New("http://127.0.0.1:1").Report(context.Background(), server.ReportRequest{JobID: "j"})
	require.Error(t, err)
	var conn *server.ConnectionError
	assert.False(t, errors.As(err, &conn), "nil stats is a local bug, not a transport failure")
}
