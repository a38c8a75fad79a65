package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/ache-predictor/pkg/errors"
)

type testLogger struct {
	count atomic.Int32
}

func (l *testLogger) Debugf(format string, args ...interface{}) { l.count.Add(1) }
func (l *testLogger) Infof(format string, args ...interface{})  { l.count.Add(1) }
func (l *testLogger) Errorf(format string, args ...interface{}) { l.count.Add(1) }

func newTestClient(t *testing.T, handler http.HandlerFunc, opts ...Option) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	opts = append([]Option{WithRetryWait(time.Millisecond, 5*time.Millisecond)}, opts...)
	c, err := NewClient(server.URL, opts...)
	require.NoError(t, err)
	return c
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func TestNewClient_Validation(t *testing.T) {
	for _, base := range []string{"", "ftp://host", "://bad"} {
		_, err := NewClient(base)
		assert.True(t, errors.IsCode(err, errors.ErrCodeValidation), base)
	}
	c, err := NewClient("https://api.example.org/")
	require.NoError(t, err)
	assert.Equal(t, "https://api.example.org", c.BaseURL())
}

func TestPredict_SendsMultipartAndHeaders(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/v1/predictions", r.URL.Path)
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		assert.NotEmpty(t, r.Header.Get("X-Request-ID"))

		f, fh, err := r.FormFile("file")
		require.NoError(t, err)
		defer f.Close()
		body, _ := io.ReadAll(f)
		assert.Equal(t, UploadFilename, fh.Filename)
		assert.Equal(t, "CCO\tmol-1\n", string(body))

		writeJSON(w, http.StatusOK, map[string]any{
			"run":      map[string]any{"id": "run-1", "status": "succeeded", "results": []map[string]any{{"molecule_id": "mol-1", "smiles": "CCO", "predicted_pic50": 5.5}}},
			"info":     "3 of 3 features matched from training descriptors.",
			"csv_path": "/api/v1/predictions/run-1/download",
		})
	}, WithToken("tok"))

	out, err := c.Predict(context.Background(), strings.NewReader("CCO\tmol-1\n"))
	require.NoError(t, err)
	assert.Equal(t, "run-1", out.Run.ID)
	require.Len(t, out.Run.Results, 1)
	assert.Equal(t, 5.5, out.Run.Results[0].PredictedPIC50)
	assert.Equal(t, "/api/v1/predictions/run-1/download", out.CSVPath)
}

func TestPredict_StageErrorNotRetried(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		writeJSON(w, http.StatusBadRequest, map[string]any{
			"code":        "PIPE_001",
			"message":     "line 1: expected SMILES and Molecule_ID",
			"stage":       "ingest",
			"diagnostics": []string{"line 1: expected SMILES and Molecule_ID"},
			"request_id":  "req-1",
		})
	})

	_, err := c.Predict(context.Background(), strings.NewReader("bad"))
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "PIPE_001", apiErr.Code)
	assert.Equal(t, "ingest", apiErr.Stage)
	assert.Equal(t, "req-1", apiErr.RequestID)
	assert.Equal(t, int32(1), calls.Load())
}

func TestDo_RetriesServerErrorsAndResendsBody(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		f, _, err := r.FormFile("file")
		require.NoError(t, err)
		body, _ := io.ReadAll(f)
		assert.Equal(t, "CCO\tm1\n", string(body), "body must be rebuilt on retry")

		if calls.Add(1) < 3 {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"code": "COMMON_008", "message": "busy"})
			return
		}
		writeJSON(w, http.StatusAccepted, map[string]any{"id": "job-1", "status": "pending"})
	})

	job, err := c.SubmitJob(context.Background(), strings.NewReader("CCO\tm1\n"))
	require.NoError(t, err)
	assert.Equal(t, "job-1", job.ID)
	assert.Equal(t, int32(3), calls.Load())
}

func TestDo_RequestIDStableAcrossRetries(t *testing.T) {
	var ids []string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		ids = append(ids, r.Header.Get("X-Request-ID"))
		if len(ids) == 1 {
			w.Header().Set("Retry-After", "0")
			writeJSON(w, http.StatusTooManyRequests, map[string]string{"code": "COMMON_007"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"id": "job-1", "status": "running"})
	})

	_, err := c.GetJob(context.Background(), "job-1")
	require.NoError(t, err)
	require.Len(t, ids, 2)
	assert.Equal(t, ids[0], ids[1])
}

func TestDo_GivesUpAfterRetryMax(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}, WithRetryMax(2))

	_, err := c.GetRun(context.Background(), "run-1")
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.True(t, apiErr.IsServerError())
	assert.Equal(t, http.StatusText(http.StatusBadGateway), apiErr.Message)
	assert.Equal(t, int32(3), calls.Load())
}

func TestListRuns_Query(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "2", r.URL.Query().Get("page"))
		assert.Equal(t, "50", r.URL.Query().Get("page_size"))
		writeJSON(w, http.StatusOK, map[string]any{
			"items": []map[string]any{{"id": "run-9"}},
			"total": 51, "page": 2, "page_size": 50,
		})
	})

	list, err := c.ListRuns(context.Background(), 2, 50)
	require.NoError(t, err)
	assert.Equal(t, int64(51), list.Total)
	require.Len(t, list.Items, 1)
	assert.Equal(t, "run-9", list.Items[0].ID)
}

func TestDownloadCSV(t *testing.T) {
	const table = "Molecule_ID,SMILES,Predicted_pIC50\nmol-1,CCO,5.5\n"
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/predictions/run-1/download", r.URL.Path)
		assert.Equal(t, "text/csv", r.Header.Get("Accept"))
		w.Header().Set("Content-Type", "text/csv")
		fmt.Fprint(w, table)
	})

	var buf bytes.Buffer
	n, err := c.DownloadCSV(context.Background(), "run-1", &buf)
	require.NoError(t, err)
	assert.Equal(t, int64(len(table)), n)
	assert.Equal(t, table, buf.String())
}

func TestGetRun_NotFound(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusNotFound, map[string]string{"code": "PIPE_010", "message": "prediction run not found"})
	})

	_, err := c.GetRun(context.Background(), "nope")
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.True(t, apiErr.IsNotFound())
}

func TestWaitJob(t *testing.T) {
	var polls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		status := JobRunning
		if polls.Add(1) >= 3 {
			status = JobSucceeded
		}
		writeJSON(w, http.StatusOK, map[string]any{"id": "job-1", "status": status, "run_id": "run-1"})
	})

	job, err := c.WaitJob(context.Background(), "job-1", time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, JobSucceeded, job.Status)
	assert.Equal(t, "run-1", job.RunID)
	assert.Equal(t, int32(3), polls.Load())
}

func TestWaitJob_ContextCancelled(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"id": "job-1", "status": JobPending})
	})
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	job, err := c.WaitJob(ctx, "job-1", 5*time.Millisecond)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	require.NotNil(t, job)
	assert.Equal(t, JobPending, job.Status)
}

//Personal.AI order the ending
