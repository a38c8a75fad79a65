package client

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/turtacn/ache-predictor/pkg/errors"
)

const apiPrefix = "/api/v1"

func readAll(r io.Reader) ([]byte, error) {
	if r == nil {
		return nil, errors.New(errors.ErrCodeValidation, "client: nil input")
	}
	var buf bytes.Buffer
	if _, err := io.Copy(&buf, r); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeBadRequest, "client: failed to read input")
	}
	return buf.Bytes(), nil
}

// Predict uploads a SMILES file and waits for the scored run.
func (c *Client) Predict(ctx context.Context, r io.Reader) (*PredictResult, error) {
	data, err := readAll(r)
	if err != nil {
		return nil, err
	}
	var out PredictResult
	err = c.getJSON(ctx, request{
		method: http.MethodPost,
		path:   apiPrefix + "/predictions",
		body:   multipartBody(UploadFilename, data),
	}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// GetRun fetches a run with its scored rows.
func (c *Client) GetRun(ctx context.Context, id string) (*Run, error) {
	var run Run
	if err := c.getJSON(ctx, request{method: http.MethodGet, path: apiPrefix + "/predictions/" + url.PathEscape(id)}, &run); err != nil {
		return nil, err
	}
	return &run, nil
}

// ListRuns returns run summaries, newest first.
func (c *Client) ListRuns(ctx context.Context, page, size int) (*RunList, error) {
	q := url.Values{}
	if page > 0 {
		q.Set("page", strconv.Itoa(page))
	}
	if size > 0 {
		q.Set("page_size", strconv.Itoa(size))
	}
	var out RunList
	if err := c.getJSON(ctx, request{method: http.MethodGet, path: apiPrefix + "/predictions", query: q}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// DownloadCSV streams the results table of a run into w.
func (c *Client) DownloadCSV(ctx context.Context, id string, w io.Writer) (int64, error) {
	resp, err := c.do(ctx, request{
		method: http.MethodGet,
		path:   apiPrefix + "/predictions/" + url.PathEscape(id) + "/download",
		accept: "text/csv",
	})
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	n, err := io.Copy(w, resp.Body)
	if err != nil {
		return n, errors.Wrap(err, errors.ErrCodeServiceUnavailable, "client: download interrupted")
	}
	return n, nil
}

// SubmitJob queues a SMILES file for background scoring.
func (c *Client) SubmitJob(ctx context.Context, r io.Reader) (*Job, error) {
	data, err := readAll(r)
	if err != nil {
		return nil, err
	}
	var job Job
	err = c.getJSON(ctx, request{
		method: http.MethodPost,
		path:   apiPrefix + "/jobs",
		body:   multipartBody(UploadFilename, data),
	}, &job)
	if err != nil {
		return nil, err
	}
	return &job, nil
}

// GetJob fetches the current state of a job.
func (c *Client) GetJob(ctx context.Context, id string) (*Job, error) {
	var job Job
	if err := c.getJSON(ctx, request{method: http.MethodGet, path: apiPrefix + "/jobs/" + url.PathEscape(id)}, &job); err != nil {
		return nil, err
	}
	return &job, nil
}

// WaitJob polls every interval until the job is terminal or ctx ends.
func (c *Client) WaitJob(ctx context.Context, id string, interval time.Duration) (*Job, error) {
	if interval <= 0 {
		interval = 2 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		job, err := c.GetJob(ctx, id)
		if err != nil {
			return nil, err
		}
		if job.Done() {
			return job, nil
		}
		c.logger.Debugf("job %s is %s", id, job.Status)
		select {
		case <-ctx.Done():
			return job, ctx.Err()
		case <-ticker.C:
		}
	}
}

//Personal.AI order the ending
