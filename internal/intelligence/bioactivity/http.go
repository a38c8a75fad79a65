package bioactivity

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/turtacn/ache-predictor/internal/config"
	"github.com/turtacn/ache-predictor/internal/infrastructure/monitoring/logging"
)

// HTTPModel calls a model server speaking the KServe v2 inference protocol.
type HTTPModel struct {
	baseURL string
	name    string
	schema  *Schema
	client  *http.Client
	logger  logging.Logger
}

type v2Tensor struct {
	Name     string    `json:"name"`
	Shape    []int     `json:"shape"`
	Datatype string    `json:"datatype"`
	Data     []float64 `json:"data"`
}

type v2Request struct {
	Inputs []v2Tensor `json:"inputs"`
}

type v2Response struct {
	ModelName string     `json:"model_name"`
	Outputs   []v2Tensor `json:"outputs"`
	Error     string     `json:"error,omitempty"`
}

// NewHTTPModel checks the model is ready on the server.
func NewHTTPModel(ctx context.Context, cfg config.HTTPModelConfig, schema *Schema, logger logging.Logger) (*HTTPModel, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("model server url is required")
	}
	name := cfg.ModelName
	if name == "" {
		name = config.DefaultHTTPModelName
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = config.DefaultModelTimeout
	}
	m := &HTTPModel{
		baseURL: strings.TrimRight(cfg.URL, "/"),
		name:    name,
		schema:  schema,
		client:  &http.Client{Timeout: timeout},
		logger:  logger.Named("model.http"),
	}
	if err := m.Ready(ctx); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *HTTPModel) Backend() string { return config.BackendHTTP }

// Ready probes GET /v2/models/{name}/ready.
func (m *HTTPModel) Ready(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, m.baseURL+"/v2/models/"+m.name+"/ready", nil)
	if err != nil {
		return err
	}
	resp, err := m.client.Do(req)
	if err != nil {
		return fmt.Errorf("model server unreachable: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("model %s not ready: HTTP %d", m.name, resp.StatusCode)
	}
	return nil
}

func (m *HTTPModel) Predict(ctx context.Context, matrix [][]float64) ([]float64, error) {
	rows, cols := len(matrix), m.schema.Len()
	flat := make([]float64, 0, rows*cols)
	for r, row := range matrix {
		if len(row) != cols {
			return nil, fmt.Errorf("row %d has %d values, schema has %d", r, len(row), cols)
		}
		flat = append(flat, row...)
	}
	body, err := json.Marshal(v2Request{Inputs: []v2Tensor{{
		Name:     "input-0",
		Shape:    []int{rows, cols},
		Datatype: "FP64",
		Data:     flat,
	}}})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.baseURL+"/v2/models/"+m.name+"/infer", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := m.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("infer request: %w", err)
	}
	defer resp.Body.Close()

	var out v2Response
	if err := json.NewDecoder(io.LimitReader(resp.Body, 64<<20)).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode infer response (HTTP %d): %w", resp.StatusCode, err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("infer failed: HTTP %d: %s", resp.StatusCode, out.Error)
	}
	if len(out.Outputs) == 0 {
		return nil, fmt.Errorf("infer response has no outputs")
	}
	preds := out.Outputs[0].Data
	if err := checkCount(preds, rows); err != nil {
		return nil, err
	}
	m.logger.Debug("remote inference finished",
		logging.Int("rows", rows),
		logging.Duration("elapsed", time.Since(start)))
	return preds, nil
}

func (m *HTTPModel) Close() error {
	m.client.CloseIdleConnections()
	return nil
}

//Personal.AI order the ending
