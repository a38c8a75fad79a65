package bioactivity

import (
	"bufio"
	"bytes"
	"context"
	_ "embed"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os/exec"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/turtacn/ache-predictor/internal/config"
	"github.com/turtacn/ache-predictor/internal/infrastructure/monitoring/logging"
)

//go:embed predict.py
var predictScript string

// CommandModel scores through a Python helper that unpickles the model with
// joblib. Features go to the helper's stdin as CSV with the schema header so
// the estimator sees its training column names.
type CommandModel struct {
	python    string
	script    string
	modelPath string
	schema    *Schema
	timeout   time.Duration
	logger    logging.Logger
	closed    atomic.Bool

	command func(ctx context.Context, name string, args ...string) *exec.Cmd
}

// NewCommandModel checks that the interpreter exists and returns the model.
func NewCommandModel(cfg config.CommandModelConfig, modelPath string, schema *Schema, logger logging.Logger) (*CommandModel, error) {
	python := cfg.Python
	if python == "" {
		python = config.DefaultPython
	}
	if _, err := exec.LookPath(python); err != nil {
		return nil, fmt.Errorf("python interpreter %q: %w", python, err)
	}
	return &CommandModel{
		python:    python,
		script:    cfg.Script,
		modelPath: modelPath,
		schema:    schema,
		timeout:   cfg.Timeout,
		logger:    logger.Named("model.command"),
		command:   exec.CommandContext,
	}, nil
}

func (m *CommandModel) Backend() string { return config.BackendCommand }

func (m *CommandModel) args() []string {
	if m.script != "" {
		return []string{m.script, m.modelPath}
	}
	return []string{"-c", predictScript, m.modelPath}
}

func (m *CommandModel) Predict(ctx context.Context, matrix [][]float64) ([]float64, error) {
	if m.closed.Load() {
		return nil, ErrModelClosed
	}
	if m.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.timeout)
		defer cancel()
	}

	var stdin bytes.Buffer
	if err := writeFeatureCSV(&stdin, m.schema, matrix); err != nil {
		return nil, err
	}

	cmd := m.command(ctx, m.python, m.args()...)
	var stdout, stderr bytes.Buffer
	cmd.Stdin = &stdin
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	cmd.WaitDelay = 5 * time.Second
	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("model helper: %w", ctx.Err())
		}
		return nil, fmt.Errorf("model helper: %w: %s", err, bytes.TrimSpace(tail(stderr.Bytes(), 2048)))
	}

	var out struct {
		Predictions []float64 `json:"predictions"`
		Error       string    `json:"error"`
	}
	if err := json.Unmarshal(stdout.Bytes(), &out); err != nil {
		return nil, fmt.Errorf("decode model helper output: %w", err)
	}
	if out.Error != "" {
		return nil, fmt.Errorf("model helper: %s", out.Error)
	}
	if err := checkCount(out.Predictions, len(matrix)); err != nil {
		return nil, err
	}
	m.logger.Debug("model helper scored rows", logging.Int("rows", len(matrix)))
	return out.Predictions, nil
}

func (m *CommandModel) Close() error {
	m.closed.Store(true)
	return nil
}

func writeFeatureCSV(w io.Writer, schema *Schema, matrix [][]float64) error {
	bw := bufio.NewWriter(w)
	cw := csv.NewWriter(bw)
	if err := cw.Write(schema.Features); err != nil {
		return err
	}
	rec := make([]string, schema.Len())
	for r, row := range matrix {
		if len(row) != schema.Len() {
			return fmt.Errorf("row %d has %d values, schema has %d", r, len(row), schema.Len())
		}
		for j, v := range row {
			rec[j] = strconv.FormatFloat(v, 'g', -1, 64)
		}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return err
	}
	return bw.Flush()
}

func tail(b []byte, n int) []byte {
	if len(b) > n {
		return b[len(b)-n:]
	}
	return b
}

//Personal.AI order the ending
