package bioactivity

import (
	"context"
	"errors"
	"fmt"

	"github.com/turtacn/ache-predictor/internal/config"
	"github.com/turtacn/ache-predictor/internal/infrastructure/monitoring/logging"
)

// Model scores an aligned feature matrix, one value per row in order.
type Model interface {
	Predict(ctx context.Context, matrix [][]float64) ([]float64, error)
	Backend() string
	Close() error
}

var (
	ErrModelClosed     = errors.New("model closed")
	ErrPredictionCount = errors.New("prediction count does not match row count")
)

// OpenFunc opens a model backend for the artifact at modelPath.
type OpenFunc func(ctx context.Context, modelPath string, schema *Schema) (Model, error)

// NewOpenFunc returns the opener for the configured backend.
func NewOpenFunc(cfg config.ModelConfig, logger logging.Logger) (OpenFunc, error) {
	switch cfg.Backend {
	case config.BackendCommand, "":
		return func(_ context.Context, modelPath string, schema *Schema) (Model, error) {
			return NewCommandModel(cfg.Command, modelPath, schema, logger)
		}, nil
	case config.BackendONNX:
		return func(_ context.Context, modelPath string, schema *Schema) (Model, error) {
			return NewONNXModel(cfg.ONNX, modelPath, schema, logger)
		}, nil
	case config.BackendHTTP:
		return func(ctx context.Context, _ string, schema *Schema) (Model, error) {
			return NewHTTPModel(ctx, cfg.HTTP, schema, logger)
		}, nil
	default:
		return nil, fmt.Errorf("unknown model backend %q", cfg.Backend)
	}
}

// checkCount enforces one prediction per row.
func checkCount(preds []float64, rows int) error {
	if len(preds) != rows {
		return fmt.Errorf("%w: got %d for %d rows", ErrPredictionCount, len(preds), rows)
	}
	return nil
}

// FuncModel adapts a function to Model. Used for fixed models in tests and
// dry runs.
type FuncModel struct {
	Name string
	Fn   func(ctx context.Context, matrix [][]float64) ([]float64, error)
}

func (m *FuncModel) Predict(ctx context.Context, matrix [][]float64) ([]float64, error) {
	return m.Fn(ctx, matrix)
}

func (m *FuncModel) Backend() string {
	if m.Name == "" {
		return "func"
	}
	return m.Name
}

func (m *FuncModel) Close() error { return nil }

//Personal.AI order the ending
