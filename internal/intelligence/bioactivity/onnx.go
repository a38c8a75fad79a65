package bioactivity

import (
	"context"
	"fmt"
	"sync"

	ort "github.com/yalue/onnxruntime_go"

	"github.com/turtacn/ache-predictor/internal/config"
	"github.com/turtacn/ache-predictor/internal/infrastructure/monitoring/logging"
)

var (
	ortOnce    sync.Once
	ortInitErr error
)

// initRuntime loads the onnxruntime shared library once per process.
func initRuntime(libPath string) error {
	ortOnce.Do(func() {
		if libPath != "" {
			ort.SetSharedLibraryPath(libPath)
		}
		if !ort.IsInitialized() {
			ortInitErr = ort.InitializeEnvironment()
		}
	})
	return ortInitErr
}

// ONNXModel runs an sklearn regressor exported with skl2onnx. The graph takes
// a float32 [N, F] input and yields a float32 [N, 1] output.
type ONNXModel struct {
	mu      sync.Mutex
	session *ort.DynamicAdvancedSession
	input   string
	output  string
	schema  *Schema
	logger  logging.Logger
}

// NewONNXModel opens a session over modelPath.
func NewONNXModel(cfg config.ONNXModelConfig, modelPath string, schema *Schema, logger logging.Logger) (*ONNXModel, error) {
	if err := initRuntime(cfg.SharedLibraryPath); err != nil {
		return nil, fmt.Errorf("initialize onnxruntime: %w", err)
	}
	input, output := cfg.InputName, cfg.OutputName
	if input == "" {
		input = config.DefaultONNXInputName
	}
	if output == "" {
		output = config.DefaultONNXOutputName
	}

	opts, err := ort.NewSessionOptions()
	if err != nil {
		return nil, fmt.Errorf("session options: %w", err)
	}
	defer opts.Destroy()
	if cfg.IntraOpThreads > 0 {
		if err := opts.SetIntraOpNumThreads(cfg.IntraOpThreads); err != nil {
			return nil, fmt.Errorf("set intra-op threads: %w", err)
		}
	}

	session, err := ort.NewDynamicAdvancedSession(modelPath, []string{input}, []string{output}, opts)
	if err != nil {
		return nil, fmt.Errorf("open onnx session %s: %w", modelPath, err)
	}
	return &ONNXModel{
		session: session,
		input:   input,
		output:  output,
		schema:  schema,
		logger:  logger.Named("model.onnx"),
	}, nil
}

func (m *ONNXModel) Backend() string { return config.BackendONNX }

func (m *ONNXModel) Predict(ctx context.Context, matrix [][]float64) ([]float64, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	rows, cols := len(matrix), m.schema.Len()
	if rows == 0 {
		return []float64{}, nil
	}
	flat := make([]float32, 0, rows*cols)
	for r, row := range matrix {
		if len(row) != cols {
			return nil, fmt.Errorf("row %d has %d values, schema has %d", r, len(row), cols)
		}
		for _, v := range row {
			flat = append(flat, float32(v))
		}
	}

	in, err := ort.NewTensor(ort.NewShape(int64(rows), int64(cols)), flat)
	if err != nil {
		return nil, fmt.Errorf("input tensor: %w", err)
	}
	defer in.Destroy()
	out, err := ort.NewEmptyTensor[float32](ort.NewShape(int64(rows), 1))
	if err != nil {
		return nil, fmt.Errorf("output tensor: %w", err)
	}
	defer out.Destroy()

	m.mu.Lock()
	if m.session == nil {
		m.mu.Unlock()
		return nil, ErrModelClosed
	}
	err = m.session.Run([]ort.Value{in}, []ort.Value{out})
	m.mu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("onnx run: %w", err)
	}

	data := out.GetData()
	preds := make([]float64, len(data))
	for i, v := range data {
		preds[i] = float64(v)
	}
	if err := checkCount(preds, rows); err != nil {
		return nil, err
	}
	return preds, nil
}

func (m *ONNXModel) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.session == nil {
		return nil
	}
	err := m.session.Destroy()
	m.session = nil
	return err
}

//Personal.AI order the ending
