package bioactivity

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"os/exec"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/ache-predictor/internal/config"
	"github.com/turtacn/ache-predictor/internal/infrastructure/monitoring/logging"
)

func kserveServer(t *testing.T, ready bool, respond func(req v2Request) (int, v2Response)) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/v2/models/ache/ready", func(w http.ResponseWriter, _ *http.Request) {
		if !ready {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("/v2/models/ache/infer", func(w http.ResponseWriter, r *http.Request) {
		var req v2Request
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		status, resp := respond(req)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(resp)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestHTTPModel_Predict(t *testing.T) {
	srv := kserveServer(t, true, func(req v2Request) (int, v2Response) {
		in := req.Inputs[0]
		rows := in.Shape[0]
		out := make([]float64, rows)
		for i := 0; i < rows; i++ {
			for j := 0; j < in.Shape[1]; j++ {
				out[i] += in.Data[i*in.Shape[1]+j]
			}
		}
		return http.StatusOK, v2Response{Outputs: []v2Tensor{{Name: "variable", Shape: []int{rows}, Datatype: "FP64", Data: out}}}
	})

	schema := mustSchema(t, "A", "B")
	m, err := NewHTTPModel(context.Background(), config.HTTPModelConfig{URL: srv.URL + "/", ModelName: "ache"}, schema, logging.NewNopLogger())
	require.NoError(t, err)
	defer m.Close()

	preds, err := m.Predict(context.Background(), [][]float64{{1, 2}, {3, 4}})
	require.NoError(t, err)
	assert.Equal(t, []float64{3, 7}, preds)
	assert.Equal(t, config.BackendHTTP, m.Backend())
}

func TestHTTPModel_NotReady(t *testing.T) {
	srv := kserveServer(t, false, nil)
	_, err := NewHTTPModel(context.Background(), config.HTTPModelConfig{URL: srv.URL, ModelName: "ache"}, mustSchema(t, "A"), logging.NewNopLogger())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not ready")
}

func TestHTTPModel_CountMismatchAndServerError(t *testing.T) {
	calls := 0
	srv := kserveServer(t, true, func(req v2Request) (int, v2Response) {
		calls++
		if calls == 1 {
			return http.StatusOK, v2Response{Outputs: []v2Tensor{{Data: []float64{1}}}}
		}
		return http.StatusInternalServerError, v2Response{Error: "boom"}
	})
	m, err := NewHTTPModel(context.Background(), config.HTTPModelConfig{URL: srv.URL, ModelName: "ache"}, mustSchema(t, "A"), logging.NewNopLogger())
	require.NoError(t, err)

	_, err = m.Predict(context.Background(), [][]float64{{1}, {2}})
	assert.True(t, errors.Is(err, ErrPredictionCount))

	_, err = m.Predict(context.Background(), [][]float64{{1}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "boom")
}

// The command backend is exercised against a fake interpreter: the test
// binary re-executed in helper mode.
func TestHelperPython(t *testing.T) {
	if os.Getenv("GO_WANT_HELPER_PYTHON") != "1" {
		return
	}
	defer os.Exit(0)

	data, _ := io.ReadAll(os.Stdin)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	switch os.Getenv("HELPER_MODE") {
	case "ok":
		preds := make([]string, 0, len(lines)-1)
		for i := range lines[1:] {
			preds = append(preds, fmt.Sprintf("%d.5", i+5))
		}
		fmt.Printf(`{"predictions":[%s]}`, strings.Join(preds, ","))
	case "error":
		fmt.Print(`{"error":"ValueError: feature names mismatch"}`)
	case "crash":
		fmt.Fprint(os.Stderr, "Traceback: ModuleNotFoundError: No module named 'joblib'")
		os.Exit(1)
	}
}

func helperPython(mode string) func(ctx context.Context, name string, args ...string) *exec.Cmd {
	return func(ctx context.Context, name string, args ...string) *exec.Cmd {
		cmd := exec.CommandContext(ctx, os.Args[0], "-test.run=TestHelperPython")
		cmd.Env = append(os.Environ(), "GO_WANT_HELPER_PYTHON=1", "HELPER_MODE="+mode)
		return cmd
	}
}

func newCommandModel(t *testing.T, mode string) *CommandModel {
	t.Helper()
	return &CommandModel{
		python:    "python3",
		modelPath: "model.pkl",
		schema:    mustSchema(t, "A", "B"),
		timeout:   10 * time.Second,
		logger:    logging.NewNopLogger(),
		command:   helperPython(mode),
	}
}

func TestCommandModel_Predict(t *testing.T) {
	preds, err := newCommandModel(t, "ok").Predict(context.Background(), [][]float64{{1, 0}, {0, 1}})
	require.NoError(t, err)
	assert.Equal(t, []float64{5.5, 6.5}, preds)
}

func TestCommandModel_Failures(t *testing.T) {
	_, err := newCommandModel(t, "error").Predict(context.Background(), [][]float64{{1, 0}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "feature names mismatch")

	_, err = newCommandModel(t, "crash").Predict(context.Background(), [][]float64{{1, 0}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "joblib")

	_, err = newCommandModel(t, "ok").Predict(context.Background(), [][]float64{{1}})
	assert.Error(t, err)

	m := newCommandModel(t, "ok")
	require.NoError(t, m.Close())
	_, err = m.Predict(context.Background(), [][]float64{{1, 0}})
	assert.ErrorIs(t, err, ErrModelClosed)
}

func TestCommandModel_Args(t *testing.T) {
	m := newCommandModel(t, "ok")
	args := m.args()
	require.Len(t, args, 3)
	assert.Equal(t, "-c", args[0])
	assert.Contains(t, args[1], "joblib.load")
	assert.Equal(t, "model.pkl", args[2])

	m.script = "/opt/ache/predict.py"
	assert.Equal(t, []string{"/opt/ache/predict.py", "model.pkl"}, m.args())
}

func TestWriteFeatureCSV(t *testing.T) {
	var sb strings.Builder
	require.NoError(t, writeFeatureCSV(&sb, mustSchema(t, "A", "B"), [][]float64{{1, 0.25}}))
	assert.Equal(t, "A,B\n1,0.25\n", sb.String())
}

func TestNewOpenFunc_UnknownBackend(t *testing.T) {
	_, err := NewOpenFunc(config.ModelConfig{Backend: "tensorflow"}, logging.NewNopLogger())
	assert.Error(t, err)
}

func TestONNXModel_Smoke(t *testing.T) {
	lib, model := os.Getenv("ONNXRUNTIME_LIB"), os.Getenv("ACHE_TEST_ONNX_MODEL")
	if lib == "" || model == "" {
		t.Skip("ONNXRUNTIME_LIB and ACHE_TEST_ONNX_MODEL not set")
	}
	schema := mustSchema(t, "A", "B")
	m, err := NewONNXModel(config.ONNXModelConfig{SharedLibraryPath: lib}, model, schema, logging.NewNopLogger())
	require.NoError(t, err)
	defer m.Close()

	preds, err := m.Predict(context.Background(), [][]float64{{0, 1}, {1, 0}})
	require.NoError(t, err)
	assert.Len(t, preds, 2)
}

//Personal.AI order the ending
