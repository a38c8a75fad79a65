package cli

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	appprediction "github.com/turtacn/ache-predictor/internal/application/prediction"
	"github.com/turtacn/ache-predictor/internal/config"
	"github.com/turtacn/ache-predictor/internal/domain/prediction"
	"github.com/turtacn/ache-predictor/internal/intelligence/bioactivity"
	"github.com/turtacn/ache-predictor/pkg/types/common"
)

const baseConfig = `
auth:
  jwt_secret: test-secret
  issuer: ache-test
database:
  postgres:
    password: pg-pass
history:
  sqlite:
    disabled: true
`

type fakeService struct {
	out   *appprediction.PredictOutput
	err   error
	input *appprediction.PredictInput
	data  []byte
}

func (f *fakeService) Predict(ctx context.Context, in *appprediction.PredictInput) (*appprediction.PredictOutput, error) {
	f.input = in
	buf := new(bytes.Buffer)
	_, _ = buf.ReadFrom(in.Data)
	f.data = buf.Bytes()
	return f.out, f.err
}
func (f *fakeService) GetRun(context.Context, string) (*prediction.Run, error) { return nil, nil }
func (f *fakeService) ListRuns(context.Context, common.Pagination) ([]*prediction.Run, int64, error) {
	return nil, 0, nil
}
func (f *fakeService) RenderCSV(context.Context, string) ([]byte, error) { return nil, nil }
func (f *fakeService) SearchResults(context.Context, prediction.SearchQuery) ([]prediction.SearchHit, int64, error) {
	return nil, 0, nil
}
func (f *fakeService) SimilarMolecules(context.Context, string, int) ([]prediction.SimilarMolecule, error) {
	return nil, nil
}
func (f *fakeService) MoleculeHistory(context.Context, string) ([]prediction.HistoryEntry, error) {
	return nil, nil
}
func (f *fakeService) SetCoverage(config.CoverageConfig) {}

type fakeMigrator struct {
	calls   []string
	version uint
	dirty   bool
	err     error
	closed  bool
}

func (m *fakeMigrator) Up() error { m.calls = append(m.calls, "up"); m.version = 1; return m.err }
func (m *fakeMigrator) Down(steps int) error {
	m.calls = append(m.calls, fmt.Sprintf("down:%d", steps))
	m.version = 0
	return m.err
}
func (m *fakeMigrator) Status() (uint, bool, error) { return m.version, m.dirty, nil }
func (m *fakeMigrator) Force(v int) error {
	m.calls = append(m.calls, fmt.Sprintf("force:%d", v))
	m.version, m.dirty = uint(v), false
	return m.err
}
func (m *fakeMigrator) Close() error { m.closed = true; return nil }

type fakeArtifacts struct {
	checkErr error
	snap     *bioactivity.Snapshot
	synced   bool
}

func (a *fakeArtifacts) Check() error { return a.checkErr }
func (a *fakeArtifacts) Load(context.Context) (*bioactivity.Snapshot, error) {
	return a.snap, nil
}
func (a *fakeArtifacts) Sync(context.Context) (*bioactivity.Snapshot, error) {
	a.synced = true
	return a.snap, nil
}
func (a *fakeArtifacts) Describe() string   { return "command model abc, 2 features" }
func (a *fakeArtifacts) ModelPath() string  { return "/models/acetylcholinesterase_model.pkl" }
func (a *fakeArtifacts) SchemaPath() string { return "/models/descriptor_list.csv" }
func (a *fakeArtifacts) Close() error       { return nil }

// testFactories keeps every collaborator in memory.
func testFactories(svc appprediction.Service, runs *prediction.MemoryRunRepository) Factories {
	if runs == nil {
		runs = prediction.NewMemoryRunRepository(10)
	}
	return Factories{
		History: func(context.Context, *CLIContext) (History, error) {
			return memoryHistory{runs}, nil
		},
		Pipeline: func(context.Context, *CLIContext) (*LocalPipeline, error) {
			return &LocalPipeline{Service: svc, Runs: runs}, nil
		},
		Artifacts: func(context.Context, *CLIContext, bool) (Artifacts, error) {
			return &fakeArtifacts{}, nil
		},
		Migrator: func(*CLIContext) (Migrator, error) {
			return &fakeMigrator{}, nil
		},
	}
}

// run executes achectl with a temporary config file.
func run(t *testing.T, f Factories, cfgYAML string, args ...string) (string, string, error) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(cfgYAML), 0o600))

	cmd := newRootCommand(f)
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs(append([]string{"--config", path}, args...))
	err := cmd.ExecuteContext(context.Background())
	if err != nil {
		PrintError(cmd, err)
	}
	return stdout.String(), stderr.String(), err
}

//Personal.AI order the ending
