package handlers

import (
	"bytes"
	"context"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	appprediction "github.com/turtacn/ache-predictor/internal/application/prediction"
	"github.com/turtacn/ache-predictor/internal/config"
	"github.com/turtacn/ache-predictor/internal/domain/prediction"
	"github.com/turtacn/ache-predictor/internal/interfaces/http/middleware"
	"github.com/turtacn/ache-predictor/pkg/types/common"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type mockService struct {
	mock.Mock
}

func (m *mockService) Predict(ctx context.Context, in *appprediction.PredictInput) (*appprediction.PredictOutput, error) {
	args := m.Called(ctx, in)
	out, _ := args.Get(0).(*appprediction.PredictOutput)
	return out, args.Error(1)
}

func (m *mockService) GetRun(ctx context.Context, id string) (*prediction.Run, error) {
	args := m.Called(ctx, id)
	run, _ := args.Get(0).(*prediction.Run)
	return run, args.Error(1)
}

func (m *mockService) ListRuns(ctx context.Context, page common.Pagination) ([]*prediction.Run, int64, error) {
	args := m.Called(ctx, page)
	runs, _ := args.Get(0).([]*prediction.Run)
	return runs, args.Get(1).(int64), args.Error(2)
}

func (m *mockService) RenderCSV(ctx context.Context, id string) ([]byte, error) {
	args := m.Called(ctx, id)
	data, _ := args.Get(0).([]byte)
	return data, args.Error(1)
}

func (m *mockService) SearchResults(ctx context.Context, q prediction.SearchQuery) ([]prediction.SearchHit, int64, error) {
	args := m.Called(ctx, q)
	hits, _ := args.Get(0).([]prediction.SearchHit)
	return hits, args.Get(1).(int64), args.Error(2)
}

func (m *mockService) SimilarMolecules(ctx context.Context, id string, k int) ([]prediction.SimilarMolecule, error) {
	args := m.Called(ctx, id, k)
	out, _ := args.Get(0).([]prediction.SimilarMolecule)
	return out, args.Error(1)
}

func (m *mockService) MoleculeHistory(ctx context.Context, id string) ([]prediction.HistoryEntry, error) {
	args := m.Called(ctx, id)
	out, _ := args.Get(0).([]prediction.HistoryEntry)
	return out, args.Error(1)
}

func (m *mockService) SetCoverage(cfg config.CoverageConfig) { m.Called(cfg) }

type mockJobService struct {
	mock.Mock
}

func (m *mockJobService) Submit(ctx context.Context, name string, data []byte, requestID string) (*prediction.Job, error) {
	args := m.Called(ctx, name, data, requestID)
	job, _ := args.Get(0).(*prediction.Job)
	return job, args.Error(1)
}

func (m *mockJobService) Status(ctx context.Context, id string) (*prediction.Job, error) {
	args := m.Called(ctx, id)
	job, _ := args.Get(0).(*prediction.Job)
	return job, args.Error(1)
}

func (m *mockJobService) Handle(ctx context.Context, req *prediction.JobRequest) error {
	return m.Called(ctx, req).Error(0)
}

// newEngine mounts one route behind the request ID middleware.
func newEngine(method, path string, h gin.HandlerFunc) *gin.Engine {
	r := gin.New()
	r.Use(middleware.RequestID())
	r.SetHTMLTemplate(PageTemplates())
	r.Handle(method, path, h)
	return r
}

func serve(r http.Handler, req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

// uploadRequest builds a multipart request carrying content in the file field.
func uploadRequest(t *testing.T, target, filename, content string) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, err := mw.CreateFormFile(UploadField, filename)
	require.NoError(t, err)
	_, err = fw.Write([]byte(content))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, target, &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

//Personal.AI order the ending
