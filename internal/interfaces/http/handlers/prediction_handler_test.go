package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	appprediction "github.com/turtacn/ache-predictor/internal/application/prediction"
	"github.com/turtacn/ache-predictor/internal/domain/prediction"
	"github.com/turtacn/ache-predictor/internal/intelligence/bioactivity"
	"github.com/turtacn/ache-predictor/pkg/errors"
	"github.com/turtacn/ache-predictor/pkg/types/common"
	"github.com/turtacn/ache-predictor/pkg/types/molecule"
)

const sampleCSV = "Molecule_ID,SMILES,Predicted_pIC50\nmol-1,CCO,5.1234\n"

func succeededOutput() *appprediction.PredictOutput {
	run := prediction.NewRun(prediction.SourceAPI, "molecules.txt")
	run.FeaturesMatched, run.FeaturesTotal = 3, 3
	run.MoleculeCount = 1
	run.Succeed([]molecule.Prediction{{MoleculeID: "mol-1", SMILES: "CCO", PredictedPIC50: 5.1234}}, 0)
	return &appprediction.PredictOutput{
		Run:       run,
		Molecules: []molecule.Molecule{{SMILES: "CCO", ID: "mol-1"}},
		Info:      run.MatchInfo(),
		CSV:       []byte(sampleCSV),
	}
}

func missingArtifacts() error {
	return &appprediction.StageError{
		Stage: prediction.StageLoad,
		Err: &bioactivity.MissingArtifactsError{Errors: []*errors.AppError{
			errors.New(errors.ErrCodeModelMissing, errors.DefaultMessageForCode(errors.ErrCodeModelMissing)),
			errors.New(errors.ErrCodeSchemaMissing, errors.DefaultMessageForCode(errors.ErrCodeSchemaMissing)),
		}},
	}
}

func TestPredictionHandler_Create_JSON(t *testing.T) {
	svc := new(mockService)
	out := succeededOutput()
	svc.On("Predict", mock.Anything, mock.MatchedBy(func(in *appprediction.PredictInput) bool {
		return in.Name == "molecules.txt" && in.Source == prediction.SourceAPI && in.RequestID != ""
	})).Return(out, nil)

	h := NewPredictionHandler(svc, 0, nil)
	r := newEngine(http.MethodPost, "/api/v1/predictions", h.Create)
	w := serve(r, uploadRequest(t, "/api/v1/predictions", "molecules.txt", "CCO\tmol-1\n"))

	require.Equal(t, http.StatusOK, w.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "/api/v1/predictions/"+out.Run.ID+"/download", body["csv_path"])
	assert.Equal(t, "3 of 3 features matched from training descriptors.", body["info"])
	assert.NotContains(t, body, "CSV")
	svc.AssertExpectations(t)
}

func TestPredictionHandler_Create_CSV(t *testing.T) {
	for name, target := range map[string]string{
		"query":  "/api/v1/predictions?format=csv",
		"accept": "/api/v1/predictions",
	} {
		t.Run(name, func(t *testing.T) {
			svc := new(mockService)
			svc.On("Predict", mock.Anything, mock.Anything).Return(succeededOutput(), nil)

			h := NewPredictionHandler(svc, 0, nil)
			r := newEngine(http.MethodPost, "/api/v1/predictions", h.Create)
			req := uploadRequest(t, target, "molecules.txt", "CCO\tmol-1\n")
			if name == "accept" {
				req.Header.Set("Accept", "text/csv")
			}
			w := serve(r, req)

			require.Equal(t, http.StatusOK, w.Code)
			assert.Equal(t, "text/csv", w.Header().Get("Content-Type"))
			assert.Equal(t, "attachment; filename=predicted_pIC50_results.csv", w.Header().Get("Content-Disposition"))
			assert.Equal(t, sampleCSV, w.Body.String())
		})
	}
}

func TestPredictionHandler_Create_NoFile(t *testing.T) {
	svc := new(mockService)
	h := NewPredictionHandler(svc, 0, nil)
	r := newEngine(http.MethodPost, "/api/v1/predictions", h.Create)

	w := serve(r, httptest.NewRequest(http.MethodPost, "/api/v1/predictions", nil))

	assert.Equal(t, http.StatusBadRequest, w.Code)
	var body ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, string(errors.ErrCodeBadRequest), body.Code)
	assert.NotEmpty(t, body.RequestID)
	svc.AssertNotCalled(t, "Predict", mock.Anything, mock.Anything)
}

func TestPredictionHandler_Create_TooLarge(t *testing.T) {
	svc := new(mockService)
	h := NewPredictionHandler(svc, 8, nil)
	r := newEngine(http.MethodPost, "/api/v1/predictions", h.Create)

	w := serve(r, uploadRequest(t, "/api/v1/predictions", "big.txt", "CCCCCCCCCCCCCCCC\tmol-1\n"))

	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
}

func TestPredictionHandler_Create_MissingArtifacts(t *testing.T) {
	svc := new(mockService)
	svc.On("Predict", mock.Anything, mock.Anything).Return(nil, missingArtifacts())

	h := NewPredictionHandler(svc, 0, nil)
	r := newEngine(http.MethodPost, "/api/v1/predictions", h.Create)
	w := serve(r, uploadRequest(t, "/api/v1/predictions", "molecules.txt", "CCO\tmol-1\n"))

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	var body ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, string(errors.ErrCodeModelMissing), body.Code)
	assert.Equal(t, "load", body.Stage)
	require.Len(t, body.Diagnostics, 2)
	assert.Contains(t, body.Diagnostics[0], "acetylcholinesterase_model.pkl")
	assert.Contains(t, body.Diagnostics[1], "descriptor_list.csv")
}

func TestPredictionHandler_Get(t *testing.T) {
	out := succeededOutput()
	svc := new(mockService)
	svc.On("GetRun", mock.Anything, out.Run.ID).Return(out.Run, nil)
	svc.On("GetRun", mock.Anything, "missing").Return(nil, errors.New(errors.ErrCodeRunNotFound, "prediction run not found"))

	h := NewPredictionHandler(svc, 0, nil)
	r := newEngine(http.MethodGet, "/api/v1/predictions/:id", h.Get)

	w := serve(r, httptest.NewRequest(http.MethodGet, "/api/v1/predictions/"+out.Run.ID, nil))
	require.Equal(t, http.StatusOK, w.Code)
	var run prediction.Run
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &run))
	assert.Equal(t, out.Run.ID, run.ID)
	assert.Len(t, run.Results, 1)

	w = serve(r, httptest.NewRequest(http.MethodGet, "/api/v1/predictions/missing", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestPredictionHandler_Download(t *testing.T) {
	svc := new(mockService)
	svc.On("RenderCSV", mock.Anything, "run-1").Return([]byte(sampleCSV), nil)

	h := NewPredictionHandler(svc, 0, nil)
	r := newEngine(http.MethodGet, "/api/v1/predictions/:id/download", h.Download)
	w := serve(r, httptest.NewRequest(http.MethodGet, "/api/v1/predictions/run-1/download", nil))

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, sampleCSV, w.Body.String())
	assert.Contains(t, w.Header().Get("Content-Disposition"), "predicted_pIC50_results.csv")
}

func TestPredictionHandler_List_StripsResults(t *testing.T) {
	out := succeededOutput()
	svc := new(mockService)
	svc.On("ListRuns", mock.Anything, common.Pagination{Page: 2, PageSize: 5}).
		Return([]*prediction.Run{out.Run}, int64(6), nil)

	h := NewPredictionHandler(svc, 0, nil)
	r := newEngine(http.MethodGet, "/api/v1/predictions", h.List)
	w := serve(r, httptest.NewRequest(http.MethodGet, "/api/v1/predictions?page=2&page_size=5", nil))

	require.Equal(t, http.StatusOK, w.Code)
	var body struct {
		Items    []prediction.Run `json:"items"`
		Total    int64            `json:"total"`
		Page     int              `json:"page"`
		PageSize int              `json:"page_size"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, int64(6), body.Total)
	assert.Equal(t, 2, body.Page)
	require.Len(t, body.Items, 1)
	assert.Empty(t, body.Items[0].Results)
	assert.Len(t, out.Run.Results, 1, "stored run must not be mutated")
}

func TestPredictionHandler_Search(t *testing.T) {
	svc := new(mockService)
	svc.On("SearchResults", mock.Anything, mock.MatchedBy(func(q prediction.SearchQuery) bool {
		return q.Text == "CCO" && q.MinPIC50 != nil && *q.MinPIC50 == 5 && q.MaxPIC50 == nil &&
			q.From == 0 && q.Size == common.DefaultPageSize
	})).Return([]prediction.SearchHit{{RunID: "run-1", MoleculeID: "mol-1"}}, int64(1), nil)

	h := NewPredictionHandler(svc, 0, nil)
	r := newEngine(http.MethodGet, "/api/v1/predictions/search", h.Search)

	w := serve(r, httptest.NewRequest(http.MethodGet, "/api/v1/predictions/search?q=CCO&min=5", nil))
	require.Equal(t, http.StatusOK, w.Code)
	svc.AssertExpectations(t)

	w = serve(r, httptest.NewRequest(http.MethodGet, "/api/v1/predictions/search?max=high", nil))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestPredictionHandler_SearchDisabled(t *testing.T) {
	svc := new(mockService)
	svc.On("SearchResults", mock.Anything, mock.Anything).Return(nil, int64(0), errors.FeatureDisabled("result search"))

	h := NewPredictionHandler(svc, 0, nil)
	r := newEngine(http.MethodGet, "/api/v1/predictions/search", h.Search)
	w := serve(r, httptest.NewRequest(http.MethodGet, "/api/v1/predictions/search", nil))

	assert.Equal(t, errors.HTTPStatusForCode(errors.ErrCodeFeatureDisabled), w.Code)
}

func TestErrorBody_MasksInternal(t *testing.T) {
	svc := new(mockService)
	svc.On("GetRun", mock.Anything, "x").Return(nil, errors.Wrap(assert.AnError, errors.ErrCodeInternal, "pq: relation runs does not exist"))
	h := NewPredictionHandler(svc, 0, nil)
	r := newEngine(http.MethodGet, "/api/v1/predictions/:id", h.Get)

	w := serve(r, httptest.NewRequest(http.MethodGet, "/api/v1/predictions/x", nil))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.NotContains(t, w.Body.String(), "relation")
}

//Personal.AI order the ending
