package handlers

import (
	"bytes"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	appprediction "github.com/turtacn/ache-predictor/internal/application/prediction"
	"github.com/turtacn/ache-predictor/internal/domain/prediction"
	"github.com/turtacn/ache-predictor/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/ache-predictor/internal/interfaces/http/middleware"
)

// PredictionHandler serves synchronous scoring and stored runs.
type PredictionHandler struct {
	svc       appprediction.Service
	maxUpload int64
	logger    logging.Logger
}

func NewPredictionHandler(svc appprediction.Service, maxUpload int64, logger logging.Logger) *PredictionHandler {
	return &PredictionHandler{svc: svc, maxUpload: maxUpload, logger: logger}
}

// PredictionResponse is the JSON body of a successful upload.
type PredictionResponse struct {
	*appprediction.PredictOutput
	// CSVPath is the API route that serves the results table.
	CSVPath string `json:"csv_path"`
}

func downloadPath(runID string) string {
	return "/api/v1/predictions/" + runID + "/download"
}

func wantsCSV(c *gin.Context) bool {
	return c.Query("format") == "csv" || strings.Contains(c.GetHeader("Accept"), appprediction.ResultContentType)
}

func sendCSV(c *gin.Context, data []byte) {
	c.Header("Content-Disposition", `attachment; filename=`+appprediction.ResultFilename)
	c.Data(http.StatusOK, appprediction.ResultContentType, data)
}

// Create handles POST /api/v1/predictions. The body is multipart with the
// molecule file in "file". Send Accept: text/csv to get the table itself.
func (h *PredictionHandler) Create(c *gin.Context) {
	name, data, err := readUpload(c, h.maxUpload)
	if err != nil {
		writeError(c, err)
		return
	}
	out, err := h.svc.Predict(c.Request.Context(), &appprediction.PredictInput{
		Name:      name,
		Data:      bytes.NewReader(data),
		Source:    prediction.SourceAPI,
		RequestID: middleware.GetRequestID(c),
	})
	if err != nil {
		writeError(c, err)
		return
	}
	if wantsCSV(c) {
		sendCSV(c, out.CSV)
		return
	}
	c.JSON(http.StatusOK, PredictionResponse{PredictOutput: out, CSVPath: downloadPath(out.Run.ID)})
}

// Get handles GET /api/v1/predictions/:id.
func (h *PredictionHandler) Get(c *gin.Context) {
	run, err := h.svc.GetRun(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, run)
}

// Download handles GET /api/v1/predictions/:id/download.
func (h *PredictionHandler) Download(c *gin.Context) {
	data, err := h.svc.RenderCSV(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	sendCSV(c, data)
}

// List handles GET /api/v1/predictions. Items are run summaries.
func (h *PredictionHandler) List(c *gin.Context) {
	page := parsePagination(c)
	runs, total, err := h.svc.ListRuns(c.Request.Context(), page)
	if err != nil {
		writeError(c, err)
		return
	}
	items := make([]*prediction.Run, len(runs))
	for i, r := range runs {
		items[i] = r.Summary()
	}
	c.JSON(http.StatusOK, ListResponse{Items: items, Total: total, Page: page.Page, PageSize: page.PageSize})
}

// Search handles GET /api/v1/predictions/search?q=&min=&max=.
func (h *PredictionHandler) Search(c *gin.Context) {
	q := prediction.SearchQuery{Text: c.Query("q")}
	for param, dst := range map[string]**float64{"min": &q.MinPIC50, "max": &q.MaxPIC50} {
		raw := c.Query(param)
		if raw == "" {
			continue
		}
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			badRequest(c, "invalid "+param+": must be a number")
			return
		}
		*dst = &v
	}
	page := parsePagination(c)
	q.From = (page.Page - 1) * page.PageSize
	q.Size = page.PageSize

	hits, total, err := h.svc.SearchResults(c.Request.Context(), q)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, ListResponse{Items: hits, Total: total, Page: page.Page, PageSize: page.PageSize})
}

//Personal.AI order the ending
