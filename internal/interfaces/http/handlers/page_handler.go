package handlers

import (
	"bytes"
	"embed"
	"encoding/base64"
	"html/template"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	appprediction "github.com/turtacn/ache-predictor/internal/application/prediction"
	"github.com/turtacn/ache-predictor/internal/domain/prediction"
	"github.com/turtacn/ache-predictor/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/ache-predictor/internal/interfaces/http/middleware"
	"github.com/turtacn/ache-predictor/pkg/types/molecule"
)

// PageTitle heads the upload page.
const PageTitle = "Acetylcholinesterase Bioactivity Predictor"

const pageTemplate = "index.html"

//go:embed templates/*.tmpl
var templateFS embed.FS

// PageTemplates parses the embedded page templates.
func PageTemplates() *template.Template {
	return template.Must(template.New("").Funcs(template.FuncMap{
		"cell":  func(v float64) string { return strconv.FormatFloat(v, 'g', -1, 64) },
		"pic50": func(v float64) string { return strconv.FormatFloat(v, 'f', 4, 64) },
	}).ParseFS(templateFS, "templates/*.tmpl"))
}

// pageView is everything the upload page renders.
type pageView struct {
	Title        string
	InputName    string
	Errors       []string
	Molecules    []molecule.Molecule
	Preview      *molecule.DescriptorTable
	Info         string
	Warnings     []string
	Results      []molecule.Prediction
	DownloadHref template.URL
	DownloadName string
}

// PageHandler serves the single-page upload form.
type PageHandler struct {
	svc       appprediction.Service
	maxUpload int64
	logger    logging.Logger
}

func NewPageHandler(svc appprediction.Service, maxUpload int64, logger logging.Logger) *PageHandler {
	return &PageHandler{svc: svc, maxUpload: maxUpload, logger: logger}
}

// Index handles GET /.
func (h *PageHandler) Index(c *gin.Context) {
	c.HTML(http.StatusOK, pageTemplate, pageView{Title: PageTitle})
}

// Upload handles POST / and renders the run in place. Failures render the
// page with one message per problem found.
func (h *PageHandler) Upload(c *gin.Context) {
	view := pageView{Title: PageTitle}

	name, data, err := readUpload(c, h.maxUpload)
	if err != nil {
		h.renderError(c, view, err)
		return
	}
	view.InputName = name

	out, err := h.svc.Predict(c.Request.Context(), &appprediction.PredictInput{
		Name:      name,
		Data:      bytes.NewReader(data),
		Source:    prediction.SourceWeb,
		RequestID: middleware.GetRequestID(c),
	})
	if err != nil {
		if mols, perr := prediction.ParseMolecules(bytes.NewReader(data), 0); perr == nil {
			view.Molecules = mols
		}
		h.renderError(c, view, err)
		return
	}

	view.Molecules = out.Molecules
	view.Preview = out.DescriptorPreview
	view.Info = out.Info
	view.Warnings = out.Run.Warnings
	view.Results = out.Run.Results
	view.DownloadName = appprediction.ResultFilename
	view.DownloadHref = template.URL("data:" + appprediction.ResultContentType + ";base64," + base64.StdEncoding.EncodeToString(out.CSV))
	c.HTML(http.StatusOK, pageTemplate, view)
}

func (h *PageHandler) renderError(c *gin.Context, view pageView, err error) {
	status, body := errorBody(c, err)
	view.Errors = body.Diagnostics
	if len(view.Errors) == 0 {
		view.Errors = []string{body.Message}
	}
	_ = c.Error(err)
	c.HTML(status, pageTemplate, view)
}

//Personal.AI order the ending
