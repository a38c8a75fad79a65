package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	appprediction "github.com/turtacn/ache-predictor/internal/application/prediction"
	"github.com/turtacn/ache-predictor/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/ache-predictor/internal/interfaces/http/middleware"
)

// JobHandler serves asynchronous submissions.
type JobHandler struct {
	jobs      appprediction.JobService
	maxUpload int64
	logger    logging.Logger
}

func NewJobHandler(jobs appprediction.JobService, maxUpload int64, logger logging.Logger) *JobHandler {
	return &JobHandler{jobs: jobs, maxUpload: maxUpload, logger: logger}
}

// Submit handles POST /api/v1/jobs and answers 202 with the pending job.
func (h *JobHandler) Submit(c *gin.Context) {
	name, data, err := readUpload(c, h.maxUpload)
	if err != nil {
		writeError(c, err)
		return
	}
	job, err := h.jobs.Submit(c.Request.Context(), name, data, middleware.GetRequestID(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.Header("Location", "/api/v1/jobs/"+job.ID)
	c.JSON(http.StatusAccepted, job)
}

// Get handles GET /api/v1/jobs/:id.
func (h *JobHandler) Get(c *gin.Context) {
	job, err := h.jobs.Status(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, job)
}

//Personal.AI order the ending
