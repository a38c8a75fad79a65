package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	appprediction "github.com/turtacn/ache-predictor/internal/application/prediction"
	"github.com/turtacn/ache-predictor/internal/interfaces/http/middleware"
	"github.com/turtacn/ache-predictor/pkg/errors"
	"github.com/turtacn/ache-predictor/pkg/types/common"
)

// ErrorResponse is the standard error response body.
type ErrorResponse struct {
	Code        string   `json:"code"`
	Message     string   `json:"message"`
	Stage       string   `json:"stage,omitempty"`
	Diagnostics []string `json:"diagnostics,omitempty"`
	RequestID   string   `json:"request_id,omitempty"`
}

// ListResponse wraps a page of items.
type ListResponse struct {
	Items    any   `json:"items"`
	Total    int64 `json:"total"`
	Page     int   `json:"page"`
	PageSize int   `json:"page_size"`
}

// parsePagination extracts page and page_size from query parameters.
func parsePagination(c *gin.Context) common.Pagination {
	p := common.Pagination{Page: 1, PageSize: common.DefaultPageSize}
	if v, err := strconv.Atoi(c.Query("page")); err == nil && v > 0 {
		p.Page = v
	}
	if v, err := strconv.Atoi(c.Query("page_size")); err == nil && v > 0 {
		p.PageSize = v
	}
	return p.Normalize()
}

// errorBody maps err to a status and response body. Stage failures carry
// every diagnostic; uncoded errors are masked.
func errorBody(c *gin.Context, err error) (int, ErrorResponse) {
	resp := ErrorResponse{RequestID: middleware.GetRequestID(c)}

	if se, ok := appprediction.AsStageError(err); ok {
		resp.Code = string(se.Code())
		resp.Stage = string(se.Stage)
		resp.Diagnostics = se.Diagnostics()
		resp.Message = se.Message()
		return se.HTTPStatus(), resp
	}

	var ae *errors.AppError
	if errors.As(err, &ae) && ae.Code != errors.CodeUnknown {
		resp.Code = string(ae.Code)
		resp.Message = ae.Message
		if ae.Detail != "" {
			resp.Diagnostics = []string{ae.Detail}
		}
		status := errors.HTTPStatusForCode(ae.Code)
		if status >= http.StatusInternalServerError && ae.Code == errors.ErrCodeInternal {
			resp.Message = "internal server error"
			resp.Diagnostics = nil
		}
		return status, resp
	}

	resp.Code = string(errors.ErrCodeInternal)
	resp.Message = "internal server error"
	return http.StatusInternalServerError, resp
}

// writeError aborts the request with a structured error.
func writeError(c *gin.Context, err error) {
	status, body := errorBody(c, err)
	_ = c.Error(err)
	c.AbortWithStatusJSON(status, body)
}

func badRequest(c *gin.Context, msg string) {
	writeError(c, errors.New(errors.ErrCodeBadRequest, msg))
}

//Personal.AI order the ending
