package prediction

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/turtacn/ache-predictor/internal/domain/prediction"
	"github.com/turtacn/ache-predictor/internal/intelligence/bioactivity"
	apperrors "github.com/turtacn/ache-predictor/pkg/errors"
)

// StageError reports which pipeline stage stopped a run. Err carries the
// coded cause; for missing artifacts it joins one error per file.
type StageError struct {
	Stage prediction.Stage
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s stage: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

// Code returns the error code of the first coded cause.
func (e *StageError) Code() apperrors.ErrorCode {
	var missing *bioactivity.MissingArtifactsError
	if errors.As(e.Err, &missing) && len(missing.Errors) > 0 {
		return missing.Errors[0].Code
	}
	if code := apperrors.GetCode(e.Err); code != apperrors.CodeUnknown {
		return code
	}
	return stageCodes[e.Stage]
}

// HTTPStatus maps the stage code to a response status.
func (e *StageError) HTTPStatus() int {
	if code := e.Code(); code != apperrors.CodeUnknown {
		return apperrors.HTTPStatusForCode(code)
	}
	return http.StatusInternalServerError
}

// Diagnostics returns the user-facing messages, one per problem found.
func (e *StageError) Diagnostics() []string {
	var missing *bioactivity.MissingArtifactsError
	if errors.As(e.Err, &missing) {
		return missing.Messages()
	}
	var ae *apperrors.AppError
	if errors.As(e.Err, &ae) {
		if ae.Detail != "" {
			return []string{ae.Message + ": " + ae.Detail}
		}
		return []string{ae.Message}
	}
	return []string{e.Err.Error()}
}

// Message is the first diagnostic.
func (e *StageError) Message() string {
	if d := e.Diagnostics(); len(d) > 0 {
		return d[0]
	}
	return e.Error()
}

var stageCodes = map[prediction.Stage]apperrors.ErrorCode{
	prediction.StageIngest:   apperrors.ErrCodeIngest,
	prediction.StageStage:    apperrors.ErrCodeStage,
	prediction.StageDescribe: apperrors.ErrCodeDescribe,
	prediction.StageLoad:     apperrors.ErrCodeArtifactInvalid,
	prediction.StageAlign:    apperrors.ErrCodeAlign,
	prediction.StagePredict:  apperrors.ErrCodePredict,
	prediction.StageEmit:     apperrors.ErrCodeEmit,
}

// stageErr tags err with its stage. Uncoded errors get the stage's code.
func stageErr(stage prediction.Stage, err error) *StageError {
	var missing *bioactivity.MissingArtifactsError
	if !errors.As(err, &missing) && apperrors.GetCode(err) == apperrors.CodeUnknown {
		code := stageCodes[stage]
		err = apperrors.Wrap(err, code, apperrors.DefaultMessageForCode(code)).WithDetail(err.Error())
	}
	return &StageError{Stage: stage, Err: err}
}

// AsStageError extracts a StageError from err's chain.
func AsStageError(err error) (*StageError, bool) {
	var se *StageError
	ok := errors.As(err, &se)
	return se, ok
}

//Personal.AI order the ending
