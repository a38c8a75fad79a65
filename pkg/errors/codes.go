package errors

import (
	"net/http"
	"strings"
)

// ErrorCode is a string representation of a specific error condition.
type ErrorCode string

func (c ErrorCode) String() string {
	return string(c)
}

// Common Error Codes
const (
	ErrCodeInternal           ErrorCode = "COMMON_001"
	ErrCodeBadRequest         ErrorCode = "COMMON_002"
	ErrCodeUnauthorized       ErrorCode = "COMMON_003"
	ErrCodeForbidden          ErrorCode = "COMMON_004"
	ErrCodeNotFound           ErrorCode = "COMMON_005"
	ErrCodeConflict           ErrorCode = "COMMON_006"
	ErrCodeTooManyRequests    ErrorCode = "COMMON_007"
	ErrCodeServiceUnavailable ErrorCode = "COMMON_008"
	ErrCodeTimeout            ErrorCode = "COMMON_009"
	ErrCodeValidation         ErrorCode = "COMMON_010"
	ErrCodeSerialization      ErrorCode = "COMMON_011"
	ErrCodeDatabaseError      ErrorCode = "COMMON_012"
	ErrCodeCacheError         ErrorCode = "COMMON_013"
	ErrCodeExternalService    ErrorCode = "COMMON_014"
	ErrCodeFeatureDisabled    ErrorCode = "COMMON_015"
	ErrCodePayloadTooLarge    ErrorCode = "COMMON_016"
)

// Aliases
const (
	CodeInternal     = ErrCodeInternal
	CodeInvalidParam = ErrCodeBadRequest
	CodeNotFound     = ErrCodeNotFound
	CodeOK           = ErrorCode("OK")
	CodeUnknown      = ErrorCode("UNKNOWN")
)

// Pipeline Error Codes. One per stage of a prediction run.
const (
	ErrCodeIngest          ErrorCode = "PIPE_001"
	ErrCodeStage           ErrorCode = "PIPE_002"
	ErrCodeDescribe        ErrorCode = "PIPE_003"
	ErrCodeModelMissing    ErrorCode = "PIPE_004"
	ErrCodeSchemaMissing   ErrorCode = "PIPE_005"
	ErrCodeAlign           ErrorCode = "PIPE_006"
	ErrCodePredict         ErrorCode = "PIPE_007"
	ErrCodeEmit            ErrorCode = "PIPE_008"
	ErrCodeArtifactInvalid ErrorCode = "PIPE_009"
	ErrCodeRunNotFound     ErrorCode = "PIPE_010"
)

// Job Error Codes
const (
	ErrCodeJobNotFound      ErrorCode = "JOB_001"
	ErrCodeJobPublishFailed ErrorCode = "JOB_002"
	ErrCodeJobPayload       ErrorCode = "JOB_003"
)

// Artifact Sync Error Codes
const (
	ErrCodeArtifactSyncFailed ErrorCode = "ART_001"
	ErrCodeArtifactNotInStore ErrorCode = "ART_002"
)

// ErrorCodeHTTPStatus maps ErrorCode to HTTP status codes.
var ErrorCodeHTTPStatus = map[ErrorCode]int{
	ErrCodeInternal:           http.StatusInternalServerError,
	ErrCodeBadRequest:         http.StatusBadRequest,
	ErrCodeUnauthorized:       http.StatusUnauthorized,
	ErrCodeForbidden:          http.StatusForbidden,
	ErrCodeNotFound:           http.StatusNotFound,
	ErrCodeConflict:           http.StatusConflict,
	ErrCodeTooManyRequests:    http.StatusTooManyRequests,
	ErrCodeServiceUnavailable: http.StatusServiceUnavailable,
	ErrCodeTimeout:            http.StatusGatewayTimeout,
	ErrCodeValidation:         http.StatusUnprocessableEntity,
	ErrCodeSerialization:      http.StatusInternalServerError,
	ErrCodeDatabaseError:      http.StatusInternalServerError,
	ErrCodeCacheError:         http.StatusInternalServerError,
	ErrCodeExternalService:    http.StatusBadGateway,
	ErrCodeFeatureDisabled:    http.StatusNotImplemented,
	ErrCodePayloadTooLarge:    http.StatusRequestEntityTooLarge,

	ErrCodeIngest:          http.StatusBadRequest,
	ErrCodeStage:           http.StatusInternalServerError,
	ErrCodeDescribe:        http.StatusBadGateway,
	ErrCodeModelMissing:    http.StatusServiceUnavailable,
	ErrCodeSchemaMissing:   http.StatusServiceUnavailable,
	ErrCodeAlign:           http.StatusUnprocessableEntity,
	ErrCodePredict:         http.StatusBadGateway,
	ErrCodeEmit:            http.StatusInternalServerError,
	ErrCodeArtifactInvalid: http.StatusServiceUnavailable,
	ErrCodeRunNotFound:     http.StatusNotFound,

	ErrCodeJobNotFound:      http.StatusNotFound,
	ErrCodeJobPublishFailed: http.StatusServiceUnavailable,
	ErrCodeJobPayload:       http.StatusBadRequest,

	ErrCodeArtifactSyncFailed: http.StatusBadGateway,
	ErrCodeArtifactNotInStore: http.StatusNotFound,
}

// ErrorCodeMessage maps ErrorCode to default error messages.
var ErrorCodeMessage = map[ErrorCode]string{
	ErrCodeInternal:           "internal server error",
	ErrCodeBadRequest:         "bad request",
	ErrCodeUnauthorized:       "unauthorized",
	ErrCodeForbidden:          "forbidden",
	ErrCodeNotFound:           "resource not found",
	ErrCodeConflict:           "resource conflict",
	ErrCodeTooManyRequests:    "too many requests",
	ErrCodeServiceUnavailable: "service unavailable",
	ErrCodeTimeout:            "request timeout",
	ErrCodeValidation:         "validation failed",
	ErrCodeSerialization:      "serialization error",
	ErrCodeDatabaseError:      "database error",
	ErrCodeCacheError:         "cache error",
	ErrCodeExternalService:    "external service error",
	ErrCodeFeatureDisabled:    "feature disabled",
	ErrCodePayloadTooLarge:    "upload too large",

	ErrCodeIngest:          "could not read the uploaded molecule file",
	ErrCodeStage:           "could not stage molecules for descriptor generation",
	ErrCodeDescribe:        "descriptor generation failed",
	ErrCodeModelMissing:    "Trained model file not found. Please place 'acetylcholinesterase_model.pkl' in the app directory.",
	ErrCodeSchemaMissing:   "Descriptor list file not found. Please place 'descriptor_list.csv' in the app directory.",
	ErrCodeAlign:           "descriptor table does not cover the training descriptors",
	ErrCodePredict:         "model prediction failed",
	ErrCodeEmit:            "could not write prediction results",
	ErrCodeArtifactInvalid: "model artifact could not be loaded",
	ErrCodeRunNotFound:     "prediction run not found",

	ErrCodeJobNotFound:      "job not found",
	ErrCodeJobPublishFailed: "job could not be queued",
	ErrCodeJobPayload:       "invalid job payload",

	ErrCodeArtifactSyncFailed: "artifact synchronisation failed",
	ErrCodeArtifactNotInStore: "artifact not found in object store",
}

// HTTPStatusForCode returns the HTTP status code for an ErrorCode.
func HTTPStatusForCode(code ErrorCode) int {
	if status, ok := ErrorCodeHTTPStatus[code]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// DefaultMessageForCode returns the default message for an ErrorCode.
func DefaultMessageForCode(code ErrorCode) string {
	if msg, ok := ErrorCodeMessage[code]; ok {
		return msg
	}
	return "unknown error"
}

// IsClientError returns true if the ErrorCode corresponds to a 4xx HTTP status.
func IsClientError(code ErrorCode) bool {
	status := HTTPStatusForCode(code)
	return status >= 400 && status < 500
}

// IsServerError returns true if the ErrorCode corresponds to a 5xx HTTP status.
func IsServerError(code ErrorCode) bool {
	status := HTTPStatusForCode(code)
	return status >= 500 && status < 600
}

// ModuleForCode returns the module prefix of an ErrorCode.
func ModuleForCode(code ErrorCode) string {
	parts := strings.Split(string(code), "_")
	if len(parts) > 0 && parts[0] != "" {
		return parts[0]
	}
	return "UNKNOWN"
}

//Personal.AI order the ending
