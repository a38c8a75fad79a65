package errors

import (
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
)

func allKnownCodes() []ErrorCode {
	codes := make([]ErrorCode, 0, len(ErrorCodeHTTPStatus))
	for code := range ErrorCodeHTTPStatus {
		codes = append(codes, code)
	}
	return codes
}

func TestErrorCode_String(t *testing.T) {
	assert.Equal(t, "COMMON_001", ErrCodeInternal.String())
	assert.Equal(t, "PIPE_003", ErrCodeDescribe.String())
}

func TestHTTPStatusForCode(t *testing.T) {
	tests := []struct {
		code     ErrorCode
		expected int
	}{
		{ErrCodeInternal, 500},
		{ErrCodeBadRequest, 400},
		{ErrCodeNotFound, 404},
		{ErrCodeIngest, 400},
		{ErrCodeDescribe, 502},
		{ErrCodeModelMissing, 503},
		{ErrCodeSchemaMissing, 503},
		{ErrCodeAlign, 422},
		{ErrCodePredict, 502},
		{ErrCodeJobNotFound, 404},
		{ErrorCode("UNKNOWN"), 500},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.expected, HTTPStatusForCode(tt.code), string(tt.code))
	}
}

func TestDefaultMessageForCode(t *testing.T) {
	assert.Equal(t, "internal server error", DefaultMessageForCode(ErrCodeInternal))
	assert.Equal(t, "unknown error", DefaultMessageForCode(ErrorCode("UNKNOWN")))
	assert.Contains(t, DefaultMessageForCode(ErrCodeModelMissing), "acetylcholinesterase_model.pkl")
	assert.Contains(t, DefaultMessageForCode(ErrCodeSchemaMissing), "descriptor_list.csv")
}

func TestIsClientError(t *testing.T) {
	assert.True(t, IsClientError(ErrCodeBadRequest))
	assert.True(t, IsClientError(ErrCodeIngest))
	assert.False(t, IsClientError(ErrCodeInternal))
}

func TestIsServerError(t *testing.T) {
	assert.True(t, IsServerError(ErrCodeInternal))
	assert.True(t, IsServerError(ErrCodeDescribe))
	assert.False(t, IsServerError(ErrCodeBadRequest))
}

func TestModuleForCode(t *testing.T) {
	assert.Equal(t, "COMMON", ModuleForCode(ErrCodeInternal))
	assert.Equal(t, "PIPE", ModuleForCode(ErrCodeAlign))
	assert.Equal(t, "JOB", ModuleForCode(ErrCodeJobNotFound))
	assert.Equal(t, "ART", ModuleForCode(ErrCodeArtifactSyncFailed))
	assert.Equal(t, "UNKNOWN", ModuleForCode(ErrorCode("")))
}

func TestErrorCodeFormat_Convention(t *testing.T) {
	re := regexp.MustCompile(`^[A-Z]+_\d{3}$`)
	for _, code := range allKnownCodes() {
		assert.Regexp(t, re, string(code))
	}
}

func TestErrorCodeMappings_Completeness(t *testing.T) {
	for _, code := range allKnownCodes() {
		_, hasMessage := ErrorCodeMessage[code]
		assert.True(t, hasMessage, "missing message for %s", code)
	}
	assert.Len(t, ErrorCodeMessage, len(ErrorCodeHTTPStatus))
}

//Personal.AI order the ending
