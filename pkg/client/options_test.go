package client

import (
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOptions(t *testing.T) {
	custom := &http.Client{Timeout: time.Minute}
	logger := &testLogger{}

	c, err := NewClient("http://localhost:8080",
		WithHTTPClient(custom),
		WithToken("tok"),
		WithLogger(logger),
		WithRetryMax(5),
		WithRetryWait(time.Second, 10*time.Second),
		WithUserAgent("achectl/1.0"),
	)
	require.NoError(t, err)

	assert.Same(t, custom, c.httpClient)
	assert.Equal(t, "tok", c.token)
	assert.Same(t, logger, c.logger)
	assert.Equal(t, 5, c.retryMax)
	assert.Equal(t, time.Second, c.retryWaitMin)
	assert.Equal(t, 10*time.Second, c.retryWaitMax)
	assert.Equal(t, "achectl/1.0", c.userAgent)
}

func TestWithTimeout_CopiesClient(t *testing.T) {
	custom := &http.Client{Timeout: time.Minute}
	c, err := NewClient("http://localhost:8080", WithHTTPClient(custom), WithTimeout(5*time.Second))
	require.NoError(t, err)

	assert.Equal(t, 5*time.Second, c.httpClient.Timeout)
	assert.Equal(t, time.Minute, custom.Timeout)
}

func TestOptions_IgnoreInvalid(t *testing.T) {
	c, err := NewClient("http://localhost:8080",
		WithRetryMax(-1),
		WithRetryWait(2*time.Second, time.Second),
		WithUserAgent(""),
		WithHTTPClient(nil),
		WithLogger(nil),
	)
	require.NoError(t, err)

	assert.Equal(t, 3, c.retryMax)
	assert.Equal(t, 2*time.Second, c.retryWaitMin)
	assert.Equal(t, 5*time.Second, c.retryWaitMax)
	assert.Equal(t, "ache-go-sdk/"+Version, c.userAgent)
	assert.NotNil(t, c.httpClient)
	assert.NotNil(t, c.logger)
}

//Personal.AI order the ending
