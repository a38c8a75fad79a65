package handlers

import (
	"bytes"
	"io"
	"net/http"
	"path/filepath"

	"github.com/gin-gonic/gin"

	"github.com/turtacn/ache-predictor/pkg/errors"
)

// UploadField is the multipart field carrying the molecule file.
const UploadField = "file"

// DefaultMaxUploadBytes applies when no limit is configured.
const DefaultMaxUploadBytes int64 = 10 << 20

// readUpload reads the multipart file field, bounded by maxBytes.
func readUpload(c *gin.Context, maxBytes int64) (string, []byte, error) {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxUploadBytes
	}
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes+(1<<20))

	fh, err := c.FormFile(UploadField)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return "", nil, errors.New(errors.ErrCodePayloadTooLarge, "upload too large")
		}
		return "", nil, errors.New(errors.ErrCodeBadRequest, "no file uploaded").WithDetail("expected multipart field \"" + UploadField + "\"")
	}
	if fh.Size > maxBytes {
		return "", nil, errors.New(errors.ErrCodePayloadTooLarge, "upload too large")
	}
	f, err := fh.Open()
	if err != nil {
		return "", nil, errors.Wrap(err, errors.ErrCodeBadRequest, "failed to read upload")
	}
	defer f.Close()

	var buf bytes.Buffer
	if _, err := io.Copy(&buf, io.LimitReader(f, maxBytes+1)); err != nil {
		return "", nil, errors.Wrap(err, errors.ErrCodeBadRequest, "failed to read upload")
	}
	if int64(buf.Len()) > maxBytes {
		return "", nil, errors.New(errors.ErrCodePayloadTooLarge, "upload too large")
	}
	return filepath.Base(fh.Filename), buf.Bytes(), nil
}

//Personal.AI order the ending
