package minio

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"path"
	"time"

	"github.com/minio/minio-go/v7"

	"github.com/turtacn/ache-predictor/internal/domain/prediction"
	"github.com/turtacn/ache-predictor/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/ache-predictor/internal/intelligence/bioactivity"
	"github.com/turtacn/ache-predictor/pkg/errors"
)

const exportPrefix = "runs"

// ArtifactSource downloads model artifacts from the models bucket.
type ArtifactSource struct {
	client *MinIOClient
}

var _ bioactivity.ArtifactSource = (*ArtifactSource)(nil)

func NewArtifactSource(client *MinIOClient) *ArtifactSource {
	return &ArtifactSource{client: client}
}

// FetchArtifact writes object key to dst. A missing object yields
// ErrCodeArtifactNotInStore.
func (s *ArtifactSource) FetchArtifact(ctx context.Context, key, dst string) error {
	api, err := s.client.api()
	if err != nil {
		return err
	}
	bucket := s.client.config.ModelsBucket
	info, err := api.StatObject(ctx, bucket, key, minio.StatObjectOptions{})
	if err != nil {
		if isNoSuchKey(err) {
			return errors.New(errors.ErrCodeArtifactNotInStore, errors.DefaultMessageForCode(errors.ErrCodeArtifactNotInStore)).
				WithDetail(bucket + "/" + key)
		}
		return errors.Wrap(err, errors.ErrCodeExternalService, "failed to stat artifact").WithDetail(key)
	}
	if err := api.FGetObject(ctx, bucket, key, dst, minio.GetObjectOptions{}); err != nil {
		return errors.Wrap(err, errors.ErrCodeExternalService, "failed to download artifact").WithDetail(key)
	}
	s.client.logger.Debug("Artifact fetched",
		logging.String("key", key),
		logging.Int64("size", info.Size),
		logging.String("etag", info.ETag))
	return nil
}

// ResultExporter uploads result CSVs to the exports bucket and hands back
// presigned download links.
type ResultExporter struct {
	client   *MinIOClient
	filename string
	expiry   time.Duration
}

var _ prediction.ResultExporter = (*ResultExporter)(nil)

// NewResultExporter uses filename as both the object base name and the
// download file name.
func NewResultExporter(client *MinIOClient, filename string) *ResultExporter {
	return &ResultExporter{client: client, filename: filename, expiry: client.config.PresignExpiry}
}

// ObjectKey is where a run's CSV lives in the exports bucket.
func (e *ResultExporter) ObjectKey(runID string) string {
	return path.Join(exportPrefix, runID, e.filename)
}

func (e *ResultExporter) Export(ctx context.Context, runID string, csv []byte) (string, error) {
	if runID == "" {
		return "", errors.New(errors.ErrCodeValidation, "run id required")
	}
	api, err := e.client.api()
	if err != nil {
		return "", err
	}
	bucket := e.client.config.ExportsBucket
	key := e.ObjectKey(runID)
	disposition := fmt.Sprintf("attachment; filename=%q", e.filename)

	_, err = api.PutObject(ctx, bucket, key, bytes.NewReader(csv), int64(len(csv)), minio.PutObjectOptions{
		ContentType:        "text/csv",
		ContentDisposition: disposition,
		UserMetadata:       map[string]string{"run-id": runID},
	})
	if err != nil {
		return "", errors.Wrap(err, errors.ErrCodeExternalService, "upload failed").WithDetail(key)
	}

	params := url.Values{}
	params.Set("response-content-disposition", disposition)
	u, err := api.PresignedGetObject(ctx, bucket, key, e.expiry, params)
	if err != nil {
		return "", errors.Wrap(err, errors.ErrCodeExternalService, "failed to presign download").WithDetail(key)
	}
	return u.String(), nil
}

func isNoSuchKey(err error) bool {
	code := minio.ToErrorResponse(err).Code
	return code == "NoSuchKey" || code == "NoSuchBucket"
}

//Personal.AI order the ending
