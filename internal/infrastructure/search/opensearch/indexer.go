package opensearch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/opensearch-project/opensearch-go/v2/opensearchapi"

	"github.com/turtacn/ache-predictor/internal/domain/prediction"
	"github.com/turtacn/ache-predictor/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/ache-predictor/pkg/errors"
)

var ErrIndexCreationFailed = errors.New(errors.ErrCodeExternalService, "index creation failed")

// resultMapping indexes SMILES as a keyword plus a text subfield so both exact
// and fragment queries work.
const resultMapping = `{
  "settings": {"number_of_shards": 1, "number_of_replicas": 0},
  "mappings": {
    "properties": {
      "run_id":          {"type": "keyword"},
      "molecule_id":     {"type": "keyword", "fields": {"text": {"type": "text"}}},
      "smiles":          {"type": "keyword", "fields": {"text": {"type": "text", "analyzer": "standard"}}},
      "predicted_pic50": {"type": "double"},
      "model_digest":    {"type": "keyword"},
      "scored_at":       {"type": "date"}
    }
  }
}`

// resultDoc is the indexed form of one scored row.
type resultDoc struct {
	RunID          string    `json:"run_id"`
	MoleculeID     string    `json:"molecule_id"`
	SMILES         string    `json:"smiles"`
	PredictedPIC50 float64   `json:"predicted_pic50"`
	ModelDigest    string    `json:"model_digest,omitempty"`
	ScoredAt       time.Time `json:"scored_at"`
}

// ResultIndex writes scored rows to OpenSearch and queries them back. It
// implements prediction.ResultIndex.
type ResultIndex struct {
	client    *Client
	batchSize int
	refresh   string
	logger    logging.Logger
}

var _ prediction.ResultIndex = (*ResultIndex)(nil)

// NewResultIndex uses bulk batches of 500 rows and does not force a refresh.
func NewResultIndex(client *Client, logger logging.Logger) *ResultIndex {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &ResultIndex{client: client, batchSize: 500, refresh: "false", logger: logger.Named("result-index")}
}

// EnsureIndex creates the result index when absent.
func (x *ResultIndex) EnsureIndex(ctx context.Context) error {
	index := x.client.Index()
	exists, err := x.indexExists(ctx, index)
	if err != nil || exists {
		return err
	}
	resp, err := opensearchapi.IndicesCreateRequest{
		Index: index,
		Body:  bytes.NewReader([]byte(resultMapping)),
	}.Do(ctx, x.client.client)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeExternalService, "failed to create index request")
	}
	defer resp.Body.Close()
	// A concurrent creator wins the race; that is fine.
	if resp.StatusCode == 400 && bytes.Contains(readBody(resp), []byte("resource_already_exists_exception")) {
		return nil
	}
	if resp.IsError() {
		return responseError(resp, ErrIndexCreationFailed)
	}
	x.logger.Info("Index created", logging.String("index", index))
	return nil
}

func (x *ResultIndex) indexExists(ctx context.Context, index string) (bool, error) {
	resp, err := opensearchapi.IndicesExistsRequest{Index: []string{index}}.Do(ctx, x.client.client)
	if err != nil {
		return false, errors.Wrap(err, errors.ErrCodeExternalService, "failed to check index existence")
	}
	defer resp.Body.Close()
	switch resp.StatusCode {
	case 200:
		return true, nil
	case 404:
		return false, nil
	}
	return false, responseError(resp, errors.New(errors.ErrCodeExternalService, "check index existence failed"))
}

// IndexRun bulk-indexes every result row of a succeeded run. Document IDs are
// "<run>:<position>", so reindexing a run overwrites it.
func (x *ResultIndex) IndexRun(ctx context.Context, run *prediction.Run) error {
	if run.Status != prediction.RunSucceeded || len(run.Results) == 0 {
		return nil
	}
	index := x.client.Index()
	failed := 0
	for start := 0; start < len(run.Results); start += x.batchSize {
		end := start + x.batchSize
		if end > len(run.Results) {
			end = len(run.Results)
		}

		var buf bytes.Buffer
		enc := json.NewEncoder(&buf)
		for i := start; i < end; i++ {
			r := run.Results[i]
			meta := map[string]map[string]string{"index": {"_index": index, "_id": fmt.Sprintf("%s:%d", run.ID, i)}}
			if err := enc.Encode(meta); err != nil {
				return errors.Wrap(err, errors.ErrCodeSerialization, "failed to encode bulk action")
			}
			if err := enc.Encode(resultDoc{
				RunID:          run.ID,
				MoleculeID:     r.MoleculeID,
				SMILES:         r.SMILES,
				PredictedPIC50: r.PredictedPIC50,
				ModelDigest:    run.ModelDigest,
				ScoredAt:       run.CreatedAt,
			}); err != nil {
				return errors.Wrap(err, errors.ErrCodeSerialization, "failed to encode document")
			}
		}

		n, err := x.bulk(ctx, &buf)
		if err != nil {
			return err
		}
		failed += n
	}
	if failed > 0 {
		return errors.New(errors.ErrCodeExternalService, "bulk index partially failed").
			WithDetail(fmt.Sprintf("%d of %d rows rejected", failed, len(run.Results)))
	}
	x.logger.Debug("Run indexed", logging.String("run_id", run.ID), logging.Int("rows", len(run.Results)))
	return nil
}

// bulk sends one NDJSON batch and returns the number of rejected items.
func (x *ResultIndex) bulk(ctx context.Context, body io.Reader) (int, error) {
	resp, err := opensearchapi.BulkRequest{Body: body, Refresh: x.refresh}.Do(ctx, x.client.client)
	if err != nil {
		return 0, errors.Wrap(err, errors.ErrCodeExternalService, "bulk request failed")
	}
	defer resp.Body.Close()
	if resp.IsError() {
		return 0, responseError(resp, errors.New(errors.ErrCodeExternalService, "bulk batch failed"))
	}

	var out struct {
		Errors bool `json:"errors"`
		Items  []map[string]struct {
			ID     string `json:"_id"`
			Status int    `json:"status"`
			Error  *struct {
				Type   string `json:"type"`
				Reason string `json:"reason"`
			} `json:"error,omitempty"`
		} `json:"items"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return 0, errors.Wrap(err, errors.ErrCodeSerialization, "failed to decode bulk response")
	}
	if !out.Errors {
		return 0, nil
	}
	failed := 0
	for _, item := range out.Items {
		for _, res := range item {
			if res.Error != nil {
				failed++
				x.logger.Warn("Bulk item rejected",
					logging.String("doc_id", res.ID),
					logging.String("type", res.Error.Type),
					logging.String("reason", res.Error.Reason))
			}
		}
	}
	return failed, nil
}

func readBody(resp *opensearchapi.Response) []byte {
	b, _ := io.ReadAll(resp.Body)
	return b
}

// responseError turns an error response into an AppError based on def.
func responseError(resp *opensearchapi.Response, def *errors.AppError) error {
	var body struct {
		Error struct {
			Type   string `json:"type"`
			Reason string `json:"reason"`
		} `json:"error"`
	}
	raw := readBody(resp)
	detail := resp.Status()
	if json.Unmarshal(raw, &body) == nil && body.Error.Type != "" {
		detail = fmt.Sprintf("%s: %s", body.Error.Type, body.Error.Reason)
	}
	return errors.New(def.Code, def.Message).WithDetail(detail)
}

//Personal.AI order the ending
