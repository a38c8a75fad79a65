package opensearch

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"

	"github.com/opensearch-project/opensearch-go/v2/opensearchapi"

	"github.com/turtacn/ache-predictor/internal/domain/prediction"
	"github.com/turtacn/ache-predictor/pkg/errors"
)

// buildQuery renders q as an OpenSearch request body. Free text matches the
// molecule ID or SMILES (exact or tokenized); the pIC50 bounds are inclusive.
func buildQuery(q prediction.SearchQuery) map[string]interface{} {
	var must, filter []interface{}

	if text := strings.TrimSpace(q.Text); text != "" {
		must = append(must, map[string]interface{}{
			"bool": map[string]interface{}{
				"should": []interface{}{
					map[string]interface{}{"term": map[string]interface{}{"molecule_id": map[string]interface{}{"value": text, "boost": 3}}},
					map[string]interface{}{"term": map[string]interface{}{"smiles": map[string]interface{}{"value": text, "boost": 2}}},
					map[string]interface{}{"multi_match": map[string]interface{}{
						"query":  text,
						"fields": []string{"molecule_id.text", "smiles.text"},
					}},
				},
				"minimum_should_match": 1,
			},
		})
	}

	if q.MinPIC50 != nil || q.MaxPIC50 != nil {
		rng := map[string]interface{}{}
		if q.MinPIC50 != nil {
			rng["gte"] = *q.MinPIC50
		}
		if q.MaxPIC50 != nil {
			rng["lte"] = *q.MaxPIC50
		}
		filter = append(filter, map[string]interface{}{"range": map[string]interface{}{"predicted_pic50": rng}})
	}

	query := map[string]interface{}{"match_all": map[string]interface{}{}}
	if len(must) > 0 || len(filter) > 0 {
		b := map[string]interface{}{}
		if len(must) > 0 {
			b["must"] = must
		}
		if len(filter) > 0 {
			b["filter"] = filter
		}
		query = map[string]interface{}{"bool": b}
	}

	return map[string]interface{}{
		"query":            query,
		"from":             q.From,
		"size":             q.Size,
		"track_total_hits": true,
		"sort": []interface{}{
			"_score",
			map[string]interface{}{"predicted_pic50": map[string]string{"order": "desc"}},
			map[string]interface{}{"scored_at": map[string]string{"order": "desc"}},
		},
	}
}

// Search runs q against the result index.
func (x *ResultIndex) Search(ctx context.Context, q prediction.SearchQuery) ([]prediction.SearchHit, int64, error) {
	body, err := json.Marshal(buildQuery(q))
	if err != nil {
		return nil, 0, errors.Wrap(err, errors.ErrCodeSerialization, "failed to encode search query")
	}

	resp, err := opensearchapi.SearchRequest{
		Index: []string{x.client.Index()},
		Body:  bytes.NewReader(body),
	}.Do(ctx, x.client.client)
	if err != nil {
		return nil, 0, errors.Wrap(err, errors.ErrCodeExternalService, "search request failed")
	}
	defer resp.Body.Close()
	if resp.StatusCode == 404 {
		// Nothing indexed yet.
		return []prediction.SearchHit{}, 0, nil
	}
	if resp.IsError() {
		return nil, 0, responseError(resp, errors.New(errors.ErrCodeExternalService, "search failed"))
	}

	var out struct {
		Hits struct {
			Total struct {
				Value int64 `json:"value"`
			} `json:"total"`
			Hits []struct {
				Score  *float64  `json:"_score"`
				Source resultDoc `json:"_source"`
			} `json:"hits"`
		} `json:"hits"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, 0, errors.Wrap(err, errors.ErrCodeSerialization, "failed to decode search response")
	}

	hits := make([]prediction.SearchHit, 0, len(out.Hits.Hits))
	for _, h := range out.Hits.Hits {
		hit := prediction.SearchHit{
			RunID:          h.Source.RunID,
			MoleculeID:     h.Source.MoleculeID,
			SMILES:         h.Source.SMILES,
			PredictedPIC50: h.Source.PredictedPIC50,
			ModelDigest:    h.Source.ModelDigest,
			ScoredAt:       h.Source.ScoredAt,
		}
		if h.Score != nil {
			hit.Score = *h.Score
		}
		hits = append(hits, hit)
	}
	return hits, out.Hits.Total.Value, nil
}

//Personal.AI order the ending
