package opensearch

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/ache-predictor/internal/domain/prediction"
	apperrors "github.com/turtacn/ache-predictor/pkg/errors"
)

func ptr(v float64) *float64 { return &v }

func TestBuildQuery_MatchAll(t *testing.T) {
	body := buildQuery(prediction.SearchQuery{Size: 20})
	assert.Contains(t, body["query"], "match_all")
	assert.Equal(t, 20, body["size"])
}

func TestBuildQuery_TextAndRange(t *testing.T) {
	body := buildQuery(prediction.SearchQuery{Text: " CCO ", MinPIC50: ptr(5), MaxPIC50: ptr(7), From: 10, Size: 5})

	raw, err := json.Marshal(body)
	require.NoError(t, err)
	var decoded struct {
		Query struct {
			Bool struct {
				Must   []json.RawMessage `json:"must"`
				Filter []struct {
					Range map[string]map[string]float64 `json:"range"`
				} `json:"filter"`
			} `json:"bool"`
		} `json:"query"`
		From int `json:"from"`
	}
	require.NoError(t, json.Unmarshal(raw, &decoded))
	assert.Len(t, decoded.Query.Bool.Must, 1)
	assert.Contains(t, string(decoded.Query.Bool.Must[0]), `"CCO"`)
	require.Len(t, decoded.Query.Bool.Filter, 1)
	assert.Equal(t, map[string]float64{"gte": 5, "lte": 7}, decoded.Query.Bool.Filter[0].Range["predicted_pic50"])
	assert.Equal(t, 10, decoded.From)
}

func TestSearch_ParsesHits(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/ache-predictions/_search", r.URL.Path)
		_, _ = w.Write([]byte(`{"hits":{"total":{"value":42},"hits":[
			{"_score":2.5,"_source":{"run_id":"r1","molecule_id":"mol1","smiles":"CCO","predicted_pic50":6.1,"model_digest":"d","scored_at":"2026-03-01T10:00:00Z"}}]}}`))
	})

	hits, total, err := NewResultIndex(c, nil).Search(context.Background(), prediction.SearchQuery{Text: "mol1", Size: 10})
	require.NoError(t, err)
	assert.Equal(t, int64(42), total)
	require.Len(t, hits, 1)
	assert.Equal(t, "r1", hits[0].RunID)
	assert.Equal(t, 6.1, hits[0].PredictedPIC50)
	assert.Equal(t, 2.5, hits[0].Score)
	assert.Equal(t, 2026, hits[0].ScoredAt.Year())
}

func TestSearch_MissingIndexIsEmpty(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error":{"type":"index_not_found_exception","reason":"no such index"}}`))
	})
	hits, total, err := NewResultIndex(c, nil).Search(context.Background(), prediction.SearchQuery{Size: 10})
	require.NoError(t, err)
	assert.Empty(t, hits)
	assert.Zero(t, total)
}

func TestSearch_ErrorResponse(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":{"type":"parsing_exception","reason":"bad query"}}`))
	})
	_, _, err := NewResultIndex(c, nil).Search(context.Background(), prediction.SearchQuery{Size: 10})
	require.Error(t, err)
	assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeExternalService))
	assert.Contains(t, err.Error(), "parsing_exception: bad query")
}

//Personal.AI order the ending
