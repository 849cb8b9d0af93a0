package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pimworks/golden-cli/internal/model"
	"github.com/pimworks/golden-cli/internal/session"
)

func TestBatchUpdateConfidencePartialFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		matchID := strings.TrimPrefix(r.URL.Path, "/matches/")
		if matchID == "m7" {
			http.Error(w, `{"error":"conflict"}`, http.StatusConflict)
			return
		}
		json.NewEncoder(w).Encode(model.SimilarityMatch{ID: matchID, MatchConfidence: model.ConfidenceConfirmed})
	}))
	defer srv.Close()

	client := newTestClient(srv, session.StaticTokenSource("tok"))

	ids := make([]string, 10)
	for i := range ids {
		ids[i] = fmt.Sprintf("m%d", i)
	}

	results := client.BatchUpdateConfidence(context.Background(), ids, model.ConfidenceConfirmed, BatchOptions{Concurrency: 4})
	require.Len(t, results, 10)
	assert.Equal(t, 9, BatchSucceeded(results))

	// Input order is preserved and the failure is attributed to its item.
	for i, r := range results {
		assert.Equal(t, ids[i], r.MatchID)
		if r.MatchID == "m7" {
			assert.Error(t, r.Err)
			assert.Equal(t, http.StatusConflict, StatusCode(r.Err))
		} else {
			assert.NoError(t, r.Err)
			assert.Equal(t, r.MatchID, r.Match.ID)
		}
	}
}

func TestBatchUpdateConfidenceEmpty(t *testing.T) {
	client := NewClient("http://unused", session.StaticTokenSource("tok"))
	results := client.BatchUpdateConfidence(context.Background(), nil, model.ConfidenceRejected, BatchOptions{})
	assert.Empty(t, results)
}

func TestBatchUpdateConfidenceRateLimited(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(model.SimilarityMatch{ID: "m", MatchConfidence: model.ConfidenceRejected})
	}))
	defer srv.Close()

	client := newTestClient(srv, session.StaticTokenSource("tok"))
	results := client.BatchUpdateConfidence(context.Background(), []string{"a", "b", "c"}, model.ConfidenceRejected, BatchOptions{
		Concurrency:   2,
		RatePerSecond: 1000,
	})
	assert.Equal(t, 3, BatchSucceeded(results))
}
