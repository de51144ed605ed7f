package scorer

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestScoreReturnsLastPrediction(t *testing.T) {
	var gotReq predictRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/predict" {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		_ = json.NewDecoder(r.Body).Decode(&gotReq)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"model_name": "ensemble",
			"predictions": []map[string]any{
				{"score": 0.2, "is_anomaly": false, "confidence": 0.9},
				{"score": 0.93, "is_anomaly": true, "confidence": 0.95},
			},
		})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "ensemble", time.Second, zerolog.Nop())
	score, err := c.Score(context.Background(), [][]float64{{1, 2, 3, 4}, {5, 6, 7, 8}})
	if err != nil {
		t.Fatalf("score: %v", err)
	}
	if score != 0.93 {
		t.Fatalf("expected last prediction's score, got %v", score)
	}
	if gotReq.ModelName != "ensemble" || len(gotReq.Features) != 2 || !gotReq.UseCache {
		t.Fatalf("unexpected request %+v", gotReq)
	}
}

func TestScoreFailuresWrapErrUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "ensemble", time.Second, zerolog.Nop())
	_, err := c.Score(context.Background(), [][]float64{{1}})
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}

	if _, err := c.Score(context.Background(), nil); !errors.Is(err, ErrUnavailable) {
		t.Fatalf("empty window must be ErrUnavailable, got %v", err)
	}
}

func TestScoreEmptyPredictions(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"predictions": []any{}})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "ensemble", time.Second, zerolog.Nop())
	if _, err := c.Score(context.Background(), [][]float64{{1}}); !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable on empty predictions, got %v", err)
	}
}
