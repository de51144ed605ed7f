package scorer

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// ErrUnavailable marks scorer failures the pipeline must absorb: the ML
// detector skips the event, heuristic detectors still run.
var ErrUnavailable = errors.New("scorer unavailable")

// Scorer evaluates a feature window and returns a raw anomaly score.
// The model behind it is an opaque external collaborator.
type Scorer interface {
	Score(ctx context.Context, features [][]float64) (float64, error)
}

// Client talks to the inference server's /v1/predict endpoint.
type Client struct {
	baseURL   string
	modelName string
	client    *http.Client
	logger    zerolog.Logger
}

func NewClient(baseURL, modelName string, timeout time.Duration, logger zerolog.Logger) *Client {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	if modelName == "" {
		modelName = "ensemble"
	}
	return &Client{
		baseURL:   strings.TrimRight(baseURL, "/"),
		modelName: modelName,
		client:    &http.Client{Timeout: timeout},
		logger:    logger.With().Str("component", "scorer").Logger(),
	}
}

type predictRequest struct {
	ModelName string      `json:"model_name"`
	Features  [][]float64 `json:"features"`
	UseCache  bool        `json:"use_cache"`
}

type predictResponse struct {
	ModelName   string `json:"model_name"`
	Predictions []struct {
		Score      float64 `json:"score"`
		IsAnomaly  bool    `json:"is_anomaly"`
		Confidence float64 `json:"confidence"`
	} `json:"predictions"`
}

// Score submits the feature window and returns the score of the most
// recent row. Every failure mode collapses into ErrUnavailable.
func (c *Client) Score(ctx context.Context, features [][]float64) (float64, error) {
	if len(features) == 0 {
		return 0, fmt.Errorf("%w: empty feature window", ErrUnavailable)
	}

	body, err := json.Marshal(predictRequest{
		ModelName: c.modelName,
		Features:  features,
		UseCache:  true,
	})
	if err != nil {
		return 0, fmt.Errorf("%w: marshal request: %v", ErrUnavailable, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/predict", bytes.NewReader(body))
	if err != nil {
		return 0, fmt.Errorf("%w: build request: %v", ErrUnavailable, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return 0, fmt.Errorf("%w: status %d", ErrUnavailable, resp.StatusCode)
	}

	var decoded predictResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return 0, fmt.Errorf("%w: decode response: %v", ErrUnavailable, err)
	}
	if len(decoded.Predictions) == 0 {
		return 0, fmt.Errorf("%w: empty predictions", ErrUnavailable)
	}

	score := decoded.Predictions[len(decoded.Predictions)-1].Score
	c.logger.Debug().Float64("score", score).Int("window", len(features)).Msg("scored feature window")
	return score, nil
}

var _ Scorer = (*Client)(nil)
