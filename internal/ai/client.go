package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ruby4mag/firewatch-backend/internal/imaging"
)

// ---------------------------------------------------------------------------
// MODEL SERVER CLIENT (TensorFlow Serving REST API)
// ---------------------------------------------------------------------------

// ServingClient talks to a TensorFlow Serving compatible REST endpoint.
type ServingClient struct {
	BaseURL string
	HTTP    *http.Client
}

func NewServingClient(baseURL string, timeout time.Duration) *ServingClient {
	return &ServingClient{
		BaseURL: strings.TrimRight(baseURL, "/"),
		HTTP:    &http.Client{Timeout: timeout},
	}
}

type PredictRequest struct {
	Instances [][][][]float32 `json:"instances"`
}

type PredictResponse struct {
	Predictions [][]float64 `json:"predictions"`
	Error       string      `json:"error,omitempty"`
}

type ModelStatusResponse struct {
	ModelVersionStatus []struct {
		Version string `json:"version"`
		State   string `json:"state"`
	} `json:"model_version_status"`
}

// Predict sends t as a single instance and returns the first prediction row.
func (c *ServingClient) Predict(ctx context.Context, model string, t *imaging.Tensor) ([]float64, error) {
	endpoint := fmt.Sprintf("%s/v1/models/%s:predict", c.BaseURL, url.PathEscape(model))

	body, err := json.Marshal(PredictRequest{Instances: [][][][]float32{t.Nested()}})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("model server error %d: %s", resp.StatusCode, strings.TrimSpace(string(b)))
	}

	var result PredictResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decode model server response: %w", err)
	}
	if result.Error != "" {
		return nil, fmt.Errorf("model server error: %s", result.Error)
	}
	if len(result.Predictions) == 0 {
		return nil, fmt.Errorf("model server returned no predictions")
	}
	return result.Predictions[0], nil
}

// Status returns nil when at least one version of model is AVAILABLE.
func (c *ServingClient) Status(ctx context.Context, model string) error {
	endpoint := fmt.Sprintf("%s/v1/models/%s", c.BaseURL, url.PathEscape(model))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("model %s status check returned %s", model, resp.Status)
	}

	var status ModelStatusResponse
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		return fmt.Errorf("decode model status: %w", err)
	}
	for _, v := range status.ModelVersionStatus {
		if v.State == "AVAILABLE" {
			return nil
		}
	}
	return fmt.Errorf("model %s has no available version", model)
}
