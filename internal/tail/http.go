package tail

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

	"github.com/neurobot/backend/internal/features"
)

// HTTPClient calls the ingest API of a NeuroBot server.
type HTTPClient struct {
	baseURL string
	client  *http.Client
}

func NewHTTPClient(baseURL string) *HTTPClient {
	return &HTTPClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: 30 * time.Second},
	}
}

type UploadResult struct {
	ID       int64            `json:"id"`
	Mood     string           `json:"mood"`
	Features features.Summary `json:"features"`
	S3       *string          `json:"s3"`
}

type Record struct {
	ID         int64            `json:"id"`
	UploadedAt time.Time        `json:"uploaded_at"`
	RawDataURL *string          `json:"raw_data_s3"`
	Features   features.Summary `json:"features"`
	Mood       string           `json:"mood_inference"`
}

// Upload posts one EEG sample.
func (c *HTTPClient) Upload(ctx context.Context, samples []float64) (*UploadResult, error) {
	var out UploadResult
	if err := c.do(ctx, http.MethodPost, "/api/upload_eeg/", map[string][]float64{"eeg": samples}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *HTTPClient) GetRecord(ctx context.Context, id int64) (*Record, error) {
	var out Record
	if err := c.do(ctx, http.MethodGet, fmt.Sprintf("/api/records/%d", id), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *HTTPClient) do(ctx context.Context, method, path string, body, out any) error {
	var r io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		r = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, r)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("%s %s: %d %s", method, path, resp.StatusCode, strings.TrimSpace(string(respBody)))
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// HTTPBase converts ws://host:port/ws/ to http://host:port.
func HTTPBase(wsURL string) string {
	u, err := url.Parse(wsURL)
	if err != nil || u.Host == "" {
		return "http://127.0.0.1:8000"
	}
	scheme := "http"
	if u.Scheme == "wss" {
		scheme = "https"
	}
	return fmt.Sprintf("%s://%s", scheme, u.Host)
}
