package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/haasonsaas/stethoscope/pkg/scoring"
)

type analyzeResult struct {
	Status         string          `json:"status"`
	ID             string          `json:"id"`
	Report         *scoring.Report `json:"report"`
	Narrative      string          `json:"narrative"`
	NarrativeError string          `json:"narrative_error"`
}

type reportSummary struct {
	ID            string    `json:"id"`
	Hostname      string    `json:"hostname"`
	Score         int       `json:"score"`
	CriticalCount int       `json:"critical_count"`
	WarningCount  int       `json:"warning_count"`
	InfoCount     int       `json:"info_count"`
	CreatedAt     time.Time `json:"created_at"`
}

type reportDetail struct {
	ID             string          `json:"id"`
	Report         *scoring.Report `json:"report"`
	Narrative      string          `json:"narrative"`
	NarrativeError string          `json:"narrative_error"`
	CreatedAt      time.Time       `json:"created_at"`
}

// apiError is the server's error body.
type apiError struct {
	Status    int    `json:"-"`
	Message   string `json:"error"`
	Code      string `json:"code"`
	RequestID string `json:"request_id"`
}

func (e *apiError) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Code, e.Message)
	if e.RequestID != "" {
		msg += fmt.Sprintf(" (request %s)", e.RequestID)
	}
	return msg
}

type client struct {
	baseURL string
	apiKey  string
	http    *http.Client
}

func newClient(opts *options) *client {
	return &client{
		baseURL: strings.TrimRight(opts.serverURL, "/"),
		apiKey:  opts.apiKey,
		// Narratives can take a while to generate.
		http: &http.Client{Timeout: 90 * time.Second},
	}
}

func (c *client) analyze(ctx context.Context, line string) (*analyzeResult, []byte, error) {
	body, err := json.Marshal(map[string]string{"data": line})
	if err != nil {
		return nil, nil, err
	}
	raw, err := c.do(ctx, http.MethodPost, "/v1/analyze", body)
	if err != nil {
		return nil, nil, err
	}
	var result analyzeResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, nil, fmt.Errorf("decode analysis: %w", err)
	}
	return &result, raw, nil
}

func (c *client) listReports(ctx context.Context, limit int) ([]reportSummary, error) {
	path := "/v1/reports"
	if limit > 0 {
		path += "?limit=" + strconv.Itoa(limit)
	}
	raw, err := c.do(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}
	var resp struct {
		Reports []reportSummary `json:"reports"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, fmt.Errorf("decode report list: %w", err)
	}
	return resp.Reports, nil
}

func (c *client) getReport(ctx context.Context, id string) (*reportDetail, []byte, error) {
	raw, err := c.do(ctx, http.MethodGet, "/v1/reports/"+url.PathEscape(id), nil)
	if err != nil {
		return nil, nil, err
	}
	var detail reportDetail
	if err := json.Unmarshal(raw, &detail); err != nil {
		return nil, nil, fmt.Errorf("decode report: %w", err)
	}
	return &detail, raw, nil
}

func (c *client) do(ctx context.Context, method, path string, body []byte) ([]byte, error) {
	if c.apiKey == "" {
		return nil, fmt.Errorf("no API key; set --api-key or STETHOSCOPE_API_KEY")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to server: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode >= 300 {
		apiErr := &apiError{Status: resp.StatusCode}
		if err := json.Unmarshal(raw, apiErr); err != nil || apiErr.Code == "" {
			return nil, fmt.Errorf("server returned %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
		}
		return nil, apiErr
	}
	return raw, nil
}
