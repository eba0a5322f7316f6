// Package narrative asks a generative model to explain a score report in
// prose. Failures are typed and never replaced with made-up text.
package narrative

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/haasonsaas/stethoscope/pkg/scoring"
	"golang.org/x/time/rate"
)

// Generator produces narrative text for a score report.
type Generator interface {
	Generate(ctx context.Context, report *scoring.Report) (string, error)
	Configured() bool
}

type Config struct {
	Endpoint          string
	Model             string
	APIKey            string
	Timeout           time.Duration
	RequestsPerMinute int
	RetryInitialMs    int
	RetryMaxMs        int
	RetryMaxAttempts  int
}

const (
	DefaultEndpoint = "https://generativelanguage.googleapis.com"
	DefaultModel    = "gemini-1.5-flash"

	maxResponseBytes = 4 << 20
)

// New returns a Gemini client, or a Disabled generator when no API key is
// configured.
func New(cfg Config) Generator {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return Disabled{}
	}
	return NewGemini(cfg, nil)
}

// Disabled is used when the server has no model credentials.
type Disabled struct{}

func (Disabled) Generate(context.Context, *scoring.Report) (string, error) {
	return "", ErrNotConfigured
}

func (Disabled) Configured() bool { return false }

// Gemini calls the generateContent REST method.
type Gemini struct {
	cfg     Config
	client  *http.Client
	limiter *rate.Limiter
	retrier *retrier
}

func NewGemini(cfg Config, client *http.Client) *Gemini {
	if cfg.Endpoint == "" {
		cfg.Endpoint = DefaultEndpoint
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if client == nil {
		client = &http.Client{}
	}

	limit := rate.Inf
	burst := 1
	if cfg.RequestsPerMinute > 0 {
		limit = rate.Limit(float64(cfg.RequestsPerMinute) / 60)
		burst = cfg.RequestsPerMinute
	}

	return &Gemini{
		cfg:     cfg,
		client:  client,
		limiter: rate.NewLimiter(limit, burst),
		retrier: newRetrier(cfg.RetryInitialMs, cfg.RetryMaxMs, cfg.RetryMaxAttempts),
	}
}

func (g *Gemini) Configured() bool { return true }

type generateRequest struct {
	Contents []content `json:"contents"`
}

type content struct {
	Role  string `json:"role,omitempty"`
	Parts []part `json:"parts"`
}

type part struct {
	Text string `json:"text"`
}

type generateResponse struct {
	Candidates []struct {
		Content      content `json:"content"`
		FinishReason string  `json:"finishReason"`
	} `json:"candidates"`
	PromptFeedback struct {
		BlockReason string `json:"blockReason"`
	} `json:"promptFeedback"`
}

// Generate sends one prompt, retrying throttled and transient failures
// within the configured timeout.
func (g *Gemini) Generate(ctx context.Context, report *scoring.Report) (string, error) {
	prompt, err := BuildPrompt(report)
	if err != nil {
		return "", &Error{Kind: KindMalformed, Cause: err}
	}
	body, err := json.Marshal(generateRequest{
		Contents: []content{{Role: "user", Parts: []part{{Text: prompt}}}},
	})
	if err != nil {
		return "", &Error{Kind: KindMalformed, Cause: err}
	}

	ctx, cancel := context.WithTimeout(ctx, g.cfg.Timeout)
	defer cancel()

	if err := g.limiter.Wait(ctx); err != nil {
		if ctx.Err() != nil {
			return "", &Error{Kind: KindTimeout, Cause: err}
		}
		return "", &Error{Kind: KindQuota, Cause: err}
	}

	var text string
	err = g.retrier.do(ctx, func() error {
		var callErr error
		text, callErr = g.call(ctx, body)
		return callErr
	}, isRetryableHTTP)
	if err != nil {
		return "", classify(ctx, err)
	}
	return text, nil
}

func (g *Gemini) call(ctx context.Context, body []byte) (string, error) {
	endpoint := fmt.Sprintf("%s/v1beta/models/%s:generateContent",
		strings.TrimRight(g.cfg.Endpoint, "/"), url.PathEscape(g.cfg.Model))

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-goog-api-key", g.cfg.APIKey)

	resp, err := g.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return "", err
	}
	if resp.StatusCode != http.StatusOK {
		return "", statusError{status: resp.StatusCode, body: strings.TrimSpace(string(data))}
	}

	var parsed generateResponse
	if err := json.Unmarshal(data, &parsed); err != nil {
		return "", &Error{Kind: KindMalformed, Cause: err}
	}
	if parsed.PromptFeedback.BlockReason != "" {
		return "", &Error{Kind: KindMalformed, Cause: fmt.Errorf("prompt blocked: %s", parsed.PromptFeedback.BlockReason)}
	}
	if len(parsed.Candidates) == 0 {
		return "", &Error{Kind: KindMalformed, Cause: errors.New("response has no candidates")}
	}

	var text strings.Builder
	for _, p := range parsed.Candidates[0].Content.Parts {
		text.WriteString(p.Text)
	}
	if strings.TrimSpace(text.String()) == "" {
		return "", &Error{Kind: KindMalformed, Cause: errors.New("response has no text")}
	}
	return text.String(), nil
}

func classify(ctx context.Context, err error) error {
	var nerr *Error
	if errors.As(err, &nerr) {
		return nerr
	}
	if ctx.Err() != nil || errors.Is(err, context.DeadlineExceeded) {
		return &Error{Kind: KindTimeout, Cause: err}
	}
	var statusErr statusError
	if errors.As(err, &statusErr) && statusErr.status == http.StatusTooManyRequests {
		return &Error{Kind: KindQuota, Cause: err}
	}
	return &Error{Kind: KindUnavailable, Cause: err}
}
