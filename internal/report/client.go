package report

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
	"google.golang.org/api/googleapi"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/ironsheep/coloring-care/internal/config"
)

// ErrNotConfigured is returned when no API key was supplied.
var ErrNotConfigured = errors.New("report generation is not configured: missing API key")

// Generator produces text from a prompt with a named model.
type Generator interface {
	Generate(ctx context.Context, model, prompt string) (string, error)
}

// Client writes clinical summaries and encouragement messages.
type Client struct {
	gen      Generator
	primary  string
	fallback string
	timeout  time.Duration
	log      *zap.Logger
}

// New creates a Client over gen. A nil gen yields a Client whose calls all
// return ErrNotConfigured.
func New(gen Generator, cfg config.ReportConfig, log *zap.Logger) *Client {
	return &Client{
		gen:      gen,
		primary:  cfg.PrimaryModel,
		fallback: cfg.FallbackModel,
		timeout:  cfg.Timeout,
		log:      log.Named("report"),
	}
}

// NewFromConfig creates a Gemini-backed Client, or an unconfigured one when
// cfg.APIKey is empty.
func NewFromConfig(ctx context.Context, cfg config.ReportConfig, log *zap.Logger) (*Client, error) {
	if cfg.APIKey == "" {
		log.Warn("No report API key configured, report generation disabled")
		return New(nil, cfg, log), nil
	}
	gen, err := NewGemini(ctx, cfg.APIKey)
	if err != nil {
		return nil, err
	}
	return New(gen, cfg, log), nil
}

// Configured reports whether calls can reach a model.
func (c *Client) Configured() bool {
	return c != nil && c.gen != nil
}

// Analyze returns a three-sentence caregiver summary of a session.
func (c *Client) Analyze(ctx context.Context, in AnalysisInput) (string, error) {
	text, err := c.generate(ctx, BuildAnalysisPrompt(in))
	if err != nil {
		return "", fmt.Errorf("generate analysis: %w", err)
	}
	return text, nil
}

// Encourage returns a short supportive message for an idle patient.
func (c *Client) Encourage(ctx context.Context) (string, error) {
	text, err := c.generate(ctx, encouragementPrompt)
	if err != nil {
		return "", fmt.Errorf("generate encouragement: %w", err)
	}
	return text, nil
}

// Close releases the generator if it holds resources.
func (c *Client) Close() error {
	if closer, ok := c.gen.(interface{ Close() error }); ok {
		return closer.Close()
	}
	return nil
}

// generate tries the primary model, then the fallback model once if the
// primary was rate limited or unavailable.
func (c *Client) generate(ctx context.Context, prompt string) (string, error) {
	if !c.Configured() {
		return "", ErrNotConfigured
	}
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	text, err := c.gen.Generate(ctx, c.primary, prompt)
	if err == nil {
		return text, nil
	}
	if c.fallback == "" || c.fallback == c.primary || !shouldFallback(err) {
		return "", err
	}

	c.log.Info("Primary model unavailable, trying fallback",
		zap.String("primary", c.primary),
		zap.String("fallback", c.fallback),
		zap.Error(err),
	)
	return c.gen.Generate(ctx, c.fallback, prompt)
}

// shouldFallback matches rate-limit and model-not-found failures across the
// gRPC and REST transports.
func shouldFallback(err error) bool {
	switch status.Code(err) {
	case codes.ResourceExhausted, codes.NotFound:
		return true
	}

	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		return apiErr.Code == http.StatusTooManyRequests || apiErr.Code == http.StatusNotFound
	}

	msg := err.Error()
	return strings.Contains(msg, "429") || strings.Contains(msg, "404")
}
