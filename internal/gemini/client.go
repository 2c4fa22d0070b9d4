package gemini

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"google.golang.org/api/googleapi"

	"github.com/loqalabs/loqa-reader/internal/reading"
)

const DefaultEndpoint = "https://generativelanguage.googleapis.com/v1beta"

var ErrBlocked = errors.New("response blocked by provider")

// Client posts generateContent calls. The API key is supplied per call
// because it belongs to the user, not to the process.
type Client struct {
	endpoint   string
	httpClient *http.Client
	log        *slog.Logger
}

func NewClient(endpoint string, timeout time.Duration, log *slog.Logger) *Client {
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	if timeout <= 0 {
		timeout = 90 * time.Second
	}
	log = log.With(slog.String("component", "gemini-client"))
	return &Client{
		endpoint: strings.TrimRight(endpoint, "/"),
		httpClient: &http.Client{
			Timeout:   timeout,
			Transport: &loggingTransport{base: http.DefaultTransport, log: log},
		},
		log: log,
	}
}

func (c *Client) GenerateContent(ctx context.Context, apiKey, model string, req GenerateRequest) (*GenerateResponse, error) {
	ctx, span := otel.Tracer("github.com/loqalabs/loqa-reader/gemini").Start(ctx, "gemini.generateContent")
	defer span.End()
	span.SetAttributes(attribute.String("gemini.model", model))

	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal gemini request: %w", err)
	}
	url := fmt.Sprintf("%s/models/%s:generateContent", c.endpoint, model)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("new request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-goog-api-key", apiKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "transport")
		return nil, fmt.Errorf("call gemini: %w", err)
	}
	defer resp.Body.Close()

	if err := googleapi.CheckResponse(resp); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, resp.Status)
		return nil, err
	}

	var out GenerateResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode gemini response: %w", err)
	}
	if reason := out.BlockReason(); reason != "" {
		span.SetStatus(codes.Error, "blocked")
		return nil, fmt.Errorf("%w: %s", ErrBlocked, reason)
	}
	return &out, nil
}

// Category maps an error returned by GenerateContent to a user-facing
// category.
func Category(err error) reading.Category {
	if err == nil {
		return reading.CategoryUnknown
	}
	if errors.Is(err, ErrBlocked) {
		return reading.CategoryBlocked
	}
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		return reading.Classify(apiErr.Code, apiErr.Message)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return reading.CategoryUnavailable
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return reading.CategoryUnavailable
	}
	return reading.CategoryUnknown
}
