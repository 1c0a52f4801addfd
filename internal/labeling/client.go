// Package labeling talks to the hosted annotation platform over GraphQL.
package labeling

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"github.com/TobiSchelling/activelabel/internal/breaker"
	"github.com/TobiSchelling/activelabel/internal/config"
	"github.com/TobiSchelling/activelabel/internal/metrics"
)

// ErrNotFound is returned by lookups that match nothing.
var ErrNotFound = errors.New("not found on labeling platform")

// GraphQLError carries the errors array of a GraphQL response.
type GraphQLError struct {
	Operation string
	Messages  []string
}

func (e *GraphQLError) Error() string {
	return fmt.Sprintf("%s: graphql errors: %s", e.Operation, strings.Join(e.Messages, "; "))
}

// Client is a GraphQL client for a Labelbox-style annotation platform.
type Client struct {
	endpoint  string
	apiKey    string
	chunkSize int
	http      *http.Client
	cb        *gobreaker.CircuitBreaker
	logger    *zap.Logger
}

// NewClient creates a platform client. The API key is read from the
// environment variable named in cfg.
func NewClient(cfg config.Labeling, logger *zap.Logger) *Client {
	timeout := cfg.Timeout()
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	chunk := cfg.UploadChunkSize
	if chunk <= 0 {
		chunk = 500
	}

	settings := breaker.Settings("labeling", cfg.Breaker, logger)
	// GraphQL errors mean the platform answered; only transport and HTTP
	// failures count against the breaker.
	settings.IsSuccessful = func(err error) bool {
		var gqlErr *GraphQLError
		return err == nil || errors.As(err, &gqlErr)
	}

	return &Client{
		endpoint:  cfg.Endpoint,
		apiKey:    cfg.APIKey(),
		chunkSize: chunk,
		http:      &http.Client{Timeout: timeout},
		cb:        gobreaker.NewCircuitBreaker(settings),
		logger:    logger,
	}
}

// IsConfigured returns whether an API key is available.
func (c *Client) IsConfigured() bool {
	return c.apiKey != ""
}

type gqlRequest struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables,omitempty"`
}

type gqlResponse struct {
	Data   json.RawMessage `json:"data"`
	Errors []struct {
		Message string `json:"message"`
	} `json:"errors"`
}

// do runs one GraphQL operation and decodes its data into out.
func (c *Client) do(ctx context.Context, op, query string, vars map[string]any, out any) error {
	_, err := c.cb.Execute(func() (interface{}, error) {
		return nil, c.post(ctx, op, query, vars, out)
	})

	status := "success"
	if err != nil {
		status = "error"
	}
	metrics.PlatformRequestsTotal.WithLabelValues(op, status).Inc()
	return err
}

func (c *Client) post(ctx context.Context, op, query string, vars map[string]any, out any) error {
	body, err := json.Marshal(gqlRequest{Query: query, Variables: vars})
	if err != nil {
		return fmt.Errorf("%s: marshaling request: %w", op, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("%s: creating request: %w", op, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("%s: platform returned %d: %s", op, resp.StatusCode, strings.TrimSpace(string(respBody)))
	}

	var gr gqlResponse
	if err := json.NewDecoder(resp.Body).Decode(&gr); err != nil {
		return fmt.Errorf("%s: decoding response: %w", op, err)
	}
	if len(gr.Errors) > 0 {
		gqlErr := &GraphQLError{Operation: op}
		for _, e := range gr.Errors {
			gqlErr.Messages = append(gqlErr.Messages, e.Message)
		}
		return gqlErr
	}

	c.logger.Debug("GraphQL call completed",
		zap.String("operation", op),
		zap.Duration("duration", time.Since(start)))

	if out == nil || len(gr.Data) == 0 {
		return nil
	}
	if err := json.Unmarshal(gr.Data, out); err != nil {
		return fmt.Errorf("%s: decoding data: %w", op, err)
	}
	return nil
}
