package orchestrator

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

	"github.com/rs/zerolog"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	challengePath   = "/api/challenge"
	maxErrorBodyLen = 512
	providerHTTP    = "http"
)

// HTTPConfig configures the challenge-manager client.
type HTTPConfig struct {
	BaseURL   string
	Namespace string
	Timeout   time.Duration
	Logger    zerolog.Logger
	// Transport overrides the instrumented default transport.
	Transport http.RoundTripper
}

// HTTPClient calls the challenge-manager service, which installs one release per instance.
type HTTPClient struct {
	baseURL   *url.URL
	namespace string
	client    *http.Client
	tracer    trace.Tracer
	logger    zerolog.Logger
}

// NewHTTPClient builds a challenge-manager client.
func NewHTTPClient(cfg HTTPConfig) (*HTTPClient, error) {
	base, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse orchestrator url: %w", err)
	}
	if base.Scheme == "" || base.Host == "" {
		return nil, errors.New("orchestrator url must be absolute")
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}

	transport := cfg.Transport
	if transport == nil {
		transport = http.DefaultTransport
	}

	return &HTTPClient{
		baseURL:   base,
		namespace: cfg.Namespace,
		client: &http.Client{
			Timeout:   timeout,
			Transport: otelhttp.NewTransport(transport),
		},
		tracer: otel.Tracer("github.com/noah-isme/ctf-go-api/pkg/orchestrator"),
		logger: cfg.Logger.With().Str("component", "orchestrator_http").Logger(),
	}, nil
}

// Provision asks the orchestrator to deploy the instance.
func (c *HTTPClient) Provision(ctx context.Context, instanceID string, values Values) error {
	body, err := json.Marshal(values)
	if err != nil {
		return fmt.Errorf("encode deploy values: %w", err)
	}

	return c.do(ctx, http.MethodPost, instanceID, body, "provision")
}

// Teardown removes the instance. An unknown instance counts as already removed.
func (c *HTTPClient) Teardown(ctx context.Context, instanceID string) error {
	return c.do(ctx, http.MethodDelete, instanceID, nil, "teardown")
}

func (c *HTTPClient) do(parent context.Context, method, instanceID string, body []byte, operation string) error {
	ctx, span := c.tracer.Start(parent, "orchestrator.http."+operation, trace.WithAttributes(
		attribute.String("ctf.instance_id", instanceID),
	))
	defer span.End()

	start := time.Now()
	err := c.send(ctx, method, instanceID, body, operation)
	requestDuration.WithLabelValues(providerHTTP, operation).Observe(time.Since(start).Seconds())

	if err != nil {
		requestFailures.WithLabelValues(providerHTTP, operation).Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		c.logger.Warn().Err(err).Str("instance_id", instanceID).Str("operation", operation).Msg("orchestrator call failed")
		return err
	}

	return nil
}

func (c *HTTPClient) send(ctx context.Context, method, instanceID string, body []byte, operation string) error {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.endpoint(instanceID), reader)
	if err != nil {
		return fmt.Errorf("build %s request: %w", operation, err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("orchestrator %s: %w", operation, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}

	if method == http.MethodDelete && resp.StatusCode == http.StatusNotFound {
		return nil
	}

	payload, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyLen))
	return &StatusError{
		Operation:  operation,
		StatusCode: resp.StatusCode,
		Body:       strings.TrimSpace(string(payload)),
	}
}

func (c *HTTPClient) endpoint(instanceID string) string {
	query := url.Values{}
	query.Set("name", instanceID)
	if c.namespace != "" {
		query.Set("namespace", c.namespace)
	}

	endpoint := *c.baseURL
	endpoint.Path = strings.TrimRight(endpoint.Path, "/") + challengePath
	endpoint.RawQuery = query.Encode()
	return endpoint.String()
}
