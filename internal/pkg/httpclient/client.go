package httpclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

// Discovery resolves a logical service name to a reachable instance.
// Satisfied by nacos.Client.
type Discovery interface {
	DiscoverServiceInstance(serviceName string) (string, int, error)
}

// StatusError is returned when a collaborator answers with a non-2xx code.
type StatusError struct {
	Service string
	Code    int
	Body    string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("service %s returned status %d: %s", e.Service, e.Code, e.Body)
}

// Client is a traced JSON client for collaborator services. Timeouts are
// controlled entirely by the caller's context so circuit breakers can own
// the deadline.
type Client struct {
	tracer     trace.Tracer
	httpClient *http.Client
	discovery  Discovery
}

func NewClient(tracer trace.Tracer, discovery Discovery) *Client {
	return &Client{
		tracer: tracer,
		httpClient: &http.Client{
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 100,
			},
		},
		discovery: discovery,
	}
}

// GetJSON resolves service via discovery, issues a GET and decodes the JSON
// response into out (out may be nil).
func (c *Client) GetJSON(ctx context.Context, service, path string, out interface{}) error {
	return c.roundTrip(ctx, http.MethodGet, service, path, nil, out)
}

// PostJSON issues a POST with a JSON body and decodes the response into out.
func (c *Client) PostJSON(ctx context.Context, service, path string, body, out interface{}) error {
	return c.roundTrip(ctx, http.MethodPost, service, path, body, out)
}

func (c *Client) roundTrip(ctx context.Context, method, service, path string, body, out interface{}) error {
	ctx, span := c.tracer.Start(ctx, "call-"+service, trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()

	host, port, err := c.discovery.DiscoverServiceInstance(service)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "discovery failed")
		return err
	}
	url := fmt.Sprintf("http://%s:%d%s", host, port, path)

	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		span.RecordError(err)
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	span.SetAttributes(
		attribute.String("http.url", url),
		attribute.String("http.method", method),
		attribute.String("peer.service", service),
	)
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(req.Header))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		err := &StatusError{Service: service, Code: resp.StatusCode, Body: string(raw)}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			span.RecordError(err)
			return fmt.Errorf("decode %s response: %w", service, err)
		}
	}
	return nil
}
