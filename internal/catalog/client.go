package catalog

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/time/rate"

	apperrors "github.com/utafrali/cartstore/pkg/errors"
	"github.com/utafrali/cartstore/pkg/httpclient"
	"github.com/utafrali/cartstore/pkg/tracing"
)

const (
	serviceName = "catalog"
	tracerName  = "github.com/utafrali/cartstore/internal/catalog"
)

// Client looks products up over the catalog's REST API.
type Client struct {
	http    httpclient.HTTPDoer
	baseURL string
	limiter *rate.Limiter
}

// Option configures a Client.
type Option func(*Client)

// WithRateLimit caps outgoing lookups at rps requests per second with the given burst.
// A non-positive rps disables limiting.
func WithRateLimit(rps float64, burst int) Option {
	return func(c *Client) {
		if rps <= 0 {
			c.limiter = nil
			return
		}
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

// NewClient creates a catalog client rooted at baseURL.
func NewClient(doer httpclient.HTTPDoer, baseURL string, opts ...Option) *Client {
	c := &Client{
		http:    doer,
		baseURL: strings.TrimRight(baseURL, "/"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// productEnvelope accepts both {"data": {...}} and a bare product object.
type productEnvelope struct {
	Data json.RawMessage `json:"data"`
}

// GetProductByID handles GET {base}/api/v1/products/{id}.
func (c *Client) GetProductByID(ctx context.Context, id string) (_ *Product, err error) {
	ctx, span := tracing.Start(ctx, tracerName, "catalog.GetProductByID", attribute.String("product.id", id))
	defer func() { tracing.End(span, err) }()

	if id == "" {
		return nil, apperrors.InvalidInput("product id is required")
	}

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("catalog rate limit: %w", err)
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/v1/products/"+url.PathEscape(id), http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("create product request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(ctx, req)
	if err != nil {
		return nil, apperrors.Wrap(err, "call catalog service")
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, httpclient.ParseResponseError(resp, serviceName)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read product response: %w", err)
	}

	raw := body
	var env productEnvelope
	if json.Unmarshal(body, &env) == nil && len(env.Data) > 0 && !bytes.Equal(env.Data, []byte("null")) {
		raw = env.Data
	}

	var p Product
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, fmt.Errorf("decode product response: %w", err)
	}
	if p.ID == "" {
		p.ID = id
	}
	return &p, nil
}
