// Package wiki implements the read-only client for the MediaWiki action API.
package wiki

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/gocolly/colly/v2"
	"go.uber.org/zap"

	"github.com/JakeFAU/afd-harvester/internal/metrics"
)

// DefaultEndpoint is the English Wikipedia action API.
const DefaultEndpoint = "https://en.wikipedia.org/w/api.php"

// Config is the immutable identity of a client.
type Config struct {
	Endpoint     string
	UserAgent    string
	Redirects    int
	Timeout      time.Duration
	MaxBodyBytes int
}

// Limiter paces outbound requests.
type Limiter interface {
	Wait(ctx context.Context, rawURL string) error
}

// CallOption adjusts a single call.
type CallOption func(*callOptions)

type callOptions struct {
	redirects int
}

// WithRedirects sets how many redirect levels the API follows.
func WithRedirects(n int) CallOption {
	return func(o *callOptions) {
		o.redirects = n
	}
}

// WithoutRedirects asks the API not to follow redirects.
func WithoutRedirects() CallOption {
	return WithRedirects(0)
}

// Client issues parse and query calls. No retries are performed here.
type Client struct {
	cfg           Config
	baseCollector *colly.Collector
	limiter       Limiter
	logger        *zap.Logger
}

// New builds a Client. limiter may be nil.
func New(cfg Config, limiter Limiter, logger *zap.Logger) (*Client, error) {
	if cfg.Endpoint == "" {
		cfg.Endpoint = DefaultEndpoint
	}
	if _, err := url.ParseRequestURI(cfg.Endpoint); err != nil {
		return nil, fmt.Errorf("invalid endpoint %q: %w", cfg.Endpoint, err)
	}
	if strings.TrimSpace(cfg.UserAgent) == "" {
		return nil, fmt.Errorf("user agent is required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	c := colly.NewCollector(colly.Async(false), colly.AllowURLRevisit())
	c.UserAgent = cfg.UserAgent
	c.MaxBodySize = cfg.MaxBodyBytes
	// Transport and timeout live on the backend shared by clones, so they are set once here.
	c.WithTransport(newHTTPTransport())
	c.SetRequestTimeout(cfg.Timeout)

	return &Client{
		cfg:           cfg,
		baseCollector: c,
		limiter:       limiter,
		logger:        logger,
	}, nil
}

// Config returns the client's configuration.
func (c *Client) Config() Config {
	return c.cfg
}

// FetchRendered returns the rendered markup of title. An API error is
// returned as *APIError.
func (c *Client) FetchRendered(ctx context.Context, title string, opts ...CallOption) (string, error) {
	res, err := c.Parse(ctx, title, opts...)
	if err != nil {
		return "", err
	}
	if res.Kind == ParseAPIError {
		return "", res.Err
	}
	return res.Text, nil
}

// Parse runs action=parse for title.
func (c *Client) Parse(ctx context.Context, title string, opts ...CallOption) (ParseResult, error) {
	params := url.Values{}
	params.Set("action", "parse")
	params.Set("page", title)
	params.Set("prop", "text")
	params.Set("disableeditsection", "1")
	params.Set("disabletoc", "1")

	body, err := c.get(ctx, "parse", params, opts)
	if err != nil {
		return ParseResult{}, err
	}
	var env parseEnvelope
	if err := decode(body, &env); err != nil {
		return ParseResult{}, err
	}
	return toParseResult(env)
}

// QueryMetadata runs action=query for the page id and wikibase item of title.
func (c *Client) QueryMetadata(ctx context.Context, title string, opts ...CallOption) (QueryResult, error) {
	params := url.Values{}
	params.Set("action", "query")
	params.Set("titles", title)
	params.Set("prop", "pageprops")
	params.Set("ppprop", "wikibase_item")

	body, err := c.get(ctx, "query", params, opts)
	if err != nil {
		return QueryResult{}, err
	}
	var env queryEnvelope
	if err := decode(body, &env); err != nil {
		return QueryResult{}, err
	}
	return toQueryResult(env)
}

// EarliestRevision returns the oldest revision of title.
func (c *Client) EarliestRevision(ctx context.Context, title string, opts ...CallOption) (Revision, error) {
	params := url.Values{}
	params.Set("action", "query")
	params.Set("titles", title)
	params.Set("prop", "revisions")
	params.Set("rvprop", "ids|comment|timestamp|user|size|sha1")
	params.Set("rvlimit", "1")
	params.Set("rvdir", "newer")

	body, err := c.get(ctx, "revisions", params, opts)
	if err != nil {
		return Revision{}, err
	}
	var env queryEnvelope
	if err := decode(body, &env); err != nil {
		return Revision{}, err
	}
	return toRevision(env)
}

func (c *Client) get(ctx context.Context, action string, params url.Values, opts []CallOption) ([]byte, error) {
	o := callOptions{redirects: c.cfg.Redirects}
	for _, opt := range opts {
		opt(&o)
	}
	params.Set("format", "json")
	params.Set("formatversion", "2")
	if o.redirects > 0 {
		params.Set("redirects", strconv.Itoa(o.redirects))
	}
	target := c.cfg.Endpoint + "?" + params.Encode()

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx, target); err != nil {
			return nil, err
		}
	}

	start := time.Now()
	body, err := c.visit(ctx, target)
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	metrics.ObserveAPICall(action, outcome, time.Since(start))
	if err != nil {
		c.logger.Debug("api call failed", zap.String("action", action), zap.String("url", target), zap.Error(err))
		return nil, err
	}
	return body, nil
}

func (c *Client) visit(ctx context.Context, target string) ([]byte, error) {
	collector := c.baseCollector.Clone()

	var (
		body     []byte
		fetchErr error
	)
	collector.OnResponse(func(r *colly.Response) {
		body = append([]byte(nil), r.Body...)
	})
	collector.OnError(func(r *colly.Response, err error) {
		if r != nil && r.StatusCode != 0 {
			fetchErr = fmt.Errorf("http status %d: %w", r.StatusCode, err)
			return
		}
		fetchErr = err
	})

	done := make(chan error, 1)
	go func() {
		done <- collector.Visit(target)
	}()

	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("api call canceled: %w", ctx.Err())
	case err := <-done:
		if fetchErr != nil {
			return nil, fmt.Errorf("colly response failed: %w", fetchErr)
		}
		if err != nil {
			return nil, fmt.Errorf("colly visit failed: %w", err)
		}
		return body, nil
	}
}

func newHTTPTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   15 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   32,
		IdleConnTimeout:       90 * time.Second,
	}
}
