package telemetry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/yegors/navwatch/pkg/logger"
)

// DefaultFetchTimeout bounds a single endpoint request
const DefaultFetchTimeout = 10 * time.Second

// maxBodyBytes caps how much of a response body is read
const maxBodyBytes = 4 << 20

// Fetcher issues single GET requests against the telemetry host
type Fetcher struct {
	baseURL    string
	httpClient *http.Client
	logger     *logger.Logger
}

// NewFetcher creates a fetcher for baseURL with a per-request timeout
func NewFetcher(baseURL string, timeout time.Duration, log *logger.Logger) *Fetcher {
	if timeout <= 0 {
		timeout = DefaultFetchTimeout
	}
	return &Fetcher{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: timeout,
		},
		logger: log.Named("fetcher"),
	}
}

// URL joins path onto the base URL
func (f *Fetcher) URL(path string) string {
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return f.baseURL + path
}

// Get fetches rawURL and returns the body. Non-2xx statuses are errors.
func (f *Fetcher) Get(ctx context.Context, rawURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}
	return body, nil
}

// Close drops idle keep-alive connections
func (f *Fetcher) Close() {
	f.httpClient.CloseIdleConnections()
}

// Parser decodes an endpoint body into a RawSample
type Parser func(body []byte) (RawSample, error)

// Strategy is one candidate telemetry endpoint and how to read it
type Strategy struct {
	Path  string
	Parse Parser
}

// DefaultStrategies lists the LittleNavmap-style endpoints in preference order
func DefaultStrategies() []Strategy {
	return StrategiesFor([]string{"/api/aircraft", "/api/v1/flight", "/api/progress", "/api/flightplan"})
}

// StrategiesFor builds JSON-object strategies for the given paths
func StrategiesFor(paths []string) []Strategy {
	strategies := make([]Strategy, 0, len(paths))
	for _, p := range paths {
		strategies = append(strategies, Strategy{Path: p, Parse: ParseObject})
	}
	return strategies
}

// ParseObject decodes a JSON object body
func ParseObject(body []byte) (RawSample, error) {
	var data map[string]any
	if err := json.Unmarshal(body, &data); err != nil {
		return nil, fmt.Errorf("failed to parse JSON object: %w", err)
	}
	return RawSample(data), nil
}

// Attempt records the outcome of one endpoint during a resolution
type Attempt struct {
	Endpoint string
	Err      error // nil when the endpoint answered, even if empty
}

// Resolution is the result of one pass over all strategies
type Resolution struct {
	Sample   *Sample
	Attempts []Attempt
}

// Unreachable reports whether every endpoint failed outright. An endpoint that
// answered with an empty payload is reachable.
func (r Resolution) Unreachable() bool {
	if r.Sample != nil || len(r.Attempts) == 0 {
		return false
	}
	for _, a := range r.Attempts {
		if a.Err == nil {
			return false
		}
	}
	return true
}

// Err joins the per-endpoint failures
func (r Resolution) Err() error {
	var errs []error
	for _, a := range r.Attempts {
		if a.Err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", a.Endpoint, a.Err))
		}
	}
	return errors.Join(errs...)
}

// Source produces one telemetry resolution per call
type Source interface {
	Resolve(ctx context.Context) Resolution
}

// Resolver walks an ordered strategy list and keeps the first non-empty sample
type Resolver struct {
	fetcher    *Fetcher
	strategies []Strategy
	now        func() time.Time
	logger     *logger.Logger
}

// NewResolver creates a resolver; an empty strategy list means DefaultStrategies
func NewResolver(fetcher *Fetcher, strategies []Strategy, log *logger.Logger) *Resolver {
	if len(strategies) == 0 {
		strategies = DefaultStrategies()
	}
	return &Resolver{
		fetcher:    fetcher,
		strategies: strategies,
		now:        time.Now,
		logger:     log.Named("resolver"),
	}
}

// Resolve tries each strategy in order. It never returns an error; failures are
// recorded per attempt and the next endpoint is tried.
func (r *Resolver) Resolve(ctx context.Context) Resolution {
	var res Resolution
	for _, s := range r.strategies {
		if ctx.Err() != nil {
			res.Attempts = append(res.Attempts, Attempt{Endpoint: s.Path, Err: ctx.Err()})
			return res
		}

		body, err := r.fetcher.Get(ctx, r.fetcher.URL(s.Path))
		if err == nil {
			var data RawSample
			data, err = s.Parse(body)
			if err == nil && len(data) == 0 {
				r.logger.Debug("Endpoint returned empty payload", logger.String("endpoint", s.Path))
				res.Attempts = append(res.Attempts, Attempt{Endpoint: s.Path})
				continue
			}
			if err == nil {
				res.Attempts = append(res.Attempts, Attempt{Endpoint: s.Path})
				res.Sample = &Sample{
					Data:     data,
					Body:     body,
					Endpoint: s.Path,
					Fetched:  r.now(),
				}
				r.logger.Debug("Successfully fetched data", logger.String("endpoint", s.Path))
				return res
			}
		}

		r.logger.Debug("Failed to fetch from endpoint",
			logger.String("endpoint", s.Path),
			logger.Error(err),
		)
		res.Attempts = append(res.Attempts, Attempt{Endpoint: s.Path, Err: err})
	}
	return res
}

// Close releases the underlying HTTP connections
func (r *Resolver) Close() {
	r.fetcher.Close()
}
