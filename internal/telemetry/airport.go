package telemetry

import (
	"context"
	"encoding/json"
	"maps"
	"net/url"
	"strings"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/yegors/navwatch/pkg/logger"
)

// DefaultAviationstackURL is the secondary airport data source
const DefaultAviationstackURL = "http://api.aviationstack.com/v1/airports"

// AirportInfo is an airport record as returned by whichever source answered
type AirportInfo map[string]any

// AirportOptions configures AirportService
type AirportOptions struct {
	APIKey       string        // aviationstack access key; empty disables the fallback
	SecondaryURL string        // defaults to DefaultAviationstackURL
	CacheSize    int           // entries, defaults to 128
	CacheTTL     time.Duration // defaults to 30s
}

// AirportService looks airports up on the telemetry host, falling back to
// aviationstack. Non-empty results are cached briefly.
type AirportService struct {
	fetcher      *Fetcher
	apiKey       string
	secondaryURL string
	cache        *expirable.LRU[string, AirportInfo]
	logger       *logger.Logger
}

// NewAirportService creates an airport lookup sharing the telemetry fetcher
func NewAirportService(fetcher *Fetcher, opts AirportOptions, log *logger.Logger) *AirportService {
	if opts.SecondaryURL == "" {
		opts.SecondaryURL = DefaultAviationstackURL
	}
	if opts.CacheSize <= 0 {
		opts.CacheSize = 128
	}
	if opts.CacheTTL <= 0 {
		opts.CacheTTL = 30 * time.Second
	}
	return &AirportService{
		fetcher:      fetcher,
		apiKey:       opts.APIKey,
		secondaryURL: opts.SecondaryURL,
		cache:        expirable.NewLRU[string, AirportInfo](opts.CacheSize, nil, opts.CacheTTL),
		logger:       log.Named("airport"),
	}
}

// Lookup returns airport data for an ICAO code, or an empty AirportInfo.
// It never fails.
func (s *AirportService) Lookup(ctx context.Context, icao string) AirportInfo {
	icao = strings.ToUpper(strings.TrimSpace(icao))
	if icao == "" {
		return AirportInfo{}
	}

	if info, ok := s.cache.Get(icao); ok {
		return maps.Clone(info)
	}

	info := s.fromPrimary(ctx, icao)
	if len(info) == 0 && s.apiKey != "" {
		info = s.fromAviationstack(ctx, icao)
	}
	if len(info) == 0 {
		return AirportInfo{}
	}

	s.cache.Add(icao, maps.Clone(info))
	return info
}

func (s *AirportService) fromPrimary(ctx context.Context, icao string) AirportInfo {
	u := s.fetcher.URL("/api/airport/info") + "?" + url.Values{"ident": {icao}}.Encode()

	body, err := s.fetcher.Get(ctx, u)
	if err != nil {
		s.logger.Debug("Primary airport lookup failed", logger.String("icao", icao), logger.Error(err))
		return nil
	}

	var info AirportInfo
	if err := json.Unmarshal(body, &info); err != nil {
		s.logger.Debug("Primary airport response is not an object", logger.String("icao", icao), logger.Error(err))
		return nil
	}
	return info
}

func (s *AirportService) fromAviationstack(ctx context.Context, icao string) AirportInfo {
	u := s.secondaryURL + "?" + url.Values{
		"access_key": {s.apiKey},
		"icao_code":  {icao},
	}.Encode()

	body, err := s.fetcher.Get(ctx, u)
	if err != nil {
		s.logger.Error("Error fetching from aviationstack", logger.String("icao", icao), logger.Error(err))
		return nil
	}

	var resp struct {
		Data []AirportInfo `json:"data"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		s.logger.Error("Error decoding aviationstack response", logger.String("icao", icao), logger.Error(err))
		return nil
	}
	if len(resp.Data) == 0 {
		return nil
	}
	return resp.Data[0]
}
