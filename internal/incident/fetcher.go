package incident

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"incidentrelay/internal/metrics"
	"incidentrelay/pkg/logging"
)

const (
	// DefaultPath is the ServiceNow table API path for incidents.
	DefaultPath = "/api/now/table/incident"

	DefaultPageSize   = 100
	DefaultMaxRecords = 1000
	DefaultTimeout    = 30 * time.Second

	// maxPageBytes caps a single page response.
	maxPageBytes = 16 << 20
)

// consumedFields are requested through sysparm_fields so the upstream does
// not send columns the relay discards.
var consumedFields = []string{"sys_id", "short_description", "state", "priority", "opened_at"}

// FetcherConfig configures a Fetcher.
type FetcherConfig struct {
	// InstanceURL is the base URL of the ticketing instance, e.g. https://acme.service-now.com.
	InstanceURL string

	// Path overrides DefaultPath.
	Path string

	// Query is an optional sysparm_query filter (e.g. "active=true^ORDERBYDESCopened_at").
	Query string

	// PageSize is the sysparm_limit per request.
	PageSize int

	// MaxRecords bounds the total number of records per fetch.
	MaxRecords int

	// HTTPClient overrides the default client.
	HTTPClient *http.Client
}

// Fetcher lists incidents on behalf of a bearer token.
type Fetcher struct {
	endpoint   string
	query      string
	pageSize   int
	maxRecords int
	httpClient *http.Client
	now        func() time.Time
}

// NewFetcher creates a Fetcher. Zero values in cfg are replaced with defaults.
func NewFetcher(cfg FetcherConfig) *Fetcher {
	path := cfg.Path
	if path == "" {
		path = DefaultPath
	}
	pageSize := cfg.PageSize
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	maxRecords := cfg.MaxRecords
	if maxRecords <= 0 {
		maxRecords = DefaultMaxRecords
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: DefaultTimeout}
	}

	return &Fetcher{
		endpoint:   strings.TrimSuffix(cfg.InstanceURL, "/") + "/" + strings.TrimPrefix(path, "/"),
		query:      cfg.Query,
		pageSize:   pageSize,
		maxRecords: maxRecords,
		httpClient: httpClient,
		now:        time.Now,
	}
}

// tableResponse is the envelope of the table API.
type tableResponse struct {
	Result []map[string]any `json:"result"`
}

// Fetch returns all normalized incidents visible to accessToken, up to the
// configured maximum. An empty listing yields an empty slice and no error.
func (f *Fetcher) Fetch(ctx context.Context, accessToken string) ([]Record, error) {
	records := []Record{}
	err := f.FetchBatches(ctx, accessToken, func(batch []Record) error {
		records = append(records, batch...)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return records, nil
}

// FetchBatches pages through the listing and hands each normalized page to fn
// as soon as it arrives. Returning an error from fn stops paging.
func (f *Fetcher) FetchBatches(ctx context.Context, accessToken string, fn func(batch []Record) error) error {
	start := time.Now()
	err := f.fetchBatches(ctx, accessToken, fn)
	metrics.FetchDuration.Observe(time.Since(start).Seconds())

	switch {
	case err == nil:
		metrics.FetchTotal.WithLabelValues(metrics.ResultSuccess).Inc()
	case IsUnauthorized(err):
		metrics.FetchTotal.WithLabelValues(metrics.ResultUnauthorized).Inc()
	default:
		metrics.FetchTotal.WithLabelValues(metrics.ResultFailure).Inc()
	}
	return err
}

func (f *Fetcher) fetchBatches(ctx context.Context, accessToken string, fn func([]Record) error) error {
	fetched := 0
	for offset := 0; fetched < f.maxRecords; offset += f.pageSize {
		limit := min(f.pageSize, f.maxRecords-fetched)

		raw, err := f.fetchPage(ctx, accessToken, offset, limit)
		if err != nil {
			return err
		}

		if len(raw) > 0 {
			if err := fn(NormalizeAll(raw, f.now())); err != nil {
				return err
			}
		}
		fetched += len(raw)

		if len(raw) < limit {
			break
		}
	}

	logging.Debug("Incidents", "Fetched %d incidents from %s", fetched, f.endpoint)
	return nil
}

func (f *Fetcher) fetchPage(ctx context.Context, accessToken string, offset, limit int) ([]map[string]any, error) {
	q := url.Values{}
	q.Set("sysparm_limit", strconv.Itoa(limit))
	q.Set("sysparm_offset", strconv.Itoa(offset))
	q.Set("sysparm_fields", strings.Join(consumedFields, ","))
	if f.query != "" {
		q.Set("sysparm_query", f.query)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.endpoint+"?"+q.Encode(), nil)
	if err != nil {
		return nil, &FetchError{Kind: Upstream, Err: fmt.Errorf("failed to create request: %w", err)}
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Accept", "application/json")

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return nil, &FetchError{Kind: Upstream, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxPageBytes))
	if err != nil {
		return nil, &FetchError{Kind: Upstream, Err: fmt.Errorf("failed to read response: %w", err)}
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return nil, &FetchError{Kind: Unauthorized, StatusCode: resp.StatusCode}
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		logging.Debug("Incidents", "Upstream returned status=%d at offset=%d", resp.StatusCode, offset)
		return nil, &FetchError{Kind: Upstream, StatusCode: resp.StatusCode}
	}

	var page tableResponse
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	if err := dec.Decode(&page); err != nil {
		return nil, &FetchError{Kind: Upstream, Err: fmt.Errorf("failed to decode response: %w", err)}
	}
	return page.Result, nil
}
