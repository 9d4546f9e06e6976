package sink

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/realgrapedrop/xrpl-validator-dashboard-sub000/logging"
)

// QueryClient reads last-known values from the store's instant-query API.
// It is only used at startup, to recover counters across a collector restart.
type QueryClient struct {
	logger     logging.Logger
	queryURL   string
	httpClient *http.Client
}

// NewQueryClient builds a query client against the store's /api/v1/query
// endpoint.
func NewQueryClient(logger logging.Logger, queryURL string, timeout time.Duration) *QueryClient {
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	return &QueryClient{
		logger:     logging.ForComponent(logger, logging.ComponentRecovery),
		queryURL:   queryURL,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// instantQueryResponse is the standard instant-query JSON shape.
type instantQueryResponse struct {
	Status string `json:"status"`
	Data   struct {
		ResultType string `json:"resultType"`
		Result     []struct {
			Metric map[string]string `json:"metric"`
			Value  []json.RawMessage `json:"value"`
		} `json:"result"`
	} `json:"data"`
}

// QueryLast evaluates expr and returns the first series' value. The second
// return is false when the query succeeds but matches no series (a fresh
// store, or a metric this deployment never wrote).
func (q *QueryClient) QueryLast(ctx context.Context, expr string) (float64, bool, error) {
	reqURL := q.queryURL + "?query=" + url.QueryEscape(expr)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return 0, false, fmt.Errorf("build query request: %w", err)
	}

	resp, err := q.httpClient.Do(req)
	if err != nil {
		return 0, false, fmt.Errorf("query %q: %w", expr, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, false, fmt.Errorf("query %q: HTTP %d", expr, resp.StatusCode)
	}

	var parsed instantQueryResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return 0, false, fmt.Errorf("decode query response: %w", err)
	}
	if parsed.Status != "success" {
		return 0, false, fmt.Errorf("query %q: status %q", expr, parsed.Status)
	}
	if len(parsed.Data.Result) == 0 || len(parsed.Data.Result[0].Value) < 2 {
		return 0, false, nil
	}

	// value is [ts, "val"]; the value element is a JSON string.
	var valueStr string
	if err := json.Unmarshal(parsed.Data.Result[0].Value[1], &valueStr); err != nil {
		return 0, false, fmt.Errorf("decode query value: %w", err)
	}
	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return 0, false, fmt.Errorf("parse query value %q: %w", valueStr, err)
	}
	return value, true, nil
}
