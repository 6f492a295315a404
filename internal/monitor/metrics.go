package monitor

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// MetricsClient queries a Prometheus-compatible HTTP API for the metrics
// the daemon exports.
type MetricsClient struct {
	baseURL string
	client  *http.Client
}

// QueryResult is the Prometheus instant-query response envelope.
type QueryResult struct {
	Status string    `json:"status"`
	Data   QueryData `json:"data"`
}

// QueryData holds the query result data.
type QueryData struct {
	ResultType string         `json:"resultType"`
	Result     []MetricResult `json:"result"`
}

// MetricResult is one sample in an instant-query response.
type MetricResult struct {
	Metric map[string]string `json:"metric"`
	Value  [2]interface{}    `json:"value"`
}

// NewMetricsClient creates a client for the given Prometheus base URL.
func NewMetricsClient(baseURL string) *MetricsClient {
	return &MetricsClient{
		baseURL: baseURL,
		client: &http.Client{
			Timeout: 2 * time.Second,
		},
	}
}

// Query executes a PromQL instant query.
func (c *MetricsClient) Query(ctx context.Context, query string) (QueryResult, error) {
	u, err := url.Parse(c.baseURL + "/api/v1/query")
	if err != nil {
		return QueryResult{}, fmt.Errorf("invalid base URL: %w", err)
	}

	q := u.Query()
	q.Set("query", query)
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return QueryResult{}, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return QueryResult{}, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return QueryResult{}, fmt.Errorf("unexpected status code %d", resp.StatusCode)
	}

	var result QueryResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return QueryResult{}, fmt.Errorf("failed to decode response: %w", err)
	}

	return result, nil
}

// QueryMessageRate returns the per-minute rate of messages through the
// dispatcher.
func (c *MetricsClient) QueryMessageRate(ctx context.Context) (float64, error) {
	result, err := c.Query(ctx, "rate(voxd_messages_handled_total[1m]) * 60")
	if err != nil {
		return 0, err
	}
	return extractFloatValue(result)
}

// QueryHandleLatencyP95 returns the p95 of one core handle pass in seconds.
func (c *MetricsClient) QueryHandleLatencyP95(ctx context.Context) (float64, error) {
	result, err := c.Query(ctx, "histogram_quantile(0.95, rate(voxd_core_handle_duration_seconds_bucket[1m]))")
	if err != nil {
		return 0, err
	}
	return extractFloatValue(result)
}

// QueryLaunchRate returns the per-minute rate of executor launches.
func (c *MetricsClient) QueryLaunchRate(ctx context.Context) (float64, error) {
	result, err := c.Query(ctx, "rate(voxd_executor_launches_total[5m]) * 60")
	if err != nil {
		return 0, err
	}
	return extractFloatValue(result)
}

// QuerySessionsEnded returns the total number of completed sessions.
func (c *MetricsClient) QuerySessionsEnded(ctx context.Context) (float64, error) {
	result, err := c.Query(ctx, "voxd_sessions_ended_total")
	if err != nil {
		return 0, err
	}
	return extractFloatValue(result)
}

// QueryAvgSessionDuration returns the mean session duration in seconds over
// the last hour.
func (c *MetricsClient) QueryAvgSessionDuration(ctx context.Context) (float64, error) {
	result, err := c.Query(ctx,
		"rate(voxd_session_duration_seconds_sum[1h]) / rate(voxd_session_duration_seconds_count[1h])")
	if err != nil {
		return 0, err
	}
	return extractFloatValue(result)
}

// QueryErrorRate returns the per-minute rate of orchestration errors.
func (c *MetricsClient) QueryErrorRate(ctx context.Context) (float64, error) {
	result, err := c.Query(ctx, "rate(voxd_orchestration_errors_total[5m]) * 60")
	if err != nil {
		return 0, err
	}
	return extractFloatValue(result)
}

// extractFloatValue pulls the sample value out of an instant-query result.
// An empty result reads as zero.
func extractFloatValue(result QueryResult) (float64, error) {
	if len(result.Data.Result) == 0 {
		return 0, nil
	}

	valueStr, ok := result.Data.Result[0].Value[1].(string)
	if !ok {
		return 0, fmt.Errorf("value is not a string")
	}

	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return 0, fmt.Errorf("failed to parse value: %w", err)
	}

	return value, nil
}
