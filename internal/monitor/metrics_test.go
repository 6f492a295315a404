package monitor

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func promResponse(value string) string {
	return fmt.Sprintf(`{"status":"success","data":{"resultType":"vector","result":[{"metric":{},"value":[1693400000,%q]}]}}`, value)
}

func newMetricsServer(t *testing.T, handler func(query string) (int, string)) *MetricsClient {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		code, body := handler(r.URL.Query().Get("query"))
		w.WriteHeader(code)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return NewMetricsClient(srv.URL)
}

func TestQueryParsesVectorValue(t *testing.T) {
	client := newMetricsServer(t, func(query string) (int, string) {
		assert.Contains(t, query, "voxd_messages_handled_total")
		return http.StatusOK, promResponse("12.5")
	})

	rate, err := client.QueryMessageRate(context.Background())
	require.NoError(t, err)
	assert.InDelta(t, 12.5, rate, 0.001)
}

func TestQueryEmptyResultReadsAsZero(t *testing.T) {
	client := newMetricsServer(t, func(string) (int, string) {
		return http.StatusOK, `{"status":"success","data":{"resultType":"vector","result":[]}}`
	})

	total, err := client.QuerySessionsEnded(context.Background())
	require.NoError(t, err)
	assert.Zero(t, total)
}

func TestQueryRejectsNon200(t *testing.T) {
	client := newMetricsServer(t, func(string) (int, string) {
		return http.StatusServiceUnavailable, "down"
	})

	_, err := client.QueryErrorRate(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unexpected status code")
}

func TestQueryRejectsMalformedBody(t *testing.T) {
	client := newMetricsServer(t, func(string) (int, string) {
		return http.StatusOK, "{not json"
	})

	_, err := client.QueryLaunchRate(context.Background())
	require.Error(t, err)
}

func TestExtractFloatValue(t *testing.T) {
	v, err := extractFloatValue(QueryResult{Data: QueryData{Result: []MetricResult{
		{Value: [2]interface{}{1693400000.0, "3.75"}},
	}}})
	require.NoError(t, err)
	assert.InDelta(t, 3.75, v, 0.001)

	_, err = extractFloatValue(QueryResult{Data: QueryData{Result: []MetricResult{
		{Value: [2]interface{}{1693400000.0, 42}},
	}}})
	assert.Error(t, err)

	_, err = extractFloatValue(QueryResult{Data: QueryData{Result: []MetricResult{
		{Value: [2]interface{}{1693400000.0, "not-a-number"}},
	}}})
	assert.Error(t, err)
}
