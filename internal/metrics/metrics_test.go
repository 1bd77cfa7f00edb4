package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordDunningOutcome(t *testing.T) {
	before := testutil.ToFloat64(DunningOutcomes.WithLabelValues("RETRY_DUNNING"))
	RecordDunningOutcome("RETRY_DUNNING", "payment", 15*time.Millisecond)
	after := testutil.ToFloat64(DunningOutcomes.WithLabelValues("RETRY_DUNNING"))
	assert.Equal(t, before+1, after)
}

func TestRecordNotification(t *testing.T) {
	counter := NotificationsSent.WithLabelValues("merchant", "DUNNING_SKIPPED", "error")
	before := testutil.ToFloat64(counter)
	RecordNotification("merchant", "DUNNING_SKIPPED", "error")
	assert.Equal(t, before+1, testutil.ToFloat64(counter))
}

func TestHandler_ServesMetrics(t *testing.T) {
	RecordCommerceAPICall("subscriptionContractPause", "success", time.Millisecond)

	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "commerce_api_calls_total"))
}

func TestHandler_Health(t *testing.T) {
	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "OK", rec.Body.String())

	rec = httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/health", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}
