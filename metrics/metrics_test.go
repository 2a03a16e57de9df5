package metrics

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics_Exposition(t *testing.T) {
	m := NewMetrics("collection-factory")
	m.RecordRequest(ResultDispatched)
	m.RecordRequest(ResultDuplicate)
	m.RecordCallback(OutcomeRefunded, time.Second)
	m.RecordRefund(errors.New("boom"))
	m.SetRegistrySize(3)
	m.SetInflight(1)

	w := httptest.NewRecorder()
	m.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, w.Code)

	body, err := io.ReadAll(w.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `collection_factory_creation_requests_total{result="duplicate"} 1`)
	assert.Contains(t, string(body), `collection_factory_refunds_total{status="failed"} 1`)
	assert.Contains(t, string(body), `collection_factory_registry_children 3`)
}

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.RecordRequest(ResultDispatched)
		m.RecordCallback(OutcomeCommitted, time.Millisecond)
		m.RecordRefund(nil)
		m.SetRegistrySize(1)
		m.SetInflight(0)
	})
}
