package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCountersAreExported(t *testing.T) {
	m, err := New()
	require.NoError(t, err)

	m.Submissions.WithLabelValues("true").Inc()
	m.ReindexFailures.Inc()
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Submissions.WithLabelValues("true")))

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "encyclopedia_revisions_submitted_total")
	assert.Contains(t, rec.Body.String(), "encyclopedia_search_reindex_failures_total 1")
}
