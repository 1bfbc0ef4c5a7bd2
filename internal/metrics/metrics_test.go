package metrics

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestObserveInsertCountsOutcomes(t *testing.T) {
	m := New()

	m.ObserveInsert(5*time.Millisecond, nil)
	m.ObserveInsert(5*time.Millisecond, nil)
	m.ObserveInsert(time.Millisecond, errors.New("down"))

	assert.Equal(t, 2.0, testutil.ToFloat64(m.Subscriptions.WithLabelValues(OutcomeSuccess)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Subscriptions.WithLabelValues(OutcomeFailure)))
}

func TestInstancesDoNotShareRegistry(t *testing.T) {
	a, b := New(), New()
	a.ObserveInsert(time.Millisecond, nil)

	assert.Equal(t, 0.0, testutil.ToFloat64(b.Subscriptions.WithLabelValues(OutcomeSuccess)))
}

func TestHandlerExposesCollectors(t *testing.T) {
	m := New()
	m.ObserveInsert(time.Millisecond, nil)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "newsletter_subscriptions_total")
	assert.Contains(t, string(body), "newsletter_subscription_insert_seconds")
}
