package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCounters(t *testing.T) {
	before := testutil.ToFloat64(TileFetches.WithLabelValues("download"))
	TileFetches.WithLabelValues("download").Inc()
	assert.Equal(t, before+1, testutil.ToFloat64(TileFetches.WithLabelValues("download")))

	AnimationState.Set(3)
	assert.Equal(t, 3.0, testutil.ToFloat64(AnimationState))
}

func TestHandler(t *testing.T) {
	AnimationFrames.Inc()

	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "flyover_animation_frames_total")
}
