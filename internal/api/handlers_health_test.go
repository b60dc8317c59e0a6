package api

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestContext() (*httptest.ResponseRecorder, *gin.Context) {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest("GET", "/", nil)
	return w, c
}

func TestFormatUptime(t *testing.T) {
	tests := []struct {
		uptime time.Duration
		want   string
	}{
		{30 * time.Second, "0m"},
		{5 * time.Minute, "5m"},
		{2*time.Hour + 15*time.Minute, "2h 15m"},
		{50*time.Hour + 3*time.Minute, "2d 2h 3m"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, formatUptime(tt.uptime), "uptime %v", tt.uptime)
	}
}

func TestHandleHealth_Healthy(t *testing.T) {
	ts := setupTestServer(t, nil)
	ts.createMotion(t, map[string]interface{}{"target": 1})

	w := ts.do(t, "GET", "/api/health", nil)
	require.Equal(t, http.StatusOK, w.Code)

	body := decode[map[string]interface{}](t, w)
	assert.Equal(t, "healthy", body["status"])
	assert.Equal(t, float64(1), body["motions"])
	assert.Equal(t, float64(0), body["running_motions"])
	assert.Equal(t, "native", body["time_source"])
	assert.Equal(t, "ignore", body["restart_policy"])

	dbHealth, ok := body["database"].(map[string]interface{})
	require.True(t, ok, "database section should be an object")
	assert.Equal(t, "connected", dbHealth["status"])
	assert.Contains(t, dbHealth, "size_bytes")
	assert.Contains(t, dbHealth, "table_counts")
}

func TestHandleHealth_DatabaseClosed(t *testing.T) {
	ts := setupTestServer(t, nil)
	require.NoError(t, ts.repo.DB.Close())

	w := ts.do(t, "GET", "/api/health", nil)
	require.Equal(t, http.StatusOK, w.Code)

	body := decode[map[string]interface{}](t, w)
	assert.Equal(t, "degraded", body["status"])
	dbHealth := body["database"].(map[string]interface{})
	assert.Equal(t, "error", dbHealth["status"])
	assert.NotEmpty(t, dbHealth["error"])
}

func TestHandleEasings(t *testing.T) {
	ts := setupTestServer(t, nil)

	w := ts.do(t, "GET", "/api/easings", nil)
	require.Equal(t, http.StatusOK, w.Code)

	names := decode[[]string](t, w)
	assert.Contains(t, names, "linear")
	assert.Contains(t, names, "quad-in-out")
	assert.IsNonDecreasing(t, names)
}
