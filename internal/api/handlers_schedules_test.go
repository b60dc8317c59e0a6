package api

import (
	"context"
	"net/http"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mescon/motion/internal/config"
	"github.com/mescon/motion/internal/services"
)

func TestAddSchedule(t *testing.T) {
	ts := setupTestServer(t, nil)
	m := ts.createMotion(t, map[string]interface{}{"target": 1})

	w := ts.do(t, "POST", "/api/motions/"+m.ID+"/schedules", map[string]string{"cron_expression": "*/10 * * * *"})
	require.Equal(t, http.StatusCreated, w.Code, "body: %s", w.Body.String())

	info := decode[services.ScheduleInfo](t, w)
	assert.Greater(t, info.ID, int64(0))
	assert.Equal(t, m.ID, info.MotionID)
	assert.Equal(t, "*/10 * * * *", info.CronExpression)
	assert.False(t, info.NextRun.IsZero())

	list := decode[[]services.ScheduleInfo](t, ts.do(t, "GET", "/api/motions/"+m.ID+"/schedules", nil))
	require.Len(t, list, 1)
	assert.Equal(t, info.ID, list[0].ID)
}

func TestAddSchedule_Errors(t *testing.T) {
	ts := setupTestServer(t, nil)
	m := ts.createMotion(t, map[string]interface{}{"target": 1})

	tests := []struct {
		name     string
		motionID string
		body     interface{}
		want     int
	}{
		{"missing expression", m.ID, map[string]string{}, http.StatusBadRequest},
		{"malformed json", m.ID, "{", http.StatusBadRequest},
		{"invalid cron", m.ID, map[string]string{"cron_expression": "every tuesday"}, http.StatusBadRequest},
		{"unknown motion", "00000000-0000-0000-0000-000000000001", map[string]string{"cron_expression": "@hourly"}, http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := ts.do(t, "POST", "/api/motions/"+tt.motionID+"/schedules", tt.body)
			assert.Equal(t, tt.want, w.Code, "body: %s", w.Body.String())
		})
	}
	assert.Empty(t, ts.scheduler.Schedules(""))
}

func TestGetSchedules_UnknownMotion(t *testing.T) {
	ts := setupTestServer(t, nil)

	w := ts.do(t, "GET", "/api/motions/00000000-0000-0000-0000-000000000001/schedules", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestDeleteSchedule(t *testing.T) {
	ts := setupTestServer(t, nil)
	m := ts.createMotion(t, map[string]interface{}{"target": 1})
	id, err := ts.scheduler.AddSchedule(m.ID, "@daily")
	require.NoError(t, err)

	w := ts.do(t, "DELETE", "/api/schedules/"+strconv.FormatInt(id, 10), nil)
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Empty(t, ts.scheduler.Schedules(m.ID))

	w = ts.do(t, "DELETE", "/api/schedules/"+strconv.FormatInt(id, 10), nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, ErrMsgScheduleNotFound, decode[map[string]string](t, w)["error"])

	w = ts.do(t, "DELETE", "/api/schedules/abc", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, ErrMsgInvalidID, decode[map[string]string](t, w)["error"])
}

func TestSchedules_WithoutScheduler(t *testing.T) {
	ts := setupTestServer(t, nil)
	srv := NewRESTServer(ServerDeps{Config: config.NewTestConfig(), Registry: ts.registry})
	t.Cleanup(func() { _ = srv.Shutdown(context.Background()) })
	ts.server = srv

	m := ts.createMotion(t, map[string]interface{}{"target": 1})
	for _, req := range []struct{ method, path string }{
		{"GET", "/api/motions/" + m.ID + "/schedules"},
		{"POST", "/api/motions/" + m.ID + "/schedules"},
		{"DELETE", "/api/schedules/1"},
	} {
		w := ts.do(t, req.method, req.path, nil)
		assert.Equal(t, http.StatusServiceUnavailable, w.Code, "%s %s", req.method, req.path)
	}

	// Without a repository the journal is unavailable too
	w := ts.do(t, "GET", "/api/motions/"+m.ID+"/events", nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}
