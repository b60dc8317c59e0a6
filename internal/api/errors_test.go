package api

import (
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRespondHelpers(t *testing.T) {
	t.Run("bad request hides details by default", func(t *testing.T) {
		w, c := newTestContext()
		respondBadRequest(c, errors.New("sql: secret detail"), false)
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.JSONEq(t, `{"error":"Invalid request"}`, w.Body.String())
	})

	t.Run("bad request exposes validation errors", func(t *testing.T) {
		w, c := newTestContext()
		respondBadRequest(c, errors.New("target must be finite"), true)
		assert.JSONEq(t, `{"error":"target must be finite"}`, w.Body.String())
	})

	t.Run("database error", func(t *testing.T) {
		w, c := newTestContext()
		respondDatabaseError(c, errors.New("disk I/O error"))
		assert.Equal(t, http.StatusInternalServerError, w.Code)
		assert.JSONEq(t, `{"error":"Database error"}`, w.Body.String())
	})

	t.Run("service unavailable", func(t *testing.T) {
		w, c := newTestContext()
		respondServiceUnavailable(c, "Scheduler")
		assert.Equal(t, http.StatusServiceUnavailable, w.Code)
		assert.JSONEq(t, `{"error":"Scheduler not available"}`, w.Body.String())
	})
}
