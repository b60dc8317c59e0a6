package api

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/mescon/motion/internal/services"
)

const (
	defaultEventLimit = 50
	maxEventLimit     = 500
)

// respondRegistryError maps registry errors to HTTP status codes.
func respondRegistryError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, services.ErrMotionNotFound):
		respondWithError(c, http.StatusNotFound, ErrMsgMotionNotFound, err)
	case errors.Is(err, services.ErrInvalidSpec):
		respondBadRequest(c, err, true)
	default:
		respondWithError(c, http.StatusInternalServerError, ErrMsgInternalError, err)
	}
}

func (s *RESTServer) listMotions(c *gin.Context) {
	c.JSON(http.StatusOK, s.registry.List())
}

func (s *RESTServer) createMotion(c *gin.Context) {
	var spec services.MotionSpec
	if err := c.ShouldBindJSON(&spec); err != nil {
		respondBadRequest(c, err, false)
		return
	}

	h, err := s.registry.Create(spec)
	if err != nil {
		respondRegistryError(c, err)
		return
	}

	info, err := s.registry.Get(h.ID().String())
	if err != nil {
		respondRegistryError(c, err)
		return
	}
	c.JSON(http.StatusCreated, info)
}

func (s *RESTServer) getMotion(c *gin.Context) {
	info, err := s.registry.Get(c.Param("id"))
	if err != nil {
		respondRegistryError(c, err)
		return
	}
	c.JSON(http.StatusOK, info)
}

func (s *RESTServer) deleteMotion(c *gin.Context) {
	if err := s.registry.Remove(c.Param("id")); err != nil {
		respondRegistryError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// startMotion requests a run. A start while running is accepted too; the
// restart policy decides what it does.
func (s *RESTServer) startMotion(c *gin.Context) {
	id := c.Param("id")
	if err := s.registry.Start(id); err != nil {
		respondRegistryError(c, err)
		return
	}
	s.respondMotion(c, id, http.StatusAccepted)
}

func (s *RESTServer) finishMotion(c *gin.Context) {
	id := c.Param("id")
	if err := s.registry.Finish(id); err != nil {
		respondRegistryError(c, err)
		return
	}
	s.respondMotion(c, id, http.StatusAccepted)
}

func (s *RESTServer) respondMotion(c *gin.Context, id string, status int) {
	info, err := s.registry.Get(id)
	if err != nil {
		respondRegistryError(c, err)
		return
	}
	c.JSON(status, info)
}

// getMotionEvents returns the newest journal entries of a motion.
func (s *RESTServer) getMotionEvents(c *gin.Context) {
	id := c.Param("id")
	if _, err := s.registry.Handle(id); err != nil {
		respondRegistryError(c, err)
		return
	}
	if s.repo == nil {
		respondServiceUnavailable(c, "Event journal")
		return
	}

	limit := defaultEventLimit
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			respondBadRequest(c, fmt.Errorf("limit must be an integer, got %q", raw), true)
			return
		}
		if n < 1 {
			respondBadRequest(c, fmt.Errorf("limit must be >= 1, got %d", n), true)
			return
		}
		limit = min(n, maxEventLimit)
	}

	events, err := s.repo.RecentEvents(id, limit)
	if err != nil {
		respondDatabaseError(c, err)
		return
	}
	c.JSON(http.StatusOK, events)
}
