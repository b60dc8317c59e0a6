package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/mescon/motion/internal/services"
)

type scheduleRequest struct {
	CronExpression string `json:"cron_expression" binding:"required"`
}

func (s *RESTServer) getSchedules(c *gin.Context) {
	if s.scheduler == nil {
		respondServiceUnavailable(c, "Scheduler")
		return
	}
	id := c.Param("id")
	if _, err := s.registry.Handle(id); err != nil {
		respondRegistryError(c, err)
		return
	}
	c.JSON(http.StatusOK, s.scheduler.Schedules(id))
}

func (s *RESTServer) addSchedule(c *gin.Context) {
	if s.scheduler == nil {
		respondServiceUnavailable(c, "Scheduler")
		return
	}

	var req scheduleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, err, false)
		return
	}

	motionID := c.Param("id")
	id, err := s.scheduler.AddSchedule(motionID, req.CronExpression)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrInvalidCron):
			respondBadRequest(c, err, true)
		case errors.Is(err, services.ErrMotionNotFound):
			respondWithError(c, http.StatusNotFound, ErrMsgMotionNotFound, err)
		default:
			respondDatabaseError(c, err)
		}
		return
	}

	for _, info := range s.scheduler.Schedules(motionID) {
		if info.ID == id {
			c.JSON(http.StatusCreated, info)
			return
		}
	}
	c.JSON(http.StatusCreated, gin.H{"id": id})
}

func (s *RESTServer) deleteSchedule(c *gin.Context) {
	if s.scheduler == nil {
		respondServiceUnavailable(c, "Scheduler")
		return
	}

	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		respondWithError(c, http.StatusBadRequest, ErrMsgInvalidID, err)
		return
	}

	if err := s.scheduler.DeleteSchedule(id); err != nil {
		if errors.Is(err, services.ErrScheduleNotFound) {
			respondWithError(c, http.StatusNotFound, ErrMsgScheduleNotFound, err)
			return
		}
		respondDatabaseError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
