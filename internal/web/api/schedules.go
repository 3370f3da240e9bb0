package api

import (
	"net/http"
	"strconv"
	"time"

	"beegreen/internal/models"
	"beegreen/internal/schedule"
	"beegreen/internal/web/middleware"
	webmodels "beegreen/internal/web/models"

	"github.com/gin-gonic/gin"
)

func secondsToDuration(s int) time.Duration {
	return time.Duration(s) * time.Second
}

func scheduleResponse(deviceID string, table schedule.Table) webmodels.ScheduleResponse {
	resp := webmodels.ScheduleResponse{
		DeviceID:    deviceID,
		Slots:       make([]webmodels.SlotView, 0, len(table)),
		ActiveSlots: models.ActiveCount(table),
	}
	for _, s := range table {
		resp.Slots = append(resp.Slots, webmodels.SlotView{
			ScheduleSlot: s,
			Empty:        s.IsEmpty(),
			Days:         models.FormatDays(s.Dow),
		})
	}
	return resp
}

func slotIndex(c *gin.Context) (int, bool) {
	index, err := strconv.Atoi(c.Param("index"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid slot index"})
		return 0, false
	}
	return index, true
}

func RegisterScheduleRoutes(r gin.IRouter, middleware *middleware.MiddlewareManager, eng Engine) {
	schedules := r.Group("/devices/:id")
	schedules.Use(middleware.RequireAuth())
	{
		schedules.POST("/select", func(c *gin.Context) {
			id := c.Param("id")
			table, err := eng.SelectDevice(c, id)
			if err != nil {
				respondError(c, err)
				return
			}
			c.JSON(http.StatusOK, scheduleResponse(id, table))
		})

		schedules.GET("/schedules", func(c *gin.Context) {
			id := c.Param("id")
			table, err := eng.Schedules(c, id)
			if err != nil {
				respondError(c, err)
				return
			}
			c.JSON(http.StatusOK, scheduleResponse(id, table))
		})

		schedules.POST("/schedules/refresh", func(c *gin.Context) {
			if err := eng.RequestSchedules(c.Param("id")); err != nil {
				respondError(c, err)
				return
			}
			c.JSON(http.StatusAccepted, gin.H{"status": "requested"})
		})

		schedules.PUT("/schedules/:index", func(c *gin.Context) {
			id := c.Param("id")
			index, ok := slotIndex(c)
			if !ok {
				return
			}
			var req webmodels.SlotRequest
			if err := c.ShouldBindJSON(&req); err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
				return
			}
			slot := models.ScheduleSlot{
				Index:   index,
				Hour:    req.Hour,
				Min:     req.Min,
				Dur:     req.Dur,
				Dow:     req.Dow,
				Enabled: req.Enabled,
			}
			table, err := eng.SaveSlot(c, id, slot)
			if err != nil {
				respondError(c, err)
				return
			}
			c.JSON(http.StatusOK, scheduleResponse(id, table))
		})

		schedules.DELETE("/schedules/:index", func(c *gin.Context) {
			id := c.Param("id")
			index, ok := slotIndex(c)
			if !ok {
				return
			}
			table, err := eng.DeleteSlot(c, id, index)
			if err != nil {
				respondError(c, err)
				return
			}
			c.JSON(http.StatusOK, scheduleResponse(id, table))
		})

		schedules.GET("/next-run", func(c *gin.Context) {
			id := c.Param("id")
			if _, err := eng.Device(id); err != nil {
				respondError(c, err)
				return
			}
			resp := webmodels.NextRunResponse{DeviceID: id, NextRun: eng.NextRun(id)}
			if est, ok := eng.EstimatedNextRun(c, id); ok {
				resp.Estimated = &est
			}
			c.JSON(http.StatusOK, resp)
		})

		schedules.POST("/next-run/refresh", func(c *gin.Context) {
			if err := eng.RequestNextRun(c.Param("id")); err != nil {
				respondError(c, err)
				return
			}
			c.JSON(http.StatusAccepted, gin.H{"status": "requested"})
		})
	}
}
