package api

import (
	"net/http"

	"beegreen/internal/models"
	"beegreen/internal/web/middleware"
	webmodels "beegreen/internal/web/models"

	"github.com/gin-gonic/gin"
)

func deviceView(c *gin.Context, eng Engine, d models.Device) webmodels.DeviceView {
	view := webmodels.DeviceView{
		Device:      d,
		Status:      eng.Status(d.ID),
		Available:   eng.IsAvailable(d.ID),
		NextRun:     eng.NextRun(d.ID),
		ActiveSlots: eng.ActiveCount(c, d.ID),
	}
	if on, known := eng.PumpOn(d.ID); known {
		view.PumpOn = &on
	}
	return view
}

func RegisterDeviceRoutes(r gin.IRouter, middleware *middleware.MiddlewareManager, eng Engine) {
	devices := r.Group("/devices")
	devices.Use(middleware.RequireAuth())
	{
		devices.GET("", func(c *gin.Context) {
			list := eng.Devices()
			views := make([]webmodels.DeviceView, 0, len(list))
			for _, d := range list {
				views = append(views, deviceView(c, eng, d))
			}
			c.JSON(http.StatusOK, views)
		})

		devices.POST("", func(c *gin.Context) {
			var req webmodels.AddDeviceRequest
			if err := c.ShouldBindJSON(&req); err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
				return
			}
			d := models.Device{ID: req.ID, Name: req.Name, Active: true}
			if req.Active != nil {
				d.Active = *req.Active
			}
			if err := eng.UpsertDevice(c, d); err != nil {
				respondError(c, err)
				return
			}
			stored, err := eng.Device(d.ID)
			if err != nil {
				respondError(c, err)
				return
			}
			c.JSON(http.StatusCreated, deviceView(c, eng, stored))
		})

		devices.GET("/:id", func(c *gin.Context) {
			d, err := eng.Device(c.Param("id"))
			if err != nil {
				respondError(c, err)
				return
			}
			c.JSON(http.StatusOK, deviceView(c, eng, d))
		})

		devices.PATCH("/:id", func(c *gin.Context) {
			id := c.Param("id")
			var req webmodels.UpdateDeviceRequest
			if err := c.ShouldBindJSON(&req); err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
				return
			}
			if req.Name != nil {
				if err := eng.RenameDevice(c, id, *req.Name); err != nil {
					respondError(c, err)
					return
				}
			}
			if req.Active != nil {
				if err := eng.SetDeviceActive(c, id, *req.Active); err != nil {
					respondError(c, err)
					return
				}
			}
			d, err := eng.Device(id)
			if err != nil {
				respondError(c, err)
				return
			}
			c.JSON(http.StatusOK, deviceView(c, eng, d))
		})

		devices.DELETE("/:id", func(c *gin.Context) {
			if err := eng.DeleteDevice(c, c.Param("id")); err != nil {
				respondError(c, err)
				return
			}
			c.Status(http.StatusNoContent)
		})

		devices.POST("/:id/pump", func(c *gin.Context) {
			var req webmodels.PumpRequest
			if err := c.ShouldBindJSON(&req); err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
				return
			}
			if err := eng.TriggerPump(c.Param("id"), secondsToDuration(req.Seconds)); err != nil {
				respondError(c, err)
				return
			}
			c.JSON(http.StatusAccepted, gin.H{"status": "triggered", "seconds": req.Seconds})
		})
	}

	r.GET("/pending", middleware.RequireAuth(), func(c *gin.Context) {
		c.JSON(http.StatusOK, eng.Pending())
	})
}
