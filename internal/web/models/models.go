package models

import (
	"time"

	"beegreen/internal/models"
)

type LoginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type AddDeviceRequest struct {
	ID     string `json:"id" binding:"required"`
	Name   string `json:"name"`
	Active *bool  `json:"active"`
}

type UpdateDeviceRequest struct {
	Name   *string `json:"name"`
	Active *bool   `json:"active"`
}

type SlotRequest struct {
	Hour    int  `json:"hour"`
	Min     int  `json:"min"`
	Dur     int  `json:"dur"`
	Dow     int  `json:"dow"`
	Enabled bool `json:"enabled"`
}

type PumpRequest struct {
	Seconds int `json:"seconds" binding:"required"`
}

// DeviceView is a device with its live state
type DeviceView struct {
	models.Device
	Status      models.DeviceStatus `json:"status"`
	Available   bool                `json:"available"`
	PumpOn      *bool               `json:"pump_on,omitempty"`
	NextRun     string              `json:"next_run"`
	ActiveSlots int                 `json:"active_slots"`
}

// SlotView adds display fields to a schedule slot
type SlotView struct {
	models.ScheduleSlot
	Empty bool   `json:"empty"`
	Days  string `json:"days"`
}

type ScheduleResponse struct {
	DeviceID    string     `json:"device_id"`
	Slots       []SlotView `json:"slots"`
	ActiveSlots int        `json:"active_slots"`
}

type NextRunResponse struct {
	DeviceID  string     `json:"device_id"`
	NextRun   string     `json:"next_run"`
	Estimated *time.Time `json:"estimated,omitempty"`
}
