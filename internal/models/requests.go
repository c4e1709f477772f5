package models

import (
	"io"
)

// SOSRequest is a one-tap emergency: a coordinate and an optional evidence
// photo captured on the requester's device.
type SOSRequest struct {
	Latitude  float64 `json:"latitude" validate:"min=-90,max=90"`
	Longitude float64 `json:"longitude" validate:"min=-180,max=180"`
	Address   string  `json:"address,omitempty"`
	UserID    string  `json:"user_id"`
	UserEmail string  `json:"user_email,omitempty"`
	CreatedAt string  `json:"created_at,omitempty"`

	Photo            io.Reader `json:"-"`
	PhotoName        string    `json:"-"`
	PhotoContentType string    `json:"-"`
	PhotoSize        int64     `json:"-"`
}

// BookingRequest schedules an ambulance for a known pickup.
type BookingRequest struct {
	Latitude      float64      `json:"latitude" validate:"min=-90,max=90"`
	Longitude     float64      `json:"longitude" validate:"min=-180,max=180"`
	Pickup        string       `json:"pickup" validate:"required"`
	Destination   string       `json:"destination,omitempty"`
	Category      string       `json:"category" validate:"required"`
	AmbulanceType string       `json:"ambulance_type,omitempty"`
	Patient       *PatientInfo `json:"patient,omitempty"`
	UserID        string       `json:"user_id"`
	UserEmail     string       `json:"user_email,omitempty"`
	CreatedAt     string       `json:"created_at,omitempty"`
}

// AcceptRequest is a driver taking a pending emergency.
type AcceptRequest struct {
	Driver    DriverInfo       `json:"driver" validate:"required"`
	Ambulance AmbulanceDetails `json:"ambulance" validate:"required"`
}

// LocationUpdateRequest is a vehicle GPS ping.
type LocationUpdateRequest struct {
	Latitude  float64 `json:"latitude" validate:"min=-90,max=90"`
	Longitude float64 `json:"longitude" validate:"min=-180,max=180"`
	Accuracy  float64 `json:"accuracy,omitempty"`
}

// StatusUpdateRequest moves an emergency along its progression.
type StatusUpdateRequest struct {
	Status EmergencyStatus        `json:"status" validate:"required,emergency_status"`
	Extra  map[string]interface{} `json:"extra,omitempty"`
}
