package models

import (
	"time"
)

// Ambulance is a live vehicle. Created at driver onboarding, its location is
// rewritten continuously while on a ride and read by every dashboard to
// compute ETAs and place map markers.
type Ambulance struct {
	ID              string    `json:"id" bson:"_id"`
	Active          bool      `json:"active" bson:"active"`
	DriverID        string    `json:"driver_id" bson:"driver_id"`
	DriverName      string    `json:"driver_name,omitempty" bson:"driver_name,omitempty"`
	DriverPhone     string    `json:"driver_phone,omitempty" bson:"driver_phone,omitempty"`
	VehicleNumber   string    `json:"vehicle_number" bson:"vehicle_number"`
	CurrentLocation *Location `json:"current_location,omitempty" bson:"current_location,omitempty"`
	LastUpdated     time.Time `json:"last_updated" bson:"last_updated"`
}

// HasFix reports whether the vehicle has reported at least one usable
// position. A freshly onboarded ambulance has none; that is an expected
// transient state, not an error.
func (a *Ambulance) HasFix() bool {
	return a != nil && a.CurrentLocation != nil && a.CurrentLocation.HasFix()
}
