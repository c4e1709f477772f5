package models

import (
	"fmt"
	"time"
)

// Location is the normalized coordinate shape used everywhere inside the
// service. The store adapter converts whatever shape a record arrives in
// (nested geopoint, flat lat/lng) into this one.
type Location struct {
	Type        string    `json:"type" bson:"type" default:"Point"`
	Coordinates []float64 `json:"coordinates" bson:"coordinates" validate:"required,len=2"`
	Address     string    `json:"address,omitempty" bson:"address,omitempty"`
	Pickup      string    `json:"pickup,omitempty" bson:"pickup,omitempty"`
	Destination string    `json:"destination,omitempty" bson:"destination,omitempty"`
	Accuracy    float64   `json:"accuracy,omitempty" bson:"accuracy,omitempty"`
	Timestamp   time.Time `json:"timestamp,omitempty" bson:"timestamp,omitempty"`
}

// NewLocation builds a GeoJSON point. Coordinates are stored [lng, lat].
func NewLocation(lat, lng float64) Location {
	return Location{
		Type:        "Point",
		Coordinates: []float64{lng, lat},
	}
}

func (l Location) Latitude() float64 {
	if len(l.Coordinates) >= 2 {
		return l.Coordinates[1]
	}
	return 0
}

func (l Location) Longitude() float64 {
	if len(l.Coordinates) >= 1 {
		return l.Coordinates[0]
	}
	return 0
}

// HasFix reports whether the location carries a usable coordinate pair.
func (l Location) HasFix() bool {
	return len(l.Coordinates) == 2
}

// DisplayAddress returns the human-readable address, falling back to raw
// coordinates when reverse geocoding never ran or failed.
func (l Location) DisplayAddress() string {
	if l.Address != "" {
		return l.Address
	}
	if !l.HasFix() {
		return ""
	}
	return fmt.Sprintf("%.6f, %.6f", l.Latitude(), l.Longitude())
}
