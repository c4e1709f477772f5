package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type EmergencyType string
type EmergencyStatus string

const (
	EmergencyTypeSOS     EmergencyType = "SOS"
	EmergencyTypeBooking EmergencyType = "Ambulance"

	StatusPending    EmergencyStatus = "pending"
	StatusAccepted   EmergencyStatus = "accepted"
	StatusEnRoute    EmergencyStatus = "enRoute"
	StatusArrived    EmergencyStatus = "arrived"
	StatusPickedUp   EmergencyStatus = "pickedUp"
	StatusAtHospital EmergencyStatus = "atHospital"
	StatusAdmitted   EmergencyStatus = "admitted"
	StatusDischarged EmergencyStatus = "discharged"
	StatusCompleted  EmergencyStatus = "completed"
)

// StatusOrder lists the documented status progression. Transitions are not
// enforced server-side; the aggregator must tolerate repeats and reordering.
var StatusOrder = []EmergencyStatus{
	StatusPending,
	StatusAccepted,
	StatusEnRoute,
	StatusArrived,
	StatusPickedUp,
	StatusAtHospital,
	StatusAdmitted,
	StatusDischarged,
	StatusCompleted,
}

// ActiveStatuses are the statuses a live dashboard cares about.
var ActiveStatuses = []EmergencyStatus{
	StatusPending,
	StatusAccepted,
	StatusEnRoute,
	StatusArrived,
}

func (s EmergencyStatus) Known() bool {
	for _, k := range StatusOrder {
		if s == k {
			return true
		}
	}
	return false
}

func (s EmergencyStatus) Active() bool {
	for _, a := range ActiveStatuses {
		if s == a {
			return true
		}
	}
	return false
}

// AmbulanceAssigned reports whether the status implies a vehicle is on the
// job, so an ambulance lookup makes sense.
func (s EmergencyStatus) AmbulanceAssigned() bool {
	switch s {
	case StatusAccepted, StatusEnRoute, StatusArrived, StatusPickedUp, StatusAtHospital:
		return true
	}
	return false
}

type DriverInfo struct {
	DriverID      string `json:"driver_id" bson:"driver_id"`
	Name          string `json:"name" bson:"name"`
	Phone         string `json:"phone" bson:"phone" validate:"omitempty,phone_number"`
	VehicleNumber string `json:"vehicle_number" bson:"vehicle_number"`
}

type AmbulanceDetails struct {
	AmbulanceID   string `json:"ambulance_id" bson:"ambulance_id"`
	VehicleNumber string `json:"vehicle_number" bson:"vehicle_number"`
	AmbulanceType string `json:"ambulance_type,omitempty" bson:"ambulance_type,omitempty"`
}

type PatientInfo struct {
	Name  string `json:"name,omitempty" bson:"name,omitempty"`
	Age   int    `json:"age,omitempty" bson:"age,omitempty"`
	Notes string `json:"notes,omitempty" bson:"notes,omitempty"`
}

type Emergency struct {
	ID        primitive.ObjectID `json:"id" bson:"_id,omitempty"`
	Type      EmergencyType      `json:"type" bson:"type" validate:"required"`
	Category  string             `json:"category,omitempty" bson:"category,omitempty"`
	Status    EmergencyStatus    `json:"status" bson:"status" default:"pending"`
	Location  Location           `json:"location" bson:"location" validate:"required"`
	PhotoURL  string             `json:"photo_url,omitempty" bson:"photo_url,omitempty"`
	UserID    string             `json:"user_id" bson:"user_id"`
	UserEmail string             `json:"user_email,omitempty" bson:"user_email,omitempty"`
	Patient   *PatientInfo       `json:"patient,omitempty" bson:"patient,omitempty"`
	Driver    *DriverInfo        `json:"driver,omitempty" bson:"driver,omitempty"`
	Ambulance *AmbulanceDetails  `json:"ambulance,omitempty" bson:"ambulance,omitempty"`

	// Timestamp is assigned by the store on insert. CreatedAt is the
	// requester's clock, an RFC3339 string, kept because the server value
	// can lag the first snapshot delivery.
	Timestamp  *time.Time `json:"timestamp,omitempty" bson:"timestamp,omitempty"`
	CreatedAt  string     `json:"created_at,omitempty" bson:"created_at,omitempty"`
	AcceptedAt *time.Time `json:"accepted_at,omitempty" bson:"accepted_at,omitempty"`
	UpdatedAt  time.Time  `json:"updated_at" bson:"updated_at"`
}

// EffectiveTime reconciles the two clock sources: the server-assigned
// timestamp wins, the client creation string is the fallback, and records
// carrying neither sort as if observed now.
func (e *Emergency) EffectiveTime(now time.Time) time.Time {
	if e.Timestamp != nil && !e.Timestamp.IsZero() {
		return *e.Timestamp
	}
	if e.CreatedAt != "" {
		if t, err := time.Parse(time.RFC3339, e.CreatedAt); err == nil {
			return t
		}
	}
	return now
}

// AmbulanceID returns the assigned vehicle reference, empty until accepted.
func (e *Emergency) AmbulanceID() string {
	if e.Ambulance != nil {
		return e.Ambulance.AmbulanceID
	}
	return ""
}
