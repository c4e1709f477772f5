package utils

import "time"

// Application Constants
const (
	AppName    = "MedResponse"
	AppVersion = "1.0.0"

	// Geo
	EarthRadiusKM   = 6371.0
	AverageSpeedKMH = 50.0 // assumed ambulance speed for ETA estimates

	// Collections
	EmergenciesCollection = "emergencies"
	AmbulancesCollection  = "ambulances"

	// Live query limits, matching what the dashboards actually render
	PendingQueryLimit   = 50
	AdminQueryLimit     = 100
	HistoryQueryLimit   = 50
	UserRecentLimit     = 10
	CompletedTripsLimit = 20

	// Dashboard defaults
	DefaultStaleAfter      = 0 // merged entries never expire unless configured
	DefaultLookupTimeout   = 10 * time.Second
	AmbulanceCacheTTL      = 5 * time.Second
	GeocodeTimeout         = 10 * time.Second
	LocationFixMaxAge      = 2 * time.Minute
	NearbyIncidentRadiusKM = 25.0

	// ETA placeholders rendered when a numeric value is not available
	ETACalculating = "Calculating..."
	ETAUnknown     = "Unknown"
	ETAUnassigned  = "Pending assignment"

	// File upload
	MaxPhotoSize = 5 * 1024 * 1024 // 5MB
	PhotoPrefix  = "sos-photos"

	// Websocket rooms
	RoomHospital = "hospital"
	RoomPolice   = "police"
	RoomAdmin    = "admin"
	RoomUserFmt  = "user_%s"

	// Push topics
	TopicResponders = "responders"
)
