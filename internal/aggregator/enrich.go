package aggregator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"medresponse/internal/models"
	"medresponse/internal/store"
	"medresponse/internal/utils"
	"medresponse/pkg/logger"
)

// AmbulanceReader is a point read against the live store. Implementations
// may cache; the read is a snapshot, not a subscription.
type AmbulanceReader interface {
	GetAmbulance(ctx context.Context, id string) (*models.Ambulance, error)
}

// EnrichedEmergency is an emergency record with its live ambulance state and
// a display ETA attached. ETA is one of "<n> mins", or a placeholder when no
// numeric value exists yet.
type EnrichedEmergency struct {
	*models.Emergency
	AmbulanceStatus *models.Ambulance `json:"ambulance_status,omitempty"`
	ETA             string            `json:"eta"`
	ETAMinutes      int               `json:"eta_minutes,omitempty"`
	DistanceKM      float64           `json:"distance_km,omitempty"`
	// BearingDeg is the heading from the ambulance towards the emergency,
	// used for map marker rotation.
	BearingDeg float64 `json:"bearing_deg,omitempty"`
}

// Enricher attaches derived fields to emergency batches.
type Enricher struct {
	ambulances    AmbulanceReader
	log           *logger.Logger
	lookupTimeout time.Duration
}

func NewEnricher(ambulances AmbulanceReader, log *logger.Logger, lookupTimeout time.Duration) *Enricher {
	if lookupTimeout <= 0 {
		lookupTimeout = utils.DefaultLookupTimeout
	}
	return &Enricher{
		ambulances:    ambulances,
		log:           log,
		lookupTimeout: lookupTimeout,
	}
}

// Enrich looks up the assigned ambulance for every record that has one and
// computes its ETA. Lookups run concurrently; the batch returns once every
// lookup has settled. Output cardinality and ordering always match the
// input, and one failed lookup degrades that record to "Unknown" without
// failing the rest.
func (e *Enricher) Enrich(ctx context.Context, emergencies []*models.Emergency) []EnrichedEmergency {
	enriched := make([]EnrichedEmergency, len(emergencies))

	var wg sync.WaitGroup
	for i, emergency := range emergencies {
		enriched[i] = EnrichedEmergency{Emergency: emergency}

		if !emergency.Status.AmbulanceAssigned() || emergency.AmbulanceID() == "" {
			enriched[i].ETA = utils.ETAUnassigned
			continue
		}

		wg.Add(1)
		go func(i int, emergency *models.Emergency) {
			defer wg.Done()
			enriched[i] = e.enrichOne(ctx, emergency)
		}(i, emergency)
	}
	wg.Wait()

	return enriched
}

func (e *Enricher) enrichOne(ctx context.Context, emergency *models.Emergency) EnrichedEmergency {
	result := EnrichedEmergency{Emergency: emergency}

	lookupCtx, cancel := context.WithTimeout(ctx, e.lookupTimeout)
	defer cancel()

	ambulance, err := e.ambulances.GetAmbulance(lookupCtx, emergency.AmbulanceID())
	if errors.Is(err, store.ErrNotFound) {
		// Assignment written before the vehicle record appeared.
		result.ETA = utils.ETACalculating
		return result
	}
	if err != nil {
		e.log.WithError(err).WithAmbulanceID(emergency.AmbulanceID()).Warn("Ambulance lookup failed")
		result.ETA = utils.ETAUnknown
		return result
	}

	result.AmbulanceStatus = ambulance
	if !ambulance.HasFix() || !emergency.Location.HasFix() {
		// The vehicle has not reported its first position fix yet. This is
		// an expected transient state, not an error.
		result.ETA = utils.ETACalculating
		return result
	}

	distance := utils.CalculateDistance(
		emergency.Location.Latitude(), emergency.Location.Longitude(),
		ambulance.CurrentLocation.Latitude(), ambulance.CurrentLocation.Longitude(),
	)
	minutes := utils.EstimateETAMinutes(distance)

	result.DistanceKM = distance
	result.ETAMinutes = minutes
	result.ETA = fmt.Sprintf("%d mins", minutes)
	result.BearingDeg = utils.CalculateBearing(
		ambulance.CurrentLocation.Latitude(), ambulance.CurrentLocation.Longitude(),
		emergency.Location.Latitude(), emergency.Location.Longitude(),
	)
	return result
}
