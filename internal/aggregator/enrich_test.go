package aggregator

import (
	"context"
	"errors"
	"testing"
	"time"

	"medresponse/internal/models"
	"medresponse/internal/store"
	"medresponse/pkg/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

type fakeAmbulanceReader struct {
	ambulances map[string]*models.Ambulance
	errors     map[string]error
}

func (f *fakeAmbulanceReader) GetAmbulance(_ context.Context, id string) (*models.Ambulance, error) {
	if err, ok := f.errors[id]; ok {
		return nil, err
	}
	if ambulance, ok := f.ambulances[id]; ok {
		return ambulance, nil
	}
	return nil, store.ErrNotFound
}

func assignedEmergency(ambulanceID string, lat, lng float64) *models.Emergency {
	now := time.Now()
	return &models.Emergency{
		ID:        primitive.NewObjectID(),
		Type:      models.EmergencyTypeSOS,
		Status:    models.StatusAccepted,
		Location:  models.NewLocation(lat, lng),
		Ambulance: &models.AmbulanceDetails{AmbulanceID: ambulanceID},
		Timestamp: &now,
	}
}

func movingAmbulance(id string, lat, lng float64) *models.Ambulance {
	location := models.NewLocation(lat, lng)
	return &models.Ambulance{
		ID:              id,
		Active:          true,
		CurrentLocation: &location,
	}
}

func TestEnrichComputesETA(t *testing.T) {
	reader := &fakeAmbulanceReader{
		ambulances: map[string]*models.Ambulance{
			// About 1 km away, so 2 minutes at the assumed speed.
			"amb-1": movingAmbulance("amb-1", 28.409, 77.0),
		},
	}
	enricher := NewEnricher(reader, logger.NewNop(), time.Second)

	result := enricher.Enrich(context.Background(), []*models.Emergency{
		assignedEmergency("amb-1", 28.4, 77.0),
	})

	require.Len(t, result, 1)
	assert.Equal(t, "2 mins", result[0].ETA)
	assert.Equal(t, 2, result[0].ETAMinutes)
	assert.InDelta(t, 1.0, result[0].DistanceKM, 0.05)
	require.NotNil(t, result[0].AmbulanceStatus)
	assert.Equal(t, "amb-1", result[0].AmbulanceStatus.ID)
}

func TestEnrichPreservesOrderAndIsolatesFailures(t *testing.T) {
	reader := &fakeAmbulanceReader{
		ambulances: map[string]*models.Ambulance{
			"amb-ok": movingAmbulance("amb-ok", 28.41, 77.0),
		},
		errors: map[string]error{
			"amb-bad": errors.New("store unavailable"),
		},
	}
	enricher := NewEnricher(reader, logger.NewNop(), time.Second)

	first := assignedEmergency("amb-ok", 28.4, 77.0)
	second := assignedEmergency("amb-bad", 28.4, 77.0)
	third := assignedEmergency("amb-ok", 28.4, 77.0)

	result := enricher.Enrich(context.Background(), []*models.Emergency{first, second, third})

	require.Len(t, result, 3, "output cardinality matches input")
	assert.Equal(t, first.ID, result[0].Emergency.ID)
	assert.Equal(t, second.ID, result[1].Emergency.ID)
	assert.Equal(t, third.ID, result[2].Emergency.ID)

	assert.NotEqual(t, "Unknown", result[0].ETA)
	assert.Equal(t, "Unknown", result[1].ETA, "one failed lookup degrades only that record")
	assert.NotEqual(t, "Unknown", result[2].ETA)
}

func TestEnrichMissingAmbulanceRecord(t *testing.T) {
	reader := &fakeAmbulanceReader{}
	enricher := NewEnricher(reader, logger.NewNop(), time.Second)

	result := enricher.Enrich(context.Background(), []*models.Emergency{
		assignedEmergency("amb-ghost", 28.4, 77.0),
	})

	require.Len(t, result, 1)
	assert.Equal(t, "Calculating...", result[0].ETA, "assignment can precede the vehicle record")
	assert.Nil(t, result[0].AmbulanceStatus)
}

func TestEnrichAmbulanceWithoutFix(t *testing.T) {
	reader := &fakeAmbulanceReader{
		ambulances: map[string]*models.Ambulance{
			"amb-nofix": {ID: "amb-nofix", Active: true},
		},
	}
	enricher := NewEnricher(reader, logger.NewNop(), time.Second)

	result := enricher.Enrich(context.Background(), []*models.Emergency{
		assignedEmergency("amb-nofix", 28.4, 77.0),
	})

	require.Len(t, result, 1)
	assert.Equal(t, "Calculating...", result[0].ETA)
	assert.Zero(t, result[0].ETAMinutes)
}

func TestEnrichUnassignedEmergency(t *testing.T) {
	enricher := NewEnricher(&fakeAmbulanceReader{}, logger.NewNop(), time.Second)

	now := time.Now()
	pending := &models.Emergency{
		ID:        primitive.NewObjectID(),
		Type:      models.EmergencyTypeSOS,
		Status:    models.StatusPending,
		Location:  models.NewLocation(28.4, 77.0),
		Timestamp: &now,
	}

	result := enricher.Enrich(context.Background(), []*models.Emergency{pending})

	require.Len(t, result, 1)
	assert.Equal(t, "Pending assignment", result[0].ETA)
}

func TestEnrichEmptyBatch(t *testing.T) {
	enricher := NewEnricher(&fakeAmbulanceReader{}, logger.NewNop(), time.Second)
	assert.Empty(t, enricher.Enrich(context.Background(), nil))
}
