package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestEffectiveTime(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	t.Run("server timestamp wins", func(t *testing.T) {
		server := now.Add(-10 * time.Minute)
		e := &Emergency{
			Timestamp: &server,
			CreatedAt: now.Add(-1 * time.Hour).Format(time.RFC3339),
		}
		assert.Equal(t, server, e.EffectiveTime(now))
	})

	t.Run("client creation string is the fallback", func(t *testing.T) {
		created := now.Add(-30 * time.Minute)
		e := &Emergency{CreatedAt: created.Format(time.RFC3339)}
		assert.True(t, e.EffectiveTime(now).Equal(created))
	})

	t.Run("unparseable client string sorts as now", func(t *testing.T) {
		e := &Emergency{CreatedAt: "yesterday at noon"}
		assert.Equal(t, now, e.EffectiveTime(now))
	})

	t.Run("neither clock sorts as now", func(t *testing.T) {
		e := &Emergency{}
		assert.Equal(t, now, e.EffectiveTime(now))
	})

	t.Run("zero server timestamp is ignored", func(t *testing.T) {
		var zero time.Time
		created := now.Add(-5 * time.Minute)
		e := &Emergency{Timestamp: &zero, CreatedAt: created.Format(time.RFC3339)}
		assert.True(t, e.EffectiveTime(now).Equal(created))
	})
}

func TestStatusPredicates(t *testing.T) {
	t.Run("known covers the documented progression", func(t *testing.T) {
		for _, status := range StatusOrder {
			assert.True(t, status.Known(), string(status))
		}
		assert.False(t, EmergencyStatus("cancelled").Known())
	})

	t.Run("active statuses", func(t *testing.T) {
		assert.True(t, StatusPending.Active())
		assert.True(t, StatusEnRoute.Active())
		assert.False(t, StatusAdmitted.Active())
		assert.False(t, StatusCompleted.Active())
	})

	t.Run("ambulance assigned only mid-journey", func(t *testing.T) {
		assert.False(t, StatusPending.AmbulanceAssigned())
		assert.True(t, StatusAccepted.AmbulanceAssigned())
		assert.True(t, StatusAtHospital.AmbulanceAssigned())
		assert.False(t, StatusDischarged.AmbulanceAssigned())
	})
}

func TestAmbulanceID(t *testing.T) {
	e := &Emergency{}
	assert.Equal(t, "", e.AmbulanceID())

	e.Ambulance = &AmbulanceDetails{AmbulanceID: "amb-7"}
	assert.Equal(t, "amb-7", e.AmbulanceID())
}
