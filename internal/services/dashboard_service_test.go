package services

import (
	"bytes"
	"context"
	"testing"
	"time"

	"medresponse/internal/aggregator"
	"medresponse/internal/models"
	"medresponse/internal/store"
	"medresponse/internal/utils"
	"medresponse/pkg/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// fakeLiveStore implements store.LiveStore in memory. Emergency
// subscriptions are recorded in creation order so tests can push snapshots;
// ambulance subscriptions are keyed by vehicle id with dispose counters.
type fakeLiveStore struct {
	emergencySubs []*fakeEmergencySub
	ambulanceSubs map[string]*fakeAmbulanceSub
	ambulances    map[string]*models.Ambulance
	emergencies   map[primitive.ObjectID]*models.Emergency
	findResults   map[models.EmergencyStatus][]*models.Emergency
	fleetSnapshot func([]*models.Ambulance)

	created []*models.Emergency
	updates map[primitive.ObjectID]map[string]interface{}
}

type fakeEmergencySub struct {
	query      store.EmergencyQuery
	onSnapshot func([]*models.Emergency)
	disposed   int
}

type fakeAmbulanceSub struct {
	onSnapshot func(*models.Ambulance)
	disposed   int
}

func newFakeLiveStore() *fakeLiveStore {
	return &fakeLiveStore{
		ambulanceSubs: make(map[string]*fakeAmbulanceSub),
		ambulances:    make(map[string]*models.Ambulance),
		emergencies:   make(map[primitive.ObjectID]*models.Emergency),
		findResults:   make(map[models.EmergencyStatus][]*models.Emergency),
		updates:       make(map[primitive.ObjectID]map[string]interface{}),
	}
}

func (f *fakeLiveStore) SubscribeEmergencies(_ context.Context, q store.EmergencyQuery, onSnapshot func([]*models.Emergency), _ func(error)) (store.UnsubscribeFunc, error) {
	sub := &fakeEmergencySub{query: q, onSnapshot: onSnapshot}
	f.emergencySubs = append(f.emergencySubs, sub)
	return func() { sub.disposed++ }, nil
}

func (f *fakeLiveStore) SubscribeAmbulance(_ context.Context, id string, onSnapshot func(*models.Ambulance), _ func(error)) (store.UnsubscribeFunc, error) {
	sub := &fakeAmbulanceSub{onSnapshot: onSnapshot}
	f.ambulanceSubs[id] = sub
	return func() { sub.disposed++ }, nil
}

func (f *fakeLiveStore) SubscribeActiveAmbulances(_ context.Context, onSnapshot func([]*models.Ambulance), _ func(error)) (store.UnsubscribeFunc, error) {
	f.fleetSnapshot = onSnapshot
	return func() {}, nil
}

func (f *fakeLiveStore) ListActiveAmbulances(_ context.Context) ([]*models.Ambulance, error) {
	fleet := make([]*models.Ambulance, 0, len(f.ambulances))
	for _, ambulance := range f.ambulances {
		if ambulance.Active {
			fleet = append(fleet, ambulance)
		}
	}
	return fleet, nil
}

func (f *fakeLiveStore) GetAmbulance(_ context.Context, id string) (*models.Ambulance, error) {
	if ambulance, ok := f.ambulances[id]; ok {
		return ambulance, nil
	}
	return nil, store.ErrNotFound
}

func (f *fakeLiveStore) GetEmergency(_ context.Context, id primitive.ObjectID) (*models.Emergency, error) {
	if emergency, ok := f.emergencies[id]; ok {
		return emergency, nil
	}
	return nil, store.ErrNotFound
}

func (f *fakeLiveStore) FindEmergencies(_ context.Context, q store.EmergencyQuery) ([]*models.Emergency, error) {
	return f.findResults[q.Status], nil
}

func (f *fakeLiveStore) CreateEmergency(_ context.Context, emergency *models.Emergency) (primitive.ObjectID, error) {
	if emergency.ID.IsZero() {
		emergency.ID = primitive.NewObjectID()
	}
	f.created = append(f.created, emergency)
	f.emergencies[emergency.ID] = emergency
	return emergency.ID, nil
}

func (f *fakeLiveStore) UpdateEmergency(_ context.Context, id primitive.ObjectID, updates map[string]interface{}) error {
	f.updates[id] = updates
	return nil
}

func (f *fakeLiveStore) UpdateAmbulanceLocation(_ context.Context, _ string, _ models.Location) error {
	return nil
}

func newTestDashboardService(liveStore store.LiveStore) *DashboardService {
	log := logger.NewNop()
	agg := aggregator.NewAggregator(liveStore, log, aggregator.Config{})
	enricher := aggregator.NewEnricher(ambulanceReaderFrom(liveStore), log, time.Second)
	return NewDashboardService(agg, enricher, liveStore, nil, log)
}

func ambulanceReaderFrom(liveStore store.LiveStore) aggregator.AmbulanceReader {
	return NewCachedAmbulanceReader(liveStore, nil, time.Second, logger.NewNop())
}

func emergencyWith(status models.EmergencyStatus, at time.Time) *models.Emergency {
	return &models.Emergency{
		ID:        primitive.NewObjectID(),
		Type:      models.EmergencyTypeSOS,
		Status:    status,
		Location:  models.NewLocation(28.4, 77.0),
		Timestamp: &at,
	}
}

func TestSubscribeHospitalView(t *testing.T) {
	liveStore := newFakeLiveStore()
	service := newTestDashboardService(liveStore)

	var view *HospitalView
	unsubscribe, err := service.SubscribeHospitalView(context.Background(),
		func(v *HospitalView) { view = v }, nil)
	require.NoError(t, err)
	defer unsubscribe()

	require.Len(t, liveStore.emergencySubs, 6, "one live query per contributing status")

	now := time.Now()
	pending := emergencyWith(models.StatusPending, now)
	liveStore.emergencySubs[0].onSnapshot([]*models.Emergency{pending})

	require.NotNil(t, view)
	require.Len(t, view.Columns, 5)
	assert.Equal(t, aggregator.BucketDispatched, view.Columns[0].Bucket)
	require.Len(t, view.Columns[0].Cases, 1)
	assert.Equal(t, pending.ID, view.Columns[0].Cases[0].Emergency.ID)

	for _, column := range view.Columns[1:] {
		assert.Empty(t, column.Cases)
	}
}

func TestSubscribeHospitalViewSurvivesStatusMigration(t *testing.T) {
	liveStore := newFakeLiveStore()
	service := newTestDashboardService(liveStore)

	var view *HospitalView
	unsubscribe, err := service.SubscribeHospitalView(context.Background(),
		func(v *HospitalView) { view = v }, nil)
	require.NoError(t, err)
	defer unsubscribe()

	now := time.Now()
	record := emergencyWith(models.StatusPending, now)
	liveStore.emergencySubs[0].onSnapshot([]*models.Emergency{record})

	// The case is accepted: the pending query drops it, the accepted query
	// picks it up. It must move columns, not duplicate or vanish.
	accepted := *record
	accepted.Status = models.StatusAccepted
	liveStore.emergencySubs[0].onSnapshot([]*models.Emergency{})
	liveStore.emergencySubs[1].onSnapshot([]*models.Emergency{&accepted})

	total := 0
	for _, column := range view.Columns {
		total += len(column.Cases)
	}
	assert.Equal(t, 1, total)
	assert.Len(t, view.Columns[0].Cases, 1, "accepted still renders in dispatched")
	assert.Equal(t, models.StatusAccepted, view.Columns[0].Cases[0].Status)
}

func TestSubscribePoliceViewFiltersClosed(t *testing.T) {
	liveStore := newFakeLiveStore()
	service := newTestDashboardService(liveStore)

	var view *PoliceView
	unsubscribe, err := service.SubscribePoliceView(context.Background(), PoliceViewOptions{},
		func(v *PoliceView) { view = v }, nil)
	require.NoError(t, err)
	defer unsubscribe()

	require.Len(t, liveStore.emergencySubs, 1)

	now := time.Now()
	open := emergencyWith(models.StatusPending, now)
	responding := emergencyWith(models.StatusAccepted, now.Add(-time.Minute))
	closed := emergencyWith(models.StatusAtHospital, now.Add(-2*time.Minute))

	liveStore.emergencySubs[0].onSnapshot([]*models.Emergency{open, responding, closed})

	require.NotNil(t, view)
	require.Len(t, view.Incidents, 2, "closed incidents are filtered out")
	assert.Equal(t, aggregator.BucketOpen, view.Incidents[0].Bucket)
	assert.Equal(t, aggregator.BucketResponding, view.Incidents[1].Bucket)
	assert.Equal(t, "critical", view.Incidents[0].Urgency)
}

func TestSubscribePoliceViewRadiusFilter(t *testing.T) {
	liveStore := newFakeLiveStore()
	service := newTestDashboardService(liveStore)

	center := emergencyWith(models.StatusPending, time.Now())
	far := emergencyWith(models.StatusPending, time.Now())
	far.Location = models.NewLocation(29.4, 77.0) // ~111 km north

	var view *PoliceView
	unsubscribe, err := service.SubscribePoliceView(context.Background(), PoliceViewOptions{
		Center:   &utils.Point{Lat: 28.4, Lng: 77.0},
		RadiusKM: 25,
	}, func(v *PoliceView) { view = v }, nil)
	require.NoError(t, err)
	defer unsubscribe()

	liveStore.emergencySubs[0].onSnapshot([]*models.Emergency{center, far})

	require.NotNil(t, view)
	require.Len(t, view.Incidents, 1)
	assert.Equal(t, center.ID, view.Incidents[0].Emergency.ID)
}

func TestSubscribeUserView(t *testing.T) {
	liveStore := newFakeLiveStore()
	service := newTestDashboardService(liveStore)

	var view *UserView
	unsubscribe, err := service.SubscribeUserView(context.Background(), "user-1",
		func(v *UserView) { view = v }, nil)
	require.NoError(t, err)

	require.Len(t, liveStore.emergencySubs, 1)
	assert.Equal(t, "user-1", liveStore.emergencySubs[0].query.UserID)

	now := time.Now()
	completed := emergencyWith(models.StatusCompleted, now)
	active := emergencyWith(models.StatusAccepted, now.Add(-time.Minute))
	active.Ambulance = &models.AmbulanceDetails{AmbulanceID: "amb-1"}

	liveStore.emergencySubs[0].onSnapshot([]*models.Emergency{completed, active})

	require.NotNil(t, view)
	require.NotNil(t, view.Active, "the most recent active case is picked")
	assert.Equal(t, active.ID, view.Active.Emergency.ID)

	// The assignment opened a tracking subscription for the vehicle.
	sub, ok := liveStore.ambulanceSubs["amb-1"]
	require.True(t, ok)

	location := models.NewLocation(28.41, 77.0)
	sub.onSnapshot(&models.Ambulance{ID: "amb-1", Active: true, CurrentLocation: &location})
	require.NotNil(t, view.Ambulance)
	assert.Equal(t, "amb-1", view.Ambulance.ID)

	unsubscribe()
	assert.Equal(t, 1, liveStore.emergencySubs[0].disposed)
	assert.Equal(t, 1, sub.disposed, "teardown disposes the tracking listener")
}

func TestSubscribeUserViewRetargetsAmbulance(t *testing.T) {
	liveStore := newFakeLiveStore()
	service := newTestDashboardService(liveStore)

	unsubscribe, err := service.SubscribeUserView(context.Background(), "user-1",
		func(*UserView) {}, nil)
	require.NoError(t, err)
	defer unsubscribe()

	now := time.Now()
	first := emergencyWith(models.StatusAccepted, now)
	first.Ambulance = &models.AmbulanceDetails{AmbulanceID: "amb-1"}
	liveStore.emergencySubs[0].onSnapshot([]*models.Emergency{first})

	firstSub, ok := liveStore.ambulanceSubs["amb-1"]
	require.True(t, ok)

	// A newer emergency supersedes the first with a different vehicle. The
	// old listener must be disposed before the new one attaches.
	second := emergencyWith(models.StatusAccepted, now.Add(time.Minute))
	second.Ambulance = &models.AmbulanceDetails{AmbulanceID: "amb-2"}
	liveStore.emergencySubs[0].onSnapshot([]*models.Emergency{second, first})

	assert.Equal(t, 1, firstSub.disposed, "stale tracking listener disposed on retarget")
	_, ok = liveStore.ambulanceSubs["amb-2"]
	assert.True(t, ok)
}

func TestSubscribeUserViewNoActiveEmergency(t *testing.T) {
	liveStore := newFakeLiveStore()
	service := newTestDashboardService(liveStore)

	var view *UserView
	unsubscribe, err := service.SubscribeUserView(context.Background(), "user-1",
		func(v *UserView) { view = v }, nil)
	require.NoError(t, err)
	defer unsubscribe()

	liveStore.emergencySubs[0].onSnapshot([]*models.Emergency{
		emergencyWith(models.StatusCompleted, time.Now()),
	})

	require.NotNil(t, view)
	assert.Nil(t, view.Active)
	assert.Nil(t, view.Ambulance)
	assert.Empty(t, liveStore.ambulanceSubs)
}

func TestSubscribeAdminView(t *testing.T) {
	liveStore := newFakeLiveStore()
	service := newTestDashboardService(liveStore)

	var view *AdminView
	unsubscribe, err := service.SubscribeAdminView(context.Background(),
		func(v *AdminView) { view = v }, nil)
	require.NoError(t, err)

	require.Len(t, liveStore.emergencySubs, 1)
	require.NotNil(t, liveStore.fleetSnapshot)

	liveStore.emergencySubs[0].onSnapshot([]*models.Emergency{
		emergencyWith(models.StatusPending, time.Now()),
	})
	require.NotNil(t, view)
	assert.Len(t, view.Emergencies, 1)

	location := models.NewLocation(28.4, 77.0)
	liveStore.fleetSnapshot([]*models.Ambulance{
		{ID: "amb-1", Active: true, CurrentLocation: &location},
	})
	assert.Len(t, view.Ambulances, 1)
	assert.Len(t, view.Emergencies, 1, "fleet updates keep the emergency slice")

	unsubscribe()
	unsubscribe()
	assert.Equal(t, 1, liveStore.emergencySubs[0].disposed, "dispose is idempotent")
}

func TestSubscribeViewLogsLifecycleEvents(t *testing.T) {
	log, err := logger.NewLogger(&logger.Config{Level: "debug", Format: "json"})
	require.NoError(t, err)
	var buf bytes.Buffer
	log.SetOutput(&buf)

	liveStore := newFakeLiveStore()
	agg := aggregator.NewAggregator(liveStore, log, aggregator.Config{})
	enricher := aggregator.NewEnricher(ambulanceReaderFrom(liveStore), log, time.Second)
	service := NewDashboardService(agg, enricher, liveStore, nil, log)

	unsubscribe, err := service.SubscribeHospitalView(context.Background(), func(*HospitalView) {}, nil)
	require.NoError(t, err)
	assert.Contains(t, buf.String(), `"type":"subscription_event"`)
	assert.Contains(t, buf.String(), `"event":"opened"`)
	assert.Contains(t, buf.String(), `"view":"hospital"`)

	buf.Reset()
	unsubscribe()
	assert.Contains(t, buf.String(), `"event":"closed"`)
}
