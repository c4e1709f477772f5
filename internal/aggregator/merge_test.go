package aggregator

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"medresponse/internal/models"
	"medresponse/internal/store"
	"medresponse/pkg/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// fakeSource records query subscriptions and lets the test push snapshots
// and errors into them.
type fakeSource struct {
	subs         []*fakeSubscription
	failOnQuery  int
	disposeCount int
}

type fakeSubscription struct {
	query      store.EmergencyQuery
	onSnapshot func([]*models.Emergency)
	onError    func(error)
}

func (f *fakeSource) SubscribeEmergencies(_ context.Context, q store.EmergencyQuery, onSnapshot func([]*models.Emergency), onError func(error)) (store.UnsubscribeFunc, error) {
	if f.failOnQuery > 0 && len(f.subs)+1 == f.failOnQuery {
		return nil, errors.New("subscription refused")
	}
	sub := &fakeSubscription{query: q, onSnapshot: onSnapshot, onError: onError}
	f.subs = append(f.subs, sub)
	return func() { f.disposeCount++ }, nil
}

func emergencyAt(id primitive.ObjectID, status models.EmergencyStatus, at time.Time) *models.Emergency {
	return &models.Emergency{
		ID:        id,
		Type:      models.EmergencyTypeSOS,
		Status:    status,
		Timestamp: &at,
	}
}

func newTestAggregator(source EmergencySource, config Config) *Aggregator {
	return NewAggregator(source, logger.NewNop(), config)
}

func TestSubscribeMergedZeroQueries(t *testing.T) {
	agg := newTestAggregator(&fakeSource{}, Config{})

	var got []*models.Emergency
	called := false
	unsubscribe, err := agg.SubscribeMerged(context.Background(), nil,
		func(merged []*models.Emergency) {
			called = true
			got = merged
		}, nil)

	require.NoError(t, err)
	assert.True(t, called, "zero queries still emit one empty snapshot")
	assert.Empty(t, got)
	assert.NotPanics(t, func() { unsubscribe() })
}

func TestSubscribeMergedUnion(t *testing.T) {
	source := &fakeSource{}
	agg := newTestAggregator(source, Config{})
	now := time.Now()

	var got []*models.Emergency
	_, err := agg.SubscribeMerged(context.Background(),
		[]store.EmergencyQuery{
			{Status: models.StatusPending},
			{Status: models.StatusAccepted},
		},
		func(merged []*models.Emergency) { got = merged },
		nil,
	)
	require.NoError(t, err)
	require.Len(t, source.subs, 2)

	older := primitive.NewObjectID()
	newer := primitive.NewObjectID()

	source.subs[0].onSnapshot([]*models.Emergency{
		emergencyAt(older, models.StatusPending, now.Add(-10*time.Minute)),
	})
	require.Len(t, got, 1)

	source.subs[1].onSnapshot([]*models.Emergency{
		emergencyAt(newer, models.StatusAccepted, now.Add(-1*time.Minute)),
	})
	require.Len(t, got, 2)
	assert.Equal(t, newer, got[0].ID, "most recent first")
	assert.Equal(t, older, got[1].ID)
}

func TestSubscribeMergedDuplicateLastWriteWins(t *testing.T) {
	source := &fakeSource{}
	agg := newTestAggregator(source, Config{})
	now := time.Now()

	var got []*models.Emergency
	_, err := agg.SubscribeMerged(context.Background(),
		[]store.EmergencyQuery{
			{Status: models.StatusPending},
			{Type: models.EmergencyTypeSOS},
		},
		func(merged []*models.Emergency) { got = merged },
		nil,
	)
	require.NoError(t, err)

	id := primitive.NewObjectID()
	source.subs[0].onSnapshot([]*models.Emergency{
		emergencyAt(id, models.StatusPending, now),
	})
	source.subs[1].onSnapshot([]*models.Emergency{
		emergencyAt(id, models.StatusAccepted, now),
	})

	require.Len(t, got, 1, "same id from two queries merges into one record")
	assert.Equal(t, models.StatusAccepted, got[0].Status, "the later snapshot wins")
}

func TestSubscribeMergedAbsenceNeverDeletes(t *testing.T) {
	source := &fakeSource{}
	agg := newTestAggregator(source, Config{})
	now := time.Now()

	var got []*models.Emergency
	_, err := agg.SubscribeMerged(context.Background(),
		[]store.EmergencyQuery{{Status: models.StatusPending}},
		func(merged []*models.Emergency) { got = merged },
		nil,
	)
	require.NoError(t, err)

	id := primitive.NewObjectID()
	source.subs[0].onSnapshot([]*models.Emergency{
		emergencyAt(id, models.StatusPending, now),
	})
	require.Len(t, got, 1)

	// The record moved on to another status, so the pending query stops
	// reporting it. It stays in the merged view.
	source.subs[0].onSnapshot([]*models.Emergency{})
	assert.Len(t, got, 1)
	assert.Equal(t, id, got[0].ID)
}

func TestSubscribeMergedStaleAfterPrunes(t *testing.T) {
	source := &fakeSource{}
	agg := newTestAggregator(source, Config{StaleAfter: time.Minute})

	base := time.Now()
	current := base
	agg.now = func() time.Time { return current }

	var got []*models.Emergency
	_, err := agg.SubscribeMerged(context.Background(),
		[]store.EmergencyQuery{{Status: models.StatusPending}},
		func(merged []*models.Emergency) { got = merged },
		nil,
	)
	require.NoError(t, err)

	stale := primitive.NewObjectID()
	fresh := primitive.NewObjectID()

	source.subs[0].onSnapshot([]*models.Emergency{
		emergencyAt(stale, models.StatusPending, base),
	})
	require.Len(t, got, 1)

	current = base.Add(2 * time.Minute)
	source.subs[0].onSnapshot([]*models.Emergency{
		emergencyAt(fresh, models.StatusPending, current),
	})

	require.Len(t, got, 1, "entry unseen past the window is pruned")
	assert.Equal(t, fresh, got[0].ID)
}

func TestSubscribeMergedDeliveriesAreSerialized(t *testing.T) {
	source := &fakeSource{}
	agg := newTestAggregator(source, Config{})
	now := time.Now()

	firstDelivering := make(chan struct{})
	releaseFirst := make(chan struct{})

	var mu sync.Mutex
	var final []*models.Emergency
	deliveries := 0
	_, err := agg.SubscribeMerged(context.Background(),
		[]store.EmergencyQuery{
			{Status: models.StatusPending},
			{Status: models.StatusAccepted},
		},
		func(merged []*models.Emergency) {
			mu.Lock()
			deliveries++
			first := deliveries == 1
			mu.Unlock()

			if first {
				close(firstDelivering)
				<-releaseFirst
			}

			mu.Lock()
			final = merged
			mu.Unlock()
		}, nil)
	require.NoError(t, err)
	require.Len(t, source.subs, 2)

	// The first snapshot's delivery stalls mid-flight while a second
	// query's snapshot arrives on another goroutine.
	go source.subs[0].onSnapshot([]*models.Emergency{
		emergencyAt(primitive.NewObjectID(), models.StatusPending, now.Add(-time.Minute)),
	})
	<-firstDelivering

	secondDone := make(chan struct{})
	go func() {
		source.subs[1].onSnapshot([]*models.Emergency{
			emergencyAt(primitive.NewObjectID(), models.StatusAccepted, now),
		})
		close(secondDone)
	}()

	select {
	case <-secondDone:
		t.Fatal("second snapshot delivered while the first delivery was still in flight")
	case <-time.After(50 * time.Millisecond):
	}

	close(releaseFirst)
	<-secondDone

	mu.Lock()
	defer mu.Unlock()
	assert.Len(t, final, 2, "the last delivered view is the full union, not the stale single-record one")
}

func TestSubscribeMergedErrorIsolation(t *testing.T) {
	source := &fakeSource{}
	agg := newTestAggregator(source, Config{})
	now := time.Now()

	var got []*models.Emergency
	var reported []error
	_, err := agg.SubscribeMerged(context.Background(),
		[]store.EmergencyQuery{
			{Status: models.StatusPending},
			{Status: models.StatusAccepted},
		},
		func(merged []*models.Emergency) { got = merged },
		func(err error) { reported = append(reported, err) },
	)
	require.NoError(t, err)

	source.subs[0].onError(errors.New("cursor lost"))
	require.Len(t, reported, 1)

	// The sibling query keeps delivering.
	id := primitive.NewObjectID()
	source.subs[1].onSnapshot([]*models.Emergency{
		emergencyAt(id, models.StatusAccepted, now),
	})
	assert.Len(t, got, 1)
}

func TestSubscribeMergedSetupFailureRollsBack(t *testing.T) {
	source := &fakeSource{failOnQuery: 2}
	agg := newTestAggregator(source, Config{})

	_, err := agg.SubscribeMerged(context.Background(),
		[]store.EmergencyQuery{
			{Status: models.StatusPending},
			{Status: models.StatusAccepted},
		},
		func([]*models.Emergency) {}, nil)

	require.Error(t, err)
	assert.Equal(t, 1, source.disposeCount, "the successful subscription is rolled back")
}

func TestSubscribeMergedDisposeIsIdempotent(t *testing.T) {
	source := &fakeSource{}
	agg := newTestAggregator(source, Config{})

	unsubscribe, err := agg.SubscribeMerged(context.Background(),
		[]store.EmergencyQuery{
			{Status: models.StatusPending},
			{Status: models.StatusAccepted},
		},
		func([]*models.Emergency) {}, nil)
	require.NoError(t, err)

	unsubscribe()
	unsubscribe()
	assert.Equal(t, 2, source.disposeCount, "each underlying listener detaches exactly once")
}
