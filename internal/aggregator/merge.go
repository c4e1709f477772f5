package aggregator

import (
	"context"
	"sort"
	"sync"
	"time"

	"medresponse/internal/models"
	"medresponse/internal/store"
	"medresponse/pkg/logger"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// EmergencySource is the slice of the live store the aggregator needs.
type EmergencySource interface {
	SubscribeEmergencies(ctx context.Context, q store.EmergencyQuery, onSnapshot func([]*models.Emergency), onError func(error)) (store.UnsubscribeFunc, error)
}

// Config carries the aggregator knobs.
type Config struct {
	// StaleAfter expires merged entries not seen in any snapshot within the
	// window. Zero keeps entries forever, which matches the historical
	// behavior where a completed record lingers in merged views; dashboards
	// set a window so finished cases age out.
	StaleAfter time.Duration
}

// Aggregator merges N independent filtered live queries over the same
// logical collection into a single deduplicated, recency-ordered sequence.
type Aggregator struct {
	source EmergencySource
	log    *logger.Logger
	config Config
	now    func() time.Time
}

func NewAggregator(source EmergencySource, log *logger.Logger, config Config) *Aggregator {
	return &Aggregator{
		source: source,
		log:    log,
		config: config,
		now:    time.Now,
	}
}

// mergeState is owned by exactly one SubscribeMerged call. The mutex is held
// across both the merge and the delivery to onUpdate, so a snapshot's union
// can never be delivered after the union of a later snapshot.
type mergeState struct {
	mu      sync.Mutex
	records map[primitive.ObjectID]*models.Emergency
	seen    map[primitive.ObjectID]time.Time
}

// SubscribeMerged subscribes to every query and delivers the merged,
// deduplicated-by-id union sorted by descending recency on each snapshot
// from any one query. Deliveries are serialized, so onUpdate always sees
// unions in the order the snapshots merged. Records are only ever added or
// updated by snapshots; disappearance from one query's snapshot never
// deletes a record another query delivered. A per-query error goes to
// onError while the remaining subscriptions keep running. The returned
// function detaches every
// underlying listener; calling it again is a no-op.
func (a *Aggregator) SubscribeMerged(ctx context.Context, queries []store.EmergencyQuery, onUpdate func([]*models.Emergency), onError func(error)) (store.UnsubscribeFunc, error) {
	if len(queries) == 0 {
		onUpdate([]*models.Emergency{})
		return func() {}, nil
	}

	state := &mergeState{
		records: make(map[primitive.ObjectID]*models.Emergency),
		seen:    make(map[primitive.ObjectID]time.Time),
	}

	disposers := make([]store.UnsubscribeFunc, 0, len(queries))
	for _, q := range queries {
		unsubscribe, err := a.source.SubscribeEmergencies(ctx, q,
			func(snapshot []*models.Emergency) {
				state.mu.Lock()
				onUpdate(a.merge(state, snapshot))
				state.mu.Unlock()
			},
			func(err error) {
				a.log.WithError(err).Warn("Merged view query failed; remaining queries continue")
				if onError != nil {
					onError(err)
				}
			},
		)
		if err != nil {
			for _, dispose := range disposers {
				dispose()
			}
			return nil, err
		}
		disposers = append(disposers, unsubscribe)
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			for _, dispose := range disposers {
				dispose()
			}
		})
	}, nil
}

// merge upserts one query's snapshot into the shared map and returns the
// re-sorted union. Overlapping queries that both match a record resolve
// last-write-wins, which is safe since both carry the same underlying
// document. The caller holds state.mu.
func (a *Aggregator) merge(state *mergeState, snapshot []*models.Emergency) []*models.Emergency {
	now := a.now()
	for _, record := range snapshot {
		state.records[record.ID] = record
		state.seen[record.ID] = now
	}

	if a.config.StaleAfter > 0 {
		cutoff := now.Add(-a.config.StaleAfter)
		for id, last := range state.seen {
			if last.Before(cutoff) {
				delete(state.records, id)
				delete(state.seen, id)
			}
		}
	}

	merged := make([]*models.Emergency, 0, len(state.records))
	for _, record := range state.records {
		merged = append(merged, record)
	}
	sort.SliceStable(merged, func(i, j int) bool {
		return merged[i].EffectiveTime(now).After(merged[j].EffectiveTime(now))
	})

	return merged
}
