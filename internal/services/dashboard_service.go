package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"medresponse/internal/aggregator"
	"medresponse/internal/models"
	"medresponse/internal/store"
	"medresponse/internal/utils"
	"medresponse/pkg/logger"
	"medresponse/pkg/websocket"
)

// KanbanColumn is one ordered column of the hospital board.
type KanbanColumn struct {
	Bucket aggregator.Bucket             `json:"bucket"`
	Cases  []aggregator.EnrichedEmergency `json:"cases"`
}

type HospitalView struct {
	Columns   []KanbanColumn `json:"columns"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// Incident is an SOS case as the police view renders it.
type Incident struct {
	aggregator.EnrichedEmergency
	Bucket  aggregator.Bucket `json:"bucket"`
	Urgency string            `json:"urgency"`
}

type PoliceView struct {
	Incidents []Incident `json:"incidents"`
	UpdatedAt time.Time  `json:"updated_at"`
}

type AdminView struct {
	Emergencies []aggregator.EnrichedEmergency `json:"emergencies"`
	Ambulances  []*models.Ambulance            `json:"ambulances"`
	UpdatedAt   time.Time                      `json:"updated_at"`
}

type UserView struct {
	Active    *aggregator.EnrichedEmergency `json:"active,omitempty"`
	Ambulance *models.Ambulance             `json:"ambulance,omitempty"`
	UpdatedAt time.Time                     `json:"updated_at"`
}

// PoliceViewOptions optionally restricts incidents to a radius around a
// station.
type PoliceViewOptions struct {
	Center   *utils.Point
	RadiusKM float64
}

// DashboardService builds the per-role live views: multi-query merge, then
// enrichment, then role bucketing. Each active view owns one aggregator
// subscription; nothing here is shared between two views.
type DashboardService struct {
	aggregator *aggregator.Aggregator
	enricher   *aggregator.Enricher
	store      store.LiveStore
	hub        *websocket.Hub
	log        *logger.Logger
}

func NewDashboardService(
	agg *aggregator.Aggregator,
	enricher *aggregator.Enricher,
	liveStore store.LiveStore,
	hub *websocket.Hub,
	log *logger.Logger,
) *DashboardService {
	return &DashboardService{
		aggregator: agg,
		enricher:   enricher,
		store:      liveStore,
		hub:        hub,
		log:        log,
	}
}

// hospitalStatuses are queried one status per live query; the store needs no
// composite "status in (...)" support and the merge layer does the union.
var hospitalStatuses = []models.EmergencyStatus{
	models.StatusPending,
	models.StatusAccepted,
	models.StatusEnRoute,
	models.StatusArrived,
	models.StatusAdmitted,
	models.StatusDischarged,
}

func hospitalQueries() []store.EmergencyQuery {
	queries := make([]store.EmergencyQuery, 0, len(hospitalStatuses))
	for _, status := range hospitalStatuses {
		queries = append(queries, store.EmergencyQuery{Status: status})
	}
	return queries
}

// SubscribeHospitalView delivers a fresh kanban board on every change to any
// contributing status query.
func (d *DashboardService) SubscribeHospitalView(ctx context.Context, onUpdate func(*HospitalView), onError func(error)) (store.UnsubscribeFunc, error) {
	queries := hospitalQueries()
	unsubscribe, err := d.aggregator.SubscribeMerged(ctx, queries,
		func(merged []*models.Emergency) {
			view := d.buildHospitalView(ctx, merged)
			onUpdate(view)
			d.broadcast(utils.RoomHospital, "hospital_view", view)
		},
		onError,
	)
	if err != nil {
		return nil, err
	}
	return d.withSubscriptionEvents("hospital", unsubscribe, map[string]interface{}{"queries": len(queries)}), nil
}

// GetHospitalView is the point-in-time REST variant.
func (d *DashboardService) GetHospitalView(ctx context.Context) (*HospitalView, error) {
	var all []*models.Emergency
	for _, q := range hospitalQueries() {
		records, err := d.store.FindEmergencies(ctx, q)
		if err != nil {
			return nil, err
		}
		all = append(all, records...)
	}
	return d.buildHospitalView(ctx, all), nil
}

func (d *DashboardService) buildHospitalView(ctx context.Context, merged []*models.Emergency) *HospitalView {
	enriched := d.enricher.Enrich(ctx, merged)

	byBucket := make(map[aggregator.Bucket][]aggregator.EnrichedEmergency)
	for _, record := range enriched {
		bucket := aggregator.HospitalTaxonomy.NormalizeStatus(record.Status)
		byBucket[bucket] = append(byBucket[bucket], record)
	}

	columns := make([]KanbanColumn, 0, len(aggregator.HospitalTaxonomy.Buckets))
	for _, bucket := range aggregator.HospitalTaxonomy.Buckets {
		cases := byBucket[bucket]
		if cases == nil {
			cases = []aggregator.EnrichedEmergency{}
		}
		columns = append(columns, KanbanColumn{Bucket: bucket, Cases: cases})
	}

	return &HospitalView{
		Columns:   columns,
		UpdatedAt: time.Now(),
	}
}

// SubscribePoliceView tracks SOS incidents that are still open or being
// responded to.
func (d *DashboardService) SubscribePoliceView(ctx context.Context, opts PoliceViewOptions, onUpdate func(*PoliceView), onError func(error)) (store.UnsubscribeFunc, error) {
	queries := []store.EmergencyQuery{{Type: models.EmergencyTypeSOS}}
	unsubscribe, err := d.aggregator.SubscribeMerged(ctx, queries,
		func(merged []*models.Emergency) {
			view := d.buildPoliceView(ctx, merged, opts)
			onUpdate(view)
			d.broadcast(utils.RoomPolice, "police_view", view)
		},
		onError,
	)
	if err != nil {
		return nil, err
	}
	return d.withSubscriptionEvents("police", unsubscribe, nil), nil
}

func (d *DashboardService) GetPoliceView(ctx context.Context, opts PoliceViewOptions) (*PoliceView, error) {
	records, err := d.store.FindEmergencies(ctx, store.EmergencyQuery{Type: models.EmergencyTypeSOS})
	if err != nil {
		return nil, err
	}
	return d.buildPoliceView(ctx, records, opts), nil
}

func (d *DashboardService) buildPoliceView(ctx context.Context, merged []*models.Emergency, opts PoliceViewOptions) *PoliceView {
	// Closed cases and out-of-area incidents are filtered before the
	// enrichment lookups, not after.
	open := make([]*models.Emergency, 0, len(merged))
	for _, record := range merged {
		if aggregator.PoliceTaxonomy.NormalizeStatus(record.Status) == aggregator.BucketClosed {
			continue
		}
		if opts.Center != nil && opts.RadiusKM > 0 && record.Location.HasFix() {
			if !utils.IsWithinRadius(opts.Center.Lat, opts.Center.Lng,
				record.Location.Latitude(), record.Location.Longitude(), opts.RadiusKM) {
				continue
			}
		}
		open = append(open, record)
	}

	enriched := d.enricher.Enrich(ctx, open)
	incidents := make([]Incident, 0, len(enriched))
	for _, record := range enriched {
		incidents = append(incidents, Incident{
			EnrichedEmergency: record,
			Bucket:            aggregator.PoliceTaxonomy.NormalizeStatus(record.Status),
			Urgency:           aggregator.UrgencyLabel(record.Type),
		})
	}

	return &PoliceView{
		Incidents: incidents,
		UpdatedAt: time.Now(),
	}
}

// GetAdminView is the point-in-time REST variant: recent emergencies plus
// the current active fleet.
func (d *DashboardService) GetAdminView(ctx context.Context) (*AdminView, error) {
	records, err := d.store.FindEmergencies(ctx, store.EmergencyQuery{Limit: utils.AdminQueryLimit})
	if err != nil {
		return nil, err
	}
	fleet, err := d.store.ListActiveAmbulances(ctx)
	if err != nil {
		return nil, err
	}

	return &AdminView{
		Emergencies: d.enricher.Enrich(ctx, records),
		Ambulances:  fleet,
		UpdatedAt:   time.Now(),
	}, nil
}

// GetUserView is the point-in-time REST variant of the requester view.
func (d *DashboardService) GetUserView(ctx context.Context, userID string) (*UserView, error) {
	records, err := d.store.FindEmergencies(ctx, store.EmergencyQuery{
		UserID: userID,
		Limit:  utils.UserRecentLimit,
	})
	if err != nil {
		return nil, err
	}

	view := &UserView{UpdatedAt: time.Now()}
	active := mostRecentActive(records)
	if active == nil {
		return view, nil
	}

	batch := d.enricher.Enrich(ctx, []*models.Emergency{active})
	view.Active = &batch[0]

	if id := active.AmbulanceID(); id != "" {
		ambulance, err := d.store.GetAmbulance(ctx, id)
		if err == nil {
			view.Ambulance = ambulance
		}
	}
	return view, nil
}

// SubscribeAdminView merges the all-emergencies feed with the live fleet.
// Two independent sources update one view; the state is owned by this
// subscription alone.
func (d *DashboardService) SubscribeAdminView(ctx context.Context, onUpdate func(*AdminView), onError func(error)) (store.UnsubscribeFunc, error) {
	var mu sync.Mutex
	var emergencies []aggregator.EnrichedEmergency
	var ambulances []*models.Ambulance

	emit := func() {
		mu.Lock()
		view := &AdminView{
			Emergencies: emergencies,
			Ambulances:  ambulances,
			UpdatedAt:   time.Now(),
		}
		mu.Unlock()
		onUpdate(view)
		d.broadcast(utils.RoomAdmin, "admin_view", view)
	}

	unsubEmergencies, err := d.aggregator.SubscribeMerged(ctx,
		[]store.EmergencyQuery{{Limit: utils.AdminQueryLimit}},
		func(merged []*models.Emergency) {
			enriched := d.enricher.Enrich(ctx, merged)
			mu.Lock()
			emergencies = enriched
			mu.Unlock()
			emit()
		},
		onError,
	)
	if err != nil {
		return nil, err
	}

	unsubAmbulances, err := d.store.SubscribeActiveAmbulances(ctx,
		func(fleet []*models.Ambulance) {
			mu.Lock()
			ambulances = fleet
			mu.Unlock()
			emit()
		},
		onError,
	)
	if err != nil {
		unsubEmergencies()
		return nil, err
	}

	var once sync.Once
	return d.withSubscriptionEvents("admin", func() {
		once.Do(func() {
			unsubEmergencies()
			unsubAmbulances()
		})
	}, nil), nil
}

// SubscribeUserView follows a requester's most recent active emergency and,
// once an ambulance is assigned, its live location. The ambulance
// subscription lives in a slot that is disposed and nulled before a
// replacement is created, so a superseding emergency never leaves two
// listeners racing on the same view.
func (d *DashboardService) SubscribeUserView(ctx context.Context, userID string, onUpdate func(*UserView), onError func(error)) (store.UnsubscribeFunc, error) {
	state := &userViewState{}

	emit := func() {
		state.mu.Lock()
		view := &UserView{
			Active:    state.active,
			Ambulance: state.ambulance,
			UpdatedAt: time.Now(),
		}
		state.mu.Unlock()
		onUpdate(view)
		d.broadcast(fmt.Sprintf(utils.RoomUserFmt, userID), "user_view", view)
	}

	unsubEmergencies, err := d.store.SubscribeEmergencies(ctx,
		store.EmergencyQuery{UserID: userID, Limit: utils.UserRecentLimit},
		func(snapshot []*models.Emergency) {
			active := mostRecentActive(snapshot)

			var enriched *aggregator.EnrichedEmergency
			if active != nil {
				batch := d.enricher.Enrich(ctx, []*models.Emergency{active})
				enriched = &batch[0]
			}

			state.mu.Lock()
			state.active = enriched
			state.mu.Unlock()

			d.retargetAmbulance(ctx, state, active, emit, onError)
			emit()
		},
		onError,
	)
	if err != nil {
		return nil, err
	}

	var once sync.Once
	return d.withSubscriptionEvents("user", func() {
		once.Do(func() {
			unsubEmergencies()
			state.mu.Lock()
			if state.trackAmbulance != nil {
				state.trackAmbulance()
				state.trackAmbulance = nil
			}
			state.mu.Unlock()
		})
	}, map[string]interface{}{"user_id": userID}), nil
}

type userViewState struct {
	mu             sync.Mutex
	active         *aggregator.EnrichedEmergency
	ambulance      *models.Ambulance
	trackedID      string
	trackAmbulance store.UnsubscribeFunc
}

// retargetAmbulance keeps exactly one ambulance-location listener alive:
// dispose the old one, null the slot, then subscribe to the new target.
func (d *DashboardService) retargetAmbulance(ctx context.Context, state *userViewState, active *models.Emergency, emit func(), onError func(error)) {
	targetID := ""
	if active != nil {
		targetID = active.AmbulanceID()
	}

	state.mu.Lock()
	if state.trackedID == targetID {
		state.mu.Unlock()
		return
	}
	if state.trackAmbulance != nil {
		state.trackAmbulance()
		state.trackAmbulance = nil
	}
	state.trackedID = targetID
	state.ambulance = nil
	state.mu.Unlock()

	if targetID == "" {
		return
	}

	unsubscribe, err := d.store.SubscribeAmbulance(ctx, targetID,
		func(ambulance *models.Ambulance) {
			state.mu.Lock()
			state.ambulance = ambulance
			state.mu.Unlock()
			emit()
		},
		onError,
	)
	if err != nil {
		d.log.WithError(err).WithAmbulanceID(targetID).Warn("Ambulance tracking subscription failed")
		if onError != nil {
			onError(err)
		}
		return
	}

	state.mu.Lock()
	state.trackAmbulance = unsubscribe
	state.mu.Unlock()
}

func mostRecentActive(snapshot []*models.Emergency) *models.Emergency {
	// Snapshots arrive ordered by descending recency.
	for _, record := range snapshot {
		if record.Status.Active() {
			return record
		}
	}
	return nil
}

// withSubscriptionEvents logs the open event and wraps the disposer so the
// close event is logged when the view detaches.
func (d *DashboardService) withSubscriptionEvents(view string, unsubscribe store.UnsubscribeFunc, details map[string]interface{}) store.UnsubscribeFunc {
	d.log.LogSubscriptionEvent(view, "opened", details)
	return func() {
		unsubscribe()
		d.log.LogSubscriptionEvent(view, "closed", details)
	}
}

func (d *DashboardService) broadcast(room, messageType string, view interface{}) {
	if d.hub == nil {
		return
	}
	d.hub.BroadcastToRoom(room, messageType, map[string]interface{}{
		"view": view,
	})
}
