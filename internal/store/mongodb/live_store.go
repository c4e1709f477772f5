package mongodb

import (
	"context"
	"fmt"
	"sync"
	"time"

	"medresponse/internal/models"
	"medresponse/internal/store"
	"medresponse/internal/utils"
	"medresponse/pkg/logger"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type liveStore struct {
	emergencies *mongo.Collection
	ambulances  *mongo.Collection
	log         *logger.Logger
}

// NewLiveStore returns a LiveStore backed by MongoDB change streams. Every
// change event on a watched collection triggers a re-query, so subscribers
// always receive a full matching-set snapshot, never a delta.
func NewLiveStore(db *mongo.Database, log *logger.Logger) store.LiveStore {
	return &liveStore{
		emergencies: db.Collection(utils.EmergenciesCollection),
		ambulances:  db.Collection(utils.AmbulancesCollection),
		log:         log,
	}
}

func (s *liveStore) SubscribeEmergencies(ctx context.Context, q store.EmergencyQuery, onSnapshot func([]*models.Emergency), onError func(error)) (store.UnsubscribeFunc, error) {
	subCtx, cancel := context.WithCancel(ctx)

	stream, err := s.emergencies.Watch(subCtx, mongo.Pipeline{},
		options.ChangeStream().SetFullDocument(options.UpdateLookup))
	if err != nil {
		cancel()
		return nil, fmt.Errorf("failed to watch emergencies: %w", err)
	}

	emit := func() {
		records, err := s.FindEmergencies(subCtx, q)
		if err != nil {
			if subCtx.Err() == nil && onError != nil {
				onError(err)
			}
			return
		}
		onSnapshot(records)
	}

	go func() {
		defer stream.Close(context.Background())

		emit()
		for stream.Next(subCtx) {
			emit()
		}
		if err := stream.Err(); err != nil && subCtx.Err() == nil && onError != nil {
			onError(fmt.Errorf("emergency subscription failed: %w", err))
		}
	}()

	var once sync.Once
	return func() { once.Do(cancel) }, nil
}

func (s *liveStore) SubscribeAmbulance(ctx context.Context, id string, onSnapshot func(*models.Ambulance), onError func(error)) (store.UnsubscribeFunc, error) {
	subCtx, cancel := context.WithCancel(ctx)

	pipeline := mongo.Pipeline{
		bson.D{{Key: "$match", Value: bson.M{"documentKey._id": id}}},
	}
	stream, err := s.ambulances.Watch(subCtx, pipeline,
		options.ChangeStream().SetFullDocument(options.UpdateLookup))
	if err != nil {
		cancel()
		return nil, fmt.Errorf("failed to watch ambulance %s: %w", id, err)
	}

	emit := func() {
		ambulance, err := s.GetAmbulance(subCtx, id)
		if err != nil && err != store.ErrNotFound {
			if subCtx.Err() == nil && onError != nil {
				onError(err)
			}
			return
		}
		// Deleted or never-created records surface as nil.
		onSnapshot(ambulance)
	}

	go func() {
		defer stream.Close(context.Background())

		emit()
		for stream.Next(subCtx) {
			emit()
		}
		if err := stream.Err(); err != nil && subCtx.Err() == nil && onError != nil {
			onError(fmt.Errorf("ambulance subscription failed: %w", err))
		}
	}()

	var once sync.Once
	return func() { once.Do(cancel) }, nil
}

func (s *liveStore) SubscribeActiveAmbulances(ctx context.Context, onSnapshot func([]*models.Ambulance), onError func(error)) (store.UnsubscribeFunc, error) {
	subCtx, cancel := context.WithCancel(ctx)

	stream, err := s.ambulances.Watch(subCtx, mongo.Pipeline{},
		options.ChangeStream().SetFullDocument(options.UpdateLookup))
	if err != nil {
		cancel()
		return nil, fmt.Errorf("failed to watch ambulances: %w", err)
	}

	emit := func() {
		ambulances, err := s.findActiveAmbulances(subCtx)
		if err != nil {
			if subCtx.Err() == nil && onError != nil {
				onError(err)
			}
			return
		}
		onSnapshot(ambulances)
	}

	go func() {
		defer stream.Close(context.Background())

		emit()
		for stream.Next(subCtx) {
			emit()
		}
		if err := stream.Err(); err != nil && subCtx.Err() == nil && onError != nil {
			onError(fmt.Errorf("ambulance fleet subscription failed: %w", err))
		}
	}()

	var once sync.Once
	return func() { once.Do(cancel) }, nil
}

func (s *liveStore) GetAmbulance(ctx context.Context, id string) (*models.Ambulance, error) {
	var ambulance models.Ambulance
	err := s.ambulances.FindOne(ctx, bson.M{"_id": id}).Decode(&ambulance)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get ambulance %s: %w", id, err)
	}
	return &ambulance, nil
}

func (s *liveStore) GetEmergency(ctx context.Context, id primitive.ObjectID) (*models.Emergency, error) {
	raw, err := s.emergencies.FindOne(ctx, bson.M{"_id": id}).Raw()
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get emergency %s: %w", id.Hex(), err)
	}
	return decodeEmergency(raw)
}

func (s *liveStore) FindEmergencies(ctx context.Context, q store.EmergencyQuery) ([]*models.Emergency, error) {
	filter := bson.M{}
	if q.Status != "" {
		filter["status"] = q.Status
	}
	if q.Type != "" {
		filter["type"] = q.Type
	}
	if q.UserID != "" {
		filter["user_id"] = q.UserID
	}
	if q.DriverID != "" {
		filter["driver.driver_id"] = q.DriverID
	}

	opts := options.Find().SetSort(bson.D{{Key: "timestamp", Value: -1}})
	if q.Limit > 0 {
		opts.SetLimit(q.Limit)
	}

	cursor, err := s.emergencies.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to find emergencies: %w", err)
	}
	defer cursor.Close(ctx)

	var emergencies []*models.Emergency
	for cursor.Next(ctx) {
		emergency, err := decodeEmergency(cursor.Current)
		if err != nil {
			return nil, err
		}
		emergencies = append(emergencies, emergency)
	}
	if err := cursor.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate emergencies: %w", err)
	}

	return emergencies, nil
}

func (s *liveStore) CreateEmergency(ctx context.Context, emergency *models.Emergency) (primitive.ObjectID, error) {
	emergency.ID = primitive.NewObjectID()
	now := time.Now()
	emergency.Timestamp = &now
	emergency.UpdatedAt = now
	if emergency.CreatedAt == "" {
		emergency.CreatedAt = now.Format(time.RFC3339)
	}

	if _, err := s.emergencies.InsertOne(ctx, emergency); err != nil {
		return primitive.NilObjectID, fmt.Errorf("failed to create emergency: %w", err)
	}

	s.log.WithEmergencyID(emergency.ID).WithField("type", emergency.Type).Info("Emergency created")
	return emergency.ID, nil
}

func (s *liveStore) UpdateEmergency(ctx context.Context, id primitive.ObjectID, updates map[string]interface{}) error {
	updates["updated_at"] = time.Now()

	result, err := s.emergencies.UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$set": updates})
	if err != nil {
		return fmt.Errorf("failed to update emergency: %w", err)
	}
	if result.MatchedCount == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *liveStore) UpdateAmbulanceLocation(ctx context.Context, id string, location models.Location) error {
	location.Timestamp = time.Now()

	_, err := s.ambulances.UpdateOne(ctx,
		bson.M{"_id": id},
		bson.M{"$set": bson.M{
			"current_location": location,
			"last_updated":     time.Now(),
		}},
		options.Update().SetUpsert(true),
	)
	if err != nil {
		return fmt.Errorf("failed to update ambulance location: %w", err)
	}
	return nil
}

func (s *liveStore) ListActiveAmbulances(ctx context.Context) ([]*models.Ambulance, error) {
	return s.findActiveAmbulances(ctx)
}

func (s *liveStore) findActiveAmbulances(ctx context.Context) ([]*models.Ambulance, error) {
	cursor, err := s.ambulances.Find(ctx, bson.M{"active": true})
	if err != nil {
		return nil, fmt.Errorf("failed to find active ambulances: %w", err)
	}
	defer cursor.Close(ctx)

	var ambulances []*models.Ambulance
	for cursor.Next(ctx) {
		var ambulance models.Ambulance
		if err := cursor.Decode(&ambulance); err != nil {
			return nil, fmt.Errorf("failed to decode ambulance: %w", err)
		}
		ambulances = append(ambulances, &ambulance)
	}
	if err := cursor.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate ambulances: %w", err)
	}

	return ambulances, nil
}

// decodeEmergency decodes a raw document and normalizes legacy coordinate
// shapes. Older writers stored a nested geopoint or flat lat/lng fields
// instead of the GeoJSON point; everything downstream sees one shape.
func decodeEmergency(raw bson.Raw) (*models.Emergency, error) {
	var emergency models.Emergency
	if err := bson.Unmarshal(raw, &emergency); err != nil {
		return nil, fmt.Errorf("failed to decode emergency: %w", err)
	}

	if !emergency.Location.HasFix() {
		if lat, lng, ok := legacyCoordinates(raw); ok {
			address := emergency.Location.Address
			pickup := emergency.Location.Pickup
			destination := emergency.Location.Destination
			emergency.Location = models.NewLocation(lat, lng)
			emergency.Location.Address = address
			emergency.Location.Pickup = pickup
			emergency.Location.Destination = destination
		}
	}

	return &emergency, nil
}

func legacyCoordinates(raw bson.Raw) (lat, lng float64, ok bool) {
	if lat, lng, ok := embeddedLatLng(raw.Lookup("geopoint")); ok {
		return lat, lng, true
	}
	return embeddedLatLng(raw.Lookup("location"))
}

func embeddedLatLng(value bson.RawValue) (lat, lng float64, ok bool) {
	if value.Type != bson.TypeEmbeddedDocument {
		return 0, 0, false
	}
	doc := value.Document()

	latVal, latErr := doc.LookupErr("lat")
	lngVal, lngErr := doc.LookupErr("lng")
	if latErr != nil || lngErr != nil {
		return 0, 0, false
	}

	lat, latOK := latVal.DoubleOK()
	lng, lngOK := lngVal.DoubleOK()
	if !latOK || !lngOK {
		return 0, 0, false
	}
	return lat, lng, true
}
