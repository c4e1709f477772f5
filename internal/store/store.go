package store

import (
	"context"
	"errors"

	"medresponse/internal/models"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// ErrNotFound is returned by point reads for ids with no backing record.
var ErrNotFound = errors.New("record not found")

// UnsubscribeFunc detaches a live subscription. Implementations must make
// repeated calls a no-op.
type UnsubscribeFunc func()

// EmergencyQuery describes one filtered live query against the emergencies
// collection. Zero-value fields are unconstrained. The result set is always
// ordered by descending recency.
type EmergencyQuery struct {
	Status   models.EmergencyStatus
	Type     models.EmergencyType
	UserID   string
	DriverID string
	Limit    int64
}

// LiveStore is the backing real-time document store. Filter subscriptions
// emit a full matching-set snapshot on every underlying change; key
// subscriptions emit the single record's state on every change. Subscription
// errors are reported on the error callback and terminate only that
// subscription.
type LiveStore interface {
	SubscribeEmergencies(ctx context.Context, q EmergencyQuery, onSnapshot func([]*models.Emergency), onError func(error)) (UnsubscribeFunc, error)
	SubscribeAmbulance(ctx context.Context, id string, onSnapshot func(*models.Ambulance), onError func(error)) (UnsubscribeFunc, error)
	SubscribeActiveAmbulances(ctx context.Context, onSnapshot func([]*models.Ambulance), onError func(error)) (UnsubscribeFunc, error)

	GetAmbulance(ctx context.Context, id string) (*models.Ambulance, error)
	GetEmergency(ctx context.Context, id primitive.ObjectID) (*models.Emergency, error)
	FindEmergencies(ctx context.Context, q EmergencyQuery) ([]*models.Emergency, error)
	ListActiveAmbulances(ctx context.Context) ([]*models.Ambulance, error)

	CreateEmergency(ctx context.Context, emergency *models.Emergency) (primitive.ObjectID, error)
	UpdateEmergency(ctx context.Context, id primitive.ObjectID, updates map[string]interface{}) error
	UpdateAmbulanceLocation(ctx context.Context, id string, location models.Location) error
}
