package services

import (
	"context"
	"fmt"
	"time"

	"medresponse/internal/models"
	"medresponse/internal/store"
	"medresponse/internal/utils"
	"medresponse/pkg/logger"
	"medresponse/pkg/maps"
	"medresponse/pkg/push"
	"medresponse/pkg/sms"
	"medresponse/pkg/storage"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type EmergencyService interface {
	CreateSOS(ctx context.Context, request *models.SOSRequest) (*models.Emergency, error)
	CreateBooking(ctx context.Context, request *models.BookingRequest) (*models.Emergency, error)
	AcceptEmergency(ctx context.Context, id primitive.ObjectID, request *models.AcceptRequest) error
	UpdateStatus(ctx context.Context, id primitive.ObjectID, request *models.StatusUpdateRequest) error
	UpdateAmbulanceLocation(ctx context.Context, ambulanceID string, request *models.LocationUpdateRequest) error
	GetEmergency(ctx context.Context, id primitive.ObjectID) (*models.Emergency, error)
	GetCompletedTrips(ctx context.Context, driverID string) ([]*models.Emergency, error)
	GetHistory(ctx context.Context) ([]*models.Emergency, error)
}

type emergencyService struct {
	store          store.LiveStore
	storage        storage.StorageProvider
	geocoder       maps.Geocoder
	pushProvider   push.PushProvider
	smsProvider    sms.SMSProvider
	dispatchNumber string
	log            *logger.Logger
}

func NewEmergencyService(
	liveStore store.LiveStore,
	storageProvider storage.StorageProvider,
	geocoder maps.Geocoder,
	pushProvider push.PushProvider,
	smsProvider sms.SMSProvider,
	dispatchNumber string,
	log *logger.Logger,
) EmergencyService {
	return &emergencyService{
		store:          liveStore,
		storage:        storageProvider,
		geocoder:       geocoder,
		pushProvider:   pushProvider,
		smsProvider:    smsProvider,
		dispatchNumber: dispatchNumber,
		log:            log,
	}
}

func (s *emergencyService) CreateSOS(ctx context.Context, request *models.SOSRequest) (*models.Emergency, error) {
	if !utils.IsValidCoordinates(request.Latitude, request.Longitude) {
		return nil, fmt.Errorf("invalid coordinates: %f, %f", request.Latitude, request.Longitude)
	}

	var photoURL string
	if request.Photo != nil {
		key := fmt.Sprintf("%s/%d_%s", utils.PhotoPrefix, time.Now().UnixNano(), request.PhotoName)
		uploaded, err := s.storage.Upload(ctx, &storage.UploadRequest{
			Key:         key,
			Reader:      request.Photo,
			ContentType: request.PhotoContentType,
			Size:        request.PhotoSize,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to upload SOS photo: %w", err)
		}
		photoURL = uploaded.URL
	}

	location := models.NewLocation(request.Latitude, request.Longitude)
	location.Address = s.resolveAddress(ctx, request.Address, request.Latitude, request.Longitude)

	emergency := &models.Emergency{
		Type:      models.EmergencyTypeSOS,
		Status:    models.StatusPending,
		Location:  location,
		PhotoURL:  photoURL,
		UserID:    request.UserID,
		UserEmail: request.UserEmail,
		CreatedAt: request.CreatedAt,
	}

	if _, err := s.store.CreateEmergency(ctx, emergency); err != nil {
		return nil, err
	}

	s.notifyResponders(ctx, emergency)
	return emergency, nil
}

func (s *emergencyService) CreateBooking(ctx context.Context, request *models.BookingRequest) (*models.Emergency, error) {
	if !utils.IsValidCoordinates(request.Latitude, request.Longitude) {
		return nil, fmt.Errorf("invalid coordinates: %f, %f", request.Latitude, request.Longitude)
	}
	if request.Category == "" {
		return nil, fmt.Errorf("emergency category is required")
	}

	location := models.NewLocation(request.Latitude, request.Longitude)
	location.Pickup = request.Pickup
	location.Destination = request.Destination
	location.Address = s.resolveAddress(ctx, "", request.Latitude, request.Longitude)

	emergency := &models.Emergency{
		Type:      models.EmergencyTypeBooking,
		Category:  request.Category,
		Status:    models.StatusPending,
		Location:  location,
		UserID:    request.UserID,
		UserEmail: request.UserEmail,
		Patient:   request.Patient,
		CreatedAt: request.CreatedAt,
	}
	if request.AmbulanceType != "" {
		emergency.Ambulance = &models.AmbulanceDetails{AmbulanceType: request.AmbulanceType}
	}

	if _, err := s.store.CreateEmergency(ctx, emergency); err != nil {
		return nil, err
	}

	s.notifyResponders(ctx, emergency)
	return emergency, nil
}

func (s *emergencyService) AcceptEmergency(ctx context.Context, id primitive.ObjectID, request *models.AcceptRequest) error {
	emergency, err := s.store.GetEmergency(ctx, id)
	if err != nil {
		return err
	}
	if emergency.Status != models.StatusPending {
		return fmt.Errorf("emergency %s is not pending (status %s)", id.Hex(), emergency.Status)
	}
	if request.Ambulance.AmbulanceID == "" {
		return fmt.Errorf("ambulance id is required")
	}

	now := time.Now()
	err = s.store.UpdateEmergency(ctx, id, map[string]interface{}{
		"status":      models.StatusAccepted,
		"accepted_at": now,
		"driver":      request.Driver,
		"ambulance":   request.Ambulance,
	})
	if err != nil {
		return err
	}

	s.log.LogEmergencyEvent(id, "accepted", map[string]interface{}{
		"ambulance_id": request.Ambulance.AmbulanceID,
		"driver_id":    request.Driver.DriverID,
	})
	s.notifyRequester(ctx, emergency, "Ambulance assigned",
		fmt.Sprintf("Ambulance %s is on its way", request.Ambulance.VehicleNumber))
	return nil
}

func (s *emergencyService) UpdateStatus(ctx context.Context, id primitive.ObjectID, request *models.StatusUpdateRequest) error {
	if !request.Status.Known() {
		return fmt.Errorf("unknown status %q", request.Status)
	}

	emergency, err := s.store.GetEmergency(ctx, id)
	if err != nil {
		return err
	}

	// The progression is documented but not enforced; a regression is worth
	// a warning since it usually means two writers are racing.
	if statusRank(request.Status) < statusRank(emergency.Status) {
		s.log.WithEmergencyID(id).
			WithField("from", emergency.Status).
			WithField("to", request.Status).
			Warn("Status moved backwards")
	}

	updates := map[string]interface{}{"status": request.Status}
	for k, v := range request.Extra {
		updates[k] = v
	}

	if err := s.store.UpdateEmergency(ctx, id, updates); err != nil {
		return err
	}

	s.log.LogEmergencyEvent(id, "status_changed", map[string]interface{}{
		"from": emergency.Status,
		"to":   request.Status,
	})
	return nil
}

func (s *emergencyService) UpdateAmbulanceLocation(ctx context.Context, ambulanceID string, request *models.LocationUpdateRequest) error {
	if ambulanceID == "" {
		return fmt.Errorf("ambulance id is required")
	}
	if !utils.IsValidCoordinates(request.Latitude, request.Longitude) {
		return fmt.Errorf("invalid coordinates: %f, %f", request.Latitude, request.Longitude)
	}

	location := models.NewLocation(request.Latitude, request.Longitude)
	location.Accuracy = request.Accuracy

	return s.store.UpdateAmbulanceLocation(ctx, ambulanceID, location)
}

func (s *emergencyService) GetEmergency(ctx context.Context, id primitive.ObjectID) (*models.Emergency, error) {
	return s.store.GetEmergency(ctx, id)
}

func (s *emergencyService) GetCompletedTrips(ctx context.Context, driverID string) ([]*models.Emergency, error) {
	return s.store.FindEmergencies(ctx, store.EmergencyQuery{
		Status:   models.StatusCompleted,
		DriverID: driverID,
		Limit:    utils.CompletedTripsLimit,
	})
}

func (s *emergencyService) GetHistory(ctx context.Context) ([]*models.Emergency, error) {
	return s.store.FindEmergencies(ctx, store.EmergencyQuery{
		Status: models.StatusCompleted,
		Limit:  utils.HistoryQueryLimit,
	})
}

// resolveAddress prefers the caller-supplied address, then reverse geocoding
// with a bounded wait, then raw coordinates. Geocoding failures are logged
// and swallowed; an emergency is never rejected for lacking a street name.
func (s *emergencyService) resolveAddress(ctx context.Context, supplied string, lat, lng float64) string {
	if supplied != "" {
		return supplied
	}
	if s.geocoder != nil {
		if address, err := s.geocoder.ReverseGeocode(ctx, lat, lng); err == nil {
			return address
		} else {
			s.log.WithError(err).Debug("Reverse geocoding failed, using coordinates")
		}
	}
	return fmt.Sprintf("%.6f, %.6f", lat, lng)
}

// notifyResponders fans a new emergency out to the responder push topic and
// the dispatch desk. Notification failures are contained; the record is
// already stored.
func (s *emergencyService) notifyResponders(ctx context.Context, emergency *models.Emergency) {
	title := "New emergency"
	if emergency.Type == models.EmergencyTypeSOS {
		title = "SOS emergency"
	}

	if s.pushProvider != nil {
		_, err := s.pushProvider.SendToTopic(ctx, utils.TopicResponders, &push.NotificationRequest{
			Title:    title,
			Body:     emergency.Location.DisplayAddress(),
			Priority: "high",
			Data: map[string]string{
				"emergency_id": emergency.ID.Hex(),
				"type":         string(emergency.Type),
			},
		})
		if err != nil {
			s.log.WithError(err).Warn("Responder push notification failed")
		}
	}

	if s.smsProvider != nil && s.dispatchNumber != "" {
		_, err := s.smsProvider.SendSMS(ctx, &sms.SMSRequest{
			To:      s.dispatchNumber,
			Message: fmt.Sprintf("%s at %s", title, emergency.Location.DisplayAddress()),
		})
		if err != nil {
			s.log.WithError(err).Warn("Dispatch SMS failed")
		}
	}
}

func (s *emergencyService) notifyRequester(ctx context.Context, emergency *models.Emergency, title, body string) {
	if s.pushProvider == nil || emergency.UserID == "" {
		return
	}

	_, err := s.pushProvider.SendToTopic(ctx, fmt.Sprintf(utils.RoomUserFmt, emergency.UserID), &push.NotificationRequest{
		Title: title,
		Body:  body,
		Data: map[string]string{
			"emergency_id": emergency.ID.Hex(),
		},
	})
	if err != nil {
		s.log.WithError(err).Warn("Requester push notification failed")
	}
}

func statusRank(status models.EmergencyStatus) int {
	for i, s := range models.StatusOrder {
		if s == status {
			return i
		}
	}
	return -1
}
