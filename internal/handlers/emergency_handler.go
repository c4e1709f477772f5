package handlers

import (
	"net/http"
	"strconv"

	"medresponse/internal/models"
	"medresponse/internal/services"
	"medresponse/internal/utils"
	"medresponse/internal/validators"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

type EmergencyHandler struct {
	emergencyService services.EmergencyService
}

func NewEmergencyHandler(emergencyService services.EmergencyService) *EmergencyHandler {
	return &EmergencyHandler{
		emergencyService: emergencyService,
	}
}

// CreateSOS creates a one-tap SOS emergency. The request is multipart so the
// device can attach an evidence photo alongside the coordinates.
func (h *EmergencyHandler) CreateSOS(c *gin.Context) {
	request, err := h.parseSOSForm(c)
	if err != nil {
		utils.BadRequestResponse(c, "Invalid request: "+err.Error())
		return
	}
	if err := validators.ValidateSOSRequest(request); err != nil {
		utils.BadRequestResponse(c, "Invalid request: "+err.Error())
		return
	}

	emergency, err := h.emergencyService.CreateSOS(c.Request.Context(), request)
	if err != nil {
		utils.ErrorResponse(c, http.StatusInternalServerError, "SOS_CREATION_FAILED", "Failed to create SOS: "+err.Error())
		return
	}

	utils.CreatedResponse(c, "SOS created successfully", emergency)
}

func (h *EmergencyHandler) parseSOSForm(c *gin.Context) (*models.SOSRequest, error) {
	latitude, err := strconv.ParseFloat(c.PostForm("latitude"), 64)
	if err != nil {
		return nil, err
	}
	longitude, err := strconv.ParseFloat(c.PostForm("longitude"), 64)
	if err != nil {
		return nil, err
	}

	request := &models.SOSRequest{
		Latitude:  latitude,
		Longitude: longitude,
		Address:   c.PostForm("address"),
		UserID:    c.PostForm("user_id"),
		UserEmail: c.PostForm("user_email"),
		CreatedAt: c.PostForm("created_at"),
	}

	file, header, err := c.Request.FormFile("photo")
	if err == nil {
		request.Photo = file
		request.PhotoName = header.Filename
		request.PhotoContentType = header.Header.Get("Content-Type")
		request.PhotoSize = header.Size
	}

	return request, nil
}

// CreateBooking schedules an ambulance for a known pickup and destination.
func (h *EmergencyHandler) CreateBooking(c *gin.Context) {
	var request models.BookingRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		utils.BadRequestResponse(c, "Invalid request: "+err.Error())
		return
	}
	if err := validators.ValidateBookingRequest(&request); err != nil {
		utils.BadRequestResponse(c, "Invalid request: "+err.Error())
		return
	}

	emergency, err := h.emergencyService.CreateBooking(c.Request.Context(), &request)
	if err != nil {
		utils.ErrorResponse(c, http.StatusInternalServerError, "BOOKING_CREATION_FAILED", "Failed to create booking: "+err.Error())
		return
	}

	utils.CreatedResponse(c, "Booking created successfully", emergency)
}

// AcceptEmergency assigns a driver and ambulance to a pending emergency.
func (h *EmergencyHandler) AcceptEmergency(c *gin.Context) {
	emergencyID, err := primitive.ObjectIDFromHex(c.Param("id"))
	if err != nil {
		utils.BadRequestResponse(c, "Invalid emergency ID")
		return
	}

	var request models.AcceptRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		utils.BadRequestResponse(c, "Invalid request: "+err.Error())
		return
	}
	if err := validators.ValidateAcceptRequest(&request); err != nil {
		utils.BadRequestResponse(c, "Invalid request: "+err.Error())
		return
	}

	if err := h.emergencyService.AcceptEmergency(c.Request.Context(), emergencyID, &request); err != nil {
		utils.ErrorResponse(c, http.StatusConflict, "ACCEPT_FAILED", "Failed to accept emergency: "+err.Error())
		return
	}

	utils.SuccessResponse(c, "Emergency accepted", nil)
}

// UpdateStatus moves an emergency along its status progression.
func (h *EmergencyHandler) UpdateStatus(c *gin.Context) {
	emergencyID, err := primitive.ObjectIDFromHex(c.Param("id"))
	if err != nil {
		utils.BadRequestResponse(c, "Invalid emergency ID")
		return
	}

	var request models.StatusUpdateRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		utils.BadRequestResponse(c, "Invalid request: "+err.Error())
		return
	}
	if err := validators.ValidateStatusUpdate(&request); err != nil {
		utils.BadRequestResponse(c, "Invalid request: "+err.Error())
		return
	}

	if err := h.emergencyService.UpdateStatus(c.Request.Context(), emergencyID, &request); err != nil {
		utils.ErrorResponse(c, http.StatusUnprocessableEntity, "STATUS_UPDATE_FAILED", "Failed to update status: "+err.Error())
		return
	}

	utils.SuccessResponse(c, "Status updated", nil)
}

// UpdateAmbulanceLocation records a vehicle GPS ping.
func (h *EmergencyHandler) UpdateAmbulanceLocation(c *gin.Context) {
	ambulanceID := c.Param("id")
	if ambulanceID == "" {
		utils.BadRequestResponse(c, "Invalid ambulance ID")
		return
	}

	var request models.LocationUpdateRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		utils.BadRequestResponse(c, "Invalid request: "+err.Error())
		return
	}
	if err := validators.ValidateLocationUpdate(&request); err != nil {
		utils.BadRequestResponse(c, "Invalid request: "+err.Error())
		return
	}

	if err := h.emergencyService.UpdateAmbulanceLocation(c.Request.Context(), ambulanceID, &request); err != nil {
		utils.ErrorResponse(c, http.StatusInternalServerError, "LOCATION_UPDATE_FAILED", "Failed to update location: "+err.Error())
		return
	}

	utils.SuccessResponse(c, "Location updated", nil)
}

// GetEmergency returns a single emergency by ID.
func (h *EmergencyHandler) GetEmergency(c *gin.Context) {
	emergencyID, err := primitive.ObjectIDFromHex(c.Param("id"))
	if err != nil {
		utils.BadRequestResponse(c, "Invalid emergency ID")
		return
	}

	emergency, err := h.emergencyService.GetEmergency(c.Request.Context(), emergencyID)
	if err != nil {
		utils.NotFoundResponse(c, "Emergency not found")
		return
	}

	utils.SuccessResponse(c, "Emergency retrieved", emergency)
}

// GetCompletedTrips lists a driver's completed trips.
func (h *EmergencyHandler) GetCompletedTrips(c *gin.Context) {
	driverID := c.Query("driver_id")
	if driverID == "" {
		utils.BadRequestResponse(c, "driver_id is required")
		return
	}

	trips, err := h.emergencyService.GetCompletedTrips(c.Request.Context(), driverID)
	if err != nil {
		utils.ErrorResponse(c, http.StatusInternalServerError, "TRIPS_FETCH_FAILED", "Failed to fetch trips: "+err.Error())
		return
	}

	utils.SuccessResponse(c, "Trips retrieved", trips)
}

// GetHistory lists recent emergencies for audit views.
func (h *EmergencyHandler) GetHistory(c *gin.Context) {
	history, err := h.emergencyService.GetHistory(c.Request.Context())
	if err != nil {
		utils.ErrorResponse(c, http.StatusInternalServerError, "HISTORY_FETCH_FAILED", "Failed to fetch history: "+err.Error())
		return
	}

	utils.SuccessResponse(c, "History retrieved", history)
}
