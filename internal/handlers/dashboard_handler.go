package handlers

import (
	"net/http"
	"strconv"

	"medresponse/internal/services"
	"medresponse/internal/utils"

	"github.com/gin-gonic/gin"
)

type DashboardHandler struct {
	dashboardService *services.DashboardService
}

func NewDashboardHandler(dashboardService *services.DashboardService) *DashboardHandler {
	return &DashboardHandler{
		dashboardService: dashboardService,
	}
}

// GetHospitalView returns the current kanban board snapshot.
func (h *DashboardHandler) GetHospitalView(c *gin.Context) {
	view, err := h.dashboardService.GetHospitalView(c.Request.Context())
	if err != nil {
		utils.ErrorResponse(c, http.StatusInternalServerError, "VIEW_FETCH_FAILED", "Failed to build hospital view: "+err.Error())
		return
	}

	utils.SuccessResponse(c, "Hospital view retrieved", view)
}

// GetPoliceView returns open SOS incidents, optionally restricted to a
// radius via lat, lng and radius_km query params.
func (h *DashboardHandler) GetPoliceView(c *gin.Context) {
	opts, err := parsePoliceOptions(c)
	if err != nil {
		utils.BadRequestResponse(c, "Invalid filter: "+err.Error())
		return
	}

	view, err := h.dashboardService.GetPoliceView(c.Request.Context(), opts)
	if err != nil {
		utils.ErrorResponse(c, http.StatusInternalServerError, "VIEW_FETCH_FAILED", "Failed to build police view: "+err.Error())
		return
	}

	utils.SuccessResponse(c, "Police view retrieved", view)
}

// GetAdminView returns recent emergencies plus the active fleet.
func (h *DashboardHandler) GetAdminView(c *gin.Context) {
	view, err := h.dashboardService.GetAdminView(c.Request.Context())
	if err != nil {
		utils.ErrorResponse(c, http.StatusInternalServerError, "VIEW_FETCH_FAILED", "Failed to build admin view: "+err.Error())
		return
	}

	utils.SuccessResponse(c, "Admin view retrieved", view)
}

// GetUserView returns a requester's most recent active emergency with its
// tracked ambulance, if any.
func (h *DashboardHandler) GetUserView(c *gin.Context) {
	userID := c.Param("id")
	if userID == "" {
		utils.BadRequestResponse(c, "user id is required")
		return
	}

	view, err := h.dashboardService.GetUserView(c.Request.Context(), userID)
	if err != nil {
		utils.ErrorResponse(c, http.StatusInternalServerError, "VIEW_FETCH_FAILED", "Failed to build user view: "+err.Error())
		return
	}

	utils.SuccessResponse(c, "User view retrieved", view)
}

func parsePoliceOptions(c *gin.Context) (services.PoliceViewOptions, error) {
	var opts services.PoliceViewOptions

	latStr, lngStr := c.Query("lat"), c.Query("lng")
	if latStr == "" || lngStr == "" {
		return opts, nil
	}

	lat, err := strconv.ParseFloat(latStr, 64)
	if err != nil {
		return opts, err
	}
	lng, err := strconv.ParseFloat(lngStr, 64)
	if err != nil {
		return opts, err
	}

	radius := utils.NearbyIncidentRadiusKM
	if radiusStr := c.Query("radius_km"); radiusStr != "" {
		radius, err = strconv.ParseFloat(radiusStr, 64)
		if err != nil {
			return opts, err
		}
	}

	opts.Center = &utils.Point{Lat: lat, Lng: lng}
	opts.RadiusKM = radius
	return opts, nil
}
