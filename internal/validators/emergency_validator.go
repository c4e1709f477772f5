package validators

import (
	"fmt"
	"regexp"
	"strings"

	"medresponse/internal/models"

	"github.com/go-playground/validator/v10"
)

var validate *validator.Validate

var phoneRegex = regexp.MustCompile(`^\+?[1-9]\d{6,14}$`)

func init() {
	validate = validator.New()

	validate.RegisterValidation("phone_number", validatePhoneNumber)
	validate.RegisterValidation("emergency_status", validateEmergencyStatus)
}

func validatePhoneNumber(fl validator.FieldLevel) bool {
	return phoneRegex.MatchString(fl.Field().String())
}

func validateEmergencyStatus(fl validator.FieldLevel) bool {
	return models.EmergencyStatus(fl.Field().String()).Known()
}

// ValidationError is one failed field, shaped for API responses.
type ValidationError struct {
	Field   string `json:"field"`
	Tag     string `json:"tag"`
	Message string `json:"message"`
}

func (e ValidationError) Error() string {
	return e.Message
}

// ValidationErrors aggregates every failed field of one request.
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	messages := make([]string, 0, len(e))
	for _, ve := range e {
		messages = append(messages, ve.Message)
	}
	return strings.Join(messages, "; ")
}

func translate(err error) error {
	if err == nil {
		return nil
	}

	fieldErrors, ok := err.(validator.ValidationErrors)
	if !ok {
		return err
	}

	translated := make(ValidationErrors, 0, len(fieldErrors))
	for _, fe := range fieldErrors {
		translated = append(translated, ValidationError{
			Field:   fe.Field(),
			Tag:     fe.Tag(),
			Message: fmt.Sprintf("field %s failed validation on %s", fe.Field(), fe.Tag()),
		})
	}
	return translated
}

func ValidateSOSRequest(request *models.SOSRequest) error {
	return translate(validate.Struct(request))
}

func ValidateBookingRequest(request *models.BookingRequest) error {
	return translate(validate.Struct(request))
}

func ValidateAcceptRequest(request *models.AcceptRequest) error {
	return translate(validate.Struct(request))
}

func ValidateStatusUpdate(request *models.StatusUpdateRequest) error {
	return translate(validate.Struct(request))
}

func ValidateLocationUpdate(request *models.LocationUpdateRequest) error {
	return translate(validate.Struct(request))
}
