package handlers

import (
	"github.com/labstack/echo/v4"

	"github.com/centralplastcontato-cell/buffet-dispatch-service/internal/domain"
	"github.com/centralplastcontato-cell/buffet-dispatch-service/internal/service"
	"github.com/centralplastcontato-cell/buffet-dispatch-service/pkg/response"
	"github.com/centralplastcontato-cell/buffet-dispatch-service/pkg/validator"
)

type SettingsHandler struct {
	service *service.DispatchService
}

func NewSettingsHandler(service *service.DispatchService) *SettingsHandler {
	return &SettingsHandler{service: service}
}

type SaveSettingsRequest struct {
	DelayMinSeconds    int      `json:"delayMinSeconds" validate:"required,min=1,max=60"`
	DelayMaxSeconds    int      `json:"delayMaxSeconds" validate:"required,min=1,max=60,gtefield=DelayMinSeconds"`
	GroupBaseSeconds   int      `json:"groupBaseSeconds" validate:"required,min=1,max=120"`
	GroupJitterSeconds int      `json:"groupJitterSeconds" validate:"min=0,max=60"`
	Templates          []string `json:"templates" validate:"required,min=1,dive,notblank"`
	DefaultLink        string   `json:"defaultLink" validate:"omitempty,url"`
}

// GetSettings godoc
// @Summary Get company dispatch settings
// @Description Returns the pacing bounds and template pool stored for a company
// @Tags settings
// @Accept json
// @Produce json
// @Param x-buffet-auth-key header string true "API key for settings"
// @Param companyId path string true "Company ID"
// @Success 200 {object} response.SuccessResponse
// @Failure 404 {object} response.ErrorResponse
// @Router /api/v1/settings/{companyId} [get]
func (h *SettingsHandler) GetSettings(c echo.Context) error {
	companyID := c.Param("companyId")

	settings, err := h.service.GetSettings(c.Request().Context(), companyID)
	if err != nil {
		return response.InternalServerError(c, err)
	}
	if settings == nil {
		return response.NotFound(c, "no settings stored for company "+companyID)
	}

	return response.Ok(c, settings)
}

// SaveSettings godoc
// @Summary Save company dispatch settings
// @Description Creates or updates the pacing bounds and template pool for a company
// @Tags settings
// @Accept json
// @Produce json
// @Param x-buffet-auth-key header string true "API key for settings"
// @Param companyId path string true "Company ID"
// @Param request body SaveSettingsRequest true "Settings to store"
// @Success 200 {object} response.SuccessResponse
// @Failure 422 {object} response.ErrorResponse
// @Router /api/v1/settings/{companyId} [put]
func (h *SettingsHandler) SaveSettings(c echo.Context) error {
	companyID := c.Param("companyId")

	var req SaveSettingsRequest
	if err := c.Bind(&req); err != nil {
		return response.BadRequest(c, err)
	}

	if err := c.Validate(&req); err != nil {
		return validator.HandleValidationError(c, err)
	}

	settings := &domain.DispatchSettings{
		CompanyID:          companyID,
		DelayMinSeconds:    req.DelayMinSeconds,
		DelayMaxSeconds:    req.DelayMaxSeconds,
		GroupBaseSeconds:   req.GroupBaseSeconds,
		GroupJitterSeconds: req.GroupJitterSeconds,
		Templates:          domain.TemplateList(req.Templates),
		DefaultLink:        req.DefaultLink,
	}

	if err := h.service.SaveSettings(c.Request().Context(), settings); err != nil {
		return response.InternalServerError(c, err)
	}

	return response.OkWithMessage(c, "Settings saved", settings)
}
