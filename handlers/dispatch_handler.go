package handlers

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/centralplastcontato-cell/buffet-dispatch-service/internal/domain"
	"github.com/centralplastcontato-cell/buffet-dispatch-service/internal/service"
	"github.com/centralplastcontato-cell/buffet-dispatch-service/pkg/response"
	"github.com/centralplastcontato-cell/buffet-dispatch-service/pkg/validator"
)

type DispatchHandler struct {
	service *service.DispatchService
}

func NewDispatchHandler(service *service.DispatchService) *DispatchHandler {
	return &DispatchHandler{service: service}
}

type StartGuestDispatchRequest struct {
	CompanyID       string                  `json:"companyId" validate:"required"`
	Instance        string                  `json:"instance" validate:"required"`
	Guests          []domain.GuestCandidate `json:"guests" validate:"required,min=1,dive"`
	Vars            map[string]string       `json:"vars,omitempty"`
	Templates       []string                `json:"templates,omitempty" validate:"omitempty,dive,notblank"`
	DelayMinSeconds *int                    `json:"delayMinSeconds,omitempty" validate:"omitempty,min=1"`
	DelayMaxSeconds *int                    `json:"delayMaxSeconds,omitempty" validate:"omitempty,min=1"`
}

type StartGroupDispatchRequest struct {
	CompanyID string                  `json:"companyId" validate:"required"`
	Instance  string                  `json:"instance" validate:"required"`
	Groups    []domain.GroupCandidate `json:"groups" validate:"required,min=1,dive"`
	Vars      map[string]string       `json:"vars,omitempty"`
	Templates []string                `json:"templates,omitempty" validate:"omitempty,dive,notblank"`
}

type ResumeDispatchRequest struct {
	Vars      map[string]string `json:"vars,omitempty"`
	Templates []string          `json:"templates,omitempty" validate:"omitempty,dive,notblank"`
}

// StartGuestDispatch godoc
// @Summary Start a guest dispatch
// @Description Filters the guest roster to opted-in guests with valid phones and starts a paced bulk send
// @Tags dispatches
// @Accept json
// @Produce json
// @Param x-buffet-auth-key header string true "API key for dispatches"
// @Param request body StartGuestDispatchRequest true "Guest dispatch to start"
// @Success 201 {object} response.SuccessResponse
// @Failure 400 {object} response.ErrorResponse
// @Failure 409 {object} response.ErrorResponse
// @Failure 422 {object} response.ErrorResponse
// @Router /api/v1/dispatches/guests [post]
func (h *DispatchHandler) StartGuestDispatch(c echo.Context) error {
	var req StartGuestDispatchRequest
	if err := c.Bind(&req); err != nil {
		return response.BadRequest(c, err)
	}

	if err := c.Validate(&req); err != nil {
		return validator.HandleValidationError(c, err)
	}

	runID, err := h.service.StartGuestDispatch(c.Request().Context(), service.GuestDispatchRequest{
		CompanyID:       req.CompanyID,
		Instance:        req.Instance,
		Guests:          req.Guests,
		Vars:            req.Vars,
		Templates:       req.Templates,
		DelayMinSeconds: req.DelayMinSeconds,
		DelayMaxSeconds: req.DelayMaxSeconds,
	})
	if err != nil {
		return dispatchError(c, err)
	}

	return response.Created(c, "Dispatch started", map[string]string{"runId": runID})
}

// StartGroupDispatch godoc
// @Summary Start a group dispatch
// @Description Starts a paced bulk send to the selected WhatsApp groups
// @Tags dispatches
// @Accept json
// @Produce json
// @Param x-buffet-auth-key header string true "API key for dispatches"
// @Param request body StartGroupDispatchRequest true "Group dispatch to start"
// @Success 201 {object} response.SuccessResponse
// @Failure 400 {object} response.ErrorResponse
// @Failure 409 {object} response.ErrorResponse
// @Failure 422 {object} response.ErrorResponse
// @Router /api/v1/dispatches/groups [post]
func (h *DispatchHandler) StartGroupDispatch(c echo.Context) error {
	var req StartGroupDispatchRequest
	if err := c.Bind(&req); err != nil {
		return response.BadRequest(c, err)
	}

	if err := c.Validate(&req); err != nil {
		return validator.HandleValidationError(c, err)
	}

	runID, err := h.service.StartGroupDispatch(c.Request().Context(), service.GroupDispatchRequest{
		CompanyID: req.CompanyID,
		Instance:  req.Instance,
		Groups:    req.Groups,
		Vars:      req.Vars,
		Templates: req.Templates,
	})
	if err != nil {
		return dispatchError(c, err)
	}

	return response.Created(c, "Dispatch started", map[string]string{"runId": runID})
}

// GetDispatchStatus godoc
// @Summary Get dispatch progress
// @Description Returns the live (or last known) snapshot of a dispatch run
// @Tags dispatches
// @Accept json
// @Produce json
// @Param x-buffet-auth-key header string true "API key for dispatches"
// @Param id path string true "Run ID"
// @Success 200 {object} response.SuccessResponse
// @Failure 404 {object} response.ErrorResponse
// @Router /api/v1/dispatches/{id} [get]
func (h *DispatchHandler) GetDispatchStatus(c echo.Context) error {
	runID := c.Param("id")

	snapshot, err := h.service.GetDispatchStatus(c.Request().Context(), runID)
	if err != nil {
		return dispatchError(c, err)
	}

	return response.Ok(c, snapshot)
}

// GetDispatch godoc
// @Summary Get a dispatch run
// @Description Returns the stored run with its per-recipient outcome list
// @Tags dispatches
// @Accept json
// @Produce json
// @Param x-buffet-auth-key header string true "API key for dispatches"
// @Param id path string true "Run ID"
// @Success 200 {object} response.SuccessResponse
// @Failure 404 {object} response.ErrorResponse
// @Router /api/v1/dispatches/{id}/recipients [get]
func (h *DispatchHandler) GetDispatch(c echo.Context) error {
	runID := c.Param("id")

	run, recipients, err := h.service.GetDispatch(c.Request().Context(), runID)
	if err != nil {
		return dispatchError(c, err)
	}

	return response.Ok(c, map[string]any{
		"run":        run,
		"recipients": recipients,
	})
}

// ListDispatches godoc
// @Summary List dispatch runs
// @Description Retrieves a paginated list of dispatch runs, newest first
// @Tags dispatches
// @Accept json
// @Produce json
// @Param x-buffet-auth-key header string true "API key for dispatches"
// @Param page query int false "Page number (default: 1)"
// @Param pageSize query int false "Page size (default: 20, max: 100)"
// @Success 200 {object} response.PaginatedResponse
// @Failure 400 {object} response.ErrorResponse
// @Failure 500 {object} response.ErrorResponse
// @Router /api/v1/dispatches [get]
func (h *DispatchHandler) ListDispatches(c echo.Context) error {
	page, pageSize, err := parsePaginationParams(c)
	if err != nil {
		return response.BadRequest(c, err)
	}

	runs, totalCount, err := h.service.ListDispatches(c.Request().Context(), page, pageSize)
	if err != nil {
		return response.InternalServerError(c, err)
	}

	return response.Paginated(c, runs, page, pageSize, totalCount)
}

// GetDispatchStats godoc
// @Summary Get dispatch statistics
// @Description Returns run counts per phase plus the number of live runs
// @Tags dispatches
// @Accept json
// @Produce json
// @Param x-buffet-auth-key header string true "API key for dispatches"
// @Success 200 {object} response.SuccessResponse
// @Failure 500 {object} response.ErrorResponse
// @Router /api/v1/dispatches/stats [get]
func (h *DispatchHandler) GetDispatchStats(c echo.Context) error {
	stats, err := h.service.GetDispatchStats(c.Request().Context())
	if err != nil {
		return response.InternalServerError(c, err)
	}

	return response.Ok(c, stats)
}

// CancelDispatch godoc
// @Summary Cancel a live dispatch
// @Description Stops a running dispatch cooperatively; the partial tally is kept
// @Tags dispatches
// @Accept json
// @Produce json
// @Param x-buffet-auth-key header string true "API key for dispatches"
// @Param id path string true "Run ID"
// @Success 200 {object} response.SuccessResponse
// @Failure 409 {object} response.ErrorResponse
// @Router /api/v1/dispatches/{id}/cancel [post]
func (h *DispatchHandler) CancelDispatch(c echo.Context) error {
	runID := c.Param("id")

	if err := h.service.CancelDispatch(runID); err != nil {
		return dispatchError(c, err)
	}

	return response.OkWithMessage(c, "Dispatch cancellation requested", map[string]string{"runId": runID})
}

// ResumeDispatch godoc
// @Summary Resume an interrupted dispatch
// @Description Re-runs a stopped dispatch over recipients that were never reached
// @Tags dispatches
// @Accept json
// @Produce json
// @Param x-buffet-auth-key header string true "API key for dispatches"
// @Param id path string true "Run ID"
// @Param request body ResumeDispatchRequest false "Substitution values and templates for the continuation"
// @Success 200 {object} response.SuccessResponse
// @Failure 404 {object} response.ErrorResponse
// @Failure 409 {object} response.ErrorResponse
// @Router /api/v1/dispatches/{id}/resume [post]
func (h *DispatchHandler) ResumeDispatch(c echo.Context) error {
	runID := c.Param("id")

	var req ResumeDispatchRequest
	if err := c.Bind(&req); err != nil {
		return response.BadRequest(c, err)
	}

	if err := c.Validate(&req); err != nil {
		return validator.HandleValidationError(c, err)
	}

	if err := h.service.ResumeDispatch(c.Request().Context(), runID, req.Vars, req.Templates); err != nil {
		return dispatchError(c, err)
	}

	return response.OkWithMessage(c, "Dispatch resumed", map[string]string{"runId": runID})
}

// dispatchError maps service sentinel errors to HTTP statuses.
func dispatchError(c echo.Context, err error) error {
	switch {
	case errors.Is(err, service.ErrRunNotFound):
		return response.NotFound(c, err.Error())
	case errors.Is(err, service.ErrNoEligibleRecipients),
		errors.Is(err, service.ErrNothingToResume):
		return response.UnprocessableEntity(c, err)
	case errors.Is(err, service.ErrInstanceNotConnected),
		errors.Is(err, service.ErrRunActive),
		errors.Is(err, service.ErrRunNotActive):
		return response.Conflict(c, err)
	default:
		return response.InternalServerError(c, err)
	}
}

func parsePaginationParams(c echo.Context) (page, pageSize int, err error) {
	page = 1
	pageSize = 20

	if pageStr := c.QueryParam("page"); pageStr != "" {
		page, err = strconv.Atoi(pageStr)
		if err != nil || page < 1 {
			return 0, 0, fmt.Errorf("invalid page parameter")
		}
	}

	if pageSizeStr := c.QueryParam("pageSize"); pageSizeStr != "" {
		pageSize, err = strconv.Atoi(pageSizeStr)
		if err != nil || pageSize < 1 || pageSize > 100 {
			return 0, 0, fmt.Errorf("invalid pageSize parameter (must be 1-100)")
		}
	}

	return page, pageSize, nil
}
