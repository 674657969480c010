package httpctl

import (
	"errors"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/flashsale/reservation-engine/internal/reservation/adapter/controller/http/dto"
	"github.com/flashsale/reservation-engine/internal/reservation/domain/apperror"
	"github.com/flashsale/reservation-engine/internal/reservation/usecase"
	"github.com/flashsale/reservation-engine/pkg/logger"
	"github.com/flashsale/reservation-engine/pkg/middleware"
)

// ReservationHandler serves the 5 routes spec_full §6 defines over the
// intake/checkout/availability usecases.
type ReservationHandler struct {
	intake       usecase.IntakeUsecase
	checkout     usecase.CheckoutUsecase
	availability usecase.AvailabilityUsecase
	logger       logger.Logger
	validate     *validator.Validate
}

func NewReservationHandler(intake usecase.IntakeUsecase, checkout usecase.CheckoutUsecase, availability usecase.AvailabilityUsecase, log logger.Logger) *ReservationHandler {
	return &ReservationHandler{
		intake: intake, checkout: checkout, availability: availability,
		logger: log, validate: validator.New(),
	}
}

func (h *ReservationHandler) RegisterRoutes(r fiber.Router) {
	v1 := r.Group("/v1")

	v1.Post("/reservations", h.SubmitReservation)
	v1.Get("/reservations/:id", h.GetReservation)
	v1.Post("/reservations/:id/confirm", h.ConfirmReservation)
	v1.Post("/reservations/:id/cancel", h.CancelReservation)
	v1.Get("/inventory/:sku", h.GetAvailability)
}

func (h *ReservationHandler) userID(c *fiber.Ctx) (string, error) {
	userID, ok := c.Locals(middleware.UserIDLocal).(string)
	if !ok || userID == "" {
		return "", apperror.New(apperror.CodeInvalidRequest, "missing authenticated user")
	}
	return userID, nil
}

// SubmitReservation handles POST /v1/reservations.
func (h *ReservationHandler) SubmitReservation(c *fiber.Ctx) error {
	userID, err := h.userID(c)
	if err != nil {
		return HandleError(c, err)
	}

	var req dto.SubmitReservationRequest
	if err := c.BodyParser(&req); err != nil {
		h.logger.Error("failed to decode reservation request body", "error", err)
		return HandleError(c, apperror.Wrap(apperror.CodeInvalidRequest, "malformed request body", err))
	}
	if err := h.validate.Struct(req); err != nil {
		return HandleError(c, apperror.Wrap(apperror.CodeInvalidRequest, "validation failed", err))
	}

	reservation, err := h.intake.Submit(c.Context(), req.ToSubmitRequest(userID))
	if err != nil {
		var appErr *apperror.Error
		if errors.As(err, &appErr) && appErr.Code.IsCritical() {
			h.logger.Error("critical error on submit", "code", appErr.Code, "error", appErr)
		}
		return HandleError(c, err)
	}

	return SuccessResp(c, fiber.StatusCreated, "reservation created", dto.ReservationResponseFromEntity(reservation))
}

// GetReservation handles GET /v1/reservations/:id. Checkout flow details
// (payment capture, shipping) beyond the reservation's own lifecycle are
// out of scope; the caller's own order system owns that.
func (h *ReservationHandler) GetReservation(c *fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return HandleError(c, apperror.New(apperror.CodeInvalidRequest, "reservation id is required"))
	}

	r, err := h.checkout.Get(c.Context(), id)
	if err != nil {
		return HandleError(c, err)
	}
	return SuccessResp(c, fiber.StatusOK, "reservation retrieved", dto.ReservationResponseFromEntity(r))
}

// ConfirmReservation handles POST /v1/reservations/:id/confirm.
func (h *ReservationHandler) ConfirmReservation(c *fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return HandleError(c, apperror.New(apperror.CodeInvalidRequest, "reservation id is required"))
	}

	r, err := h.checkout.Confirm(c.Context(), id)
	if err != nil {
		return HandleError(c, err)
	}
	return SuccessResp(c, fiber.StatusOK, "reservation confirmed", dto.ReservationResponseFromEntity(r))
}

// CancelReservation handles POST /v1/reservations/:id/cancel.
func (h *ReservationHandler) CancelReservation(c *fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return HandleError(c, apperror.New(apperror.CodeInvalidRequest, "reservation id is required"))
	}

	r, err := h.checkout.Cancel(c.Context(), id)
	if err != nil {
		return HandleError(c, err)
	}
	return SuccessResp(c, fiber.StatusOK, "reservation cancelled", dto.ReservationResponseFromEntity(r))
}

// GetAvailability handles GET /v1/inventory/:sku.
func (h *ReservationHandler) GetAvailability(c *fiber.Ctx) error {
	sku := c.Params("sku")
	if sku == "" {
		return HandleError(c, apperror.New(apperror.CodeInvalidRequest, "sku is required"))
	}

	available, err := h.availability.GetAvailability(c.Context(), sku)
	if err != nil {
		return HandleError(c, err)
	}
	return SuccessResp(c, fiber.StatusOK, "availability retrieved", dto.AvailabilityResponse{SKU: sku, Available: available})
}
